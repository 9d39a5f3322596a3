package facade

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecoverPanicStopsPanicSequence whitebox-checks the defer/recover
// wiring itself: recover() only stops a panic when called directly inside
// the deferred function, never when called by a helper the deferred
// function merely invokes. Exercised in-package because the seam being
// tested is internal to how ParseToJSON/ParseMultiToJSON/ValidateToJSON
// build their defer closures, not something a black-box caller can drive.
func TestRecoverPanicStopsPanicSequence(t *testing.T) {
	run := func() (result string) {
		defer func() {
			if recover() != nil {
				recoverPanic(&result)
			}
		}()
		panic("boom")
	}

	out := run()

	var decoded jsonResult
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.False(t, decoded.Success)
	assert.Equal(t, "Internal parser panic", decoded.Error)
}
