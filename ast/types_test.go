package ast_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyulab/m3l-go/ast"
)

func TestAttrArgValueMarshalsBareScalar(t *testing.T) {
	cases := map[string]struct {
		val  ast.AttrArgValue
		want string
	}{
		"string": {ast.NewStringArg("hello"), `"hello"`},
		"number": {ast.NewNumberArg(42), "42"},
		"bool":   {ast.NewBoolArg(true), "true"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := json.Marshal(tc.val)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(out))
		})
	}
}

func TestAttrArgValueRoundTrip(t *testing.T) {
	var v ast.AttrArgValue
	require.NoError(t, json.Unmarshal([]byte(`3.5`), &v))
	assert.True(t, v.IsNumber())
	assert.Equal(t, 3.5, v.NumberValue())

	require.NoError(t, json.Unmarshal([]byte(`"str"`), &v))
	assert.True(t, v.IsString())
	assert.Equal(t, "str", v.StringValue())

	require.NoError(t, json.Unmarshal([]byte(`false`), &v))
	assert.True(t, v.IsBool())
	assert.False(t, v.BoolValue())
}

func TestParamValueMarshal(t *testing.T) {
	out, err := json.Marshal(ast.NewNumberParam(10))
	require.NoError(t, err)
	assert.Equal(t, "10", string(out))

	out, err = json.Marshal(ast.NewStringParam("K"))
	require.NoError(t, err)
	assert.Equal(t, `"K"`, string(out))
}

// Sections flattens Custom buckets alongside the four fixed ones in JSON,
// per §3.1/§6.2.
func TestSectionsFlattensCustomBuckets(t *testing.T) {
	s := ast.NewSections()
	s.Custom["search"] = []map[string]any{{"raw": "@search(name)"}}

	out, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))

	assert.Contains(t, decoded, "indexes")
	assert.Contains(t, decoded, "relations")
	assert.Contains(t, decoded, "behaviors")
	assert.Contains(t, decoded, "metadata")
	assert.Contains(t, decoded, "search")
}

func TestFieldNodeOmitsOptionalKeys(t *testing.T) {
	f := ast.FieldNode{
		Name:       "id",
		Kind:       ast.KindStored,
		Attributes: nil,
		Loc:        ast.SourceLocation{File: "a.m3l.md", Line: 1, Col: 1},
	}

	out, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))

	assert.Contains(t, decoded, "arrayItemNullable")
	assert.Contains(t, decoded, "nullable")
	assert.Contains(t, decoded, "array")
	assert.NotContains(t, decoded, "type")
	assert.NotContains(t, decoded, "label")
	assert.NotContains(t, decoded, "defaultValue")
}
