// Package facade exposes the three pipeline entry points of §6.1
// (parseOne, resolve, validate) plus the JSON-wrapped functions used by
// external bindings. It is the only package outside the core that knows
// about all four pipeline stages.
package facade

import (
	"encoding/json"
	"errors"

	"github.com/iyulab/m3l-go/ast"
	"github.com/iyulab/m3l-go/parser"
	"github.com/iyulab/m3l-go/resolver"
	"github.com/iyulab/m3l-go/validator"
)

// ErrInternalPanic is the sentinel recovered panics are wrapped in before
// crossing a JSON façade boundary (§7: "out-of-band wrapper failures").
var ErrInternalPanic = errors.New("Internal parser panic")

// SourceFile is one (content, filename) pair, matching the filesJson shape
// accepted by parseMultiToJson.
type SourceFile struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

// ParseOne lexes and parses a single file into a ParsedFile.
func ParseOne(content, filename string) *ast.ParsedFile {
	return parser.ParseString(content, filename)
}

// Resolve merges ParsedFiles into a resolved AST.
func Resolve(files []*ast.ParsedFile, projectInfo *ast.ProjectInfo) *ast.AST {
	return resolver.Resolve(files, projectInfo)
}

// RunValidate runs the validator against a resolved AST.
func RunValidate(doc *ast.AST, opts ast.ValidateOptions) ast.ValidateResult {
	return validator.Validate(doc, opts)
}

type jsonResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func marshalResult(data any, err error) string {
	if err != nil {
		out, _ := json.Marshal(jsonResult{Success: false, Error: err.Error()})
		return string(out)
	}
	out, marshalErr := json.Marshal(jsonResult{Success: true, Data: data})
	if marshalErr != nil {
		fallback, _ := json.Marshal(jsonResult{Success: false, Error: marshalErr.Error()})
		return string(fallback)
	}
	return string(out)
}

// recoverPanic must be called directly from each façade function's
// deferred closure — recover only has effect there, not when called one
// level removed in a helper the deferred closure merely invokes — and
// surfaces the exact phrase spec.md §6.1/§7 pins for the JSON contract,
// regardless of the recovered panic value.
func recoverPanic(result *string) {
	*result = marshalResult(nil, ErrInternalPanic)
}

// ParseToJSON parses and resolves a single file, returning
// {success, data?: AST, error?}.
func ParseToJSON(content, filename string) (result string) {
	defer func() {
		if recover() != nil {
			recoverPanic(&result)
		}
	}()

	parsed := ParseOne(content, filename)
	doc := Resolve([]*ast.ParsedFile{parsed}, nil)
	result = marshalResult(doc, nil)
	return
}

// ParseMultiToJSON parses and resolves several files supplied as JSON
// {content, filename} pairs, returning {success, data?: AST, error?}.
func ParseMultiToJSON(filesJSON string) (result string) {
	defer func() {
		if recover() != nil {
			recoverPanic(&result)
		}
	}()

	var files []SourceFile
	if err := json.Unmarshal([]byte(filesJSON), &files); err != nil {
		result = marshalResult(nil, err)
		return
	}

	parsed := make([]*ast.ParsedFile, 0, len(files))
	for _, f := range files {
		parsed = append(parsed, ParseOne(f.Content, f.Filename))
	}

	doc := Resolve(parsed, nil)
	result = marshalResult(doc, nil)
	return
}

type validateOptionsJSON struct {
	Strict   bool    `json:"strict"`
	Filename *string `json:"filename"`
}

// ValidateToJSON parses, resolves, and validates a single file, returning
// {success, data?: {errors, warnings}, error?}. optionsJSON is
// {strict?: bool, filename?: string}; the default filename is
// "input.m3l.md".
func ValidateToJSON(content, optionsJSON string) (result string) {
	defer func() {
		if recover() != nil {
			recoverPanic(&result)
		}
	}()

	opts := validateOptionsJSON{}
	if optionsJSON != "" {
		if err := json.Unmarshal([]byte(optionsJSON), &opts); err != nil {
			result = marshalResult(nil, err)
			return
		}
	}

	filename := "input.m3l.md"
	if opts.Filename != nil {
		filename = *opts.Filename
	}

	parsed := ParseOne(content, filename)
	doc := Resolve([]*ast.ParsedFile{parsed}, nil)
	validated := RunValidate(doc, ast.ValidateOptions{Strict: opts.Strict})

	result = marshalResult(validated, nil)
	return
}
