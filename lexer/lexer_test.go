package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyulab/m3l-go/lexer"
)

func TestLexEmpty(t *testing.T) {
	tokens := lexer.Lex("")
	require.Len(t, tokens, 1)
	assert.Equal(t, lexer.Blank, tokens[0].Type)
}

func TestLexNamespace(t *testing.T) {
	tokens := lexer.Lex("# Namespace: sample.ecommerce")
	require.Len(t, tokens, 1)
	assert.Equal(t, lexer.Namespace, tokens[0].Type)
	require.NotNil(t, tokens[0].Data.Name)
	assert.Equal(t, "sample.ecommerce", *tokens[0].Data.Name)
	assert.True(t, tokens[0].Data.IsDirective)
}

func TestLexModel(t *testing.T) {
	tokens := lexer.Lex("## User : BaseModel")
	require.Len(t, tokens, 1)
	assert.Equal(t, lexer.Model, tokens[0].Type)
	assert.Equal(t, "User", *tokens[0].Data.Name)
	assert.Equal(t, []string{"BaseModel"}, tokens[0].Data.Inherits)
}

func TestLexEnumTypeIndicator(t *testing.T) {
	tokens := lexer.Lex("## Status ::enum")
	require.Len(t, tokens, 1)
	assert.Equal(t, lexer.Enum, tokens[0].Type)
	assert.Equal(t, "Status", *tokens[0].Data.Name)
}

func TestLexField(t *testing.T) {
	tokens := lexer.Lex("- email: string @required")
	require.Len(t, tokens, 1)
	tok := tokens[0]
	assert.Equal(t, lexer.Field, tok.Type)
	assert.Equal(t, "email", *tok.Data.Name)
	assert.Equal(t, "string", *tok.Data.TypeName)
	require.Len(t, tok.Data.Attributes, 1)
	assert.Equal(t, "required", tok.Data.Attributes[0].Name)
}

func TestLexSection(t *testing.T) {
	tokens := lexer.Lex("### Indexes")
	require.Len(t, tokens, 1)
	assert.Equal(t, lexer.Section, tokens[0].Type)
	assert.Equal(t, "Indexes", *tokens[0].Data.Name)
	assert.False(t, tokens[0].Data.KindSection)
}

func TestLexKindSection(t *testing.T) {
	tokens := lexer.Lex("### Lookup")
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].Data.KindSection)
}

func TestLexHorizontalRule(t *testing.T) {
	tokens := lexer.Lex("---")
	require.Len(t, tokens, 1)
	assert.Equal(t, lexer.HorizontalRule, tokens[0].Type)
}

func TestLexBlockquoteModelLevel(t *testing.T) {
	tokens := lexer.Lex("> A description")
	require.Len(t, tokens, 1)
	assert.Equal(t, lexer.Blockquote, tokens[0].Type)
	assert.Equal(t, "A description", *tokens[0].Data.Name)
}

func TestLexIndentedBlockquoteAttachesToField(t *testing.T) {
	tokens := lexer.Lex("- name: string\n  > a longer description")
	require.Len(t, tokens, 1)
	require.NotNil(t, tokens[0].Data.BlockquoteDesc)
	assert.Equal(t, "a longer description", *tokens[0].Data.BlockquoteDesc)
}

func TestLexNestedItem(t *testing.T) {
	tokens := lexer.Lex("- addr: object\n  - city: string")
	require.Len(t, tokens, 2)
	assert.Equal(t, lexer.NestedItem, tokens[1].Type)
	assert.Equal(t, 2, tokens[1].Indent)
}

func TestLexImportDirective(t *testing.T) {
	tokens := lexer.Lex(`@import "shared/base.m3l.md"`)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].Data.IsImport)
	assert.Equal(t, "shared/base.m3l.md", *tokens[0].Data.ImportPath)
}

func TestLexDefaultValueTypes(t *testing.T) {
	cases := map[string]struct {
		line     string
		wantType string
		wantDV   string
	}{
		"quoted":     {`- status: string = "active"`, "string", `"active"`},
		"call_expr":  {"- total: decimal(10,2) = round(x)", "decimal", "round(x)"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tokens := lexer.Lex(tc.line)
			require.Len(t, tokens, 1)
			require.NotNil(t, tokens[0].Data.TypeName)
			assert.Equal(t, tc.wantType, *tokens[0].Data.TypeName)
			require.NotNil(t, tokens[0].Data.DefaultValue)
			assert.Equal(t, tc.wantDV, *tokens[0].Data.DefaultValue)
		})
	}
}

func TestParseTypeAndAttrsNullabilityEncoding(t *testing.T) {
	cases := map[string]struct {
		rest                  string
		nullable, array, item bool
	}{
		"plain":         {"string", false, false, false},
		"nullable":      {"string?", true, false, false},
		"array":         {"string[]", false, true, false},
		"nullable_arr":  {"string[]?", true, true, false},
		"item_nullable": {"string?[]", false, true, true},
		"both_nullable": {"string?[]?", true, true, true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			data := lexer.ParseTypeAndAttrs(tc.rest)
			assert.Equal(t, tc.nullable, data.Nullable, "nullable")
			assert.Equal(t, tc.array, data.Array, "array")
			assert.Equal(t, tc.item, data.ArrayItemNullable, "arrayItemNullable")
		})
	}
}

func TestParseTypeAndAttrsCascadeMarker(t *testing.T) {
	data := lexer.ParseTypeAndAttrs("identifier @reference(Customer)!")
	require.Len(t, data.Attributes, 1)
	require.NotNil(t, data.Attributes[0].Cascade)
	assert.Equal(t, "!", *data.Attributes[0].Cascade)
}

func TestParseTypeAndAttrsTrailingDescription(t *testing.T) {
	data := lexer.ParseTypeAndAttrs(`string @required "the user's email"`)
	require.NotNil(t, data.Description)
	assert.Equal(t, "the user's email", *data.Description)
}

func TestLexFencedCodeBlockAttachesToField(t *testing.T) {
	src := "- total: decimal @computed_raw\n```sql\nSELECT 1\n```"
	tokens := lexer.Lex(src)
	require.Len(t, tokens, 1)
	require.NotNil(t, tokens[0].Data.CodeBlock)
	assert.Equal(t, "SELECT 1", tokens[0].Data.CodeBlock.Content)
	assert.Equal(t, "sql", *tokens[0].Data.CodeBlock.Language)
}
