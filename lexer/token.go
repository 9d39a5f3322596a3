package lexer

import "github.com/iyulab/m3l-go/ast"

// TokenType classifies one line (or fenced block) of source text.
type TokenType int

const (
	Namespace TokenType = iota
	Model
	Enum
	Interface
	View
	AttributeDef
	Section
	Field
	NestedItem
	Blockquote
	HorizontalRule
	Blank
	Text
)

// RawAttribute is an attribute as decoded straight off a source line,
// before the resolver has a chance to tag it isStandard/isRegistered.
type RawAttribute struct {
	Name    string
	Args    []ast.AttrArgValue
	Cascade *string
}

// CodeBlock is a fenced code block's language hint and dedented content,
// attached to the nearest preceding Field or Section token.
type CodeBlock struct {
	Language *string
	Content  string
}

// Data is the typed bag of fields a token may carry. Only the fields
// relevant to the token's kind are populated; the zero value otherwise.
type Data struct {
	Name        *string
	Label       *string
	Description *string
	Comment     *string

	Inherits     []string
	Attributes   []RawAttribute
	Materialized *bool

	TypeName          *string
	TypeParams        []ast.ParamValue
	TypeGenericParams []string
	Nullable          bool
	Array             bool
	ArrayItemNullable bool
	DefaultValue      *string
	IsDirective       bool
	IsImport          bool
	ImportPath        *string
	FrameworkAttrs    []string
	BlockquoteDesc    *string

	KindSection bool

	CodeBlock *CodeBlock

	Key   *string
	Value *string
}

// Token is one classified line of source text plus its decoded payload.
type Token struct {
	Type   TokenType
	Raw    string
	Line   int
	Indent int
	Data   Data
}

func strp(s string) *string { return &s }
