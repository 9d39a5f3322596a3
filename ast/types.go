// Package ast defines the resolved M3L abstract syntax tree: the
// serializable shape produced by resolve and consumed by validate and by
// every external collaborator (§3, §6 of the compiler specification). The
// resolved AST owns every entity it contains; parsed-file intermediates are
// consumed by the resolver and discarded.
package ast

import "encoding/json"

// SourceLocation pins an entity to a byte-for-byte reproducible position in
// the caller-supplied source text.
type SourceLocation struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

// ProjectInfo carries an optional project name/version, either supplied by
// the caller or inferred by the resolver from the first file's namespace.
type ProjectInfo struct {
	Name    *string `json:"name,omitempty"`
	Version *string `json:"version,omitempty"`
}

// AttrArgValue is the tagged union string | number | bool used for
// attribute arguments. It marshals as the bare scalar, never as a wrapper
// object, matching the Rust `#[serde(untagged)]` union it is grounded on.
type AttrArgValue struct {
	kind argKind
	str  string
	num  float64
	flag bool
}

type argKind int

const (
	argString argKind = iota
	argNumber
	argBool
)

func NewStringArg(s string) AttrArgValue { return AttrArgValue{kind: argString, str: s} }
func NewNumberArg(n float64) AttrArgValue { return AttrArgValue{kind: argNumber, num: n} }
func NewBoolArg(b bool) AttrArgValue      { return AttrArgValue{kind: argBool, flag: b} }

// IsString, IsNumber, and IsBool report the concrete variant held.
func (v AttrArgValue) IsString() bool { return v.kind == argString }
func (v AttrArgValue) IsNumber() bool { return v.kind == argNumber }
func (v AttrArgValue) IsBool() bool   { return v.kind == argBool }

// StringValue, NumberValue, and BoolValue return the held value; the caller
// must check the matching Is* predicate first.
func (v AttrArgValue) StringValue() string  { return v.str }
func (v AttrArgValue) NumberValue() float64 { return v.num }
func (v AttrArgValue) BoolValue() bool      { return v.flag }

func (v AttrArgValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case argString:
		return json.Marshal(v.str)
	case argNumber:
		return json.Marshal(v.num)
	case argBool:
		return json.Marshal(v.flag)
	}

	return json.Marshal(v.str)
}

func (v *AttrArgValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch x := raw.(type) {
	case string:
		*v = NewStringArg(x)
	case float64:
		*v = NewNumberArg(x)
	case bool:
		*v = NewBoolArg(x)
	}

	return nil
}

// ParamValue is the tagged union string | number used for fixed-arity type
// parameters, e.g. the 10 and 2 in decimal(10,2).
type ParamValue struct {
	isNumber bool
	str      string
	num      float64
}

func NewStringParam(s string) ParamValue { return ParamValue{str: s} }
func NewNumberParam(n float64) ParamValue { return ParamValue{isNumber: true, num: n} }

func (p ParamValue) IsNumber() bool    { return p.isNumber }
func (p ParamValue) StringValue() string { return p.str }
func (p ParamValue) NumberValue() float64 { return p.num }

func (p ParamValue) MarshalJSON() ([]byte, error) {
	if p.isNumber {
		return json.Marshal(p.num)
	}

	return json.Marshal(p.str)
}

func (p *ParamValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch x := raw.(type) {
	case float64:
		*p = NewNumberParam(x)
	case string:
		*p = NewStringParam(x)
	}

	return nil
}

// FieldKind classifies how a field's value is produced.
type FieldKind string

const (
	KindStored   FieldKind = "stored"
	KindComputed FieldKind = "computed"
	KindLookup   FieldKind = "lookup"
	KindRollup   FieldKind = "rollup"
)

// FieldAttribute is a resolved attribute attached to a field or model:
// a raw `@name(args) cascade` occurrence, tagged with whether it is a
// standard (catalog) attribute and whether the resolver matched it against
// the project's attribute registry.
type FieldAttribute struct {
	Name         string         `json:"name"`
	Args         []AttrArgValue `json:"args,omitempty"`
	Cascade      *string        `json:"cascade,omitempty"`
	IsStandard   *bool          `json:"isStandard,omitempty"`
	IsRegistered *bool          `json:"isRegistered,omitempty"`
}

// CustomAttributeParsed is the best-effort decode of a backtick-bracketed
// framework attribute's name and arguments.
type CustomAttributeParsed struct {
	Name      string         `json:"name"`
	Arguments []AttrArgValue `json:"arguments"`
}

// CustomAttribute is an opaque pass-through attribute captured verbatim
// between backtick-brackets, e.g. `` `[ts: "readonly"]` ``.
type CustomAttribute struct {
	Content string                  `json:"content"`
	Raw     string                  `json:"raw"`
	Parsed  *CustomAttributeParsed `json:"parsed,omitempty"`
}

// EnumValue is one member of an enum, or one inline enum value on a field.
type EnumValue struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	ValueType   *string `json:"type,omitempty"`
	Value       any     `json:"value,omitempty"`
}

// LookupDef records the dotted FK path a @lookup field resolves through.
type LookupDef struct {
	Path string `json:"path"`
}

// RollupDef records the target model, FK field, and aggregate function a
// @rollup field computes over.
type RollupDef struct {
	Target    string  `json:"target"`
	FK        string  `json:"fk"`
	Aggregate string  `json:"aggregate"`
	Field     *string `json:"field,omitempty"`
	Where     *string `json:"where,omitempty"`
}

// ComputedDef records a @computed or @computed_raw expression and its
// optional platform hint.
type ComputedDef struct {
	Expression string  `json:"expression"`
	Platform   *string `json:"platform,omitempty"`
}

// DefaultValueType distinguishes a literal default from an expression that
// must be evaluated by a downstream code generator.
type DefaultValueType string

const (
	DefaultLiteral    DefaultValueType = "literal"
	DefaultExpression DefaultValueType = "expression"
)

// FieldNode is the central entity of the AST: one field of a model, view,
// interface, or nested object.
type FieldNode struct {
	Name              string            `json:"name"`
	Label             *string           `json:"label,omitempty"`
	FieldType         *string           `json:"type,omitempty"`
	Params            []ParamValue      `json:"params,omitempty"`
	GenericParams     []string          `json:"genericParams,omitempty"`
	Nullable          bool              `json:"nullable"`
	Array             bool              `json:"array"`
	ArrayItemNullable bool              `json:"arrayItemNullable"`
	Kind              FieldKind         `json:"kind"`
	DefaultValue      *string           `json:"defaultValue,omitempty"`
	DefaultValueType  *DefaultValueType `json:"defaultValueType,omitempty"`
	Description       *string           `json:"description,omitempty"`
	Attributes        []FieldAttribute  `json:"attributes"`
	FrameworkAttrs    []CustomAttribute `json:"frameworkAttrs,omitempty"`
	Lookup            *LookupDef        `json:"lookup,omitempty"`
	Rollup            *RollupDef        `json:"rollup,omitempty"`
	Computed          *ComputedDef      `json:"computed,omitempty"`
	EnumValues        []EnumValue       `json:"enumValues,omitempty"`
	Fields            []*FieldNode      `json:"fields,omitempty"`
	Loc               SourceLocation    `json:"loc"`
}

// ModelType distinguishes the four element shapes that can be declared
// with an H2 heading.
type ModelType string

const (
	ModelTypeModel     ModelType = "model"
	ModelTypeEnum      ModelType = "enum"
	ModelTypeInterface ModelType = "interface"
	ModelTypeView      ModelType = "view"
)

// JoinDef is one entry of a view's source-definition join list.
type JoinDef struct {
	Model string `json:"model"`
	On    string `json:"on"`
}

// ViewSourceDef is the `### Source` section of a view.
type ViewSourceDef struct {
	From         *string   `json:"from,omitempty"`
	Joins        []JoinDef `json:"joins,omitempty"`
	Where        *string   `json:"where,omitempty"`
	OrderBy      *string   `json:"orderBy,omitempty"`
	GroupBy      []string  `json:"groupBy,omitempty"`
	RawSQL       *string   `json:"rawSql,omitempty"`
	LanguageHint *string   `json:"languageHint,omitempty"`
}

// RefreshDef is the `### Refresh` section of a materialized view.
type RefreshDef struct {
	Strategy string  `json:"strategy"`
	Interval *string `json:"interval,omitempty"`
}

// Sections holds a model's four fixed directive buckets plus any custom
// named buckets, flattened alongside them in JSON.
type Sections struct {
	Indexes   []map[string]any          `json:"indexes"`
	Relations []map[string]any          `json:"relations"`
	Behaviors []map[string]any          `json:"behaviors"`
	Metadata  map[string]any            `json:"metadata"`
	Custom    map[string][]map[string]any `json:"-"`
}

// NewSections returns an empty Sections with its fixed buckets initialized.
func NewSections() Sections {
	return Sections{
		Indexes:   []map[string]any{},
		Relations: []map[string]any{},
		Behaviors: []map[string]any{},
		Metadata:  map[string]any{},
		Custom:    map[string][]map[string]any{},
	}
}

// MarshalJSON flattens Custom alongside the four fixed buckets, matching
// the Rust `#[serde(flatten)]` behavior on Sections.Custom.
func (s Sections) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"indexes":   s.Indexes,
		"relations": s.Relations,
		"behaviors": s.Behaviors,
		"metadata":  s.Metadata,
	}

	for name, entries := range s.Custom {
		out[name] = entries
	}

	return json.Marshal(out)
}

// ModelNode represents a model, interface, or view declared with an H2
// heading.
type ModelNode struct {
	Name         string         `json:"name"`
	Label        *string        `json:"label,omitempty"`
	Type         ModelType      `json:"type"`
	Source       string         `json:"source"`
	Line         int            `json:"line"`
	Inherits     []string       `json:"inherits"`
	Description  *string        `json:"description,omitempty"`
	Attributes   []FieldAttribute `json:"attributes"`
	Fields       []*FieldNode   `json:"fields"`
	Sections     Sections       `json:"sections"`
	Materialized *bool          `json:"materialized,omitempty"`
	SourceDef    *ViewSourceDef `json:"sourceDef,omitempty"`
	Refresh      *RefreshDef    `json:"refresh,omitempty"`
	Loc          SourceLocation `json:"loc"`
}

// EnumNode represents a standalone enum declared with `## Name ::enum`.
type EnumNode struct {
	Name        string         `json:"name"`
	Label       *string        `json:"label,omitempty"`
	Type        ModelType      `json:"type"`
	Source      string         `json:"source"`
	Line        int            `json:"line"`
	Inherits    []string       `json:"inherits"`
	Description *string        `json:"description,omitempty"`
	Values      []EnumValue    `json:"values"`
	Loc         SourceLocation `json:"loc"`
}

// DiagnosticSeverity classifies a diagnostic as blocking or advisory.
type DiagnosticSeverity string

const (
	SeverityError   DiagnosticSeverity = "error"
	SeverityWarning DiagnosticSeverity = "warning"
)

// Diagnostic is one error or warning produced anywhere in the pipeline.
type Diagnostic struct {
	Code     string             `json:"code"`
	Severity DiagnosticSeverity `json:"severity"`
	File     string             `json:"file"`
	Line     int                `json:"line"`
	Col      int                `json:"col"`
	Message  string             `json:"message"`
}

// AttributeRegistryEntry describes a custom attribute declared with
// `## name ::attribute`, used by the validator to type- and range-check
// its usages.
type AttributeRegistryEntry struct {
	Name         string         `json:"name"`
	Description  *string        `json:"description,omitempty"`
	Target       []string       `json:"target"`
	AttrType     string         `json:"type"`
	Range        *[2]float64    `json:"range,omitempty"`
	Required     bool           `json:"required"`
	DefaultValue *AttrArgValue  `json:"defaultValue,omitempty"`
}

// ParsedFile is the per-file intermediate produced by the parser and
// consumed by the resolver. It is never serialized as final output.
type ParsedFile struct {
	Source            string
	Namespace         *string
	Models            []*ModelNode
	Enums             []*EnumNode
	Interfaces        []*ModelNode
	Views             []*ModelNode
	AttributeRegistry []AttributeRegistryEntry
	Imports           []string
}

// AST is the top-level resolved AST: the stable JSON shape consumed by
// every external collaborator.
type AST struct {
	ParserVersion     string                   `json:"parserVersion"`
	ASTVersion        string                   `json:"astVersion"`
	Project           ProjectInfo              `json:"project"`
	Sources           []string                 `json:"sources"`
	Models            []*ModelNode             `json:"models"`
	Enums             []*EnumNode              `json:"enums"`
	Interfaces        []*ModelNode             `json:"interfaces"`
	Views             []*ModelNode             `json:"views"`
	AttributeRegistry []AttributeRegistryEntry `json:"attributeRegistry"`
	Errors            []Diagnostic             `json:"errors"`
	Warnings          []Diagnostic             `json:"warnings"`
}

// ValidateOptions configures validate's strict-mode style checks.
type ValidateOptions struct {
	Strict bool
}

// ValidateResult is the diagnostic list produced by validate.
type ValidateResult struct {
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings"`
}
