// Package catalogs holds the compile-time-initialized, immutable sets that
// the lexer, parser, and validator consult: known type names, standard
// attribute names, and section headings that switch the current field kind.
package catalogs

// TypeCatalog is the set of built-in M3L type names. A field type outside
// this set is treated as a reference to a model, enum, or interface defined
// elsewhere in the project.
var TypeCatalog = map[string]struct{}{
	// Primitives.
	"string":     {},
	"text":       {},
	"integer":    {},
	"long":       {},
	"decimal":    {},
	"float":      {},
	"boolean":    {},
	"date":       {},
	"time":       {},
	"timestamp":  {},
	"identifier": {},
	"binary":     {},
	// Semantic shorthands.
	"email":      {},
	"phone":      {},
	"url":        {},
	"money":      {},
	"percentage": {},
	// Structural.
	"object": {},
	"json":   {},
	"enum":   {},
	"map":    {},
	// Deprecated but still accepted.
	"datetime": {},
}

// IsType reports whether name is a known built-in type.
func IsType(name string) bool {
	_, ok := TypeCatalog[name]
	return ok
}

// StandardAttributes is the set of officially defined M3L attribute names.
var StandardAttributes = map[string]struct{}{
	// Field constraints.
	"primary":   {},
	"unique":    {},
	"required":  {},
	"index":     {},
	"generated": {},
	"immutable": {},
	// References / relations.
	"reference": {},
	"fk":        {},
	"relation":  {},
	"on_update": {},
	"on_delete": {},
	// Search / display.
	"searchable":  {},
	"description": {},
	"visibility":  {},
	// Validation.
	"min":      {},
	"max":      {},
	"validate": {},
	"not_null": {},
	// Derived fields.
	"computed":     {},
	"computed_raw": {},
	"lookup":       {},
	"rollup":       {},
	"from":         {},
	"persisted":    {},
	// Model-level.
	"public":            {},
	"private":           {},
	"materialized":      {},
	"meta":              {},
	"behavior":          {},
	"override":          {},
	"default_attribute": {},
}

// IsStandardAttribute reports whether name is one of the 31 standard
// attribute names.
func IsStandardAttribute(name string) bool {
	_, ok := StandardAttributes[name]
	return ok
}

// KindSections are the H3 heading texts that switch the current field kind
// for subsequent fields in the enclosing element.
var KindSections = map[string]struct{}{
	"Lookup":               {},
	"Rollup":               {},
	"Computed":             {},
	"Computed from Rollup": {},
}

// IsKindSection reports whether heading is a kind-changing section heading.
func IsKindSection(heading string) bool {
	_, ok := KindSections[heading]
	return ok
}

const (
	// ParserVersion is the stable parser version stamped onto every AST.
	ParserVersion = "0.4.0"
	// ASTVersion is the stable AST shape version stamped onto every AST.
	ASTVersion = "1.0"
)
