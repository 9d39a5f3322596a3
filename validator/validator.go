// Package validator walks a resolved AST applying the semantic and
// style rules of §4.5: reference integrity for rollup/lookup/relations,
// type resolution, view source validity, deprecation warnings, and
// (strict mode only) line-length, nesting-depth, and lookup-chain checks.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iyulab/m3l-go/ast"
	"github.com/iyulab/m3l-go/catalogs"
)

var reVia = regexp.MustCompile(`\bvia\s+(\w+)`)

// deprecatedCascadeAttrs lists attribute names superseded by the cascade
// marker suffix (!/!!/?) on an @reference attribute.
var deprecatedCascadeAttrs = []string{"cascade", "no_action", "set_null", "restrict"}

// Validate runs every rule against doc and returns the diagnostics found.
// It never mutates doc.
func Validate(doc *ast.AST, opts ast.ValidateOptions) ast.ValidateResult {
	modelMap := map[string]*ast.ModelNode{}
	for _, m := range doc.Models {
		modelMap[m.Name] = m
	}
	for _, v := range doc.Views {
		modelMap[v.Name] = v
	}

	definedNames := map[string]bool{}
	for _, m := range doc.Models {
		definedNames[m.Name] = true
	}
	for _, v := range doc.Views {
		definedNames[v.Name] = true
	}
	for _, e := range doc.Enums {
		definedNames[e.Name] = true
	}
	for _, i := range doc.Interfaces {
		definedNames[i.Name] = true
	}

	var errors, warnings []ast.Diagnostic

	for _, m := range doc.Models {
		validateRollupReferences(m, modelMap, &errors)
		validateLookupReferences(m, &errors)
	}

	for _, v := range doc.Views {
		validateViewSource(v, modelMap, &errors)
	}

	for _, m := range doc.Models {
		checkDuplicateFields(m, &errors)
	}

	for _, m := range doc.Models {
		validateFieldTypes(m.Source, m.Name, m.Fields, definedNames, &errors)
	}
	for _, v := range doc.Views {
		validateFieldTypes(v.Source, v.Name, v.Fields, definedNames, &errors)
	}

	for _, m := range doc.Models {
		checkDeprecatedSyntax(m.Source, m.Name, m.Fields, &warnings)
	}
	for _, v := range doc.Views {
		checkDeprecatedSyntax(v.Source, v.Name, v.Fields, &warnings)
	}

	for _, m := range doc.Models {
		validateRelationsReferences(m, &errors)
	}

	if len(doc.AttributeRegistry) > 0 {
		registry := map[string]ast.AttributeRegistryEntry{}
		for _, e := range doc.AttributeRegistry {
			registry[e.Name] = e
		}
		for _, m := range doc.Models {
			validateRegistryAttrs(m.Source, m.Name, m.Fields, registry, &warnings)
		}
		for _, v := range doc.Views {
			validateRegistryAttrs(v.Source, v.Name, v.Fields, registry, &warnings)
		}
	}

	if opts.Strict {
		for _, m := range doc.Models {
			checkFieldLineLength(m.Source, m.Name, m.Fields, &warnings)
		}
		for _, v := range doc.Views {
			checkFieldLineLength(v.Source, v.Name, v.Fields, &warnings)
		}
		for _, m := range doc.Models {
			checkLookupChainLength(m.Source, m.Name, m.Fields, &warnings)
		}
		for _, m := range doc.Models {
			checkNestingDepth(m.Source, m.Name, m.Fields, 1, &warnings)
		}
	}

	return ast.ValidateResult{Errors: errors, Warnings: warnings}
}

func errDiag(code, file string, line int, message string) ast.Diagnostic {
	return ast.Diagnostic{Code: code, Severity: ast.SeverityError, File: file, Line: line, Col: 1, Message: message}
}

func warnDiag(code, file string, line int, message string) ast.Diagnostic {
	return ast.Diagnostic{Code: code, Severity: ast.SeverityWarning, File: file, Line: line, Col: 1, Message: message}
}

func hasReferenceAttr(attrs []ast.FieldAttribute) bool {
	for _, a := range attrs {
		if a.Name == "reference" || a.Name == "fk" {
			return true
		}
	}
	return false
}

func findField(fields []*ast.FieldNode, name string) *ast.FieldNode {
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// validateRollupReferences implements M3L-E001: a @rollup field's target.fk
// must exist on the target model and carry @reference/@fk.
func validateRollupReferences(m *ast.ModelNode, modelMap map[string]*ast.ModelNode, errors *[]ast.Diagnostic) {
	for _, f := range m.Fields {
		if f.Kind != ast.KindRollup || f.Rollup == nil {
			continue
		}
		target, ok := modelMap[f.Rollup.Target]
		if !ok {
			*errors = append(*errors, errDiag("M3L-E001", m.Source, f.Loc.Line,
				fmt.Sprintf("rollup field %q references unknown model %q", f.Name, f.Rollup.Target)))
			continue
		}
		fkField := findField(target.Fields, f.Rollup.FK)
		if fkField == nil || !hasReferenceAttr(fkField.Attributes) {
			*errors = append(*errors, errDiag("M3L-E001", m.Source, f.Loc.Line,
				fmt.Sprintf("rollup field %q: %q.%q does not carry @reference/@fk", f.Name, f.Rollup.Target, f.Rollup.FK)))
		}
	}
}

// validateLookupReferences implements M3L-E002: a @lookup path's first
// segment must name a field on the enclosing model carrying @reference/@fk.
func validateLookupReferences(m *ast.ModelNode, errors *[]ast.Diagnostic) {
	for _, f := range m.Fields {
		if f.Kind != ast.KindLookup || f.Lookup == nil {
			continue
		}
		segments := strings.Split(f.Lookup.Path, ".")
		if len(segments) < 2 {
			continue
		}
		fkField := findField(m.Fields, segments[0])
		if fkField == nil || !hasReferenceAttr(fkField.Attributes) {
			*errors = append(*errors, errDiag("M3L-E002", m.Source, f.Loc.Line,
				fmt.Sprintf("lookup field %q: fk field %q does not carry @reference/@fk", f.Name, segments[0])))
		}
	}
}

// validateViewSource implements M3L-E004: a view's sourceDef.from must
// name a known model.
func validateViewSource(v *ast.ModelNode, modelMap map[string]*ast.ModelNode, errors *[]ast.Diagnostic) {
	if v.SourceDef == nil || v.SourceDef.From == nil {
		return
	}
	if _, ok := modelMap[*v.SourceDef.From]; !ok {
		*errors = append(*errors, errDiag("M3L-E004", v.Source, v.Line,
			fmt.Sprintf("view %q source references undefined model %q", v.Name, *v.SourceDef.From)))
	}
}

// checkDuplicateFields re-emits M3L-E006 during validation for defense in
// depth (the resolver already emits it once during merge).
func checkDuplicateFields(m *ast.ModelNode, errors *[]ast.Diagnostic) {
	seen := map[string]bool{}
	for _, f := range m.Fields {
		if seen[f.Name] {
			*errors = append(*errors, errDiag("M3L-E006", m.Source, f.Loc.Line,
				fmt.Sprintf("duplicate field %q in %q", f.Name, m.Name)))
			continue
		}
		seen[f.Name] = true
	}
}

func isKnownType(typeName string, definedNames map[string]bool) bool {
	if catalogs.IsType(typeName) {
		return true
	}
	if definedNames[typeName] {
		return true
	}
	if dot := strings.LastIndexByte(typeName, '.'); dot >= 0 {
		return definedNames[typeName[dot+1:]]
	}
	return false
}

// validateFieldTypes implements M3L-E009, recursing into nested fields.
func validateFieldTypes(file, owner string, fields []*ast.FieldNode, definedNames map[string]bool, errors *[]ast.Diagnostic) {
	for _, f := range fields {
		if f.FieldType != nil && !isKnownType(*f.FieldType, definedNames) {
			*errors = append(*errors, errDiag("M3L-E009", file, f.Loc.Line,
				fmt.Sprintf("field %q in %q has undefined type %q", f.Name, owner, *f.FieldType)))
		}
		if len(f.Fields) > 0 {
			validateFieldTypes(file, owner, f.Fields, definedNames, errors)
		}
	}
}

// checkDeprecatedSyntax implements M3L-W003, recursing into nested fields.
func checkDeprecatedSyntax(file, owner string, fields []*ast.FieldNode, warnings *[]ast.Diagnostic) {
	for _, f := range fields {
		if f.FieldType != nil && *f.FieldType == "datetime" {
			*warnings = append(*warnings, warnDiag("M3L-W003", file, f.Loc.Line,
				fmt.Sprintf("field %q in %q uses deprecated type \"datetime\" — use \"timestamp\" instead", f.Name, owner)))
		}
		for _, a := range f.Attributes {
			if isDeprecatedCascadeAttr(a.Name) {
				*warnings = append(*warnings, warnDiag("M3L-W003", file, f.Loc.Line,
					fmt.Sprintf("Deprecated attribute \"@%s\" in field \"%s\" — use @reference symbol suffix (!/?/!!) or extended format instead", a.Name, f.Name)))
			}
		}
		if len(f.Fields) > 0 {
			checkDeprecatedSyntax(file, owner, f.Fields, warnings)
		}
	}
}

func isDeprecatedCascadeAttr(name string) bool {
	for _, d := range deprecatedCascadeAttrs {
		if d == name {
			return true
		}
	}
	return false
}

// validateRelationsReferences implements M3L-E010. Only entries whose raw
// text contains '>' are treated as relation declarations; the FK field
// name comes from a "from" key or, failing that, a "via <field>" match in
// the raw text.
func validateRelationsReferences(m *ast.ModelNode, errors *[]ast.Diagnostic) {
	for _, entry := range m.Sections.Relations {
		raw, _ := entry["raw"].(string)
		if !strings.Contains(raw, ">") {
			continue
		}

		var fkName string
		if from, ok := entry["from"].(string); ok {
			fkName = from
		} else if vm := reVia.FindStringSubmatch(raw); vm != nil {
			fkName = vm[1]
		} else {
			continue
		}

		fkField := findField(m.Fields, fkName)
		if fkField == nil || !hasReferenceAttr(fkField.Attributes) {
			*errors = append(*errors, errDiag("M3L-E010", m.Source, m.Line,
				fmt.Sprintf("relation in %q references field %q which does not carry @reference/@fk", m.Name, fkName)))
		}
	}
}

// validateRegistryAttrs implements M3L-W005/W006, recursing into nested
// fields: registered-type mismatch and declared-range violation.
func validateRegistryAttrs(file, owner string, fields []*ast.FieldNode, registry map[string]ast.AttributeRegistryEntry, warnings *[]ast.Diagnostic) {
	for _, f := range fields {
		for _, a := range f.Attributes {
			reg, ok := registry[a.Name]
			if !ok || len(a.Args) == 0 {
				continue
			}
			arg := a.Args[0]

			switch {
			case reg.AttrType == "number" && arg.IsString():
				*warnings = append(*warnings, warnDiag("M3L-W005", file, f.Loc.Line,
					fmt.Sprintf("attribute @%s on field %q expects a number argument, got a string", a.Name, f.Name)))
			case reg.AttrType == "string" && arg.IsNumber():
				*warnings = append(*warnings, warnDiag("M3L-W005", file, f.Loc.Line,
					fmt.Sprintf("attribute @%s on field %q expects a string argument, got a number", a.Name, f.Name)))
			}

			if reg.Range != nil && arg.IsNumber() {
				v := arg.NumberValue()
				if v < reg.Range[0] || v > reg.Range[1] {
					*warnings = append(*warnings, warnDiag("M3L-W006", file, f.Loc.Line,
						fmt.Sprintf("attribute @%s on field %q: value %v outside declared range [%v, %v]", a.Name, f.Name, v, reg.Range[0], reg.Range[1])))
				}
			}
		}
		if len(f.Fields) > 0 {
			validateRegistryAttrs(file, owner, f.Fields, registry, warnings)
		}
	}
}

// checkFieldLineLength implements M3L-W001 (strict mode): the rendered
// field-line length formula of §4.5.
func checkFieldLineLength(file, owner string, fields []*ast.FieldNode, warnings *[]ast.Diagnostic) {
	for _, f := range fields {
		length := 2 + len(f.Name)
		if f.Label != nil {
			length += len(*f.Label) + 2
		}
		if f.FieldType != nil {
			length += 2 + len(*f.FieldType)
		}
		if f.Nullable {
			length++
		}
		if f.DefaultValue != nil {
			length += 3 + len(*f.DefaultValue)
		}
		for _, a := range f.Attributes {
			length += 2 + len(a.Name)
		}
		if f.Description != nil {
			length += 3 + len(*f.Description)
		}

		if length > 80 {
			*warnings = append(*warnings, warnDiag("M3L-W001", file, f.Loc.Line,
				fmt.Sprintf("field %q in %q renders to approximately %d characters (> 80)", f.Name, owner, length)))
		}
	}
}

// checkLookupChainLength implements M3L-W004 (strict mode): a lookup path
// with more than 3 segments.
func checkLookupChainLength(file, owner string, fields []*ast.FieldNode, warnings *[]ast.Diagnostic) {
	for _, f := range fields {
		if f.Kind == ast.KindLookup && f.Lookup != nil {
			segments := strings.Split(f.Lookup.Path, ".")
			if len(segments) > 3 {
				*warnings = append(*warnings, warnDiag("M3L-W004", file, f.Loc.Line,
					fmt.Sprintf("lookup field %q in %q chains %d segments (> 3)", f.Name, owner, len(segments))))
			}
		}
	}
}

// checkNestingDepth implements M3L-W002 (strict mode): object nesting
// deeper than 3 levels, starting at depth 1 for top-level fields.
func checkNestingDepth(file, owner string, fields []*ast.FieldNode, depth int, warnings *[]ast.Diagnostic) {
	for _, f := range fields {
		if len(f.Fields) == 0 {
			continue
		}
		if depth+1 > 3 {
			*warnings = append(*warnings, warnDiag("M3L-W002", file, f.Loc.Line,
				fmt.Sprintf("field %q in %q nests objects %d levels deep (> 3)", f.Name, owner, depth+1)))
		}
		checkNestingDepth(file, owner, f.Fields, depth+1, warnings)
	}
}
