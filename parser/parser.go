// Package parser consumes a lexer token stream for one file and builds a
// ParsedFile (§4.3): models, enums, interfaces, views, attribute
// definitions, and import paths. State is a small tagged union — nothing,
// a model-under-construction, or an enum-under-construction — walked with
// one token at a time, never recursion through panics/exceptions.
package parser

import (
	"strings"

	"github.com/iyulab/m3l-go/ast"
	"github.com/iyulab/m3l-go/catalogs"
	"github.com/iyulab/m3l-go/lexer"
)

type elementKind int

const (
	elementNone elementKind = iota
	elementModel
	elementEnum
)

type attrDef struct {
	name        string
	description *string
	fields      map[string]string
}

type state struct {
	file              string
	namespace         *string
	kind              elementKind
	model             *ast.ModelNode
	enumNode          *ast.EnumNode
	currentSection    *string
	currentKind       ast.FieldKind
	lastFieldIdx      *int
	indexSentinel     bool // true when lastFieldIdx tracks an Indexes/Relations entry, not a field
	models            []*ast.ModelNode
	enums             []*ast.EnumNode
	interfaces        []*ast.ModelNode
	views             []*ast.ModelNode
	attributeRegistry []ast.AttributeRegistryEntry
	currentAttrDef    *attrDef
	sourceDirectivesDone bool
	imports           []string
}

// ParseString lexes and parses content, one file at a time.
func ParseString(content, file string) *ast.ParsedFile {
	tokens := lexer.Lex(content)
	return ParseTokens(tokens, file)
}

// ParseTokens parses an already-lexed token stream into a ParsedFile.
func ParseTokens(tokens []lexer.Token, file string) *ast.ParsedFile {
	st := &state{file: file, currentKind: ast.KindStored}

	for i := range tokens {
		processToken(&tokens[i], st)
	}
	finalizeElement(st)

	return &ast.ParsedFile{
		Source:            file,
		Namespace:         st.namespace,
		Models:            st.models,
		Enums:             st.enums,
		Interfaces:        st.interfaces,
		Views:             st.views,
		AttributeRegistry: st.attributeRegistry,
		Imports:           st.imports,
	}
}

func processToken(tok *lexer.Token, st *state) {
	switch tok.Type {
	case lexer.Namespace:
		handleNamespace(tok, st)
	case lexer.Model, lexer.Interface:
		handleModelStart(tok, st)
	case lexer.Enum:
		handleEnumStart(tok, st)
	case lexer.View:
		handleViewStart(tok, st)
	case lexer.AttributeDef:
		handleAttributeDefStart(tok, st)
	case lexer.Section:
		handleSection(tok, st)
	case lexer.Field:
		handleField(tok, st)
	case lexer.NestedItem:
		handleNestedItem(tok, st)
	case lexer.Blockquote:
		handleBlockquote(tok, st)
	case lexer.Text:
		handleText(tok, st)
	case lexer.HorizontalRule, lexer.Blank:
	}
}

func handleNamespace(tok *lexer.Token, st *state) {
	if st.kind == elementNone && tok.Data.IsDirective {
		st.namespace = tok.Data.Name
	}
}

func loc(file string, line int) ast.SourceLocation {
	return ast.SourceLocation{File: file, Line: line, Col: 1}
}

func handleModelStart(tok *lexer.Token, st *state) {
	finalizeElement(st)

	modelType := ast.ModelTypeModel
	if tok.Type == lexer.Interface {
		modelType = ast.ModelTypeInterface
	}

	name := ""
	if tok.Data.Name != nil {
		name = *tok.Data.Name
	}

	model := &ast.ModelNode{
		Name:       name,
		Label:      tok.Data.Label,
		Type:       modelType,
		Source:     st.file,
		Line:       tok.Line,
		Inherits:   tok.Data.Inherits,
		Attributes: parseRawAttributes(tok.Data.Attributes),
		Fields:     nil,
		Sections:   ast.NewSections(),
		Loc:        loc(st.file, tok.Line),
	}

	st.kind = elementModel
	st.model = model
	st.currentSection = nil
	st.currentKind = ast.KindStored
	st.lastFieldIdx = nil
	st.sourceDirectivesDone = false
}

func handleEnumStart(tok *lexer.Token, st *state) {
	finalizeElement(st)

	name := ""
	if tok.Data.Name != nil {
		name = *tok.Data.Name
	}

	st.enumNode = &ast.EnumNode{
		Name:        name,
		Label:       tok.Data.Label,
		Type:        ast.ModelTypeEnum,
		Source:      st.file,
		Line:        tok.Line,
		Inherits:    tok.Data.Inherits,
		Description: tok.Data.Description,
		Loc:         loc(st.file, tok.Line),
	}
	st.kind = elementEnum
	st.currentSection = nil
	st.currentKind = ast.KindStored
	st.lastFieldIdx = nil
}

func handleViewStart(tok *lexer.Token, st *state) {
	finalizeElement(st)

	materialized := false
	if tok.Data.Materialized != nil {
		materialized = *tok.Data.Materialized
	}

	name := ""
	if tok.Data.Name != nil {
		name = *tok.Data.Name
	}

	view := &ast.ModelNode{
		Name:         name,
		Label:        tok.Data.Label,
		Type:         ast.ModelTypeView,
		Source:       st.file,
		Line:         tok.Line,
		Inherits:     nil,
		Attributes:   nil,
		Materialized: &materialized,
		Fields:       nil,
		Sections:     ast.NewSections(),
		Loc:          loc(st.file, tok.Line),
	}

	st.kind = elementModel
	st.model = view
	st.currentSection = nil
	st.currentKind = ast.KindStored
	st.lastFieldIdx = nil
	st.sourceDirectivesDone = false
}

func handleSection(tok *lexer.Token, st *state) {
	sectionName := ""
	if tok.Data.Name != nil {
		sectionName = *tok.Data.Name
	}

	if tok.Data.KindSection {
		if st.kind == elementNone {
			return
		}
		lower := strings.ToLower(sectionName)
		switch {
		case strings.HasPrefix(lower, "lookup"):
			st.currentKind = ast.KindLookup
		case strings.HasPrefix(lower, "rollup"):
			st.currentKind = ast.KindRollup
		case strings.HasPrefix(lower, "computed"):
			st.currentKind = ast.KindComputed
		}
		st.currentSection = nil
		st.lastFieldIdx = nil
		return
	}

	st.currentSection = &sectionName
	st.lastFieldIdx = nil

	if sectionName == "Source" && st.kind == elementModel && st.model.Type == ast.ModelTypeView {
		st.sourceDirectivesDone = false
		if tok.Data.CodeBlock != nil {
			sd := ensureSourceDef(st.model)
			sd.RawSQL = strp2(tok.Data.CodeBlock.Content)
			sd.LanguageHint = tok.Data.CodeBlock.Language
		}
	}
}

func ensureSourceDef(model *ast.ModelNode) *ast.ViewSourceDef {
	if model.SourceDef == nil {
		model.SourceDef = &ast.ViewSourceDef{}
	}
	return model.SourceDef
}

func strp2(s string) *string { return &s }

func handleField(tok *lexer.Token, st *state) {
	if st.currentAttrDef != nil {
		name := ""
		if tok.Data.Name != nil {
			name = *tok.Data.Name
		}
		raw := strings.TrimPrefix(strings.TrimSpace(tok.Raw), "- ")
		if idx := strings.IndexByte(raw, ':'); idx >= 0 {
			st.currentAttrDef.fields[name] = strings.TrimSpace(raw[idx+1:])
		}
		return
	}

	switch st.kind {
	case elementNone:
	case elementEnum:
		handleEnumFieldLine(tok, st)
	case elementModel:
		if tok.Data.IsDirective {
			handleDirective(&tok.Data, st.model, tok, st.file)
			return
		}
		if st.currentSection != nil {
			section := *st.currentSection
			handleSectionItem(&tok.Data, st.model, tok, st.file, section, st.currentKind, st)
			return
		}

		field := buildFieldNode(&tok.Data, tok, st.file, st.currentKind)
		st.model.Fields = append(st.model.Fields, field)
		idx := len(st.model.Fields) - 1
		st.lastFieldIdx = &idx
		st.indexSentinel = false
	}
}

var quoteStrPrefixSuffix = "\""

func unquoteDouble(s string) (string, bool) {
	if len(s) >= 2 && strings.HasPrefix(s, quoteStrPrefixSuffix) && strings.HasSuffix(s, quoteStrPrefixSuffix) {
		return s[1 : len(s)-1], true
	}
	return s, false
}

func handleEnumFieldLine(tok *lexer.Token, st *state) {
	name := ""
	if tok.Data.Name != nil {
		name = *tok.Data.Name
	}
	ev := ast.EnumValue{Name: name, Description: tok.Data.Description}

	if tok.Data.TypeName != nil && *tok.Data.TypeName != "enum" {
		if unq, ok := unquoteDouble(*tok.Data.TypeName); ok {
			ev.Description = strp2(unq)
		} else {
			ev.ValueType = tok.Data.TypeName
		}
	}
	if tok.Data.DefaultValue != nil {
		ev.Value = *tok.Data.DefaultValue
	}
	if ev.Description == nil && tok.Data.TypeName != nil {
		if unq, ok := unquoteDouble(*tok.Data.TypeName); ok {
			ev.Description = strp2(unq)
			ev.ValueType = nil
		}
	}

	st.enumNode.Values = append(st.enumNode.Values, ev)
}

func handleBlockquote(tok *lexer.Token, st *state) {
	text := ""
	if tok.Data.Name != nil {
		text = *tok.Data.Name
	}

	if st.currentAttrDef != nil {
		st.currentAttrDef.description = strp2(text)
		return
	}

	switch st.kind {
	case elementNone:
	case elementEnum:
		appendDesc(&st.enumNode.Description, text)
	case elementModel:
		if st.lastFieldIdx != nil && !st.indexSentinel && *st.lastFieldIdx < len(st.model.Fields) {
			f := st.model.Fields[*st.lastFieldIdx]
			appendDesc(&f.Description, text)
			return
		}
		appendDesc(&st.model.Description, text)
	}
}

func appendDesc(field **string, text string) {
	if *field != nil {
		joined := **field + "\n" + text
		*field = &joined
	} else {
		*field = strp2(text)
	}
}

func handleText(tok *lexer.Token, st *state) {
	if tok.Data.IsImport {
		if tok.Data.ImportPath != nil {
			st.imports = append(st.imports, *tok.Data.ImportPath)
		}
		return
	}

	if st.kind == elementModel && len(st.model.Fields) == 0 {
		text := ""
		if tok.Data.Name != nil {
			text = *tok.Data.Name
		}
		if text != "" && st.model.Description == nil {
			st.model.Description = strp2(text)
		}
	}
}

func finalizeElement(st *state) {
	finalizeAttrDef(st)

	switch st.kind {
	case elementEnum:
		st.enums = append(st.enums, st.enumNode)
	case elementModel:
		switch st.model.Type {
		case ast.ModelTypeInterface:
			st.interfaces = append(st.interfaces, st.model)
		case ast.ModelTypeView:
			st.views = append(st.views, st.model)
		default:
			st.models = append(st.models, st.model)
		}
	}

	st.kind = elementNone
	st.model = nil
	st.enumNode = nil
	st.currentSection = nil
	st.currentKind = ast.KindStored
	st.lastFieldIdx = nil
}

func handleAttributeDefStart(tok *lexer.Token, st *state) {
	finalizeElement(st)

	name := ""
	if tok.Data.Name != nil {
		name = strings.TrimPrefix(*tok.Data.Name, "@")
	}

	st.currentAttrDef = &attrDef{
		name:        name,
		description: tok.Data.Description,
		fields:      map[string]string{},
	}
}

func finalizeAttrDef(st *state) {
	def := st.currentAttrDef
	if def == nil {
		return
	}
	st.currentAttrDef = nil

	targetRaw := def.fields["target"]
	var target []string
	cleanedTarget := strings.TrimSuffix(strings.TrimPrefix(targetRaw, "["), "]")
	for _, s := range strings.Split(cleanedTarget, ",") {
		s = strings.TrimSpace(s)
		if s == "field" || s == "model" {
			target = append(target, s)
		}
	}
	if len(target) == 0 {
		target = []string{"field"}
	}

	var rng *[2]float64
	if r, ok := def.fields["range"]; ok {
		cleaned := strings.TrimSuffix(strings.TrimPrefix(r, "["), "]")
		sep := ","
		if strings.Contains(cleaned, "..") {
			sep = ".."
		}
		parts := strings.Split(cleaned, sep)
		if len(parts) == 2 {
			a, errA := parseFloatStrict(strings.TrimSpace(parts[0]))
			b, errB := parseFloatStrict(strings.TrimSpace(parts[1]))
			if errA && errB {
				rng = &[2]float64{a, b}
			}
		}
	}

	required := def.fields["required"] == "true"

	var defaultValue *ast.AttrArgValue
	if v, ok := def.fields["default"]; ok {
		var av ast.AttrArgValue
		switch {
		case v == "true":
			av = ast.NewBoolArg(true)
		case v == "false":
			av = ast.NewBoolArg(false)
		default:
			if n, err := parseFloatStrictErr(v); err == nil {
				av = ast.NewNumberArg(n)
			} else {
				av = ast.NewStringArg(v)
			}
		}
		defaultValue = &av
	}

	attrType := def.fields["type"]
	if attrType == "" {
		attrType = "boolean"
	}

	st.attributeRegistry = append(st.attributeRegistry, ast.AttributeRegistryEntry{
		Name:         def.name,
		Description:  def.description,
		Target:       target,
		AttrType:     attrType,
		Range:        rng,
		Required:     required,
		DefaultValue: defaultValue,
	})
}

func parseFloatStrict(s string) (float64, bool) {
	v, err := parseFloatStrictErr(s)
	return v, err == nil
}

func parseRawAttributes(raw []lexer.RawAttribute) []ast.FieldAttribute {
	if len(raw) == 0 {
		return nil
	}
	out := make([]ast.FieldAttribute, 0, len(raw))
	for _, a := range raw {
		fa := ast.FieldAttribute{Name: a.Name, Cascade: a.Cascade}
		if len(a.Args) > 0 {
			fa.Args = a.Args
		}
		if catalogs.IsStandardAttribute(a.Name) {
			t := true
			fa.IsStandard = &t
		}
		out = append(out, fa)
	}
	return out
}
