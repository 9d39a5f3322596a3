package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/iyulab/m3l-go/ast"
	"github.com/iyulab/m3l-go/lexer"
)

var (
	reCustomAttr = regexp.MustCompile(`^(\w+)(?:\(([^)]*)\)|:\s*(.+))?$`)
	reAgg        = regexp.MustCompile(`^(\w+)(?:\(([^)]*)\))?$`)
	reNestedKV   = regexp.MustCompile(`^([\w]+)\s*:\s*(.+)$`)
)

func hasAttr(attrs []lexer.RawAttribute, name string) (lexer.RawAttribute, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return lexer.RawAttribute{}, false
}

func argString(args []ast.AttrArgValue, idx int) string {
	if idx < 0 || idx >= len(args) {
		return ""
	}
	a := args[idx]
	if a.IsString() {
		return a.StringValue()
	}
	if a.IsNumber() {
		return strconv.FormatFloat(a.NumberValue(), 'g', -1, 64)
	}
	if a.IsBool() {
		if a.BoolValue() {
			return "true"
		}
		return "false"
	}
	return ""
}

// keyedArg finds a "key: value" shaped string argument (produced by the
// lexer's argument-list parser, which stringifies named args this way) and
// returns its value with surrounding quotes trimmed.
func keyedArg(args []ast.AttrArgValue, key string) (string, bool) {
	prefix := key + ": "
	for _, a := range args {
		if !a.IsString() {
			continue
		}
		s := a.StringValue()
		if strings.HasPrefix(s, prefix) {
			return strings.Trim(strings.TrimPrefix(s, prefix), "\""), true
		}
	}
	return "", false
}

// buildFieldNode assembles a FieldNode from a decoded Field token, applying
// the kind-override, default-value, and lookup/rollup/computed detail rules
// of §4.3.
func buildFieldNode(data *lexer.Data, tok *lexer.Token, file string, currentKind ast.FieldKind) *ast.FieldNode {
	name := ""
	if data.Name != nil {
		name = *data.Name
	}

	f := &ast.FieldNode{
		Name:              name,
		Label:             data.Label,
		FieldType:         data.TypeName,
		Params:            data.TypeParams,
		GenericParams:     data.TypeGenericParams,
		Nullable:          data.Nullable,
		Array:             data.Array,
		ArrayItemNullable: data.ArrayItemNullable,
		Kind:              currentKind,
		Attributes:        parseRawAttributes(data.Attributes),
		Loc:               loc(file, tok.Line),
	}

	if dv := data.DefaultValue; dv != nil {
		val, kind := processDefaultValue(*dv)
		f.DefaultValue = strp2(val)
		f.DefaultValueType = &kind
	}

	desc := data.Description
	if data.Comment != nil {
		desc = data.Comment
	}
	if data.BlockquoteDesc != nil {
		desc = data.BlockquoteDesc
	}
	f.Description = desc

	if len(data.FrameworkAttrs) > 0 {
		f.FrameworkAttrs = buildFrameworkAttrs(data.FrameworkAttrs)
	}

	switch {
	case hasAttrName(data.Attributes, "rollup"):
		f.Kind = ast.KindRollup
	case hasAttrName(data.Attributes, "lookup"):
		f.Kind = ast.KindLookup
	case hasAttrName(data.Attributes, "computed"), hasAttrName(data.Attributes, "computed_raw"):
		f.Kind = ast.KindComputed
	}

	switch f.Kind {
	case ast.KindLookup:
		if a, ok := hasAttr(data.Attributes, "lookup"); ok {
			f.Lookup = &ast.LookupDef{Path: argString(a.Args, 0)}
		}
	case ast.KindRollup:
		if a, ok := hasAttr(data.Attributes, "rollup"); ok {
			f.Rollup = buildRollupDef(a.Args)
		}
	case ast.KindComputed:
		if a, ok := hasAttr(data.Attributes, "computed"); ok {
			expr := strings.Trim(argString(a.Args, 0), "\"")
			f.Computed = &ast.ComputedDef{Expression: expr}
		} else if a, ok := hasAttr(data.Attributes, "computed_raw"); ok {
			f.Computed = buildComputedRawDef(a.Args)
		}
		if f.Computed == nil || f.Computed.Expression == "" {
			if tok.Data.CodeBlock != nil {
				expr := tok.Data.CodeBlock.Content
				if f.Computed == nil {
					f.Computed = &ast.ComputedDef{}
				}
				f.Computed.Expression = expr
				if tok.Data.CodeBlock.Language != nil {
					f.Computed.Platform = tok.Data.CodeBlock.Language
				}
			}
		}
	}

	return f
}

func hasAttrName(attrs []lexer.RawAttribute, name string) bool {
	_, ok := hasAttr(attrs, name)
	return ok
}

func processDefaultValue(raw string) (string, ast.DefaultValueType) {
	if len(raw) >= 2 && strings.HasPrefix(raw, "`") && strings.HasSuffix(raw, "`") {
		return raw, ast.DefaultExpression
	}
	if len(raw) >= 2 && strings.HasPrefix(raw, "\"") && strings.HasSuffix(raw, "\"") {
		return raw, ast.DefaultLiteral
	}
	if strings.Contains(raw, "(") {
		return raw, ast.DefaultExpression
	}
	return raw, ast.DefaultLiteral
}

func buildRollupDef(args []ast.AttrArgValue) *ast.RollupDef {
	if len(args) == 0 {
		return nil
	}
	targetFK := argString(args, 0)
	target, fk := targetFK, ""
	if dot := strings.LastIndexByte(targetFK, '.'); dot >= 0 {
		target, fk = targetFK[:dot], targetFK[dot+1:]
	}

	rd := &ast.RollupDef{Target: target, FK: fk}

	if len(args) > 1 {
		aggRaw := argString(args, 1)
		if m := reAgg.FindStringSubmatch(aggRaw); m != nil {
			rd.Aggregate = m[1]
			if m[2] != "" {
				field := m[2]
				rd.Field = &field
			}
		} else {
			rd.Aggregate = aggRaw
		}
	}

	if w, ok := keyedArg(args, "where"); ok {
		rd.Where = strp2(w)
	}

	return rd
}

func buildComputedRawDef(args []ast.AttrArgValue) *ast.ComputedDef {
	if len(args) == 0 {
		return &ast.ComputedDef{}
	}
	expr := strings.Trim(argString(args, 0), "\"")
	cd := &ast.ComputedDef{Expression: expr}

	if p, ok := keyedArg(args, "platform"); ok {
		cd.Platform = strp2(p)
	}

	return cd
}

func buildFrameworkAttrs(raw []string) []ast.CustomAttribute {
	out := make([]ast.CustomAttribute, 0, len(raw))
	for _, r := range raw {
		inner := strings.TrimSuffix(strings.TrimPrefix(r, "["), "]")
		ca := ast.CustomAttribute{Content: inner, Raw: "`" + r + "`"}
		if m := reCustomAttr.FindStringSubmatch(inner); m != nil {
			parsed := &ast.CustomAttributeParsed{Name: m[1]}
			if m[2] != "" {
				parsed.Arguments = parseAttrArgsSimple(m[2])
			} else if m[3] != "" {
				parsed.Arguments = []ast.AttrArgValue{parseArgValue(strings.TrimSpace(m[3]))}
			}
			ca.Parsed = parsed
		}
		out = append(out, ca)
	}
	return out
}

func parseAttrArgsSimple(s string) []ast.AttrArgValue {
	var out []ast.AttrArgValue
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, parseArgValue(part))
	}
	return out
}

func parseArgValue(s string) ast.AttrArgValue {
	if s == "true" {
		return ast.NewBoolArg(true)
	}
	if s == "false" {
		return ast.NewBoolArg(false)
	}
	if n, err := parseFloatStrictErr(s); err == nil && s != "" {
		return ast.NewNumberArg(n)
	}
	unquoted := s
	if len(s) >= 2 {
		if (strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"")) ||
			(strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'")) {
			unquoted = s[1 : len(s)-1]
		}
	}
	return ast.NewStringArg(unquoted)
}

func parseFloatStrictErr(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// handleDirective routes a model-level "- @name(...)" line into the
// appropriate sections bucket (§4.3 "Directive fields").
func handleDirective(data *lexer.Data, model *ast.ModelNode, tok *lexer.Token, file string) {
	if len(data.Attributes) == 0 {
		return
	}
	directive := data.Attributes[0]
	entry := directiveEntry(directive, tok.Raw)

	switch directive.Name {
	case "index":
		model.Sections.Indexes = append(model.Sections.Indexes, entry)
	case "unique":
		entry["unique"] = true
		model.Sections.Indexes = append(model.Sections.Indexes, entry)
	case "relation":
		model.Sections.Relations = append(model.Sections.Relations, entry)
	case "behavior":
		model.Sections.Behaviors = append(model.Sections.Behaviors, entry)
	default:
		if model.Sections.Custom == nil {
			model.Sections.Custom = map[string][]map[string]any{}
		}
		model.Sections.Custom[directive.Name] = append(model.Sections.Custom[directive.Name], entry)
	}
}

func directiveEntry(directive lexer.RawAttribute, raw string) map[string]any {
	entry := map[string]any{"raw": strings.TrimSpace(raw)}

	var positional []any
	for _, a := range directive.Args {
		if a.IsString() {
			s := a.StringValue()
			if m := reNestedKV.FindStringSubmatch(s); m != nil {
				entry[m[1]] = stripQuotes(strings.TrimSpace(m[2]))
				continue
			}
			positional = append(positional, s)
		} else if a.IsNumber() {
			positional = append(positional, a.NumberValue())
		} else if a.IsBool() {
			positional = append(positional, a.BoolValue())
		}
	}
	if len(positional) > 0 {
		entry["args"] = positional
	}

	return entry
}

func stripQuotes(s string) string {
	return strings.Trim(s, "\"")
}

// handleSectionItem routes a field-shaped line that appears inside a named
// ### section (Indexes, Relations, Metadata, Behaviors, view Source/Refresh,
// or a custom heading) per §4.3 "Section-scoped items".
func handleSectionItem(data *lexer.Data, model *ast.ModelNode, tok *lexer.Token, file, section string, kind ast.FieldKind, st *state) {
	switch section {
	case "Indexes":
		entry := kvEntryFromField(data, tok.Raw)
		model.Sections.Indexes = append(model.Sections.Indexes, entry)
		idx := len(model.Sections.Indexes) - 1
		markSentinelIndex(st, idx)
	case "Relations":
		entry := kvEntryFromField(data, tok.Raw)
		model.Sections.Relations = append(model.Sections.Relations, entry)
		idx := len(model.Sections.Relations) - 1
		markSentinelIndex(st, idx)
	case "Behaviors":
		entry := kvEntryFromField(data, tok.Raw)
		model.Sections.Behaviors = append(model.Sections.Behaviors, entry)
	case "Metadata":
		name := ""
		if data.Name != nil {
			name = *data.Name
		}
		if model.Sections.Metadata == nil {
			model.Sections.Metadata = map[string]any{}
		}
		model.Sections.Metadata[name] = parseMetadataValue(data)
	case "Source":
		if !st.sourceDirectivesDone {
			if key, _ := extractKV(data, tok.Raw); isSourceDirective(key) {
				handleSourceDirective(data, model, tok.Raw)
				return
			}
			st.sourceDirectivesDone = true
		}
		field := buildFieldNode(data, tok, file, kind)
		model.Fields = append(model.Fields, field)
		idx := len(model.Fields) - 1
		st.lastFieldIdx = &idx
		st.indexSentinel = false
	case "Refresh":
		handleRefreshItem(data, model, tok.Raw)
	default:
		entry := kvEntryFromField(data, tok.Raw)
		if model.Sections.Custom == nil {
			model.Sections.Custom = map[string][]map[string]any{}
		}
		model.Sections.Custom[section] = append(model.Sections.Custom[section], entry)
	}
}

// markSentinelIndex records that last_field_idx currently points at a
// Sections entry rather than a real model field, so a trailing blockquote
// or nested item attaches to the section entry instead.
func markSentinelIndex(st *state, idx int) {
	st.lastFieldIdx = &idx
	st.indexSentinel = true
}

func kvEntryFromField(data *lexer.Data, raw string) map[string]any {
	entry := map[string]any{"raw": strings.TrimSpace(raw)}
	if data.Name != nil {
		entry["name"] = *data.Name
	}
	if data.TypeName != nil {
		entry["type"] = *data.TypeName
	}
	for _, a := range data.Attributes {
		if a.Name == "unique" {
			entry["unique"] = true
		}
	}
	return entry
}

func isSourceDirective(key string) bool {
	switch key {
	case "from", "where", "order_by", "group_by", "join":
		return true
	}
	return false
}

func handleSourceDirective(data *lexer.Data, model *ast.ModelNode, raw string) {
	key, value := extractKV(data, raw)
	if key == "" || !isSourceDirective(key) {
		return
	}
	value = stripQuotes(value)

	sd := ensureSourceDef(model)
	switch key {
	case "from":
		sd.From = strp2(value)
	case "where":
		sd.Where = strp2(value)
	case "order_by":
		sd.OrderBy = strp2(value)
	case "group_by":
		sd.GroupBy = parseArrayValue(value)
	case "join":
		if jd, ok := parseJoinValue(value); ok {
			sd.Joins = append(sd.Joins, jd)
		}
	}
}

func handleRefreshItem(data *lexer.Data, model *ast.ModelNode, raw string) {
	key, value := extractKV(data, raw)
	if key == "" {
		return
	}
	value = stripQuotes(value)
	if model.Refresh == nil {
		model.Refresh = &ast.RefreshDef{}
	}
	switch key {
	case "strategy":
		model.Refresh.Strategy = value
	case "interval":
		model.Refresh.Interval = strp2(value)
	}
}

// extractKV pulls "key: value" out of a decoded Field/NestedItem, whichever
// representation the lexer produced it in.
func extractKV(data *lexer.Data, raw string) (string, string) {
	if data.Key != nil && data.Value != nil {
		return *data.Key, *data.Value
	}
	if data.Name != nil && data.TypeName != nil {
		return *data.Name, *data.TypeName
	}
	if raw != "" {
		if m := reNestedKV.FindStringSubmatch(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "- "))); m != nil {
			return m[1], strings.TrimSpace(m[2])
		}
	}
	return "", ""
}

func parseJoinValue(s string) (ast.JoinDef, bool) {
	parts := strings.SplitN(s, " on ", 2)
	if len(parts) != 2 {
		return ast.JoinDef{}, false
	}
	return ast.JoinDef{Model: strings.TrimSpace(parts[0]), On: strings.TrimSpace(parts[1])}, true
}

func parseArrayValue(s string) []string {
	cleaned := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
	var out []string
	for _, part := range strings.Split(cleaned, ",") {
		part = strings.TrimSpace(stripQuotes(strings.TrimSpace(part)))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseMetadataValue(data *lexer.Data) any {
	if data.TypeName == nil {
		return nil
	}
	return parseNestedValue(*data.TypeName)
}

func parseNestedValue(s string) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"") {
		return s[1 : len(s)-1]
	}
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	if !strings.Contains(s, ".") {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

// handleNestedItem attaches a NestedItem token to whatever the previous
// item was: a Sections entry, an object-typed field's sub-fields, an inline
// enum field's values, or a view Source directive.
func handleNestedItem(tok *lexer.Token, st *state) {
	if st.kind != elementModel {
		return
	}
	model := st.model

	if st.currentSection != nil && *st.currentSection == "Source" {
		handleSourceDirective(&tok.Data, model, tok.Raw)
		return
	}

	if st.lastFieldIdx == nil {
		return
	}

	if st.indexSentinel {
		key, value := extractKV(&tok.Data, tok.Raw)
		if key == "" {
			return
		}
		switch *st.currentSection {
		case "Indexes":
			if len(model.Sections.Indexes) > *st.lastFieldIdx {
				model.Sections.Indexes[*st.lastFieldIdx][key] = stripQuotes(value)
			}
		case "Relations":
			if len(model.Sections.Relations) > *st.lastFieldIdx {
				model.Sections.Relations[*st.lastFieldIdx][key] = stripQuotes(value)
			}
		}
		return
	}

	if *st.lastFieldIdx >= len(model.Fields) {
		return
	}
	parent := model.Fields[*st.lastFieldIdx]

	if parent.FieldType != nil && *parent.FieldType == "enum" {
		name := ""
		if tok.Data.Name != nil {
			name = *tok.Data.Name
		}
		ev := ast.EnumValue{Name: name, Description: tok.Data.Description}
		parent.EnumValues = append(parent.EnumValues, ev)
		return
	}

	if parent.FieldType != nil && *parent.FieldType == "object" {
		data := tok.Data
		if data.Key != nil && data.Value != nil {
			data = lexer.ParseTypeAndAttrs(*data.Value)
			data.Name = tok.Data.Key
		}
		sub := buildFieldNode(&data, tok, st.file, ast.KindStored)
		parent.Fields = append(parent.Fields, sub)
		return
	}
}
