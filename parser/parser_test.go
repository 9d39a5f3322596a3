package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyulab/m3l-go/ast"
	"github.com/iyulab/m3l-go/parser"
	"github.com/iyulab/m3l-go/stringtest"
)

// Scenario 1 of §8: a basic model with two fields, one unknown attribute and
// one standard attribute.
func TestParseBasicModel(t *testing.T) {
	src := stringtest.JoinLF(
		"## User",
		"- id: identifier @pk",
		`- name: string(100) @not_null`,
	)

	pf := parser.ParseString(src, "basic.m3l.md")
	require.Len(t, pf.Models, 1)

	m := pf.Models[0]
	assert.Equal(t, "User", m.Name)
	require.Len(t, m.Fields, 2)

	id := m.Fields[0]
	assert.Equal(t, "id", id.Name)
	require.NotNil(t, id.FieldType)
	assert.Equal(t, "identifier", *id.FieldType)

	name := m.Fields[1]
	assert.Equal(t, "name", name.Name)
	require.Len(t, name.Params, 1)
	assert.Equal(t, float64(100), name.Params[0].NumberValue())

	require.Len(t, id.Attributes, 1)
	assert.Equal(t, "pk", id.Attributes[0].Name)
	assert.Nil(t, id.Attributes[0].IsStandard)

	require.Len(t, name.Attributes, 1)
	assert.Equal(t, "not_null", name.Attributes[0].Name)
	require.NotNil(t, name.Attributes[0].IsStandard)
	assert.True(t, *name.Attributes[0].IsStandard)
}

// Scenario 2 of §8: a standalone enum with two values carrying descriptions.
func TestParseStandaloneEnum(t *testing.T) {
	src := stringtest.JoinLF(
		"## Status ::enum",
		`- active: "Active"`,
		`- inactive: "Inactive"`,
	)

	pf := parser.ParseString(src, "enum.m3l.md")
	require.Len(t, pf.Enums, 1)

	e := pf.Enums[0]
	require.Len(t, e.Values, 2)
	require.NotNil(t, e.Values[0].Description)
	assert.Equal(t, "Active", *e.Values[0].Description)
	require.NotNil(t, e.Values[1].Description)
	assert.Equal(t, "Inactive", *e.Values[1].Description)
}

func TestParseViewMaterialized(t *testing.T) {
	src := stringtest.JoinLF(
		"## ActiveUsers ::view @materialized",
		"### Source",
		"- from: User",
		`- where: "active = true"`,
		"- status: string",
		"### Refresh",
		`- strategy: "daily"`,
	)

	pf := parser.ParseString(src, "view.m3l.md")
	require.Len(t, pf.Views, 1)

	v := pf.Views[0]
	require.NotNil(t, v.Materialized)
	assert.True(t, *v.Materialized)
	require.NotNil(t, v.SourceDef)
	require.NotNil(t, v.SourceDef.From)
	assert.Equal(t, "User", *v.SourceDef.From)
	require.NotNil(t, v.SourceDef.Where)
	assert.Equal(t, "active = true", *v.SourceDef.Where)
	require.Len(t, v.Fields, 1)
	assert.Equal(t, "status", v.Fields[0].Name)
	require.NotNil(t, v.Refresh)
	assert.Equal(t, "daily", v.Refresh.Strategy)
}

func TestParseRollupAttribute(t *testing.T) {
	src := stringtest.JoinLF(
		"## Order",
		"- customer_id: identifier @reference(Customer)",
		"## Customer",
		`- order_total: decimal @rollup(Order.customer_id, sum(amount), where: "status = 'paid'")`,
	)

	pf := parser.ParseString(src, "rollup.m3l.md")
	require.Len(t, pf.Models, 2)

	customer := pf.Models[1]
	require.Len(t, customer.Fields, 1)
	f := customer.Fields[0]
	assert.Equal(t, ast.KindRollup, f.Kind)
	require.NotNil(t, f.Rollup)
	assert.Equal(t, "Order", f.Rollup.Target)
	assert.Equal(t, "customer_id", f.Rollup.FK)
	assert.Equal(t, "sum", f.Rollup.Aggregate)
	require.NotNil(t, f.Rollup.Field)
	assert.Equal(t, "amount", *f.Rollup.Field)
	require.NotNil(t, f.Rollup.Where)
	assert.Equal(t, "status = 'paid'", *f.Rollup.Where)
}

func TestParseComputedFromCodeBlock(t *testing.T) {
	src := stringtest.JoinLF(
		"## Invoice",
		"- total: decimal @computed_raw",
		"```sql",
		"SELECT sum(amount) FROM line_items",
		"```",
	)

	pf := parser.ParseString(src, "computed.m3l.md")
	require.Len(t, pf.Models, 1)
	f := pf.Models[0].Fields[0]
	assert.Equal(t, ast.KindComputed, f.Kind)
	require.NotNil(t, f.Computed)
	assert.Equal(t, "SELECT sum(amount) FROM line_items", f.Computed.Expression)
	require.NotNil(t, f.Computed.Platform)
	assert.Equal(t, "sql", *f.Computed.Platform)
}

func TestParseAttributeDefinition(t *testing.T) {
	src := stringtest.JoinLF(
		"## max_length ::attribute",
		"- target: [field]",
		"- type: number",
		"- range: [1, 255]",
		"- required: false",
	)

	pf := parser.ParseString(src, "attrdef.m3l.md")
	require.Len(t, pf.AttributeRegistry, 1)
	entry := pf.AttributeRegistry[0]
	assert.Equal(t, "max_length", entry.Name)
	assert.Equal(t, []string{"field"}, entry.Target)
	assert.Equal(t, "number", entry.AttrType)
	require.NotNil(t, entry.Range)
	assert.Equal(t, [2]float64{1, 255}, *entry.Range)
	assert.False(t, entry.Required)
}

func TestParseIndexAndRelationDirectives(t *testing.T) {
	src := stringtest.JoinLF(
		"## Order",
		"- id: identifier @pk",
		"- customer_id: identifier @reference(Customer)",
		"- @index(customer_id)",
		"- @unique(id, customer_id)",
		"- @relation(Customer > Order via customer_id)",
	)

	pf := parser.ParseString(src, "sections.m3l.md")
	require.Len(t, pf.Models, 1)
	m := pf.Models[0]
	require.Len(t, m.Sections.Indexes, 2)
	require.Len(t, m.Sections.Relations, 1)

	var foundUnique bool
	for _, idx := range m.Sections.Indexes {
		if u, ok := idx["unique"].(bool); ok && u {
			foundUnique = true
		}
	}
	assert.True(t, foundUnique)
}

func TestParseImportDirective(t *testing.T) {
	src := `@import "shared/base.m3l.md"` + "\n## User\n- id: identifier"
	pf := parser.ParseString(src, "imports.m3l.md")
	require.Len(t, pf.Imports, 1)
	assert.Equal(t, "shared/base.m3l.md", pf.Imports[0])
}

func TestParseNestedObjectFields(t *testing.T) {
	src := stringtest.JoinLF(
		"## User",
		"- address: object",
		"  - city: string",
		"  - zip: string @required",
	)

	pf := parser.ParseString(src, "nested.m3l.md")
	require.Len(t, pf.Models, 1)
	addr := pf.Models[0].Fields[0]
	require.Len(t, addr.Fields, 2)
	assert.Equal(t, "city", addr.Fields[0].Name)
	assert.Equal(t, "zip", addr.Fields[1].Name)
}

func TestParseFrameworkAttrs(t *testing.T) {
	src := "## User\n- id: identifier `[ts: \"readonly\"]`"
	pf := parser.ParseString(src, "fw.m3l.md")
	f := pf.Models[0].Fields[0]
	require.Len(t, f.FrameworkAttrs, 1)
	require.NotNil(t, f.FrameworkAttrs[0].Parsed)
	assert.Equal(t, "ts", f.FrameworkAttrs[0].Parsed.Name)
}
