// Package resolver merges the ParsedFiles produced by one parser run per
// file into a single resolved AST: it detects duplicate and ambiguous
// names, resolves inheritance, tags registered attributes, and detects
// circular imports (§4.4 of the compiler specification).
package resolver

import (
	"fmt"
	"strings"

	"github.com/iyulab/m3l-go/ast"
	"github.com/iyulab/m3l-go/catalogs"
)

type namedElement struct {
	name string
	file string
	line int
	ns   string
}

func namespaceKey(ns *string) string {
	if ns == nil {
		return ""
	}
	return *ns
}

// Resolve merges files into a single AST. projectInfo, if non-nil,
// overrides the project name/version the resolver would otherwise infer
// from the first file's namespace.
func Resolve(files []*ast.ParsedFile, projectInfo *ast.ProjectInfo) *ast.AST {
	out := &ast.AST{
		ParserVersion: catalogs.ParserVersion,
		ASTVersion:    catalogs.ASTVersion,
	}

	var errors []ast.Diagnostic

	modelMap := map[string]*ast.ModelNode{}
	interfaceMap := map[string]*ast.ModelNode{}

	firstDefByNamespace := map[string]map[string]namedElement{}
	nsOccurrences := map[string][]namedElement{}
	fileNamespace := map[string]*string{}

	// checkDuplicate records name's first definition *within ns* and
	// reports whether this occurrence collides with an earlier one in the
	// same namespace — a collision across distinct namespaces is
	// M3L-E008's concern alone (§8 scenario 4: "exactly one M3L-E008 ...
	// no M3L-E005").
	checkDuplicate := func(name, file string, line int, ns string) (namedElement, bool) {
		byName, ok := firstDefByNamespace[ns]
		if !ok {
			byName = map[string]namedElement{}
			firstDefByNamespace[ns] = byName
		}
		existing, dup := byName[name]
		if !dup {
			byName[name] = namedElement{name: name, file: file, line: line, ns: ns}
		}
		return existing, dup
	}

	recordNamespace := func(name string, ns *string, file string, line int) {
		key := ""
		if ns != nil {
			key = *ns
		}
		nsOccurrences[name] = append(nsOccurrences[name], namedElement{name: key, file: file, line: line})
	}

	for _, f := range files {
		out.Sources = append(out.Sources, f.Source)
		fileNamespace[f.Source] = f.Namespace

		ns := namespaceKey(f.Namespace)

		for _, m := range f.Models {
			out.Models = append(out.Models, m)
			modelMap[m.Name] = m
			if dup, sameNS := checkDuplicate(m.Name, m.Source, m.Line, ns); sameNS {
				errors = append(errors, diag("M3L-E005", m.Source, m.Line,
					fmt.Sprintf("duplicate name %q (first defined at %s:%d)", m.Name, dup.file, dup.line)))
			}
			recordNamespace(m.Name, f.Namespace, m.Source, m.Line)
		}
		for _, iface := range f.Interfaces {
			out.Interfaces = append(out.Interfaces, iface)
			interfaceMap[iface.Name] = iface
			if dup, sameNS := checkDuplicate(iface.Name, iface.Source, iface.Line, ns); sameNS {
				errors = append(errors, diag("M3L-E005", iface.Source, iface.Line,
					fmt.Sprintf("duplicate name %q (first defined at %s:%d)", iface.Name, dup.file, dup.line)))
			}
			recordNamespace(iface.Name, f.Namespace, iface.Source, iface.Line)
		}
		for _, v := range f.Views {
			out.Views = append(out.Views, v)
			modelMap[v.Name] = v
			if dup, sameNS := checkDuplicate(v.Name, v.Source, v.Line, ns); sameNS {
				errors = append(errors, diag("M3L-E005", v.Source, v.Line,
					fmt.Sprintf("duplicate name %q (first defined at %s:%d)", v.Name, dup.file, dup.line)))
			}
			recordNamespace(v.Name, f.Namespace, v.Source, v.Line)
		}
		for _, e := range f.Enums {
			out.Enums = append(out.Enums, e)
			if dup, sameNS := checkDuplicate(e.Name, e.Source, e.Line, ns); sameNS {
				errors = append(errors, diag("M3L-E005", e.Source, e.Line,
					fmt.Sprintf("duplicate name %q (first defined at %s:%d)", e.Name, dup.file, dup.line)))
			}
			recordNamespace(e.Name, f.Namespace, e.Source, e.Line)
		}

		out.AttributeRegistry = append(out.AttributeRegistry, f.AttributeRegistry...)
	}

	for name, occurrences := range nsOccurrences {
		seen := map[string]bool{}
		for i, occ := range occurrences {
			if i == 0 {
				seen[occ.name] = true
				continue
			}
			if !seen[occ.name] {
				errors = append(errors, diag("M3L-E008", occ.file, occ.line,
					fmt.Sprintf("name %q is defined under multiple namespaces", name)))
				seen[occ.name] = true
			}
		}
	}

	allParents := map[string]*ast.ModelNode{}
	for k, v := range modelMap {
		allParents[k] = v
	}
	for k, v := range interfaceMap {
		allParents[k] = v
	}

	for _, m := range out.Models {
		resolveInheritance(m, allParents, &errors)
	}
	for _, v := range out.Views {
		resolveInheritance(v, allParents, &errors)
	}

	for _, m := range out.Models {
		checkDuplicateFields(m, &errors)
	}
	for _, v := range out.Views {
		checkDuplicateFields(v, &errors)
	}

	registeredNames := map[string]bool{}
	for _, e := range out.AttributeRegistry {
		registeredNames[e.Name] = true
	}
	for _, m := range out.Models {
		tagRegistered(m.Attributes, registeredNames)
		for _, fld := range m.Fields {
			tagRegisteredField(fld, registeredNames)
		}
	}
	for _, v := range out.Views {
		tagRegistered(v.Attributes, registeredNames)
		for _, fld := range v.Fields {
			tagRegisteredField(fld, registeredNames)
		}
	}
	for _, iface := range out.Interfaces {
		tagRegistered(iface.Attributes, registeredNames)
		for _, fld := range iface.Fields {
			tagRegisteredField(fld, registeredNames)
		}
	}

	importGraph := map[string][]string{}
	order := make([]string, 0, len(files))
	for _, f := range files {
		importGraph[f.Source] = f.Imports
		order = append(order, f.Source)
	}
	if cycle := detectCycle(importGraph, order); cycle != "" {
		errors = append(errors, diag("M3L-E003", files[0].Source, 1,
			fmt.Sprintf("circular import: %s", cycle)))
	}

	out.Project = resolveProjectInfo(projectInfo, files)
	out.Errors = errors
	out.Warnings = nil

	return out
}

func diag(code, file string, line int, message string) ast.Diagnostic {
	return ast.Diagnostic{Code: code, Severity: ast.SeverityError, File: file, Line: line, Col: 1, Message: message}
}

// resolveInheritance performs the post-order DFS of §4.4 step 4: ancestor
// fields are prepended in the order their branch resolves, own fields with
// @override subtract the matching inherited field, and cycles are broken
// silently by the visiting set.
func resolveInheritance(m *ast.ModelNode, all map[string]*ast.ModelNode, errors *[]ast.Diagnostic) {
	if len(m.Inherits) == 0 {
		return
	}

	visiting := map[string]bool{m.Name: true}
	resolved := map[string]bool{}

	var inherited []*ast.FieldNode
	seenNames := map[string]bool{}
	for _, f := range m.Fields {
		seenNames[f.Name] = true
	}

	overridden := map[string]bool{}
	for _, f := range m.Fields {
		for _, a := range f.Attributes {
			if a.Name == "override" {
				overridden[f.Name] = true
			}
		}
	}

	var walk func(name string)
	walk = func(name string) {
		if visiting[name] {
			return
		}
		parent, ok := all[name]
		if !ok {
			*errors = append(*errors, diag("M3L-E007", m.Source, m.Line,
				fmt.Sprintf("unresolved parent %q of %q", name, m.Name)))
			return
		}
		if resolved[name] {
			return
		}
		visiting[name] = true

		for _, gp := range parent.Inherits {
			walk(gp)
		}

		for _, pf := range parent.Fields {
			if seenNames[pf.Name] || overridden[pf.Name] {
				continue
			}
			seenNames[pf.Name] = true
			inherited = append(inherited, pf)
		}

		resolved[name] = true
		delete(visiting, name)
	}

	for _, p := range m.Inherits {
		walk(p)
	}

	m.Fields = append(append([]*ast.FieldNode{}, inherited...), m.Fields...)
}

func checkDuplicateFields(m *ast.ModelNode, errors *[]ast.Diagnostic) {
	seen := map[string]bool{}
	for _, f := range m.Fields {
		if seen[f.Name] {
			*errors = append(*errors, diag("M3L-E006", m.Source, f.Loc.Line,
				fmt.Sprintf("duplicate field %q in %q", f.Name, m.Name)))
			continue
		}
		seen[f.Name] = true
	}
}

func tagRegistered(attrs []ast.FieldAttribute, registered map[string]bool) {
	for i := range attrs {
		if registered[attrs[i].Name] {
			t := true
			attrs[i].IsRegistered = &t
		}
	}
}

func tagRegisteredField(f *ast.FieldNode, registered map[string]bool) {
	tagRegistered(f.Attributes, registered)
	for _, sub := range f.Fields {
		tagRegisteredField(sub, registered)
	}
}

// detectCycle runs a DFS with a recursion stack over the source-file
// import graph, returning the first back-edge chain found, e.g. "a → b → c
// → a", or "" if the graph is acyclic. order fixes the DFS root-selection
// order to the caller-supplied file order so the reported chain is
// deterministic regardless of Go's randomized map iteration.
func detectCycle(graph map[string][]string, order []string) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var stack []string

	var visit func(node string) string
	visit = func(node string) string {
		color[node] = gray
		stack = append(stack, node)

		for _, next := range graph[node] {
			switch color[next] {
			case white:
				if cycle := visit(next); cycle != "" {
					return cycle
				}
			case gray:
				chain := append(append([]string{}, stack...), next)
				for i := range chain {
					if chain[i] == next {
						chain = chain[i:]
						break
					}
				}
				return strings.Join(chain, " → ")
			}
		}

		stack = stack[:len(stack)-1]
		color[node] = black
		return ""
	}

	for _, node := range order {
		if color[node] == white {
			if cycle := visit(node); cycle != "" {
				return cycle
			}
		}
	}
	return ""
}

func resolveProjectInfo(override *ast.ProjectInfo, files []*ast.ParsedFile) ast.ProjectInfo {
	if override != nil && override.Name != nil {
		return *override
	}

	info := ast.ProjectInfo{}
	if override != nil {
		info = *override
	}
	if info.Name == nil {
		for _, f := range files {
			if f.Namespace != nil {
				name := *f.Namespace
				info.Name = &name
				break
			}
		}
	}
	return info
}
