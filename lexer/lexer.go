// Package lexer tokenizes M3L source text into a typed token sequence
// (§4.2 of the compiler specification). Lexing never fails: any line that
// matches none of the recognized shapes becomes a Text token, and the
// parser decides later whether that degrades into a diagnostic.
package lexer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/iyulab/m3l-go/ast"
	"github.com/iyulab/m3l-go/catalogs"
)

var (
	reH1         = regexp.MustCompile(`^# (.+)$`)
	reH2         = regexp.MustCompile(`^## (.+)$`)
	reH3         = regexp.MustCompile(`^### (.+)$`)
	reHR         = regexp.MustCompile(`^-{3,}$`)
	reBlockquote = regexp.MustCompile(`^(\s*)> (.+)$`)
	reListItem   = regexp.MustCompile(`^(\s*)- (.+)$`)
	reBlank      = regexp.MustCompile(`^\s*$`)

	reTypeIndicator = regexp.MustCompile(`^(@?[\w][\w.]*(?:\([^)]*\))?)\s*::(\w+)(.*)$`)
	reModelDef      = regexp.MustCompile(`^([\w][\w.]*(?:\([^)]*\))?)\s*(?::\s*(.+?))?(\s+@.+)?$`)

	reFieldName      = regexp.MustCompile(`^([\w]+)(?:\(([^)]*)\))?\s*(?::\s*(.+))?$`)
	reTypePart       = regexp.MustCompile(`^([\w][\w.]*)(?:<([^>]+)>)?(?:\(([^)]*)\))?(\?)?(\[\])?(\?)?`)
	reFrameworkAttr  = regexp.MustCompile("`\\[([^\\]]+)\\]`")
	reInlineComment  = regexp.MustCompile(`\s+#\s+(.+)$`)
	reNameLabel      = regexp.MustCompile(`^([\w][\w.]*)\(([^)]*)\)$`)
	reNamespace      = regexp.MustCompile(`^Namespace:\s*(.+)$`)
	reImport         = regexp.MustCompile(`^@import\s+["'](.+?)["']\s*$`)
	reEnumValue      = regexp.MustCompile(`^([\w]+)(?:\(([^)]*)\))?\s+"((?:[^"\\]|\\.)*)"$`)
	reNestedKV       = regexp.MustCompile(`^([\w]+)\s*:\s*(.+)$`)
	reH2Inherit      = regexp.MustCompile(`^:\s*(.+?)(?:\s+@|\s*"|\s*$)`)
	reH2Desc         = regexp.MustCompile(`"([^"]+)"`)
	reModelAttr      = regexp.MustCompile(`@([\w]+)(?:\(([^)]*)\))?`)
)

// Lex tokenizes content into an ordered token sequence.
func Lex(content string) []Token {
	lines := strings.Split(content, "\n")
	total := len(lines)
	tokens := make([]Token, 0, total)

	i := 0
	for i < total {
		rawLine := lines[i]
		raw := strings.TrimSuffix(rawLine, "\r")
		lineNum := i + 1

		trimmedForFence := strings.TrimLeft(raw, " \t")
		if after, ok := strings.CutPrefix(trimmedForFence, "```"); ok {
			hint := strings.TrimSpace(after)
			var langHint *string
			if hint != "" {
				langHint = strp(hint)
			}

			fenceIndent := len(raw) - len(strings.TrimLeft(raw, " \t"))
			var codeLines []string
			i++
			for i < total {
				nextRaw := strings.TrimSuffix(lines[i], "\r")
				if strings.HasPrefix(strings.TrimLeft(nextRaw, " \t"), "```") {
					break
				}
				codeLines = append(codeLines, nextRaw)
				i++
			}

			dedented := make([]string, len(codeLines))
			for idx, l := range codeLines {
				if len(l) > fenceIndent {
					dedented[idx] = l[fenceIndent:]
				} else {
					dedented[idx] = strings.TrimLeft(l, " \t")
				}
			}
			codeContent := strings.TrimSpace(strings.Join(dedented, "\n"))

			for j := len(tokens) - 1; j >= 0; j-- {
				tt := tokens[j].Type
				if tt == Field || tt == Section {
					tokens[j].Data.CodeBlock = &CodeBlock{Language: langHint, Content: codeContent}
					break
				}
				if tt != Blank {
					break
				}
			}

			i++
			continue
		}

		if reBlank.MatchString(raw) {
			tokens = append(tokens, Token{Type: Blank, Raw: raw, Line: lineNum})
			i++
			continue
		}

		if reHR.MatchString(strings.TrimSpace(raw)) {
			tokens = append(tokens, Token{Type: HorizontalRule, Raw: raw, Line: lineNum})
			i++
			continue
		}

		if m := reH3.FindStringSubmatch(raw); m != nil {
			name := strings.TrimSpace(m[1])
			tokens = append(tokens, Token{
				Type: Section,
				Raw:  raw,
				Line: lineNum,
				Data: Data{Name: strp(name), KindSection: catalogs.IsKindSection(name)},
			})
			i++
			continue
		}

		if m := reH2.FindStringSubmatch(raw); m != nil {
			tokens = append(tokens, tokenizeH2(strings.TrimSpace(m[1]), raw, lineNum))
			i++
			continue
		}

		if m := reH1.FindStringSubmatch(raw); m != nil {
			data := parseNamespace(strings.TrimSpace(m[1]))
			tt := Text
			if data.IsDirective {
				tt = Namespace
			}
			tokens = append(tokens, Token{Type: tt, Raw: raw, Line: lineNum, Data: data})
			i++
			continue
		}

		if m := reBlockquote.FindStringSubmatch(raw); m != nil {
			bqIndent := len(m[1])
			bqText := strings.TrimSpace(m[2])

			if bqIndent >= 2 {
				for j := len(tokens) - 1; j >= 0; j-- {
					tt := tokens[j].Type
					if tt == Field {
						existing := tokens[j].Data.BlockquoteDesc
						if existing != nil {
							tokens[j].Data.BlockquoteDesc = strp(*existing + "\n" + bqText)
						} else {
							tokens[j].Data.BlockquoteDesc = strp(bqText)
						}
						break
					}
					if tt != Blank && tt != Blockquote {
						break
					}
				}
				i++
				continue
			}

			tokens = append(tokens, Token{Type: Blockquote, Raw: raw, Line: lineNum, Data: Data{Name: strp(bqText)}})
			i++
			continue
		}

		if m := reListItem.FindStringSubmatch(raw); m != nil {
			indent := len(m[1])
			itemContent := m[2]

			if indent >= 2 {
				tokens = append(tokens, Token{Type: NestedItem, Raw: raw, Line: lineNum, Indent: indent, Data: parseNestedItem(itemContent)})
			} else {
				tokens = append(tokens, Token{Type: Field, Raw: raw, Line: lineNum, Data: parseFieldLine(itemContent)})
			}
			i++
			continue
		}

		trimmed := strings.TrimSpace(raw)
		if m := reImport.FindStringSubmatch(trimmed); m != nil {
			tokens = append(tokens, Token{
				Type: Text,
				Raw:  raw,
				Line: lineNum,
				Data: Data{IsImport: true, ImportPath: strp(m[1]), Name: strp(trimmed)},
			})
			i++
			continue
		}

		tokens = append(tokens, Token{Type: Text, Raw: raw, Line: lineNum, Data: Data{Name: strp(trimmed)}})
		i++
	}

	return tokens
}

func tokenizeH2(content, raw string, line int) Token {
	if m := reTypeIndicator.FindStringSubmatch(content); m != nil {
		namepart := m[1]
		typeIndicator := m[2]
		rest := strings.TrimSpace(m[3])

		name, label := parseNameLabel(namepart)
		data := Data{Name: strp(name), Label: label}

		if im := reH2Inherit.FindStringSubmatch(rest); im != nil {
			data.Inherits = splitTrimNonEmpty(im[1], ",")
		}

		if typeIndicator == "view" {
			mat := strings.Contains(rest, "@materialized")
			data.Materialized = &mat
		}

		if dm := reH2Desc.FindStringSubmatch(rest); dm != nil {
			data.Description = strp(dm[1])
		}

		var tt TokenType
		switch typeIndicator {
		case "attribute":
			tt = AttributeDef
		case "enum":
			tt = Enum
		case "interface":
			tt = Interface
		case "view":
			tt = View
		default:
			tt = Model
		}

		return Token{Type: tt, Raw: raw, Line: line, Data: data}
	}

	if m := reModelDef.FindStringSubmatch(content); m != nil {
		namepart := m[1]
		inheritsStr := strings.TrimSpace(m[2])
		attrsStr := strings.TrimSpace(m[3])

		name, label := parseNameLabel(namepart)
		var inherits []string
		if inheritsStr != "" {
			inherits = splitTrimNonEmpty(inheritsStr, ",")
		}

		data := Data{Name: strp(name), Label: label, Inherits: inherits}

		if attrsStr != "" {
			var attrs []RawAttribute
			for _, am := range reModelAttr.FindAllStringSubmatch(attrsStr, -1) {
				var args []ast.AttrArgValue
				if am[2] != "" {
					args = parseAttrArgsString(am[2])
				}
				attrs = append(attrs, RawAttribute{Name: am[1], Args: args})
			}
			data.Attributes = attrs
		}

		return Token{Type: Model, Raw: raw, Line: line, Data: data}
	}

	return Token{Type: Model, Raw: raw, Line: line, Data: Data{Name: strp(content)}}
}

func parseNameLabel(s string) (string, *string) {
	if m := reNameLabel.FindStringSubmatch(s); m != nil {
		return m[1], strp(m[2])
	}
	return s, nil
}

func parseNamespace(content string) Data {
	if m := reNamespace.FindStringSubmatch(content); m != nil {
		return Data{Name: strp(strings.TrimSpace(m[1])), IsDirective: true}
	}
	return Data{Name: strp(content)}
}

func parseFieldLine(content string) Data {
	var data Data

	if strings.HasPrefix(content, "@") {
		data.IsDirective = true
		data.Attributes = parseAttributesBalanced(content)
		return data
	}

	if m := reInlineComment.FindStringSubmatch(content); m != nil {
		data.Comment = strp(m[1])
		content = reInlineComment.ReplaceAllString(content, "")
	}

	var frameworkAttrs []string
	for _, m := range reFrameworkAttr.FindAllStringSubmatch(content, -1) {
		frameworkAttrs = append(frameworkAttrs, "["+m[1]+"]")
	}
	if len(frameworkAttrs) > 0 {
		data.FrameworkAttrs = frameworkAttrs
		content = strings.TrimSpace(reFrameworkAttr.ReplaceAllString(content, ""))
	}

	if m := reEnumValue.FindStringSubmatch(content); m != nil {
		data.Name = strp(m[1])
		if m[2] != "" {
			data.Label = strp(m[2])
		}
		data.Description = strp(m[3])
		return data
	}

	m := reFieldName.FindStringSubmatch(content)
	if m == nil {
		data.Name = strp(content)
		return data
	}

	data.Name = strp(m[1])
	if m[2] != "" {
		data.Label = strp(m[2])
	}

	rest := strings.TrimSpace(m[3])
	if rest == "" {
		return data
	}

	parseTypeAndAttrs(rest, &data)
	return data
}

// ParseTypeAndAttrs decodes a field's type, default value, attributes, and
// trailing description from the text following `name[(label)]: `. Exported
// so the parser can reuse it for nested object sub-fields, which share the
// same grammar (§4.3 "nested items ... parsed with the same type-and-attrs
// grammar").
func ParseTypeAndAttrs(rest string) Data {
	var data Data
	parseTypeAndAttrs(rest, &data)
	return data
}

func parseTypeAndAttrs(rest string, data *Data) {
	bytes := []byte(rest)
	length := len(bytes)
	pos := 0

	skipWS := func() {
		for pos < length && bytes[pos] == ' ' {
			pos++
		}
	}

	if length > 0 && bytes[0] == '"' {
		closeIdx := findClosingQuote(rest, 0)
		if closeIdx >= 0 && closeIdx == length-1 {
			data.Description = strp(rest[1:closeIdx])
			return
		}
	}

	if m := reTypePart.FindStringSubmatchIndex(rest); m != nil {
		data.TypeName = strp(rest[m[2]:m[3]])

		if m[4] >= 0 {
			data.TypeGenericParams = splitTrimNonEmpty(rest[m[4]:m[5]], ",")
		}

		if m[6] >= 0 {
			for _, s := range strings.Split(rest[m[6]:m[7]], ",") {
				s = strings.TrimSpace(s)
				if n, err := strconv.ParseFloat(s, 64); err == nil {
					data.TypeParams = append(data.TypeParams, ast.NewNumberParam(n))
				} else {
					data.TypeParams = append(data.TypeParams, ast.NewStringParam(s))
				}
			}
		}

		arrayMatched := m[10] >= 0 && rest[m[10]:m[11]] == "[]"
		q4Matched := m[8] >= 0 && rest[m[8]:m[9]] == "?"
		q6Matched := m[12] >= 0 && rest[m[12]:m[13]] == "?"

		data.Array = arrayMatched
		if data.Array {
			data.Nullable = q6Matched
			data.ArrayItemNullable = q4Matched
		} else {
			data.Nullable = q4Matched || q6Matched
			data.ArrayItemNullable = false
		}

		pos = m[1]
		skipWS()
	}

	if pos < length && bytes[pos] == '=' {
		pos++
		skipWS()
		switch {
		case pos < length && bytes[pos] == '"':
			closeIdx := findClosingQuote(rest, pos)
			if closeIdx >= 0 {
				data.DefaultValue = strp(rest[pos : closeIdx+1])
				pos = closeIdx + 1
				skipWS()
			}
		case pos < length && bytes[pos] == '`':
			closeIdx := findClosingBacktick(rest, pos)
			if closeIdx >= 0 {
				data.DefaultValue = strp(rest[pos : closeIdx+1])
				pos = closeIdx + 1
				skipWS()
			}
		default:
			start := pos
			for pos < length && bytes[pos] != ' ' && bytes[pos] != '@' && bytes[pos] != '"' && bytes[pos] != '`' {
				if bytes[pos] == '(' {
					closeP := findBalancedParen(rest, pos)
					if closeP >= 0 {
						pos = closeP + 1
					} else {
						pos++
					}
				} else {
					pos++
				}
			}
			data.DefaultValue = strp(rest[start:pos])
			skipWS()
		}
	}

	var attrs []RawAttribute
	for pos < length && (bytes[pos] == '@' || bytes[pos] == '!' || bytes[pos] == '?') {
		if bytes[pos] == '!' || bytes[pos] == '?' {
			symbol := string(bytes[pos])
			pos++
			if symbol == "!" && pos < length && bytes[pos] == '!' {
				symbol = "!!"
				pos++
			}
			if len(attrs) > 0 {
				attrs[len(attrs)-1].Cascade = strp(symbol)
			}
			skipWS()
			continue
		}

		pos++ // skip @
		nameStart := pos
		for pos < length && isWordChar(bytes[pos]) {
			pos++
		}
		attrName := rest[nameStart:pos]
		var args []ast.AttrArgValue
		if pos < length && bytes[pos] == '(' {
			closeP := findBalancedParen(rest, pos)
			if closeP >= 0 {
				args = parseAttrArgsString(rest[pos+1 : closeP])
				pos = closeP + 1
			}
		}
		attrs = append(attrs, RawAttribute{Name: attrName, Args: args})
		skipWS()
	}
	if len(attrs) > 0 {
		data.Attributes = attrs
	}

	skipWS()
	if pos < length && bytes[pos] == '"' {
		closeIdx := findClosingQuote(rest, pos)
		if closeIdx >= 0 {
			data.Description = strp(rest[pos+1 : closeIdx])
		}
	}
}

func parseNestedItem(content string) Data {
	var data Data

	if m := reNestedKV.FindStringSubmatch(content); m != nil {
		data.Key = strp(m[1])
		data.Value = strp(strings.TrimSpace(m[2]))
	}

	fieldData := parseFieldLine(content)
	if data.Key == nil || data.Name == nil {
		data.Name = fieldData.Name
	}
	if fieldData.TypeName != nil && data.Key == nil {
		data.TypeName = fieldData.TypeName
		data.TypeParams = fieldData.TypeParams
		data.TypeGenericParams = fieldData.TypeGenericParams
		data.Nullable = fieldData.Nullable
		data.Array = fieldData.Array
		data.ArrayItemNullable = fieldData.ArrayItemNullable
		data.DefaultValue = fieldData.DefaultValue
		data.Attributes = fieldData.Attributes
		data.Description = fieldData.Description
		data.FrameworkAttrs = fieldData.FrameworkAttrs
		data.Label = fieldData.Label
		data.Comment = fieldData.Comment
	}

	return data
}

func splitTrimNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
