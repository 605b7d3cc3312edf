package generator

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"unicode"

	"github.com/ardanlabs/hdrgen/config"
	"github.com/ardanlabs/hdrgen/parser"
	"github.com/ardanlabs/hdrgen/transform"
)

// DefaultNamespace is used when the rules name none.
const DefaultNamespace = "api"

const indentUnit = "  "

var prologue = template.Must(template.New("prologue").Parse(`#ifndef {{.Guard}}
#define {{.Guard}}
{{if .Doc}}
{{.Doc}}
{{end}}
{{if .Condition}}#if {{.Condition}}

{{end}}{{range .Includes}}#include <{{.}}>
{{end}}{{range .LocalIncludes}}#include "{{.}}"
{{end}}
namespace {{.Namespace}} {

`))

// Generator renders target files as C++ headers that the amalgamator can
// merge.
type Generator struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Generator {
	if cfg == nil {
		cfg = &config.Config{}
	}

	return &Generator{
		cfg: cfg,
	}
}

// Generate renders every file. The map is keyed by file name.
func (g *Generator) Generate(files []*parser.ApiFile) (map[string]string, error) {
	out := make(map[string]string, len(files))

	for _, f := range files {
		code, err := g.GenerateFile(f)
		if err != nil {
			return nil, fmt.Errorf("generating %s: %w", f.Name, err)
		}
		out[f.Name] = code
	}

	return out, nil
}

func (g *Generator) namespace() string {
	if g.cfg.Namespace == "" {
		return DefaultNamespace
	}
	return g.cfg.Namespace
}

// GenerateFile renders one header.
func (g *Generator) GenerateFile(f *parser.ApiFile) (string, error) {
	fc := g.cfg.Files[f.Name]
	ns := g.namespace()

	var buf bytes.Buffer

	includes := append([]string(nil), fc.Includes...)
	sort.Strings(includes)

	err := prologue.Execute(&buf, map[string]any{
		"Guard":         GuardName(f.Name),
		"Doc":           docComment(f.Doc, ""),
		"Condition":     fc.Condition,
		"Includes":      includes,
		"LocalIncludes": fc.LocalIncludes,
		"Namespace":     ns,
	})
	if err != nil {
		return "", fmt.Errorf("rendering prologue: %w", err)
	}

	g.writeEntries(&buf, f.Entries, "", parser.EntryKind(""))

	fmt.Fprintf(&buf, "} // namespace %s\n\n", ns)
	if fc.Condition != "" {
		fmt.Fprintf(&buf, "#endif // %s\n\n", fc.Condition)
	}
	fmt.Fprintf(&buf, "#endif /* %s */\n", GuardName(f.Name))

	return buf.String(), nil
}

// GuardName derives an include guard from a file name.
func GuardName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteByte('_')
		}
	}
	b.WriteByte('_')

	return b.String()
}

func (g *Generator) writeEntries(buf *bytes.Buffer, m *parser.EntryMap, indent string, parent parser.EntryKind) {
	m.Each(func(name string, es []parser.Entry) {
		for _, e := range es {
			g.writeEntry(buf, e, indent, parent)
		}
	})
}

func (g *Generator) writeEntry(buf *bytes.Buffer, e parser.Entry, indent string, parent parser.EntryKind) {
	if doc := docComment(e.Doc, indent); doc != "" {
		fmt.Fprintf(buf, "%s\n", doc)
	}
	if len(e.Template) > 0 {
		fmt.Fprintf(buf, "%stemplate<%s>\n", indent, strings.Join(e.Template, ", "))
	}

	switch e.Kind {
	case parser.EntryAlias:
		fmt.Fprintf(buf, "%susing %s = %s;\n", indent, e.Name, e.Type)

	case parser.EntryCallback:
		fmt.Fprintf(buf, "%susing %s = %s (*)(%s);\n", indent, e.Name, e.Type, joinParams(e.Parameters))

	case parser.EntryForward:
		tag := e.Type
		if tag == "" {
			tag = "struct"
		}
		fmt.Fprintf(buf, "%s%s %s;\n", indent, tag, strings.TrimSuffix(e.Name, transform.ForwardSuffix))

	case parser.EntryDef:
		g.writeDef(buf, e)

	case parser.EntryVar:
		g.writeVar(buf, e, indent, parent)

	case parser.EntryFunction:
		g.writeFunction(buf, e, indent, parent)

	case parser.EntryStruct, parser.EntryUnion:
		keyword := "struct"
		if e.Kind == parser.EntryUnion {
			keyword = "union"
		}
		fmt.Fprintf(buf, "%s%s %s", indent, keyword, e.Name)
		if e.Type != "" {
			fmt.Fprintf(buf, " : %s", e.Type)
		}
		fmt.Fprintf(buf, "\n%s{\n", indent)
		g.writeEntries(buf, e.Entries, indent+indentUnit, e.Kind)
		fmt.Fprintf(buf, "%s};\n", indent)

	case parser.EntryEnum:
		fmt.Fprintf(buf, "%senum %s", indent, e.Name)
		if e.Type != "" {
			fmt.Fprintf(buf, " : %s", e.Type)
		}
		fmt.Fprintf(buf, "\n%s{\n", indent)
		g.writeEntries(buf, e.Entries, indent+indentUnit, e.Kind)
		fmt.Fprintf(buf, "%s};\n", indent)

	default:
		fmt.Fprintf(buf, "%s// %s: unsupported kind %q\n", indent, e.Name, e.Kind)
	}

	if parent == "" {
		buf.WriteByte('\n')
	}
}

func (g *Generator) writeDef(buf *bytes.Buffer, e parser.Entry) {
	if e.Parameters == nil {
		fmt.Fprintf(buf, "#define %s %s\n", e.Name, e.Value)
		return
	}

	args := make([]string, 0, len(e.Parameters))
	for _, p := range e.Parameters {
		args = append(args, p.Name)
	}
	list := strings.Join(args, ", ")

	// A value naming the original macro forwards the arguments to it.
	if e.Value == e.SourceName {
		fmt.Fprintf(buf, "#define %s(%s) %s(%s)\n", e.Name, list, e.Value, list)
		return
	}
	fmt.Fprintf(buf, "#define %s(%s) %s\n", e.Name, list, e.Value)
}

func (g *Generator) writeVar(buf *bytes.Buffer, e parser.Entry, indent string, parent parser.EntryKind) {
	switch {
	case parent == parser.EntryEnum:
		if e.Value != "" {
			fmt.Fprintf(buf, "%s%s = %s,\n", indent, e.Name, e.Value)
			return
		}
		fmt.Fprintf(buf, "%s%s,\n", indent, e.Name)

	case parent != "":
		fmt.Fprintf(buf, "%s%s;\n", indent, declare(e.Type, e.Name))

	case e.Value != "":
		fmt.Fprintf(buf, "%sconstexpr %s = %s;\n", indent, declare(e.Type, e.Name), e.Value)

	case e.SourceName != "" && e.SourceName != e.Name:
		fmt.Fprintf(buf, "%sinline auto &%s = ::%s;\n", indent, e.Name, e.SourceName)

	default:
		fmt.Fprintf(buf, "%sextern %s;\n", indent, declare(e.Type, e.Name))
	}
}

func (g *Generator) writeFunction(buf *bytes.Buffer, e parser.Entry, indent string, parent parser.EntryKind) {
	params := make([]parser.Param, len(e.Parameters))
	copy(params, e.Parameters)

	variadic := false
	for i, p := range params {
		if p.Raw != "" {
			variadic = true
			continue
		}
		if p.Name == "" {
			params[i].Name = fmt.Sprintf("arg%d", i)
		}
	}

	var sig strings.Builder
	sig.WriteString(indent)
	if parent == "" && e.Type != "" {
		sig.WriteString("inline ")
	}
	if e.Type != "" {
		sig.WriteString(declare(e.Type, e.Name))
	} else {
		sig.WriteString(e.Name)
	}
	fmt.Fprintf(&sig, "(%s)", joinParams(params))
	if e.Immutable {
		sig.WriteString(" const")
	}

	switch {
	case e.Type == "" && e.Value != "" && parent != "":
		fmt.Fprintf(buf, "%s\n%s  : %s\n%s{\n%s}\n", sig.String(), indent, e.Value, indent, indent)

	case e.Value == "default" || e.Value == "delete" || e.Value == "0":
		fmt.Fprintf(buf, "%s = %s;\n", strings.Replace(sig.String(), "inline ", "", 1), e.Value)

	case parent == "" && !variadic && e.SourceName != "" && e.SourceName != e.Name:
		args := make([]string, 0, len(params))
		for _, p := range params {
			args = append(args, p.Name)
		}
		call := fmt.Sprintf("::%s(%s)", e.SourceName, strings.Join(args, ", "))

		fmt.Fprintf(buf, "%s\n%s{\n", sig.String(), indent)
		if e.Type == "void" {
			fmt.Fprintf(buf, "%s  %s;\n", indent, call)
		} else {
			fmt.Fprintf(buf, "%s  return %s;\n", indent, call)
		}
		fmt.Fprintf(buf, "%s}\n", indent)

	default:
		fmt.Fprintf(buf, "%s;\n", strings.Replace(sig.String(), "inline ", "", 1))
	}
}

// declare joins a type and a name, moving array extents after the name.
func declare(typ, name string) string {
	if i := strings.IndexByte(typ, '['); i != -1 && !strings.Contains(typ, "(") {
		return declare(strings.TrimSpace(typ[:i]), name) + typ[i:]
	}

	return parser.Param{Type: typ, Name: name}.String()
}

func joinParams(params []parser.Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.Raw != "" {
			parts = append(parts, p.Raw)
			continue
		}
		if strings.Contains(p.Type, "(*)") && p.Name != "" {
			parts = append(parts, strings.Replace(p.Type, "(*)", "(*"+p.Name+")", 1))
			continue
		}
		parts = append(parts, declare(p.Type, p.Name)+defaultSuffix(p))
	}

	return strings.Join(parts, ", ")
}

func defaultSuffix(p parser.Param) string {
	if p.Default == "" {
		return ""
	}
	return " = " + p.Default
}

func docComment(doc, indent string) string {
	if doc == "" {
		return ""
	}

	lines := strings.Split(doc, "\n")
	if len(lines) == 1 {
		return fmt.Sprintf("%s/** %s */", indent, lines[0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s/**\n", indent)
	for _, l := range lines {
		if l == "" {
			fmt.Fprintf(&b, "%s *\n", indent)
			continue
		}
		fmt.Fprintf(&b, "%s * %s\n", indent, l)
	}
	fmt.Fprintf(&b, "%s */", indent)

	return b.String()
}
