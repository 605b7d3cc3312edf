package parser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	hdrerrors "github.com/ardanlabs/hdrgen/errors"
)

var funcPtrParamRe = regexp.MustCompile(`\(\s*[*^&]\s*([A-Za-z_]\w*)\s*\)`)

var builtinWords = map[string]bool{
	"void": true, "char": true, "short": true, "int": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true,
	"bool": true, "const": true, "volatile": true, "struct": true,
	"union": true, "enum": true, "auto": true,
}

type FloatingDocPolicy int

const (
	FloatingDocsDiscard FloatingDocPolicy = iota
	FloatingDocsAppend
)

type BuildOptions struct {
	IgnoreWords      []string
	StoreLineNumbers bool
	TolerateUnknown  bool
	FloatingDocs     FloatingDocPolicy

	// Workers bounds ParseAll. Zero means one per CPU.
	Workers int
}

// Source is one named header text.
type Source struct {
	Name string
	Text string
}

// Result holds the outcome of parsing one Source.
type Result struct {
	Name string
	File *ApiFile
	Err  error
}

// Parse tokenizes and builds one file.
func Parse(name string, text string, opts BuildOptions) (*ApiFile, error) {
	toks, err := Tokenize(SplitLines(text), TokenizeOptions{IgnoreWords: opts.IgnoreWords})
	if err != nil {
		return nil, withFile(err, name)
	}

	f, err := Build(name, toks, opts)
	if err != nil {
		return nil, withFile(err, name)
	}

	return f, nil
}

// ParseAll parses sources concurrently. A failing file is reported in its own
// Result and never affects the others. The returned error is only set when
// ctx is cancelled.
func ParseAll(ctx context.Context, sources []Source, opts BuildOptions) ([]Result, error) {
	results := make([]Result, len(sources))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := Parse(src.Name, src.Text, opts)
			results[i] = Result{Name: src.Name, File: f, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parsing batch: %w", err)
	}

	return results, nil
}

// SplitLines splits text into lines, accepting \n and \r\n endings. A final
// newline does not produce an extra empty line.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func withFile(err error, name string) error {
	var he *hdrerrors.Error
	if errors.As(err, &he) && he.File == "" {
		he.WithFile(name)
	}
	return err
}

// Build turns a token stream into an ApiFile.
func Build(name string, tokens []Token, opts BuildOptions) (*ApiFile, error) {
	b := builder{opts: opts}

	entries, doc, err := b.build(tokens, false)
	if err != nil {
		return nil, err
	}

	f := NewApiFile(name)
	f.Doc = doc
	f.Entries = entries

	return f, nil
}

type builder struct {
	opts BuildOptions
}

func (b builder) build(tokens []Token, enum bool) (*EntryMap, string, error) {
	entries := NewEntryMap()

	var fileDoc []string
	var pending string
	pendingEnd := -1
	havePending := false
	seenDecl := false
	var tmpl []string

	flush := func() {
		if !havePending {
			return
		}
		if !seenDecl || b.opts.FloatingDocs == FloatingDocsAppend {
			fileDoc = append(fileDoc, pending)
		}
		havePending = false
	}

	for _, tok := range tokens {
		switch tok.Kind {
		case KindEnd:
			flush()
			return entries, strings.Join(fileDoc, "\n\n"), nil

		case KindDoc:
			flush()
			pending = tok.Value
			pendingEnd = tok.End
			havePending = true

		case KindTemplate:
			if havePending && tok.Decl == pendingEnd {
				pendingEnd = tok.End
			} else {
				flush()
			}
			tmpl = tok.Parameters

		case KindOther:
			flush()
			tmpl = nil

		case KindFunction, KindVariable, KindStruct, KindUnion, KindEnum,
			KindCallback, KindAlias, KindForward, KindDef:
			doc := ""
			if havePending && tok.Decl == pendingEnd {
				doc = pending
				havePending = false
			} else {
				flush()
			}
			if tok.Template == nil {
				tok.Template = tmpl
			}
			tmpl = nil

			es, err := b.entries(tok, appendDoc(doc, tok.Doc), enum)
			if err != nil {
				return nil, "", err
			}
			for _, e := range es {
				entries.Add(e.Name, e)
			}
			seenDecl = true

		default:
			if b.opts.TolerateUnknown {
				flush()
				continue
			}
			return nil, "", hdrerrors.Errorf(hdrerrors.UnknownEntryKind, "unknown token kind %s", tok.Kind).WithLine(tok.Decl)
		}
	}

	flush()
	return entries, strings.Join(fileDoc, "\n\n"), nil
}

func (b builder) entries(tok Token, doc string, enum bool) ([]Entry, error) {
	e := Entry{
		Name:     tok.Value,
		Doc:      doc,
		Template: tok.Template,
	}
	if b.opts.StoreLineNumbers {
		e.Begin, e.Decl, e.End = tok.Begin, tok.Decl, tok.End
	}

	switch tok.Kind {
	case KindFunction:
		e.Kind = EntryFunction
		e.Type = tok.Type
		e.Parameters = ParseParams(tok.Parameters)
		e.Immutable = tok.Immutable
		e.Value = tok.Init

	case KindCallback:
		e.Kind = EntryCallback
		e.Type = tok.Type
		e.Parameters = ParseParams(tok.Parameters)

	case KindVariable:
		e.Kind = EntryVar
		if enum {
			return b.enumerators(tok, e), nil
		}
		e.Type = tok.Type
		e.Value = tok.Init

	case KindAlias:
		e.Kind = EntryAlias
		e.Type = tok.Type

	case KindForward:
		e.Kind = EntryForward
		e.Type = tok.Type

	case KindDef:
		e.Kind = EntryDef
		e.Value = tok.Init
		if tok.Parameters != nil {
			e.Parameters = make([]Param, 0, len(tok.Parameters))
			for _, p := range tok.Parameters {
				e.Parameters = append(e.Parameters, Param{Name: p})
			}
		}

	case KindStruct, KindUnion, KindEnum:
		if tok.Value == "" {
			return nil, nil
		}
		e.Type = tok.Type
		switch tok.Kind {
		case KindStruct:
			e.Kind = EntryStruct
		case KindUnion:
			e.Kind = EntryUnion
		default:
			e.Kind = EntryEnum
		}

		if len(tok.Body) > 0 {
			nested, err := b.body(tok, tok.Kind == KindEnum)
			if err != nil {
				return nil, err
			}
			if nested.Len() > 0 {
				e.Entries = nested
			}
		}
	}

	return []Entry{e}, nil
}

func (b builder) body(tok Token, enum bool) (*EntryMap, error) {
	toks, err := Tokenize(tok.Body, TokenizeOptions{
		IgnoreWords: b.opts.IgnoreWords,
		Enum:        enum,
		Nested:      !enum,
		LineOffset:  tok.BodyLine - 1,
	})
	if err != nil {
		return nil, fmt.Errorf("body of %s: %w", tok.Value, err)
	}

	nested, _, err := b.build(toks, enum)
	if err != nil {
		return nil, fmt.Errorf("body of %s: %w", tok.Value, err)
	}

	return nested, nil
}

// enumerators expands an enum-mode token into one entry per enumerator; the
// doc goes to the first.
func (b builder) enumerators(tok Token, first Entry) []Entry {
	out := make([]Entry, 0, len(tok.Parameters))
	for i, frag := range tok.Parameters {
		name, value := splitEnumerator(frag)
		if name == "" {
			continue
		}
		e := first
		e.Name = name
		e.Value = value
		if i > 0 {
			e.Doc = ""
		}
		out = append(out, e)
	}
	return out
}

// ParseParams converts raw parameter descriptors. A lone "void" means no
// parameters.
func ParseParams(raw []string) []Param {
	if len(raw) == 0 || (len(raw) == 1 && strings.TrimSpace(raw[0]) == "void") {
		return nil
	}

	params := make([]Param, 0, len(raw))
	for _, r := range raw {
		params = append(params, parseParam(strings.TrimSpace(r)))
	}
	return params
}

func parseParam(s string) Param {
	if s == "..." {
		return Param{Raw: s}
	}

	var p Param
	if i := topLevelIndex(s, '='); i != -1 {
		p.Default = strings.TrimSpace(s[i+1:])
		s = strings.TrimSpace(s[:i])
	}

	if m := funcPtrParamRe.FindStringSubmatchIndex(s); m != nil {
		p.Name = s[m[2]:m[3]]
		p.Type = NormalizeType(s[:m[2]] + s[m[3]:])
		return p
	}

	m := nameTailRe.FindStringSubmatchIndex(s)
	if m == nil || strings.TrimSpace(s[:m[2]]) == "" || builtinWords[s[m[2]:m[3]]] {
		p.Type = NormalizeType(s)
		return p
	}

	p.Name = s[m[2]:m[3]]
	p.Type = NormalizeType(strings.TrimSpace(s[:m[2]]) + strings.ReplaceAll(s[m[4]:m[5]], " ", ""))
	return p
}
