// Package transform rewrites parsed source files into target files
// according to the rules in config.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ardanlabs/hdrgen/config"
	hdrerrors "github.com/ardanlabs/hdrgen/errors"
	"github.com/ardanlabs/hdrgen/logging"
	"github.com/ardanlabs/hdrgen/parser"
)

// ForwardSuffix keeps forward declarations from colliding with the entry
// that defines the same name.
const ForwardSuffix = "#forward"

var docCommandRe = regexp.MustCompile(`\\([a-zA-Z]+)`)

type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
}

// Result is the outcome of a batch. Rules is the run's copy of the rules,
// with computed names written back into overrides that had none.
type Result struct {
	Files    []*parser.ApiFile
	Warnings []*hdrerrors.Error
	Rules    *config.Config
}

func New(cfg *config.Config, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Engine{
		cfg:    cfg,
		logger: logger,
	}
}

type group struct {
	target  string
	sources []*parser.ApiFile
}

// groups collects sources under their targets, ordered by first appearance.
func (e *Engine) groups(files []*parser.ApiFile) []group {
	var out []group
	index := make(map[string]int)

	for _, f := range files {
		target := e.cfg.Target(f.Name)
		i, ok := index[target]
		if !ok {
			i = len(out)
			index[target] = i
			out = append(out, group{target: target})
		}
		out[i].sources = append(out[i].sources, f)
	}

	return out
}

func (e *Engine) newContext() *Context {
	return NewContext(e.cfg.TypeMap, e.cfg.ParamTypeMap, e.cfg.ReturnTypeMap)
}

// Transform runs the batch sequentially. Renames discovered in one file
// apply to every file after it.
func (e *Engine) Transform(ctx context.Context, files []*parser.ApiFile) (*Result, error) {
	rules := e.cfg.Clone()
	tctx := e.newContext()
	res := Result{Rules: rules}

	for _, g := range e.groups(files) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("transforming %s: %w", g.target, err)
		}

		r := e.newRun(g.target, rules, tctx)
		res.Files = append(res.Files, r.transform(g.sources))
		res.Warnings = append(res.Warnings, r.warnings...)
	}

	return &res, nil
}

// TransformConcurrent runs each target on its own worker with a fresh copy
// of the seeded context, so renames never cross targets.
func (e *Engine) TransformConcurrent(ctx context.Context, files []*parser.ApiFile, workers int) (*Result, error) {
	groups := e.groups(files)

	type output struct {
		file     *parser.ApiFile
		warnings []*hdrerrors.Error
		fc       config.FileConfig
		claimed  bool
	}
	outputs := make([]output, len(groups))
	seed := e.newContext()

	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, grp := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rules := e.cfg.Clone()
			r := e.newRun(grp.target, rules, seed.Clone())
			f := r.transform(grp.sources)

			fc, claimed := rules.Files[grp.target]
			outputs[i] = output{file: f, warnings: r.warnings, fc: fc, claimed: claimed}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("transforming batch: %w", err)
	}

	res := Result{Rules: e.cfg.Clone()}
	for i, out := range outputs {
		res.Files = append(res.Files, out.file)
		res.Warnings = append(res.Warnings, out.warnings...)
		if out.claimed {
			res.Rules.Files[groups[i].target] = out.fc
		}
	}

	return &res, nil
}

// run transforms the sources of one target.
type run struct {
	target   string
	prefixes []string
	fc       config.FileConfig
	ctx      *Context
	logger   *slog.Logger
	out      *parser.ApiFile
	warnings []*hdrerrors.Error

	ignore map[string]bool
	defs   map[string]bool
	file   string
}

func (e *Engine) newRun(target string, rules *config.Config, tctx *Context) *run {
	r := run{
		target:   target,
		prefixes: rules.Prefixes,
		fc:       rules.Files[target],
		ctx:      tctx,
		logger:   e.logger.With("target", target),
		out:      parser.NewApiFile(target),
		ignore:   make(map[string]bool),
		defs:     make(map[string]bool),
	}

	for _, n := range r.fc.IgnoreEntries {
		r.ignore[n] = true
		r.ignore[r.defaultName(n)] = true
	}
	for _, n := range r.fc.IncludeDefs {
		r.defs[n] = true
		r.defs[r.defaultName(n)] = true
	}

	return &r
}

func (r *run) transform(sources []*parser.ApiFile) *parser.ApiFile {
	var docs []string

	for _, src := range sources {
		r.file = src.Name
		r.logger.Debug("transforming file", "source", src.Name, "entries", src.Entries.Len())

		if src.Doc != "" {
			docs = append(docs, convertDoc(src.Doc))
		}
		src.Entries.Each(func(name string, es []parser.Entry) {
			for _, e := range es {
				r.entry(name, e)
			}
		})
	}

	begin := r.fc.IncludeAt.Begin
	for i := len(begin) - 1; i >= 0; i-- {
		e := begin[i].Entry()
		e.SourceName = e.Name
		r.out.Entries.Prepend(e.Name, e)
	}

	r.out.Doc = strings.Join(docs, "\n\n")

	return r.out
}

// defaultName strips the first matching prefix.
func (r *run) defaultName(name string) string {
	for _, p := range r.prefixes {
		if p != "" && strings.HasPrefix(name, p) && len(name) > len(p) {
			return name[len(p):]
		}
	}
	return name
}

func (r *run) warn(code hdrerrors.ErrorCode, name string, format string, args ...any) {
	w := hdrerrors.Errorf(code, format, args...).WithFile(r.file).WithNames(name)
	r.warnings = append(r.warnings, w)
	r.logger.Warn("transform warning", "code", code, "entry", name, "msg", w.Message)
}

func (r *run) entry(srcName string, e parser.Entry) {
	name := r.defaultName(srcName)

	if r.ignore[srcName] || r.ignore[name] {
		r.logger.Debug("ignoring entry", "entry", srcName)
		return
	}
	if e.Kind == parser.EntryDef && !r.defs[srcName] && !r.defs[name] {
		return
	}

	origin := srcName
	if e.SourceName != "" {
		origin = e.SourceName
	}

	out := e.Clone()
	out.SourceName = origin
	out.Doc = convertDoc(out.Doc)

	resource := false
	if rule, ok := r.fc.TypeRule(srcName); ok {
		switch rule.Kind {
		case config.ResourceKind:
			switch e.Kind {
			case parser.EntryAlias, parser.EntryForward, parser.EntryStruct:
				resource = true
				if rule.Name != "" {
					name = rule.Name
				}
			default:
				r.warn(hdrerrors.ConfigurationMismatch, srcName, "resource rule on %s entry", e.Kind)
			}
		case config.AliasKind:
			if rule.Name != "" {
				name = rule.Name
			}
		default:
			r.warn(hdrerrors.ConfigurationMismatch, srcName, "unknown type rule kind %q", rule.Kind)
		}
	}

	if resource {
		r.emit(r.resource(srcName, name, out))
		return
	}

	switch e.Kind {
	case parser.EntryFunction:
		out.Type = r.ctx.ReturnType(out.Type)
		for i, p := range out.Parameters {
			if p.Raw == "" {
				out.Parameters[i].Type = r.ctx.ParamType(p.Type)
			}
		}

	case parser.EntryVar:
		out.Type = r.ctx.Type(out.Type)

	case parser.EntryStruct, parser.EntryUnion, parser.EntryEnum, parser.EntryCallback:
		name = r.overrideName(srcName, origin, name)
		if name == srcName {
			convertNestedDocs(out.Entries)
			break
		}
		out = parser.Entry{
			Name:       name,
			Kind:       parser.EntryAlias,
			Type:       srcName,
			Doc:        out.Doc,
			SourceName: origin,
			Begin:      out.Begin,
			Decl:       out.Decl,
			End:        out.End,
		}
		r.ctx.Register(srcName, name)

	case parser.EntryAlias:
		out.Type = r.ctx.Type(out.Type)
		name = r.overrideName(srcName, origin, name)
		if name != out.Type {
			r.ctx.Register(srcName, name)
		}

	case parser.EntryForward:
		if !strings.HasSuffix(name, ForwardSuffix) {
			name += ForwardSuffix
		}

	case parser.EntryDef:
		out.Value = origin
	}

	out.Name = name
	r.emit(r.override(srcName, origin, out))
}

// resource builds the <Name>Base scaffold and routes parameters to the Ref
// form and returns to the plain name.
func (r *run) resource(srcName, name string, e parser.Entry) parser.Entry {
	base := name + "Base"

	ctor := parser.Entry{
		Name:       base,
		Kind:       parser.EntryFunction,
		Parameters: []parser.Param{{Name: "resource", Type: "T"}},
		Value:      "T(std::move(resource))",
	}
	members := parser.NewEntryMap()
	members.Add(base, ctor)

	r.ctx.RegisterParam(srcName, name+"Ref")
	r.ctx.RegisterReturn(srcName, name)

	r.logger.Debug("resource type", "entry", srcName, "name", name)

	out := parser.Entry{
		Name:       base,
		Kind:       parser.EntryStruct,
		Type:       "T",
		Template:   []string{"class T"},
		Doc:        e.Doc,
		Entries:    members,
		SourceName: e.SourceName,
		Begin:      e.Begin,
		Decl:       e.Decl,
		End:        e.End,
	}

	return r.override(srcName, e.SourceName, out)
}

// overrideName returns the name an override gives the entry, or name when
// there is none. Substitutions must be registered under this name.
func (r *run) overrideName(srcName, origin, name string) string {
	for _, key := range []string{srcName, origin, name} {
		if spec, ok := r.fc.Transform[key]; ok {
			if spec.Name != "" {
				return spec.Name
			}
			return name
		}
	}

	return name
}

// override merges the configured partial entry, looked up by source name,
// then provenance, then computed name. An override without a name gets the
// computed one written back.
func (r *run) override(srcName, origin string, e parser.Entry) parser.Entry {
	for _, key := range []string{srcName, origin, e.Name} {
		spec, ok := r.fc.Transform[key]
		if !ok {
			continue
		}
		if spec.Name == "" {
			spec.Name = e.Name
			r.fc.Transform[key] = spec
		}

		out := spec.Apply(e)
		out.Doc = convertDoc(out.Doc)
		return out
	}

	return e
}

func (r *run) emit(e parser.Entry) {
	r.out.Entries.Add(e.Name, e)
}

func convertDoc(doc string) string {
	if doc == "" {
		return doc
	}
	return docCommandRe.ReplaceAllString(doc, "@$1")
}

func convertNestedDocs(m *parser.EntryMap) {
	m.Each(func(name string, es []parser.Entry) {
		for i := range es {
			es[i].Doc = convertDoc(es[i].Doc)
			convertNestedDocs(es[i].Entries)
		}
	})
}
