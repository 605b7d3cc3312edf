// Package amalgamate merges generated headers into one dependency ordered
// artifact.
package amalgamate

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/ardanlabs/hdrgen/config"
	hdrerrors "github.com/ardanlabs/hdrgen/errors"
	"github.com/ardanlabs/hdrgen/generator"
	"github.com/ardanlabs/hdrgen/logging"
)

var (
	systemIncludeRe = regexp.MustCompile(`^\s*#\s*include\s*<([^>]+)>`)
	localIncludeRe  = regexp.MustCompile(`^\s*#\s*include\s*"([^"]+)"`)
	ifRe            = regexp.MustCompile(`^\s*#\s*(ifdef|ifndef|if)\b\s*(.*?)\s*$`)
	endifRe         = regexp.MustCompile(`^\s*#\s*endif\b`)
	defineRe        = regexp.MustCompile(`^\s*#\s*define\s+(\w+)\s*$`)
)

// DependencyFile is one header reached from the root.
type DependencyFile struct {
	Name        string
	Deps        []string
	Conditional bool
	Condition   string
	Includes    []string
	Content     []string

	// Preamble holds #if blocks that close before the namespace opens,
	// such as platform specific includes.
	Preamble []string
}

type Options struct {
	Namespace     string
	LibraryPrefix string
	MasterInclude string
	Guard         string
}

// OptionsFromConfig takes the amalgamation settings out of the rules.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Namespace:     cfg.Namespace,
		LibraryPrefix: cfg.LibraryPrefix,
		MasterInclude: cfg.MasterInclude,
		Guard:         cfg.Guard,
	}
}

type Amalgamator struct {
	opts    Options
	openRe  *regexp.Regexp
	closeRe *regexp.Regexp
}

func New(opts Options) *Amalgamator {
	if opts.Namespace == "" {
		opts.Namespace = generator.DefaultNamespace
	}
	ns := regexp.QuoteMeta(opts.Namespace)

	return &Amalgamator{
		opts:    opts,
		openRe:  regexp.MustCompile(`^\s*namespace\s+` + ns + `\s*\{\s*$`),
		closeRe: regexp.MustCompile(`^\s*\}\s*//\s*namespace\s+` + ns + `\s*$`),
	}
}

// Artifact is the merged output.
type Artifact struct {
	Order    []string
	Includes []string
	Text     string
}

func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, a.Text)
	return int64(n), err
}

// Run loads everything reachable from root and merges it.
func (a *Amalgamator) Run(ctx context.Context, root string, r Resolver) (*Artifact, error) {
	log := logging.FromContext(ctx).With("root", root)

	files, err := a.Load(ctx, root, r)
	if err != nil {
		return nil, err
	}

	order, err := Order(files)
	if err != nil {
		return nil, err
	}
	log.Debug("amalgamation order", "files", order)

	art := Artifact{
		Order:    order,
		Includes: a.includes(files),
	}
	art.Text = a.assemble(root, order, files, art.Includes)

	log.Info("amalgamated", "files", len(order), "includes", len(art.Includes))

	return &art, nil
}

// Load follows quoted includes from root and parses every file reached.
func (a *Amalgamator) Load(ctx context.Context, root string, r Resolver) (map[string]*DependencyFile, error) {
	log := logging.FromContext(ctx)

	files := make(map[string]*DependencyFile)
	queue := []string{root}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("loading %s: %w", root, err)
		}

		name := queue[0]
		queue = queue[1:]
		if _, ok := files[name]; ok {
			continue
		}

		text, err := r.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("loading dependencies of %s: %w", root, err)
		}

		f, err := a.Parse(name, text)
		if err != nil {
			return nil, err
		}
		files[name] = f
		log.Debug("dependency file", "file", name, "deps", f.Deps, "conditional", f.Conditional)

		for _, d := range f.Deps {
			if _, ok := files[d]; !ok {
				queue = append(queue, d)
			}
		}
	}

	return files, nil
}

// Parse reads the includes and body of one generated header. A file is
// conditional when an #if, #ifdef or #ifndef block other than the include
// guard encloses its namespace. Blocks that close before the namespace opens
// go to the preamble and their includes are not hoisted.
func (a *Amalgamator) Parse(name, text string) (*DependencyFile, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	f := DependencyFile{Name: name}

	open, closing := -1, -1
	for i, line := range lines {
		if a.openRe.MatchString(line) {
			open = i
			break
		}
	}
	head := lines
	if open != -1 {
		head = lines[:open]
		closing = a.closeMarker(lines, open)
		if closing == -1 {
			return nil, hdrerrors.Errorf(hdrerrors.MissingClosingMarker, "namespace %s opened but never closed", a.opts.Namespace).
				WithLine(open + 1).WithFile(name)
		}
	}

	blks, err := blocks(lines)
	if err != nil {
		return nil, err.WithFile(name)
	}

	var enclosing *block
	for i := range blks {
		b := &blks[i]
		if !b.guard && open != -1 && b.start < open && b.end > closing {
			enclosing = b
			break
		}
	}

	covered := make([]bool, len(head))
	for _, b := range blks {
		if b.guard {
			continue
		}
		for i := b.start; i <= b.end && i < len(head); i++ {
			covered[i] = true
		}
	}

	deps := make(map[string]bool)
	includes := make(map[string]bool)
	for i, line := range head {
		if m := localIncludeRe.FindStringSubmatch(line); m != nil && m[1] != name {
			deps[m[1]] = true
			continue
		}
		if m := systemIncludeRe.FindStringSubmatch(line); m != nil && enclosing == nil && !covered[i] {
			includes[m[1]] = true
		}
	}
	f.Deps = sortedKeys(deps)
	f.Includes = sortedKeys(includes)

	switch {
	case enclosing != nil:
		f.Conditional = true
		f.Condition = enclosing.condition()
		f.Content = withoutLocalIncludes(lines[enclosing.start : enclosing.end+1])

	case open != -1:
		f.Content = trimBlank(lines[open+1 : closing])
		for _, b := range blks {
			if !b.guard && b.depth == 0 && b.end < open {
				f.Preamble = append(f.Preamble, withoutLocalIncludes(lines[b.start:b.end+1])...)
			}
		}
	}

	return &f, nil
}

func (a *Amalgamator) closeMarker(lines []string, open int) int {
	for i := open + 1; i < len(lines); i++ {
		if a.closeRe.MatchString(lines[i]) {
			return i
		}
	}

	return -1
}

// block is one #if ... #endif span. start and end are the directive lines.
type block struct {
	start, end int
	kind, expr string
	guard      bool
	depth      int
}

func (b block) condition() string {
	switch b.kind {
	case "ifdef":
		return "defined(" + b.expr + ")"
	case "ifndef":
		return "!defined(" + b.expr + ")"
	}
	return b.expr
}

// blocks matches conditional directives and returns the spans ordered by
// their opening line. depth counts the enclosing blocks that are not include
// guards.
func blocks(lines []string) ([]block, *hdrerrors.Error) {
	var out []block
	var stack []int
	depth := 0

	for i, line := range lines {
		if m := ifRe.FindStringSubmatch(line); m != nil {
			b := block{start: i, kind: m[1], expr: m[2], depth: depth}
			b.guard = b.kind == "ifndef" && defines(lines, i+1, b.expr)
			if !b.guard {
				depth++
			}
			out = append(out, b)
			stack = append(stack, len(out)-1)
			continue
		}

		if endifRe.MatchString(line) && len(stack) > 0 {
			b := &out[stack[len(stack)-1]]
			stack = stack[:len(stack)-1]
			b.end = i
			if !b.guard {
				depth--
			}
		}
	}

	if len(stack) > 0 {
		b := out[stack[len(stack)-1]]
		return nil, hdrerrors.Errorf(hdrerrors.MissingClosingMarker, "#%s %s never closed", b.kind, b.expr).
			WithLine(b.start + 1)
	}

	return out, nil
}

// defines reports whether the first non-blank line from i defines name.
func defines(lines []string, i int, name string) bool {
	for ; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		m := defineRe.FindStringSubmatch(lines[i])
		return m != nil && m[1] == name
	}

	return false
}

func withoutLocalIncludes(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if !localIncludeRe.MatchString(l) {
			out = append(out, l)
		}
	}

	return out
}

// Order places files in rounds. Each round takes every unplaced file whose
// dependencies are placed, sorted by name.
func Order(files map[string]*DependencyFile) ([]string, error) {
	placed := make(map[string]bool, len(files))
	order := make([]string, 0, len(files))

	for len(order) < len(files) {
		var ready []string
		for name, f := range files {
			if placed[name] {
				continue
			}
			if allPlaced(f.Deps, placed) {
				ready = append(ready, name)
			}
		}

		if len(ready) == 0 {
			var unplaced []string
			for name := range files {
				if !placed[name] {
					unplaced = append(unplaced, name)
				}
			}
			sort.Strings(unplaced)

			return nil, hdrerrors.Errorf(hdrerrors.DependencyCycle, "no file can be placed").WithNames(unplaced...)
		}

		sort.Strings(ready)
		for _, name := range ready {
			placed[name] = true
		}
		order = append(order, ready...)
	}

	return order, nil
}

func allPlaced(deps []string, placed map[string]bool) bool {
	for _, d := range deps {
		if !placed[d] {
			return false
		}
	}
	return true
}

// includes returns the hoisted system includes, sorted, with the master
// include last.
func (a *Amalgamator) includes(files map[string]*DependencyFile) []string {
	set := make(map[string]bool)
	for _, f := range files {
		if f.Conditional {
			continue
		}
		for _, inc := range f.Includes {
			if a.opts.LibraryPrefix != "" && strings.HasPrefix(inc, a.opts.LibraryPrefix) {
				continue
			}
			set[inc] = true
		}
	}

	delete(set, a.opts.MasterInclude)
	out := sortedKeys(set)
	if a.opts.MasterInclude != "" {
		out = append(out, a.opts.MasterInclude)
	}

	return out
}

func (a *Amalgamator) assemble(root string, order []string, files map[string]*DependencyFile, includes []string) string {
	guard := a.opts.Guard
	if guard == "" {
		guard = generator.GuardName(root)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#ifndef %s\n#define %s\n\n", guard, guard)

	for _, inc := range includes {
		fmt.Fprintf(&b, "#include <%s>\n", inc)
	}
	if len(includes) > 0 {
		b.WriteByte('\n')
	}

	for _, name := range order {
		f := files[name]
		if f.Conditional || len(f.Preamble) == 0 {
			continue
		}
		writeLines(&b, f.Preamble)
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "namespace %s {\n\n", a.opts.Namespace)
	for _, name := range order {
		f := files[name]
		if f.Conditional || len(f.Content) == 0 {
			continue
		}
		writeLines(&b, f.Content)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "} // namespace %s\n\n", a.opts.Namespace)

	for _, name := range order {
		f := files[name]
		if !f.Conditional {
			continue
		}
		writeLines(&b, f.Content)
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "#endif /* %s */\n", guard)

	return b.String()
}

func writeLines(b *strings.Builder, lines []string) {
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
}

func trimBlank(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}

	return slices.Clone(lines[start:end])
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}
