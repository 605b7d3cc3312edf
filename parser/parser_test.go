package parser

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hdrerrors "github.com/ardanlabs/hdrgen/errors"
)

func TestParse_Overloads(t *testing.T) {
	src := `void f(int a);
void f(float a);
void f(double a);`

	f, err := Parse("over.h", src, BuildOptions{})
	require.NoError(t, err)

	es := f.Entries.Get("f")
	require.Len(t, es, 3)
	for i, want := range []string{"int", "float", "double"} {
		assert.Equal(t, want, es[i].Parameters[0].Type)
		assert.Equal(t, "a", es[i].Parameters[0].Name)
	}
}

func TestParse_Docs(t *testing.T) {
	src := `/** File doc. */

/** Attached. */
int a(void);

/** Floating. */

int b(void);`

	tests := map[string]struct {
		policy  FloatingDocPolicy
		fileDoc string
	}{
		"discard": {FloatingDocsDiscard, "File doc."},
		"append":  {FloatingDocsAppend, "File doc.\n\nFloating."},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := Parse("docs.h", src, BuildOptions{FloatingDocs: tt.policy})
			require.NoError(t, err)

			assert.Equal(t, tt.fileDoc, f.Doc)

			a, ok := f.Entries.First("a")
			require.True(t, ok)
			assert.Equal(t, "Attached.", a.Doc)
			assert.Empty(t, a.Parameters)

			b, ok := f.Entries.First("b")
			require.True(t, ok)
			assert.Empty(t, b.Doc)
		})
	}
}

func TestParse_DocAdjacency(t *testing.T) {
	tests := map[string]struct {
		src      string
		policy   FloatingDocPolicy
		fileDoc  string
		attached map[string]string
	}{
		"adjacent": {
			src:      "int a;\n/** B. */\nint b;",
			attached: map[string]string{"a": "", "b": "B."},
		},
		"blank line before first declaration": {
			src:      "/** Lead. */\n\nint a;",
			fileDoc:  "Lead.",
			attached: map[string]string{"a": ""},
		},
		"blank line discarded": {
			src:      "int a;\n\n/** Floating. */\n\nint b;",
			attached: map[string]string{"a": "", "b": ""},
		},
		"blank line appended": {
			src:      "int a;\n\n/** Floating. */\n\nint b;",
			policy:   FloatingDocsAppend,
			fileDoc:  "Floating.",
			attached: map[string]string{"a": "", "b": ""},
		},
		"directive between": {
			src:      "int a;\n/** Guarded. */\n#if X\nint b;\n#endif",
			attached: map[string]string{"a": "", "b": ""},
		},
		"same line": {
			src:      "int a;\n/** B. */ int b;",
			attached: map[string]string{"a": "", "b": "B."},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := Parse("docs.h", tt.src, BuildOptions{FloatingDocs: tt.policy})
			require.NoError(t, err)

			assert.Equal(t, tt.fileDoc, f.Doc)
			for entry, doc := range tt.attached {
				e, ok := f.Entries.First(entry)
				require.True(t, ok, entry)
				assert.Equal(t, doc, e.Doc, entry)
			}
		})
	}
}

func TestParse_CodeAfterCommentOrBody(t *testing.T) {
	tests := map[string]struct {
		src  string
		keys []string
		doc  string
	}{
		"doc":     {src: "/** The x. */ int x;\nint y;", keys: []string{"x", "y"}, doc: "The x."},
		"comment": {src: "/* note */ int x;\nint y;", keys: []string{"x", "y"}},
		"body":    {src: "int f(void) { return 0; } int g;", keys: []string{"f", "g"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := Parse("same.h", tt.src, BuildOptions{})
			require.NoError(t, err)

			assert.Equal(t, tt.keys, f.Entries.Keys())
			first, ok := f.Entries.First(tt.keys[0])
			require.True(t, ok)
			assert.Equal(t, tt.doc, first.Doc)
		})
	}
}

func TestParse_StructWithFieldDocs(t *testing.T) {
	src := `/** A point. */
typedef struct SDL_Point
{
    int x;   /**< x coord */
    int y;
} SDL_Point;`

	f, err := Parse("rect.h", src, BuildOptions{StoreLineNumbers: true})
	require.NoError(t, err)

	pt, ok := f.Entries.First("SDL_Point")
	require.True(t, ok)
	assert.Equal(t, EntryStruct, pt.Kind)
	assert.Equal(t, "A point.", pt.Doc)
	assert.Equal(t, 2, pt.Decl)
	assert.Equal(t, 7, pt.End)

	require.NotNil(t, pt.Entries)
	assert.Equal(t, []string{"x", "y"}, pt.Entries.Keys())

	x, _ := pt.Entries.First("x")
	assert.Equal(t, EntryVar, x.Kind)
	assert.Equal(t, "int", x.Type)
	assert.Equal(t, "x coord", x.Doc)
	assert.Equal(t, 4, x.Decl)

	y, _ := pt.Entries.First("y")
	assert.Equal(t, 5, y.Decl)
}

func TestParse_Enum(t *testing.T) {
	src := `/** Flags. */
typedef enum SDL_Flags
{
    SDL_FLAG_A = 0x1,  /**< first */
    SDL_FLAG_B = 1 << 2,
    SDL_FLAG_C
} SDL_Flags;
enum Color { RED, GREEN = 2, BLUE };`

	f, err := Parse("flags.h", src, BuildOptions{})
	require.NoError(t, err)

	flags, ok := f.Entries.First("SDL_Flags")
	require.True(t, ok)
	assert.Equal(t, EntryEnum, flags.Kind)
	assert.Equal(t, "Flags.", flags.Doc)
	assert.Equal(t, []string{"SDL_FLAG_A", "SDL_FLAG_B", "SDL_FLAG_C"}, flags.Entries.Keys())

	a, _ := flags.Entries.First("SDL_FLAG_A")
	assert.Equal(t, EntryVar, a.Kind)
	assert.Equal(t, "0x1", a.Value)
	assert.Equal(t, "first", a.Doc)

	color, ok := f.Entries.First("Color")
	require.True(t, ok)
	assert.Equal(t, []string{"RED", "GREEN", "BLUE"}, color.Entries.Keys())
	green, _ := color.Entries.First("GREEN")
	assert.Equal(t, "2", green.Value)
}

func TestParse_Class(t *testing.T) {
	src := `template<class T>
class Window : public Base {
public:
  Window(int w) : w_(w) {}
  ~Window();
  operator bool() const;
  int width() const { return w_; }
};`

	f, err := Parse("window.h", src, BuildOptions{})
	require.NoError(t, err)

	w, ok := f.Entries.First("Window")
	require.True(t, ok)
	assert.Equal(t, EntryStruct, w.Kind)
	assert.Equal(t, "public Base", w.Type)
	assert.Equal(t, []string{"class T"}, w.Template)
	assert.Equal(t, []string{"Window", "~Window", "operator bool", "width"}, w.Entries.Keys())

	ctor, _ := w.Entries.First("Window")
	assert.Empty(t, ctor.Type)
	assert.Equal(t, []Param{{Name: "w", Type: "int"}}, ctor.Parameters)

	width, _ := w.Entries.First("width")
	assert.True(t, width.Immutable)
}

func TestParse_Kinds(t *testing.T) {
	src := `#ifndef SDL_H
#define SDL_H
typedef struct SDL_Window SDL_Window;
typedef Uint32 SDL_WindowID;
typedef void (SDLCALL *SDL_TimerCallback)(void *userdata, Uint32 interval);
extern int SDL_verbose;
#define SDL_INIT_VIDEO 0x20u
int SDL_Log(const char *fmt, ...);
#endif`

	f, err := Parse("SDL.h", src, BuildOptions{IgnoreWords: []string{"SDLCALL"}})
	require.NoError(t, err)

	assert.False(t, f.Entries.Has("SDL_H"))

	tests := map[string]EntryKind{
		"SDL_Window":        EntryForward,
		"SDL_WindowID":      EntryAlias,
		"SDL_TimerCallback": EntryCallback,
		"SDL_verbose":       EntryVar,
		"SDL_INIT_VIDEO":    EntryDef,
		"SDL_Log":           EntryFunction,
	}
	for name, kind := range tests {
		e, ok := f.Entries.First(name)
		require.True(t, ok, name)
		assert.Equal(t, kind, e.Kind, name)
	}

	cb, _ := f.Entries.First("SDL_TimerCallback")
	assert.Equal(t, []Param{{Name: "userdata", Type: "void *"}, {Name: "interval", Type: "Uint32"}}, cb.Parameters)

	logFn, _ := f.Entries.First("SDL_Log")
	assert.Equal(t, []Param{{Name: "fmt", Type: "const char *"}, {Raw: "..."}}, logFn.Parameters)
}

func TestParseParams(t *testing.T) {
	tests := map[string]Param{
		"int":                        {Type: "int"},
		"unsigned int":               {Type: "unsigned int"},
		"const char*name":            {Name: "name", Type: "const char *"},
		"float v[3]":                 {Name: "v", Type: "float[3]"},
		"int flags = 0":              {Name: "flags", Type: "int", Default: "0"},
		"void (*cb)(void *userdata)": {Name: "cb", Type: "void (*)(void *userdata)"},
		"SDL_Window *":               {Type: "SDL_Window *"},
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, []Param{want}, ParseParams([]string{in}))
		})
	}

	assert.Nil(t, ParseParams([]string{"void"}))
	assert.Nil(t, ParseParams(nil))
}

func TestBuild_UnknownKind(t *testing.T) {
	toks := []Token{
		{Kind: TokenKind(99), Decl: 4},
		{Kind: KindEnd, Begin: 5, Decl: 5, End: 5},
	}

	_, err := Build("x.h", toks, BuildOptions{})
	require.Error(t, err)
	assert.True(t, hdrerrors.IsCode(err, hdrerrors.UnknownEntryKind))

	f, err := Build("x.h", toks, BuildOptions{TolerateUnknown: true})
	require.NoError(t, err)
	assert.Equal(t, 0, f.Entries.Len())
}

func TestParse_MalformedNamesFile(t *testing.T) {
	_, err := Parse("bad.h", "struct S {\n  int a;", BuildOptions{})
	require.Error(t, err)

	var he *hdrerrors.Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, hdrerrors.MalformedSource, he.Code)
	assert.Equal(t, "bad.h", he.File)
}

func TestParseAll(t *testing.T) {
	sources := []Source{
		{Name: "good.h", Text: "int a(void);"},
		{Name: "bad.h", Text: "/** open"},
		{Name: "other.h", Text: "int b(void);"},
	}

	results, err := ParseAll(context.Background(), sources, BuildOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.True(t, results[0].File.Entries.Has("a"))

	assert.True(t, hdrerrors.IsCode(results[1].Err, hdrerrors.MalformedSource))
	assert.Nil(t, results[1].File)

	assert.NoError(t, results[2].Err)
	assert.Equal(t, "other.h", results[2].Name)
}

func TestParseAll_Workers(t *testing.T) {
	var sources []Source
	for i := range 8 {
		sources = append(sources, Source{Name: fmt.Sprintf("f%d.h", i), Text: fmt.Sprintf("int v%d;", i)})
	}

	for _, workers := range []int{1, 3, 0} {
		t.Run(fmt.Sprint(workers), func(t *testing.T) {
			results, err := ParseAll(context.Background(), sources, BuildOptions{Workers: workers})
			require.NoError(t, err)
			require.Len(t, results, len(sources))

			for i, r := range results {
				require.NoError(t, r.Err)
				assert.Equal(t, sources[i].Name, r.Name)
				assert.True(t, r.File.Entries.Has(fmt.Sprintf("v%d", i)))
			}
		})
	}
}

func TestParseAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ParseAll(ctx, []Source{{Name: "a.h", Text: "int a;"}}, BuildOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
