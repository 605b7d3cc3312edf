package transform

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardanlabs/hdrgen/config"
	hdrerrors "github.com/ardanlabs/hdrgen/errors"
	"github.com/ardanlabs/hdrgen/parser"
)

func parse(t *testing.T, name, src string) *parser.ApiFile {
	t.Helper()

	f, err := parser.Parse(name, src, parser.BuildOptions{IgnoreWords: []string{"SDL_DECLSPEC", "SDLCALL"}})
	require.NoError(t, err)

	return f
}

func first(t *testing.T, f *parser.ApiFile, name string) parser.Entry {
	t.Helper()

	e, ok := f.Entries.First(name)
	require.True(t, ok, "missing entry %s in %v", name, f.Entries.Keys())

	return e
}

const videoHeader = `/**
 * \file SDL_video.h
 */

typedef struct SDL_Window SDL_Window;
typedef struct SDL_Renderer SDL_Renderer;
typedef Uint32 SDL_WindowID;

/** A point. */
typedef struct SDL_Point { int x; int y; } SDL_Point;

typedef enum SDL_FlashOperation { SDL_FLASH_CANCEL, SDL_FLASH_BRIEFLY } SDL_FlashOperation;

typedef void (SDLCALL *SDL_WindowCallback)(SDL_Window *window);

#define SDL_WINDOWPOS_CENTERED 0x2FFF0000u
#define SDL_WINDOW_INTERNAL 1

/**
 * Create a window.
 *
 * \param title the title.
 * \returns the window.
 */
extern SDL_DECLSPEC SDL_Window * SDLCALL SDL_CreateWindow(const char *title, SDL_Point *pos);

extern SDL_DECLSPEC void SDLCALL SDL_DestroyWindow(SDL_Window *window);
extern SDL_DECLSPEC SDL_WindowID SDLCALL SDL_GetWindowID(SDL_Window *window);
extern SDL_DECLSPEC const SDL_WindowID * SDLCALL SDL_GetWindows(int *count);
`

func videoConfig() *config.Config {
	return &config.Config{
		Prefixes: []string{"SDL_"},
		Files: map[string]config.FileConfig{
			"SDL3pp_video.h": {
				Sources:       []string{"SDL_video.h"},
				IncludeDefs:   []string{"SDL_WINDOWPOS_CENTERED"},
				IgnoreEntries: []string{"SDL_GetWindows"},
				Types:         map[string]any{"SDL_Window": config.ResourceKind},
				Transform: map[string]config.EntrySpec{
					"SDL_GetWindowID": {Doc: "Get the numeric ID of a window."},
				},
				IncludeAt: config.IncludeAt{Begin: []config.EntrySpec{
					{Name: "WindowFlags", Kind: parser.EntryAlias, Type: "Uint64"},
				}},
			},
		},
	}
}

func TestTransform_Video(t *testing.T) {
	src := parse(t, "SDL_video.h", videoHeader)

	res, err := New(videoConfig(), nil).Transform(context.Background(), []*parser.ApiFile{src})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Len(t, res.Files, 1)

	out := res.Files[0]
	assert.Equal(t, "SDL3pp_video.h", out.Name)
	assert.Equal(t, "@file SDL_video.h", out.Doc)

	keys := out.Entries.Keys()
	require.NotEmpty(t, keys)
	assert.Equal(t, "WindowFlags", keys[0])
	assert.NotContains(t, keys, "GetWindows")
	assert.NotContains(t, keys, "WINDOW_INTERNAL")

	t.Run("resource", func(t *testing.T) {
		base := first(t, out, "WindowBase")
		assert.Equal(t, parser.EntryStruct, base.Kind)
		assert.Equal(t, "T", base.Type)
		assert.Equal(t, []string{"class T"}, base.Template)
		assert.Equal(t, "SDL_Window", base.SourceName)

		ctor, ok := base.Entries.First("WindowBase")
		require.True(t, ok)
		assert.Empty(t, ctor.Type)
		assert.Equal(t, []parser.Param{{Name: "resource", Type: "T"}}, ctor.Parameters)
		assert.Equal(t, "T(std::move(resource))", ctor.Value)

		create := first(t, out, "CreateWindow")
		assert.Equal(t, "Window", create.Type)
		assert.Equal(t, "SDL_CreateWindow", create.SourceName)

		destroy := first(t, out, "DestroyWindow")
		assert.Equal(t, "WindowRef", destroy.Parameters[0].Type)
	})

	t.Run("forward", func(t *testing.T) {
		fwd := first(t, out, "Renderer"+ForwardSuffix)
		assert.Equal(t, parser.EntryForward, fwd.Kind)
		assert.False(t, out.Entries.Has("Renderer"))
	})

	t.Run("alias rename", func(t *testing.T) {
		id := first(t, out, "WindowID")
		assert.Equal(t, parser.EntryAlias, id.Kind)
		assert.Equal(t, "Uint32", id.Type)

		get := first(t, out, "GetWindowID")
		assert.Equal(t, "WindowID", get.Type)
		assert.Equal(t, "Get the numeric ID of a window.", get.Doc)
	})

	t.Run("collapse", func(t *testing.T) {
		for name, src := range map[string]string{
			"Point":          "SDL_Point",
			"FlashOperation": "SDL_FlashOperation",
			"WindowCallback": "SDL_WindowCallback",
		} {
			e := first(t, out, name)
			assert.Equal(t, parser.EntryAlias, e.Kind, name)
			assert.Equal(t, src, e.Type, name)
			assert.Nil(t, e.Entries, name)
		}
		assert.Equal(t, "A point.", first(t, out, "Point").Doc)

		create := first(t, out, "CreateWindow")
		assert.Equal(t, "Point *", create.Parameters[1].Type)
		assert.Equal(t, "const char *", create.Parameters[0].Type)
	})

	t.Run("defs", func(t *testing.T) {
		def := first(t, out, "WINDOWPOS_CENTERED")
		assert.Equal(t, parser.EntryDef, def.Kind)
		assert.Equal(t, "SDL_WINDOWPOS_CENTERED", def.Value)
	})

	t.Run("docs", func(t *testing.T) {
		create := first(t, out, "CreateWindow")
		assert.Equal(t, "Create a window.\n\n@param title the title.\n@returns the window.", create.Doc)
	})

	t.Run("write back", func(t *testing.T) {
		spec := res.Rules.Files["SDL3pp_video.h"].Transform["SDL_GetWindowID"]
		assert.Equal(t, "GetWindowID", spec.Name)

		assert.Empty(t, videoConfig().Files["SDL3pp_video.h"].Transform["SDL_GetWindowID"].Name)
	})
}

func TestTransform_AliasPropagatesToPointerForms(t *testing.T) {
	src := parse(t, "SDL_foo.h", `typedef int SDL_Foo;
SDL_Foo *SDL_Bar(const SDL_Foo *a, SDL_Foo b);`)

	res, err := New(&config.Config{Prefixes: []string{"SDL_"}}, nil).Transform(context.Background(), []*parser.ApiFile{src})
	require.NoError(t, err)

	out := res.Files[0]
	assert.Equal(t, "SDL_foo.h", out.Name)

	bar := first(t, out, "Bar")
	assert.Equal(t, "Foo *", bar.Type)
	assert.Equal(t, "const Foo *", bar.Parameters[0].Type)
	assert.Equal(t, "Foo", bar.Parameters[1].Type)
}

func TestTransform_RenamedTypesPropagate(t *testing.T) {
	src := parse(t, "SDL_foo.h", `typedef int SDL_Foo;
typedef struct SDL_Qux { int a; } SDL_Qux;
SDL_Foo *SDL_Bar(const SDL_Foo *a, SDL_Qux *q);`)

	cfg := &config.Config{
		Prefixes: []string{"SDL_"},
		Files: map[string]config.FileConfig{
			"SDL3pp_foo.h": {
				Sources: []string{"SDL_foo.h"},
				Transform: map[string]config.EntrySpec{
					"SDL_Foo": {Name: "Baz"},
					"SDL_Qux": {Name: "Quux"},
				},
			},
		},
	}

	res, err := New(cfg, nil).Transform(context.Background(), []*parser.ApiFile{src})
	require.NoError(t, err)

	out := res.Files[0]
	assert.Equal(t, []string{"Baz", "Quux", "Bar"}, out.Entries.Keys())

	quux := first(t, out, "Quux")
	assert.Equal(t, parser.EntryAlias, quux.Kind)
	assert.Equal(t, "SDL_Qux", quux.Type)

	bar := first(t, out, "Bar")
	assert.Equal(t, "Baz *", bar.Type)
	assert.Equal(t, "const Baz *", bar.Parameters[0].Type)
	assert.Equal(t, "Quux *", bar.Parameters[1].Type)
}

func TestTransform_Overrides(t *testing.T) {
	src := parse(t, "SDL_timer.h", `Uint64 SDL_GetTicks(void);
void SDL_Delay(Uint32 ms);`)

	cfg := &config.Config{
		Prefixes: []string{"SDL_"},
		Files: map[string]config.FileConfig{
			"SDL3pp_timer.h": {
				Sources: []string{"SDL_timer.h"},
				Transform: map[string]config.EntrySpec{
					"SDL_GetTicks": {Name: "GetTicksMS"},
					"Delay":        {Doc: "Wait a number of milliseconds."},
				},
			},
		},
	}

	res, err := New(cfg, nil).Transform(context.Background(), []*parser.ApiFile{src})
	require.NoError(t, err)

	out := res.Files[0]
	assert.True(t, out.Entries.Has("GetTicksMS"))
	assert.False(t, out.Entries.Has("GetTicks"))
	assert.Equal(t, "Wait a number of milliseconds.", first(t, out, "Delay").Doc)
	assert.Equal(t, "Delay", res.Rules.Files["SDL3pp_timer.h"].Transform["Delay"].Name)
}

func TestTransform_ConfigurationMismatch(t *testing.T) {
	src := parse(t, "SDL_timer.h", `Uint64 SDL_GetTicks(void);
typedef int SDL_TimerID;`)

	cfg := &config.Config{
		Prefixes: []string{"SDL_"},
		Files: map[string]config.FileConfig{
			"SDL3pp_timer.h": {
				Sources: []string{"SDL_timer.h"},
				Types: map[string]any{
					"SDL_GetTicks": config.ResourceKind,
					"SDL_TimerID":  "handle",
				},
			},
		},
	}

	res, err := New(cfg, nil).Transform(context.Background(), []*parser.ApiFile{src})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 2)

	for _, w := range res.Warnings {
		assert.Equal(t, hdrerrors.ConfigurationMismatch, w.Code)
		assert.Equal(t, "SDL_timer.h", w.File)
	}
	assert.Equal(t, []string{"SDL_GetTicks"}, res.Warnings[0].Names)

	out := res.Files[0]
	assert.Equal(t, parser.EntryFunction, first(t, out, "GetTicks").Kind)
	assert.Equal(t, parser.EntryAlias, first(t, out, "TimerID").Kind)
}

func TestTransform_Idempotent(t *testing.T) {
	src := parse(t, "SDL_video.h", videoHeader)
	engine := New(videoConfig(), nil)

	once, err := engine.Transform(context.Background(), []*parser.ApiFile{src})
	require.NoError(t, err)

	twice, err := engine.Transform(context.Background(), once.Files)
	require.NoError(t, err)

	a, err := json.Marshal(once.Files)
	require.NoError(t, err)
	b, err := json.Marshal(twice.Files)
	require.NoError(t, err)

	assert.JSONEq(t, string(a), string(b))
}

func TestTransform_DoesNotMutateInput(t *testing.T) {
	src := parse(t, "SDL_video.h", videoHeader)
	before, err := json.Marshal(src)
	require.NoError(t, err)

	_, err = New(videoConfig(), nil).Transform(context.Background(), []*parser.ApiFile{src})
	require.NoError(t, err)

	after, err := json.Marshal(src)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestTransform_SequentialVersusConcurrent(t *testing.T) {
	a := parse(t, "SDL_a.h", "typedef int SDL_Foo;")
	b := parse(t, "SDL_b.h", "void SDL_UseFoo(SDL_Foo *foo);")
	files := []*parser.ApiFile{a, b}

	engine := New(&config.Config{Prefixes: []string{"SDL_"}}, nil)

	seq, err := engine.Transform(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, seq.Files, 2)
	assert.Equal(t, "Foo *", first(t, seq.Files[1], "UseFoo").Parameters[0].Type)

	con, err := engine.TransformConcurrent(context.Background(), files, 2)
	require.NoError(t, err)
	require.Len(t, con.Files, 2)
	assert.Equal(t, "SDL_a.h", con.Files[0].Name)
	assert.Equal(t, "SDL_b.h", con.Files[1].Name)
	assert.Equal(t, "SDL_Foo *", first(t, con.Files[1], "UseFoo").Parameters[0].Type)
}

func TestTransform_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files := []*parser.ApiFile{parse(t, "SDL_a.h", "int a;")}

	_, err := New(nil, nil).Transform(ctx, files)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = New(nil, nil).TransformConcurrent(ctx, files, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
