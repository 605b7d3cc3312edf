package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ardanlabs/hdrgen/config"
	hdrerrors "github.com/ardanlabs/hdrgen/errors"
	"github.com/ardanlabs/hdrgen/logging"
	"github.com/ardanlabs/hdrgen/parser"
	"github.com/ardanlabs/hdrgen/transform"
)

// Resolved before every command runs.
var (
	settings *config.Settings
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hdrgen",
	Short: "hdrgen - C header API to C++ wrapper generator",
	Long: `hdrgen reads C headers, builds a model of their API, rewrites it into a
C++ shape following a rules file and merges the generated headers into one
dependency ordered file.

Settings come from flags, HDRGEN_* environment variables (a .env file is
loaded first) and an optional .hdrgen.yaml, in that order.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	def := config.DefaultSettings()

	pf := rootCmd.PersistentFlags()
	pf.String("rules", def.Rules, "Rules file (.yaml, .json or .toml)")
	pf.String("out", def.Out, "Output directory (default: stdout where possible)")
	pf.String("format", def.Format, "Snapshot format: json or yaml")
	pf.String("log-level", def.LogLevel, "Log level: debug, info, warn, error or quiet")
	pf.String("log-format", def.LogFormat, "Log format: text or json")
	pf.Int("workers", def.Workers, "Worker count for concurrent stages")
	pf.Int("cache-size", def.CacheSize, "Number of files kept by the include resolver")
	pf.Bool("concurrent", def.Concurrent, "Transform targets concurrently with independent type contexts")
}

func setup(cmd *cobra.Command, args []string) error {
	s, err := config.LoadSettings(cmd.Flags())
	if err != nil {
		return err
	}
	settings = s

	logger = logging.New(cmd.ErrOrStderr(), logging.LevelFromString(s.LogLevel), logging.Format(s.LogFormat))
	cmd.SetContext(logging.WithLogger(cmd.Context(), logger))

	return nil
}

// loadRules reads the rules file, or returns empty rules when none is set.
func loadRules() (*config.Config, error) {
	if settings.Rules == "" {
		return &config.Config{}, nil
	}

	cfg, err := config.Load(settings.Rules)
	if err != nil {
		return nil, err
	}

	issues, err := config.Lint(settings.Rules)
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		logger.Warn("rules lint", "file", settings.Rules, "issue", issue)
	}

	return cfg, nil
}

// parseFiles parses every path. Files that fail are logged and left out;
// the returned error reports how many failed.
func parseFiles(ctx context.Context, cfg *config.Config, paths []string) ([]*parser.ApiFile, error) {
	sources := make([]parser.Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading source: %w", err)
		}
		sources = append(sources, parser.Source{Name: filepath.Base(p), Text: string(data)})
	}

	opts := cfg.BuildOptions()
	opts.Workers = settings.Workers

	results, err := parser.ParseAll(ctx, sources, opts)
	if err != nil {
		return nil, err
	}

	var files []*parser.ApiFile
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			logger.Error("parse failed", "file", r.Name, "code", hdrerrors.Code(r.Err), "error", r.Err)
			failed++
			continue
		}
		logger.Debug("parsed", "file", r.Name, "entries", r.File.Entries.Len())
		files = append(files, r.File)
	}

	if failed > 0 {
		return files, fmt.Errorf("%d of %d files failed to parse", failed, len(results))
	}

	return files, nil
}

func transformFiles(ctx context.Context, cfg *config.Config, files []*parser.ApiFile) (*transform.Result, error) {
	eng := transform.New(cfg, logger)

	var res *transform.Result
	var err error
	if settings.Concurrent {
		res, err = eng.TransformConcurrent(ctx, files, settings.Workers)
	} else {
		res, err = eng.Transform(ctx, files)
	}
	if err != nil {
		return nil, err
	}

	for _, w := range res.Warnings {
		logger.Warn("transform", "code", w.Code, "file", w.File, "entries", w.Names, "msg", w.Message)
	}

	return res, nil
}

func encode(v any) ([]byte, string, error) {
	switch settings.Format {
	case "yaml", "yml":
		data, err := yaml.Marshal(v)
		return data, ".yaml", err
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		return append(data, '\n'), ".json", err
	default:
		return nil, "", fmt.Errorf("unsupported format %q", settings.Format)
	}
}

// writeSnapshots writes one snapshot per file into the output directory, or
// all of them to w when no directory is set.
func writeSnapshots(w io.Writer, files []*parser.ApiFile) error {
	if settings.Out != "" {
		if err := os.MkdirAll(settings.Out, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	for i, f := range files {
		data, ext, err := encode(f)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", f.Name, err)
		}

		if settings.Out == "" {
			if i > 0 && ext == ".yaml" {
				io.WriteString(w, "---\n")
			}
			if _, err := w.Write(data); err != nil {
				return err
			}
			continue
		}

		path := filepath.Join(settings.Out, f.Name+ext)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		logger.Info("wrote snapshot", "path", path)
	}

	return nil
}
