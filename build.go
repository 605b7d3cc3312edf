package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ardanlabs/hdrgen/generator"
	"github.com/ardanlabs/hdrgen/parser"
)

var (
	buildRoot   string
	buildOutput string
)

var buildCmd = &cobra.Command{
	Use:   "build FILE...",
	Short: "Parse, transform, generate and amalgamate in one run",
	Long: `Run the whole pipeline: parse the headers, rewrite them with the rules,
write one generated header per target into --out and, when --root is set,
merge them into a single file.

Targets named by the rules that have no sources are generated empty, which
suits umbrella headers that only include other targets.

Examples:
  hdrgen build --rules rules.yaml --out include/SDL3pp include/SDL3/*.h
  hdrgen build --rules rules.yaml --out include/SDL3pp --root SDL3pp.h --output SDL3pp_all.h include/SDL3/*.h`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildRoot, "root", "", "Root header to amalgamate from")
	buildCmd.Flags().StringVar(&buildOutput, "output", "", "Amalgamation output file (default: stdout)")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	if settings.Out == "" {
		return errors.New("build needs --out")
	}

	cfg, err := loadRules()
	if err != nil {
		return err
	}

	files, err := parseFiles(cmd.Context(), cfg, args)
	if err != nil {
		return err
	}

	res, err := transformFiles(cmd.Context(), cfg, files)
	if err != nil {
		return err
	}

	targets := res.Files
	seen := make(map[string]bool, len(targets))
	for _, f := range targets {
		seen[f.Name] = true
	}
	for _, name := range res.Rules.TargetNames() {
		if !seen[name] {
			targets = append(targets, parser.NewApiFile(name))
		}
	}

	headers, err := generator.New(res.Rules).Generate(targets)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(settings.Out, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(settings.Out, name)
		if err := os.WriteFile(path, []byte(headers[name]), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		logger.Info("generated", "path", path)
	}

	if buildRoot == "" {
		return nil
	}

	art, err := amalgamateDirectory(cmd.Context(), res.Rules, settings.Out, buildRoot)
	if err != nil {
		return err
	}

	return writeArtifact(cmd, art, buildOutput)
}
