package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ardanlabs/hdrgen/amalgamate"
	"github.com/ardanlabs/hdrgen/config"
)

var (
	amalgamateDir    string
	amalgamateOutput string
)

var amalgamateCmd = &cobra.Command{
	Use:   "amalgamate ROOT",
	Short: "Merge generated headers into one file",
	Long: `Follow the quoted includes of ROOT and merge every file reached into one
header, dependency ordered, with system includes hoisted and de-duplicated.

Examples:
  hdrgen amalgamate --rules rules.yaml --dir include/SDL3pp SDL3pp.h
  hdrgen amalgamate --rules rules.yaml --dir include/SDL3pp --output SDL3pp_all.h SDL3pp.h`,
	Args: cobra.ExactArgs(1),
	RunE: runAmalgamate,
}

func init() {
	amalgamateCmd.Flags().StringVar(&amalgamateDir, "dir", ".", "Directory the headers are read from")
	amalgamateCmd.Flags().StringVar(&amalgamateOutput, "output", "", "Output file (default: stdout)")

	rootCmd.AddCommand(amalgamateCmd)
}

func runAmalgamate(cmd *cobra.Command, args []string) error {
	cfg, err := loadRules()
	if err != nil {
		return err
	}

	art, err := amalgamateDirectory(cmd.Context(), cfg, amalgamateDir, args[0])
	if err != nil {
		return err
	}

	return writeArtifact(cmd, art, amalgamateOutput)
}

func amalgamateDirectory(ctx context.Context, cfg *config.Config, dir, root string) (*amalgamate.Artifact, error) {
	r, err := amalgamate.NewCachingResolver(amalgamate.DirResolver{Dir: dir}, settings.CacheSize)
	if err != nil {
		return nil, err
	}

	art, err := amalgamate.New(amalgamate.OptionsFromConfig(cfg)).Run(ctx, root, r)
	if err != nil {
		return nil, fmt.Errorf("amalgamating %s: %w", root, err)
	}

	return art, nil
}

func writeArtifact(cmd *cobra.Command, art *amalgamate.Artifact, path string) error {
	if path == "" {
		_, err := art.WriteTo(cmd.OutOrStdout())
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if _, err := art.WriteTo(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	logger.Info("wrote amalgamation", "path", path, "files", len(art.Order))

	return f.Close()
}
