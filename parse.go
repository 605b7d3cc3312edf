package main

import (
	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse FILE...",
	Short: "Parse headers into ApiFile snapshots",
	Long: `Parse C headers and write the resulting model as JSON or YAML.

A file that fails to parse is reported and skipped; the others are still
written and the command exits with an error.

Examples:
  hdrgen parse include/SDL3/SDL_video.h
  hdrgen parse --rules rules.yaml --format yaml --out model include/SDL3/*.h`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadRules()
	if err != nil {
		return err
	}

	files, parseErr := parseFiles(cmd.Context(), cfg, args)
	if err := writeSnapshots(cmd.OutOrStdout(), files); err != nil {
		return err
	}

	return parseErr
}
