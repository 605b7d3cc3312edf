package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var transformSaveRules string

var transformCmd = &cobra.Command{
	Use:   "transform FILE...",
	Short: "Parse headers and rewrite them into target files",
	Long: `Parse C headers and rewrite them into the target files named by the
rules. Warnings are reported after the whole batch has run.

With --concurrent every target gets its own copy of the type context, so
renames made for one target are not seen by another.

Examples:
  hdrgen transform --rules rules.yaml include/SDL3/SDL_video.h
  hdrgen transform --rules rules.yaml --save-rules resolved.yaml include/SDL3/*.h`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTransform,
}

func init() {
	transformCmd.Flags().StringVar(&transformSaveRules, "save-rules", "", "Write the rules with computed names filled in")

	rootCmd.AddCommand(transformCmd)
}

func runTransform(cmd *cobra.Command, args []string) error {
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

	if err := writeSnapshots(cmd.OutOrStdout(), res.Files); err != nil {
		return err
	}

	if transformSaveRules != "" {
		if err := res.Rules.Save(transformSaveRules); err != nil {
			return fmt.Errorf("saving rules: %w", err)
		}
		logger.Info("wrote rules", "path", transformSaveRules)
	}

	return nil
}
