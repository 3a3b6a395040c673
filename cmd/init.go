package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/eigen/pkg/eigen"
	"github.com/spf13/cobra"
)

// NewInitCommand returns a new init command.
func NewInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a randomly initialised model",
		Long: `
Create a randomly initialised model and write it to --model-path.

An existing file is only replaced when --force is given.
	`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := RootArgs.modelPath
			if _, err := os.Stat(path); err == nil && !RootArgs.force {
				return fmt.Errorf("%s already exists, use --force to replace it", path)
			}
			model, err := eigen.NewRandomModel(RootArgs.config, RootArgs.seed)
			if err != nil {
				return fmt.Errorf("failed to create model: %w", err)
			}
			if err := eigen.SaveModel(model, path); err != nil {
				return fmt.Errorf("failed to save model: %w", err)
			}
			log.Info("initialised model",
				"path", path,
				"params", model.Params.Len(),
				"layers", model.Config.NLayers,
			)
			return nil
		},
	}

	cmd.Flags().
		IntVar(&RootArgs.config.VocabSize, "vocab-size", 256, "Vocabulary size")
	cmd.Flags().
		IntVar(&RootArgs.config.DModel, "d-model", 64, "Width of the residual stream")
	cmd.Flags().
		IntVar(&RootArgs.config.NHeads, "n-heads", 4, "Number of attention heads (recorded only)")
	cmd.Flags().
		IntVar(&RootArgs.config.NLayers, "n-layers", 2, "Number of transformer blocks")
	cmd.Flags().
		IntVar(&RootArgs.config.DFF, "d-ff", 256, "Hidden width of the feed-forward blocks")
	cmd.Flags().
		IntVar(&RootArgs.config.MaxSeqLen, "max-seq-len", 64, "Context window in tokens")
	cmd.Flags().
		BoolVarP(&RootArgs.force, "force", "f", false, "Replace an existing weights file")
	return cmd
}
