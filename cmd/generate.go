package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewGenerateCommand returns a new generate command.
func NewGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Sample text from a model",
		Long: `
Sample a continuation of the prompt from the model.

The prompt is used verbatim; use chat for conversational formatting.
	`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			out := engine.Generate(strings.Join(args, " "), RootArgs.temperature, RootArgs.maxTokens)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().
		Float64VarP(&RootArgs.temperature, "temperature", "T", 1.0, "Temperature")
	cmd.Flags().
		IntVarP(&RootArgs.maxTokens, "max-tokens", "n", 80, "Maximum number of tokens to generate")
	return cmd
}
