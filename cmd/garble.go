package cmd

import (
	"fmt"
	"strings"

	"github.com/conneroisu/eigen/pkg/text"
	"github.com/spf13/cobra"
)

// NewGarbleCommand returns a new garble command.
func NewGarbleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "garble [text]",
		Short: "Report whether text passes the garble gate",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")
			if text.IsGarbled(input) {
				fmt.Fprintln(cmd.OutOrStdout(), "garbled")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	return cmd
}
