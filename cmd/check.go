package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/eigen/pkg/chat"
	"github.com/conneroisu/eigen/pkg/eigen"
	"github.com/spf13/cobra"
)

// checkConfig is the model trained by check --random.
var checkConfig = eigen.Config{
	VocabSize: 256,
	DModel:    16,
	NHeads:    2,
	NLayers:   1,
	DFF:       32,
	MaxSeqLen: 32,
}

// NewCheckCommand returns a new check command.
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [question answer]",
		Short: "Check that training lowers the loss",
		Long: `
Repeatedly train on one pair and verify that every step lowers the loss.

The weights are never saved. With --random a small freshly initialised
model is used instead of --model-path.
	`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			question, answer := "Hello", "Hi!"
			if len(args) == 2 {
				question, answer = args[0], args[1]
			} else if len(args) == 1 {
				return fmt.Errorf("expected both a question and an answer")
			}

			if RootArgs.steps < 2 {
				return fmt.Errorf("need at least two steps, got %d", RootArgs.steps)
			}

			var engine *eigen.Engine
			if RootArgs.random {
				model, err := eigen.NewRandomModel(checkConfig, RootArgs.seed)
				if err != nil {
					return err
				}
				engine = eigen.NewEngine(RootArgs.seed)
				if err := engine.SetModel(model); err != nil {
					return err
				}
			} else {
				var err error
				if engine, err = loadEngine(); err != nil {
					return err
				}
			}

			losses := make([]float64, 0, RootArgs.steps)
			for step := 0; step < RootArgs.steps; step++ {
				start := time.Now()
				res, err := engine.TrainStep(chat.Prompt(question), " "+answer, RootArgs.checkRate)
				if err != nil {
					return fmt.Errorf("step %d: %w", step, err)
				}
				log.Info("step", "step", step, "loss", res.Loss, "took", time.Since(start))
				losses = append(losses, res.Loss)
			}
			for i := 1; i < len(losses); i++ {
				if losses[i] >= losses[i-1] {
					log.Error("loss did not decrease", "step", i, "loss", losses[i], "previous", losses[i-1])
					return fmt.Errorf("loss did not decrease at step %d", i)
				}
			}
			log.Info("loss ok", "first", losses[0], "last", losses[len(losses)-1])
			return nil
		},
	}

	cmd.Flags().
		IntVarP(&RootArgs.steps, "steps", "n", 10, "Number of training steps")
	cmd.Flags().
		Float64VarP(&RootArgs.checkRate, "learning-rate", "r", 0.01, "Learning rate")
	cmd.Flags().
		BoolVar(&RootArgs.random, "random", false, "Use a freshly initialised model")
	return cmd
}
