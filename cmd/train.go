package cmd

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/eigen/pkg/chat"
	"github.com/conneroisu/eigen/pkg/data"
	"github.com/conneroisu/eigen/pkg/eigen"
	"github.com/spf13/cobra"
)

// NewTrainCommand returns a new train command.
func NewTrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train [question answer]",
		Short: "Train a model",
		Long: `
Train the model on a single question/answer pair, or on every pair of a
tab-separated corpus given with --dataset-path.

Updated weights are written to the live weights file next to --model-path.
	`,
		Args: func(cmd *cobra.Command, args []string) error {
			if RootArgs.datasetPath != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			if RootArgs.datasetPath == "" {
				res, err := engine.TrainStep(chat.Prompt(args[0]), " "+args[1], RootArgs.learningRate)
				if err != nil {
					return fmt.Errorf("failed to train model: %w", err)
				}
				log.Info("trained",
					"loss", res.Loss,
					"tokens", res.TokensTrained,
					"age", res.Age,
					"lr", res.EffectiveLR,
				)
				return saveLive(engine)
			}

			loader, err := data.NewPairLoader(RootArgs.datasetPath, RootArgs.batchSize)
			if err != nil {
				return fmt.Errorf("failed to load dataset: %w", err)
			}
			log.Info("train dataset", "pairs", loader.Len(), "num_batches", loader.NumBatches)
			rng := rand.New(rand.NewPCG(RootArgs.seed, RootArgs.seed^0x5851f42d4c957f2d))
			for epoch := 0; epoch < RootArgs.epochs; epoch++ {
				loader.Shuffle(rng)
				loss, err := trainEpoch(engine, loader, loader.NumBatches, epoch)
				if err != nil {
					return err
				}
				log.Info("epoch", "epoch", epoch, "loss", loss, "age", engine.Age)
				if err := saveLive(engine); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().
		StringVarP(&RootArgs.datasetPath, "dataset-path", "d", "", "Path to a tab-separated question/answer corpus")
	cmd.Flags().
		Float64VarP(&RootArgs.learningRate, "learning-rate", "r", 0.001, "Learning rate")
	cmd.Flags().
		IntVarP(&RootArgs.batchSize, "batch-size", "b", 20, "Pairs per batch")
	cmd.Flags().
		IntVarP(&RootArgs.epochs, "epochs", "e", 1, "Passes over the corpus")
	return cmd
}

// trainEpoch trains on numBatches batches drawn from loader and returns the
// token-weighted loss over all of them.
func trainEpoch(engine *eigen.Engine, loader data.Loader, numBatches, epoch int) (float64, error) {
	var loss float64
	var tokens int
	for step := 0; step < numBatches; step++ {
		start := time.Now()
		res, err := engine.TrainBatch(loader.NextBatch(), RootArgs.learningRate)
		if err != nil {
			return 0, fmt.Errorf("failed to train model: %w", err)
		}
		log.Info("batch",
			"epoch", epoch,
			"step", step,
			"loss", res.Loss,
			"trained", res.Trained,
			"failed", res.Failed,
			"age", res.Age,
			"took", time.Since(start),
		)
		loss += res.Loss * float64(res.Tokens)
		tokens += res.Tokens
	}
	if tokens == 0 {
		return 0, nil
	}
	return loss / float64(tokens), nil
}
