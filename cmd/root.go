// Package cmd contains the root command for the eigen CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/eigen/pkg/eigen"
	"github.com/spf13/cobra"
)

// modelPathEnv overrides the default weights path.
const modelPathEnv = "EIGEN_MODEL_PATH"

// rootArgs is the root command arguments.
type rootArgs struct {
	verbose      bool
	seed         uint64
	modelPath    string
	temperature  float64
	maxTokens    int
	learningRate float64
	checkRate    float64
	datasetPath  string
	ladderPath   string
	batchSize    int
	epochs       int
	steps        int
	random       bool
	force        bool
	config       eigen.Config
}

// RootArgs is the root command arguments.
var RootArgs rootArgs

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eigen",
	Short: "A CLI for the eigen character transformer",
	Long: `
A CLI for the eigen character transformer.

Allows you to initialise, train, sample from and chat with a small
byte-level transformer that keeps learning from its own conversations.
	`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if RootArgs.verbose {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func defaultModelPath() string {
	if path := os.Getenv(modelPathEnv); path != "" {
		return path
	}
	return "model.json"
}

// loadEngine loads the weights named by --model-path into a fresh engine.
func loadEngine() (*eigen.Engine, error) {
	engine := eigen.NewEngine(RootArgs.seed)
	if _, err := engine.Load(RootArgs.modelPath); err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	return engine, nil
}

// saveLive writes the engine's weights next to --model-path so the original
// file is never overwritten by online learning.
func saveLive(engine *eigen.Engine) error {
	path := eigen.LivePath(RootArgs.modelPath)
	if err := engine.Save(path); err != nil {
		return err
	}
	log.Debug("saved live weights", "path", path)
	return nil
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&RootArgs.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().
		Uint64VarP(&RootArgs.seed, "seed", "s", 1337, "Seed for the sampler and weight initialisation")
	rootCmd.PersistentFlags().
		StringVarP(&RootArgs.modelPath, "model-path", "m", defaultModelPath(), "Path to the weights file (env "+modelPathEnv+")")

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewTrainCommand())
	rootCmd.AddCommand(NewGenerateCommand())
	rootCmd.AddCommand(NewChatCommand())
	rootCmd.AddCommand(NewCheckCommand())
	rootCmd.AddCommand(NewGarbleCommand())
}
