package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/eigen/pkg/chat"
	"github.com/conneroisu/eigen/pkg/data"
	"github.com/spf13/cobra"
)

// NewChatCommand returns a new chat command.
func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a model that learns from the conversation",
		Long: `
Chat with the model over standard input, one message per line.

Replies the garble gate accepts are learned immediately and reinforced by
the replay buffer; the live weights are saved after every learned turn.
An empty line or end of input ends the session.
	`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			session := chat.NewSession(engine)
			if RootArgs.ladderPath != "" {
				if session.Ladder, err = readLadder(RootArgs.ladderPath); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					break
				}
				message := strings.TrimSpace(scanner.Text())
				if message == "" {
					break
				}
				reply := session.Reply(message)
				fmt.Fprintln(out, reply.Text)
				log.Debug("turn",
					"garbled", reply.Garbled,
					"learned", reply.Learned,
					"rehearsed", reply.Rehearsed,
					"loss", reply.Loss,
					"replayed", reply.Replayed,
				)
				if reply.Learned || reply.Rehearsed > 0 || reply.Replayed > 0 {
					if err := saveLive(engine); err != nil {
						log.Error("failed to save live weights", "err", err)
					}
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().
		StringVar(&RootArgs.ladderPath, "ladder-path", "", "Tab-separated question/answer pairs to rehearse instead of the built-in ladder")
	return cmd
}

func readLadder(path string) ([]data.Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ladder: %w", err)
	}
	defer f.Close()
	pairs, err := data.ReadPairs(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read ladder: %w", err)
	}
	return pairs, nil
}
