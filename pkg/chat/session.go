// Package chat runs the self-training conversation loop on top of an engine.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/eigen/pkg/data"
	"github.com/conneroisu/eigen/pkg/eigen"
	"github.com/conneroisu/eigen/pkg/replay"
	"github.com/conneroisu/eigen/pkg/text"
	"github.com/dlclark/regexp2"
)

const (
	// Fallback is the reply given when the generated text is garbled.
	Fallback = "I don't know about that yet."

	temperature = 0.3
	maxTokens   = 80
	learnLR     = 0.005

	// every ladderEvery turns the session rehearses ladderSteps ladder pairs
	ladderEvery = 5
	ladderSteps = 4
)

// DefaultLadder is the set of identity answers a session keeps rehearsing so
// that online learning does not wash them out.
var DefaultLadder = []data.Pair{
	{Prompt: "Hello", Completion: "Hello!"},
	{Prompt: "Hi", Completion: "Hi!"},
	{Prompt: "What are you?", Completion: "I am an AI."},
	{Prompt: "Are you human?", Completion: "No, I am Eigen."},
	{Prompt: "What is your name?", Completion: "I am Eigen."},
	{Prompt: "What do you do?", Completion: "I learn and respond."},
	{Prompt: "How do you learn?", Completion: "I learn from conversations."},
	{Prompt: "Are you intelligent?", Completion: "I try to be."},
	{Prompt: "What can you do?", Completion: "I can chat and learn."},
}

var nextTurn = regexp2.MustCompile(`User:[\s\S]*$`, regexp2.None)

// Responder generates and learns text.
type Responder interface {
	Generate(prompt string, temperature float64, maxTokens int) string
	TrainStep(prompt, completion string, lr float64) (eigen.TrainResult, error)
}

// Reply is the outcome of one conversational turn.
type Reply struct {
	// Text is the answer shown to the user.
	Text string
	// Raw is the generated text before the garble gate.
	Raw string
	// Garbled is set when Raw was rejected and Text is the fallback.
	Garbled bool
	// Learned is set when the engine trained on the answer.
	Learned bool
	// Loss is the loss of the learning step, when Learned.
	Loss float64
	// Rehearsed is the number of ladder pairs trained after the turn.
	Rehearsed int
	// Replayed is the number of replay entries retrained after the turn.
	Replayed int
}

// Session is a conversation with a single engine.
//
// A Session is not safe for concurrent use.
type Session struct {
	// Logger receives gate and learning messages.
	Logger *log.Logger
	// Ladder holds the question/answer pairs rehearsed every few turns.
	// An empty ladder disables rehearsal.
	Ladder []data.Pair

	engine Responder
	replay *replay.Buffer
	turns  int
}

// NewSession returns a session over engine with an empty replay buffer.
func NewSession(engine Responder) *Session {
	return &Session{
		Logger: log.Default().WithPrefix("chat"),
		Ladder: DefaultLadder,
		engine: engine,
		replay: replay.NewBuffer(),
	}
}

// Replay returns the session's replay buffer.
func (s *Session) Replay() *replay.Buffer {
	return s.replay
}

// Prompt formats message as a conversation turn awaiting the engine's answer.
func Prompt(message string) string {
	return fmt.Sprintf("User: %s\nEigen:", message)
}

// TrainPair trains the engine to answer question with answer and returns the
// step's loss.
func (s *Session) TrainPair(question, answer string, lr float64) (float64, error) {
	res, err := s.engine.TrainStep(Prompt(question), " "+answer, lr)
	if err != nil {
		return 0, err
	}
	return res.Loss, nil
}

// Reply answers message. Accepted answers are learned and remembered in the
// replay buffer; a garbled answer is replaced by Fallback and not learned.
// Questions on the ladder skip the garble gate.
// Every fifth turn rehearses the ladder, and every turn ends with one replay
// round.
func (s *Session) Reply(message string) Reply {
	message = text.SanitizeInput(message)
	raw := s.engine.Generate(Prompt(message), temperature, maxTokens)
	reply := Reply{Raw: raw, Text: clean(raw)}

	if !s.onLadder(message) && text.IsGarbled(reply.Text) {
		s.Logger.Warn("blocked garbled response", "input", message, "output", reply.Text)
		reply.Text = Fallback
		reply.Garbled = true
	} else {
		loss, err := s.TrainPair(message, reply.Text, learnLR)
		if err != nil {
			s.Logger.Warn("learning skipped", "input", message, "err", err)
		} else {
			reply.Learned = true
			reply.Loss = loss
			s.replay.Add(message, reply.Text, loss)
		}
	}
	reply.Rehearsed = s.rehearse()
	reply.Replayed = s.replay.Run(s)
	return reply
}

func (s *Session) onLadder(message string) bool {
	for _, pair := range s.Ladder {
		if strings.EqualFold(pair.Prompt, message) {
			return true
		}
	}
	return false
}

// rehearse counts the turn and, on every ladderEvery-th one, trains
// ladderSteps pseudo-randomly chosen ladder pairs. It returns the number of
// successful steps.
func (s *Session) rehearse() int {
	s.turns++
	if s.turns%ladderEvery != 0 || len(s.Ladder) == 0 {
		return 0
	}
	seed := uint32(s.turns*7 + 13)
	var n int
	for range ladderSteps {
		seed = seed*1103515245 + 12345
		pair := s.Ladder[int(seed>>16)%len(s.Ladder)]
		loss, err := s.TrainPair(pair.Prompt, pair.Completion, learnLR)
		if err != nil {
			s.Logger.Debug("ladder pair skipped", "input", pair.Prompt, "err", err)
			continue
		}
		s.Logger.Debug("ladder pair", "input", pair.Prompt, "loss", loss)
		n++
	}
	s.Logger.Info("rehearsed ladder", "turn", s.turns, "steps", n)
	return n
}

// clean drops anything from a hallucinated next user turn onward, trims
// surrounding whitespace and cuts the text at its last good sentence.
func clean(raw string) string {
	if cut, err := nextTurn.Replace(raw, "", -1, 1); err == nil {
		raw = cut
	}
	raw = strings.TrimLeft(raw, " \t\n")
	raw = strings.TrimRight(raw, " \n")
	return text.TrimToSentence(raw)
}
