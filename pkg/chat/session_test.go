package chat

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/eigen/pkg/data"
	"github.com/conneroisu/eigen/pkg/eigen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trainCall struct {
	prompt, completion string
	lr                 float64
}

type fakeResponder struct {
	output  string
	loss    float64
	err     error
	prompts []string
	trained []trainCall
}

func (f *fakeResponder) Generate(prompt string, _ float64, _ int) string {
	f.prompts = append(f.prompts, prompt)
	return f.output
}

func (f *fakeResponder) TrainStep(prompt, completion string, lr float64) (eigen.TrainResult, error) {
	f.trained = append(f.trained, trainCall{prompt, completion, lr})
	if f.err != nil {
		return eigen.TrainResult{}, f.err
	}
	return eigen.TrainResult{Loss: f.loss, TokensTrained: len(prompt) + len(completion) - 1}, nil
}

func newQuietSession(r Responder) *Session {
	s := NewSession(r)
	s.Logger = log.New(io.Discard)
	s.Replay().Logger = log.New(io.Discard)
	return s
}

func TestReplyLearnsAcceptedAnswer(t *testing.T) {
	r := &fakeResponder{output: " I am fine, thank you.\nUser: and you?", loss: 2.5}
	s := newQuietSession(r)

	reply := s.Reply("  How are you?\x01 ")
	require.Equal(t, []string{"User: How are you?\nEigen:"}, r.prompts)
	assert.Equal(t, "I am fine, thank you.", reply.Text)
	assert.False(t, reply.Garbled)
	assert.True(t, reply.Learned)
	assert.Equal(t, 2.5, reply.Loss)

	require.NotEmpty(t, r.trained)
	assert.Equal(t, trainCall{"User: How are you?\nEigen:", " I am fine, thank you.", learnLR}, r.trained[0])

	entries := s.Replay().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "How are you?", entries[0].Question)
	// loss 2.5 is already below the replay target
	assert.Equal(t, 1, reply.Replayed)
	assert.True(t, entries[0].Converged)
}

func TestReplyFallsBackOnGarble(t *testing.T) {
	r := &fakeResponder{output: "xq9!!!zz"}
	s := newQuietSession(r)

	reply := s.Reply("hello")
	assert.Equal(t, Fallback, reply.Text)
	assert.True(t, reply.Garbled)
	assert.False(t, reply.Learned)
	assert.Empty(t, r.trained)
	assert.Equal(t, 0, s.Replay().Len())
}

func TestReplyKeepsAnswerWhenLearningFails(t *testing.T) {
	r := &fakeResponder{output: "Hello there!", err: eigen.ErrNonFinite}
	s := newQuietSession(r)

	reply := s.Reply("hi")
	assert.Equal(t, "Hello there!", reply.Text)
	assert.False(t, reply.Learned)
	assert.Equal(t, 0, s.Replay().Len())
}

func TestClean(t *testing.T) {
	assert.Equal(t, "Hi!", clean("\n Hi!  \n"))
	assert.Equal(t, "Hi", clean("Hi User: what User: more"))
	assert.Equal(t, "", clean("User: nothing"))
}

func TestReplyRehearsesLadderEveryFifthTurn(t *testing.T) {
	r := &fakeResponder{output: "xq9!!!zz", loss: 1.0}
	s := newQuietSession(r)
	s.Ladder = []data.Pair{
		{Prompt: "a", Completion: "A"},
		{Prompt: "b", Completion: "B"},
		{Prompt: "c", Completion: "C"},
	}

	for turn := 1; turn < ladderEvery; turn++ {
		reply := s.Reply("hello")
		assert.Equal(t, 0, reply.Rehearsed, "turn %d", turn)
	}
	assert.Empty(t, r.trained)

	reply := s.Reply("hello")
	assert.Equal(t, ladderSteps, reply.Rehearsed)
	assert.Equal(t, []trainCall{
		{Prompt("c"), " C", learnLR},
		{Prompt("a"), " A", learnLR},
		{Prompt("c"), " C", learnLR},
		{Prompt("c"), " C", learnLR},
	}, r.trained)
	assert.Equal(t, 0, s.Replay().Len(), "ladder pairs are not remembered")
}

func TestReplyWithoutLadder(t *testing.T) {
	r := &fakeResponder{output: "xq9!!!zz"}
	s := newQuietSession(r)
	s.Ladder = nil
	for range ladderEvery {
		assert.Equal(t, 0, s.Reply("hello").Rehearsed)
	}
	assert.Empty(t, r.trained)
}

func TestReplyTrustsLadderQuestions(t *testing.T) {
	r := &fakeResponder{output: "xq9!!!zz", loss: 1.0}
	s := newQuietSession(r)

	reply := s.Reply("what is YOUR name?")
	assert.False(t, reply.Garbled)
	assert.True(t, reply.Learned)
	assert.Equal(t, clean("xq9!!!zz"), reply.Text)

	reply = s.Reply("what is your game?")
	assert.True(t, reply.Garbled)
}
