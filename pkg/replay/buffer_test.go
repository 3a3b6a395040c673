package replay

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	question string
	lr       float64
}

type fakeTrainer struct {
	losses map[string][]float64
	fail   map[string]bool
	calls  []call
}

func (f *fakeTrainer) TrainPair(question, _ string, lr float64) (float64, error) {
	f.calls = append(f.calls, call{question, lr})
	if f.fail[question] {
		return 0, errors.New("guard tripped")
	}
	seq := f.losses[question]
	if len(seq) == 0 {
		return 5.0, nil
	}
	loss := seq[0]
	f.losses[question] = seq[1:]
	return loss, nil
}

func newQuietBuffer() *Buffer {
	b := NewBuffer()
	b.Logger = log.New(io.Discard)
	return b
}

func TestAddDeduplicatesQuestions(t *testing.T) {
	b := newQuietBuffer()
	b.Add("hi", "hello", 4.0)
	b.Add("hi", "other", 5.0)
	b.Add("hi", "other", 3.5)

	require.Equal(t, 1, b.Len())
	e := b.Entries()[0]
	assert.Equal(t, "hello", e.Answer)
	assert.Equal(t, 3.5, e.LastLoss)
	assert.Equal(t, 3, e.TrainCount)
}

func TestAddTruncates(t *testing.T) {
	b := newQuietBuffer()
	b.Add(strings.Repeat("q", 600), strings.Repeat("a", 2000), 4)
	e := b.Entries()[0]
	assert.Len(t, e.Question, maxQuestionLen)
	assert.Len(t, e.Answer, maxAnswerLen)
}

func TestAddEvictsMostTrainedConverged(t *testing.T) {
	b := newQuietBuffer()
	for i := range Capacity {
		b.Add(fmt.Sprintf("q%d", i), "a", 4)
	}
	b.entries[3].Converged = true
	b.entries[3].TrainCount = 4
	b.entries[7].Converged = true
	b.entries[7].TrainCount = 9
	b.entries[9].TrainCount = 40

	b.Add("new", "a", 4)
	require.Equal(t, Capacity, b.Len())
	assert.Equal(t, "new", b.entries[7].Question)
	assert.Equal(t, 1, b.entries[7].TrainCount)
	assert.False(t, b.entries[7].Converged)
}

func TestAddEvictsMostTrainedWhenNoneConverged(t *testing.T) {
	b := newQuietBuffer()
	for i := range Capacity {
		b.Add(fmt.Sprintf("q%d", i), "a", 4)
	}
	b.entries[12].TrainCount = 7
	b.Add("new", "a", 4)
	assert.Equal(t, "new", b.entries[12].Question)
}

func TestRunConvergesAndDecaysLearningRate(t *testing.T) {
	b := newQuietBuffer()
	b.Add("a", "x", 4)
	tr := &fakeTrainer{losses: map[string][]float64{"a": {3.5, 2.0}}}

	assert.Equal(t, 1, b.Run(tr))
	assert.Equal(t, 1, b.Run(tr))
	assert.Equal(t, 0, b.Run(tr))

	require.Len(t, tr.calls, 2)
	assert.InDelta(t, 0.01/1.05, tr.calls[0].lr, 1e-12)
	assert.InDelta(t, 0.01/1.10, tr.calls[1].lr, 1e-12)
	e := b.Entries()[0]
	assert.True(t, e.Converged)
	assert.Equal(t, 2.0, e.LastLoss)
	assert.Equal(t, 3, e.TrainCount)
}

func TestRunBoundsPassesPerRound(t *testing.T) {
	b := newQuietBuffer()
	for i := range 8 {
		b.Add(fmt.Sprintf("q%d", i), "a", 4)
	}
	tr := &fakeTrainer{losses: map[string][]float64{}}
	assert.Equal(t, PassesPerRun, b.Run(tr))
	assert.Len(t, tr.calls, PassesPerRun)
	assert.Equal(t, 8, b.Unconverged())
}

func TestRunRetiresAtMaxPasses(t *testing.T) {
	b := newQuietBuffer()
	b.Add("old", "a", 4)
	b.entries[0].TrainCount = MaxPasses
	tr := &fakeTrainer{}
	assert.Equal(t, 0, b.Run(tr))
	assert.Empty(t, tr.calls)
	assert.True(t, b.Entries()[0].Converged)
}

func TestRunSkipsFailedSteps(t *testing.T) {
	b := newQuietBuffer()
	b.Add("bad", "a", 4)
	b.Add("good", "a", 4)
	tr := &fakeTrainer{
		losses: map[string][]float64{"good": {1.0}},
		fail:   map[string]bool{"bad": true},
	}
	assert.Equal(t, 1, b.Run(tr))
	entries := b.Entries()
	assert.Equal(t, 1, entries[0].TrainCount)
	assert.False(t, entries[0].Converged)
	assert.True(t, entries[1].Converged)
}
