// Package replay keeps recently learned question/answer pairs and retrains
// them until their loss converges.
package replay

import (
	"github.com/charmbracelet/log"
)

const (
	// Capacity is the number of entries the buffer holds.
	Capacity = 32
	// TargetLoss is the loss below which an entry counts as converged.
	TargetLoss = 3.0
	// MaxPasses is the training count after which an entry is retired.
	MaxPasses = 50
	// PassesPerRun bounds the retrains of a single Run.
	PassesPerRun = 5

	maxQuestionLen = 511
	maxAnswerLen   = 1023

	baseLR  = 0.01
	lrDecay = 0.05
)

// Trainer trains the model on one question/answer pair.
type Trainer interface {
	TrainPair(question, answer string, lr float64) (float64, error)
}

// Entry is one remembered pair.
type Entry struct {
	Question   string
	Answer     string
	LastLoss   float64
	TrainCount int
	Converged  bool
}

// Buffer is a bounded set of entries under reinforcement.
//
// A Buffer is not safe for concurrent use.
type Buffer struct {
	// Logger receives progress messages.
	Logger  *log.Logger
	entries []Entry
	trained int
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		Logger:  log.Default().WithPrefix("replay"),
		entries: make([]Entry, 0, Capacity),
	}
}

// Entries returns a copy of the current entries.
func (b *Buffer) Entries() []Entry {
	return append([]Entry(nil), b.entries...)
}

// Len returns the number of entries.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Unconverged returns the number of entries still being retrained.
func (b *Buffer) Unconverged() int {
	var n int
	for _, e := range b.entries {
		if !e.Converged {
			n++
		}
	}
	return n
}

// Add records a freshly learned pair with its initial loss.
//
// A known question keeps the lower of its losses and counts one more pass.
// When the buffer is full the new pair replaces the most trained converged
// entry, or the most trained entry when none has converged.
func (b *Buffer) Add(question, answer string, loss float64) {
	question = truncate(question, maxQuestionLen)
	answer = truncate(answer, maxAnswerLen)
	for i := range b.entries {
		e := &b.entries[i]
		if e.Question != question {
			continue
		}
		if loss < e.LastLoss {
			e.LastLoss = loss
		}
		e.TrainCount++
		return
	}

	entry := Entry{
		Question:   question,
		Answer:     answer,
		LastLoss:   loss,
		TrainCount: 1,
	}
	if len(b.entries) < Capacity {
		b.entries = append(b.entries, entry)
	} else {
		b.entries[b.evictionSlot()] = entry
	}
	b.Logger.Debug("added",
		"question", question,
		"loss", loss,
		"size", len(b.entries),
	)
}

func (b *Buffer) evictionSlot() int {
	worst := 0
	for i := 1; i < len(b.entries); i++ {
		e, w := b.entries[i], b.entries[worst]
		if e.Converged && !w.Converged {
			worst = i
			continue
		}
		if e.Converged == w.Converged && e.TrainCount > w.TrainCount {
			worst = i
		}
	}
	return worst
}

// Run retrains up to PassesPerRun unconverged entries and returns how many
// were trained. Entries that reached MaxPasses are retired as converged.
func (b *Buffer) Run(trainer Trainer) int {
	if b.Unconverged() == 0 {
		return 0
	}
	var round int
	for i := range b.entries {
		if round >= PassesPerRun {
			break
		}
		e := &b.entries[i]
		if e.Converged {
			continue
		}
		if e.TrainCount >= MaxPasses {
			e.Converged = true
			b.Logger.Info("max passes reached", "question", e.Question, "loss", e.LastLoss, "passes", e.TrainCount)
			continue
		}
		lr := baseLR / (1 + lrDecay*float64(e.TrainCount))
		loss, err := trainer.TrainPair(e.Question, e.Answer, lr)
		if err != nil {
			b.Logger.Warn("replay failed", "question", e.Question, "err", err)
			continue
		}
		e.LastLoss = loss
		e.TrainCount++
		round++
		b.trained++
		if loss < TargetLoss {
			e.Converged = true
			b.Logger.Info("converged", "question", e.Question, "loss", loss, "passes", e.TrainCount)
		} else {
			b.Logger.Debug("replayed", "question", e.Question, "loss", loss, "lr", lr, "passes", e.TrainCount)
		}
	}
	if round > 0 {
		b.Logger.Info("reinforced",
			"patterns", round,
			"total", b.trained,
			"unconverged", b.Unconverged(),
		)
	}
	return round
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
