// Package assistant orchestrates retrieval-augmented answering: it turns a
// user question plus the indexed paper corpus into a grounded answer
// annotated with the sources used.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/paperdesk/paperdesk/internal/paper"
)

const (
	// defaultTopK bounds how many documents ground an answer.
	defaultTopK = 3
	// defaultMaxDocChars bounds the content prefix each retrieved document
	// contributes to the prompt. Three documents at this bound plus template
	// text stays within small local-model context windows.
	defaultMaxDocChars = 2000
	// maxHistoryTurns bounds how many prior conversation turns are replayed
	// into the prompt.
	maxHistoryTurns = 6
)

// SearchStore is the read-only view of the paper store the assistant needs.
// The assistant never mutates the index.
type SearchStore interface {
	Search(ctx context.Context, query string, k int) ([]paper.SearchResult, error)
}

// Generator produces text from a single prompt. Implemented by
// ollama.Generator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summary is the result of summarizing one paper.
type Summary struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Assistant is stateless across calls: conversation history, if any, is
// passed in by the caller and never held.
type Assistant struct {
	store       SearchStore
	gen         Generator
	topK        int
	maxDocChars int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithTopK sets how many documents are retrieved per question.
func WithTopK(k int) Option {
	return func(a *Assistant) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithMaxDocChars sets the per-document content prefix bound.
func WithMaxDocChars(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.maxDocChars = n
		}
	}
}

// WithClock sets the clock used for Summary timestamps (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) { a.now = now }
}

// New creates an Assistant over the given store and generator.
func New(store SearchStore, gen Generator, opts ...Option) *Assistant {
	a := &Assistant{
		store:       store,
		gen:         gen,
		topK:        defaultTopK,
		maxDocChars: defaultMaxDocChars,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Answer produces a grounded answer for the question.
//
// When useRetrieval is set, the store is searched for context; a store
// failure degrades gracefully to an ungrounded answer with empty sources
// rather than failing the query. A generation failure is the opposite: it is
// surfaced in the returned answer text (and as a typed error), with the
// already-computed sources preserved.
func (a *Assistant) Answer(ctx context.Context, question string, useRetrieval bool, history []paper.Message) (paper.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return paper.Answer{}, nil
	}

	var results []paper.SearchResult
	if useRetrieval {
		var err error
		results, err = a.store.Search(ctx, question, a.topK)
		if err != nil {
			// Retrieval is an enhancement, not a dependency.
			a.logger.Warn("retrieval failed, answering without context", "error", err)
			results = nil
		}
	}

	sources := make([]paper.Source, len(results))
	for i, r := range results {
		sources[i] = paper.Source{Title: r.Metadata.Title, Distance: r.Distance}
	}

	prompt := buildAnswerPrompt(question, results, history, a.maxDocChars)

	text, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return paper.Answer{Text: err.Error(), Sources: sources}, err
	}

	a.logger.Debug("answer generated", "question_len", len(question), "sources", len(sources))
	return paper.Answer{Text: text, Sources: sources}, nil
}

// Summarize generates a structured summary of one paper. No retrieval step:
// the content is the context.
func (a *Assistant) Summarize(ctx context.Context, content, title string) (Summary, error) {
	text, err := a.gen.Generate(ctx, buildSummaryPrompt(content, title, a.maxDocChars))
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing %q: %w", title, err)
	}
	return Summary{Title: title, Summary: text, GeneratedAt: a.now().UTC()}, nil
}

// SuggestDirections proposes research directions for a topic, using the
// titles of the stored papers as context. Returns one suggestion per
// non-empty response line.
func (a *Assistant) SuggestDirections(ctx context.Context, topic string, papers []string) ([]string, error) {
	text, err := a.gen.Generate(ctx, buildSuggestPrompt(topic, papers))
	if err != nil {
		return nil, fmt.Errorf("suggesting directions for %q: %w", topic, err)
	}

	var directions []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			directions = append(directions, line)
		}
	}
	return directions, nil
}
