package answer

import (
	"context"
	"fmt"
	"log/slog"

	"hudhud/backend/internal/epigraph"
	"hudhud/backend/internal/vector"
)

// Generator is the chat backend behind classification and answer
// synthesis.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Stream(ctx context.Context, system, user string, onToken func(string) error) error
}

// Embedder turns the resolved search query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher is the vector index view the orchestrator needs.
type ChunkSearcher interface {
	NearestChunks(ctx context.Context, vec []float32, maxDistance float64, limit int, f vector.ChunkFilters) ([]vector.ChunkHit, error)
}

// RecordFinder resolves epigraph titles the user named explicitly.
type RecordFinder interface {
	FindByTitle(ctx context.Context, title string, limit int) ([]epigraph.Epigraph, error)
}

type EventType string

const (
	EventToken       EventType = "token"
	EventEpigraphIDs EventType = "epigraph_ids"
	EventError       EventType = "error"
	EventDone        EventType = "done"
)

// Event is one element of the answer stream. A stream ends with either a
// done or an error event; tokens delivered before an error stay
// delivered.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	IDs     []int     `json:"ids,omitempty"`
}

type Config struct {
	// MaxDistance bounds cosine distance for chunk retrieval; 1.0 admits
	// anything with positive alignment.
	MaxDistance float64
	// ChunkLimit is how many chunks the vector index is asked for.
	ChunkLimit int
	// EvidenceChunks and EvidenceRecords cap what reaches the prompt.
	EvidenceChunks  int
	EvidenceRecords int
	// TitleMatchLimit caps fuzzy matches per explicitly named title.
	TitleMatchLimit int
}

func DefaultConfig() Config {
	return Config{
		MaxDistance:     1.0,
		ChunkLimit:      30,
		EvidenceChunks:  15,
		EvidenceRecords: 30,
		TitleMatchLimit: 3,
	}
}

// Orchestrator runs the answer pipeline: classify the turn, resolve a
// search query, retrieve evidence, stream a cited answer.
type Orchestrator struct {
	classifier *Classifier
	gen        Generator
	embedder   Embedder
	chunks     ChunkSearcher
	records    RecordFinder
	cfg        Config
}

func New(gen Generator, embedder Embedder, chunks ChunkSearcher, records RecordFinder, cfg Config) *Orchestrator {
	return &Orchestrator{
		classifier: NewClassifier(gen),
		gen:        gen,
		embedder:   embedder,
		chunks:     chunks,
		records:    records,
		cfg:        cfg,
	}
}

const (
	msgNoResults        = "I couldn't find any information related to your query in our database. Please try rephrasing your question or using different search terms."
	msgRetrievalFailed  = "I couldn't search the inscription database right now. Please try again shortly."
	msgGenerationFailed = "I found relevant inscriptions but couldn't generate an answer. Please try again."
)

// Ask runs the pipeline and streams typed events. The returned channel
// is closed when the stream ends; cancelling ctx (client disconnect)
// stops retrieval and upstream generation promptly.
func (o *Orchestrator) Ask(ctx context.Context, query string, history []Turn) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		o.run(ctx, query, history, events)
	}()
	return events
}

func (o *Orchestrator) run(ctx context.Context, query string, history []Turn, events chan<- Event) {
	cls := o.classifier.Classify(ctx, query, history)
	slog.InfoContext(ctx, "classified question",
		"intent", cls.Intent, "resolved_query", cls.SearchQuery, "titles", len(cls.Titles))

	if !cls.Intent.NeedsRetrieval() {
		if o.emit(ctx, events, Event{Type: EventToken, Content: DirectReply(cls.Intent)}) {
			o.emit(ctx, events, Event{Type: EventDone})
		}
		return
	}

	ev, err := o.retrieve(ctx, cls)
	if err != nil {
		slog.ErrorContext(ctx, "evidence retrieval failed", "error", err)
		o.emit(ctx, events, Event{Type: EventError, Content: msgRetrievalFailed})
		return
	}
	if ev.empty() {
		slog.InfoContext(ctx, "no evidence found", "resolved_query", cls.SearchQuery)
		o.emit(ctx, events, Event{Type: EventError, Content: msgNoResults})
		return
	}

	o.streamAnswer(ctx, query, ev, events)
}

// evidenceSet is what retrieval hands to generation: full records for
// explicitly named titles ranked ahead of semantically matched chunks,
// plus the distinct epigraph ids in that order.
type evidenceSet struct {
	records []epigraph.Epigraph
	chunks  []vector.ChunkHit
	ids     []int
}

func (e *evidenceSet) empty() bool {
	return len(e.records) == 0 && len(e.chunks) == 0
}

func (o *Orchestrator) retrieve(ctx context.Context, cls Classification) (*evidenceSet, error) {
	vec, err := o.embedder.Embed(ctx, cls.SearchQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := o.chunks.NearestChunks(ctx, vec, o.cfg.MaxDistance, o.cfg.ChunkLimit,
		vector.ChunkFilters{PublishedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("nearest chunks: %w", err)
	}

	ev := &evidenceSet{}
	seen := make(map[int]bool)

	// A title lookup failure only loses that title; the semantic hits
	// still make an answer possible.
	for _, title := range cls.Titles {
		matches, err := o.records.FindByTitle(ctx, title, o.cfg.TitleMatchLimit)
		if err != nil {
			slog.WarnContext(ctx, "title lookup failed", "title", title, "error", err)
			continue
		}
		for _, m := range matches {
			if seen[m.ID] || len(ev.ids) >= o.cfg.EvidenceRecords {
				continue
			}
			seen[m.ID] = true
			ev.records = append(ev.records, m)
			ev.ids = append(ev.ids, m.ID)
		}
	}

	for _, h := range hits {
		if len(ev.chunks) >= o.cfg.EvidenceChunks {
			break
		}
		if !seen[h.EpigraphID] {
			if len(ev.ids) >= o.cfg.EvidenceRecords {
				continue
			}
			seen[h.EpigraphID] = true
			ev.ids = append(ev.ids, h.EpigraphID)
		}
		ev.chunks = append(ev.chunks, h)
	}

	return ev, nil
}

func (o *Orchestrator) streamAnswer(ctx context.Context, query string, ev *evidenceSet, events chan<- Event) {
	user, err := answerUserPrompt(query, ev)
	if err != nil {
		slog.ErrorContext(ctx, "evidence formatting failed", "error", err)
		o.emit(ctx, events, Event{Type: EventError, Content: msgGenerationFailed})
		return
	}

	err = o.gen.Stream(ctx, answerSystemPrompt, user, func(tok string) error {
		if !o.emit(ctx, events, Event{Type: EventToken, Content: tok}) {
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "client went away mid-answer")
			return
		}
		slog.ErrorContext(ctx, "answer generation failed", "error", err)
		o.emit(ctx, events, Event{Type: EventError, Content: msgGenerationFailed})
		return
	}

	if o.emit(ctx, events, Event{Type: EventEpigraphIDs, IDs: ev.ids}) {
		o.emit(ctx, events, Event{Type: EventDone})
	}
}

// emit delivers one event unless the consumer is gone. Returning false
// means the context was cancelled and the pipeline should stop.
func (o *Orchestrator) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
