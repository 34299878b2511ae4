package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Intent buckets one conversational turn. Only domain and unclear turns
// trigger retrieval; the rest are answered from templates.
type Intent string

const (
	IntentDomain   Intent = "domain"
	IntentGreeting Intent = "greeting"
	IntentThanks   Intent = "thanks"
	IntentMeta     Intent = "meta"
	IntentHelp     Intent = "help"
	IntentUnclear  Intent = "unclear"
)

func (i Intent) NeedsRetrieval() bool {
	return i == IntentDomain || i == IntentUnclear
}

// Turn is one prior message of the conversation, consumed read-only to
// resolve follow-up questions.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Classification is the outcome of the intent call: what kind of turn
// this is, the concrete search query resolved from conversation context,
// and any epigraph titles the user named explicitly.
type Classification struct {
	Intent      Intent   `json:"intent"`
	SearchQuery string   `json:"search_query"`
	Titles      []string `json:"titles"`
}

const (
	historyTurns     = 4
	historyCharLimit = 300
	maxTitles        = 5
)

// cannedIntents short-circuits trivial turns so a bare "hi" never costs a
// model call.
var cannedIntents = map[string]Intent{
	"hi":           IntentGreeting,
	"hello":        IntentGreeting,
	"hey":          IntentGreeting,
	"good morning": IntentGreeting,
	"good evening": IntentGreeting,
	"thanks":       IntentThanks,
	"thank you":    IntentThanks,
	"thx":          IntentThanks,
}

// Classifier resolves a user turn into retrieval instructions with a
// single chat completion. Every failure mode degrades to domain intent
// with the raw query, so a flaky model call can never block a search.
type Classifier struct {
	gen Generator
}

func NewClassifier(gen Generator) *Classifier {
	return &Classifier{gen: gen}
}

const classifySystemPrompt = `You classify user messages for Hudhud, a question answering system over a database of Ancient South Arabian inscriptions (epigraphs).

Respond with a single JSON object and nothing else:
{"intent": "...", "search_query": "...", "titles": ["..."]}

intent is one of:
- "domain": a question about inscriptions, sites, rulers, deities, languages or history
- "greeting": a salutation with no question
- "thanks": gratitude with no question
- "meta": a question about what this assistant is or how it works
- "help": a request for usage guidance
- "unclear": anything you cannot place

search_query rules (for domain and unclear, otherwise empty string):
1. For follow-ups like "tell me more" or "search wider", derive a concrete topic from the conversation history (e.g. "Karib il Watar" becomes "Karib il Watar reign campaigns Saba kingdom").
2. Write a natural phrase, not a keyword list; the query feeds an embedding model.
3. Standalone questions pass through unchanged.
4. For Ancient South Arabian names you may add the transliterated form for recall (e.g. "Karib il Watar" and "Krbʾl Wtr").
5. Keep it to one or two sentences.

titles: epigraph sigla the user names explicitly (e.g. "RES 4176", "CIH 541"), otherwise [].`

// Classify never fails: classification errors are logged and the query
// is treated as a domain question verbatim.
func (c *Classifier) Classify(ctx context.Context, query string, history []Turn) Classification {
	fallback := Classification{Intent: IntentDomain, SearchQuery: query}

	normalized := strings.ToLower(strings.Trim(strings.TrimSpace(query), "!.,? "))
	if intent, ok := cannedIntents[normalized]; ok {
		return Classification{Intent: intent, SearchQuery: query}
	}

	raw, err := c.gen.Complete(ctx, classifySystemPrompt, classifyUserPrompt(query, history))
	if err != nil {
		slog.WarnContext(ctx, "intent classification failed, treating as domain query", "error", err)
		return fallback
	}

	cls, err := parseClassification(raw)
	if err != nil {
		slog.WarnContext(ctx, "unparseable classification, treating as domain query", "error", err)
		return fallback
	}
	if cls.SearchQuery == "" {
		cls.SearchQuery = query
	}
	if len(cls.Titles) > maxTitles {
		cls.Titles = cls.Titles[:maxTitles]
	}
	return cls
}

func classifyUserPrompt(query string, history []Turn) string {
	var b strings.Builder
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Conversation history:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", capitalize(t.Role), truncateRunes(t.Content, historyCharLimit))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User's new query: %q", query)
	return b.String()
}

// parseClassification tolerates prose and code fences around the JSON
// object; models wrap their output more often than not.
func parseClassification(raw string) (Classification, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Classification{}, fmt.Errorf("no JSON object in classification output")
	}
	var cls Classification
	if err := json.Unmarshal([]byte(raw[start:end+1]), &cls); err != nil {
		return Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	switch cls.Intent {
	case IntentDomain, IntentGreeting, IntentThanks, IntentMeta, IntentHelp, IntentUnclear:
	default:
		cls.Intent = IntentDomain
	}
	return cls, nil
}

// DirectReply is the canned answer for intents that need no retrieval.
func DirectReply(intent Intent) string {
	switch intent {
	case IntentGreeting:
		return "Hello! I'm Hudhud, an assistant for exploring Ancient South Arabian inscriptions. Ask me about an epigraph, a site, a ruler or a period and I'll search the database for you."
	case IntentThanks:
		return "You're welcome! Feel free to ask about other inscriptions, sites or periods."
	case IntentMeta:
		return "I'm Hudhud, a research assistant backed by a database of Ancient South Arabian epigraphs. I search inscription texts, translations and scholarly notes to answer your questions, citing the epigraphs I draw from."
	case IntentHelp:
		return "You can ask me questions like \"What do the inscriptions say about Karib il Watar?\" or \"Tell me about RES 4176\". I'll search the inscription database and answer with citations to the epigraphs I used."
	default:
		return ""
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
