package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultChatModel handles both intent classification and answer synthesis.
const DefaultChatModel = string(openai.ChatModelGPT4o)

// Generator wraps the chat completions API for the answer pipeline.
type Generator struct {
	client openai.Client
	model  string
}

func NewGenerator(apiKey, model string, opts ...option.RequestOption) *Generator {
	if model == "" {
		model = DefaultChatModel
	}
	return &Generator{
		client: openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
		model:  model,
	}
}

// Complete runs one non-streaming exchange, used for the classification
// call that precedes retrieval.
func (g *Generator) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream generates an answer token by token, invoking onToken for each
// delta. A non-nil error from onToken aborts the stream; the context
// cancels it when the client goes away.
func (g *Generator) Stream(ctx context.Context, system, user string, onToken func(string) error) error {
	stream := g.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := onToken(delta); err != nil {
			slog.DebugContext(ctx, "token consumer stopped the stream", "error", err)
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("chat stream: %w", err)
	}
	return ctx.Err()
}
