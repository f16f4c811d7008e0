package agent

import (
	"context"
)

// Processor is the remote conversational model. Implementations receive the
// full message history on every call and keep no state between calls.
type Processor interface {
	// Complete sends the system prompt and messages and returns the model's text reply.
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}

// Ensure OpenAIClient implements Processor.
var _ Processor = (*OpenAIClient)(nil)
