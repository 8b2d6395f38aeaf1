package brain

import (
	"context"
	"strings"
)

// MockProvider answers deterministically when no model is configured.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	select {
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	default:
	}

	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = strings.ToLower(req.Messages[i].Content)
			break
		}
	}

	switch {
	case strings.Contains(last, "bye"), strings.Contains(last, "that's all"):
		return Completion{Text: "Thank you for calling. Have a great day!"}, nil
	case strings.Contains(last, "hour"), strings.Contains(last, "open"):
		return Completion{Text: "We're open during regular business hours. How can I help?"}, nil
	case last == "":
		return Completion{Text: "How can I help?"}, nil
	default:
		return Completion{Text: "I'll take a message. How can I help?"}, nil
	}
}
