package brain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/receptionist/internal/session"
)

// FallbackReply is spoken in place of a generated line when the model fails.
const FallbackReply = "I apologize, but I'm having trouble understanding. Could you please repeat that?"

var closingPhrases = []string{
	"goodbye",
	"thank you for calling",
	"have a great day",
}

// IsClosing reports whether an agent line ends the conversation.
func IsClosing(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range closingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// GeneratorOptions tune the completion request.
type GeneratorOptions struct {
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
}

func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{
		Timeout:     8 * time.Second,
		MaxTokens:   40,
		Temperature: 0.2,
	}
}

type GenerateRequest struct {
	Utterance string
	// History is the bounded transcript window preceding Utterance.
	History []session.Turn
	Config  session.AgentConfig
}

// GenerateResult always carries speakable Text. When the provider failed,
// Fallback is set, Text is FallbackReply and Err holds the cause.
type GenerateResult struct {
	Text     string
	Usage    Usage
	EndCall  bool
	Fallback bool
	Err      error
	Latency  time.Duration
}

// Generator produces the receptionist's next line.
type Generator struct {
	provider Provider
	opts     GeneratorOptions
}

func NewGenerator(provider Provider, opts GeneratorOptions) *Generator {
	def := DefaultGeneratorOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	return &Generator{provider: provider, opts: opts}
}

func (g *Generator) ProviderName() string {
	if g.provider == nil {
		return "none"
	}
	return g.provider.Name()
}

func (g *Generator) Generate(ctx context.Context, req GenerateRequest) GenerateResult {
	started := time.Now()
	res := g.generate(ctx, req)
	res.Latency = time.Since(started)
	return res
}

func (g *Generator) generate(ctx context.Context, req GenerateRequest) GenerateResult {
	if g.provider == nil {
		return fallback(fmt.Errorf("no language model provider configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	completion, err := g.provider.Complete(ctx, CompletionRequest{
		System:      BuildInstructions(req.Config),
		Messages:    buildMessages(req.History, req.Utterance),
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		return fallback(err)
	}
	text := strings.TrimSpace(completion.Text)
	if text == "" {
		return fallback(ErrEmptyCompletion)
	}
	return GenerateResult{
		Text:    text,
		Usage:   completion.Usage,
		EndCall: IsClosing(text),
	}
}

func fallback(err error) GenerateResult {
	return GenerateResult{Text: FallbackReply, Fallback: true, Err: err}
}

// BuildInstructions renders the system prompt for one business.
func BuildInstructions(cfg session.AgentConfig) string {
	name := strings.TrimSpace(cfg.BusinessName)
	if name == "" {
		name = session.DefaultBusinessName
	}
	hours := strings.TrimSpace(cfg.BusinessHours)
	if hours == "" {
		hours = session.DefaultBusinessHours
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s's AI receptionist. Be helpful and ULTRA BRIEF.\n\n", name)
	b.WriteString("RULES:\n")
	b.WriteString("- Max 15 words per response\n")
	b.WriteString("- Direct answers only\n")
	b.WriteString("- Unknown info: \"I'll take a message\"\n")
	fmt.Fprintf(&b, "- Hours: %s\n", hours)
	b.WriteString("- Always ask \"How can I help?\"")
	if custom := strings.TrimSpace(cfg.CustomInstructions); custom != "" {
		b.WriteString("\n\n")
		b.WriteString(custom)
	}
	return b.String()
}

func buildMessages(history []session.Turn, utterance string) []Message {
	out := make([]Message, 0, len(history)+1)
	for _, t := range history {
		role := RoleUser
		if t.Speaker == session.SpeakerAgent {
			role = RoleAssistant
		}
		out = append(out, Message{Role: role, Content: t.Text})
	}
	return append(out, Message{Role: RoleUser, Content: utterance})
}
