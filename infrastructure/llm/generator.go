package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ ports.Generator = (*Generator)(nil)

// completeMarker is the terminator a prefix continuation emits when the
// answer is finished. The marker is stripped before the content reaches
// candidates.
const completeMarker = "<<ANSWER_COMPLETE>>"

// GeneratorConfig configures a Generator adapter.
type GeneratorConfig struct {
	// System is an optional system prompt applied to every generation.
	System string `yaml:"system" json:"system"`

	// StepTokens bounds a single continuation step for tree searches.
	// Zero applies no extra bound beyond the request's MaxTokens.
	StepTokens int `yaml:"step_tokens" json:"step_tokens" validate:"min=0"`
}

// Generator adapts a ports.LLMClient to the generation boundary.
// It builds prompts from requests, stamps provenance (backend identity,
// sampling parameters, token cost, latency), and returns failures as
// *ports.GenerationError so controllers can count them as partial batch
// failures.
type Generator struct {
	client ports.LLMClient
	config GeneratorConfig
	id     string
}

// NewGenerator creates a Generator backed by the given client. The
// generator's identity is derived from the client's model for
// provenance.
func NewGenerator(client ports.LLMClient, config GeneratorConfig) (*Generator, error) {
	if client == nil {
		return nil, domain.NewConfigError("generator", "client", "LLM client is required")
	}
	return &Generator{
		client: client,
		config: config,
		id:     "llm/" + client.GetModel(),
	}, nil
}

// ID identifies this generation backend.
func (g *Generator) ID() string { return g.id }

// Generate produces one candidate for the request. Flat requests (no
// prefix) always yield complete candidates; prefix continuations are
// complete only when the model terminates the answer.
func (g *Generator) Generate(ctx context.Context, req ports.GenerationRequest) (domain.Candidate, error) {
	opts := OptionsFromParams(req.Params)
	if g.config.System != "" {
		opts["system"] = g.config.System
	}
	if req.Prefix != "" && g.config.StepTokens > 0 {
		opts["max_tokens"] = g.config.StepTokens
	}

	start := time.Now()
	response, tokensIn, tokensOut, err := g.client.CompleteWithUsage(ctx, g.buildPrompt(req), opts)
	if err != nil {
		return domain.Candidate{}, ports.NewGenerationError(g.id, "generate", err)
	}

	content, complete := g.interpret(req, response)
	if content == "" {
		return domain.Candidate{}, ports.NewGenerationError(g.id, "generate",
			fmt.Errorf("%w: empty content", ports.ErrInvalidResponse))
	}

	return domain.Candidate{
		ID:       uuid.NewString(),
		Content:  content,
		Complete: complete,
		Provenance: domain.Provenance{
			GeneratorID: g.id,
			Params:      req.Params,
			TokensUsed:  tokensIn + tokensOut,
			Latency:     time.Since(start),
		},
	}, nil
}

// buildPrompt renders the request as a prompt. Prefix continuations ask
// the model to extend the partial answer one step and to emit the
// completion marker when done.
func (g *Generator) buildPrompt(req ports.GenerationRequest) string {
	if req.Prefix == "" {
		return req.Query
	}

	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(req.Query)
	b.WriteString("\n\nPartial answer so far:\n")
	b.WriteString(req.Prefix)
	b.WriteString("\n\nContinue the answer with the next reasoning step only. ")
	b.WriteString("If this step finishes the answer, end your output with ")
	b.WriteString(completeMarker)
	b.WriteString(" on its own line.")
	return b.String()
}

// interpret assembles the candidate content and decides completeness.
func (g *Generator) interpret(req ports.GenerationRequest, response string) (string, bool) {
	if req.Prefix == "" {
		return strings.TrimSpace(response), true
	}

	step := response
	complete := false
	if idx := strings.Index(step, completeMarker); idx >= 0 {
		step = step[:idx]
		complete = true
	}
	step = strings.TrimSpace(step)
	if step == "" {
		return strings.TrimSpace(req.Prefix), complete
	}
	return req.Prefix + "\n" + step, complete
}
