package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"leadfunnel_backend/platform/ai/openai"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
)

const appName = "lead_funnel"

// Agent generates replies through an ADK runner. Each mode has its own
// agent so the restrictive post-booking instruction never leaks into
// normal turns.
type Agent struct {
	runners        map[Mode]*runner.Runner
	sessionService session.Service
	deps           *toolDeps
	timeout        time.Duration
	log            *logger.Logger
}

// NewModel builds the LLM selected by configuration.
func NewModel(ctx context.Context, cfg config.GenerationConfig) (model.LLM, error) {
	switch cfg.GetLLMProvider() {
	case config.LLMProviderOpenAI:
		return openai.NewModel(openai.Config{
			APIKey:  cfg.GetOpenAIAPIKey(),
			BaseURL: cfg.GetOpenAIBaseURL(),
			Model:   cfg.GetOpenAIModel(),
			Timeout: cfg.GetGenerationTimeout(),
		}), nil
	default:
		return gemini.NewModel(ctx, cfg.GetGeminiModel(), &genai.ClientConfig{
			APIKey:  cfg.GetGeminiAPIKey(),
			Backend: genai.BackendGeminiAPI,
		})
	}
}

// NewAgent wires both modes around one model.
func NewAgent(llm model.LLM, campuses CampusDirectory, objections Objections, timeout time.Duration, log *logger.Logger) (*Agent, error) {
	deps := &toolDeps{campuses: campuses, objections: objections}
	tools, err := buildTools(deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation tools: %w", err)
	}

	sessionService := session.InMemoryService()
	a := &Agent{
		runners:        make(map[Mode]*runner.Runner, 2),
		sessionService: sessionService,
		deps:           deps,
		timeout:        timeout,
		log:            log,
	}

	specs := []struct {
		mode        Mode
		name        string
		instruction string
	}{
		{ModeNormal, "Luca", normalInstruction},
		{ModePostBooking, "LucaPostBooking", postBookingInstruction},
	}
	for _, spec := range specs {
		adkAgent, err := llmagent.New(llmagent.Config{
			Name:        spec.name,
			Model:       llm,
			Description: "Admissions assistant that qualifies leads and books advisor appointments.",
			Instruction: spec.instruction,
			Tools:       tools,
			GenerateContentConfig: &genai.GenerateContentConfig{
				Temperature: genai.Ptr[float32](0),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s agent: %w", spec.mode, err)
		}
		r, err := runner.New(runner.Config{
			AppName:        appName,
			Agent:          adkAgent,
			SessionService: sessionService,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s runner: %w", spec.mode, err)
		}
		a.runners[spec.mode] = r
	}
	return a, nil
}

// Generate runs one agent turn. A timeout or model failure comes back as a
// transient error; the caller owns the fallback reply.
func (a *Agent) Generate(ctx context.Context, req Request) (Result, error) {
	r, ok := a.runners[req.Mode]
	if !ok {
		return Result{}, apperr.Invariant(fmt.Sprintf("unknown generation mode %d", req.Mode))
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	st := &runState{locationID: req.LocationID}
	ctx = withRun(ctx, st)

	sessionID := uuid.New().String()
	userID := "contact-" + req.ContactID
	if _, err := a.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		return Result{}, fmt.Errorf("failed to create generation session: %w", err)
	}
	defer func() {
		_ = a.sessionService.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	summary := ""
	if a.deps.objections != nil {
		summary = a.deps.objections.Snapshot().Summary()
	}
	prompt := buildPrompt(req, a.deps.campuses, summary)
	userMessage := &genai.Content{Role: "user", Parts: []*genai.Part{{Text: prompt}}}
	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}

	var reply string
	for event, err := range r.Run(ctx, userID, sessionID, userMessage, runConfig) {
		if err != nil {
			return Result{}, a.classify(ctx, err)
		}
		if event == nil || event.Content == nil {
			continue
		}
		var text strings.Builder
		for _, part := range event.Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
		}
		if strings.TrimSpace(text.String()) != "" {
			reply = text.String()
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, a.classify(ctx, err)
	}

	res := finish(req, reply, st, a.deps.campuses)
	a.log.Debug("generation completed",
		"contact_id", req.ContactID,
		"mode", req.Mode.String(),
		"relevant", res.Relevant,
		"tool_urls", len(res.ToolURLs),
	)
	return res, nil
}

func (a *Agent) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Transient("generation timed out", err)
	}
	return apperr.Transient("generation failed", err)
}

var _ Generator = (*Agent)(nil)
