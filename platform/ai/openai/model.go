// Package openai adapts any OpenAI-compatible chat completions endpoint to
// the ADK model.LLM interface.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Model implements model.LLM over /chat/completions.
type Model struct {
	config Config
	client *http.Client
}

func NewModel(cfg Config) *Model {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Model{config: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (m *Model) Name() string {
	return m.config.Model
}

// GenerateContent answers with a single, non-streamed response.
func (m *Model) GenerateContent(ctx context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		yield(m.generate(ctx, req))
	}
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolDef struct {
	Type     string      `json:"type"`
	Function toolDefBody `json:"function"`
}

type toolDefBody struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []toolDef     `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (m *Model) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	body := chatRequest{
		Model:    m.config.Model,
		Messages: systemMessages(req),
	}
	body.Messages = append(body.Messages, convertContents(req.Contents)...)
	if tools := convertTools(req); len(tools) > 0 {
		body.Tools = tools
		body.ToolChoice = "auto"
	}
	if req.Config != nil && req.Config.Temperature != nil {
		body.Temperature = req.Config.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("chat api error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("chat api returned no choices")
	}

	choice := result.Choices[0].Message
	parts := make([]*genai.Part, 0, 1+len(choice.ToolCalls))
	if strings.TrimSpace(choice.Content) != "" {
		parts = append(parts, genai.NewPartFromText(choice.Content))
	}
	for _, tc := range choice.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{"_raw": tc.Function.Arguments}
			}
		}
		parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Function.Name, Args: args}})
	}

	return &model.LLMResponse{Content: &genai.Content{Role: genai.RoleModel, Parts: parts}}, nil
}

// systemMessages carries the agent instruction, which ADK places in the
// request config rather than in the contents.
func systemMessages(req *model.LLMRequest) []chatMessage {
	if req.Config == nil || req.Config.SystemInstruction == nil {
		return nil
	}
	var b strings.Builder
	for _, p := range req.Config.SystemInstruction.Parts {
		if p != nil && strings.TrimSpace(p.Text) != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return []chatMessage{{Role: "system", Content: b.String()}}
}

func convertContents(contents []*genai.Content) []chatMessage {
	messages := make([]chatMessage, 0, len(contents))
	for _, content := range contents {
		if content == nil {
			continue
		}
		role := "user"
		if content.Role == genai.RoleModel {
			role = "assistant"
		}

		var (
			text  strings.Builder
			calls []toolCall
		)
		for _, part := range content.Parts {
			switch {
			case part == nil:
			case part.FunctionResponse != nil:
				out, _ := json.Marshal(part.FunctionResponse.Response)
				messages = append(messages, chatMessage{Role: "tool", ToolCallID: part.FunctionResponse.ID, Content: string(out)})
			case part.FunctionCall != nil:
				args, _ := json.Marshal(part.FunctionCall.Args)
				calls = append(calls, toolCall{
					ID:       part.FunctionCall.ID,
					Type:     "function",
					Function: toolFunction{Name: part.FunctionCall.Name, Arguments: string(args)},
				})
			case strings.TrimSpace(part.Text) != "":
				if text.Len() > 0 {
					text.WriteString("\n")
				}
				text.WriteString(part.Text)
			}
		}
		if text.Len() > 0 || len(calls) > 0 {
			messages = append(messages, chatMessage{Role: role, Content: text.String(), ToolCalls: calls})
		}
	}
	return messages
}

func convertTools(req *model.LLMRequest) []toolDef {
	if req == nil || req.Config == nil {
		return nil
	}
	var tools []toolDef
	for _, t := range req.Config.Tools {
		if t == nil {
			continue
		}
		for _, decl := range t.FunctionDeclarations {
			if decl == nil || decl.Name == "" {
				continue
			}
			var params any
			switch {
			case decl.ParametersJsonSchema != nil:
				params = decl.ParametersJsonSchema
			case decl.Parameters != nil:
				params = decl.Parameters
			}
			tools = append(tools, toolDef{
				Type:     "function",
				Function: toolDefBody{Name: decl.Name, Description: decl.Description, Parameters: params},
			})
		}
	}
	return tools
}

var _ model.LLM = (*Model)(nil)
