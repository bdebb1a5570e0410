package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mediarun/runtime/node"
	"github.com/mediarun/runtime/wire"
)

const defaultLLMBaseURL = "https://api.openai.com/v1/chat/completions"

// LLMParams is the params JSON for an LLM node.
type LLMParams struct {
	Model       string  `json:"model"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// LLM is a unary node that sends its Text input as a single user message to
// a chat-completions endpoint and emits the response as a Text buffer,
// adapting the runtime's OpenAI HTTP client pattern down to one call shape.
type LLM struct {
	node.BaseNode
	model       string
	baseURL     string
	apiKey      string
	temperature float32
	maxTokens   int
	client      *http.Client
}

// NewLLM is a node.Constructor for the "llm" node type.
func NewLLM(params []byte) (node.Node, error) {
	p := LLMParams{Temperature: 0.7, MaxTokens: 512}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("catalog: invalid llm params: %w", err)
		}
	}
	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = defaultLLMBaseURL
	}

	return &LLM{
		model:       p.Model,
		baseURL:     baseURL,
		apiKey:      os.Getenv("OPENAI_API_KEY"),
		temperature: p.Temperature,
		maxTokens:   p.MaxTokens,
		client:      &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type llmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llmRequest struct {
	Model       string       `json:"model"`
	Messages    []llmMessage `json:"messages"`
	Temperature float32      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

type llmChoice struct {
	Message llmMessage `json:"message"`
}

type llmResponse struct {
	Choices []llmChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (l *LLM) Process(ctx context.Context, chunk node.Chunk) (<-chan node.Output, error) {
	if chunk.Buffer == nil || chunk.Buffer.Text == nil {
		return nil, fmt.Errorf("catalog: llm requires a text input buffer")
	}
	if l.model == "" {
		return nil, fmt.Errorf("catalog: llm node constructed without a model param")
	}

	reqBody, err := json.Marshal(llmRequest{
		Model:       l.model,
		Messages:    []llmMessage{{Role: "user", Content: string(chunk.Buffer.Text.Payload)}},
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("catalog: llm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("catalog: llm response read failed: %w", err)
	}

	var parsed llmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("catalog: llm response decode failed: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("catalog: llm API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("catalog: llm response contained no choices")
	}

	out := make(chan node.Output, 1)
	out <- node.Output{Buffer: wire.NewTextBuffer(wire.Text{Payload: []byte(parsed.Choices[0].Message.Content)})}
	close(out)
	return out, nil
}

func (l *LLM) Cleanup(ctx context.Context) error {
	l.client.CloseIdleConnections()
	return nil
}

func (l *LLM) Capabilities() node.Capabilities {
	return node.Capabilities{
		InputKinds:  node.SingleKind(wire.KindText),
		OutputKinds: node.SingleKind(wire.KindText),
		Requirements: []node.CapabilityRequirement{
			{Name: "network_egress", Value: 1},
		},
	}
}
