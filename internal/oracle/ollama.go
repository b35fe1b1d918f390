package oracle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agent-api/core/pkg/agent"
	"github.com/agent-api/core/types"
	"github.com/agent-api/ollama"
)

// OllamaOracle runs completions against a local Ollama instance via the
// agent-api provider. Ollama reports no token usage, so TokensUsed is
// always zero; cost accounting treats local inference as free.
type OllamaOracle struct {
	agent *agent.DefaultAgent
	model string
}

// NewOllamaOracle sets up an agent against a local Ollama server.
func NewOllamaOracle(ctx context.Context, logger *slog.Logger, baseURL string, port int, model string) *OllamaOracle {
	provider := ollama.NewProvider(&ollama.ProviderOpts{
		Logger:  logger,
		BaseURL: baseURL,
		Port:    port,
	})
	provider.UseModel(ctx, &types.Model{ID: model})

	a := agent.NewAgent(&agent.NewAgentConfig{
		Provider:     provider,
		Logger:       logger,
		SystemPrompt: "You are a visual analysis assistant specialized in detailed image descriptions.",
	})
	return &OllamaOracle{agent: a, model: model}
}

// Model returns the Ollama model id.
func (o *OllamaOracle) Model() string {
	return o.model
}

// Complete runs the agent once and returns the final message content.
func (o *OllamaOracle) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.ImagePath != "" {
		response := o.agent.Run(ctx, agent.WithInput(req.Prompt), agent.WithImagePath(req.ImagePath))
		if response.Err != nil {
			return nil, fmt.Errorf("ollama completion failed: %v", response.Err)
		}
		if len(response.Messages) == 0 {
			return nil, fmt.Errorf("no response messages received from model")
		}
		return &Response{Text: response.Messages[len(response.Messages)-1].Content}, nil
	}

	response := o.agent.Run(ctx, agent.WithInput(req.Prompt))
	if response.Err != nil {
		return nil, fmt.Errorf("ollama completion failed: %v", response.Err)
	}
	if len(response.Messages) == 0 {
		return nil, fmt.Errorf("no response messages received from model")
	}
	return &Response{Text: response.Messages[len(response.Messages)-1].Content}, nil
}
