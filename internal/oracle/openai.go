package oracle

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOracle answers completions through an OpenAI-compatible chat
// API, attaching images as base64 data URLs.
type OpenAIOracle struct {
	cli   *openai.Client
	model string
}

// NewOpenAIOracle builds an oracle against apiKey and model. A non-empty
// baseURL points the client at a compatible alternative endpoint.
func NewOpenAIOracle(apiKey, baseURL, model string) *OpenAIOracle {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &OpenAIOracle{
		cli:   openai.NewClientWithConfig(clientConfig),
		model: model,
	}
}

// Model returns the configured chat model name.
func (o *OpenAIOracle) Model() string {
	return o.model
}

// Complete issues one chat completion. Image requests use multi-part
// content with the JPEG inlined as a data URL.
func (o *OpenAIOracle) Complete(ctx context.Context, req Request) (*Response, error) {
	var message openai.ChatCompletionMessage
	if req.ImagePath != "" {
		data, err := os.ReadFile(req.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read image '%s': %v", req.ImagePath, err)
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		message = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: req.Prompt,
				},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: "data:image/jpeg;base64," + encoded,
					},
				},
			},
		}
	} else {
		message = openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		}
	}

	resp, err := o.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  []openai.ChatCompletionMessage{message},
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("completion API call failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned")
	}

	return &Response{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// Ping makes a minimal completion call to verify connectivity and
// credentials.
func (o *OpenAIOracle) Ping(ctx context.Context) error {
	_, err := o.Complete(ctx, Request{
		Prompt:    "Hello, this is a test.",
		MaxTokens: 10,
	})
	return err
}
