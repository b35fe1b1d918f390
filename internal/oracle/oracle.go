// Package oracle abstracts the vision/text inference service. Callers
// treat it as a black box returning generated text plus a token count.
package oracle

import "context"

// Request is one completion request. ImagePath, when set, attaches the
// image at that path to the prompt.
type Request struct {
	Prompt    string
	ImagePath string
	MaxTokens int
}

// Response carries the generated text and the total tokens the call
// consumed, as reported by the backend. Backends that expose no usage
// report zero.
type Response struct {
	Text       string
	TokensUsed int
}

// Oracle is a vision-capable completion backend. Complete returns an
// error on any transport, auth, or quota problem; callers convert that
// into a failure result at their own granularity.
type Oracle interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	// Model names the underlying model, for artifact metadata.
	Model() string
}
