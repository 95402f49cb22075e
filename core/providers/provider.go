// Package providers is a uniform gateway over interchangeable text
// generation backends. Every backend-specific failure is normalized into a
// GenerationError before it leaves this package; callers never see SDK error
// types.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStreamingUnsupported is returned immediately by backends that
	// cannot stream, instead of silently degrading to a whole response.
	ErrStreamingUnsupported = errors.New("provider does not support streaming")

	// ErrProviderNotRegistered is returned when requesting a provider the
	// registry does not hold.
	ErrProviderNotRegistered = errors.New("provider not registered")
)

// GenerationError is the single error kind for backend failures. It carries
// the provider name and a human-readable cause; credentials never appear in
// the message.
type GenerationError struct {
	Provider string
	Cause    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Provider, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Request is a provider-agnostic generation request.
type Request struct {
	Prompt       string
	SystemPrompt string

	// Temperature, when nil, leaves the backend default in place.
	Temperature *float64

	// MaxTokens, when zero, leaves the backend default in place.
	MaxTokens int
}

// Response is a provider-agnostic generation result.
type Response struct {
	Text         string
	Provider     string
	Model        string
	ResponseTime time.Duration
}

// StreamChunk is one fragment of a streaming response. Concatenating the
// Text of all chunks equals the non-streaming response text.
type StreamChunk struct {
	Text string
	Err  error
}

// Provider is the capability implemented by every generation backend.
type Provider interface {
	Name() string
	Model() string

	Generate(ctx context.Context, req *Request) (*Response, error)

	// GenerateStream returns a lazy, finite, non-restartable sequence of
	// fragments. The channel closes when the stream ends; a terminal error
	// arrives as a chunk with Err set. Backends without streaming support
	// return ErrStreamingUnsupported immediately.
	GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, error)
}
