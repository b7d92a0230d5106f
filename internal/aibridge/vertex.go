package aibridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/auth"
	"google.golang.org/genai"

	"github.com/starford/thinkblock/internal/apperr"
)

// VertexConfig identifies the Vertex AI model to call.
type VertexConfig struct {
	Project  string
	Location string
	Model    string
	// Credentials may be nil, in which case the client discovers
	// application-default credentials itself.
	Credentials *auth.Credentials
}

// VertexGenerator calls a Gemini model through the Vertex AI backend.
type VertexGenerator struct {
	client *genai.Client
	model  string
}

var _ Generator = (*VertexGenerator)(nil)

// NewVertexGenerator creates the genai client for cfg.
func NewVertexGenerator(ctx context.Context, cfg VertexConfig) (*VertexGenerator, error) {
	if cfg.Model == "" {
		return nil, errors.New("vertex: model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     cfg.Project,
		Location:    cfg.Location,
		Credentials: cfg.Credentials,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex: create client: %w", err)
	}
	return &VertexGenerator{client: client, model: cfg.Model}, nil
}

// Generate sends prompt as a single user turn and returns the answer text.
func (g *VertexGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("%w: vertex generate: %w", apperr.ErrAIService, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: vertex returned an empty answer", apperr.ErrAIService)
	}
	return text, nil
}

// LazyGenerator defers client construction to the first Generate call. A
// failed construction is retried on the next call, so the service can start
// without AI credentials and pick them up later.
type LazyGenerator struct {
	build func(ctx context.Context) (Generator, error)
	log   *slog.Logger

	mu  sync.Mutex
	gen Generator
}

var _ Generator = (*LazyGenerator)(nil)

// NewLazyGenerator wraps build.
func NewLazyGenerator(build func(ctx context.Context) (Generator, error), log *slog.Logger) *LazyGenerator {
	if log == nil {
		log = slog.Default()
	}
	return &LazyGenerator{build: build, log: log}
}

func (l *LazyGenerator) get(ctx context.Context) (Generator, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != nil {
		return l.gen, nil
	}
	gen, err := l.build(ctx)
	if err != nil {
		l.log.Error("AI client initialisation failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: initialise model client: %w", apperr.ErrAIService, err)
	}
	l.gen = gen
	return gen, nil
}

// Generate builds the underlying generator if needed and delegates to it.
func (l *LazyGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	gen, err := l.get(ctx)
	if err != nil {
		return "", err
	}
	return gen.Generate(ctx, prompt)
}
