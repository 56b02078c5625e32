// Package imagegen generates and edits images through pluggable backends.
// The production backend drives the Gemini image models; a mock backend
// returns deterministic placeholder pixels for tests and local runs.
package imagegen

import (
	"context"

	"google.golang.org/genai"

	"github.com/atelierhq/atelier/pkg/config"
)

// Image is one generated artifact.
type Image struct {
	Data     []byte
	MIMEType string
}

// Options tune a generation batch. Quality is a backend-specific hint and
// may be ignored. Reference images are fetched once per batch and shared
// across the parallel generations; a reference that fails to fetch is
// skipped with a warning.
type Options struct {
	AspectRatio        string
	Quality            string
	ReferenceImageURLs []string
}

// Generator produces and edits images. Implementations are safe for
// concurrent use.
type Generator interface {
	// Generate creates count images from a text prompt.
	Generate(ctx context.Context, prompt string, count int, opts Options) ([]Image, error)
	// Edit produces count variants of the source image (standard or data-URI
	// base64) altered per the instruction.
	Edit(ctx context.Context, sourceBase64, instruction string, count int, opts Options) ([]Image, error)
}

// New builds the configured generator: mock when cfg.MockImages is set,
// otherwise Gemini-backed. With cfg.DebugOutput every produced image is
// additionally dumped to cfg.DebugOutputDir.
func New(cfg config.LLMConfig, client *genai.Client) Generator {
	var gen Generator
	if cfg.MockImages {
		gen = NewMockGenerator()
	} else {
		gen = NewGeminiGenerator(client, cfg.ImageModel, cfg.EditModel)
	}
	if cfg.DebugOutput {
		gen = newDebugWriter(gen, cfg.DebugOutputDir)
	}
	return gen
}
