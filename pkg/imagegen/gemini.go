package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// GeminiGenerator renders images with the Imagen model and edits them with
// the multimodal image model. Prompts carrying reference images also route
// through the multimodal model, which accepts image conditioning.
type GeminiGenerator struct {
	client     *genai.Client
	imageModel string
	editModel  string
	references *referenceFetcher
}

// NewGeminiGenerator creates the Gemini-backed generator.
func NewGeminiGenerator(client *genai.Client, imageModel, editModel string) *GeminiGenerator {
	if client == nil {
		panic("genai client is required")
	}
	return &GeminiGenerator{
		client:     client,
		imageModel: imageModel,
		editModel:  editModel,
		references: newReferenceFetcher(),
	}
}

// Generate creates count images from the prompt. Without references this
// is a single batch call to the image model; with references each image is
// produced by a parallel multimodal call sharing the fetched references.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, count int, opts Options) ([]Image, error) {
	if count < 1 {
		count = 1
	}

	refs := g.references.fetch(ctx, opts.ReferenceImageURLs)
	if len(refs) > 0 {
		return g.generateMultimodal(ctx, prompt, count, refs)
	}

	cfg := &genai.GenerateImagesConfig{
		NumberOfImages: int32(count),
	}
	if opts.AspectRatio != "" {
		cfg.AspectRatio = opts.AspectRatio
	}

	resp, err := g.client.Models.GenerateImages(ctx, g.imageModel, prompt, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate images with model %s: %w", g.imageModel, err)
	}

	images := make([]Image, 0, len(resp.GeneratedImages))
	for _, gen := range resp.GeneratedImages {
		if gen.Image == nil || len(gen.Image.ImageBytes) == 0 {
			continue
		}
		images = append(images, Image{
			Data:     gen.Image.ImageBytes,
			MIMEType: mimeOrDefault(gen.Image.MIMEType),
		})
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("model %s returned no images", g.imageModel)
	}
	return images, nil
}

// Edit produces count edited variants of the source image.
func (g *GeminiGenerator) Edit(ctx context.Context, sourceBase64, instruction string, count int, opts Options) ([]Image, error) {
	if count < 1 {
		count = 1
	}

	source, mimeType, err := decodeSourceImage(sourceBase64)
	if err != nil {
		return nil, err
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(source, mimeType),
		{Text: instruction},
	}
	return g.callImageModel(ctx, parts, count)
}

// generateMultimodal renders via the multimodal image model so the fetched
// reference images can condition the output.
func (g *GeminiGenerator) generateMultimodal(ctx context.Context, prompt string, count int, refs []referenceImage) ([]Image, error) {
	parts := []*genai.Part{{Text: prompt}}
	for _, ref := range refs {
		parts = append(parts, genai.NewPartFromBytes(ref.Data, ref.MIMEType))
	}
	return g.callImageModel(ctx, parts, count)
}

// callImageModel runs count parallel single-image calls against the
// multimodal image model and collects the inline image outputs.
func (g *GeminiGenerator) callImageModel(ctx context.Context, parts []*genai.Part, count int) ([]Image, error) {
	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: parts},
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	var (
		mu     sync.Mutex
		images []Image
	)
	grp, grpCtx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		grp.Go(func() error {
			resp, err := g.client.Models.GenerateContent(grpCtx, g.editModel, contents, cfg)
			if err != nil {
				return fmt.Errorf("generate content with model %s: %w", g.editModel, err)
			}
			batch := inlineImages(resp)
			if len(batch) == 0 {
				return fmt.Errorf("model %s returned no image parts", g.editModel)
			}
			mu.Lock()
			images = append(images, batch...)
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// inlineImages extracts inline image blobs from a model response.
func inlineImages(resp *genai.GenerateContentResponse) []Image {
	var images []Image
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			images = append(images, Image{
				Data:     part.InlineData.Data,
				MIMEType: mimeOrDefault(part.InlineData.MIMEType),
			})
		}
	}
	return images
}

// decodeSourceImage decodes a standard or data-URI base64 image payload.
func decodeSourceImage(sourceBase64 string) ([]byte, string, error) {
	mimeType := "image/png"
	payload := sourceBase64
	if strings.HasPrefix(payload, "data:") {
		header, rest, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data URI in source image")
		}
		payload = rest
		header = strings.TrimPrefix(header, "data:")
		if mt, _, _ := strings.Cut(header, ";"); mt != "" {
			mimeType = mt
		}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode source image base64: %w", err)
	}
	return data, mimeType, nil
}

func mimeOrDefault(mimeType string) string {
	if mimeType == "" {
		return "image/png"
	}
	return mimeType
}
