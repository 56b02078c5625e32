package imagegen

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
)

// MockGenerator returns a fixed 1x1 PNG for every image. Used by tests
// and for running the pipeline without image model access.
type MockGenerator struct{}

// NewMockGenerator creates the mock backend.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

var (
	mockPNGOnce sync.Once
	mockPNG     []byte
)

// mockPixel returns the placeholder PNG, encoded once per process so
// every call yields identical bytes.
func mockPixel() []byte {
	mockPNGOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		img.Set(0, 0, color.RGBA{R: 127, G: 127, B: 127, A: 255})
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			panic(err)
		}
		mockPNG = buf.Bytes()
	})
	return mockPNG
}

func mockBatch(count int) []Image {
	if count < 1 {
		count = 1
	}
	pixel := mockPixel()
	images := make([]Image, count)
	for i := range images {
		images[i] = Image{Data: pixel, MIMEType: "image/png"}
	}
	return images
}

// Generate returns count copies of the placeholder.
func (m *MockGenerator) Generate(_ context.Context, _ string, count int, _ Options) ([]Image, error) {
	return mockBatch(count), nil
}

// Edit returns count copies of the placeholder.
func (m *MockGenerator) Edit(_ context.Context, _, _ string, count int, _ Options) ([]Image, error) {
	return mockBatch(count), nil
}
