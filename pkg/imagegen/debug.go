package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// debugWriter wraps a Generator and dumps every produced image to a local
// directory. Dump failures are logged and never fail the generation.
type debugWriter struct {
	next Generator
	dir  string
	seq  atomic.Int64
}

func newDebugWriter(next Generator, dir string) *debugWriter {
	if dir == "" {
		dir = "./debug-images"
	}
	return &debugWriter{next: next, dir: dir}
}

func (d *debugWriter) Generate(ctx context.Context, prompt string, count int, opts Options) ([]Image, error) {
	images, err := d.next.Generate(ctx, prompt, count, opts)
	d.dump("generate", images)
	return images, err
}

func (d *debugWriter) Edit(ctx context.Context, sourceBase64, instruction string, count int, opts Options) ([]Image, error) {
	images, err := d.next.Edit(ctx, sourceBase64, instruction, count, opts)
	d.dump("edit", images)
	return images, err
}

func (d *debugWriter) dump(kind string, images []Image) {
	if len(images) == 0 {
		return
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		slog.Warn("Failed to create debug image directory", "dir", d.dir, "error", err)
		return
	}
	stamp := time.Now().UTC().Format("20060102T150405")
	for _, img := range images {
		name := fmt.Sprintf("%s-%s-%04d.%s", stamp, kind, d.seq.Add(1), extensionForMIME(img.MIMEType))
		path := filepath.Join(d.dir, name)
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			slog.Warn("Failed to write debug image", "path", path, "error", err)
		}
	}
}

func extensionForMIME(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}
