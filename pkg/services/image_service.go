package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/atelier/pkg/models"
)

const imageColumns = `id, request_id, iteration_number, storage_key, public_url,
	prompt_used, mime_type, file_size_bytes, created_at`

// ImageService persists generated image metadata. The image bytes live in
// object storage; rows here carry the storage key and public URL.
type ImageService struct {
	pool *pgxpool.Pool
}

// NewImageService creates a new ImageService.
func NewImageService(pool *pgxpool.Pool) *ImageService {
	if pool == nil {
		panic("NewImageService: pool must not be nil")
	}
	return &ImageService{pool: pool}
}

// CreateBatch inserts all images of one iteration in a single transaction.
func (s *ImageService) CreateBatch(ctx context.Context, images []*models.GeneratedImage) error {
	if len(images) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, img := range images {
		batch.Queue(`
			INSERT INTO generated_images (
				id, request_id, iteration_number, storage_key, public_url,
				prompt_used, mime_type, file_size_bytes
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			img.ID, img.RequestID, img.IterationNumber, img.StorageKey, img.PublicURL,
			img.PromptUsed, img.MimeType, img.FileSizeBytes,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range images {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to insert image: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit images: %w", err)
	}
	return nil
}

// Get retrieves an image by ID.
func (s *ImageService) Get(ctx context.Context, id string) (*models.GeneratedImage, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+imageColumns+` FROM generated_images WHERE id = $1`, id)
	img, err := scanImage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return img, nil
}

// ListByRequest returns all images of a request in generation order.
func (s *ImageService) ListByRequest(ctx context.Context, requestID string) ([]*models.GeneratedImage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+imageColumns+` FROM generated_images
		WHERE request_id = $1
		ORDER BY iteration_number, created_at`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()
	return collectImages(rows)
}

// ListByIteration returns the images produced by a single iteration.
func (s *ImageService) ListByIteration(ctx context.Context, requestID string, iterationNumber int) ([]*models.GeneratedImage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+imageColumns+` FROM generated_images
		WHERE request_id = $1 AND iteration_number = $2
		ORDER BY created_at`,
		requestID, iterationNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list iteration images: %w", err)
	}
	defer rows.Close()
	return collectImages(rows)
}

func scanImage(row rowScanner) (*models.GeneratedImage, error) {
	var img models.GeneratedImage
	err := row.Scan(
		&img.ID, &img.RequestID, &img.IterationNumber, &img.StorageKey, &img.PublicURL,
		&img.PromptUsed, &img.MimeType, &img.FileSizeBytes, &img.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func collectImages(rows pgx.Rows) ([]*models.GeneratedImage, error) {
	images := []*models.GeneratedImage{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read images: %w", err)
	}
	return images, nil
}
