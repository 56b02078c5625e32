// Package cleanup provides data retention enforcement.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/models"
	"github.com/atelierhq/atelier/pkg/services"
)

// RequestStore is the retention surface of the request service.
type RequestStore interface {
	SoftDeleteOldRequests(ctx context.Context, retentionDays int) (int, error)
	ListPurgeable(ctx context.Context, deletedBefore time.Time, limit int) ([]*models.GenerationRequest, error)
	Purge(ctx context.Context, id string) error
}

// ImageStore lists a request's stored images so their objects can be
// removed before the rows are purged.
type ImageStore interface {
	ListByRequest(ctx context.Context, requestID string) ([]*models.GeneratedImage, error)
}

// ObjectStore removes stored objects.
type ObjectStore interface {
	Remove(ctx context.Context, key string) error
}

var (
	_ RequestStore = (*services.RequestService)(nil)
	_ ImageStore   = (*services.ImageService)(nil)
)

// Service periodically enforces retention policies:
//   - Soft-deletes terminal requests past the retention period
//   - Purges soft-deleted requests past the purge window, removing their
//     stored images first
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config   *config.RetentionConfig
	requests RequestStore
	images   ImageStore
	objects  ObjectStore

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, requests RequestStore, images ImageStore, objects ObjectStore) *Service {
	return &Service{
		config:   cfg,
		requests: requests,
		images:   images,
		objects:  objects,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"request_retention_days", s.config.RequestRetentionDays,
		"purge_after_days", s.config.PurgeAfterDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one retention pass.
func (s *Service) RunOnce(ctx context.Context) {
	s.softDeleteOldRequests(ctx)
	s.purgeExpiredRequests(ctx)
}

func (s *Service) softDeleteOldRequests(ctx context.Context) {
	count, err := s.requests.SoftDeleteOldRequests(ctx, s.config.RequestRetentionDays)
	if err != nil {
		slog.Error("Retention: soft-delete requests failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: soft-deleted old requests", "count", count)
	}
}

func (s *Service) purgeExpiredRequests(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.config.PurgeAfterDays)
	requests, err := s.requests.ListPurgeable(ctx, cutoff, s.config.PurgeBatchSize)
	if err != nil {
		slog.Error("Retention: list purgeable requests failed", "error", err)
		return
	}

	purged := 0
	for _, req := range requests {
		if ctx.Err() != nil {
			return
		}
		if err := s.purgeRequest(ctx, req); err != nil {
			slog.Error("Retention: purge failed", "request_id", req.ID, "error", err)
			continue
		}
		purged++
	}
	if purged > 0 {
		slog.Info("Retention: purged requests", "count", purged)
	}
}

// purgeRequest removes the request's stored images and then its rows.
// An image object that fails to delete aborts the purge so the row sticks
// around for the next pass rather than leaking the object.
func (s *Service) purgeRequest(ctx context.Context, req *models.GenerationRequest) error {
	images, err := s.images.ListByRequest(ctx, req.ID)
	if err != nil {
		return err
	}
	for _, img := range images {
		if err := s.objects.Remove(ctx, img.StorageKey); err != nil {
			return err
		}
	}
	return s.requests.Purge(ctx, req.ID)
}
