package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/pkg/models"
	testdb "github.com/atelierhq/atelier/test/database"
)

func testImage(requestID string, iteration int) *models.GeneratedImage {
	return &models.GeneratedImage{
		ID:              uuid.New().String(),
		RequestID:       requestID,
		IterationNumber: iteration,
		StorageKey:      "org-1/requests/" + requestID + "/" + uuid.New().String() + ".png",
		PublicURL:       "https://cdn.example.com/img.png",
		PromptUsed:      "a ceramic mug on slate",
		MimeType:        "image/png",
		FileSizeBytes:   12345,
	}
}

func TestImageService(t *testing.T) {
	client := testdb.NewTestClient(t)
	requests := NewRequestService(client.Pool())
	service := NewImageService(client.Pool())
	ctx := context.Background()

	req, err := requests.Create(ctx, validRequestInput())
	require.NoError(t, err)

	t.Run("empty batch is a no-op", func(t *testing.T) {
		require.NoError(t, service.CreateBatch(ctx, nil))
	})

	t.Run("persists an iteration batch", func(t *testing.T) {
		batch := []*models.GeneratedImage{
			testImage(req.ID, 1),
			testImage(req.ID, 1),
			testImage(req.ID, 2),
		}
		require.NoError(t, service.CreateBatch(ctx, batch))

		got, err := service.Get(ctx, batch[0].ID)
		require.NoError(t, err)
		assert.Equal(t, batch[0].StorageKey, got.StorageKey)
		assert.Equal(t, "image/png", got.MimeType)
		assert.Equal(t, int64(12345), got.FileSizeBytes)

		all, err := service.ListByRequest(ctx, req.ID)
		require.NoError(t, err)
		require.Len(t, all, 3)
		// Generation order: iteration, then insertion time.
		assert.Equal(t, 1, all[0].IterationNumber)
		assert.Equal(t, 1, all[1].IterationNumber)
		assert.Equal(t, 2, all[2].IterationNumber)

		iter1, err := service.ListByIteration(ctx, req.ID, 1)
		require.NoError(t, err)
		assert.Len(t, iter1, 2)
	})

	t.Run("get missing image", func(t *testing.T) {
		_, err := service.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("batch insert is atomic", func(t *testing.T) {
		good := testImage(req.ID, 3)
		bad := testImage("missing-request", 3)
		err := service.CreateBatch(ctx, []*models.GeneratedImage{good, bad})
		require.Error(t, err)

		_, err = service.Get(ctx, good.ID)
		assert.ErrorIs(t, err, ErrNotFound, "failed batch must not leave partial rows")
	})

	t.Run("purging the request cascades to images", func(t *testing.T) {
		require.NoError(t, requests.Purge(ctx, req.ID))

		remaining, err := service.ListByRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Empty(t, remaining)
	})
}
