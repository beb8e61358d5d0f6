package port

import (
	"context"

	"github.com/bnema/hlsd/internal/domain"
)

// MediaStore is the durable metadata store. Implementations must serialize
// conflicting writes per item and report lock contention as
// domain.ErrStoreBusy.
type MediaStore interface {
	Save(ctx context.Context, m *domain.MediaItem) error
	Get(ctx context.Context, id string) (*domain.MediaItem, error)
	ListAll(ctx context.Context) ([]*domain.MediaItem, error)
	UpdateHLS(ctx context.Context, id string, u domain.HLSUpdate) error
	Ping(ctx context.Context) error
	Close() error
}
