package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
)

// VoiceprintRepository defines persistence operations for voiceprint profiles
type VoiceprintRepository interface {
	// Create stores a freshly enrolled profile
	Create(ctx context.Context, profile *entities.VoiceprintProfile) error
	// Update replaces samples, aggregate and metadata of a profile
	Update(ctx context.Context, profile *entities.VoiceprintProfile) error
	// FindByID returns nil, nil when the profile does not exist or is deleted
	FindByID(ctx context.Context, id uuid.UUID) (*entities.VoiceprintProfile, error)
	// ListActive returns every non-deleted profile
	ListActive(ctx context.Context) ([]*entities.VoiceprintProfile, error)
	// SoftDelete tombstones a profile
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// UpdateMatchStats persists rolling match statistics
	UpdateMatchStats(ctx context.Context, id uuid.UUID, count int, avg float64, at time.Time) error
}
