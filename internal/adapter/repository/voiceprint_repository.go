package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/repositories"
)

// VoiceprintRepository stores voiceprint profiles in Postgres
type VoiceprintRepository struct {
	db *gorm.DB
}

var _ repositories.VoiceprintRepository = (*VoiceprintRepository)(nil)

// NewVoiceprintRepository creates a new voiceprint repository
func NewVoiceprintRepository(db *gorm.DB) *VoiceprintRepository {
	return &VoiceprintRepository{db: db}
}

// Create stores a freshly enrolled profile
func (r *VoiceprintRepository) Create(ctx context.Context, profile *entities.VoiceprintProfile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}
	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		return fmt.Errorf("failed to create voiceprint: %w", err)
	}
	return nil
}

// Update rewrites samples, aggregate and metadata. Match statistics are
// owned by UpdateMatchStats and left untouched.
func (r *VoiceprintRepository) Update(ctx context.Context, profile *entities.VoiceprintProfile) error {
	res := r.db.WithContext(ctx).
		Model(&entities.VoiceprintProfile{ID: profile.ID}).
		Select("name", "department", "email", "is_public", "allowed_user_ids",
			"embedding", "sample_embeddings", "sample_count", "sample_objects", "updated_at").
		Updates(profile)
	if res.Error != nil {
		return fmt.Errorf("failed to update voiceprint: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("voiceprint %s not found", profile.ID)
	}
	return nil
}

// FindByID returns nil, nil when the profile does not exist or is deleted
func (r *VoiceprintRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.VoiceprintProfile, error) {
	var profile entities.VoiceprintProfile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find voiceprint: %w", err)
	}
	return &profile, nil
}

// ListActive returns every non-deleted profile
func (r *VoiceprintRepository) ListActive(ctx context.Context) ([]*entities.VoiceprintProfile, error) {
	var profiles []*entities.VoiceprintProfile
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to list voiceprints: %w", err)
	}
	return profiles, nil
}

// SoftDelete tombstones a profile
func (r *VoiceprintRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Delete(&entities.VoiceprintProfile{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete voiceprint: %w", err)
	}
	return nil
}

// UpdateMatchStats persists rolling match statistics
func (r *VoiceprintRepository) UpdateMatchStats(ctx context.Context, id uuid.UUID, count int, avg float64, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&entities.VoiceprintProfile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"match_count":          count,
			"avg_match_confidence": avg,
			"last_matched_at":      at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update match stats: %w", err)
	}
	return nil
}
