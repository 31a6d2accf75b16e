package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// VoiceprintProfile is an enrolled speaker with its aggregated embedding
type VoiceprintProfile struct {
	ID                 uuid.UUID                   `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OwnerID            uuid.UUID                   `json:"owner_id" gorm:"type:uuid;not null;index"`
	Name               string                      `json:"name" gorm:"type:varchar(255);not null"`
	Department         string                      `json:"department,omitempty" gorm:"type:varchar(255)"`
	Email              string                      `json:"email,omitempty" gorm:"type:varchar(255)"`
	IsPublic           bool                        `json:"is_public" gorm:"default:false"`
	AllowedUserIDs     datatypes.JSONSlice[string] `json:"allowed_user_ids,omitempty" gorm:"type:jsonb"`
	Embedding          []float64                   `json:"-" gorm:"type:jsonb;serializer:json"`
	SampleEmbeddings   [][]float64                 `json:"-" gorm:"type:jsonb;serializer:json"`
	SampleCount        int                         `json:"sample_count" gorm:"not null;default:0"`
	SampleObjects      datatypes.JSONSlice[string] `json:"-" gorm:"type:jsonb"`
	MatchCount         int                         `json:"match_count" gorm:"not null;default:0"`
	AvgMatchConfidence float64                     `json:"avg_match_confidence"`
	LastMatchedAt      *time.Time                  `json:"last_matched_at,omitempty" gorm:"type:timestamp"`
	CreatedAt          time.Time                   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time                   `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt          gorm.DeletedAt              `json:"-" gorm:"index"`
}

// TableName specifies the table name for GORM
func (VoiceprintProfile) TableName() string {
	return "voiceprint_profiles"
}

// NewVoiceprintProfile creates a profile owned by ownerID
func NewVoiceprintProfile(ownerID uuid.UUID, name string) *VoiceprintProfile {
	now := time.Now()
	return &VoiceprintProfile{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsOwnedBy reports whether userID owns the profile
func (p *VoiceprintProfile) IsOwnedBy(userID uuid.UUID) bool {
	return p.OwnerID == userID
}

// IsDeleted reports whether the profile has been tombstoned
func (p *VoiceprintProfile) IsDeleted() bool {
	return p.DeletedAt.Valid
}

// IsVisibleTo applies the owner / public / allow-list rule
func (p *VoiceprintProfile) IsVisibleTo(userID uuid.UUID) bool {
	if p.IsDeleted() {
		return false
	}
	if p.IsOwnedBy(userID) || p.IsPublic {
		return true
	}
	id := userID.String()
	for _, allowed := range p.AllowedUserIDs {
		if allowed == id {
			return true
		}
	}
	return false
}

// RecordMatch folds one accepted match into the rolling statistics
func (p *VoiceprintProfile) RecordMatch(confidence float64, at time.Time) {
	p.MatchCount++
	p.AvgMatchConfidence = (p.AvgMatchConfidence*float64(p.MatchCount-1) + confidence) / float64(p.MatchCount)
	p.LastMatchedAt = &at
}

// Snapshot returns a deep copy that is safe to read while the original is mutated
func (p *VoiceprintProfile) Snapshot() *VoiceprintProfile {
	cp := *p
	cp.Embedding = append([]float64(nil), p.Embedding...)
	cp.SampleEmbeddings = make([][]float64, len(p.SampleEmbeddings))
	for i, s := range p.SampleEmbeddings {
		cp.SampleEmbeddings[i] = append([]float64(nil), s...)
	}
	cp.AllowedUserIDs = append(datatypes.JSONSlice[string](nil), p.AllowedUserIDs...)
	cp.SampleObjects = append(datatypes.JSONSlice[string](nil), p.SampleObjects...)
	if p.LastMatchedAt != nil {
		t := *p.LastMatchedAt
		cp.LastMatchedAt = &t
	}
	return &cp
}

// MatchCandidate is one ranked result of a voiceprint match
type MatchCandidate struct {
	ProfileID  uuid.UUID `json:"profile_id"`
	Name       string    `json:"name"`
	Similarity float64   `json:"similarity"`
	Confidence float64   `json:"confidence"`
	IsMatch    bool      `json:"is_match"`
}
