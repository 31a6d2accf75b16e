package voiceprint

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
)

// SimilarityScale selects how cosine similarity is reported
type SimilarityScale string

const (
	// ScaleUnit maps cosine from [-1, 1] onto [0, 1] as (cos+1)/2
	ScaleUnit SimilarityScale = "unit"
	// ScaleCosine reports raw cosine similarity
	ScaleCosine SimilarityScale = "cosine"
)

// MatcherConfig tunes identification
type MatcherConfig struct {
	Threshold   float64
	Scale       SimilarityScale
	DefaultTopK int
}

// DefaultMatcherConfig mirrors the speaker service defaults
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		Threshold:   0.75,
		Scale:       ScaleUnit,
		DefaultTopK: 5,
	}
}

// ProfileSource provides a point-in-time view of the gallery
type ProfileSource interface {
	Snapshot() []*entities.VoiceprintProfile
}

// MatchRecorder receives accepted matches
type MatchRecorder interface {
	RecordMatch(ctx context.Context, profileID uuid.UUID, confidence float64) error
}

// Matcher ranks gallery profiles against an audio segment. Safe for concurrent use.
type Matcher struct {
	source   ProfileSource
	embedder engine.Embedder
	recorder MatchRecorder
	cfg      MatcherConfig
	logger   *zap.Logger
}

// NewMatcher creates a matcher over gallery. The gallery doubles as the match recorder.
func NewMatcher(gallery *Gallery, embedder engine.Embedder, cfg MatcherConfig, logger *zap.Logger) *Matcher {
	m := newMatcher(gallery, embedder, cfg, logger)
	m.recorder = gallery
	return m
}

func newMatcher(source ProfileSource, embedder engine.Embedder, cfg MatcherConfig, logger *zap.Logger) *Matcher {
	def := DefaultMatcherConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Scale == "" {
		cfg.Scale = def.Scale
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = def.DefaultTopK
	}
	return &Matcher{
		source:   source,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
}

// Threshold returns the similarity at or above which a candidate is a match
func (m *Matcher) Threshold() float64 {
	return m.cfg.Threshold
}

// Match embeds audio and ranks the gallery against it
func (m *Matcher) Match(ctx context.Context, audio []byte, topK int) ([]entities.MatchCandidate, error) {
	return m.match(ctx, m.source.Snapshot(), audio, topK)
}

// MatchFor ranks only the profiles callerID may see
func (m *Matcher) MatchFor(ctx context.Context, callerID uuid.UUID, audio []byte, topK int) ([]entities.MatchCandidate, error) {
	all := m.source.Snapshot()
	visible := make([]*entities.VoiceprintProfile, 0, len(all))
	for _, p := range all {
		if p.IsVisibleTo(callerID) {
			visible = append(visible, p)
		}
	}
	return m.match(ctx, visible, audio, topK)
}

func (m *Matcher) match(ctx context.Context, profiles []*entities.VoiceprintProfile, audio []byte, topK int) ([]entities.MatchCandidate, error) {
	if len(profiles) == 0 {
		return []entities.MatchCandidate{}, nil
	}

	embedding, err := m.embedder.Embed(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("failed to embed segment: %w", err)
	}
	return m.rank(ctx, profiles, embedding, topK), nil
}

// MatchEmbedding ranks the gallery against an embedding computed upstream
func (m *Matcher) MatchEmbedding(ctx context.Context, embedding []float64, topK int) []entities.MatchCandidate {
	return m.rank(ctx, m.source.Snapshot(), embedding, topK)
}

func (m *Matcher) rank(ctx context.Context, profiles []*entities.VoiceprintProfile, embedding []float64, topK int) []entities.MatchCandidate {
	if topK <= 0 {
		topK = m.cfg.DefaultTopK
	}

	candidates := make([]entities.MatchCandidate, 0, len(profiles))
	for _, p := range profiles {
		if p.IsDeleted() {
			continue
		}
		sim := m.similarity(embedding, p.Embedding)
		candidates = append(candidates, entities.MatchCandidate{
			ProfileID:  p.ID,
			Name:       p.Name,
			Similarity: sim,
			Confidence: sim,
			IsMatch:    sim >= m.cfg.Threshold,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity == candidates[j].Similarity {
			return candidates[i].Name < candidates[j].Name
		}
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	if len(candidates) > 0 && candidates[0].IsMatch && m.recorder != nil {
		top := candidates[0]
		if err := m.recorder.RecordMatch(ctx, top.ProfileID, top.Confidence); err != nil && m.logger != nil {
			m.logger.Warn("⚠️ Failed to record voiceprint match",
				zap.String("profile_id", top.ProfileID.String()),
				zap.Error(err),
			)
		}
	}
	return candidates
}

func (m *Matcher) similarity(a, b []float64) float64 {
	if len(a) != len(b) || Norm(a) == 0 || Norm(b) == 0 {
		return 0
	}
	cos := CosineSimilarity(a, b)
	if m.cfg.Scale == ScaleCosine {
		return cos
	}
	return (cos + 1) / 2
}
