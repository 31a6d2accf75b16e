package voiceprint

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/repositories"
	ucerrors "github.com/johnquangdev/meeting-transcriber/internal/usecase/errors"
	"github.com/johnquangdev/meeting-transcriber/pkg/wav"
)

// SampleArchive keeps the raw enrollment audio so profiles can be rebuilt
// with a different embedding model later
type SampleArchive interface {
	PutSample(ctx context.Context, profileID uuid.UUID, index int, audio []byte) (string, error)
}

// GalleryConfig bounds enrollment
type GalleryConfig struct {
	MinSamples       int
	MaxSamples       int
	EmbedConcurrency int
	MinSampleSeconds float64
	MaxSampleSeconds float64
}

// DefaultGalleryConfig follows the strict enrollment path
func DefaultGalleryConfig() GalleryConfig {
	return GalleryConfig{
		MinSamples:       3,
		MaxSamples:       10,
		EmbedConcurrency: 4,
		MinSampleSeconds: 0.5,
		MaxSampleSeconds: 30,
	}
}

// EnrollRequest describes a new speaker
type EnrollRequest struct {
	OwnerID        uuid.UUID
	Name           string
	Department     string
	Email          string
	IsPublic       bool
	AllowedUserIDs []string
	Samples        [][]byte
}

// ListFilter narrows List results
type ListFilter struct {
	Query     string
	OnlyOwned bool
	Limit     int
	Offset    int
}

// Gallery is the durable store of enrolled speakers.
// Cached profiles are never mutated in place: every change swaps in a new
// copy, so snapshots handed to matchers stay valid after deletes and updates.
type Gallery struct {
	repo     repositories.VoiceprintRepository
	embedder engine.Embedder
	archive  SampleArchive
	cfg      GalleryConfig
	logger   *zap.Logger

	mu       sync.RWMutex
	profiles map[uuid.UUID]*entities.VoiceprintProfile
	locks    *keyedMutex
}

// NewGallery creates a gallery. archive may be nil.
func NewGallery(repo repositories.VoiceprintRepository, embedder engine.Embedder, archive SampleArchive, cfg GalleryConfig, logger *zap.Logger) *Gallery {
	def := DefaultGalleryConfig()
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = def.MaxSamples
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = def.EmbedConcurrency
	}
	return &Gallery{
		repo:     repo,
		embedder: embedder,
		archive:  archive,
		cfg:      cfg,
		logger:   logger,
		profiles: make(map[uuid.UUID]*entities.VoiceprintProfile),
		locks:    newKeyedMutex(),
	}
}

// Load warms the cache from the repository
func (g *Gallery) Load(ctx context.Context) error {
	profiles, err := g.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load voiceprints: %w", err)
	}

	g.mu.Lock()
	for _, p := range profiles {
		g.profiles[p.ID] = p
	}
	g.mu.Unlock()

	if g.logger != nil {
		g.logger.Info("🗂️ Voiceprint gallery loaded", zap.Int("profiles", len(profiles)))
	}
	return nil
}

// Enroll registers a new speaker from several audio samples
func (g *Gallery) Enroll(ctx context.Context, req EnrollRequest) (*entities.VoiceprintProfile, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ucerrors.ErrInvalidInput)
	}
	if len(req.Samples) < g.cfg.MinSamples {
		return nil, fmt.Errorf("%w: got %d, need at least %d", ucerrors.ErrInsufficientSamples, len(req.Samples), g.cfg.MinSamples)
	}
	if len(req.Samples) > g.cfg.MaxSamples {
		return nil, fmt.Errorf("%w: got %d, at most %d", ucerrors.ErrTooManySamples, len(req.Samples), g.cfg.MaxSamples)
	}

	embeddings, err := g.embedSamples(ctx, req.Samples)
	if err != nil {
		return nil, err
	}
	aggregate, err := Aggregate(embeddings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ucerrors.ErrInvalidEmbedding, err)
	}

	profile := entities.NewVoiceprintProfile(req.OwnerID, name)
	profile.Department = req.Department
	profile.Email = req.Email
	profile.IsPublic = req.IsPublic
	profile.AllowedUserIDs = datatypes.JSONSlice[string](req.AllowedUserIDs)
	profile.Embedding = aggregate
	profile.SampleEmbeddings = embeddings
	profile.SampleCount = len(embeddings)
	profile.SampleObjects = g.archiveSamples(ctx, profile.ID, 0, req.Samples)

	if err := g.repo.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to store voiceprint: %w", err)
	}
	g.store(profile)

	if g.logger != nil {
		g.logger.Info("✅ Voiceprint enrolled",
			zap.String("profile_id", profile.ID.String()),
			zap.String("owner_id", req.OwnerID.String()),
			zap.Int("samples", profile.SampleCount),
		)
	}
	return profile.Snapshot(), nil
}

// AddSamples embeds more samples and re-aggregates over the whole sample set
func (g *Gallery) AddSamples(ctx context.Context, callerID, profileID uuid.UUID, samples [][]byte) (*entities.VoiceprintProfile, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples given", ucerrors.ErrInsufficientSamples)
	}

	// cheap checks before paying for embeddings
	current, err := g.lookup(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if !current.IsOwnedBy(callerID) {
		return nil, ucerrors.ErrNotOwner
	}

	embeddings, err := g.embedSamples(ctx, samples)
	if err != nil {
		return nil, err
	}

	unlock := g.locks.Lock(profileID)
	defer unlock()

	// re-read under the lock so concurrent additions build on each other
	current, err = g.lookup(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if current.SampleCount+len(embeddings) > g.cfg.MaxSamples {
		return nil, fmt.Errorf("%w: profile has %d, adding %d, at most %d", ucerrors.ErrTooManySamples, current.SampleCount, len(embeddings), g.cfg.MaxSamples)
	}

	next := current.Snapshot()
	next.SampleEmbeddings = append(next.SampleEmbeddings, embeddings...)
	aggregate, err := Aggregate(next.SampleEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ucerrors.ErrInvalidEmbedding, err)
	}
	next.Embedding = aggregate
	next.SampleCount = len(next.SampleEmbeddings)
	next.SampleObjects = append(next.SampleObjects, g.archiveSamples(ctx, profileID, current.SampleCount, samples)...)
	next.UpdatedAt = time.Now()

	if err := g.repo.Update(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to update voiceprint: %w", err)
	}
	g.store(next)

	if g.logger != nil {
		g.logger.Info("➕ Voiceprint samples added",
			zap.String("profile_id", profileID.String()),
			zap.Int("added", len(embeddings)),
			zap.Int("samples", next.SampleCount),
		)
	}
	return next.Snapshot(), nil
}

// SoftDelete tombstones a profile. Matches already holding a snapshot finish normally.
func (g *Gallery) SoftDelete(ctx context.Context, callerID, profileID uuid.UUID) error {
	unlock := g.locks.Lock(profileID)
	defer unlock()

	current, err := g.lookup(ctx, profileID)
	if err != nil {
		return err
	}
	if !current.IsOwnedBy(callerID) {
		return ucerrors.ErrNotOwner
	}
	if err := g.repo.SoftDelete(ctx, profileID); err != nil {
		return fmt.Errorf("failed to delete voiceprint: %w", err)
	}

	g.mu.Lock()
	delete(g.profiles, profileID)
	g.mu.Unlock()

	if g.logger != nil {
		g.logger.Info("🗑️ Voiceprint deleted", zap.String("profile_id", profileID.String()))
	}
	return nil
}

// Get returns a profile visible to callerID
func (g *Gallery) Get(ctx context.Context, callerID, profileID uuid.UUID) (*entities.VoiceprintProfile, error) {
	p, err := g.lookup(ctx, profileID)
	if err != nil {
		return nil, err
	}
	// hidden profiles are reported as missing
	if !p.IsVisibleTo(callerID) {
		return nil, ucerrors.ErrProfileNotFound
	}
	return p.Snapshot(), nil
}

// List returns the profiles visible to callerID, newest first
func (g *Gallery) List(ctx context.Context, callerID uuid.UUID, filter ListFilter) ([]*entities.VoiceprintProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	g.mu.RLock()
	out := make([]*entities.VoiceprintProfile, 0, len(g.profiles))
	for _, p := range g.profiles {
		if !p.IsVisibleTo(callerID) {
			continue
		}
		if filter.OnlyOwned && !p.IsOwnedBy(callerID) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		out = append(out, p)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*entities.VoiceprintProfile{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}

	result := make([]*entities.VoiceprintProfile, len(out))
	for i, p := range out {
		result[i] = p.Snapshot()
	}
	return result, nil
}

// RecordMatch folds an accepted match into the profile statistics.
// Deleted or unknown profiles are ignored.
func (g *Gallery) RecordMatch(ctx context.Context, profileID uuid.UUID, confidence float64) error {
	unlock := g.locks.Lock(profileID)
	defer unlock()

	g.mu.RLock()
	current, ok := g.profiles[profileID]
	g.mu.RUnlock()
	if !ok {
		return nil
	}

	next := current.Snapshot()
	next.RecordMatch(confidence, time.Now())
	if err := g.repo.UpdateMatchStats(ctx, profileID, next.MatchCount, next.AvgMatchConfidence, *next.LastMatchedAt); err != nil {
		return fmt.Errorf("failed to update match stats: %w", err)
	}
	g.store(next)
	return nil
}

// Snapshot returns every live profile. The returned profiles must be treated as read-only.
func (g *Gallery) Snapshot() []*entities.VoiceprintProfile {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*entities.VoiceprintProfile, 0, len(g.profiles))
	for _, p := range g.profiles {
		out = append(out, p)
	}
	return out
}

// Len returns the number of live profiles
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.profiles)
}

func (g *Gallery) store(p *entities.VoiceprintProfile) {
	g.mu.Lock()
	g.profiles[p.ID] = p
	g.mu.Unlock()
}

func (g *Gallery) lookup(ctx context.Context, id uuid.UUID) (*entities.VoiceprintProfile, error) {
	g.mu.RLock()
	p, ok := g.profiles[id]
	g.mu.RUnlock()
	if ok {
		return p, nil
	}

	// another instance may have enrolled it
	p, err := g.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load voiceprint: %w", err)
	}
	if p == nil || p.IsDeleted() {
		return nil, ucerrors.ErrProfileNotFound
	}
	g.store(p)
	return p, nil
}

func (g *Gallery) validateSample(i int, audio []byte) error {
	if len(audio) == 0 {
		return fmt.Errorf("%w: sample %d is empty", ucerrors.ErrInvalidAudio, i)
	}
	info, err := wav.Parse(audio)
	if err != nil {
		// non-WAV containers are left to the engine
		return nil
	}
	d := info.Duration()
	if (g.cfg.MinSampleSeconds > 0 && d < g.cfg.MinSampleSeconds) ||
		(g.cfg.MaxSampleSeconds > 0 && d > g.cfg.MaxSampleSeconds) {
		return fmt.Errorf("%w: sample %d lasts %.2fs, allowed %.1fs-%.1fs", ucerrors.ErrInvalidAudio, i, d, g.cfg.MinSampleSeconds, g.cfg.MaxSampleSeconds)
	}
	return nil
}

func (g *Gallery) embedSamples(ctx context.Context, samples [][]byte) ([][]float64, error) {
	for i, s := range samples {
		if err := g.validateSample(i, s); err != nil {
			return nil, err
		}
	}

	out := make([][]float64, len(samples))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.EmbedConcurrency)
	for i, s := range samples {
		i, s := i, s
		eg.Go(func() error {
			emb, err := g.embedder.Embed(egCtx, s)
			if err != nil {
				return fmt.Errorf("embed sample %d: %w", i, err)
			}
			if len(emb) == 0 {
				return fmt.Errorf("%w: sample %d: %v", ucerrors.ErrInvalidEmbedding, i, entities.ErrEmptyEmbedding)
			}
			out[i] = emb
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gallery) archiveSamples(ctx context.Context, profileID uuid.UUID, offset int, samples [][]byte) []string {
	if g.archive == nil {
		return nil
	}
	keys := make([]string, 0, len(samples))
	for i, s := range samples {
		key, err := g.archive.PutSample(ctx, profileID, offset+i, s)
		if err != nil {
			if g.logger != nil {
				g.logger.Warn("⚠️ Failed to archive voiceprint sample",
					zap.String("profile_id", profileID.String()),
					zap.Int("index", offset+i),
					zap.Error(err),
				)
			}
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// keyedMutex serializes work per profile without a global lock
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*refMutex)}
}

// Lock acquires the mutex for id and returns its release func
func (k *keyedMutex) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
