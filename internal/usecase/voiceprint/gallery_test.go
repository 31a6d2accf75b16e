package voiceprint

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/repositories"
	ucerrors "github.com/johnquangdev/meeting-transcriber/internal/usecase/errors"
)

// memoryRepo is an in-memory VoiceprintRepository
type memoryRepo struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*entities.VoiceprintProfile
	updates  int
	// beforeUpdate runs outside mu so it can hold a writer in place
	beforeUpdate func(*entities.VoiceprintProfile)
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{profiles: make(map[uuid.UUID]*entities.VoiceprintProfile)}
}

func (r *memoryRepo) Create(ctx context.Context, p *entities.VoiceprintProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p.Snapshot()
	return nil
}

func (r *memoryRepo) Update(ctx context.Context, p *entities.VoiceprintProfile) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate(p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	r.profiles[p.ID] = p.Snapshot()
	return nil
}

func (r *memoryRepo) FindByID(ctx context.Context, id uuid.UUID) (*entities.VoiceprintProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok || p.IsDeleted() {
		return nil, nil
	}
	return p.Snapshot(), nil
}

func (r *memoryRepo) ListActive(ctx context.Context) ([]*entities.VoiceprintProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.VoiceprintProfile
	for _, p := range r.profiles {
		if !p.IsDeleted() {
			out = append(out, p.Snapshot())
		}
	}
	return out, nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil
	}
	p.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	return nil
}

func (r *memoryRepo) UpdateMatchStats(ctx context.Context, id uuid.UUID, count int, avg float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[id]; ok {
		p.MatchCount = count
		p.AvgMatchConfidence = avg
		p.LastMatchedAt = &at
	}
	return nil
}

var _ repositories.VoiceprintRepository = (*memoryRepo)(nil)

// fakeEmbedder returns canned embeddings keyed by the audio payload
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, audio []byte) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vectors[string(audio)]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", audio)
	}
	return v, nil
}

// gatedEmbedder parks the embedding of one payload until released
type gatedEmbedder struct {
	*fakeEmbedder
	gate    string
	held    chan struct{}
	release chan struct{}
}

func (g *gatedEmbedder) Embed(ctx context.Context, audio []byte) ([]float64, error) {
	if string(audio) == g.gate {
		g.held <- struct{}{}
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.fakeEmbedder.Embed(ctx, audio)
}

func samples(names ...string) [][]byte {
	out := make([][]byte, len(names))
	for i, n := range names {
		out[i] = []byte(n)
	}
	return out
}

func newTestGallery(emb *fakeEmbedder) (*Gallery, *memoryRepo) {
	repo := newMemoryRepo()
	return NewGallery(repo, emb, nil, DefaultGalleryConfig(), zap.NewNop()), repo
}

func aliceEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float64{
		"a1": {1, 0, 0},
		"a2": {0.9, 0.1, 0},
		"a3": {1.1, -0.1, 0},
		"a4": {0, 1, 0},
		"a5": {0, 0, 1},
		"b1": {0, 0, 2},
	}}
}

func TestEnrollRequiresMinimumSamples(t *testing.T) {
	g, _ := newTestGallery(aliceEmbedder())
	owner := uuid.New()

	_, err := g.Enroll(context.Background(), EnrollRequest{OwnerID: owner, Name: "Alice", Samples: samples("a1", "a2")})
	if !errors.Is(err, ucerrors.ErrInsufficientSamples) {
		t.Fatalf("expected ErrInsufficientSamples got %v", err)
	}

	p, err := g.Enroll(context.Background(), EnrollRequest{OwnerID: owner, Name: "Alice", Samples: samples("a1", "a2", "a3")})
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	if p.SampleCount != 3 || len(p.SampleEmbeddings) != 3 {
		t.Fatalf("expected 3 samples got %d/%d", p.SampleCount, len(p.SampleEmbeddings))
	}
	if math.Abs(Norm(p.Embedding)-1) > 1e-9 {
		t.Fatalf("aggregate not unit norm: %f", Norm(p.Embedding))
	}
	// mean of a1..a3 is (1, 0, 0)
	if math.Abs(p.Embedding[0]-1) > 1e-9 {
		t.Fatalf("unexpected aggregate %v", p.Embedding)
	}
}

func TestEnrollLegacySingleSampleWhenConfigured(t *testing.T) {
	cfg := DefaultGalleryConfig()
	cfg.MinSamples = 1
	g := NewGallery(newMemoryRepo(), aliceEmbedder(), nil, cfg, zap.NewNop())

	p, err := g.Enroll(context.Background(), EnrollRequest{OwnerID: uuid.New(), Name: "Bob", Samples: samples("b1")})
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	if p.Embedding[2] != 1 {
		t.Fatalf("expected normalized (0,0,1) got %v", p.Embedding)
	}
}

func TestEnrollRejectsTooManySamples(t *testing.T) {
	g, _ := newTestGallery(aliceEmbedder())
	many := make([][]byte, 11)
	for i := range many {
		many[i] = []byte("a1")
	}
	_, err := g.Enroll(context.Background(), EnrollRequest{OwnerID: uuid.New(), Name: "Alice", Samples: many})
	if !errors.Is(err, ucerrors.ErrTooManySamples) {
		t.Fatalf("expected ErrTooManySamples got %v", err)
	}
}

func TestEnrollPropagatesEngineFailure(t *testing.T) {
	emb := aliceEmbedder()
	emb.err = fmt.Errorf("speaker: %w", entities.ErrEngineUnavailable)
	g, repo := newTestGallery(emb)

	_, err := g.Enroll(context.Background(), EnrollRequest{OwnerID: uuid.New(), Name: "Alice", Samples: samples("a1", "a2", "a3")})
	if !errors.Is(err, ucerrors.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable got %v", err)
	}
	if len(repo.profiles) != 0 {
		t.Fatalf("nothing should be stored on failure")
	}
}

func TestAddSamplesReaggregatesAndChecksOwner(t *testing.T) {
	g, repo := newTestGallery(aliceEmbedder())
	owner := uuid.New()
	p, err := g.Enroll(context.Background(), EnrollRequest{OwnerID: owner, Name: "Alice", Samples: samples("a1", "a2", "a3")})
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	_, err = g.AddSamples(context.Background(), uuid.New(), p.ID, samples("a4"))
	if !errors.Is(err, ucerrors.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner got %v", err)
	}

	updated, err := g.AddSamples(context.Background(), owner, p.ID, samples("a4", "a5"))
	if err != nil {
		t.Fatalf("add samples failed: %v", err)
	}
	if updated.SampleCount != 5 {
		t.Fatalf("expected 5 samples got %d", updated.SampleCount)
	}
	// mean of five samples is (3, 1, 1)/5, normalized
	want := Normalize([]float64{3, 1, 1})
	for i := range want {
		if math.Abs(updated.Embedding[i]-want[i]) > 1e-9 {
			t.Fatalf("unexpected aggregate %v want %v", updated.Embedding, want)
		}
	}
	if repo.profiles[p.ID].SampleCount != 5 {
		t.Fatalf("repository not updated")
	}
}

func TestConcurrentAddSamplesAreSerialized(t *testing.T) {
	emb := aliceEmbedder()
	g, _ := newTestGallery(emb)
	owner := uuid.New()
	p, err := g.Enroll(context.Background(), EnrollRequest{OwnerID: owner, Name: "Alice", Samples: samples("a1", "a2", "a3")})
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.AddSamples(context.Background(), owner, p.ID, samples("a4")); err != nil {
				t.Errorf("add samples failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := g.Get(context.Background(), owner, p.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SampleCount != 8 || len(got.SampleEmbeddings) != 8 {
		t.Fatalf("lost an update: %d samples", got.SampleCount)
	}
}

func TestAddSamplesOnDifferentProfilesDoNotBlock(t *testing.T) {
	emb := &gatedEmbedder{
		fakeEmbedder: aliceEmbedder(),
		gate:         "a5",
		held:         make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
	repo := newMemoryRepo()
	g := NewGallery(repo, emb, nil, DefaultGalleryConfig(), zap.NewNop())
	ctx := context.Background()
	owner := uuid.New()

	alice, err := g.Enroll(ctx, EnrollRequest{OwnerID: owner, Name: "Alice", Samples: samples("a1", "a2", "a3")})
	if err != nil {
		t.Fatalf("enroll alice failed: %v", err)
	}
	bob, err := g.Enroll(ctx, EnrollRequest{OwnerID: owner, Name: "Bob", Samples: samples("a1", "a2", "a3")})
	if err != nil {
		t.Fatalf("enroll bob failed: %v", err)
	}

	addBob := func(sample string) {
		t.Helper()
		done := make(chan error, 1)
		go func() {
			_, err := g.AddSamples(ctx, owner, bob.ID, samples(sample))
			done <- err
		}()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("bob add failed: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("bob was blocked by alice's pending update")
		}
	}

	// alice held while embedding
	aliceDone := make(chan error, 1)
	go func() {
		_, err := g.AddSamples(ctx, owner, alice.ID, samples("a5"))
		aliceDone <- err
	}()
	<-emb.held
	addBob("a4")
	close(emb.release)
	if err := <-aliceDone; err != nil {
		t.Fatalf("alice add failed: %v", err)
	}

	// alice held inside her profile lock while writing
	writing := make(chan struct{})
	resume := make(chan struct{})
	repo.beforeUpdate = func(p *entities.VoiceprintProfile) {
		if p.ID == alice.ID {
			close(writing)
			<-resume
		}
	}
	go func() {
		_, err := g.AddSamples(ctx, owner, alice.ID, samples("a1"))
		aliceDone <- err
	}()
	<-writing
	addBob("a2")
	close(resume)
	if err := <-aliceDone; err != nil {
		t.Fatalf("alice add failed: %v", err)
	}

	for id, want := range map[uuid.UUID]int{alice.ID: 5, bob.ID: 5} {
		got, err := g.Get(ctx, owner, id)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.SampleCount != want {
			t.Fatalf("profile %s: expected %d samples got %d", got.Name, want, got.SampleCount)
		}
	}
}

func TestSoftDeleteHidesProfile(t *testing.T) {
	g, _ := newTestGallery(aliceEmbedder())
	owner := uuid.New()
	p, err := g.Enroll(context.Background(), EnrollRequest{OwnerID: owner, Name: "Alice", IsPublic: true, Samples: samples("a1", "a2", "a3")})
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	if err := g.SoftDelete(context.Background(), uuid.New(), p.ID); !errors.Is(err, ucerrors.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner got %v", err)
	}
	if err := g.SoftDelete(context.Background(), owner, p.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := g.Get(context.Background(), owner, p.ID); !errors.Is(err, ucerrors.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound got %v", err)
	}
	list, _ := g.List(context.Background(), owner, ListFilter{})
	if len(list) != 0 {
		t.Fatalf("deleted profile still listed")
	}
	if g.Len() != 0 {
		t.Fatalf("deleted profile still in snapshot")
	}
}

func TestVisibilityRules(t *testing.T) {
	g, _ := newTestGallery(aliceEmbedder())
	owner, friend, stranger := uuid.New(), uuid.New(), uuid.New()

	private, _ := g.Enroll(context.Background(), EnrollRequest{OwnerID: owner, Name: "Private", Samples: samples("a1", "a2", "a3")})
	shared, _ := g.Enroll(context.Background(), EnrollRequest{OwnerID: owner, Name: "Shared", AllowedUserIDs: []string{friend.String()}, Samples: samples("a1", "a2", "a3")})
	public, _ := g.Enroll(context.Background(), EnrollRequest{OwnerID: owner, Name: "Public", IsPublic: true, Samples: samples("a1", "a2", "a3")})

	visible := func(user uuid.UUID) map[uuid.UUID]bool {
		list, err := g.List(context.Background(), user, ListFilter{})
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		out := map[uuid.UUID]bool{}
		for _, p := range list {
			out[p.ID] = true
		}
		return out
	}

	if v := visible(owner); len(v) != 3 {
		t.Fatalf("owner should see 3 got %d", len(v))
	}
	if v := visible(friend); len(v) != 2 || !v[shared.ID] || !v[public.ID] {
		t.Fatalf("friend should see shared+public got %v", v)
	}
	if v := visible(stranger); len(v) != 1 || !v[public.ID] {
		t.Fatalf("stranger should see public only got %v", v)
	}
	if _, err := g.Get(context.Background(), stranger, private.ID); !errors.Is(err, ucerrors.ErrProfileNotFound) {
		t.Fatalf("stranger must not get private profile, got %v", err)
	}

	owned, _ := g.List(context.Background(), friend, ListFilter{OnlyOwned: true})
	if len(owned) != 0 {
		t.Fatalf("friend owns nothing")
	}
}

func TestLoadWarmsCache(t *testing.T) {
	emb := aliceEmbedder()
	g1, repo := newTestGallery(emb)
	if _, err := g1.Enroll(context.Background(), EnrollRequest{OwnerID: uuid.New(), Name: "Alice", Samples: samples("a1", "a2", "a3")}); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	g2 := NewGallery(repo, emb, nil, DefaultGalleryConfig(), zap.NewNop())
	if err := g2.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if g2.Len() != 1 {
		t.Fatalf("expected 1 profile after load got %d", g2.Len())
	}
}

func TestSnapshotSurvivesDelete(t *testing.T) {
	g, _ := newTestGallery(aliceEmbedder())
	owner := uuid.New()
	p, _ := g.Enroll(context.Background(), EnrollRequest{OwnerID: owner, Name: "Alice", Samples: samples("a1", "a2", "a3")})

	snap := g.Snapshot()
	if err := g.SoftDelete(context.Background(), owner, p.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(snap) != 1 || snap[0].IsDeleted() || len(snap[0].Embedding) != 3 {
		t.Fatalf("in-flight snapshot was disturbed: %+v", snap)
	}
}
