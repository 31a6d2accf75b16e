// Package fusion merges batch ASR output with speaker diarization and
// voiceprint identification into a speaker-attributed transcript.
package fusion

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	"github.com/johnquangdev/meeting-transcriber/pkg/jobcontext"
	"github.com/johnquangdev/meeting-transcriber/pkg/wav"
)

const (
	// SingleSpeakerID labels every segment when attribution is unavailable
	SingleSpeakerID   = "speaker-unknown"
	singleSpeakerName = "unknown speaker"
	fallbackLabel     = "speaker_0"
)

// IdentityMatcher ranks enrolled voiceprints against a clip
type IdentityMatcher interface {
	Match(ctx context.Context, audio []byte, topK int) ([]entities.MatchCandidate, error)
}

// Config tunes the fusion pass
type Config struct {
	MinRepresentative time.Duration `envconfig:"MIN_REPRESENTATIVE" default:"5s"`
	MaxRepresentative time.Duration `envconfig:"MAX_REPRESENTATIVE" default:"30s"`
	SentenceGap       time.Duration `envconfig:"SENTENCE_GAP" default:"1s"`
	MatchConcurrency  int           `envconfig:"MATCH_CONCURRENCY" default:"4"`
	DiarizeTimeout    time.Duration `envconfig:"DIARIZE_TIMEOUT" default:"5m"`
	TranscribeTimeout time.Duration `envconfig:"TRANSCRIBE_TIMEOUT" default:"10m"`
	MatchTimeout      time.Duration `envconfig:"MATCH_TIMEOUT" default:"30s"`
	TempDir           string        `envconfig:"TEMP_DIR"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MinRepresentative: 5 * time.Second,
		MaxRepresentative: 30 * time.Second,
		SentenceGap:       time.Second,
		MatchConcurrency:  4,
		DiarizeTimeout:    5 * time.Minute,
		TranscribeTimeout: 10 * time.Minute,
		MatchTimeout:      30 * time.Second,
	}
}

// Options are per-request switches
type Options struct {
	EnableVoiceprint bool
	Language         string
	NumSpeakers      int
}

// Engine runs the batch fusion pipeline. Safe for concurrent use.
type Engine struct {
	diarizer    engine.Diarizer
	transcriber engine.Transcriber
	matcher     IdentityMatcher
	extractor   SegmentExtractor
	cfg         Config
	logger      *zap.Logger
}

// NewEngine wires the pipeline. diarizer and matcher may be nil, in which
// case every request runs in single-speaker mode.
func NewEngine(diarizer engine.Diarizer, transcriber engine.Transcriber, matcher IdentityMatcher, cfg Config, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.MinRepresentative <= 0 {
		cfg.MinRepresentative = def.MinRepresentative
	}
	if cfg.MaxRepresentative <= 0 {
		cfg.MaxRepresentative = def.MaxRepresentative
	}
	if cfg.SentenceGap <= 0 {
		cfg.SentenceGap = def.SentenceGap
	}
	if cfg.MatchConcurrency <= 0 {
		cfg.MatchConcurrency = def.MatchConcurrency
	}
	return &Engine{
		diarizer:    diarizer,
		transcriber: transcriber,
		matcher:     matcher,
		extractor:   NewWAVExtractor(cfg.TempDir),
		cfg:         cfg,
		logger:      logger,
	}
}

// WithExtractor replaces the segment extractor
func (e *Engine) WithExtractor(x SegmentExtractor) *Engine {
	e.extractor = x
	return e
}

// Fuse transcribes audioPath and attributes each sentence to a speaker.
// Engine failures degrade the result instead of failing it; they are
// reported in Warnings.
func (e *Engine) Fuse(ctx context.Context, audioPath string, opts Options) *entities.FusionResult {
	start := time.Now()
	res := &entities.FusionResult{Mode: entities.FusionModeDiarized}
	warn := func(msg string, err error) {
		if err != nil {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		res.Warnings = append(res.Warnings, msg)
		e.logWarn(ctx, "⚠️ "+msg)
	}

	duration := 0.0
	if info, err := wav.ReadInfo(audioPath); err == nil {
		duration = info.Duration()
	}

	diarize := opts.EnableVoiceprint && e.diarizer != nil && e.matcher != nil

	var (
		transcript *entities.Transcript
		diarSegs   []entities.DiarizationSegment
		tErr, dErr error
		g          errgroup.Group
	)
	g.Go(func() error {
		transcript, tErr = e.transcribe(ctx, audioPath, opts.Language)
		return nil
	})
	if diarize {
		g.Go(func() error {
			diarSegs, dErr = e.diarize(ctx, audioPath, opts.NumSpeakers)
			return nil
		})
	}
	_ = g.Wait()

	if tErr != nil {
		warn("transcription failed", tErr)
	}
	sentences := sentencesOf(transcript, e.cfg.SentenceGap)

	if duration <= 0 && transcript != nil {
		duration = transcript.Duration
	}
	if duration <= 0 && len(sentences) > 0 {
		duration = sentences[len(sentences)-1].End
	}
	res.TotalDuration = duration

	if !diarize {
		if opts.EnableVoiceprint {
			warn("voiceprint identification not configured", nil)
		}
		e.singleSpeaker(res, sentences)
		return e.finish(ctx, res, start)
	}

	diarSegs = normalizeSegments(diarSegs)
	if dErr != nil || len(diarSegs) == 0 {
		if dErr != nil {
			warn("diarization failed, treating audio as one speaker", dErr)
		} else {
			warn("diarization returned no segments, treating audio as one speaker", nil)
		}
		end := duration
		if n := len(sentences); n > 0 && sentences[n-1].End > end {
			end = sentences[n-1].End
		}
		diarSegs = []entities.DiarizationSegment{{Start: 0, End: end, Label: fallbackLabel}}
	}

	identities, err := e.identify(ctx, audioPath, diarSegs)
	if err != nil {
		warn("speaker identification failed, falling back to single speaker", err)
		e.singleSpeaker(res, sentences)
		return e.finish(ctx, res, start)
	}

	res.Segments = assign(sentences, diarSegs, identities)
	res.Speakers = computeStats(res.Segments)
	return e.finish(ctx, res, start)
}

func (e *Engine) transcribe(ctx context.Context, audioPath, language string) (*entities.Transcript, error) {
	if e.transcriber == nil {
		return nil, fmt.Errorf("no transcriber configured: %w", entities.ErrEngineUnavailable)
	}
	if e.cfg.TranscribeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TranscribeTimeout)
		defer cancel()
	}
	return e.transcriber.Transcribe(ctx, audioPath, engine.TranscribeOptions{Language: language})
}

func (e *Engine) diarize(ctx context.Context, audioPath string, numSpeakers int) ([]entities.DiarizationSegment, error) {
	if e.cfg.DiarizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.DiarizeTimeout)
		defer cancel()
	}
	return e.diarizer.Diarize(ctx, audioPath, numSpeakers)
}

type labelOutcome struct {
	candidate *entities.MatchCandidate
	err       error
}

// identify resolves every diarization label. It fails only when no label
// could be matched at all.
func (e *Engine) identify(ctx context.Context, audioPath string, segs []entities.DiarizationSegment) (map[string]entities.SpeakerIdentity, error) {
	labels, byLabel := groupByLabel(segs)
	outcomes := make([]labelOutcome, len(labels))

	var g errgroup.Group
	g.SetLimit(e.cfg.MatchConcurrency)
	for i, label := range labels {
		i, rep := i, e.representative(byLabel[label])
		g.Go(func() error {
			cand, err := e.identifyLabel(ctx, audioPath, rep)
			outcomes[i] = labelOutcome{candidate: cand, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		failed  int
		lastErr error
	)
	for i, o := range outcomes {
		if o.err != nil {
			failed++
			lastErr = o.err
			if e.logger != nil {
				e.logger.Warn("⚠️ Failed to identify speaker label",
					zap.String("label", labels[i]),
					zap.Error(o.err),
				)
			}
		}
	}
	if failed == len(labels) {
		return nil, lastErr
	}

	identities := make(map[string]entities.SpeakerIdentity, len(labels))
	unknown := 0
	for i, label := range labels {
		o := outcomes[i]
		if o.err == nil && o.candidate != nil && o.candidate.IsMatch {
			identities[label] = entities.SpeakerIdentity{
				Label:      label,
				SpeakerID:  o.candidate.ProfileID.String(),
				Name:       o.candidate.Name,
				Confidence: o.candidate.Confidence,
			}
			continue
		}
		unknown++
		identities[label] = entities.SpeakerIdentity{
			Label:     label,
			SpeakerID: fmt.Sprintf("unknown-%d", unknown),
			Name:      fmt.Sprintf("unknown speaker %d", unknown),
			IsUnknown: true,
		}
	}
	return identities, nil
}

func (e *Engine) identifyLabel(ctx context.Context, audioPath string, rep entities.DiarizationSegment) (*entities.MatchCandidate, error) {
	path, cleanup, err := e.extractor.Extract(ctx, audioPath, rep.Start, rep.End)
	defer cleanup()
	if err != nil {
		return nil, err
	}
	clip, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment: %w", err)
	}

	if e.cfg.MatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.MatchTimeout)
		defer cancel()
	}
	candidates, err := e.matcher.Match(ctx, clip, 1)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// representative picks the first segment long enough for a stable
// embedding, else the first one, and clips it to the configured maximum
func (e *Engine) representative(segs []entities.DiarizationSegment) entities.DiarizationSegment {
	rep := segs[0]
	minLen := e.cfg.MinRepresentative.Seconds()
	for _, s := range segs {
		if s.Duration() >= minLen {
			rep = s
			break
		}
	}
	if maxLen := e.cfg.MaxRepresentative.Seconds(); rep.Duration() > maxLen {
		rep.End = rep.Start + maxLen
	}
	return rep
}

func (e *Engine) singleSpeaker(res *entities.FusionResult, sentences []entities.Sentence) {
	res.Mode = entities.FusionModeSingleSpeaker
	res.Segments = make([]entities.TranscriptSegment, 0, len(sentences))
	for _, s := range sentences {
		res.Segments = append(res.Segments, entities.TranscriptSegment{
			SpeakerID:   SingleSpeakerID,
			SpeakerName: singleSpeakerName,
			IsUnknown:   true,
			Text:        s.Text,
			Start:       s.Start,
			End:         s.End,
			Words:       s.Words,
			Confidence:  s.Confidence,
		})
	}
	res.Speakers = computeStats(res.Segments)
}

func (e *Engine) finish(ctx context.Context, res *entities.FusionResult, start time.Time) *entities.FusionResult {
	if res.Segments == nil {
		res.Segments = []entities.TranscriptSegment{}
	}
	if res.Speakers == nil {
		res.Speakers = []entities.SpeakerStats{}
	}
	res.SpeakerCount = len(res.Speakers)
	res.UnknownSpeakerCount = 0
	for _, s := range res.Speakers {
		if s.IsUnknown {
			res.UnknownSpeakerCount++
		}
	}
	if e.logger != nil {
		fields := []zap.Field{
			zap.String("mode", string(res.Mode)),
			zap.Int("segments", len(res.Segments)),
			zap.Int("speakers", res.SpeakerCount),
			zap.Int("unknown_speakers", res.UnknownSpeakerCount),
			zap.Float64("duration", res.TotalDuration),
			zap.Duration("took", time.Since(start)),
		}
		if id, ok := jobcontext.GetJobID(ctx); ok {
			fields = append(fields, zap.String("job_id", id.String()))
		}
		e.logger.Info("✅ Fusion completed", fields...)
	}
	return res
}

func (e *Engine) logWarn(ctx context.Context, msg string) {
	if e.logger == nil {
		return
	}
	if id, ok := jobcontext.GetJobID(ctx); ok {
		e.logger.Warn(msg, zap.String("job_id", id.String()))
		return
	}
	e.logger.Warn(msg)
}

// normalizeSegments drops empty intervals and orders by start
func normalizeSegments(segs []entities.DiarizationSegment) []entities.DiarizationSegment {
	out := make([]entities.DiarizationSegment, 0, len(segs))
	for _, s := range segs {
		if s.End > s.Start {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// groupByLabel returns labels in order of first appearance
func groupByLabel(segs []entities.DiarizationSegment) ([]string, map[string][]entities.DiarizationSegment) {
	var labels []string
	byLabel := make(map[string][]entities.DiarizationSegment)
	for _, s := range segs {
		if _, ok := byLabel[s.Label]; !ok {
			labels = append(labels, s.Label)
		}
		byLabel[s.Label] = append(byLabel[s.Label], s)
	}
	return labels, byLabel
}

// assign attributes each sentence to the diarization segment containing
// its midpoint, or the earliest segment when none does
func assign(sentences []entities.Sentence, segs []entities.DiarizationSegment, identities map[string]entities.SpeakerIdentity) []entities.TranscriptSegment {
	out := make([]entities.TranscriptSegment, 0, len(sentences))
	for _, s := range sentences {
		seg := segs[0]
		mid := s.Midpoint()
		for _, d := range segs {
			if d.Contains(mid) {
				seg = d
				break
			}
		}
		id := identities[seg.Label]
		out = append(out, entities.TranscriptSegment{
			SpeakerID:         id.SpeakerID,
			SpeakerName:       id.Name,
			IsUnknown:         id.IsUnknown,
			Text:              s.Text,
			Start:             s.Start,
			End:               s.End,
			Words:             s.Words,
			Confidence:        s.Confidence,
			SpeakerConfidence: id.Confidence,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
