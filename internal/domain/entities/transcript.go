package entities

// WordTimestamp represents a single word with time info (seconds)
type WordTimestamp struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Sentence is a timestamped unit of ASR output
type Sentence struct {
	Text       string          `json:"text"`
	Start      float64         `json:"start"`
	End        float64         `json:"end"`
	Confidence float64         `json:"confidence"`
	Words      []WordTimestamp `json:"words,omitempty"`
}

// Midpoint returns the middle of the sentence interval
func (s Sentence) Midpoint() float64 {
	return (s.Start + s.End) / 2
}

// Transcript is what an ASR engine returns for a whole file.
// Engines that only report word stamps leave Sentences empty.
type Transcript struct {
	Text      string          `json:"text"`
	Language  string          `json:"language,omitempty"`
	Duration  float64         `json:"duration"`
	Sentences []Sentence      `json:"sentences,omitempty"`
	Words     []WordTimestamp `json:"words,omitempty"`
}

// DiarizationSegment is a [Start, End) interval tagged with a per-file label
type DiarizationSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Duration of the segment in seconds
func (d DiarizationSegment) Duration() float64 {
	return d.End - d.Start
}

// Contains reports whether t falls inside [Start, End)
func (d DiarizationSegment) Contains(t float64) bool {
	return t >= d.Start && t < d.End
}

// SpeakerIdentity resolves one local label to a global speaker
type SpeakerIdentity struct {
	Label      string  `json:"label"`
	SpeakerID  string  `json:"speaker_id"`
	Name       string  `json:"name"`
	IsUnknown  bool    `json:"is_unknown"`
	Confidence float64 `json:"confidence"`
}

// TranscriptSegment is one speaker-attributed sentence
type TranscriptSegment struct {
	SpeakerID         string          `json:"speaker_id"`
	SpeakerName       string          `json:"speaker_name"`
	IsUnknown         bool            `json:"is_unknown"`
	Text              string          `json:"text"`
	Start             float64         `json:"start"`
	End               float64         `json:"end"`
	Words             []WordTimestamp `json:"words,omitempty"`
	Confidence        float64         `json:"confidence"`
	SpeakerConfidence float64         `json:"speaker_confidence"`
}

// Duration of the segment in seconds
func (t TranscriptSegment) Duration() float64 {
	return t.End - t.Start
}

// SpeakerStats aggregates one speaker's share of a meeting
type SpeakerStats struct {
	SpeakerID     string  `json:"speaker_id"`
	SpeakerName   string  `json:"speaker_name"`
	IsUnknown     bool    `json:"is_unknown"`
	SegmentCount  int     `json:"segment_count"`
	TotalDuration float64 `json:"total_duration"`
	Percentage    float64 `json:"percentage"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// FusionMode tells how a transcript was attributed
type FusionMode string

const (
	FusionModeDiarized      FusionMode = "diarized"
	FusionModeSingleSpeaker FusionMode = "single_speaker"
)

// FusionResult is the output of one batch fusion pass
type FusionResult struct {
	Segments            []TranscriptSegment `json:"segments"`
	Speakers            []SpeakerStats      `json:"speakers"`
	SpeakerCount        int                 `json:"speaker_count"`
	UnknownSpeakerCount int                 `json:"unknown_speaker_count"`
	TotalDuration       float64             `json:"total_duration"`
	Mode                FusionMode          `json:"mode"`
	Warnings            []string            `json:"warnings,omitempty"`
}
