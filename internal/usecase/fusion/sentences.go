package fusion

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
)

// GroupWords regroups word stamps into sentences, starting a new sentence
// whenever the silence between two words exceeds maxGap
func GroupWords(words []entities.WordTimestamp, maxGap time.Duration) []entities.Sentence {
	if len(words) == 0 {
		return nil
	}
	sorted := append([]entities.WordTimestamp(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	gap := maxGap.Seconds()
	var (
		out     []entities.Sentence
		current []entities.WordTimestamp
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		out = append(out, sentenceFromWords(current))
		current = nil
	}
	for _, w := range sorted {
		if len(current) > 0 && w.Start-current[len(current)-1].End > gap {
			flush()
		}
		current = append(current, w)
	}
	flush()
	return out
}

func sentenceFromWords(words []entities.WordTimestamp) entities.Sentence {
	var (
		b      strings.Builder
		confs  float64
		scored int
	)
	for i, w := range words {
		if i > 0 && needsSpace(words[i-1].Word, w.Word) {
			b.WriteByte(' ')
		}
		b.WriteString(w.Word)
		if w.Confidence > 0 {
			confs += w.Confidence
			scored++
		}
	}
	s := entities.Sentence{
		Text:  strings.TrimSpace(b.String()),
		Start: words[0].Start,
		End:   words[len(words)-1].End,
		Words: append([]entities.WordTimestamp(nil), words...),
	}
	if scored > 0 {
		s.Confidence = confs / float64(scored)
	}
	return s
}

// CJK tokens from FunASR are written without separators
func needsSpace(prev, next string) bool {
	last, _ := utf8.DecodeLastRuneInString(prev)
	first, _ := utf8.DecodeRuneInString(next)
	if unicode.Is(unicode.Han, last) || unicode.Is(unicode.Han, first) {
		return false
	}
	return !unicode.IsPunct(first)
}

// sentencesOf picks the sentence list of a transcript, regrouping words
// when the engine only reported word stamps
func sentencesOf(t *entities.Transcript, maxGap time.Duration) []entities.Sentence {
	if t == nil {
		return nil
	}
	var out []entities.Sentence
	switch {
	case len(t.Sentences) > 0:
		out = append([]entities.Sentence(nil), t.Sentences...)
	case len(t.Words) > 0:
		out = GroupWords(t.Words, maxGap)
	case strings.TrimSpace(t.Text) != "":
		out = []entities.Sentence{{Text: strings.TrimSpace(t.Text), Start: 0, End: t.Duration}}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
