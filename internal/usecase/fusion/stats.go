package fusion

import "github.com/johnquangdev/meeting-transcriber/internal/domain/entities"

// computeStats aggregates per-speaker totals in order of first appearance.
// AvgConfidence is a running average over segments in encounter order.
func computeStats(segments []entities.TranscriptSegment) []entities.SpeakerStats {
	var (
		order []string
		index = make(map[string]*entities.SpeakerStats)
		total float64
	)
	for _, seg := range segments {
		st, ok := index[seg.SpeakerID]
		if !ok {
			st = &entities.SpeakerStats{
				SpeakerID:   seg.SpeakerID,
				SpeakerName: seg.SpeakerName,
				IsUnknown:   seg.IsUnknown,
			}
			index[seg.SpeakerID] = st
			order = append(order, seg.SpeakerID)
		}
		st.SegmentCount++
		n := float64(st.SegmentCount)
		st.AvgConfidence = (st.AvgConfidence*(n-1) + seg.Confidence) / n
		if d := seg.Duration(); d > 0 {
			st.TotalDuration += d
			total += d
		}
	}

	out := make([]entities.SpeakerStats, 0, len(order))
	for _, id := range order {
		st := index[id]
		switch {
		case total > 0:
			st.Percentage = st.TotalDuration / total * 100
		case len(segments) > 0:
			// zero-length stamps, fall back to segment share
			st.Percentage = float64(st.SegmentCount) / float64(len(segments)) * 100
		}
		out = append(out, *st)
	}
	return out
}
