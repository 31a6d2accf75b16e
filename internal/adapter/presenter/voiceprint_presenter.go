package presenter

import (
	"github.com/johnquangdev/meeting-transcriber/internal/adapter/dto/voiceprint"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
)

// ToProfileResponse converts a VoiceprintProfile entity to its DTO.
// Embeddings never leave the service.
func ToProfileResponse(p *entities.VoiceprintProfile) *voiceprint.ProfileResponse {
	if p == nil {
		return nil
	}
	return &voiceprint.ProfileResponse{
		ID:                 p.ID.String(),
		OwnerID:            p.OwnerID.String(),
		Name:               p.Name,
		Department:         p.Department,
		Email:              p.Email,
		IsPublic:           p.IsPublic,
		AllowedUserIDs:     append([]string(nil), p.AllowedUserIDs...),
		SampleCount:        p.SampleCount,
		EmbeddingDimension: len(p.Embedding),
		MatchCount:         p.MatchCount,
		AvgMatchConfidence: p.AvgMatchConfidence,
		LastMatchedAt:      p.LastMatchedAt,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

// ToProfileResponses converts a list of profiles
func ToProfileResponses(profiles []*entities.VoiceprintProfile) []*voiceprint.ProfileResponse {
	out := make([]*voiceprint.ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, ToProfileResponse(p))
	}
	return out
}

// ToRecognizeResponse converts ranked candidates
func ToRecognizeResponse(candidates []entities.MatchCandidate, threshold float64) *voiceprint.RecognizeResponse {
	resp := &voiceprint.RecognizeResponse{
		Candidates: make([]voiceprint.CandidateResponse, 0, len(candidates)),
		Threshold:  threshold,
	}
	for _, c := range candidates {
		resp.Candidates = append(resp.Candidates, voiceprint.CandidateResponse{
			ProfileID:  c.ProfileID.String(),
			Name:       c.Name,
			Similarity: c.Similarity,
			Confidence: c.Confidence,
			IsMatch:    c.IsMatch,
		})
	}
	resp.Identified = len(candidates) > 0 && candidates[0].IsMatch
	return resp
}
