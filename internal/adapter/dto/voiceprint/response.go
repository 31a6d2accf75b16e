package voiceprint

import "time"

// ProfileResponse is the public view of a voiceprint profile
type ProfileResponse struct {
	ID                 string     `json:"id"`
	OwnerID            string     `json:"owner_id"`
	Name               string     `json:"name"`
	Department         string     `json:"department,omitempty"`
	Email              string     `json:"email,omitempty"`
	IsPublic           bool       `json:"is_public"`
	AllowedUserIDs     []string   `json:"allowed_user_ids,omitempty"`
	SampleCount        int        `json:"sample_count"`
	EmbeddingDimension int        `json:"embedding_dimension"`
	MatchCount         int        `json:"match_count"`
	AvgMatchConfidence float64    `json:"avg_match_confidence"`
	LastMatchedAt      *time.Time `json:"last_matched_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ListResponse is one page of profiles
type ListResponse struct {
	Profiles []*ProfileResponse `json:"profiles"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// CandidateResponse is one ranked identification result
type CandidateResponse struct {
	ProfileID  string  `json:"profile_id"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
	Confidence float64 `json:"confidence"`
	IsMatch    bool    `json:"is_match"`
}

// RecognizeResponse lists candidates best first
type RecognizeResponse struct {
	Candidates []CandidateResponse `json:"candidates"`
	Threshold  float64             `json:"threshold"`
	Identified bool                `json:"identified"`
}
