package voiceprint

// EnrollRequest holds the form fields of an enrollment. Audio samples are
// read separately from the audio_files[] parts.
type EnrollRequest struct {
	Name           string `form:"name" validate:"required,min=1,max=255"`
	Department     string `form:"department" validate:"omitempty,max=255"`
	Email          string `form:"email" validate:"omitempty,email"`
	IsPublic       bool   `form:"is_public"`
	AllowedUserIDs string `form:"allowed_user_ids"`
}

// ListRequest represents query parameters for listing voiceprints
type ListRequest struct {
	Query     string `query:"q" validate:"omitempty,max=255"`
	OnlyOwned bool   `query:"only_owned"`
	Page      int    `query:"page" validate:"omitempty,min=1"`
	PageSize  int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// RecognizeRequest holds the form fields of an identification call
type RecognizeRequest struct {
	TopK int `form:"top_k" validate:"omitempty,min=1,max=50"`
}
