package transcription

// TranscribeRequest holds the form fields of a batch transcription. The
// audio itself is the "audio" multipart file.
type TranscribeRequest struct {
	EnableVoiceprint bool   `form:"enable_voiceprint"`
	Language         string `form:"language" validate:"omitempty,max=16"`
	NumSpeakers      int    `form:"num_speakers" validate:"omitempty,min=1,max=20"`
}
