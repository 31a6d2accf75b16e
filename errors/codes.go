package errors

// ErrorCode identifies an application error on the wire
type ErrorCode int32

const (
	ErrorCode_HTTP_OK ErrorCode = 0

	// General
	ErrorCode_INTERNAL          ErrorCode = 1000
	ErrorCode_INVALID_ARGUMENT  ErrorCode = 1001
	ErrorCode_NOT_FOUND         ErrorCode = 1002
	ErrorCode_ALREADY_EXISTS    ErrorCode = 1003
	ErrorCode_PERMISSION_DENIED ErrorCode = 1004
	ErrorCode_UNAUTHENTICATED   ErrorCode = 1005
	ErrorCode_FORBIDDEN         ErrorCode = 1006
	ErrorCode_INVALID_PAYLOAD   ErrorCode = 1007

	// Authentication
	ErrorCode_AUTH_INVALID_TOKEN ErrorCode = 2000
	ErrorCode_AUTH_TOKEN_EXPIRED ErrorCode = 2001

	// Voiceprint gallery
	ErrorCode_VOICEPRINT_NOT_FOUND         ErrorCode = 3000
	ErrorCode_VOICEPRINT_INSUFFICIENT_SAMP ErrorCode = 3001
	ErrorCode_VOICEPRINT_TOO_MANY_SAMPLES  ErrorCode = 3002
	ErrorCode_VOICEPRINT_NOT_OWNER         ErrorCode = 3003
	ErrorCode_VOICEPRINT_INVALID_AUDIO     ErrorCode = 3004
	ErrorCode_VOICEPRINT_INVALID_EMBEDDING ErrorCode = 3005

	// Realtime sessions
	ErrorCode_SESSION_ALREADY_ACTIVE     ErrorCode = 4000
	ErrorCode_SESSION_NOT_FOUND          ErrorCode = 4001
	ErrorCode_RECONNECT_LIMIT_EXCEEDED   ErrorCode = 4002
	ErrorCode_SESSION_PROTOCOL_ERROR     ErrorCode = 4003
	ErrorCode_SESSION_OWNER_DISCONNECTED ErrorCode = 4004

	// Engines and integrations
	ErrorCode_ENGINE_UNAVAILABLE          ErrorCode = 5000
	ErrorCode_TRANSCRIPTION_FAILED        ErrorCode = 5001
	ErrorCode_INTEGRATION_STORAGE_FAILED  ErrorCode = 5002
	ErrorCode_INTEGRATION_CACHE_FAILED    ErrorCode = 5003
	ErrorCode_DB_QUERY_FAILED             ErrorCode = 5004
	ErrorCode_INTEGRATION_ENGINE_TIMEOUT  ErrorCode = 5005
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCode_HTTP_OK:                      "HTTP_OK",
	ErrorCode_INTERNAL:                     "INTERNAL",
	ErrorCode_INVALID_ARGUMENT:             "INVALID_ARGUMENT",
	ErrorCode_NOT_FOUND:                    "NOT_FOUND",
	ErrorCode_ALREADY_EXISTS:               "ALREADY_EXISTS",
	ErrorCode_PERMISSION_DENIED:            "PERMISSION_DENIED",
	ErrorCode_UNAUTHENTICATED:              "UNAUTHENTICATED",
	ErrorCode_FORBIDDEN:                    "FORBIDDEN",
	ErrorCode_INVALID_PAYLOAD:              "INVALID_PAYLOAD",
	ErrorCode_AUTH_INVALID_TOKEN:           "AUTH_INVALID_TOKEN",
	ErrorCode_AUTH_TOKEN_EXPIRED:           "AUTH_TOKEN_EXPIRED",
	ErrorCode_VOICEPRINT_NOT_FOUND:         "VOICEPRINT_NOT_FOUND",
	ErrorCode_VOICEPRINT_INSUFFICIENT_SAMP: "VOICEPRINT_INSUFFICIENT_SAMPLES",
	ErrorCode_VOICEPRINT_TOO_MANY_SAMPLES:  "VOICEPRINT_TOO_MANY_SAMPLES",
	ErrorCode_VOICEPRINT_NOT_OWNER:         "VOICEPRINT_NOT_OWNER",
	ErrorCode_VOICEPRINT_INVALID_AUDIO:     "VOICEPRINT_INVALID_AUDIO",
	ErrorCode_VOICEPRINT_INVALID_EMBEDDING: "VOICEPRINT_INVALID_EMBEDDING",
	ErrorCode_SESSION_ALREADY_ACTIVE:       "SESSION_ALREADY_ACTIVE",
	ErrorCode_SESSION_NOT_FOUND:            "SESSION_NOT_FOUND",
	ErrorCode_RECONNECT_LIMIT_EXCEEDED:     "RECONNECT_LIMIT_EXCEEDED",
	ErrorCode_SESSION_PROTOCOL_ERROR:       "SESSION_PROTOCOL_ERROR",
	ErrorCode_SESSION_OWNER_DISCONNECTED:   "OWNER_DISCONNECTED",
	ErrorCode_ENGINE_UNAVAILABLE:           "ENGINE_UNAVAILABLE",
	ErrorCode_TRANSCRIPTION_FAILED:         "TRANSCRIPTION_FAILED",
	ErrorCode_INTEGRATION_STORAGE_FAILED:   "INTEGRATION_STORAGE_FAILED",
	ErrorCode_INTEGRATION_CACHE_FAILED:     "INTEGRATION_CACHE_FAILED",
	ErrorCode_DB_QUERY_FAILED:              "DB_QUERY_FAILED",
	ErrorCode_INTEGRATION_ENGINE_TIMEOUT:   "INTEGRATION_ENGINE_TIMEOUT",
}

// String returns the symbolic name of the code
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}
