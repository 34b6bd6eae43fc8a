package types

// Error codes surfaced to clients in error envelopes.
const (
	CodeBadJSON      = "M_BAD_JSON"
	CodeNotJSON      = "M_NOT_JSON"
	CodeUnknown      = "M_UNKNOWN"
	CodeUnknownToken = "M_UNKNOWN_TOKEN"
	CodeForbidden    = "M_FORBIDDEN"
	CodeNotFound     = "M_NOT_FOUND"
)

// Error is a typed application error carrying a client-visible error code.
// Handlers return it when a request is malformed or disallowed; anything
// else is reported to the client as CodeUnknown.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds a typed application error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}
