package service

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/postpilot/publisher/internal/transfer"
)

const (
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeMissingContainerID = "MISSING_CONTAINER_ID"
	ErrCodeProcessingError    = "PROCESSING_ERROR"
	ErrCodeContainerExpired   = "CONTAINER_EXPIRED"
	ErrCodeProcessingTimeout  = "PROCESSING_TIMEOUT"
	ErrCodeMissingMediaID     = "MISSING_MEDIA_ID"
	ErrCodeConnectionError    = "CONNECTION_ERROR"
	ErrCodeUnknownError       = "UNKNOWN_ERROR"
)

// PublishError is a protocol-level failure. Code is either one of the
// ErrCode constants or the numeric code reported by the external API.
type PublishError struct {
	Code    string
	Message string
	Details json.RawMessage
}

func (e *PublishError) Error() string {
	return e.Message
}

func newPublishError(code, message string) *PublishError {
	return &PublishError{Code: code, Message: message}
}

func graphError(prefix string, ge *transfer.GraphError) *PublishError {
	msg := ge.Message
	if prefix != "" {
		msg = prefix + ": " + ge.Message
	}
	return &PublishError{
		Code:    strconv.Itoa(ge.Code),
		Message: msg,
		Details: ge.Details(),
	}
}

// asPublishError maps any error into the taxonomy, wrapping unexpected ones
// as UNKNOWN_ERROR so nothing escapes untyped.
func asPublishError(err error) *PublishError {
	var perr *PublishError
	if errors.As(err, &perr) {
		return perr
	}
	return newPublishError(ErrCodeUnknownError, "Erro inesperado: "+err.Error())
}
