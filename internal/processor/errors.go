package processor

import (
	"errors"
	"fmt"
)

// Sentinel errors for the certificate pipeline. Per-recipient conditions are
// recorded in results; only template-level conditions stop a run.
var (
	ErrMalformedTemplate   = errors.New("malformed template")
	ErrPageIndexOutOfRange = errors.New("page index out of range")
	ErrFieldResolutionMiss = errors.New("field resolution miss")
	ErrTextOverflow        = errors.New("text overflows field at minimum size")
	ErrTemplateFetchFailed = errors.New("template fetch failed")
	ErrUploadFailed        = errors.New("upload failed")
	ErrEmailSendFailed     = errors.New("email send failed")
	ErrBatchAborted        = errors.New("batch aborted")
	ErrInvalidRecipient    = errors.New("invalid recipient")
)

// RenderError ties a failure to the recipient position and the step that failed.
type RenderError struct {
	Op    string // step name, e.g. "validate", "draw", "serialize"
	Index int    // recipient position in the batch, -1 when not part of a batch
	Err   error
}

func (e *RenderError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("recipient %d: %s: %v", e.Index, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
