package services

import "errors"

// Caption error taxonomy. These four are the only errors the acquisition
// service treats as "try the speech-to-text fallback"; anything else from the
// captions path is fatal to the call.
var (
	ErrCaptionsDisabled = errors.New("captions disabled for video")
	ErrNoCaptionsFound  = errors.New("no caption track found")
	ErrVideoUnavailable = errors.New("video unavailable")
	ErrRetrievalFailed  = errors.New("could not retrieve captions")
)

// IsCaptionsUnavailable reports whether err belongs to the recoverable caption
// error taxonomy.
func IsCaptionsUnavailable(err error) bool {
	return errors.Is(err, ErrCaptionsDisabled) ||
		errors.Is(err, ErrNoCaptionsFound) ||
		errors.Is(err, ErrVideoUnavailable) ||
		errors.Is(err, ErrRetrievalFailed)
}
