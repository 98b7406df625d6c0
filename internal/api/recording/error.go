package recording

import "audiogami/pkg/response"

var (
	ErrRecordingNotFound   = response.NewError(404, "recording session not found")
	ErrTooManyRecordings   = response.NewError(503, "too many live recording sessions")
	ErrPortalNotConfigured = response.NewError(503, "no voice portal configured for the use case")
	ErrCreateRecording     = response.NewError(500, "failed to create recording session")
	ErrTicketClosed        = response.NewError(409, "ticket is resolved or closed")
)
