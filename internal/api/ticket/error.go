package ticket

import "audiogami/pkg/response"

var (
	ErrTicketNotFound      = response.NewError(404, "ticket not found")
	ErrCreateTicket        = response.NewError(500, "failed to create ticket")
	ErrUpdateTicket        = response.NewError(500, "failed to update ticket")
	ErrDeleteTicket        = response.NewError(500, "failed to delete ticket")
	ErrListTickets         = response.NewError(500, "failed to list tickets")
	ErrUnknownUseCase      = response.NewError(400, "unknown use case")
	ErrInvalidStatus       = response.NewError(400, "invalid status")
	ErrInvalidPriority     = response.NewError(400, "invalid priority")
	ErrInvalidCategory     = response.NewError(400, "category does not belong to the use case")
	ErrInvalidTag          = response.NewError(400, "invalid tag")
	ErrUnknownField        = response.NewError(400, "unknown or read-only field")
	ErrFieldNotApplicable  = response.NewError(400, "field does not apply to the use case")
	ErrInvalidPatchValue   = response.NewError(400, "field values must be strings or null")
	ErrEmptyPatch          = response.NewError(400, "nothing to update")
	ErrExportFailed        = response.NewError(500, "failed to export tickets")
	ErrStorageUnavailable  = response.NewError(503, "export storage is not configured")
	ErrMailerUnavailable   = response.NewError(503, "mailer is not configured")
	ErrNotifyFailed        = response.NewError(502, "failed to send the confirmation e-mail")
	ErrNotionNotConfigured = response.NewError(409, "not_configured")
	ErrNotionPush          = response.NewError(502, "failed to push the ticket to notion")
)
