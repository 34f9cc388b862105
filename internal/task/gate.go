package task

import "github.com/google/uuid"

// Requester identifies the caller of a task operation. Both facts are
// supplied by the authentication layer; the task subsystem never
// computes roles itself.
type Requester struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// Authorize allows the operation iff the requester is an admin or the
// task's owner. Returns ErrDenied otherwise.
func Authorize(requester Requester, ownerID uuid.UUID) error {
	if requester.IsAdmin || requester.UserID == ownerID {
		return nil
	}
	return ErrDenied
}
