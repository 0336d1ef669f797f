package town

import "errors"

// Failure taxonomy shared by the town and annotation layers. Callers match
// with errors.Is; operations wrap these with context via fmt.Errorf.
var (
	// ErrUnauthorized means the request carried a missing or invalid session token.
	ErrUnauthorized = errors.New("invalid session token")

	// ErrForbidden means the session is valid but does not own the entity.
	ErrForbidden = errors.New("not the owner")

	// ErrNotFound means an entity identifier did not resolve.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput means the request payload failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPostCollision means a post already occupies the requested coordinate.
	ErrPostCollision = errors.New("coordinate already occupied")

	// ErrStorageUnavailable wraps repository failures. The triggering
	// operation is aborted with no broadcast.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDataIntegrity marks corrupted persistent state, such as a cycle in a
	// comment tree. It indicates a bug, not a user error.
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrTownClosed means the town has been destroyed and accepts no new work.
	ErrTownClosed = errors.New("town is closed")

	// ErrAreaExists means a conversation area with the same label already exists.
	ErrAreaExists = errors.New("conversation area label already in use")
)
