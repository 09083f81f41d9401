package satellite

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DivergentUUIDsError reports an object whose identity differs between the
// controller and the satellite: either a known UUID arrived with another
// natural key, or a known natural key arrived with another UUID.
type DivergentUUIDsError struct {
	Table      string
	Key        string
	LocalKey   string
	LocalUUID  uuid.UUID
	RemoteUUID uuid.UUID
}

func (e *DivergentUUIDsError) Error() string {
	if e.LocalKey != e.Key {
		return fmt.Sprintf("%s UUID %s belongs to %q locally, controller sent it for %q",
			e.Table, e.RemoteUUID, e.LocalKey, e.Key)
	}
	return fmt.Sprintf("%s %q has UUID %s locally, controller sent %s",
		e.Table, e.Key, e.LocalUUID, e.RemoteUUID)
}

// DivergentDataError reports a snapshot that contradicts the satellite's
// own identity or is inconsistent in itself
type DivergentDataError struct {
	Object string
	Reason string
}

func (e *DivergentDataError) Error() string {
	return fmt.Sprintf("divergent data for %s: %s", e.Object, e.Reason)
}

func divergent(object, format string, args ...any) error {
	return &DivergentDataError{Object: object, Reason: fmt.Sprintf(format, args...)}
}

// divergenceKind labels err for the divergence metric, empty for other errors
func divergenceKind(err error) string {
	var uuidErr *DivergentUUIDsError
	var dataErr *DivergentDataError
	switch {
	case errors.As(err, &uuidErr):
		return "uuid"
	case errors.As(err, &dataErr):
		return "data"
	}
	return ""
}
