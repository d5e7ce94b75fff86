package canvas

import (
	"errors"
	"strings"
)

// Registry errors
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrInvalidRoomID = errors.New("invalid room id")
	ErrUserNotFound  = errors.New("user not found")
)

// mapServiceError converts errors returned over the service bus back to
// sentinel errors. Type information does not survive the NATS round trip.
func mapServiceError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, ErrRoomNotFound.Error()):
		return ErrRoomNotFound
	case strings.Contains(msg, ErrInvalidRoomID.Error()):
		return ErrInvalidRoomID
	}
	return err
}
