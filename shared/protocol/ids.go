package protocol

import "github.com/google/uuid"

// NewPlayerID returns an opaque id that stays stable for one connection.
func NewPlayerID() string {
	return uuid.NewString()
}
