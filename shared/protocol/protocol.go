package protocol

import (
	"encoding/json"
	"time"
)

// MsgEnvelope is the part of every inbound message the hub needs before it
// knows the concrete kind. Messages are flat JSON objects: the kind-specific
// fields sit next to "type" rather than under a nested data key.
type MsgEnvelope struct {
	Type string `json:"type"`
}

// MemeStatus is the public projection of a meme. Investor ledgers never
// leave the server.
type MemeStatus struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	CurrentHypeInvestment int64  `json:"currentHypeInvestment"`
	IconKey               string `json:"iconKey"`
}

// Timestamp formats t the way clients expect (ISO-8601, millisecond precision, UTC).
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Decode parses the envelope of raw, returning an error when the payload is
// not a JSON object or carries no type.
func Decode(raw []byte) (MsgEnvelope, error) {
	var env MsgEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return MsgEnvelope{}, err
	}
	if env.Type == "" {
		return MsgEnvelope{}, errMissingType
	}
	return env, nil
}

type protocolError string

func (e protocolError) Error() string { return string(e) }

const errMissingType = protocolError("message has no type")
