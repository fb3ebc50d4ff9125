package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"filmware-sync/internal/errors"
	"filmware-sync/internal/record"
	"filmware-sync/internal/utils"

	"github.com/google/uuid"
)

// Client messages arriving after authentication. Subscribe and fetch carry
// one sub-object per record kind of interest under that kind's field name,
// so the fixed fields are pulled out first and the remainder is decoded per
// kind.
type ClientMessage struct {
	Type    string
	MuxID   string
	Kinds   map[string]KindRequest
	Objects []map[string]any
}

// KindRequest is the raw since/match/value triple of one kind sub-object.
type KindRequest struct {
	Since []record.Cursor `json:"since"`
	Match string          `json:"match"`
	Value any             `json:"value"`
}

// ParseClientMessage decodes one inbound frame. Anything malformed is a
// user error that tears the connection down.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewUserError(fmt.Sprintf("malformed message: %v", err))
	}

	msg := &ClientMessage{Kinds: make(map[string]KindRequest)}
	if err := unmarshalField(raw, "type", &msg.Type); err != nil {
		return nil, err
	}
	if err := unmarshalField(raw, "mux_id", &msg.MuxID); err != nil {
		return nil, err
	}

	switch msg.Type {
	case "subscribe", "fetch":
		for field, val := range raw {
			if field == "type" || field == "mux_id" {
				continue
			}
			if _, ok := record.KindByField(field); !ok {
				return nil, errors.NewUserError(fmt.Sprintf("unknown record kind (%s)", field))
			}
			var req KindRequest
			if err := json.Unmarshal(val, &req); err != nil {
				return nil, errors.NewUserError(fmt.Sprintf("malformed %s spec: %v", field, err))
			}
			msg.Kinds[field] = req
		}
		if len(msg.Kinds) == 0 {
			return nil, errors.NewUserError("subscribe with no record kinds")
		}
	case "close":
	case "upload":
		if val, ok := raw["objects"]; ok {
			if err := json.Unmarshal(val, &msg.Objects); err != nil {
				return nil, errors.NewUserError(fmt.Sprintf("malformed objects: %v", err))
			}
		}
	default:
		return nil, errors.NewUserError(fmt.Sprintf("unrecognized message type (%q)", msg.Type))
	}
	return msg, nil
}

func unmarshalField(raw map[string]json.RawMessage, field string, dst *string) error {
	val, ok := raw[field]
	if !ok {
		return errors.NewUserError(fmt.Sprintf("missing %s", field))
	}
	if err := json.Unmarshal(val, dst); err != nil {
		return errors.NewUserError(fmt.Sprintf("invalid %s", field))
	}
	return nil
}

// authMessage is the first frame(s) of a connection: either a password
// login or a resumed session grant. Secrets travel base64-encoded.
type authMessage struct {
	Type     string `json:"type"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Session  string `json:"session"`
	Token    string `json:"token"`
}

func parseAuthMessage(data []byte) (*authMessage, error) {
	var msg authMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.NewUserError(fmt.Sprintf("malformed auth message: %v", err))
	}
	if msg.Type != "password" && msg.Type != "session" {
		return nil, errors.NewUserError(fmt.Sprintf("unrecognized auth type (%q)", msg.Type))
	}
	return &msg, nil
}

func (m *authMessage) password() (string, error) {
	raw, err := base64.StdEncoding.DecodeString(m.Password)
	if err != nil {
		return "", errors.NewUserError("invalid password encoding")
	}
	return string(raw), nil
}

func (m *authMessage) credentials() (uuid.UUID, []byte, error) {
	sessionID, err := uuid.Parse(m.Session)
	if err != nil {
		return uuid.Nil, nil, errors.NewUserError("invalid session id")
	}
	token, err := base64.StdEncoding.DecodeString(m.Token)
	if err != nil {
		return uuid.Nil, nil, errors.NewUserError("invalid token encoding")
	}
	return sessionID, token, nil
}

// Server frames.

func resultFailure() map[string]any {
	return map[string]any{"type": "result", "success": false}
}

func resultSuccess(user, sessionID uuid.UUID, token []byte, expiry time.Time) map[string]any {
	return map[string]any{
		"type":    "result",
		"success": true,
		"user":    user.String(),
		"session": sessionID.String(),
		"token":   base64.StdEncoding.EncodeToString(token),
		"expiry":  utils.FormatTime(expiry),
	}
}

func syncMessage(muxID string) map[string]any {
	return map[string]any{"type": "sync", "mux_id": muxID}
}

func closedMessage(muxID string) map[string]any {
	return map[string]any{"type": "closed", "mux_id": muxID}
}

func uploadedMessage(muxID string) map[string]any {
	return map[string]any{"type": "uploaded", "mux_id": muxID}
}
