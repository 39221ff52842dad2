package frame

import (
	"encoding/json"
	"errors"
)

type Type string

const (
	TypeConnection   Type = "connection"
	TypeNotification Type = "notification"
	TypeSystem       Type = "system"
)

// Frame is the wire unit exchanged over a live connection. A frame is
// immutable once constructed; the registry never queues or retries one.
type Frame struct {
	Type    Type   `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func NewConnection(message string) Frame {
	return Frame{
		Type:    TypeConnection,
		Message: message,
	}
}

func NewNotification(data any) Frame {
	return Frame{
		Type: TypeNotification,
		Data: data,
	}
}

func NewSystem(message string) Frame {
	return Frame{
		Type:    TypeSystem,
		Message: message,
	}
}

func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, err
	}

	switch f.Type {
	case TypeConnection, TypeNotification, TypeSystem:
		return f, nil
	case "":
		return Frame{}, errors.New("missing frame type")
	default:
		return Frame{}, errors.New("unknown frame type: " + string(f.Type))
	}
}
