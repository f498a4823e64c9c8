package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/manpreetbhatti/menuroom/internal/menu"
)

// Represents the kind of a real-time message
type Kind string

// Client to server
const (
	KindJoinRoom        Kind = "join_room"
	KindLeaveRoom       Kind = "leave_room"
	KindProcessMutation Kind = "process_mutation"
	KindUpdatePresence  Kind = "update_presence"
	KindTyping          Kind = "typing"
)

// Server to client
const (
	KindRoomState        Kind = "room_state"
	KindMutationError    Kind = "mutation_error"
	KindPresenceSync     Kind = "presence_sync"
	KindUserTyping       Kind = "user_typing"
	KindUserDisconnected Kind = "user_disconnected"
	KindError            Kind = "error"
)

var ErrEmptyMessage = errors.New("empty message")

// Envelope is the frame of every message in both directions.
type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinRoom struct {
	RoomID      string `json:"roomId" validate:"required"`
	UserID      string `json:"userId" validate:"required"`
	DisplayName string `json:"displayName" validate:"required"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId" validate:"required"`
}

type ProcessMutation struct {
	RoomID          string          `json:"roomId" validate:"required"`
	UserID          string          `json:"userId" validate:"required"`
	MutationType    string          `json:"mutationType" validate:"required"`
	MutationPayload json.RawMessage `json:"mutationPayload"`
	AttemptID       string          `json:"attemptId,omitempty"`
}

type UpdatePresence struct {
	RoomID      string `json:"roomId" validate:"required"`
	DisplayName string `json:"displayName" validate:"required"`
	IsActive    bool   `json:"isActive"`
}

type Typing struct {
	RoomID      string `json:"roomId" validate:"required"`
	DisplayName string `json:"displayName" validate:"required"`
	IsTyping    bool   `json:"isTyping"`
}

// RoomState is the full document, sent on join and after every accepted
// mutation.
type RoomState = menu.Document

type MutationError struct {
	RoomID               string `json:"roomId"`
	Message              string `json:"message"`
	OriginalMutationType string `json:"originalMutationType"`
	AttemptID            string `json:"attemptId,omitempty"`
}

type PresenceSync struct {
	RoomID  string   `json:"roomId"`
	Members []string `json:"members"`
}

type UserTyping struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	IsTyping    bool   `json:"isTyping"`
}

type UserDisconnected struct {
	ConnectionID string `json:"connectionId"`
}

type Error struct {
	Message string `json:"message"`
}

var validate = validator.New()

// Encode frames data as a message of the given kind.
func Encode(kind Kind, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return json.Marshal(Envelope{Type: kind, Data: raw})
}

// Parse reads the envelope of an inbound frame.
func Parse(frame []byte) (Envelope, error) {
	if len(frame) == 0 {
		return Envelope{}, ErrEmptyMessage
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, errors.New("message type missing")
	}
	return env, nil
}

// Bind decodes and validates the payload of env.
func Bind[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, fmt.Errorf("%s: payload missing", env.Type)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("%s: %w", env.Type, err)
	}
	if err := validate.Struct(out); err != nil {
		return out, fmt.Errorf("%s: %w", env.Type, err)
	}
	return out, nil
}

// Unwrap decodes the payload of an outbound message without validation.
func Unwrap[T any](env Envelope) (T, error) {
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("%s: %w", env.Type, err)
	}
	return out, nil
}
