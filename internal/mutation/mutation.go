// Package mutation defines the closed set of edits a room accepts and the
// interpreter that applies them to a document.
package mutation

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Kind string

const (
	KindSwapItem          Kind = "swap_item"
	KindToggleSelection   Kind = "toggle_selection"
	KindAddOrUpdateAddon  Kind = "add_or_update_addon"
	KindAddComment        Kind = "add_comment"
	KindVoteItem          Kind = "vote_item"
	KindAppendChatMessage Kind = "append_chat_message"
	KindLockRoom          Kind = "lock_room"
	KindUnlockRoom        Kind = "unlock_room"
)

type VoteType string

const (
	VoteUp     VoteType = "up"
	VoteDown   VoteType = "down"
	VoteRemove VoteType = "remove"
)

// Mutation is implemented only by the variants in this file.
type Mutation interface {
	Kind() Kind
	sealed()
}

type SwapItem struct {
	SlotIndex int    `json:"slotIndex"`
	NewItemID string `json:"newItemId" validate:"required"`
}

type ToggleSelection struct {
	SlotIndex  int  `json:"slotIndex"`
	IsSelected bool `json:"isSelected"`
}

type AddOrUpdateAddon struct {
	ItemID   string `json:"itemId" validate:"required"`
	Quantity int    `json:"quantity"`
}

type AddComment struct {
	SlotIndex  int    `json:"slotIndex"`
	Text       string `json:"text" validate:"required"`
	AuthorName string `json:"authorName" validate:"required"`
}

type VoteItem struct {
	SlotIndex int      `json:"slotIndex"`
	VoteType  VoteType `json:"voteType" validate:"required,oneof=up down remove"`
	VoterName string   `json:"voterName" validate:"required"`
}

type AppendChatMessage struct {
	Text       string `json:"text" validate:"required"`
	AuthorName string `json:"authorName" validate:"required"`
}

type LockRoom struct{}

type UnlockRoom struct{}

func (SwapItem) Kind() Kind          { return KindSwapItem }
func (ToggleSelection) Kind() Kind   { return KindToggleSelection }
func (AddOrUpdateAddon) Kind() Kind  { return KindAddOrUpdateAddon }
func (AddComment) Kind() Kind        { return KindAddComment }
func (VoteItem) Kind() Kind          { return KindVoteItem }
func (AppendChatMessage) Kind() Kind { return KindAppendChatMessage }
func (LockRoom) Kind() Kind          { return KindLockRoom }
func (UnlockRoom) Kind() Kind        { return KindUnlockRoom }

func (SwapItem) sealed()          {}
func (ToggleSelection) sealed()   {}
func (AddOrUpdateAddon) sealed()  {}
func (AddComment) sealed()        {}
func (VoteItem) sealed()          {}
func (AppendChatMessage) sealed() {}
func (LockRoom) sealed()          {}
func (UnlockRoom) sealed()        {}

var validate = validator.New()

// Decode turns a wire mutation type and payload into a typed Mutation.
// Unknown types and malformed or incomplete payloads are validation
// rejections.
func Decode(mutationType string, payload json.RawMessage) (Mutation, error) {
	kind := Kind(mutationType)
	if addressesSlot(kind) {
		if err := requireSlot(kind, payload); err != nil {
			return nil, err
		}
	}

	var m Mutation
	var err error
	switch kind {
	case KindSwapItem:
		m, err = decodeInto[SwapItem](payload)
	case KindToggleSelection:
		m, err = decodeInto[ToggleSelection](payload)
	case KindAddOrUpdateAddon:
		m, err = decodeInto[AddOrUpdateAddon](payload)
	case KindAddComment:
		m, err = decodeInto[AddComment](payload)
	case KindVoteItem:
		m, err = decodeInto[VoteItem](payload)
	case KindAppendChatMessage:
		m, err = decodeInto[AppendChatMessage](payload)
	case KindLockRoom:
		m = LockRoom{}
	case KindUnlockRoom:
		m = UnlockRoom{}
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func addressesSlot(kind Kind) bool {
	switch kind {
	case KindSwapItem, KindToggleSelection, KindAddComment, KindVoteItem:
		return true
	}
	return false
}

// slotField catches a payload without slotIndex, which would otherwise
// decode as slot 0.
type slotField struct {
	SlotIndex *int `json:"slotIndex" validate:"required"`
}

func requireSlot(kind Kind, payload json.RawMessage) error {
	if len(payload) == 0 || string(payload) == "null" {
		return rejectf("missing payload for %s", kind)
	}
	var f slotField
	if err := json.Unmarshal(payload, &f); err != nil {
		return rejectf("invalid payload for %s: %v", kind, err)
	}
	if err := validate.Struct(f); err != nil {
		return rejectf("invalid payload for %s: slotIndex is required", kind)
	}
	return nil
}

func decodeInto[T Mutation](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 || string(payload) == "null" {
		return v, rejectf("missing payload for %s", v.Kind())
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, rejectf("invalid payload for %s: %v", v.Kind(), err)
	}
	if err := validate.Struct(v); err != nil {
		return v, rejectf("invalid payload for %s: %v", v.Kind(), err)
	}
	return v, nil
}

// Encode is the inverse of Decode, used by clients.
func Encode(m Mutation) (string, json.RawMessage, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return string(m.Kind()), payload, nil
}
