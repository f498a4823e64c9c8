package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndBind_JoinRoom(t *testing.T) {
	req := require.New(t)

	// Given
	frame := []byte(`{"type":"join_room","data":{"roomId":"r1","userId":"u1","displayName":"Asha"}}`)

	// When
	env, err := Parse(frame)
	req.NoError(err)
	join, err := Bind[JoinRoom](env)

	// Then
	req.NoError(err)
	req.Equal(KindJoinRoom, env.Type)
	req.Equal(JoinRoom{RoomID: "r1", UserID: "u1", DisplayName: "Asha"}, join)
}

func TestBind_RejectsMissingFields(t *testing.T) {
	req := require.New(t)

	env, err := Parse([]byte(`{"type":"join_room","data":{"roomId":"r1"}}`))
	req.NoError(err)

	_, err = Bind[JoinRoom](env)
	req.Error(err)
	req.Contains(err.Error(), "UserID")
}

func TestBind_MissingPayload(t *testing.T) {
	req := require.New(t)

	env, err := Parse([]byte(`{"type":"typing"}`))
	req.NoError(err)

	_, err = Bind[Typing](env)
	req.ErrorContains(err, "payload missing")
}

func TestParse_Malformed(t *testing.T) {
	req := require.New(t)

	_, err := Parse(nil)
	req.ErrorIs(err, ErrEmptyMessage)

	_, err = Parse([]byte(`not json`))
	req.ErrorContains(err, "malformed message")

	_, err = Parse([]byte(`{"data":{}}`))
	req.ErrorContains(err, "type missing")
}

func TestEncode_MutationError(t *testing.T) {
	req := require.New(t)

	// When
	frame, err := Encode(KindMutationError, MutationError{
		RoomID:               "r1",
		Message:              "room is locked",
		OriginalMutationType: "swap_item",
		AttemptID:            "a1",
	})
	req.NoError(err)

	// Then the frame is a {type, data} envelope
	var decoded map[string]json.RawMessage
	req.NoError(json.Unmarshal(frame, &decoded))
	req.JSONEq(`"mutation_error"`, string(decoded["type"]))
	req.JSONEq(`{"roomId":"r1","message":"room is locked","originalMutationType":"swap_item","attemptId":"a1"}`, string(decoded["data"]))

	env, err := Parse(frame)
	req.NoError(err)
	back, err := Unwrap[MutationError](env)
	req.NoError(err)
	req.Equal("a1", back.AttemptID)
}

func TestProcessMutation_KeepsRawPayload(t *testing.T) {
	req := require.New(t)

	env, err := Parse([]byte(`{"type":"process_mutation","data":{"roomId":"r1","userId":"u1","mutationType":"swap_item","mutationPayload":{"slotIndex":0,"newItemId":"x"}}}`))
	req.NoError(err)

	m, err := Bind[ProcessMutation](env)
	req.NoError(err)
	req.JSONEq(`{"slotIndex":0,"newItemId":"x"}`, string(m.MutationPayload))
	req.Empty(m.AttemptID)
}
