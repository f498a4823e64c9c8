package presence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_JoinJoinLeave(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connA := uuid.NewString()
	connB := uuid.NewString()

	// Given A then B join the room
	req.Equal([]string{"Asha"}, registry.Join("room-1", connA, "Asha"))
	req.Equal([]string{"Asha", "Bilal"}, registry.Join("room-1", connB, "Bilal"))

	// When A disconnects
	members := registry.Leave("room-1", connA)

	// Then only B is left
	req.Equal([]string{"Bilal"}, members)
	req.Equal([]string{"Bilal"}, registry.Members("room-1"))
}

func TestRegistry_SameNameTwoConnections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// When the same user joins from two tabs
	registry.Join("room-1", uuid.NewString(), "Asha")
	members := registry.Join("room-1", uuid.NewString(), "Asha")

	// Then they are listed once
	req.Equal([]string{"Asha"}, members)
}

func TestRegistry_SameNameOneTabLeaves(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	tab1 := uuid.NewString()
	tab2 := uuid.NewString()

	// Given the same user in two tabs
	registry.Join("room-1", tab1, "Asha")
	registry.Join("room-1", tab2, "Asha")

	// When one tab closes
	members := registry.Leave("room-1", tab1)

	// Then the user is still present
	req.Equal([]string{"Asha"}, members)
	req.True(registry.IsMember("room-1", tab2))
}

func TestRegistry_SetActive(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := uuid.NewString()

	req.Equal([]string{"Asha"}, registry.SetActive("room-1", conn, "Asha", true))
	req.Equal([]string{"Asha R."}, registry.SetActive("room-1", conn, "Asha R.", true))
	req.Empty(registry.SetActive("room-1", conn, "Asha R.", false))
	req.Zero(registry.RoomCount())
}

func TestRegistry_LeaveAll(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := uuid.NewString()
	other := uuid.NewString()

	// Given a connection in two rooms
	registry.Join("room-b", conn, "Asha")
	registry.Join("room-a", conn, "Asha")
	registry.Join("room-a", other, "Bilal")

	// When it disconnects
	left := registry.LeaveAll(conn)

	// Then it left both, and the empty room is gone
	req.Equal([]string{"room-a", "room-b"}, left)
	req.Equal([]string{"Bilal"}, registry.Members("room-a"))
	req.Empty(registry.Members("room-b"))
	req.Equal(1, registry.RoomCount())
}

func TestRegistry_LeaveUnknownRoom(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	req.Empty(registry.Leave("nowhere", uuid.NewString()))
	req.Empty(registry.LeaveAll(uuid.NewString()))
}
