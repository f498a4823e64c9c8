// Package room coordinates shared menu rooms: membership, presence and the
// serialized fetch, apply, replace, broadcast cycle of every mutation.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/manpreetbhatti/menuroom/internal/catalog"
	"github.com/manpreetbhatti/menuroom/internal/menu"
	"github.com/manpreetbhatti/menuroom/internal/mutation"
	"github.com/manpreetbhatti/menuroom/internal/presence"
	"github.com/manpreetbhatti/menuroom/internal/protocol"
	"github.com/manpreetbhatti/menuroom/internal/serializer"
	"github.com/manpreetbhatti/menuroom/internal/store"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrVendorNotFound = errors.New("vendor has no catalog")
	ErrNotJoined      = errors.New("connection has not joined the room")
	ErrRoomLocked     = errors.New("room is locked")

	ErrSnapshotMismatch = errors.New("snapshot is of a different menu")
)

// Sent in place of infrastructure errors, which stay in the server log.
const genericMutationError = "failed to apply mutation"

// Broadcaster delivers messages to connections. Messages handed over by one
// goroutine must reach each connection in that order.
type Broadcaster interface {
	Subscribe(roomID, connID string)
	Unsubscribe(roomID, connID string)
	SendTo(connID string, kind protocol.Kind, data any)
	Broadcast(roomID string, kind protocol.Kind, data any, exclude string)
}

type Option func(*Service)

// WithClock replaces time.Now for document timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCommitHook registers fn to run, inside the room's queue, after each
// document change has been stored.
func WithCommitHook(fn func(doc *menu.Document)) Option {
	return func(s *Service) { s.hooks = append(s.hooks, fn) }
}

type Service struct {
	store       store.Store
	catalog     catalog.Source
	serializer  *serializer.Serializer
	presence    *presence.Registry
	broadcaster Broadcaster
	interpreter *mutation.Interpreter
	hooks       []func(doc *menu.Document)
	now         func() time.Time
	log         *slog.Logger

	mu       sync.Mutex
	sessions map[string]map[string]bool // connection -> joined rooms
}

func NewService(
	st store.Store,
	source catalog.Source,
	queue *serializer.Serializer,
	registry *presence.Registry,
	broadcaster Broadcaster,
	log *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:       st,
		catalog:     source,
		serializer:  queue,
		presence:    registry,
		broadcaster: broadcaster,
		now:         time.Now,
		log:         log,
		sessions:    make(map[string]map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.interpreter = mutation.NewInterpreter(source, s.now)
	return s
}

// Open creates a room seeded from the vendor's full catalog. An empty roomID
// gets a generated one.
func (s *Service) Open(ctx context.Context, roomID, vendorID, hostID string) (*menu.Document, error) {
	if roomID == "" {
		roomID = uuid.NewString()
	}
	items, err := s.catalog.ListVendorItems(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("list catalog of %s: %w", vendorID, err)
	}
	if len(items) == 0 {
		return nil, ErrVendorNotFound
	}
	catalog.SortMenuOrder(items)

	doc := menu.NewDocument(roomID, vendorID, hostID, items, s.now().UTC())
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, err
	}
	s.log.Info("Room opened", "room", roomID, "vendor", vendorID, "slots", len(doc.Items))
	return doc, nil
}

func (s *Service) Get(ctx context.Context, roomID string) (*menu.Document, error) {
	doc, err := s.store.Get(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	return doc, err
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]menu.Summary, error) {
	return s.store.List(ctx, limit, offset)
}

// Members returns the visible member names of a room.
func (s *Service) Members(roomID string) []string {
	return s.presence.Members(roomID)
}

// Join subscribes connID to the room, sends it the current document and
// resyncs everyone's member list. It runs in the room's queue, so the
// joiner's first document is never older than any broadcast it receives next.
func (s *Service) Join(ctx context.Context, connID string, join protocol.JoinRoom) error {
	err := s.serializer.Do(ctx, join.RoomID, func(ctx context.Context) error {
		doc, err := s.Get(ctx, join.RoomID)
		if err != nil {
			return err
		}
		s.broadcaster.Subscribe(join.RoomID, connID)
		s.remember(connID, join.RoomID)
		s.broadcaster.SendTo(connID, protocol.KindRoomState, doc)
		s.syncPresence(join.RoomID, s.presence.Join(join.RoomID, connID, join.DisplayName))
		return nil
	})
	if err != nil {
		message := "failed to join room"
		if errors.Is(err, ErrRoomNotFound) {
			message = ErrRoomNotFound.Error()
		} else {
			s.log.Error("Join failed", "room", join.RoomID, "conn", connID, "error", err)
		}
		s.broadcaster.SendTo(connID, protocol.KindError, protocol.Error{Message: message})
		return err
	}
	s.log.Debug("Joined room", "room", join.RoomID, "conn", connID, "user", join.UserID)
	return nil
}

// Leave removes connID from one room without closing the connection.
func (s *Service) Leave(_ context.Context, connID, roomID string) {
	if !s.forget(connID, roomID) {
		return
	}
	s.broadcaster.Unsubscribe(roomID, connID)
	s.syncPresence(roomID, s.presence.Leave(roomID, connID))
}

// SetPresence shows or hides connID in the member list of a joined room.
func (s *Service) SetPresence(_ context.Context, connID string, update protocol.UpdatePresence) error {
	if !s.joined(connID, update.RoomID) {
		return ErrNotJoined
	}
	members := s.presence.SetActive(update.RoomID, connID, update.DisplayName, update.IsActive)
	s.syncPresence(update.RoomID, members)
	return nil
}

// Typing relays a typing signal to the other members. Nothing is stored.
func (s *Service) Typing(_ context.Context, connID string, typing protocol.Typing) error {
	if !s.joined(connID, typing.RoomID) {
		return ErrNotJoined
	}
	s.broadcaster.Broadcast(typing.RoomID, protocol.KindUserTyping, protocol.UserTyping{
		RoomID:      typing.RoomID,
		DisplayName: typing.DisplayName,
		IsTyping:    typing.IsTyping,
	}, connID)
	return nil
}

// Disconnect drops every membership of connID. Mutations it already queued
// still complete and broadcast to whoever remains.
func (s *Service) Disconnect(_ context.Context, connID string) {
	s.mu.Lock()
	rooms := s.sessions[connID]
	delete(s.sessions, connID)
	s.mu.Unlock()

	if rooms == nil {
		rooms = make(map[string]bool)
	}

	for _, roomID := range s.presence.LeaveAll(connID) {
		rooms[roomID] = true
	}
	for roomID := range rooms {
		s.broadcaster.Unsubscribe(roomID, connID)
		s.broadcaster.Broadcast(roomID, protocol.KindUserDisconnected, protocol.UserDisconnected{ConnectionID: connID}, connID)
		s.syncPresence(roomID, s.presence.Members(roomID))
	}
	s.log.Debug("Connection closed", "conn", connID, "rooms", len(rooms))
}

// Mutate applies one mutation through the room's queue: fetch the latest
// stored document, apply, store, broadcast. Failures go to connID only.
func (s *Service) Mutate(ctx context.Context, connID string, req protocol.ProcessMutation) error {
	m, err := mutation.Decode(req.MutationType, req.MutationPayload)
	if err == nil {
		err = s.serializer.Do(ctx, req.RoomID, func(ctx context.Context) error {
			return s.commit(ctx, req.RoomID, m, req.UserID)
		})
	}
	if err != nil {
		s.reportFailure(connID, req, err)
		return err
	}
	return nil
}

func (s *Service) commit(ctx context.Context, roomID string, m mutation.Mutation, actorID string) error {
	doc, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}
	next, err := s.interpreter.Apply(ctx, doc, m, actorID)
	if err != nil {
		return err
	}
	return s.publish(ctx, roomID, next)
}

// Restore replaces the room's document with a copy of snapshot. Identity
// fields stay those of the live room and the total is recomputed. A locked
// room refuses the restore, as does a snapshot of a different menu.
func (s *Service) Restore(ctx context.Context, roomID string, snapshot *menu.Document, actorID string) (*menu.Document, error) {
	var restored *menu.Document
	err := s.serializer.Do(ctx, roomID, func(ctx context.Context) error {
		current, err := s.Get(ctx, roomID)
		if err != nil {
			return err
		}
		if current.IsLocked {
			return ErrRoomLocked
		}
		// Slots are fixed for a room's lifetime. A version saved by an
		// earlier room under the same id may carry another menu.
		if snapshot.VendorID != current.VendorID || len(snapshot.Items) != len(current.Items) {
			return ErrSnapshotMismatch
		}

		next := snapshot.Clone()
		next.RoomID = current.RoomID
		next.VendorID = current.VendorID
		next.HostID = current.HostID
		next.CreatedAt = current.CreatedAt
		next.IsLocked = false
		next.UpdatedBy = actorID
		next.LastUpdated = s.now().UTC()
		menu.Reprice(next)

		if err := s.publish(ctx, roomID, next); err != nil {
			return err
		}
		restored = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Room restored", "room", roomID, "by", actorID)
	return restored, nil
}

func (s *Service) publish(ctx context.Context, roomID string, next *menu.Document) error {
	if err := s.store.Replace(ctx, roomID, next); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("replace room %s: %w", roomID, err)
	}

	s.broadcaster.Broadcast(roomID, protocol.KindRoomState, next, "")
	for _, hook := range s.hooks {
		hook(next)
	}
	return nil
}

func (s *Service) reportFailure(connID string, req protocol.ProcessMutation, err error) {
	message := genericMutationError
	if rejection, ok := mutation.AsRejection(err); ok {
		message = rejection.Message
		s.log.Debug("Mutation rejected", "room", req.RoomID, "conn", connID,
			"mutation", req.MutationType, "kind", rejection.Kind, "reason", rejection.Message)
	} else if errors.Is(err, ErrRoomNotFound) {
		message = ErrRoomNotFound.Error()
	} else {
		s.log.Error("Mutation failed", "room", req.RoomID, "conn", connID,
			"mutation", req.MutationType, "error", err)
	}

	s.broadcaster.SendTo(connID, protocol.KindMutationError, protocol.MutationError{
		RoomID:               req.RoomID,
		Message:              message,
		OriginalMutationType: req.MutationType,
		AttemptID:            req.AttemptID,
	})
}

func (s *Service) syncPresence(roomID string, members []string) {
	s.broadcaster.Broadcast(roomID, protocol.KindPresenceSync, protocol.PresenceSync{
		RoomID:  roomID,
		Members: members,
	}, "")
}

func (s *Service) remember(connID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms, ok := s.sessions[connID]
	if !ok {
		rooms = make(map[string]bool)
		s.sessions[connID] = rooms
	}
	rooms[roomID] = true
}

func (s *Service) forget(connID, roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := s.sessions[connID]
	if !rooms[roomID] {
		return false
	}
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(s.sessions, connID)
	}
	return true
}

func (s *Service) joined(connID, roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[connID][roomID]
}
