// Package client connects to a menu room server and keeps a reconciled
// local copy of every joined room: mutations apply optimistically, a
// room_state replaces local state wholesale and a mutation_error rolls back
// exactly the attempt that failed.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/manpreetbhatti/menuroom/internal/catalog"
	"github.com/manpreetbhatti/menuroom/internal/menu"
	"github.com/manpreetbhatti/menuroom/internal/mutation"
	"github.com/manpreetbhatti/menuroom/internal/protocol"
)

const (
	writeWait = 10 * time.Second
	sendQueue = 64
	errQueue  = 64
)

var (
	ErrClosed     = errors.New("client closed")
	ErrNotJoined  = errors.New("room not joined")
	ErrNoDocument = errors.New("room state not received yet")
)

// MutationError is a mutation the server refused. Local state has already
// been rolled back when it is delivered.
type MutationError struct {
	RoomID       string
	AttemptID    string
	MutationType string
	Message      string
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.MutationType, e.Message)
}

// ServerError is a generic error message, such as joining an unknown room.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

type options struct {
	dialer       *websocket.Dialer
	log          *slog.Logger
	now          func() time.Time
	typingWindow time.Duration
	onChange     func(kind protocol.Kind, roomID string)
}

type Option func(*options)

func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTypingWindow sets both the expiry of remote typing signals and the
// silence after which a local typing signal is withdrawn.
func WithTypingWindow(d time.Duration) Option {
	return func(o *options) { o.typingWindow = d }
}

// WithOnChange registers fn to run after every inbound message has been
// applied to local state. It runs on the read goroutine and must not block.
func WithOnChange(fn func(kind protocol.Kind, roomID string)) Option {
	return func(o *options) { o.onChange = fn }
}

type Client struct {
	conn *websocket.Conn
	opts options

	send   chan []byte
	errs   chan error
	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup

	mu     sync.Mutex
	rooms  map[string]*State
	typing map[string]*time.Timer // room -> pending "stopped typing"
}

// Dial opens a connection to the server's websocket endpoint.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := options{
		dialer:       websocket.DefaultDialer,
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:          time.Now,
		typingWindow: DefaultTypingWindow,
	}
	for _, opt := range opts {
		opt(&o)
	}

	conn, _, err := o.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:   conn,
		opts:   o,
		send:   make(chan []byte, sendQueue),
		errs:   make(chan error, errQueue),
		done:   make(chan struct{}),
		rooms:  make(map[string]*State),
		typing: make(map[string]*time.Timer),
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

// Errors delivers mutation and server errors. It is closed when the
// connection ends. Errors are dropped while nobody drains the channel.
func (c *Client) Errors() <-chan error {
	return c.errs
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Join asks to enter roomID. The document arrives asynchronously as a
// room_state; an unknown room comes back as a ServerError.
func (c *Client) Join(roomID, userID, displayName string) error {
	c.mu.Lock()
	if _, ok := c.rooms[roomID]; !ok {
		c.rooms[roomID] = NewState(roomID, c.opts.typingWindow, c.opts.now)
	}
	c.mu.Unlock()

	return c.write(protocol.KindJoinRoom, protocol.JoinRoom{RoomID: roomID, UserID: userID, DisplayName: displayName})
}

func (c *Client) Leave(roomID string) error {
	c.mu.Lock()
	delete(c.rooms, roomID)
	if timer, ok := c.typing[roomID]; ok {
		timer.Stop()
		delete(c.typing, roomID)
	}
	c.mu.Unlock()

	return c.write(protocol.KindLeaveRoom, protocol.LeaveRoom{RoomID: roomID})
}

// Mutate applies transform locally, if any, and sends m. It returns the
// attempt id echoed back by a mutation_error.
func (c *Client) Mutate(roomID, userID string, m mutation.Mutation, transform Transform) (string, error) {
	state := c.state(roomID)
	if state == nil {
		return "", ErrNotJoined
	}

	mutationType, payload, err := mutation.Encode(m)
	if err != nil {
		return "", err
	}

	attemptID := uuid.NewString()
	applied := state.Apply(attemptID, mutationType, transform)

	err = c.write(protocol.KindProcessMutation, protocol.ProcessMutation{
		RoomID:          roomID,
		UserID:          userID,
		MutationType:    mutationType,
		MutationPayload: payload,
		AttemptID:       attemptID,
	})
	if err != nil {
		if applied {
			state.Rollback(attemptID, mutationType)
		}
		return "", err
	}
	return attemptID, nil
}

// Chat appends a chat line, shown locally before the server confirms it.
func (c *Client) Chat(roomID, userID, authorName, text string) (string, error) {
	m := mutation.AppendChatMessage{Text: text, AuthorName: authorName}
	return c.Mutate(roomID, userID, m, Predict(m, userID, catalog.NewMemory()))
}

// SetTyping signals typing to the other members. A true signal is withdrawn
// automatically after the typing window unless refreshed.
func (c *Client) SetTyping(roomID, displayName string, isTyping bool) error {
	if c.state(roomID) == nil {
		return ErrNotJoined
	}

	c.mu.Lock()
	if timer, ok := c.typing[roomID]; ok {
		timer.Stop()
		delete(c.typing, roomID)
	}
	if isTyping {
		var timer *time.Timer
		timer = time.AfterFunc(c.opts.typingWindow, func() {
			c.mu.Lock()
			current := c.typing[roomID] == timer
			if current {
				delete(c.typing, roomID)
			}
			c.mu.Unlock()
			if !current {
				return
			}
			if err := c.write(protocol.KindTyping, protocol.Typing{RoomID: roomID, DisplayName: displayName}); err != nil {
				c.opts.log.Debug("Failed to withdraw typing", "room", roomID, "error", err)
			}
		})
		c.typing[roomID] = timer
	}
	c.mu.Unlock()

	return c.write(protocol.KindTyping, protocol.Typing{RoomID: roomID, DisplayName: displayName, IsTyping: isTyping})
}

func (c *Client) SetPresence(roomID, displayName string, isActive bool) error {
	if c.state(roomID) == nil {
		return ErrNotJoined
	}
	return c.write(protocol.KindUpdatePresence, protocol.UpdatePresence{RoomID: roomID, DisplayName: displayName, IsActive: isActive})
}

// Document returns the local view of roomID, optimistic changes included.
func (c *Client) Document(roomID string) (*menu.Document, error) {
	state := c.state(roomID)
	if state == nil {
		return nil, ErrNotJoined
	}
	doc := state.Document()
	if doc == nil {
		return nil, ErrNoDocument
	}
	return doc, nil
}

func (c *Client) Members(roomID string) []string {
	if state := c.state(roomID); state != nil {
		return state.Members()
	}
	return nil
}

func (c *Client) TypingUsers(roomID string) []string {
	if state := c.state(roomID); state != nil {
		return state.TypingUsers()
	}
	return nil
}

func (c *Client) Pending(roomID string) int {
	if state := c.state(roomID); state != nil {
		return state.Pending()
	}
	return 0
}

// Close ends the connection and waits for its goroutines.
func (c *Client) Close() error {
	c.shutdown()
	// the server may already be gone
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

func (c *Client) shutdown() {
	c.closed.Do(func() {
		close(c.done)
		c.mu.Lock()
		for roomID, timer := range c.typing {
			timer.Stop()
			delete(c.typing, roomID)
		}
		c.mu.Unlock()
	})
}

func (c *Client) state(roomID string) *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[roomID]
}

func (c *Client) write(kind protocol.Kind, data any) error {
	frame, err := protocol.Encode(kind, data)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.opts.log.Warn("Write failed", "error", err)
				c.shutdown()
				c.conn.Close()
				return
			}
		}
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.errs)
	defer c.shutdown()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.opts.log.Warn("Connection lost", "error", err)
			}
			return
		}

		env, err := protocol.Parse(frame)
		if err != nil {
			c.opts.log.Warn("Unreadable message", "error", err)
			continue
		}
		roomID, err := c.handle(env)
		if err != nil {
			c.opts.log.Warn("Bad message payload", "type", env.Type, "error", err)
			continue
		}
		if c.opts.onChange != nil {
			c.opts.onChange(env.Type, roomID)
		}
	}
}

// handle applies one server message and returns the room it concerns.
func (c *Client) handle(env protocol.Envelope) (string, error) {
	switch env.Type {
	case protocol.KindRoomState:
		doc, err := protocol.Unwrap[protocol.RoomState](env)
		if err != nil {
			return "", err
		}
		if state := c.state(doc.RoomID); state != nil {
			state.Replace(&doc)
		}
		return doc.RoomID, nil

	case protocol.KindMutationError:
		failure, err := protocol.Unwrap[protocol.MutationError](env)
		if err != nil {
			return "", err
		}
		if state := c.state(failure.RoomID); state != nil {
			state.Rollback(failure.AttemptID, failure.OriginalMutationType)
		}
		c.report(&MutationError{
			RoomID:       failure.RoomID,
			AttemptID:    failure.AttemptID,
			MutationType: failure.OriginalMutationType,
			Message:      failure.Message,
		})
		return failure.RoomID, nil

	case protocol.KindPresenceSync:
		presence, err := protocol.Unwrap[protocol.PresenceSync](env)
		if err != nil {
			return "", err
		}
		if state := c.state(presence.RoomID); state != nil {
			state.SetMembers(presence.Members)
		}
		return presence.RoomID, nil

	case protocol.KindUserTyping:
		typing, err := protocol.Unwrap[protocol.UserTyping](env)
		if err != nil {
			return "", err
		}
		if state := c.state(typing.RoomID); state != nil {
			state.SetTyping(typing.DisplayName, typing.IsTyping)
		}
		return typing.RoomID, nil

	case protocol.KindUserDisconnected:
		return "", nil

	case protocol.KindError:
		serverErr, err := protocol.Unwrap[protocol.Error](env)
		if err != nil {
			return "", err
		}
		c.report(&ServerError{Message: serverErr.Message})
		return "", nil
	}
	return "", fmt.Errorf("unknown message type %q", env.Type)
}

func (c *Client) report(err error) {
	select {
	case c.errs <- err:
	default:
		c.opts.log.Warn("Error dropped, nobody is reading", "error", err)
	}
}
