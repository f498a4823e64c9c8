package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/manpreetbhatti/menuroom/internal/catalog"
	"github.com/manpreetbhatti/menuroom/internal/menu"
	"github.com/manpreetbhatti/menuroom/internal/mutation"
)

// DefaultTypingWindow is how long a typing signal stays visible without a
// refresh.
const DefaultTypingWindow = 3 * time.Second

// Transform speculatively applies a mutation to a private copy of the last
// known document. Returning nil leaves the document unchanged.
type Transform func(doc *menu.Document) *menu.Document

// Predict builds a Transform that runs the server's own interpreter locally.
// A mutation the interpreter would reject leaves the document unchanged, so
// the server's mutation_error is what the user sees.
func Predict(m mutation.Mutation, actorID string, lookup catalog.Lookup) Transform {
	interpreter := mutation.NewInterpreter(lookup, time.Now)
	return func(doc *menu.Document) *menu.Document {
		next, err := interpreter.Apply(context.Background(), doc, m, actorID)
		if err != nil {
			return nil
		}
		return next
	}
}

type attempt struct {
	id           string
	mutationType string
	snapshot     *menu.Document
	transform    Transform
}

// State is one room as seen by a client: the last known document with any
// optimistic changes on top, the member list and who is typing.
type State struct {
	roomID       string
	typingWindow time.Duration
	now          func() time.Time

	mu      sync.Mutex
	doc     *menu.Document
	pending []attempt
	members []string
	typing  map[string]time.Time // display name -> last signal
}

func NewState(roomID string, typingWindow time.Duration, now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	if typingWindow <= 0 {
		typingWindow = DefaultTypingWindow
	}
	return &State{
		roomID:       roomID,
		typingWindow: typingWindow,
		now:          now,
		typing:       make(map[string]time.Time),
	}
}

func (s *State) RoomID() string {
	return s.roomID
}

// Document returns a copy of the current local document, or nil before the
// first room_state.
func (s *State) Document() *menu.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Pending returns the number of optimistic attempts not yet resolved.
func (s *State) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Apply runs transform on the local document and remembers the document as
// it was before, keyed by attemptID. It reports false when there is nothing
// to transform yet.
func (s *State) Apply(attemptID, mutationType string, transform Transform) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil || transform == nil {
		return false
	}
	a := attempt{id: attemptID, mutationType: mutationType, transform: transform}
	s.doc = s.advance(&a, s.doc)
	s.pending = append(s.pending, a)
	return true
}

// Replace installs an authoritative document. Every pending attempt is
// dropped: the server's view wins over any speculation, acknowledged or not.
func (s *State) Replace(doc *menu.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc.Clone()
	s.pending = nil
}

// Rollback undoes one failed attempt. It is found by attemptID, or, when the
// server did not echo one, as the oldest pending attempt of mutationType.
// Attempts made after it are replayed on the restored snapshot, so only the
// failed change disappears.
func (s *State) Rollback(attemptID, mutationType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.find(attemptID, mutationType)
	if i < 0 {
		return false
	}

	doc := s.pending[i].snapshot
	later := append([]attempt(nil), s.pending[i+1:]...)
	s.pending = s.pending[:i]
	for _, a := range later {
		doc = s.advance(&a, doc)
		s.pending = append(s.pending, a)
	}
	s.doc = doc
	return true
}

func (s *State) find(attemptID, mutationType string) int {
	for i, a := range s.pending {
		if attemptID != "" && a.id == attemptID {
			return i
		}
	}
	if attemptID != "" {
		return -1
	}
	for i, a := range s.pending {
		if a.mutationType == mutationType {
			return i
		}
	}
	return -1
}

// advance records doc as the attempt's snapshot and returns the transformed
// successor. The transform never gets to keep a reference to stored state.
func (s *State) advance(a *attempt, doc *menu.Document) *menu.Document {
	a.snapshot = doc.Clone()
	if next := a.transform(doc.Clone()); next != nil {
		return next.Clone()
	}
	return doc
}

func (s *State) SetMembers(members []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = append([]string(nil), members...)
}

func (s *State) Members() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.members...)
}

// SetTyping records a typing signal from another member.
func (s *State) SetTyping(displayName string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isTyping {
		s.typing[displayName] = s.now()
	} else {
		delete(s.typing, displayName)
	}
}

// TypingUsers returns, sorted, the members whose last typing signal is
// younger than the typing window. Expired entries are forgotten.
func (s *State) TypingUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.typingWindow)
	names := make([]string, 0, len(s.typing))
	for name, at := range s.typing {
		if at.Before(cutoff) {
			delete(s.typing, name)
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
