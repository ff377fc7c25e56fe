// Package store holds the authoritative in-memory conversation set and the
// ordered message log of every conversation.
//
// A Store is created once per session and shared by handle. All mutations go
// through its methods and are serialized by one mutex. Subscribers are told
// about each committed mutation after the lock is released; persistence is
// one such subscriber and only ever reads snapshots.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/adamavenir/parley/internal/types"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrSelfConversation is returned when deleting the self conversation.
	ErrSelfConversation = errors.New("self conversation cannot be deleted")
	// ErrEmptyDraft is returned when sending a draft with no content.
	ErrEmptyDraft = errors.New("draft has no content or attachments")
)

// ChangeKind describes what a committed mutation touched.
type ChangeKind string

const (
	ChangeMessages     ChangeKind = "messages"
	ChangeConversation ChangeKind = "conversation"
	ChangeRemoved      ChangeKind = "removed"
	ChangeTyping       ChangeKind = "typing"
	ChangeLoaded       ChangeKind = "loaded"
)

// Change is delivered to subscribers after a mutation commits.
type Change struct {
	Kind           ChangeKind
	ConversationID string
	MessageID      string
}

// Persistent reports whether the change alters state that is mirrored to disk.
func (c Change) Persistent() bool {
	return c.Kind != ChangeTyping
}

// Store is the message store for one session.
type Store struct {
	mu     sync.Mutex
	self   types.Member
	convs  map[string]*types.Conversation
	order  []string
	logs   map[string][]types.Message
	active string
	typing map[string]map[string]struct{}

	subs    map[int]func(Change)
	nextSub int

	now func() time.Time
}

// New creates a store for the given local user. The self conversation is
// created immediately.
func New(self types.Member) *Store {
	s := &Store{
		self:   self,
		convs:  make(map[string]*types.Conversation),
		logs:   make(map[string][]types.Message),
		typing: make(map[string]map[string]struct{}),
		subs:   make(map[int]func(Change)),
		now:    time.Now,
	}
	s.ensureSelfLocked()
	return s
}

// Self returns the local user.
func (s *Store) Self() types.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Subscribe registers fn for change notifications. The returned func removes
// it; calling it more than once is harmless.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) publish(change Change) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// Conversations returns copies of all conversations in insertion order.
func (s *Store) Conversations() []types.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.convs[id].Clone())
	}
	return out
}

// Conversation returns a copy of one conversation.
func (s *Store) Conversation(id string) (types.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return types.Conversation{}, false
	}
	return conv.Clone(), true
}

// Messages returns a copy of a conversation's log in order.
func (s *Store) Messages(conversationID string) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLog(s.logs[conversationID])
}

// Message returns a copy of one message.
func (s *Store) Message(conversationID, messageID string) (types.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := indexOf(s.logs[conversationID], messageID)
	if idx < 0 {
		return types.Message{}, false
	}
	return s.logs[conversationID][idx].Clone(), true
}

// Active returns the active conversation ID, if any.
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Snapshot returns a deep copy of the persistent state.
func (s *Store) Snapshot() types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := types.Snapshot{
		Conversations: make([]types.Conversation, 0, len(s.order)),
		Messages:      make(map[string][]types.Message, len(s.logs)),
	}
	for _, id := range s.order {
		snap.Conversations = append(snap.Conversations, s.convs[id].Clone())
	}
	for id, log := range s.logs {
		if len(log) == 0 {
			continue
		}
		snap.Messages[id] = cloneLog(log)
	}
	return snap
}

// Load replaces the store contents with snap. Duplicate IDs in a log keep
// the last occurrence, logs are re-sorted, and the self conversation is
// recreated if the snapshot lacks it. Messages of conversations that are not
// in the snapshot create those conversations.
func (s *Store) Load(snap types.Snapshot) {
	s.mu.Lock()
	s.convs = make(map[string]*types.Conversation, len(snap.Conversations))
	s.order = s.order[:0]
	s.logs = make(map[string][]types.Message, len(snap.Messages))
	s.typing = make(map[string]map[string]struct{})
	s.active = ""

	for _, conv := range snap.Conversations {
		if conv.ID == "" {
			continue
		}
		if _, dup := s.convs[conv.ID]; !dup {
			s.order = append(s.order, conv.ID)
		}
		copied := conv.Clone()
		s.convs[conv.ID] = &copied
	}
	for convID, log := range snap.Messages {
		log = dedupeLog(log)
		if len(log) == 0 {
			continue
		}
		for i := range log {
			log[i].ConversationID = convID
		}
		conv := s.ensureConversationLocked(convID, log[len(log)-1])
		s.logs[convID] = log
		s.refreshLastLocked(conv)
	}
	s.ensureSelfLocked()
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeLoaded})
}

func (s *Store) ensureSelfLocked() *types.Conversation {
	if conv, ok := s.convs[types.SelfConversationID]; ok {
		conv.Kind = types.ConversationSelf
		return conv
	}
	name := s.self.Name
	if name == "" {
		name = "Notes"
	}
	conv := &types.Conversation{
		ID:     types.SelfConversationID,
		Name:   name,
		Avatar: s.self.Avatar,
		Kind:   types.ConversationSelf,
	}
	s.convs[conv.ID] = conv
	s.order = append([]string{conv.ID}, s.order...)
	return conv
}

// ensureConversationLocked returns the conversation for id, creating a direct
// conversation from the message's sender on first contact.
func (s *Store) ensureConversationLocked(id string, seed types.Message) *types.Conversation {
	if conv, ok := s.convs[id]; ok {
		return conv
	}
	if id == types.SelfConversationID {
		return s.ensureSelfLocked()
	}
	conv := &types.Conversation{
		ID:        id,
		Name:      id,
		Kind:      types.ConversationDirect,
		CreatedAt: seed.TS,
	}
	if seed.SenderID == id && seed.SenderName != "" {
		conv.Name = seed.SenderName
		conv.Avatar = seed.SenderAvatar
	}
	s.convs[id] = conv
	s.order = append(s.order, id)
	return conv
}

// refreshLastLocked recomputes the last-message snapshot from the log tail.
func (s *Store) refreshLastLocked(conv *types.Conversation) {
	log := s.logs[conv.ID]
	if len(log) == 0 {
		conv.LastMessage = nil
		return
	}
	last := log[len(log)-1].Clone()
	conv.LastMessage = &last
}

func indexOf(log []types.Message, id string) int {
	for i := range log {
		if log[i].ID == id {
			return i
		}
	}
	return -1
}

func sortLog(log []types.Message) {
	sort.SliceStable(log, func(i, j int) bool { return log[i].Before(log[j]) })
}

func cloneLog(log []types.Message) []types.Message {
	out := make([]types.Message, len(log))
	for i := range log {
		out[i] = log[i].Clone()
	}
	return out
}

func dedupeLog(log []types.Message) []types.Message {
	out := make([]types.Message, 0, len(log))
	seen := make(map[string]int, len(log))
	for _, msg := range log {
		if msg.ID == "" {
			continue
		}
		if idx, ok := seen[msg.ID]; ok {
			out[idx] = msg.Clone()
			continue
		}
		seen[msg.ID] = len(out)
		out = append(out, msg.Clone())
	}
	sortLog(out)
	return out
}
