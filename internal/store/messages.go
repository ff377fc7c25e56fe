package store

import (
	"sort"
	"strings"

	"github.com/adamavenir/parley/internal/types"
	"github.com/google/uuid"
)

// Origin tells ApplyIncoming where a message came from.
type Origin int

const (
	// OriginRemote is a push event or history fetch.
	OriginRemote Origin = iota
	// OriginLocal is the send path of this client.
	OriginLocal
)

// LocalIDPrefix marks IDs synthesized for optimistic sends.
const LocalIDPrefix = "local-"

// ApplyIncoming merges msg into its conversation's log and reports whether
// it was a new insert. An existing entry with the same ID is overwritten in
// place, which makes reapplying a message idempotent and lets the server
// confirm an optimistic echo.
func (s *Store) ApplyIncoming(msg types.Message, origin Origin) bool {
	if msg.ID == "" || msg.ConversationID == "" {
		return false
	}
	s.mu.Lock()
	inserted := s.applyLocked(msg.Clone(), origin)
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeMessages, ConversationID: msg.ConversationID, MessageID: msg.ID})
	return inserted
}

func (s *Store) applyLocked(msg types.Message, origin Origin) bool {
	if origin == OriginRemote || msg.Status == "" {
		msg.Status = types.MessageStatusSent
	}
	conv := s.ensureConversationLocked(msg.ConversationID, msg)
	log := s.logs[conv.ID]

	inserted := false
	if idx := indexOf(log, msg.ID); idx >= 0 {
		prev := log[idx]
		msg.Local = msg.Local || prev.Local
		if msg.Reactions == nil {
			msg.Reactions = prev.Reactions
		}
		log[idx] = msg
		if prev.TS != msg.TS {
			sortLog(log)
		}
	} else {
		log = append(log, msg)
		sortLog(log)
		inserted = true
	}
	s.logs[conv.ID] = log
	s.refreshLastLocked(conv)

	switch {
	case origin == OriginLocal:
		conv.Unread = 0
	case inserted && conv.ID != s.active && msg.SenderID != s.self.ID:
		conv.Unread++
	}
	delete(s.typing[conv.ID], msg.SenderID)
	return inserted
}

// ApplyEdit replaces a message's content. It is a no-op returning false when
// the message is absent.
func (s *Store) ApplyEdit(conversationID, messageID, content string, editedAt int64) bool {
	s.mu.Lock()
	log := s.logs[conversationID]
	idx := indexOf(log, messageID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	log[idx].Content = content
	log[idx].Edited = true
	if editedAt == 0 {
		editedAt = s.now().UnixMilli()
	}
	log[idx].EditedAt = &editedAt
	s.refreshLastLocked(s.convs[conversationID])
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeMessages, ConversationID: conversationID, MessageID: messageID})
	return true
}

// ApplyDelete removes a message and recomputes the conversation's last
// message from the new tail. It is a no-op returning false when absent.
func (s *Store) ApplyDelete(conversationID, messageID string) bool {
	s.mu.Lock()
	log := s.logs[conversationID]
	idx := indexOf(log, messageID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.logs[conversationID] = append(log[:idx], log[idx+1:]...)
	s.refreshLastLocked(s.convs[conversationID])
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeMessages, ConversationID: conversationID, MessageID: messageID})
	return true
}

// SendOptimistic synthesizes a pending local message from draft, applies it
// immediately, and returns it for forwarding. The store never times out or
// retries the message; callers confirm, fail, or roll it back by ID.
func (s *Store) SendOptimistic(conversationID string, draft types.Draft) (types.Message, error) {
	if strings.TrimSpace(draft.Content) == "" && len(draft.Attachments) == 0 {
		return types.Message{}, ErrEmptyDraft
	}

	s.mu.Lock()
	ts := s.now().UnixMilli()
	if log := s.logs[conversationID]; len(log) > 0 && log[len(log)-1].TS >= ts {
		ts = log[len(log)-1].TS + 1
	}
	msg := types.Message{
		ID:             LocalIDPrefix + uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       s.self.ID,
		SenderName:     s.self.Name,
		SenderAvatar:   s.self.Avatar,
		Content:        draft.Content,
		Attachments:    append([]types.Attachment(nil), draft.Attachments...),
		TS:             ts,
		ReplyTo:        draft.ReplyTo,
		Status:         types.MessageStatusPending,
		Local:          true,
	}
	if len(msg.Attachments) == 0 {
		msg.Attachments = nil
	}
	s.applyLocked(msg.Clone(), OriginLocal)
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeMessages, ConversationID: conversationID, MessageID: msg.ID})
	return msg, nil
}

// Confirm marks a message as sent.
func (s *Store) Confirm(conversationID, messageID string) bool {
	return s.setStatus(conversationID, messageID, types.MessageStatusSent, "")
}

// MarkFailed marks a pending message as failed. Messages that were already
// confirmed are left alone.
func (s *Store) MarkFailed(conversationID, messageID string) bool {
	return s.setStatus(conversationID, messageID, types.MessageStatusFailed, types.MessageStatusPending)
}

// Requeue moves a failed message back to pending and returns it for
// re-sending under the same ID.
func (s *Store) Requeue(conversationID, messageID string) (types.Message, bool) {
	if !s.setStatus(conversationID, messageID, types.MessageStatusPending, types.MessageStatusFailed) {
		return types.Message{}, false
	}
	return s.Message(conversationID, messageID)
}

// Rollback removes an optimistic message that will never be confirmed.
func (s *Store) Rollback(conversationID, messageID string) bool {
	return s.ApplyDelete(conversationID, messageID)
}

func (s *Store) setStatus(conversationID, messageID string, status, from types.MessageStatus) bool {
	s.mu.Lock()
	log := s.logs[conversationID]
	idx := indexOf(log, messageID)
	if idx < 0 || (from != "" && log[idx].Status != from) {
		s.mu.Unlock()
		return false
	}
	log[idx].Status = status
	s.refreshLastLocked(s.convs[conversationID])
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeMessages, ConversationID: conversationID, MessageID: messageID})
	return true
}

// ApplyReaction adds or removes userID's emoji reaction on a message.
func (s *Store) ApplyReaction(conversationID, messageID, emoji, userID string, add bool) bool {
	if emoji == "" || userID == "" {
		return false
	}
	s.mu.Lock()
	log := s.logs[conversationID]
	idx := indexOf(log, messageID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	msg := &log[idx]
	users := msg.Reactions[emoji]
	pos := -1
	for i, id := range users {
		if id == userID {
			pos = i
			break
		}
	}
	changed := false
	switch {
	case add && pos < 0:
		if msg.Reactions == nil {
			msg.Reactions = make(map[string][]string)
		}
		msg.Reactions[emoji] = append(users, userID)
		changed = true
	case !add && pos >= 0:
		users = append(users[:pos], users[pos+1:]...)
		if len(users) == 0 {
			delete(msg.Reactions, emoji)
		} else {
			msg.Reactions[emoji] = users
		}
		changed = true
	}
	if changed {
		s.refreshLastLocked(s.convs[conversationID])
	}
	s.mu.Unlock()

	if changed {
		s.publish(Change{Kind: ChangeMessages, ConversationID: conversationID, MessageID: messageID})
	}
	return changed
}

// SetTyping records whether userID is typing in a conversation. Typing state
// is never persisted.
func (s *Store) SetTyping(conversationID, userID string, typing bool) {
	s.mu.Lock()
	users := s.typing[conversationID]
	_, was := users[userID]
	if typing == was {
		s.mu.Unlock()
		return
	}
	if typing {
		if users == nil {
			users = make(map[string]struct{})
			s.typing[conversationID] = users
		}
		users[userID] = struct{}{}
	} else {
		delete(users, userID)
	}
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeTyping, ConversationID: conversationID})
}

// Typing returns the users currently typing in a conversation, sorted.
func (s *Store) Typing(conversationID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.typing[conversationID]))
	for id := range s.typing[conversationID] {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}
