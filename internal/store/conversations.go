package store

import (
	"github.com/adamavenir/parley/internal/types"
)

// UpsertConversation inserts a conversation or replaces the metadata of an
// existing one. The unread counter of an existing conversation is kept, and
// the last-message snapshot stays derived from the log when one exists.
func (s *Store) UpsertConversation(conv types.Conversation) {
	if conv.ID == "" {
		return
	}
	s.mu.Lock()
	next := conv.Clone()
	if next.ID == types.SelfConversationID {
		next.Kind = types.ConversationSelf
	}
	if prev, ok := s.convs[next.ID]; ok {
		next.Unread = prev.Unread
		if next.LastMessage == nil {
			next.LastMessage = prev.LastMessage
		}
		*prev = next
		s.refreshLastIfLoggedLocked(prev)
	} else {
		s.convs[next.ID] = &next
		s.order = append(s.order, next.ID)
		s.refreshLastIfLoggedLocked(&next)
	}
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeConversation, ConversationID: conv.ID})
}

func (s *Store) refreshLastIfLoggedLocked(conv *types.Conversation) {
	if len(s.logs[conv.ID]) > 0 {
		s.refreshLastLocked(conv)
	}
}

// DeleteConversation removes a conversation and its log.
func (s *Store) DeleteConversation(id string) error {
	if id == types.SelfConversationID {
		return ErrSelfConversation
	}
	s.mu.Lock()
	if _, ok := s.convs[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.convs, id)
	delete(s.logs, id)
	delete(s.typing, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.active == id {
		s.active = ""
	}
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeRemoved, ConversationID: id})
	return nil
}

// Pin sets the pinned flag.
func (s *Store) Pin(id string, pinned bool) error {
	return s.update(id, func(conv *types.Conversation) { conv.Pinned = pinned })
}

// Mute sets the muted flag.
func (s *Store) Mute(id string, muted bool) error {
	return s.update(id, func(conv *types.Conversation) { conv.Muted = muted })
}

// Hide sets the hidden flag.
func (s *Store) Hide(id string, hidden bool) error {
	return s.update(id, func(conv *types.Conversation) { conv.Hidden = hidden })
}

// SetMembers replaces the mention snapshot of a group or channel
// conversation.
func (s *Store) SetMembers(id string, members []types.Member, roles []types.Role, channels []types.Channel) error {
	copied := types.Conversation{Members: members, Roles: roles, Channels: channels}.Clone()
	return s.update(id, func(conv *types.Conversation) {
		conv.Members = copied.Members
		conv.Roles = copied.Roles
		conv.Channels = copied.Channels
	})
}

// SetActive marks the conversation the user is looking at and clears its
// unread counter. An empty id clears the active conversation.
func (s *Store) SetActive(id string) error {
	if id == "" {
		s.mu.Lock()
		s.active = ""
		s.mu.Unlock()
		return nil
	}
	return s.update(id, func(conv *types.Conversation) {
		s.active = conv.ID
		conv.Unread = 0
	})
}

// MarkRead clears a conversation's unread counter.
func (s *Store) MarkRead(id string) error {
	return s.update(id, func(conv *types.Conversation) { conv.Unread = 0 })
}

// SetPresence updates a user's presence on their direct conversation and on
// every member list that includes them.
func (s *Store) SetPresence(userID string, presence types.Presence) {
	s.forEachUser(userID, func(conv *types.Conversation, member *types.Member) {
		if member != nil {
			member.Presence = presence
			return
		}
		conv.Presence = presence
	})
}

// ApplyProfile updates a user's display name and avatar wherever the store
// shows them. Empty values are left unchanged. Sender snapshots on existing
// messages are not rewritten.
func (s *Store) ApplyProfile(userID, name, avatar string) {
	s.forEachUser(userID, func(conv *types.Conversation, member *types.Member) {
		if member != nil {
			if name != "" {
				member.Name = name
			}
			if avatar != "" {
				member.Avatar = avatar
			}
			return
		}
		if name != "" {
			conv.Name = name
		}
		if avatar != "" {
			conv.Avatar = avatar
		}
	})
}

// forEachUser calls fn for the user's direct conversation (member nil) and
// for each member entry of theirs, publishing one change per conversation
// touched.
func (s *Store) forEachUser(userID string, fn func(conv *types.Conversation, member *types.Member)) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	var touched []string
	for _, id := range s.order {
		conv := s.convs[id]
		hit := false
		if conv.Kind == types.ConversationDirect && conv.ID == userID {
			fn(conv, nil)
			hit = true
		}
		for i := range conv.Members {
			if conv.Members[i].ID == userID {
				fn(conv, &conv.Members[i])
				hit = true
			}
		}
		if hit {
			touched = append(touched, id)
		}
	}
	s.mu.Unlock()

	for _, id := range touched {
		s.publish(Change{Kind: ChangeConversation, ConversationID: id})
	}
}

func (s *Store) update(id string, fn func(conv *types.Conversation)) error {
	s.mu.Lock()
	conv, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	fn(conv)
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeConversation, ConversationID: id})
	return nil
}
