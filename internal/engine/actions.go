package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adamavenir/parley/internal/core"
	"github.com/adamavenir/parley/internal/remote"
	"github.com/adamavenir/parley/internal/sidebar"
	"github.com/adamavenir/parley/internal/types"
)

// Send applies draft optimistically and forwards it. The returned message
// stays pending until the server echoes its id; after AckTimeout it is
// marked failed.
func (c *Controller) Send(conversationID string, draft types.Draft) (types.Message, error) {
	if c.transport == nil {
		return types.Message{}, ErrOffline
	}
	msg, err := c.store.SendOptimistic(conversationID, draft)
	if err != nil {
		return types.Message{}, err
	}
	c.forward(msg)
	return msg, nil
}

// Retry re-sends a failed message under its original id.
func (c *Controller) Retry(conversationID, messageID string) (types.Message, error) {
	if c.transport == nil {
		return types.Message{}, ErrOffline
	}
	msg, ok := c.store.Requeue(conversationID, messageID)
	if !ok {
		if _, exists := c.store.Message(conversationID, messageID); !exists {
			return types.Message{}, ErrMessageNotFound
		}
		return types.Message{}, ErrNotFailed
	}
	c.forward(msg)
	return msg, nil
}

// Discard drops an unconfirmed message from the log.
func (c *Controller) Discard(conversationID, messageID string) error {
	c.stopAck(conversationID, messageID)
	if !c.store.Rollback(conversationID, messageID) {
		return ErrMessageNotFound
	}
	return nil
}

func (c *Controller) forward(msg types.Message) {
	c.transport.Send(types.EventMessageSend, types.NewSendPayload(msg))
	c.startAck(msg.ConversationID, msg.ID)
}

func (c *Controller) startAck(conversationID, messageID string) {
	key := ackKey{conversationID, messageID}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if prev, ok := c.acks[key]; ok {
		prev.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(c.opts.AckTimeout, func() {
		c.mu.Lock()
		current := c.acks[key] == timer
		if current {
			delete(c.acks, key)
		}
		c.mu.Unlock()
		if current {
			c.failSend(conversationID, messageID)
		}
	})
	c.acks[key] = timer
}

func (c *Controller) stopAck(conversationID, messageID string) {
	key := ackKey{conversationID, messageID}
	c.mu.Lock()
	if timer, ok := c.acks[key]; ok {
		timer.Stop()
		delete(c.acks, key)
	}
	c.mu.Unlock()
}

func (c *Controller) failSend(conversationID, messageID string) {
	if c.store.MarkFailed(conversationID, messageID) {
		c.metrics.SendFailed()
		c.log.Warn().Str("conversation", conversationID).Str("message", messageID).Msg("send not confirmed, marked failed")
	}
}

// ownMessage returns the message if it exists and was written by self.
func (c *Controller) ownMessage(conversationID, messageID string) (types.Message, error) {
	msg, ok := c.store.Message(conversationID, messageID)
	if !ok {
		return types.Message{}, ErrMessageNotFound
	}
	if msg.SenderID != c.opts.Self.ID {
		return types.Message{}, ErrNotAuthor
	}
	return msg, nil
}

// Edit rewrites one of the user's own messages.
func (c *Controller) Edit(conversationID, messageID, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("edit: empty content")
	}
	if _, err := c.ownMessage(conversationID, messageID); err != nil {
		return err
	}
	editedAt := time.Now().UnixMilli()
	c.store.ApplyEdit(conversationID, messageID, content, editedAt)
	c.emit(types.EventMessageEdit, types.EditPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
		SenderID:       c.opts.Self.ID,
		Content:        content,
		EditedAt:       editedAt,
	})
	return nil
}

// Delete removes one of the user's own messages.
func (c *Controller) Delete(conversationID, messageID string) error {
	if _, err := c.ownMessage(conversationID, messageID); err != nil {
		return err
	}
	c.stopAck(conversationID, messageID)
	c.store.ApplyDelete(conversationID, messageID)
	c.emit(types.EventMessageDelete, types.DeletePayload{
		ConversationID: conversationID,
		MessageID:      messageID,
		SenderID:       c.opts.Self.ID,
	})
	return nil
}

// React adds or removes the user's reaction on a message.
func (c *Controller) React(conversationID, messageID, emoji string, add bool) error {
	if emoji == "" {
		return fmt.Errorf("react: empty emoji")
	}
	if _, ok := c.store.Message(conversationID, messageID); !ok {
		return ErrMessageNotFound
	}
	c.store.ApplyReaction(conversationID, messageID, emoji, c.opts.Self.ID, add)
	c.emit(types.EventMessageReaction, types.ReactionPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
		Emoji:          emoji,
		UserID:         c.opts.Self.ID,
		Add:            add,
	})
	return nil
}

// SetStatus announces the user's presence.
func (c *Controller) SetStatus(presence types.Presence) error {
	switch presence {
	case types.PresenceOnline, types.PresenceIdle, types.PresenceDND, types.PresenceOffline:
	default:
		return fmt.Errorf("unknown presence %q", presence)
	}
	c.emit(types.EventUserStatusUpdate, types.StatusPayload{UserID: c.opts.Self.ID, Presence: presence})
	return nil
}

// Typing reports keyboard activity. At most one typing:start goes out per
// conversation per TypingInterval; it reports whether one was sent.
func (c *Controller) Typing(conversationID string) bool {
	if !c.typing.Allow(conversationID) {
		return false
	}
	c.emit(types.EventTypingStart, types.TypingPayload{ConversationID: conversationID, UserID: c.opts.Self.ID, Typing: true})
	return true
}

// StopTyping ends the typing indicator and resets the rate limit.
func (c *Controller) StopTyping(conversationID string) {
	c.typing.Reset(conversationID)
	c.emit(types.EventTypingStop, types.TypingPayload{ConversationID: conversationID, UserID: c.opts.Self.ID, Typing: false})
}

func (c *Controller) emit(event string, payload any) {
	if c.transport == nil {
		c.metrics.EventDropped(event)
		return
	}
	c.transport.Send(event, payload)
}

// Open makes conversationID the active conversation and clears its unread
// count. An empty id closes the active conversation.
func (c *Controller) Open(conversationID string) error {
	return c.store.SetActive(conversationID)
}

// ConversationList projects the conversation set for display.
func (c *Controller) ConversationList(filter string) sidebar.View {
	return sidebar.Project(c.store.Conversations(), filter)
}

// Messages returns a copy of a conversation log.
func (c *Controller) Messages(conversationID string) []types.Message {
	return c.store.Messages(conversationID)
}

// TypingUsers lists who is typing in a conversation.
func (c *Controller) TypingUsers(conversationID string) []string {
	return c.store.Typing(conversationID)
}

// Mentions resolves the "@" token under the caret against the candidates
// of a conversation. ok is false when the caret is not in a mention.
func (c *Controller) Mentions(conversationID, text string, caret int) (candidates []types.MentionCandidate, trigger core.MentionTrigger, ok bool) {
	trigger, ok = core.FindMentionTrigger(text, caret)
	if !ok {
		return nil, trigger, false
	}
	conv, found := c.store.Conversation(conversationID)
	if !found {
		return nil, trigger, true
	}
	return core.ResolveMentions(core.CandidatesFor(conv, c.opts.Self), trigger.Query), trigger, true
}

// Search queries the service. Without one, or when it is unreachable, the
// local logs are searched instead.
func (c *Controller) Search(ctx context.Context, query, conversationID string, limit, skip int) (remote.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return remote.SearchResult{}, fmt.Errorf("search: empty query")
	}
	if c.remote != nil {
		result, err := c.remote.SearchMessages(ctx, query, conversationID, limit, skip)
		if err == nil {
			return result, nil
		}
		if !remote.IsUnavailable(err) {
			return remote.SearchResult{}, err
		}
		c.log.Warn().Err(err).Msg("search service unavailable, searching locally")
	}
	return c.searchLocal(query, conversationID, limit, skip), nil
}

// searchLocal matches case-insensitively on content, newest first.
func (c *Controller) searchLocal(query, conversationID string, limit, skip int) remote.SearchResult {
	needle := strings.ToLower(query)
	var ids []string
	if conversationID != "" {
		ids = []string{conversationID}
	} else {
		for _, conv := range c.store.Conversations() {
			ids = append(ids, conv.ID)
		}
	}

	var matches []types.Message
	for _, id := range ids {
		for _, msg := range c.store.Messages(id) {
			if strings.Contains(strings.ToLower(msg.Content), needle) {
				matches = append(matches, msg)
			}
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[j].Before(matches[i]) })

	result := remote.SearchResult{Total: len(matches)}
	if skip < 0 {
		skip = 0
	}
	if skip >= len(matches) {
		result.Messages = []types.Message{}
		return result
	}
	matches = matches[skip:]
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	result.Messages = matches
	return result
}
