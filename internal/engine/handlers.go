package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adamavenir/parley/internal/core"
	"github.com/adamavenir/parley/internal/store"
	"github.com/adamavenir/parley/internal/types"
)

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func (c *Controller) handleReceive(data json.RawMessage) error {
	var msg types.Message
	if err := decode(data, &msg); err != nil {
		return err
	}
	if msg.ID == "" {
		return errors.New("message without id")
	}
	msg.ConversationID = c.conversationFor(msg.ConversationID, msg.SenderID)
	c.stopAck(msg.ConversationID, msg.ID)

	if !c.store.ApplyIncoming(msg, store.OriginRemote) {
		return nil
	}
	c.maybeNotify(msg)
	return nil
}

func (c *Controller) handleEdit(data json.RawMessage) error {
	var p types.EditPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	conv := c.conversationFor(p.ConversationID, p.SenderID)
	if !c.store.ApplyEdit(conv, p.MessageID, p.Content, p.EditedAt) {
		c.log.Debug().Str("conversation", conv).Str("message", p.MessageID).Msg("edit for unknown message")
	}
	return nil
}

func (c *Controller) handleDelete(data json.RawMessage) error {
	var p types.DeletePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	conv := c.conversationFor(p.ConversationID, p.SenderID)
	c.stopAck(conv, p.MessageID)
	c.store.ApplyDelete(conv, p.MessageID)
	return nil
}

func (c *Controller) handleReaction(data json.RawMessage) error {
	var p types.ReactionPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	conv := c.conversationFor(p.ConversationID, p.UserID)
	c.store.ApplyReaction(conv, p.MessageID, p.Emoji, p.UserID, p.Add)
	return nil
}

func (c *Controller) handleStatus(data json.RawMessage) error {
	var p types.StatusPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.UserID == "" {
		return errors.New("status without user")
	}
	c.store.SetPresence(p.UserID, p.Presence)
	return nil
}

func (c *Controller) handleProfile(data json.RawMessage) error {
	var p types.ProfilePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.UserID == "" {
		return errors.New("profile without user")
	}
	c.store.ApplyProfile(p.UserID, p.Name, p.Avatar)
	return nil
}

func (c *Controller) handleTyping(data json.RawMessage) error {
	var p types.TypingPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.UserID == "" || p.UserID == c.opts.Self.ID {
		return nil
	}
	c.store.SetTyping(c.conversationFor(p.ConversationID, p.UserID), p.UserID, p.Typing)
	return nil
}

func (c *Controller) handleNotification(data json.RawMessage) error {
	var p types.NotificationPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.ConversationID != "" {
		if conv, ok := c.store.Conversation(p.ConversationID); ok && conv.Muted {
			return nil
		}
	}
	c.deliver(p.Title, p.Body)
	return nil
}

// maybeNotify alerts on a new message that mentions the local user, unless
// the conversation is open or muted.
func (c *Controller) maybeNotify(msg types.Message) {
	self := c.opts.Self
	if msg.SenderID == self.ID || msg.ConversationID == c.store.Active() {
		return
	}
	conv, ok := c.store.Conversation(msg.ConversationID)
	if !ok || conv.Muted {
		return
	}
	if !core.MentionsUser(msg.Content, self.Name) && !core.MentionsUser(msg.Content, self.ID) {
		return
	}
	sender := msg.SenderName
	if sender == "" {
		sender = msg.SenderID
	}
	title := "@" + sender
	if conv.Kind != types.ConversationDirect && conv.Name != "" {
		title = conv.Name + " · " + title
	}
	c.deliver(title, msg.Content)
}

func (c *Controller) deliver(title, body string) {
	if err := c.notifier.Notify(title, body); err != nil {
		c.log.Warn().Err(err).Msg("desktop notification failed")
	}
}
