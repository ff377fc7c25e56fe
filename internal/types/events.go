package types

// Event names carried over the duplex channel.
const (
	// client -> server
	EventUserOnline       = "user:online"
	EventMessageSend      = "message:send"
	EventUserStatusUpdate = "user:status:update"
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"

	// both directions
	EventMessageEdit     = "message:edit"
	EventMessageDelete   = "message:delete"
	EventMessageReaction = "message:reaction"

	// server -> client
	EventMessageReceive    = "message:receive"
	EventUserStatus        = "user:status"
	EventUserProfileUpdate = "user:profile:update"
	EventUserTyping        = "user:typing"
	EventNotificationNew   = "notification:new"
)

// OnlinePayload announces presence after connecting.
type OnlinePayload struct {
	UserID string `json:"user_id"`
}

// SendPayload is a new message as it goes out on message:send. Delivery
// status and the local flag stay on the client.
type SendPayload struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	SenderName     string       `json:"sender_name,omitempty"`
	SenderAvatar   string       `json:"sender_avatar,omitempty"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	TS             int64        `json:"ts"`
	ReplyTo        *string      `json:"reply_to,omitempty"`
}

// NewSendPayload builds the wire form of an optimistic message.
func NewSendPayload(msg Message) SendPayload {
	return SendPayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		SenderAvatar:   msg.SenderAvatar,
		Content:        msg.Content,
		Attachments:    msg.Attachments,
		TS:             msg.TS,
		ReplyTo:        msg.ReplyTo,
	}
}

// EditPayload carries a message edit.
type EditPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SenderID       string `json:"sender_id,omitempty"`
	Content        string `json:"content"`
	EditedAt       int64  `json:"edited_at,omitempty"`
}

// DeletePayload carries a message deletion.
type DeletePayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SenderID       string `json:"sender_id,omitempty"`
}

// ReactionPayload adds or removes a reaction.
type ReactionPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Emoji          string `json:"emoji"`
	UserID         string `json:"user_id"`
	Add            bool   `json:"add"`
}

// StatusPayload reports or updates a user's presence.
type StatusPayload struct {
	UserID   string   `json:"user_id,omitempty"`
	Presence Presence `json:"presence"`
}

// ProfilePayload reports a profile change.
type ProfilePayload struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// TypingPayload reports typing activity.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
	Typing         bool   `json:"typing"`
}

// NotificationPayload is a server-generated notification.
type NotificationPayload struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	ConversationID string `json:"conversation_id,omitempty"`
}
