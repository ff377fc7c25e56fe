package types

// SelfConversationID is the reserved conversation ID for the self-chat.
const SelfConversationID = "@self"

// ConversationKind describes who participates in a conversation.
type ConversationKind string

const (
	ConversationDirect  ConversationKind = "direct"
	ConversationGroup   ConversationKind = "group"
	ConversationChannel ConversationKind = "channel"
	ConversationSelf    ConversationKind = "self"
)

// Presence is the reported status of a user.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceIdle    Presence = "idle"
	PresenceDND     Presence = "dnd"
	PresenceOffline Presence = "offline"
)

// MessageStatus tracks delivery of a message sent by this client.
type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusFailed  MessageStatus = "failed"
)

// Attachment describes a file attached to a message.
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`
	URL       string `json:"url"`
}

// Message is one entry in a conversation log.
type Message struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversation_id"`
	SenderID       string              `json:"sender_id"`
	SenderName     string              `json:"sender_name,omitempty"`
	SenderAvatar   string              `json:"sender_avatar,omitempty"`
	Content        string              `json:"content"`
	Attachments    []Attachment        `json:"attachments,omitempty"`
	TS             int64               `json:"ts"`
	Edited         bool                `json:"edited,omitempty"`
	EditedAt       *int64              `json:"edited_at,omitempty"`
	ReplyTo        *string             `json:"reply_to,omitempty"`
	Reactions      map[string][]string `json:"reactions,omitempty"`
	Status         MessageStatus       `json:"status,omitempty"`
	Local          bool                `json:"local,omitempty"`
}

// Before reports whether m sorts before other in a conversation log.
func (m Message) Before(other Message) bool {
	if m.TS != other.TS {
		return m.TS < other.TS
	}
	return m.ID < other.ID
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.EditedAt != nil {
		value := *m.EditedAt
		out.EditedAt = &value
	}
	if m.ReplyTo != nil {
		value := *m.ReplyTo
		out.ReplyTo = &value
	}
	if m.Reactions != nil {
		out.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, users := range m.Reactions {
			out.Reactions[emoji] = append([]string(nil), users...)
		}
	}
	return out
}

// Draft is the user-authored part of a message before it is sent.
type Draft struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyTo     *string      `json:"reply_to,omitempty"`
}

// Member is a participant of a group or channel conversation.
type Member struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Avatar   string   `json:"avatar,omitempty"`
	Presence Presence `json:"presence,omitempty"`
	RoleIDs  []string `json:"role_ids,omitempty"`
}

// Role is a server-scoped role that can be mentioned.
type Role struct {
	ID       string `json:"id"`
	ServerID string `json:"server_id,omitempty"`
	Name     string `json:"name"`
	Color    string `json:"color,omitempty"`
}

// Channel is a server-scoped channel.
type Channel struct {
	ID       string `json:"id"`
	ServerID string `json:"server_id,omitempty"`
	Name     string `json:"name"`
	Topic    string `json:"topic,omitempty"`
}

// Conversation is a direct, group, channel, or self message thread.
type Conversation struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Avatar      string           `json:"avatar,omitempty"`
	Kind        ConversationKind `json:"kind"`
	ServerID    string           `json:"server_id,omitempty"`
	Unread      int              `json:"unread"`
	Pinned      bool             `json:"pinned,omitempty"`
	Muted       bool             `json:"muted,omitempty"`
	Hidden      bool             `json:"hidden,omitempty"`
	Presence    Presence         `json:"presence,omitempty"`
	LastMessage *Message         `json:"last_message,omitempty"`
	CreatedAt   int64            `json:"created_at"`
	Members     []Member         `json:"members,omitempty"`
	Roles       []Role           `json:"roles,omitempty"`
	Channels    []Channel        `json:"channels,omitempty"`
}

// LastActivity returns the timestamp used to order conversations by recency.
func (c Conversation) LastActivity() int64 {
	if c.LastMessage != nil && c.LastMessage.TS > c.CreatedAt {
		return c.LastMessage.TS
	}
	return c.CreatedAt
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	out := c
	if c.LastMessage != nil {
		last := c.LastMessage.Clone()
		out.LastMessage = &last
	}
	if c.Members != nil {
		out.Members = make([]Member, len(c.Members))
		for i, member := range c.Members {
			member.RoleIDs = append([]string(nil), member.RoleIDs...)
			out.Members[i] = member
		}
	}
	if c.Roles != nil {
		out.Roles = append([]Role(nil), c.Roles...)
	}
	if c.Channels != nil {
		out.Channels = append([]Channel(nil), c.Channels...)
	}
	return out
}

// Snapshot is a point-in-time copy of the store used for persistence.
type Snapshot struct {
	Conversations []Conversation       `json:"conversations"`
	Messages      map[string][]Message `json:"messages"`
}

// Empty reports whether the snapshot carries neither conversations nor any
// logged message.
func (s Snapshot) Empty() bool {
	if len(s.Conversations) > 0 {
		return false
	}
	for _, log := range s.Messages {
		if len(log) > 0 {
			return false
		}
	}
	return true
}

// MentionKind classifies a mention candidate.
type MentionKind string

const (
	MentionPerson  MentionKind = "person"
	MentionRole    MentionKind = "role"
	MentionChannel MentionKind = "channel"
)

// MentionCandidate is something that can be inserted after an "@".
type MentionCandidate struct {
	Kind     MentionKind `json:"kind"`
	ID       string      `json:"id"`
	Label    string      `json:"label"`
	Presence Presence    `json:"presence,omitempty"`
	Avatar   string      `json:"avatar,omitempty"`
}
