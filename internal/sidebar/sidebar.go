// Package sidebar derives the conversation list shown next to the chat.
package sidebar

import (
	"sort"
	"strings"

	"github.com/adamavenir/parley/internal/types"
)

// View is the projected conversation list.
type View struct {
	Visible     []types.Conversation
	Hidden      []types.Conversation
	TotalUnread int
}

// Project partitions conversations by the hidden flag and a case-insensitive
// name filter, then orders the visible ones pinned first and most recent
// activity next. Ties keep input order. Input is not modified. Muted
// conversations do not count toward TotalUnread.
func Project(conversations []types.Conversation, filter string) View {
	term := strings.ToLower(strings.TrimSpace(filter))
	view := View{
		Visible: make([]types.Conversation, 0, len(conversations)),
	}
	for _, conv := range conversations {
		if !conv.Muted && !conv.Hidden {
			view.TotalUnread += conv.Unread
		}
		if !matchesFilter(conv, term) {
			continue
		}
		if conv.Hidden {
			view.Hidden = append(view.Hidden, conv.Clone())
			continue
		}
		view.Visible = append(view.Visible, conv.Clone())
	}

	sort.SliceStable(view.Visible, func(i, j int) bool {
		a, b := view.Visible[i], view.Visible[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		return a.LastActivity() > b.LastActivity()
	})
	return view
}

func matchesFilter(conv types.Conversation, term string) bool {
	if term == "" {
		return true
	}
	name := conv.Name
	if name == "" {
		name = conv.ID
	}
	return strings.Contains(strings.ToLower(name), term)
}

// Preview returns a one-line summary of the conversation's last message cut
// to at most width runes. A width of zero or less disables truncation.
func Preview(conv types.Conversation, width int) string {
	last := conv.LastMessage
	if last == nil {
		return ""
	}
	text := strings.Join(strings.Fields(last.Content), " ")
	if text == "" && len(last.Attachments) > 0 {
		text = "[" + last.Attachments[0].Name + "]"
	}
	if last.SenderName != "" && conv.Kind != types.ConversationDirect {
		text = last.SenderName + ": " + text
	}
	runes := []rune(text)
	if width > 0 && len(runes) > width {
		if width == 1 {
			return "…"
		}
		return string(runes[:width-1]) + "…"
	}
	return text
}
