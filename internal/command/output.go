package command

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/adamavenir/parley/internal/format"
	"github.com/adamavenir/parley/internal/types"
	"github.com/charmbracelet/lipgloss"
)

var senderPalette = []lipgloss.Color{
	lipgloss.Color("111"),
	lipgloss.Color("157"),
	lipgloss.Color("216"),
	lipgloss.Color("36"),
	lipgloss.Color("183"),
	lipgloss.Color("230"),
}

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func senderStyle(id string) lipgloss.Style {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	color := senderPalette[h.Sum32()%uint32(len(senderPalette))]
	return lipgloss.NewStyle().Bold(true).Foreground(color)
}

func senderLabel(msg types.Message) string {
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return msg.SenderID
}

// formatMessage renders one message for the terminal. conversation is
// prefixed when non-empty.
func formatMessage(msg types.Message, conversation string) string {
	var b strings.Builder
	b.WriteString(dimStyle.Render(time.UnixMilli(msg.TS).Format("15:04")))
	b.WriteString(" ")
	if conversation != "" {
		b.WriteString(dimStyle.Render(conversation))
		b.WriteString(" ")
	}
	b.WriteString(senderStyle(msg.SenderID).Render(senderLabel(msg)))
	b.WriteString(": ")

	body := format.Terminal(msg.Content)
	if strings.Contains(body, "\n") {
		body = "\n" + indent(body, "  ")
	}
	b.WriteString(body)

	for _, att := range msg.Attachments {
		b.WriteString("\n  ")
		b.WriteString(dimStyle.Render("[attachment] " + format.TerminalMarkup{}.Escape(att.Name)))
	}
	if msg.Edited {
		b.WriteString(" " + dimStyle.Render("(edited)"))
	}
	switch msg.Status {
	case types.MessageStatusPending:
		b.WriteString(" " + dimStyle.Render("(sending)"))
	case types.MessageStatusFailed:
		b.WriteString(" " + failedStyle.Render("(failed)"))
	}
	if len(msg.Reactions) > 0 {
		b.WriteString("\n  ")
		b.WriteString(formatReactions(msg.Reactions))
	}
	return b.String()
}

func formatReactions(reactions map[string][]string) string {
	keys := make([]string, 0, len(reactions))
	for emoji := range reactions {
		keys = append(keys, emoji)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, emoji := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", emoji, len(reactions[emoji])))
	}
	return strings.Join(parts, "  ")
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// formatRelative renders an epoch-millis timestamp relative to now.
func formatRelative(ts int64) string {
	if ts <= 0 {
		return "never"
	}
	secondsAgo := (time.Now().UnixMilli() - ts) / 1000
	if secondsAgo < 0 {
		return "just now"
	}
	if secondsAgo < 60 {
		return fmt.Sprintf("%ds ago", secondsAgo)
	}
	minutesAgo := secondsAgo / 60
	if minutesAgo < 60 {
		return fmt.Sprintf("%dm ago", minutesAgo)
	}
	hoursAgo := minutesAgo / 60
	if hoursAgo < 24 {
		return fmt.Sprintf("%dh ago", hoursAgo)
	}
	daysAgo := hoursAgo / 24
	if daysAgo < 7 {
		return fmt.Sprintf("%dd ago", daysAgo)
	}
	return fmt.Sprintf("%dw ago", daysAgo/7)
}

func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
