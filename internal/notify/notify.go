// Package notify raises desktop notifications for mentions and
// server-pushed alerts.
package notify

import (
	"strings"
	"sync"

	"github.com/gen2brain/beeep"
)

const bodyLimit = 100

// Notifier delivers a notification to the user.
type Notifier interface {
	Notify(title, body string) error
}

// SendFunc delivers one notification.
type SendFunc func(title, message string) error

// Desktop sends OS notifications through beeep.
type Desktop struct {
	mu      sync.Mutex
	send    SendFunc
	enabled bool
}

// NewDesktop returns a notifier backed by beeep.
func NewDesktop(enabled bool) *Desktop {
	return &Desktop{send: beeepSend, enabled: enabled}
}

// NewDesktopWith is NewDesktop with a custom sender.
func NewDesktopWith(send SendFunc, enabled bool) *Desktop {
	return &Desktop{send: send, enabled: enabled}
}

// SetEnabled toggles delivery.
func (d *Desktop) SetEnabled(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	d.mu.Unlock()
}

func (d *Desktop) Notify(title, body string) error {
	d.mu.Lock()
	enabled, send := d.enabled, d.send
	d.mu.Unlock()
	if !enabled {
		return nil
	}
	return send(title, Truncate(body, bodyLimit))
}

func beeepSend(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(string, string) error { return nil }

// Truncate collapses whitespace and cuts s to max runes.
func Truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
