// Package engine binds the transport, the message store, and persistence
// into one session.
//
// Incoming events are decoded and applied to the store on the transport's
// read goroutine, in arrival order. Every persistent store change schedules
// a debounced write. User actions apply optimistically and then go out over
// the transport.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/adamavenir/parley/internal/metrics"
	"github.com/adamavenir/parley/internal/notify"
	"github.com/adamavenir/parley/internal/persist"
	"github.com/adamavenir/parley/internal/remote"
	"github.com/adamavenir/parley/internal/store"
	"github.com/adamavenir/parley/internal/transport"
	"github.com/adamavenir/parley/internal/types"
	"github.com/rs/zerolog"
)

const (
	defaultAckTimeout     = 15 * time.Second
	defaultTypingInterval = 3 * time.Second
)

var (
	// ErrOffline is returned by Send and Retry when no transport is
	// configured.
	ErrOffline = errors.New("no transport configured")
	// ErrMessageNotFound is returned when acting on a message that is not in
	// the conversation log.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotAuthor is returned when editing or deleting someone else's message.
	ErrNotAuthor = errors.New("message was sent by another user")
	// ErrNotFailed is returned by Retry for a message that has not failed.
	ErrNotFailed = errors.New("message has not failed")
)

// Transport is the duplex event channel.
type Transport interface {
	Connect(ctx context.Context, userID string) error
	Disconnect()
	Connected() bool
	Send(event string, payload any)
	On(event string, handler transport.Handler) func()
}

// Remote is the request/response service.
type Remote interface {
	persist.Remote
	SearchMessages(ctx context.Context, text, conversationID string, limit, skip int) (remote.SearchResult, error)
}

// Options configures a Controller. Transport and Remote may be nil for an
// offline session; Mirror may be nil to skip the local copy.
type Options struct {
	Self      types.Member
	Transport Transport
	Remote    Remote
	Mirror    persist.Mirror

	AckTimeout     time.Duration
	TypingInterval time.Duration
	Debounce       time.Duration
	Concurrency    int

	Notifier notify.Notifier
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Controller is one client session.
type Controller struct {
	opts      Options
	store     *store.Store
	persister *persist.Persister
	transport Transport
	remote    Remote
	notifier  notify.Notifier
	typing    *limiterPool
	log       zerolog.Logger
	metrics   *metrics.Metrics

	mu     sync.Mutex
	acks   map[ackKey]*time.Timer
	unsubs []func()
	closed bool
}

type ackKey struct {
	conversationID string
	messageID      string
}

// New builds a controller and registers its event handlers. Nothing touches
// the network until Start.
func New(opts Options) *Controller {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = defaultAckTimeout
	}
	if opts.TypingInterval <= 0 {
		opts.TypingInterval = defaultTypingInterval
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	st := store.New(opts.Self)
	c := &Controller{
		opts:      opts,
		store:     st,
		transport: opts.Transport,
		remote:    opts.Remote,
		notifier:  opts.Notifier,
		typing:    newLimiterPool(opts.TypingInterval),
		log:       opts.Logger.With().Str("component", "engine").Logger(),
		metrics:   opts.Metrics,
		acks:      make(map[ackKey]*time.Timer),
	}

	popts := persist.Options{
		Mirror:      opts.Mirror,
		SelfID:      opts.Self.ID,
		Debounce:    opts.Debounce,
		Concurrency: opts.Concurrency,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
	}
	if opts.Remote != nil {
		popts.Remote = opts.Remote
	}
	c.persister = persist.New(st, popts)

	c.unsubs = append(c.unsubs, st.Subscribe(func(change store.Change) {
		if change.Persistent() {
			c.persister.Schedule()
		}
	}))
	if c.transport != nil {
		c.register()
	}
	return c
}

// Store exposes the session's message store for reads.
func (c *Controller) Store() *store.Store {
	return c.store
}

// Self returns the local user.
func (c *Controller) Self() types.Member {
	return c.opts.Self
}

// Start hydrates the store and then connects the transport. Hydrate never
// fails; the returned error is the connect error, if any.
func (c *Controller) Start(ctx context.Context) (persist.Source, error) {
	source := c.persister.Hydrate(ctx)
	if c.transport == nil {
		return source, nil
	}
	if err := c.transport.Connect(ctx, c.opts.Self.ID); err != nil {
		c.log.Warn().Err(err).Msg("connect failed, continuing offline")
		return source, err
	}
	return source, nil
}

// Connected reports whether the transport is live.
func (c *Controller) Connected() bool {
	return c.transport != nil && c.transport.Connected()
}

// Flush writes the current state out immediately.
func (c *Controller) Flush(ctx context.Context) error {
	return c.persister.Flush(ctx)
}

// Close removes every handler, stops ack timers, disconnects, and writes a
// final snapshot. It is safe to call more than once.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsubs := c.unsubs
	c.unsubs = nil
	for key, timer := range c.acks {
		timer.Stop()
		delete(c.acks, key)
	}
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if c.transport != nil {
		c.transport.Disconnect()
	}
	return c.persister.Close(ctx)
}

func (c *Controller) register() {
	on := func(event string, fn func(json.RawMessage) error) {
		c.unsubs = append(c.unsubs, c.transport.On(event, func(data json.RawMessage) {
			if err := fn(data); err != nil {
				c.log.Warn().Err(err).Str("event", event).Msg("dropping event")
			}
		}))
	}
	on(types.EventMessageReceive, c.handleReceive)
	on(types.EventMessageEdit, c.handleEdit)
	on(types.EventMessageDelete, c.handleDelete)
	on(types.EventMessageReaction, c.handleReaction)
	on(types.EventUserStatus, c.handleStatus)
	on(types.EventUserProfileUpdate, c.handleProfile)
	on(types.EventUserTyping, c.handleTyping)
	on(types.EventNotificationNew, c.handleNotification)
	on(transport.EventReconnectFailed, func(json.RawMessage) error {
		c.log.Error().Msg("connection lost for good, working offline")
		return nil
	})
}

// conversationFor maps a wire conversation id to the local one. Peers
// address direct messages to the recipient's user id, which locally is the
// conversation named after the sender.
func (c *Controller) conversationFor(conversationID, senderID string) string {
	self := c.opts.Self.ID
	switch {
	case conversationID == types.SelfConversationID:
		return conversationID
	case conversationID == "" || conversationID == self:
		if senderID == "" || senderID == self {
			return types.SelfConversationID
		}
		return senderID
	}
	return conversationID
}
