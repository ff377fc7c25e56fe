// Package persist keeps the local mirror and the remote conversation list in
// step with the store, and hydrates the store at startup.
package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adamavenir/parley/internal/db"
	"github.com/adamavenir/parley/internal/metrics"
	"github.com/adamavenir/parley/internal/store"
	"github.com/adamavenir/parley/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDebounce     = time.Second
	defaultConcurrency  = 4
	defaultWriteTimeout = 20 * time.Second
)

// Source names where Hydrate found its data.
type Source string

const (
	SourceRemote Source = "remote"
	SourceMirror Source = "mirror"
	SourceNone   Source = "none"
)

// Remote is the part of the service client the persister needs.
type Remote interface {
	FetchConversations(ctx context.Context) ([]types.Conversation, error)
	SaveConversations(ctx context.Context, convs []types.Conversation) error
	FetchHistory(ctx context.Context, self, other string) ([]types.Message, error)
}

// Mirror is the durable local copy.
type Mirror interface {
	LoadSnapshot() (types.Snapshot, error)
	SaveSnapshot(snap types.Snapshot) error
}

// Options configures a Persister. Remote may be nil for offline use.
type Options struct {
	Remote      Remote
	Mirror      Mirror
	SelfID      string
	Debounce    time.Duration
	Concurrency int
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// Persister writes store snapshots out and reads them back in.
type Persister struct {
	store *store.Store
	opts  Options
	log   zerolog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool

	writeMu sync.Mutex
}

// New creates a persister for st.
func New(st *store.Store, opts Options) *Persister {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Persister{
		store: st,
		opts:  opts,
		log:   opts.Logger.With().Str("component", "persist").Logger(),
	}
}

// Hydrate loads the store at startup. The remote service wins when it
// answers with a non-empty conversation list; otherwise the mirror is used.
// A conversation whose history cannot be fetched keeps its mirrored log.
// Failures are logged, never returned.
func (p *Persister) Hydrate(ctx context.Context) Source {
	mirrored := p.loadMirror()

	if p.opts.Remote != nil {
		convs, err := p.opts.Remote.FetchConversations(ctx)
		switch {
		case err != nil:
			p.log.Warn().Err(err).Msg("remote conversation list unavailable, using mirror")
		case len(convs) == 0:
			p.log.Info().Msg("remote conversation list empty, using mirror")
		default:
			snap := types.Snapshot{
				Conversations: convs,
				Messages:      p.fetchHistories(ctx, convs, mirrored.Messages),
			}
			p.store.Load(snap)
			p.opts.Metrics.Hydrated(string(SourceRemote))
			p.log.Info().Int("conversations", len(convs)).Msg("hydrated from remote")
			return SourceRemote
		}
	}

	if mirrored.Empty() {
		p.opts.Metrics.Hydrated(string(SourceNone))
		p.log.Info().Msg("nothing to hydrate")
		return SourceNone
	}
	p.store.Load(mirrored)
	p.opts.Metrics.Hydrated(string(SourceMirror))
	p.log.Info().Int("conversations", len(mirrored.Conversations)).Msg("hydrated from mirror")
	if p.opts.Remote != nil {
		// Carry mirror-only history up to the service.
		p.Schedule()
	}
	return SourceMirror
}

func (p *Persister) loadMirror() types.Snapshot {
	if p.opts.Mirror == nil {
		return types.Snapshot{Messages: map[string][]types.Message{}}
	}
	snap, err := p.opts.Mirror.LoadSnapshot()
	if err != nil {
		if errors.Is(err, db.ErrCorrupt) {
			p.log.Warn().Err(err).Msg("ignoring corrupt mirror entries")
		} else {
			p.log.Error().Err(err).Msg("read mirror")
			snap = types.Snapshot{}
		}
	}
	if snap.Messages == nil {
		snap.Messages = map[string][]types.Message{}
	}
	return snap
}

func (p *Persister) fetchHistories(ctx context.Context, convs []types.Conversation, fallback map[string][]types.Message) map[string][]types.Message {
	var mu sync.Mutex
	logs := make(map[string][]types.Message, len(convs))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for _, conv := range convs {
		g.Go(func() error {
			other := conv.ID
			if conv.ID == types.SelfConversationID {
				other = p.opts.SelfID
			}
			msgs, err := p.opts.Remote.FetchHistory(ctx, p.opts.SelfID, other)
			if err != nil {
				p.log.Warn().Err(err).Str("conversation", conv.ID).Msg("history unavailable, using mirror")
				msgs = fallback[conv.ID]
			}
			for i := range msgs {
				msgs[i].ConversationID = conv.ID
			}
			mu.Lock()
			logs[conv.ID] = msgs
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return logs
}

// Schedule requests a write after the debounce window. Calls within the
// window collapse into one write.
func (p *Persister) Schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.opts.Debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
		defer cancel()
		_ = p.write(ctx, true)
	})
}

// Flush cancels any pending window and writes now. It returns the mirror
// error, if any; remote failures are logged and rescheduled.
func (p *Persister) Flush(ctx context.Context) error {
	p.stopTimer()
	return p.write(ctx, true)
}

// Close writes a final snapshot and stops scheduling.
func (p *Persister) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.stopTimer()
	return p.write(ctx, false)
}

func (p *Persister) stopTimer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// write saves the mirror first so it reflects the latest state even when the
// remote is unreachable.
func (p *Persister) write(ctx context.Context, retry bool) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	snap := p.store.Snapshot()

	var mirrorErr error
	if p.opts.Mirror != nil {
		mirrorErr = p.opts.Mirror.SaveSnapshot(snap)
		p.opts.Metrics.PersistWrite("mirror", mirrorErr)
		if mirrorErr != nil {
			p.log.Error().Err(mirrorErr).Msg("write mirror")
		}
	}

	if p.opts.Remote != nil {
		err := p.opts.Remote.SaveConversations(ctx, snap.Conversations)
		p.opts.Metrics.PersistWrite("remote", err)
		if err != nil {
			p.log.Warn().Err(err).Msg("save conversations to remote, retrying next window")
			if retry {
				p.Schedule()
			}
		}
	}
	return mirrorErr
}
