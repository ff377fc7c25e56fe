package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adamavenir/parley/internal/db"
	"github.com/adamavenir/parley/internal/persist"
	"github.com/adamavenir/parley/internal/remote"
	"github.com/adamavenir/parley/internal/transport"
	"github.com/adamavenir/parley/internal/types"
	"github.com/fasthttp/websocket"
)

var me = types.Member{ID: "me", Name: "Mia"}

type fakeTransport struct {
	mu        sync.Mutex
	handlers  map[string][]*transport.Handler
	sent      []transport.Envelope
	connected bool
	users     []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[string][]*transport.Handler{}}
}

func (f *fakeTransport) Connect(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.users = append(f.users, userID)
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Send(event string, payload any) {
	data, _ := json.Marshal(payload)
	f.mu.Lock()
	f.sent = append(f.sent, transport.Envelope{Event: event, Data: data})
	f.mu.Unlock()
}

func (f *fakeTransport) On(event string, handler transport.Handler) func() {
	h := &handler
	f.mu.Lock()
	f.handlers[event] = append(f.handlers[event], h)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := f.handlers[event]
		for i, entry := range list {
			if entry == h {
				f.handlers[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (f *fakeTransport) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.mu.Lock()
	handlers := append([]*transport.Handler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		(*h)(data)
	}
}

func (f *fakeTransport) sentEvents(event string) []transport.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transport.Envelope
	for _, env := range f.sent {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeTransport) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, list := range f.handlers {
		n += len(list)
	}
	return n
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Notify(title, body string) error {
	n.mu.Lock()
	n.calls = append(n.calls, title+"|"+body)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func openMirror(t *testing.T) *db.Mirror {
	t.Helper()
	mirror, err := db.OpenMirror(filepath.Join(t.TempDir(), db.MirrorFileName))
	if err != nil {
		t.Fatalf("open mirror: %v", err)
	}
	t.Cleanup(func() { _ = mirror.Close() })
	return mirror
}

type harness struct {
	ctrl     *Controller
	wire     *fakeTransport
	notifier *recordingNotifier
	mirror   *db.Mirror
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{wire: newFakeTransport(), notifier: &recordingNotifier{}, mirror: openMirror(t)}
	opts := Options{
		Self:           me,
		Transport:      h.wire,
		Mirror:         h.mirror,
		AckTimeout:     time.Hour,
		TypingInterval: time.Hour,
		Debounce:       10 * time.Millisecond,
		Notifier:       h.notifier,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.ctrl = New(opts)
	t.Cleanup(func() { _ = h.ctrl.Close(context.Background()) })
	return h
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartHydratesThenConnects(t *testing.T) {
	mirror := openMirror(t)
	if err := mirror.SaveSnapshot(types.Snapshot{
		Conversations: []types.Conversation{{ID: "bob", Name: "Bob", Kind: types.ConversationDirect}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := newHarness(t, func(o *Options) { o.Mirror = mirror })

	source, err := h.ctrl.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if source != persist.SourceMirror {
		t.Fatalf("expected mirror source, got %s", source)
	}
	if _, ok := h.ctrl.Store().Conversation("bob"); !ok {
		t.Fatalf("expected bob hydrated")
	}
	if len(h.wire.users) != 1 || h.wire.users[0] != "me" || !h.ctrl.Connected() {
		t.Fatalf("expected one connect as me, got %v", h.wire.users)
	}
}

func TestReceiveDirectMessageRoutesToSender(t *testing.T) {
	h := newHarness(t, nil)
	h.wire.deliver(t, types.EventMessageReceive, types.Message{
		ID: "m1", ConversationID: "me", SenderID: "bob", SenderName: "Bob", Content: "hi", TS: 10,
	})

	conv, ok := h.ctrl.Store().Conversation("bob")
	if !ok || conv.Unread != 1 || conv.Name != "Bob" {
		t.Fatalf("expected bob conversation with one unread, got %+v", conv)
	}
	if got := h.ctrl.Messages("bob"); len(got) != 1 || got[0].ConversationID != "bob" {
		t.Fatalf("unexpected log %+v", got)
	}

	h.wire.deliver(t, types.EventMessageReceive, types.Message{ID: "m1", ConversationID: "me", SenderID: "bob", Content: "hi", TS: 10})
	if conv, _ := h.ctrl.Store().Conversation("bob"); conv.Unread != 1 {
		t.Fatalf("expected reapplied message not to count twice, got %d", conv.Unread)
	}
}

func TestMalformedEventsAreDropped(t *testing.T) {
	h := newHarness(t, nil)
	h.wire.deliver(t, types.EventMessageReceive, "not an object")
	h.wire.deliver(t, types.EventMessageReceive, types.Message{ConversationID: "bob", Content: "no id"})
	if got := h.ctrl.ConversationList("").Visible; len(got) != 1 {
		t.Fatalf("expected only the self conversation, got %+v", got)
	}
}

func TestSendConfirmedByEcho(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.AckTimeout = 50 * time.Millisecond })
	h.ctrl.Store().UpsertConversation(types.Conversation{ID: "bob", Name: "Bob", Kind: types.ConversationDirect})

	msg, err := h.ctrl.Send("bob", types.Draft{Content: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Status != types.MessageStatusPending || !strings.HasPrefix(msg.ID, "local-") {
		t.Fatalf("unexpected optimistic message %+v", msg)
	}
	frames := h.wire.sentEvents(types.EventMessageSend)
	if len(frames) != 1 {
		t.Fatalf("expected one message:send, got %d", len(frames))
	}
	var wire map[string]any
	_ = json.Unmarshal(frames[0].Data, &wire)
	if wire["id"] != msg.ID || wire["content"] != "hello" {
		t.Fatalf("unexpected wire message %v", wire)
	}
	if _, ok := wire["status"]; ok {
		t.Fatalf("status must not go out on the wire: %s", frames[0].Data)
	}
	if _, ok := wire["local"]; ok {
		t.Fatalf("local flag must not go out on the wire: %s", frames[0].Data)
	}

	// the server relays the frame unchanged
	h.wire.deliver(t, types.EventMessageReceive, json.RawMessage(frames[0].Data))

	time.Sleep(120 * time.Millisecond)
	log := h.ctrl.Messages("bob")
	if len(log) != 1 || log[0].Status != types.MessageStatusSent || !log[0].Local {
		t.Fatalf("expected one confirmed message, got %+v", log)
	}
}

func TestSendTimesOutThenRetryAndDiscard(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.AckTimeout = 20 * time.Millisecond })
	msg, err := h.ctrl.Send("bob", types.Draft{Content: "anyone?"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	status := func() types.MessageStatus {
		m, _ := h.ctrl.Store().Message("bob", msg.ID)
		return m.Status
	}
	eventually(t, "failed status", func() bool { return status() == types.MessageStatusFailed })

	h.ctrl.opts.AckTimeout = time.Hour
	retried, err := h.ctrl.Retry("bob", msg.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.ID != msg.ID || status() != types.MessageStatusPending {
		t.Fatalf("expected same id pending again, got %+v", retried)
	}
	if frames := h.wire.sentEvents(types.EventMessageSend); len(frames) != 2 {
		t.Fatalf("expected resend, got %d frames", len(frames))
	}
	if _, err := h.ctrl.Retry("bob", msg.ID); !errors.Is(err, ErrNotFailed) {
		t.Fatalf("expected ErrNotFailed, got %v", err)
	}

	if err := h.ctrl.Discard("bob", msg.ID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if got := h.ctrl.Messages("bob"); len(got) != 0 {
		t.Fatalf("expected discarded message gone, got %+v", got)
	}
	if _, err := h.ctrl.Retry("bob", msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestSendOfflineFailsImmediately(t *testing.T) {
	ctrl := New(Options{Self: me})
	defer ctrl.Close(context.Background())

	if _, err := ctrl.Send(types.SelfConversationID, types.Draft{Content: "note"}); !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	if got := ctrl.Messages(types.SelfConversationID); len(got) != 0 {
		t.Fatalf("expected no optimistic echo without transport, got %+v", got)
	}
	if _, err := ctrl.Retry(types.SelfConversationID, "local-x"); !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline from retry, got %v", err)
	}

	h := newHarness(t, nil)
	if _, err := h.ctrl.Send("bob", types.Draft{Content: "  "}); err == nil {
		t.Fatalf("expected empty draft error")
	}
}

func TestEditAndDeleteOwnMessagesOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.wire.deliver(t, types.EventMessageReceive, types.Message{ID: "theirs", ConversationID: "bob", SenderID: "bob", Content: "x", TS: 1})
	mine, _ := h.ctrl.Send("bob", types.Draft{Content: "typo"})

	if err := h.ctrl.Edit("bob", "theirs", "nope"); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
	if err := h.ctrl.Edit("bob", "missing", "nope"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
	if err := h.ctrl.Edit("bob", mine.ID, "fixed"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	got, _ := h.ctrl.Store().Message("bob", mine.ID)
	if got.Content != "fixed" || !got.Edited {
		t.Fatalf("unexpected edited message %+v", got)
	}
	if frames := h.wire.sentEvents(types.EventMessageEdit); len(frames) != 1 {
		t.Fatalf("expected one edit frame, got %d", len(frames))
	}

	if err := h.ctrl.Delete("bob", "theirs"); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
	if err := h.ctrl.Delete("bob", mine.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	conv, _ := h.ctrl.Store().Conversation("bob")
	if conv.LastMessage == nil || conv.LastMessage.ID != "theirs" {
		t.Fatalf("expected last message recomputed, got %+v", conv.LastMessage)
	}
}

func TestRemoteEventsApply(t *testing.T) {
	h := newHarness(t, nil)
	h.wire.deliver(t, types.EventMessageReceive, types.Message{ID: "m1", ConversationID: "me", SenderID: "bob", SenderName: "Bob", Content: "v1", TS: 5})

	h.wire.deliver(t, types.EventMessageEdit, types.EditPayload{ConversationID: "me", SenderID: "bob", MessageID: "m1", Content: "v2", EditedAt: 9})
	got, _ := h.ctrl.Store().Message("bob", "m1")
	if got.Content != "v2" || got.EditedAt == nil || *got.EditedAt != 9 {
		t.Fatalf("unexpected edit %+v", got)
	}

	h.wire.deliver(t, types.EventMessageReaction, types.ReactionPayload{ConversationID: "me", MessageID: "m1", Emoji: "👍", UserID: "bob", Add: true})
	got, _ = h.ctrl.Store().Message("bob", "m1")
	if users := got.Reactions["👍"]; len(users) != 1 || users[0] != "bob" {
		t.Fatalf("unexpected reactions %+v", got.Reactions)
	}

	h.wire.deliver(t, types.EventUserStatus, types.StatusPayload{UserID: "bob", Presence: types.PresenceDND})
	h.wire.deliver(t, types.EventUserProfileUpdate, types.ProfilePayload{UserID: "bob", Name: "Robert"})
	conv, _ := h.ctrl.Store().Conversation("bob")
	if conv.Presence != types.PresenceDND || conv.Name != "Robert" {
		t.Fatalf("unexpected conversation %+v", conv)
	}

	h.wire.deliver(t, types.EventUserTyping, types.TypingPayload{ConversationID: "me", UserID: "bob", Typing: true})
	h.wire.deliver(t, types.EventUserTyping, types.TypingPayload{ConversationID: "me", UserID: "me", Typing: true})
	if typing := h.ctrl.TypingUsers("bob"); len(typing) != 1 || typing[0] != "bob" {
		t.Fatalf("unexpected typing %v", typing)
	}

	h.wire.deliver(t, types.EventMessageDelete, types.DeletePayload{ConversationID: "me", SenderID: "bob", MessageID: "m1"})
	if got := h.ctrl.Messages("bob"); len(got) != 0 {
		t.Fatalf("expected delete applied, got %+v", got)
	}
}

func TestTypingIsRateLimited(t *testing.T) {
	h := newHarness(t, nil)
	if !h.ctrl.Typing("bob") {
		t.Fatalf("expected first typing event sent")
	}
	if h.ctrl.Typing("bob") {
		t.Fatalf("expected second typing event suppressed")
	}
	if !h.ctrl.Typing("team") {
		t.Fatalf("expected other conversation unaffected")
	}
	h.ctrl.StopTyping("bob")
	if !h.ctrl.Typing("bob") {
		t.Fatalf("expected typing allowed after stop")
	}
	if got := len(h.wire.sentEvents(types.EventTypingStart)); got != 3 {
		t.Fatalf("expected 3 typing:start frames, got %d", got)
	}
	if got := len(h.wire.sentEvents(types.EventTypingStop)); got != 1 {
		t.Fatalf("expected 1 typing:stop frame, got %d", got)
	}
}

func TestReactAndStatus(t *testing.T) {
	h := newHarness(t, nil)
	h.wire.deliver(t, types.EventMessageReceive, types.Message{ID: "m1", ConversationID: "team", SenderID: "bob", Content: "x", TS: 1})

	if err := h.ctrl.React("team", "m1", "🎉", true); err != nil {
		t.Fatalf("react: %v", err)
	}
	got, _ := h.ctrl.Store().Message("team", "m1")
	if users := got.Reactions["🎉"]; len(users) != 1 || users[0] != "me" {
		t.Fatalf("unexpected reactions %+v", got.Reactions)
	}
	if err := h.ctrl.React("team", "nope", "🎉", true); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}

	if err := h.ctrl.SetStatus(types.PresenceIdle); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := h.ctrl.SetStatus("sleepy"); err == nil {
		t.Fatalf("expected unknown presence error")
	}
	frames := h.wire.sentEvents(types.EventUserStatusUpdate)
	if len(frames) != 1 || !strings.Contains(string(frames[0].Data), `"idle"`) {
		t.Fatalf("unexpected status frames %+v", frames)
	}
}

func TestMentionNotifications(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Store().UpsertConversation(types.Conversation{ID: "team", Name: "Team", Kind: types.ConversationGroup})
	h.ctrl.Store().UpsertConversation(types.Conversation{ID: "quiet", Name: "Quiet", Kind: types.ConversationGroup, Muted: true})

	h.wire.deliver(t, types.EventMessageReceive, types.Message{ID: "1", ConversationID: "team", SenderID: "bob", SenderName: "Bob", Content: "hey @Mia look", TS: 1})
	h.wire.deliver(t, types.EventMessageReceive, types.Message{ID: "2", ConversationID: "team", SenderID: "bob", Content: "no mention", TS: 2})
	h.wire.deliver(t, types.EventMessageReceive, types.Message{ID: "3", ConversationID: "quiet", SenderID: "bob", Content: "@Mia muted", TS: 3})

	if err := h.ctrl.Open("team"); err != nil {
		t.Fatalf("open: %v", err)
	}
	h.wire.deliver(t, types.EventMessageReceive, types.Message{ID: "4", ConversationID: "team", SenderID: "bob", Content: "@Mia you're here", TS: 4})
	h.wire.deliver(t, types.EventNotificationNew, types.NotificationPayload{ID: "n1", Title: "Invite", Body: "join #ops"})

	got := h.notifier.all()
	want := []string{"Team · @Bob|hey @Mia look", "Invite|join #ops"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("unexpected notifications %q", got)
	}
	if conv, _ := h.ctrl.Store().Conversation("team"); conv.Unread != 0 {
		t.Fatalf("expected open conversation read, got %d", conv.Unread)
	}
}

func TestConversationListAndMentions(t *testing.T) {
	h := newHarness(t, nil)
	st := h.ctrl.Store()
	st.UpsertConversation(types.Conversation{
		ID: "team", Name: "Team", Kind: types.ConversationGroup, CreatedAt: 5,
		Members: []types.Member{{ID: "ana", Name: "Ana"}, {ID: "anna", Name: "Anna"}, {ID: "b", Name: "Banana"}},
	})
	st.UpsertConversation(types.Conversation{ID: "bob", Name: "Bob", Kind: types.ConversationDirect, CreatedAt: 9, Pinned: true})

	view := h.ctrl.ConversationList("")
	if len(view.Visible) != 3 || view.Visible[0].ID != "bob" {
		t.Fatalf("expected pinned bob first, got %+v", view.Visible)
	}
	if got := h.ctrl.ConversationList("tea").Visible; len(got) != 1 || got[0].ID != "team" {
		t.Fatalf("unexpected filtered list %+v", got)
	}

	candidates, trigger, ok := h.ctrl.Mentions("team", "hi @an", 6)
	if !ok || trigger.Query != "an" {
		t.Fatalf("expected trigger, got %+v %v", trigger, ok)
	}
	var labels []string
	for _, c := range candidates {
		labels = append(labels, c.Label)
	}
	if strings.Join(labels, ",") != "Ana,Anna,Banana" {
		t.Fatalf("unexpected ranking %v", labels)
	}
	if _, _, ok := h.ctrl.Mentions("team", "email a@an", 10); ok {
		t.Fatalf("expected no trigger inside a word")
	}
}

func TestSearchFallsBackToLocal(t *testing.T) {
	h := newHarness(t, nil)
	for i, content := range []string{"deploy today", "lunch?", "Deploy done"} {
		h.wire.deliver(t, types.EventMessageReceive, types.Message{ID: string(rune('a' + i)), ConversationID: "ops", SenderID: "bob", Content: content, TS: int64(i + 1)})
	}

	result, err := h.ctrl.Search(context.Background(), "deploy", "", 1, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 2 || len(result.Messages) != 1 || result.Messages[0].Content != "Deploy done" {
		t.Fatalf("unexpected result %+v", result)
	}
	result, _ = h.ctrl.Search(context.Background(), "deploy", "ops", 10, 5)
	if result.Total != 2 || len(result.Messages) != 0 {
		t.Fatalf("expected skipped past end, got %+v", result)
	}
	if _, err := h.ctrl.Search(context.Background(), " ", "", 10, 0); err == nil {
		t.Fatalf("expected empty query error")
	}
}

func TestSearchUsesRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/messages/search":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data": map[string]any{
					"messages": []types.Message{{ID: "r1", Content: "from server"}},
					"total":    1,
				},
			})
		default:
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": []any{}})
		}
	}))
	defer server.Close()
	client, err := remote.NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	h := newHarness(t, func(o *Options) { o.Remote = client })

	result, err := h.ctrl.Search(context.Background(), "server", "", 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.Total != 1 || result.Messages[0].ID != "r1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestChangesArePersisted(t *testing.T) {
	h := newHarness(t, nil)
	h.wire.deliver(t, types.EventMessageReceive, types.Message{ID: "m1", ConversationID: "bob", SenderID: "bob", Content: "keep me", TS: 1})

	eventually(t, "mirror write", func() bool {
		snap, err := h.mirror.LoadSnapshot()
		return err == nil && len(snap.Messages["bob"]) == 1
	})
}

func TestCloseUnsubscribesEverything(t *testing.T) {
	h := newHarness(t, nil)
	if h.wire.handlerCount() == 0 {
		t.Fatalf("expected handlers registered")
	}
	if err := h.ctrl.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := h.wire.handlerCount(); n != 0 {
		t.Fatalf("expected no handlers after close, got %d", n)
	}
	h.wire.deliver(t, types.EventMessageReceive, types.Message{ID: "late", ConversationID: "bob", SenderID: "bob", Content: "x", TS: 1})
	if _, ok := h.ctrl.Store().Conversation("bob"); ok {
		t.Fatalf("expected events ignored after close")
	}
	if err := h.ctrl.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOverWebsocket(t *testing.T) {
	var upgrader websocket.Upgrader
	frames := make(chan transport.Envelope, 16)
	conns := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env transport.Envelope
			if json.Unmarshal(data, &env) == nil {
				frames <- env
			}
		}
	}))
	defer server.Close()

	wire := transport.New(transport.Options{URL: "ws" + strings.TrimPrefix(server.URL, "http")})
	ctrl := New(Options{Self: me, Transport: wire, Mirror: openMirror(t), Debounce: time.Hour})
	defer ctrl.Close(context.Background())

	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	var conn *websocket.Conn
	select {
	case conn = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatalf("no connection")
	}
	select {
	case env := <-frames:
		if env.Event != types.EventUserOnline {
			t.Fatalf("expected user:online first, got %s", env.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no announce")
	}

	data, _ := json.Marshal(types.Message{ID: "w1", ConversationID: "me", SenderID: "zoe", Content: "over the wire", TS: 3})
	frame, _ := json.Marshal(transport.Envelope{Event: types.EventMessageReceive, Data: data})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("push: %v", err)
	}
	eventually(t, "pushed message", func() bool { return len(ctrl.Messages("zoe")) == 1 })
}
