package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/adamavenir/parley/internal/types"
)

var testSelf = types.Member{ID: "me", Name: "Me"}

func newTestStore() *Store {
	return New(testSelf)
}

func msg(convID, id string, ts int64) types.Message {
	return types.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       convID,
		SenderName:     strings.ToUpper(convID),
		Content:        "body " + id,
		TS:             ts,
	}
}

func ids(log []types.Message) string {
	parts := make([]string, len(log))
	for i, m := range log {
		parts[i] = m.ID
	}
	return strings.Join(parts, ",")
}

func TestApplyIncomingIdempotent(t *testing.T) {
	s := newTestStore()
	m := msg("bob", "m1", 100)

	if !s.ApplyIncoming(m, OriginRemote) {
		t.Fatalf("expected first apply to insert")
	}
	if s.ApplyIncoming(m, OriginRemote) {
		t.Fatalf("expected second apply to overwrite")
	}

	log := s.Messages("bob")
	if len(log) != 1 {
		t.Fatalf("expected 1 message, got %d", len(log))
	}
	if log[0].Content != m.Content || log[0].Status != types.MessageStatusSent {
		t.Fatalf("unexpected message %+v", log[0])
	}
	conv, _ := s.Conversation("bob")
	if conv.Unread != 1 {
		t.Fatalf("expected unread 1, got %d", conv.Unread)
	}
}

func TestApplyIncomingOrdering(t *testing.T) {
	s := newTestStore()
	for _, m := range []types.Message{
		msg("bob", "c", 300),
		msg("bob", "a", 100),
		msg("bob", "d", 400),
		msg("bob", "b", 200),
		msg("bob", "a2", 100),
	} {
		s.ApplyIncoming(m, OriginRemote)
	}
	if got := ids(s.Messages("bob")); got != "a,a2,b,c,d" {
		t.Fatalf("unexpected order %s", got)
	}

	corrected := msg("bob", "a", 500)
	s.ApplyIncoming(corrected, OriginRemote)
	if got := ids(s.Messages("bob")); got != "a2,b,c,d,a" {
		t.Fatalf("expected corrected timestamp to re-sort, got %s", got)
	}
	conv, _ := s.Conversation("bob")
	if conv.LastMessage == nil || conv.LastMessage.ID != "a" {
		t.Fatalf("expected last message a, got %+v", conv.LastMessage)
	}
}

func TestFirstContactCreatesConversation(t *testing.T) {
	s := newTestStore()
	s.ApplyIncoming(msg("bob", "m1", 100), OriginRemote)

	conv, ok := s.Conversation("bob")
	if !ok {
		t.Fatalf("expected conversation to be created")
	}
	if conv.Kind != types.ConversationDirect || conv.Name != "BOB" || conv.CreatedAt != 100 {
		t.Fatalf("unexpected conversation %+v", conv)
	}
}

func TestOptimisticReconciliation(t *testing.T) {
	s := newTestStore()
	s.ApplyIncoming(msg("bob", "m1", 100), OriginRemote)

	local, err := s.SendOptimistic("bob", types.Draft{Content: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasPrefix(local.ID, LocalIDPrefix) || local.Status != types.MessageStatusPending || !local.Local {
		t.Fatalf("unexpected optimistic message %+v", local)
	}
	if got := len(s.Messages("bob")); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}
	conv, _ := s.Conversation("bob")
	if conv.Unread != 0 {
		t.Fatalf("expected local send to clear unread, got %d", conv.Unread)
	}

	echo := local
	echo.Local = false
	echo.Content = "hi (server)"
	if s.ApplyIncoming(echo, OriginRemote) {
		t.Fatalf("expected echo to update in place")
	}

	log := s.Messages("bob")
	if len(log) != 2 {
		t.Fatalf("expected 2 messages after echo, got %d", len(log))
	}
	tail := log[1]
	if tail.ID != local.ID || tail.Content != "hi (server)" || tail.Status != types.MessageStatusSent || !tail.Local {
		t.Fatalf("unexpected reconciled message %+v", tail)
	}
	conv, _ = s.Conversation("bob")
	if conv.Unread != 0 {
		t.Fatalf("expected echo not to count as unread, got %d", conv.Unread)
	}
}

func TestSendOptimisticTimestampAfterTail(t *testing.T) {
	s := newTestStore()
	future := time.Now().Add(time.Hour).UnixMilli()
	s.ApplyIncoming(msg("bob", "m1", future), OriginRemote)

	local, err := s.SendOptimistic("bob", types.Draft{Content: "late"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if local.TS != future+1 {
		t.Fatalf("expected ts %d, got %d", future+1, local.TS)
	}
	if got := ids(s.Messages("bob")); got != "m1,"+local.ID {
		t.Fatalf("expected optimistic message at tail, got %s", got)
	}

	if _, err := s.SendOptimistic("bob", types.Draft{Content: "  "}); !errors.Is(err, ErrEmptyDraft) {
		t.Fatalf("expected ErrEmptyDraft, got %v", err)
	}
}

func TestRemoteCopyOfPendingMessageConfirmsIt(t *testing.T) {
	s := newTestStore()
	local, _ := s.SendOptimistic("bob", types.Draft{Content: "hi"})

	relayed := local
	relayed.Local = false
	s.ApplyIncoming(relayed, OriginRemote)

	got, ok := s.Message("bob", local.ID)
	if !ok || got.Status != types.MessageStatusSent || !got.Local {
		t.Fatalf("expected relayed copy to confirm, got %+v", got)
	}
}

func TestSendStatusTransitions(t *testing.T) {
	s := newTestStore()
	local, _ := s.SendOptimistic("bob", types.Draft{Content: "hi"})

	if !s.MarkFailed("bob", local.ID) {
		t.Fatalf("expected pending message to fail")
	}
	requeued, ok := s.Requeue("bob", local.ID)
	if !ok || requeued.Status != types.MessageStatusPending || requeued.ID != local.ID {
		t.Fatalf("unexpected requeue %+v %v", requeued, ok)
	}
	if !s.Confirm("bob", local.ID) {
		t.Fatalf("expected confirm")
	}
	if s.MarkFailed("bob", local.ID) {
		t.Fatalf("confirmed message must not be marked failed")
	}
	if !s.Rollback("bob", local.ID) {
		t.Fatalf("expected rollback")
	}
	if got := len(s.Messages("bob")); got != 0 {
		t.Fatalf("expected empty log, got %d", got)
	}
}

func TestEditAndDeleteMissingAreNoops(t *testing.T) {
	s := newTestStore()
	s.ApplyIncoming(msg("bob", "m1", 100), OriginRemote)

	if s.ApplyEdit("bob", "missing", "x", 0) {
		t.Fatalf("expected edit of missing id to be a no-op")
	}
	if s.ApplyDelete("bob", "missing") {
		t.Fatalf("expected delete of missing id to be a no-op")
	}
	if s.ApplyEdit("nobody", "m1", "x", 0) {
		t.Fatalf("expected edit in unknown conversation to be a no-op")
	}

	if !s.ApplyEdit("bob", "m1", "changed", 555) {
		t.Fatalf("expected edit")
	}
	edited := s.Messages("bob")[0]
	if edited.Content != "changed" || !edited.Edited || edited.EditedAt == nil || *edited.EditedAt != 555 {
		t.Fatalf("unexpected edit result %+v", edited)
	}
	conv, _ := s.Conversation("bob")
	if conv.LastMessage.Content != "changed" {
		t.Fatalf("expected last message to reflect edit")
	}
}

func TestDeleteTailRecomputesLastMessage(t *testing.T) {
	s := newTestStore()
	s.ApplyIncoming(msg("bob", "m1", 100), OriginRemote)
	s.ApplyIncoming(msg("bob", "m2", 200), OriginRemote)

	s.ApplyDelete("bob", "m2")
	conv, _ := s.Conversation("bob")
	if conv.LastMessage == nil || conv.LastMessage.ID != "m1" {
		t.Fatalf("expected last message m1, got %+v", conv.LastMessage)
	}

	s.ApplyDelete("bob", "m1")
	conv, _ = s.Conversation("bob")
	if conv.LastMessage != nil {
		t.Fatalf("expected no last message, got %+v", conv.LastMessage)
	}
}

func TestUnreadRespectsActiveConversation(t *testing.T) {
	s := newTestStore()
	s.UpsertConversation(types.Conversation{ID: "bob", Name: "Bob", Kind: types.ConversationDirect})
	s.ApplyIncoming(msg("bob", "m1", 100), OriginRemote)

	if err := s.SetActive("bob"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	conv, _ := s.Conversation("bob")
	if conv.Unread != 0 {
		t.Fatalf("expected active to clear unread, got %d", conv.Unread)
	}

	s.ApplyIncoming(msg("bob", "m2", 200), OriginRemote)
	conv, _ = s.Conversation("bob")
	if conv.Unread != 0 {
		t.Fatalf("expected no unread in active conversation, got %d", conv.Unread)
	}

	own := msg("carol", "m3", 300)
	own.SenderID = testSelf.ID
	s.ApplyIncoming(own, OriginRemote)
	conv, _ = s.Conversation("carol")
	if conv.Unread != 0 {
		t.Fatalf("expected own message from another device not to count, got %d", conv.Unread)
	}
}

func TestSelfConversationAlwaysExists(t *testing.T) {
	s := newTestStore()
	conv, ok := s.Conversation(types.SelfConversationID)
	if !ok || conv.Kind != types.ConversationSelf {
		t.Fatalf("expected self conversation, got %+v %v", conv, ok)
	}
	if err := s.DeleteConversation(types.SelfConversationID); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("expected ErrSelfConversation, got %v", err)
	}
	if err := s.DeleteConversation("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s.Load(types.Snapshot{Conversations: []types.Conversation{{ID: "bob", Name: "Bob"}}})
	if _, ok := s.Conversation(types.SelfConversationID); !ok {
		t.Fatalf("expected self conversation after load")
	}
}

func TestDeleteConversation(t *testing.T) {
	s := newTestStore()
	s.ApplyIncoming(msg("bob", "m1", 100), OriginRemote)
	_ = s.SetActive("bob")

	if err := s.DeleteConversation("bob"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.Conversation("bob"); ok {
		t.Fatalf("expected conversation removed")
	}
	if len(s.Messages("bob")) != 0 {
		t.Fatalf("expected log removed")
	}
	if s.Active() != "" {
		t.Fatalf("expected active cleared")
	}
}

func TestUpsertKeepsUnreadAndDerivedLast(t *testing.T) {
	s := newTestStore()
	s.ApplyIncoming(msg("bob", "m1", 100), OriginRemote)

	s.UpsertConversation(types.Conversation{ID: "bob", Name: "Robert", Kind: types.ConversationDirect, Pinned: true})
	conv, _ := s.Conversation("bob")
	if conv.Name != "Robert" || !conv.Pinned || conv.Unread != 1 {
		t.Fatalf("unexpected upsert result %+v", conv)
	}
	if conv.LastMessage == nil || conv.LastMessage.ID != "m1" {
		t.Fatalf("expected last message kept, got %+v", conv.LastMessage)
	}
}

func TestReactions(t *testing.T) {
	s := newTestStore()
	s.ApplyIncoming(msg("bob", "m1", 100), OriginRemote)

	if !s.ApplyReaction("bob", "m1", "👍", "me", true) {
		t.Fatalf("expected reaction added")
	}
	if s.ApplyReaction("bob", "m1", "👍", "me", true) {
		t.Fatalf("expected duplicate reaction ignored")
	}
	s.ApplyReaction("bob", "m1", "👍", "bob", true)
	got := s.Messages("bob")[0].Reactions["👍"]
	if strings.Join(got, ",") != "me,bob" {
		t.Fatalf("unexpected reactors %v", got)
	}

	s.ApplyReaction("bob", "m1", "👍", "me", false)
	s.ApplyReaction("bob", "m1", "👍", "bob", false)
	if _, ok := s.Messages("bob")[0].Reactions["👍"]; ok {
		t.Fatalf("expected empty reaction removed")
	}

	s.ApplyReaction("bob", "m1", "🎉", "me", true)
	s.ApplyIncoming(msg("bob", "m1", 100), OriginRemote)
	if len(s.Messages("bob")[0].Reactions["🎉"]) != 1 {
		t.Fatalf("expected reactions kept when update carries none")
	}
}

func TestPresenceAndProfile(t *testing.T) {
	s := newTestStore()
	s.UpsertConversation(types.Conversation{ID: "bob", Name: "Bob", Kind: types.ConversationDirect})
	s.UpsertConversation(types.Conversation{
		ID:      "team",
		Name:    "Team",
		Kind:    types.ConversationGroup,
		Members: []types.Member{{ID: "bob", Name: "Bob"}, {ID: "carol", Name: "Carol"}},
	})

	s.SetPresence("bob", types.PresenceIdle)
	s.ApplyProfile("bob", "Robert", "")

	direct, _ := s.Conversation("bob")
	if direct.Presence != types.PresenceIdle || direct.Name != "Robert" {
		t.Fatalf("unexpected direct conversation %+v", direct)
	}
	team, _ := s.Conversation("team")
	if team.Members[0].Presence != types.PresenceIdle || team.Members[0].Name != "Robert" {
		t.Fatalf("unexpected member %+v", team.Members[0])
	}
	if team.Name != "Team" || team.Members[1].Name != "Carol" {
		t.Fatalf("unrelated fields changed: %+v", team)
	}
}

func TestTypingClearedByMessage(t *testing.T) {
	s := newTestStore()
	s.SetTyping("bob", "bob", true)
	s.SetTyping("bob", "alice", true)
	if got := strings.Join(s.Typing("bob"), ","); got != "alice,bob" {
		t.Fatalf("unexpected typing %s", got)
	}

	s.ApplyIncoming(msg("bob", "m1", 100), OriginRemote)
	if got := strings.Join(s.Typing("bob"), ","); got != "alice" {
		t.Fatalf("expected sender typing cleared, got %s", got)
	}
}

func TestLoadAndSnapshot(t *testing.T) {
	s := newTestStore()
	snap := types.Snapshot{
		Conversations: []types.Conversation{
			{ID: "bob", Name: "Bob", Kind: types.ConversationDirect},
		},
		Messages: map[string][]types.Message{
			"bob":   {msg("bob", "m2", 200), msg("bob", "m1", 100), msg("bob", "m2", 200)},
			"carol": {msg("carol", "c1", 50)},
		},
	}
	s.Load(snap)

	if got := ids(s.Messages("bob")); got != "m1,m2" {
		t.Fatalf("expected deduped sorted log, got %s", got)
	}
	if _, ok := s.Conversation("carol"); !ok {
		t.Fatalf("expected conversation created from orphan log")
	}

	out := s.Snapshot()
	if len(out.Conversations) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(out.Conversations))
	}
	out.Messages["bob"][0].Content = "mutated"
	if s.Messages("bob")[0].Content == "mutated" {
		t.Fatalf("snapshot must be a deep copy")
	}
}

func TestSubscribe(t *testing.T) {
	s := newTestStore()
	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) { changes = append(changes, c) })

	s.ApplyIncoming(msg("bob", "m1", 100), OriginRemote)
	_ = s.Pin("bob", true)
	s.SetTyping("bob", "bob", true)

	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}
	if changes[0].Kind != ChangeMessages || changes[1].Kind != ChangeConversation || changes[2].Persistent() {
		t.Fatalf("unexpected changes %+v", changes)
	}

	unsubscribe()
	unsubscribe()
	s.ApplyIncoming(msg("bob", "m2", 200), OriginRemote)
	if len(changes) != 3 {
		t.Fatalf("expected no changes after unsubscribe, got %d", len(changes))
	}
}

func TestConversationsDoNotInterfere(t *testing.T) {
	s := newTestStore()
	s.ApplyIncoming(msg("bob", "x", 100), OriginRemote)
	s.ApplyIncoming(msg("carol", "x", 200), OriginRemote)
	s.ApplyDelete("bob", "x")

	if len(s.Messages("carol")) != 1 {
		t.Fatalf("expected carol's log untouched")
	}
}
