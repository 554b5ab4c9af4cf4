package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/roomcast-io/roomcast/internal/config"
	"github.com/roomcast-io/roomcast/internal/hub"
	"github.com/roomcast-io/roomcast/internal/store"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
}

func newTestRoom(t *testing.T, historyLimit int) (*Room, *hub.Hub, store.DurableStore) {
	t.Helper()

	st, err := store.OpenBolt(filepath.Join(t.TempDir(), "roomcast.db"), "test-room")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := hub.NewHub()
	room, err := NewRoom(config.RoomConfig{
		Name:         "test-room",
		HistoryLimit: historyLimit,
		SenderLabel:  "User",
	}, testWSConfig(), st, h)
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	return room, h, st
}

// frozenClock pins the room's clock so key uniqueness comes entirely from
// the monotonic bump.
func frozenClock(room *Room, at time.Time) {
	room.now = func() time.Time { return at }
}

func mustFrame(t *testing.T, c *hub.Client) string {
	t.Helper()
	select {
	case frame := <-c.Send:
		return string(frame)
	default:
		t.Fatal("expected a queued frame")
		return ""
	}
}

func assertNoFrame(t *testing.T, c *hub.Client) {
	t.Helper()
	select {
	case frame := <-c.Send:
		t.Fatalf("unexpected frame %q", frame)
	default:
	}
}

func TestOnConnectWithEmptyHistorySendsNothing(t *testing.T) {
	room, _, _ := newTestRoom(t, 10)

	client := room.OnConnect(context.Background(), nil)

	assertNoFrame(t, client)
}

func TestHistoryReplayContainsOnlyRecentWindow(t *testing.T) {
	room, _, _ := newTestRoom(t, 3)
	frozenClock(room, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	sender := room.OnConnect(context.Background(), nil)
	for i := 1; i <= 8; i++ {
		room.OnMessage(context.Background(), sender, fmt.Sprintf("msg-%d", i))
	}

	joiner := room.OnConnect(context.Background(), nil)
	frame := mustFrame(t, joiner)

	lines := strings.Split(frame, "\n")
	if lines[0] != HistoryHeader {
		t.Fatalf("expected header %q, got %q", HistoryHeader, lines[0])
	}
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 entries, got %d lines: %q", len(lines), frame)
	}
	for i, want := range []string{"msg-6", "msg-7", "msg-8"} {
		if !strings.HasSuffix(lines[i+1], "User: "+want) {
			t.Fatalf("line %d: expected suffix %q, got %q", i+1, want, lines[i+1])
		}
	}
	assertNoFrame(t, joiner)
}

func TestBroadcastPreservesPersistenceOrder(t *testing.T) {
	room, _, _ := newTestRoom(t, 10)

	receiver := room.OnConnect(context.Background(), nil)
	sender := room.OnConnect(context.Background(), nil)

	for i := 1; i <= 5; i++ {
		room.OnMessage(context.Background(), sender, fmt.Sprintf("msg-%d", i))
	}

	for i := 1; i <= 5; i++ {
		frame := mustFrame(t, receiver)
		if !strings.HasSuffix(frame, fmt.Sprintf("User: msg-%d", i)) {
			t.Fatalf("out of order: expected msg-%d, got %q", i, frame)
		}
	}
}

func TestEmptyMessagesAreDiscarded(t *testing.T) {
	room, _, st := newTestRoom(t, 10)

	receiver := room.OnConnect(context.Background(), nil)
	sender := room.OnConnect(context.Background(), nil)

	for _, raw := range []string{"", "   ", "\t\n ", "\r\n"} {
		room.OnMessage(context.Background(), sender, raw)
	}

	keys, err := st.List(context.Background(), 0, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no persisted entries, got %v", keys)
	}
	assertNoFrame(t, receiver)
}

func TestTimestampKeysAreUniqueUnderFrozenClock(t *testing.T) {
	room, _, st := newTestRoom(t, 10)
	frozenClock(room, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	sender := room.OnConnect(context.Background(), nil)
	for i := 0; i < 4; i++ {
		room.OnMessage(context.Background(), sender, "tick")
	}

	keys, err := st.List(context.Background(), 0, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if !(keys[i] > keys[i-1]) {
			t.Fatalf("keys not strictly increasing: %q then %q", keys[i-1], keys[i])
		}
	}
}

func TestLastKeySurvivesRestart(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	room, h, st := newTestRoom(t, 10)
	frozenClock(room, at)
	sender := room.OnConnect(context.Background(), nil)
	room.OnMessage(context.Background(), sender, "before restart")

	restarted, err := NewRoom(config.RoomConfig{Name: "test-room", HistoryLimit: 10}, testWSConfig(), st, h)
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	frozenClock(restarted, at)
	sender2 := restarted.OnConnect(context.Background(), nil)
	restarted.OnMessage(context.Background(), sender2, "after restart")

	keys, err := st.List(context.Background(), 0, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(keys), keys)
	}
	if !(keys[1] > keys[0]) {
		t.Fatalf("key regressed across restart: %q then %q", keys[0], keys[1])
	}
}

type failingStore struct {
	store.DurableStore
}

func (failingStore) Put(ctx context.Context, key string, value []byte) error {
	return errors.New("disk full")
}

func TestPersistFailureNotifiesSenderOnly(t *testing.T) {
	st, err := store.OpenBolt(filepath.Join(t.TempDir(), "roomcast.db"), "test-room")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := hub.NewHub()
	room, err := NewRoom(config.RoomConfig{Name: "test-room", HistoryLimit: 10}, testWSConfig(), failingStore{st}, h)
	if err != nil {
		t.Fatalf("new room: %v", err)
	}

	other := room.OnConnect(context.Background(), nil)
	sender := room.OnConnect(context.Background(), nil)

	room.OnMessage(context.Background(), sender, "doomed")

	if got := mustFrame(t, sender); got != persistFailureNotice {
		t.Fatalf("expected persist failure notice, got %q", got)
	}
	assertNoFrame(t, other)

	keys, err := st.List(context.Background(), 0, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected nothing persisted, got %v", keys)
	}

	// The coordinator must stay live for later messages.
	if h.Len() != 2 {
		t.Fatalf("expected both sessions still registered, got %d", h.Len())
	}
}

func TestThreeClientsAndLateJoinerScenario(t *testing.T) {
	room, _, _ := newTestRoom(t, 10)

	a := room.OnConnect(context.Background(), nil)
	b := room.OnConnect(context.Background(), nil)
	c := room.OnConnect(context.Background(), nil)

	room.OnMessage(context.Background(), a, "hello")

	framePattern := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] User: hello$`)
	for _, client := range []*hub.Client{a, b, c} {
		frame := mustFrame(t, client)
		if !framePattern.MatchString(frame) {
			t.Fatalf("unexpected frame %q", frame)
		}
		assertNoFrame(t, client)
	}

	late := room.OnConnect(context.Background(), nil)
	frame := mustFrame(t, late)
	lines := strings.Split(frame, "\n")
	if len(lines) != 2 || lines[0] != HistoryHeader || !framePattern.MatchString(lines[1]) {
		t.Fatalf("unexpected history frame %q", frame)
	}
	assertNoFrame(t, late)
}

func TestRecentClampsLimit(t *testing.T) {
	room, _, _ := newTestRoom(t, 3)
	frozenClock(room, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	sender := room.OnConnect(context.Background(), nil)
	for i := 1; i <= 20; i++ {
		room.OnMessage(context.Background(), sender, fmt.Sprintf("msg-%d", i))
	}

	entries, err := room.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("default limit: expected 3 entries, got %d", len(entries))
	}
	if entries[0].Body != "msg-18" || entries[2].Body != "msg-20" {
		t.Fatalf("unexpected window %v", entries)
	}

	entries, err = room.Recent(context.Background(), 1000)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 15 {
		t.Fatalf("capped limit: expected 15 entries, got %d", len(entries))
	}
}

func TestDisconnectCleanupIsIdempotent(t *testing.T) {
	room, h, _ := newTestRoom(t, 10)

	client := room.OnConnect(context.Background(), nil)
	if h.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", h.Len())
	}

	room.OnDisconnect(client)
	room.OnDisconnect(client)

	if h.Len() != 0 {
		t.Fatalf("expected 0 sessions, got %d", h.Len())
	}
}

func TestPersistFailureAfterDisconnectDoesNotCrash(t *testing.T) {
	st, err := store.OpenBolt(filepath.Join(t.TempDir(), "roomcast.db"), "test-room")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := hub.NewHub()
	room, err := NewRoom(config.RoomConfig{Name: "test-room", HistoryLimit: 10}, testWSConfig(), failingStore{st}, h)
	if err != nil {
		t.Fatalf("new room: %v", err)
	}

	survivor := room.OnConnect(context.Background(), nil)
	sender := room.OnConnect(context.Background(), nil)

	// The sender is dropped while its message is still in flight; the
	// failure notice then targets a session whose send channel is
	// already closed and must be swallowed, not panic.
	room.OnDisconnect(sender)
	room.OnMessage(context.Background(), sender, "late")

	assertNoFrame(t, survivor)
	if h.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", h.Len())
	}
}
