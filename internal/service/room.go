// Package service implements the broadcast/persistence coordinator for a
// single room.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/roomcast-io/roomcast/internal/config"
	"github.com/roomcast-io/roomcast/internal/domain"
	"github.com/roomcast-io/roomcast/internal/hub"
	"github.com/roomcast-io/roomcast/internal/log"
	"github.com/roomcast-io/roomcast/internal/store"
)

// HistoryHeader is the first line of the history replay frame.
const HistoryHeader = "--- Recent history ---"

// persistFailureNotice is sent to the originating session only, best
// effort, when its message could not be persisted.
const persistFailureNotice = "message could not be saved, please retry"

// Room owns the live session set and the write path to the durable log.
// All registry mutations and every persist-then-broadcast sequence run
// under one mutex, so entries have a single total order and no broadcast
// can slip between a joining client's history snapshot and its
// registration. The mutex is never held across network writes: delivery to
// a session is an enqueue onto its buffered channel.
type Room struct {
	name         string
	historyLimit int
	senderLabel  string
	store        store.DurableStore
	hub          *hub.Hub
	wsCfg        config.WebSocketConfig

	mu      sync.Mutex
	lastKey string
	sf      singleflight.Group
	now     func() time.Time
}

// NewRoom builds the coordinator for one room. The room name is the
// instance's identity; multi-room deployments run one Room per name. The
// last assigned entry key is recovered from the store so keys stay
// monotonic across restarts.
func NewRoom(roomCfg config.RoomConfig, wsCfg config.WebSocketConfig, st store.DurableStore, h *hub.Hub) (*Room, error) {
	if strings.TrimSpace(roomCfg.Name) == "" {
		return nil, fmt.Errorf("room name is required")
	}

	label := roomCfg.SenderLabel
	if label == "" {
		label = domain.DefaultSenderLabel
	}

	r := &Room{
		name:         roomCfg.Name,
		historyLimit: roomCfg.HistoryLimit,
		senderLabel:  label,
		store:        st,
		hub:          h,
		wsCfg:        wsCfg,
		now:          time.Now,
	}

	keys, err := st.List(context.Background(), 1, true)
	if err != nil {
		return nil, fmt.Errorf("recover last entry key: %w", err)
	}
	if len(keys) > 0 {
		r.lastKey = keys[0]
	}

	return r, nil
}

func (r *Room) Name() string { return r.name }

// OnConnect fetches the most recent window of entries, queues them to the
// new connection as one history frame, then registers the session —
// strictly in that order and under the room lock, so a concurrent
// broadcast is either in the snapshot or delivered live, never both and
// never neither.
func (r *Room) OnConnect(ctx context.Context, conn *websocket.Conn) *hub.Client {
	client := hub.NewClient(uuid.New().String(), conn, r.wsCfg)

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.fetchRecent(ctx, r.historyLimit)
	if err != nil {
		// Joining with no replay beats refusing the connection; the
		// client still receives everything from here on.
		l := log.Ctx(ctx)
		l.Warn().Err(err).
			Str(log.FieldRoom, r.name).
			Str(log.FieldSessionID, client.Session.ID).
			Msg("history fetch failed, joining without replay")
	}

	if len(entries) > 0 {
		lines := make([]string, 0, len(entries)+1)
		lines = append(lines, HistoryHeader)
		for _, e := range entries {
			lines = append(lines, e.Render())
		}
		client.Enqueue([]byte(strings.Join(lines, "\n")))
	}
	client.Session.Advance(domain.SessionHistorySent)

	r.hub.Register(client)

	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldRoom, r.name).
		Str(log.FieldSessionID, client.Session.ID).
		Int(log.FieldSessions, r.hub.Len()).
		Msg("session joined")

	return client
}

// OnMessage trims and validates the message, assigns a unique monotonic
// timestamp key, persists the entry, and only then broadcasts it. A
// persistence failure drops the message, notifies the sender best effort,
// and leaves the coordinator running.
func (r *Room) OnMessage(ctx context.Context, c *hub.Client, raw string) {
	body := strings.TrimSpace(raw)
	if body == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := domain.NewChatEntry(r.nextEntryTime(), r.senderLabel, body)
	key := entry.Key()

	payload, err := json.Marshal(entry)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldEntryKey, key).Msg("marshal entry")
		return
	}

	if err := r.store.Put(ctx, key, payload); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).
			Str(log.FieldRoom, r.name).
			Str(log.FieldEntryKey, key).
			Msg("persist failed, entry dropped")
		c.Enqueue([]byte(persistFailureNotice))
		return
	}
	r.lastKey = key

	r.hub.Broadcast([]byte(entry.Render()))

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldRoom, r.name).
		Str(log.FieldEntryKey, key).
		Int(log.FieldSessions, r.hub.Len()).
		Msg("entry broadcast")
}

// OnDisconnect removes the session. Duplicate close events are no-ops.
func (r *Room) OnDisconnect(c *hub.Client) {
	r.hub.Unregister(c)
}

// Recent returns the newest entries in chronological order. Concurrent
// identical reads are collapsed with singleflight.
func (r *Room) Recent(ctx context.Context, limit int) ([]domain.ChatEntry, error) {
	if limit <= 0 {
		limit = r.historyLimit
	}
	if max := r.historyLimit * 5; limit > max {
		limit = max
	}

	result, err, _ := r.sf.Do(fmt.Sprintf("recent:%d", limit), func() (interface{}, error) {
		return r.fetchRecent(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.ChatEntry), nil
}

// fetchRecent lists the newest limit keys (reverse order, bounding the
// read to O(limit) regardless of log size), loads each value, and
// re-reverses into chronological order. Keys whose value has vanished are
// skipped.
func (r *Room) fetchRecent(ctx context.Context, limit int) ([]domain.ChatEntry, error) {
	keys, err := r.store.List(ctx, limit, true)
	if err != nil {
		return nil, fmt.Errorf("list recent keys: %w", err)
	}

	entries := make([]domain.ChatEntry, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		value, err := r.store.Get(ctx, keys[i])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get entry %s: %w", keys[i], err)
		}

		var entry domain.ChatEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldEntryKey, keys[i]).Msg("skipping undecodable entry")
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// nextEntryTime returns a wall-clock instant whose formatted key is
// strictly greater than the last assigned key, bumping by one microsecond
// when the clock has not advanced (or has gone backwards).
func (r *Room) nextEntryTime() time.Time {
	ts := r.now().UTC().Truncate(time.Microsecond)
	if r.lastKey != "" && ts.Format(domain.KeyFormat) <= r.lastKey {
		if last, err := domain.ParseKey(r.lastKey); err == nil {
			ts = last.Add(time.Microsecond)
		}
	}
	return ts
}
