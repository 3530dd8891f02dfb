package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/internal/network"
	"github.com/gravitas-games/gridstash/internal/storage"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/gravitas-games/gridstash/pkg/models"
)

type staticValidator map[string]string // token -> user ID

func (v staticValidator) ValidateToken(_ context.Context, token string) (*models.Player, error) {
	id, ok := v[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &models.Player{ID: id, Username: "user-" + id, Activated: 1}, nil
}

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func startServer(t *testing.T, store storage.SnapshotStore) (*Server, *httptest.Server) {
	t.Helper()
	cfg, err := config.Parse([]byte("session:\n  max_players: 4\n"))
	if err != nil {
		t.Fatalf("config error: %v", err)
	}
	srv, err := New(cfg, quiet(),
		WithValidator(staticValidator{"alice-token": "1", "bob-token": "2"}),
		WithStore(store),
	)
	if err != nil {
		t.Fatalf("server error: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Shutdown()
		ts.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := ws.WriteJSON(wireMessage{Type: msgType, Payload: raw}); err != nil {
		t.Fatalf("write error: %v", err)
	}
}

// readUntil skips messages until one of msgType satisfies match.
func readUntil(t *testing.T, ws *websocket.Conn, msgType string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg wireMessage
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType && (match == nil || match(msg.Payload)) {
			return msg.Payload
		}
	}
}

func ownedBy(owner string) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var s inventory.Snapshot
		return json.Unmarshal(raw, &s) == nil && string(s.Owner) == owner
	}
}

func decodeSnapshot(t *testing.T, raw json.RawMessage) inventory.Snapshot {
	t.Helper()
	var s inventory.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return s
}

func TestRejectsMissingToken(t *testing.T) {
	_, ts := startServer(t, storage.NewMemoryStore())
	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestJoinSendsCatalogAndSnapshots(t *testing.T) {
	_, ts := startServer(t, storage.NewMemoryStore())
	ws := dial(t, ts, "alice-token")

	send(t, ws, network.MsgTypeJoin, struct{}{})
	var welcome network.WelcomePayload
	if err := json.Unmarshal(readUntil(t, ws, network.MsgTypeWelcome, nil), &welcome); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if welcome.PlayerID != "1" || welcome.InventoryID != "player-1" {
		t.Fatalf("unexpected welcome %+v", welcome)
	}
	if len(welcome.Catalog) != inventory.SampleRegistry().Len() {
		t.Fatalf("expected full catalog, got %d kinds", len(welcome.Catalog))
	}

	own := decodeSnapshot(t, readUntil(t, ws, network.MsgTypeInventorySnapshot, ownedBy("1")))
	if own.Rows != 15 || own.Columns != 6 || len(own.Items) != 0 {
		t.Fatalf("expected empty 15x6 backpack, got %+v", own)
	}
}

func TestCommandsRequireJoin(t *testing.T) {
	_, ts := startServer(t, storage.NewMemoryStore())
	ws := dial(t, ts, "alice-token")

	send(t, ws, network.MsgTypeInventoryRotate, network.InventoryRotatePayload{Item: "anything"})
	var e network.ErrorPayload
	if err := json.Unmarshal(readUntil(t, ws, network.MsgTypeError, nil), &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Code != "not_joined" {
		t.Fatalf("expected not_joined, got %q", e.Code)
	}
}

func TestInvalidPayloadRejected(t *testing.T) {
	_, ts := startServer(t, storage.NewMemoryStore())
	ws := dial(t, ts, "alice-token")
	send(t, ws, network.MsgTypeJoin, struct{}{})
	readUntil(t, ws, network.MsgTypeWelcome, nil)

	send(t, ws, network.MsgTypeInventoryMove, map[string]any{"item": "x"})
	var e network.ErrorPayload
	if err := json.Unmarshal(readUntil(t, ws, network.MsgTypeError, nil), &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Code != "invalid_payload" {
		t.Fatalf("expected invalid_payload, got %q", e.Code)
	}
}

func TestLootFromStashAndPersistOnLeave(t *testing.T) {
	store := storage.NewMemoryStore()
	_, ts := startServer(t, store)
	ws := dial(t, ts, "alice-token")

	send(t, ws, network.MsgTypeJoin, struct{}{})
	stash := decodeSnapshot(t, readUntil(t, ws, network.MsgTypeInventorySnapshot, ownedBy("")))
	var apple inventory.ItemSnapshot
	for _, it := range stash.Items {
		if it.Kind == "apple" {
			apple = it
		}
	}
	if apple.ID == "" {
		t.Fatalf("expected an apple in the stash, got %+v", stash.Items)
	}

	send(t, ws, network.MsgTypeInventoryLoot, network.InventoryLootPayload{Item: string(apple.ID)})
	own := decodeSnapshot(t, readUntil(t, ws, network.MsgTypeInventorySnapshot, ownedBy("1")))
	if len(own.Items) != 1 || own.Items[0].Kind != "apple" {
		t.Fatalf("expected looted apple in backpack, got %+v", own.Items)
	}
	var res network.InventoryResultPayload
	if err := json.Unmarshal(readUntil(t, ws, network.MsgTypeInventoryResult, nil), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Outcome != "AllAdded" || res.Given != 1 || res.Command != "loot" {
		t.Fatalf("unexpected result %+v", res)
	}

	send(t, ws, network.MsgTypeLeave, struct{}{})
	send(t, ws, network.MsgTypePing, struct{}{})
	readUntil(t, ws, network.MsgTypePong, nil)

	restored := inventory.New("player-1", "1", 15, 6, 50, inventory.WithRegistry(inventory.SampleRegistry()))
	if err := store.Load(context.Background(), restored); err != nil {
		t.Fatalf("expected saved backpack: %v", err)
	}
	if len(restored.Stacks()) != 1 || !restored.HasItem("apple", 1) {
		t.Fatalf("expected apple to be persisted, got %d stacks", len(restored.Stacks()))
	}
}

func TestDropBroadcastsPickup(t *testing.T) {
	_, ts := startServer(t, storage.NewMemoryStore())
	alice := dial(t, ts, "alice-token")
	bob := dial(t, ts, "bob-token")

	send(t, alice, network.MsgTypeJoin, struct{}{})
	stash := decodeSnapshot(t, readUntil(t, alice, network.MsgTypeInventorySnapshot, ownedBy("")))
	send(t, bob, network.MsgTypeJoin, struct{}{})
	readUntil(t, bob, network.MsgTypeWelcome, nil)

	var scrap inventory.ItemSnapshot
	for _, it := range stash.Items {
		if it.Kind == "scrap" {
			scrap = it
		}
	}
	send(t, alice, network.MsgTypeInventoryLoot, network.InventoryLootPayload{Item: string(scrap.ID)})
	own := decodeSnapshot(t, readUntil(t, alice, network.MsgTypeInventorySnapshot, ownedBy("1")))
	if len(own.Items) != 1 {
		t.Fatalf("expected looted scrap, got %+v", own.Items)
	}
	readUntil(t, alice, network.MsgTypeInventoryResult, nil)

	// Looting places a new stack, so drop it by its backpack ID.
	send(t, alice, network.MsgTypeInventoryDrop, network.InventoryDropPayload{Item: string(own.Items[0].ID)})
	var spawned network.PickupSpawnedPayload
	if err := json.Unmarshal(readUntil(t, bob, network.MsgTypePickupSpawned, nil), &spawned); err != nil {
		t.Fatalf("decode pickup: %v", err)
	}
	if spawned.Kind != "scrap" || spawned.Quantity != 1 {
		t.Fatalf("unexpected pickup %+v", spawned)
	}

	send(t, bob, network.MsgTypeInteractBegin, network.InteractPayload{Pickup: spawned.PickupID})
	var res network.InventoryResultPayload
	if err := json.Unmarshal(readUntil(t, bob, network.MsgTypeInventoryResult, nil), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Outcome != "AllAdded" || res.Pickup != spawned.PickupID {
		t.Fatalf("unexpected take result %+v", res)
	}
	readUntil(t, alice, network.MsgTypePickupRemoved, nil)
}
