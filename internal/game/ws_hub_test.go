package game_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/allocation-game/internal/catalog"
	"github.com/atmx/allocation-game/internal/game"
	"github.com/atmx/allocation-game/internal/store"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWSHub_BroadcastsSessionEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := game.NewWSHub()
	go hub.Run(ctx)

	svc := game.NewService(store.NewMemoryStore(), catalog.MustDefault(), testConfig(), hub)
	router := newRouter(svc)
	router.Get("/ws", hub.HandleWS)

	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return hub.Clients() == 1 })

	id := seedActive(t, router, "ana")

	// Register emits nothing; start emits one status event.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg game.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != game.EventSessionStatus || msg.SessionID != id || msg.Status != "active" {
		t.Errorf("unexpected event: %+v", msg)
	}

	expectStatus(t, buy(t, router, id, "ana", "Silver", "1000"), 200)
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != game.EventTradeExecuted || msg.Asset != "Silver" || msg.Direction != "buy" || msg.Amount != "1000" {
		t.Errorf("unexpected event: %+v", msg)
	}

	cancel()
	waitFor(t, func() bool { return hub.Clients() == 0 })
}
