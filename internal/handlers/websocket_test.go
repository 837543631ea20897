package handlers_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"provably-fair-dice/internal/handlers"
	"provably-fair-dice/internal/models"
)

type wsMessage struct {
	Type     string                 `json:"type"`
	PlayerID string                 `json:"player_id"`
	Data     map[string]interface{} `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketPushesLedgerEvents(t *testing.T) {
	hub := handlers.NewWebSocketHub(zap.NewNop())
	t.Cleanup(hub.Stop)

	registry := newRegistry(t, inlineScheduler{}, hub)
	h := handlers.NewWebSocketHandler(hub, registry, zap.NewNop())

	r := gin.New()
	r.GET("/api/ws", asPlayer("player-1"), h.HandleWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readMessage(t, conn)
	assert.Equal(t, string(models.EventStateChanged), initial.Type)
	assert.EqualValues(t, 1000, initial.Data["balance"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "PING"}))
	pong := readMessage(t, conn)
	assert.Equal(t, "PONG", pong.Type)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ledger, err := registry.Get(ctx, "player-1")
	require.NoError(t, err)
	_, err = ledger.PlaceBet(10)
	require.NoError(t, err)

	rolling := readMessage(t, conn)
	assert.Equal(t, string(models.EventStateChanged), rolling.Type)
	assert.Equal(t, true, rolling.Data["is_rolling"])

	settled := readMessage(t, conn)
	assert.Equal(t, string(models.EventStateChanged), settled.Type)
	assert.Equal(t, false, settled.Data["is_rolling"])
	assert.EqualValues(t, 1010, settled.Data["balance"])

	record := readMessage(t, conn)
	assert.Equal(t, string(models.EventRollSettled), record.Type)
	assert.Equal(t, "player-1", record.PlayerID)
	assert.EqualValues(t, 5, record.Data["roll"])
	assert.Equal(t, "server-seed-1", record.Data["server_seed"])
}

func TestWebSocketHubIgnoresOtherPlayers(t *testing.T) {
	hub := handlers.NewWebSocketHub(zap.NewNop())
	t.Cleanup(hub.Stop)

	registry := newRegistry(t, inlineScheduler{}, hub)
	h := handlers.NewWebSocketHandler(hub, registry, zap.NewNop())

	r := gin.New()
	r.GET("/api/ws", asPlayer("player-1"), h.HandleWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	readMessage(t, conn)

	hub.BroadcastRollSettled("player-2", &models.RollRecord{Roll: 1})
	hub.BroadcastStateUpdate("player-1", &models.PublicState{Balance: 7})

	msg := readMessage(t, conn)
	assert.Equal(t, string(models.EventStateChanged), msg.Type)
	assert.EqualValues(t, 7, msg.Data["balance"])
}

func TestWebSocketHubDropsStaleStateUpdates(t *testing.T) {
	hub := handlers.NewWebSocketHub(zap.NewNop())
	t.Cleanup(hub.Stop)

	registry := newRegistry(t, inlineScheduler{}, hub)
	h := handlers.NewWebSocketHandler(hub, registry, zap.NewNop())

	r := gin.New()
	r.GET("/api/ws", asPlayer("player-1"), h.HandleWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	readMessage(t, conn)

	hub.BroadcastStateUpdate("player-1", &models.PublicState{Balance: 10, Version: 10})
	hub.BroadcastStateUpdate("player-1", &models.PublicState{Balance: 9, Version: 9})
	hub.BroadcastStateUpdate("player-1", &models.PublicState{Balance: 11, Version: 11})

	assert.EqualValues(t, 10, readMessage(t, conn).Data["version"])
	assert.EqualValues(t, 11, readMessage(t, conn).Data["version"], "version 9 arrived late and is dropped")
}
