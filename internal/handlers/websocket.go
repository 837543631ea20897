package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"provably-fair-dice/internal/middleware"
	"provably-fair-dice/internal/models"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsBroadcastQueue = 100
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	ledgers LedgerProvider
	hub     *WebSocketHub
	log     *zap.Logger
}

// WebSocketHub pushes ledger events to every open connection of a player.
// All socket writes happen on the hub goroutine.
type WebSocketHub struct {
	clients    map[string]map[*Client]bool
	versions   map[string]uint64
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	quit       chan struct{}
	stopOnce   sync.Once
	log        *zap.Logger
}

type Client struct {
	PlayerID string
	Conn     *websocket.Conn
}

type Message struct {
	Type     string      `json:"type"`
	PlayerID string      `json:"player_id,omitempty"`
	Data     interface{} `json:"data"`

	target  *Client
	version uint64
}

func NewWebSocketHub(log *zap.Logger) *WebSocketHub {
	hub := &WebSocketHub{
		clients:    make(map[string]map[*Client]bool),
		versions:   make(map[string]uint64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, wsBroadcastQueue),
		quit:       make(chan struct{}),
		log:        log,
	}

	go hub.run()

	return hub
}

func NewWebSocketHandler(hub *WebSocketHub, ledgers LedgerProvider, log *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		ledgers: ledgers,
		hub:     hub,
		log:     log,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	playerID := c.GetString(middleware.ContextPlayerID)

	ledger, err := h.ledgers.Get(c.Request.Context(), playerID)
	if err != nil {
		h.log.Error("failed to load ledger for websocket", zap.String("player_id", playerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load game"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("failed to upgrade to websocket", zap.Error(err))
		return
	}

	client := &Client{
		PlayerID: playerID,
		Conn:     conn,
	}

	if !h.hub.add(client) {
		conn.Close()
		return
	}
	defer h.hub.remove(client)

	h.hub.send(&Message{
		Type:     string(models.EventStateChanged),
		PlayerID: playerID,
		Data:     ledger.PublicState(),
		target:   client,
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket closed", zap.String("player_id", playerID), zap.Error(err))
			}
			return
		}

		h.handleMessage(client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case "PING":
		h.hub.send(&Message{
			Type: "PONG",
			Data: gin.H{
				"timestamp": time.Now().Unix(),
			},
			target: client,
		})
	}
}

// BroadcastStateUpdate implements services.Broadcaster.
func (hub *WebSocketHub) BroadcastStateUpdate(playerID string, state *models.PublicState) {
	msg := &Message{
		Type:     string(models.EventStateChanged),
		PlayerID: playerID,
		Data:     state,
	}
	if state != nil {
		msg.version = state.Version
	}
	hub.send(msg)
}

// BroadcastRollSettled implements services.Broadcaster.
func (hub *WebSocketHub) BroadcastRollSettled(playerID string, record *models.RollRecord) {
	hub.send(&Message{
		Type:     string(models.EventRollSettled),
		PlayerID: playerID,
		Data:     record,
	})
}

// send never blocks the caller; ledger observers run on the settlement path.
func (hub *WebSocketHub) send(msg *Message) {
	select {
	case hub.broadcast <- msg:
	case <-hub.quit:
	default:
		hub.log.Warn("websocket queue full, dropping message",
			zap.String("type", msg.Type),
			zap.String("player_id", msg.PlayerID))
	}
}

func (hub *WebSocketHub) add(client *Client) bool {
	select {
	case hub.register <- client:
		return true
	case <-hub.quit:
		return false
	}
}

func (hub *WebSocketHub) remove(client *Client) {
	select {
	case hub.unregister <- client:
	case <-hub.quit:
	}
}

// Stop closes all connections and ends the hub goroutine.
func (hub *WebSocketHub) Stop() {
	hub.stopOnce.Do(func() {
		close(hub.quit)
	})
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			conns, ok := hub.clients[client.PlayerID]
			if !ok {
				conns = make(map[*Client]bool)
				hub.clients[client.PlayerID] = conns
			}
			conns[client] = true
			hub.log.Debug("client registered", zap.String("player_id", client.PlayerID))

		case client := <-hub.unregister:
			hub.drop(client)

		case message := <-hub.broadcast:
			hub.deliver(message)

		case <-hub.quit:
			for _, conns := range hub.clients {
				for client := range conns {
					client.Conn.Close()
				}
			}
			hub.clients = make(map[string]map[*Client]bool)
			hub.versions = make(map[string]uint64)
			return
		}
	}
}

func (hub *WebSocketHub) drop(client *Client) {
	conns, ok := hub.clients[client.PlayerID]
	if !ok || !conns[client] {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(hub.clients, client.PlayerID)
		delete(hub.versions, client.PlayerID)
	}
	client.Conn.Close()
	hub.log.Debug("client unregistered", zap.String("player_id", client.PlayerID))
}

func (hub *WebSocketHub) deliver(message *Message) {
	if message.target != nil {
		if hub.clients[message.target.PlayerID][message.target] {
			hub.write(message.target, message)
		}
		return
	}

	conns := hub.clients[message.PlayerID]
	if len(conns) == 0 {
		return
	}

	// State updates can reach the queue out of order; never send one older
	// than what the player already has.
	if message.version != 0 {
		if message.version < hub.versions[message.PlayerID] {
			return
		}
		hub.versions[message.PlayerID] = message.version
	}

	for client := range conns {
		hub.write(client, message)
	}
}

func (hub *WebSocketHub) write(client *Client, message *Message) {
	client.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := client.Conn.WriteJSON(message); err != nil {
		hub.log.Warn("websocket write failed", zap.String("player_id", client.PlayerID), zap.Error(err))
		hub.drop(client)
	}
}
