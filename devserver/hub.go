package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"gopanel/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	maxMsgSize = 2048
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub manages the chat rooms, one per board.
type Hub struct {
	store  *MemStore
	logger *log.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

// NewHub creates a hub persisting messages to the store.
func NewHub(store *MemStore, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{store: store, logger: logger, rooms: make(map[string]*room)}
}

type room struct {
	boardID    string
	clients    map[*wsClient]bool
	broadcast  chan domain.ChatMessage
	register   chan *wsClient
	unregister chan *wsClient
}

type wsClient struct {
	room   *room
	conn   *websocket.Conn
	send   chan domain.ChatMessage
	userID string
	email  string
}

func (h *Hub) room(boardID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[boardID]; ok {
		return r
	}
	r := &room{
		boardID:    boardID,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan domain.ChatMessage),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
	h.rooms[boardID] = r
	go r.run()
	return r
}

func (r *room) run() {
	for {
		select {
		case c := <-r.register:
			r.clients[c] = true
		case c := <-r.unregister:
			if _, ok := r.clients[c]; ok {
				delete(r.clients, c)
				close(c.send)
			}
		case msg := <-r.broadcast:
			for c := range r.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(r.clients, c)
				}
			}
		}
	}
}

// handleWebSocket upgrades the connection, joins the board's room and replays
// history. The token query parameter must validate; sender identity comes from
// the token and connection, never from the payload.
func (h *Hub) handleWebSocket(auth *Auth) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		boardID := c.QueryParam("board_id")
		email := c.QueryParam("email")
		if boardID == "" {
			return c.String(http.StatusBadRequest, "board_id is required")
		}
		userID, err := auth.UserIDFromToken(c.QueryParam("token"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		conn, err := upgrader.Upgrade(c.Response(), r, nil)
		if err != nil {
			h.logger.WithField("error", err).Warn("chat upgrade failed")
			return nil
		}

		room := h.room(boardID)
		client := &wsClient{
			room:   room,
			conn:   conn,
			send:   make(chan domain.ChatMessage, 256),
			userID: userID,
			email:  email,
		}
		room.register <- client

		go client.writePump()
		go h.readPump(client)

		// Replay before any live traffic so the buffered channel preserves
		// history-first ordering.
		for _, m := range h.store.History(boardID) {
			m.Type = domain.MessageHistory
			client.send <- m
		}
		return nil
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			payload, err := sonic.ConfigStd.Marshal(msg)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		c.room.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.WithFields(log.Fields{"board": c.room.boardID, "error": err}).Debug("chat read ended")
			}
			return
		}
		var msg domain.ChatMessage
		if err := sonic.ConfigStd.Unmarshal(data, &msg); err != nil {
			h.logger.WithField("error", err).Warn("chat payload dropped")
			continue
		}

		msg.Type = domain.MessageText
		msg.SenderID = c.userID
		msg.SenderEmail = c.email
		msg.BoardID = c.room.boardID
		msg.Timestamp = time.Now().UnixMilli()

		h.store.AppendMessage(msg)
		c.room.broadcast <- msg
	}
}
