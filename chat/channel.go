// Package chat maintains one live websocket connection per open board and
// the ordered message buffer behind the chat panel.
package chat

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"gopanel/domain"
	"gopanel/notify"
	"gopanel/session"
)

// State of a chat channel. A dropped transport moves Open to Reconnecting and
// back; only an explicit Close (or a dead session) reaches Closed.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "closed"
	}
}

// ErrNotConnected is returned by Send while the transport is down.
var ErrNotConnected = errors.New("chat channel is not connected")

const (
	defaultReconnectMin = 500 * time.Millisecond
	reconnectMax        = 30 * time.Second
)

// Config describes one board's chat connection.
type Config struct {
	// URL is the websocket endpoint, e.g. "ws://host/api/chat".
	URL        string
	BoardID    string
	BoardTitle string
	UserID     string
	UserEmail  string
	Tokens     session.TokenSource

	// Notifications receives alerts for messages from other users arriving
	// while the panel is hidden. Optional.
	Notifications *notify.Store
	// OnMessage is invoked for every message appended to the buffer. Optional.
	OnMessage func(domain.ChatMessage)
	Logger    *log.Logger

	// ReconnectMin is the initial reconnect backoff. It doubles per failed
	// attempt up to 30s and resets on a successful connect.
	ReconnectMin time.Duration
}

// Channel is a live chat connection for one board.
type Channel struct {
	cfg    Config
	logger *log.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	messages []domain.ChatMessage
	visible  bool
}

// Open starts the connection for a board's chat panel and clears the board's
// outstanding notifications. The transport is dialed asynchronously; watch
// State for progress.
func Open(cfg Config) (*Channel, error) {
	if cfg.URL == "" || cfg.BoardID == "" || cfg.UserID == "" {
		return nil, errors.New("chat: url, board id and user id are required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("chat: token source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = defaultReconnectMin
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		cfg:     cfg,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateConnecting,
		visible: true,
	}
	if cfg.Notifications != nil {
		cfg.Notifications.ClearForBoard(cfg.BoardID)
	}
	go c.run()
	return c, nil
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a snapshot of the message buffer in display order.
func (c *Channel) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChatMessage(nil), c.messages...)
}

// SetPanelVisible tracks the chat panel's visibility. A hidden panel keeps
// the connection alive but routes other users' messages to the notification
// store; showing it again clears the board's notifications.
func (c *Channel) SetPanelVisible(visible bool) {
	c.mu.Lock()
	c.visible = visible
	c.mu.Unlock()
	if visible && c.cfg.Notifications != nil {
		c.cfg.Notifications.ClearForBoard(c.cfg.BoardID)
	}
}

// Send publishes a text message. The payload carries only type and content;
// sender identity is attached server-side from the connection context.
func (c *Channel) Send(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.New("chat: empty message")
	}

	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return ErrNotConnected
	}

	payload, err := sonic.ConfigStd.Marshal(domain.ChatMessage{
		Type:    domain.MessageText,
		Content: content,
	})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Close tears down the transport. No message is delivered after Close
// returns; a closed channel never reconnects.
func (c *Channel) Close() {
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) run() {
	defer func() {
		c.setState(StateClosed)
		close(c.done)
	}()

	backoff := c.cfg.ReconnectMin
	attempt := 0
	for {
		if c.ctx.Err() != nil {
			return
		}
		if attempt > 0 {
			c.setState(StateReconnecting)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
		}
		attempt++

		conn, err := c.dial()
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				c.logger.WithField("board", c.cfg.BoardID).Error("chat connect aborted: no session")
				return
			}
			if c.ctx.Err() != nil {
				return
			}
			c.logger.WithFields(log.Fields{"board": c.cfg.BoardID, "error": err}).Warn("chat connect failed")
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.state = StateOpen
		c.mu.Unlock()
		c.logger.WithField("board", c.cfg.BoardID).Debug("chat connected")
		backoff = c.cfg.ReconnectMin

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
		if c.ctx.Err() != nil {
			return
		}
		c.logger.WithField("board", c.cfg.BoardID).Debug("chat disconnected")
	}
}

func (c *Channel) dial() (*websocket.Conn, error) {
	token, err := c.cfg.Tokens.Token(c.ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{
		"board_id": {c.cfg.BoardID},
		"user_id":  {c.cfg.UserID},
		"email":    {c.cfg.UserEmail},
		"token":    {token},
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(c.ctx, c.cfg.URL+"?"+q.Encode(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg domain.ChatMessage
		if err := sonic.ConfigStd.Unmarshal(data, &msg); err != nil {
			// Malformed payloads are dropped; the connection stays open.
			c.logger.WithFields(log.Fields{"board": c.cfg.BoardID, "error": err}).Warn("chat payload dropped")
			continue
		}
		c.handle(msg)
	}
}

func (c *Channel) handle(msg domain.ChatMessage) {
	c.mu.Lock()
	if msg.Type == domain.MessageHistory {
		// Idempotent replay: a (timestamp, content) pair appears once.
		for _, existing := range c.messages {
			if existing.Timestamp == msg.Timestamp && existing.Content == msg.Content {
				c.mu.Unlock()
				return
			}
		}
		c.messages = append(c.messages, msg)
		sort.SliceStable(c.messages, func(i, j int) bool {
			return c.messages[i].Timestamp < c.messages[j].Timestamp
		})
		onMessage := c.cfg.OnMessage
		c.mu.Unlock()
		if onMessage != nil {
			onMessage(msg)
		}
		return
	}

	// Live messages arrive already ordered.
	c.messages = append(c.messages, msg)
	notifyIt := !c.visible && msg.SenderEmail != c.cfg.UserEmail && c.cfg.Notifications != nil
	onMessage := c.cfg.OnMessage
	c.mu.Unlock()

	if notifyIt {
		c.cfg.Notifications.Add(domain.Notification{
			BoardID:    c.cfg.BoardID,
			BoardTitle: c.cfg.BoardTitle,
			Message:    msg.Content,
			Sender:     senderName(msg.SenderEmail),
			Timestamp:  msg.Timestamp,
		})
	}
	if onMessage != nil {
		onMessage(msg)
	}
}

func senderName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
