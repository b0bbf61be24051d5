package domain

// Chat message types on the wire. History messages are the replay of past
// board messages sent once per connection.
const (
	MessageText    = "text"
	MessageHistory = "history"
)

// ChatMessage is one message on a board's chat channel. Sender fields are
// attached server-side from the connection context and never trusted from the
// client payload.
type ChatMessage struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	SenderID    string `json:"sender_id,omitempty"`
	SenderEmail string `json:"sender_email,omitempty"`
	BoardID     string `json:"board_id,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// Notification is a client-side alert derived from a chat message that
// arrived while its board's chat panel was closed. Notifications are
// volatile; they live only for the current session.
type Notification struct {
	ID         string `json:"id"`
	BoardID    string `json:"board_id"`
	BoardTitle string `json:"board_title"`
	Message    string `json:"message"`
	Sender     string `json:"sender"`
	Timestamp  int64  `json:"timestamp"`
	Read       bool   `json:"read"`
}
