package amqp

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

// NotificationMessage is the wire form of an outbox notification.
// ID is the outbox row ID, so consumers can drop redeliveries.
type NotificationMessage struct {
	ID        string                `json:"id"`
	UserID    string                `json:"user_id"`
	Kind      core.NotificationKind `json:"kind"`
	Category  string                `json:"category"`
	Amount    decimal.Decimal       `json:"amount"`
	Currency  string                `json:"currency"`
	CreatedAt time.Time             `json:"created_at"`
	Timestamp time.Time             `json:"timestamp"`
}

// NewNotificationMessage creates a message for n stamped with the current time
func NewNotificationMessage(n core.Notification) *NotificationMessage {
	return &NotificationMessage{
		ID:        n.ID,
		UserID:    n.UserID,
		Kind:      n.Kind,
		Category:  n.Category,
		Amount:    n.Amount,
		Currency:  n.Currency,
		CreatedAt: n.CreatedAt,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Notification converts the message back to the domain type.
func (m *NotificationMessage) Notification() core.Notification {
	return core.Notification{
		ID:        m.ID,
		UserID:    m.UserID,
		Kind:      m.Kind,
		Category:  m.Category,
		Amount:    m.Amount,
		Currency:  m.Currency,
		CreatedAt: m.CreatedAt,
	}
}

// NotificationMessageFromJSON creates a message from JSON bytes
func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
