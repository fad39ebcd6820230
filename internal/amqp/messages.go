package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrMalformedMessage = errors.New("malformed expense message")

// ExpenseRecorded announces a newly stored expense. It carries only ids; the
// worker loads the full record from the database.
type ExpenseRecorded struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseRecorded(id, userID string, at time.Time) *ExpenseRecorded {
	return &ExpenseRecorded{
		ID:        id,
		UserID:    userID,
		Timestamp: at.UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseRecorded) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseRecordedFromJSON decodes a message, rejecting ones without an expense id.
func ExpenseRecordedFromJSON(data []byte) (*ExpenseRecorded, error) {
	var msg ExpenseRecorded
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Join(ErrMalformedMessage, err)
	}
	if msg.ID == "" {
		return nil, ErrMalformedMessage
	}
	return &msg, nil
}
