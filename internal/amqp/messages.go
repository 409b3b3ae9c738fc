package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Expense event types.
const (
	EventExpenseCreated = "expense.created"
	EventExpenseDeleted = "expense.deleted"
)

// ExpenseEvent announces a change to one stored expense. It carries only
// identifiers; consumers load the full row from the database.
type ExpenseEvent struct {
	Type      string    `json:"type"`
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Version   int64     `json:"version"`
	Date      string    `json:"date,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseEvent creates an event stamped with the current time.
func NewExpenseEvent(eventType string, id, userID, version int64, date string) *ExpenseEvent {
	return &ExpenseEvent{
		Type:      eventType,
		ID:        id,
		UserID:    userID,
		Version:   version,
		Date:      date,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ExpenseEventFromJSON decodes an event and rejects ones missing an ID or type.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var ev ExpenseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.ID <= 0 {
		return nil, fmt.Errorf("event without expense id")
	}
	switch ev.Type {
	case EventExpenseCreated, EventExpenseDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return &ev, nil
}
