package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"traty/internal/core"
)

// EventKind names the mutation an ExpenseEvent reports.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// IsValid reports whether k is a known kind.
func (k EventKind) IsValid() bool {
	switch k {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	default:
		return false
	}
}

// ExpensePayload is the wire form of core.Expense.
type ExpensePayload struct {
	ID        int64           `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Category  string          `json:"category"`
	Comment   string          `json:"comment,omitempty"`
	Date      string          `json:"date"`
	CreatedAt int64           `json:"createdAt"`
}

// ExpenseEvent announces one effective change to the expenses table.
type ExpenseEvent struct {
	ID         uuid.UUID      `json:"id"`
	Kind       EventKind      `json:"kind"`
	Expense    ExpensePayload `json:"expense"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// NewExpenseEvent stamps a fresh event id and the current time.
func NewExpenseEvent(kind EventKind, e core.Expense) *ExpenseEvent {
	return &ExpenseEvent{
		ID:   uuid.New(),
		Kind: kind,
		Expense: ExpensePayload{
			ID:        e.ID,
			Amount:    e.Amount,
			Currency:  e.Currency,
			Category:  e.Category,
			Comment:   e.Comment,
			Date:      e.Date,
			CreatedAt: e.CreatedAt,
		},
		OccurredAt: time.Now(),
	}
}

// ToExpense converts the payload back to the domain type.
func (p ExpensePayload) ToExpense() core.Expense {
	return core.Expense{
		ID:        p.ID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Category:  p.Category,
		Comment:   p.Comment,
		Date:      p.Date,
		CreatedAt: p.CreatedAt,
	}
}

// ToJSON converts the event to JSON bytes
func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes and validates an event body.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.IsValid() {
		return nil, fmt.Errorf("unknown event kind %q", msg.Kind)
	}
	if msg.ID == uuid.Nil {
		return nil, fmt.Errorf("event without id")
	}
	return &msg, nil
}
