package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RUB = "RUB"
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"

	// DefaultCurrency is stored when an expense arrives without a currency.
	DefaultCurrency = RUB

	// DateLayout is the on-disk date format. Range filters compare it lexically.
	DateLayout = "2006-01-02"
)

// Built-in categories, in display order.
const (
	CategoryFood          = "Food"
	CategoryTransport     = "Transport"
	CategoryEntertainment = "Entertainment"
	CategoryUtilities     = "Utilities"
	CategoryOther         = "Other"
)

var (
	Currencies        = []string{RUB, USD, EUR, GBP}
	BuiltinCategories = []string{CategoryFood, CategoryTransport, CategoryEntertainment, CategoryUtilities, CategoryOther}
)

type (
	// Expense is the only persisted record type.
	Expense struct {
		ID        int64
		Amount    decimal.Decimal
		Currency  string
		Category  string
		Comment   string // empty means no comment
		Date      string // yyyy-MM-dd
		CreatedAt int64  // milliseconds since epoch, ordering key
	}

	// Snapshot is the full ordered result of a query at one table version.
	Snapshot struct {
		Version  uint64
		Filter   Filter
		Expenses []Expense
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyDate          = errors.New("empty date")
	ErrInvalidDate        = errors.New("invalid date")
	ErrUnknownCurrency    = errors.New("unknown currency")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Len returns the number of expenses in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Expenses)
}

// Clone returns a snapshot whose expense slice is not shared with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Expenses != nil {
		out.Expenses = append([]Expense(nil), s.Expenses...)
	}
	return out
}

// Total sums the amounts of every expense, ignoring currency.
func (s Snapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range s.Expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// IsBuiltinCategory reports whether name is one of the fixed categories.
func IsBuiltinCategory(name string) bool {
	for _, c := range BuiltinCategories {
		if c == name {
			return true
		}
	}
	return false
}

// IsKnownCurrency reports whether code is one of the supported currency codes.
func IsKnownCurrency(code string) bool {
	for _, c := range Currencies {
		if c == code {
			return true
		}
	}
	return false
}

// CurrencySymbol returns the display symbol for code, or code itself when unknown.
func CurrencySymbol(code string) string {
	switch code {
	case RUB:
		return "₽"
	case USD:
		return "$"
	case EUR:
		return "€"
	case GBP:
		return "£"
	default:
		return code
	}
}

// ExpenseInput is the raw form data a screen collects before an Expense exists.
type ExpenseInput struct {
	Amount   string
	Currency string
	Category string
	Comment  string
	Date     string
}

// Build validates the input and constructs an Expense ready for insertion.
// The storage layer never sees records that fail here.
func (in ExpenseInput) Build() (Expense, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return Expense{}, err
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return Expense{}, ErrEmptyCategory
	}
	date := strings.TrimSpace(in.Date)
	if date == "" {
		return Expense{}, ErrEmptyDate
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return Expense{}, ErrInvalidDate
	}
	currency := strings.TrimSpace(in.Currency)
	if currency == "" {
		currency = DefaultCurrency
	} else if !IsKnownCurrency(currency) {
		return Expense{}, ErrUnknownCurrency
	}
	return Expense{
		Amount:   amount,
		Currency: currency,
		Category: category,
		Comment:  strings.TrimSpace(in.Comment),
		Date:     date,
	}, nil
}
