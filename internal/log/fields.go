package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldExpenseID = "expense_id"
	FieldAmount    = "amount"
	FieldCurrency  = "currency"
	FieldCategory  = "category"
	FieldDate      = "date"
	FieldFilter    = "filter"
	FieldVersion   = "version"
	FieldCount     = "count"
	FieldChanged   = "changed"
	FieldEventID   = "event_id"
	FieldEventKind = "event_kind"
	FieldKey       = "key"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentStorage   = "storage"
	ComponentLive      = "live"
	ComponentViewState = "viewstate"
	ComponentPrefs     = "prefs"
	ComponentAMQP      = "amqp"
	ComponentEvents    = "events"
	ComponentNotify    = "notify"
	ComponentBackend   = "backend"
	ComponentCache     = "cache"
	ComponentOps       = "ops"
)

// Operations defines standard operation names
const (
	OpInsert    = "insert"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpQuery     = "query"
	OpSubscribe = "subscribe"
	OpClear     = "clear"
	OpPersist   = "persist"
	OpPublish   = "publish"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithExpense adds expense-related fields
func (f LogFields) WithExpense(id int64, amount, currency, category, date string) LogFields {
	f[FieldExpenseID] = id
	f[FieldAmount] = amount
	f[FieldCurrency] = currency
	f[FieldCategory] = category
	f[FieldDate] = date
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
