package core

import "fmt"

// FilterKind selects which live query backs a stream.
type FilterKind int

const (
	FilterNone FilterKind = iota
	FilterCategory
	FilterDateRange
)

func (k FilterKind) String() string {
	switch k {
	case FilterNone:
		return "none"
	case FilterCategory:
		return "category"
	case FilterDateRange:
		return "date_range"
	default:
		return fmt.Sprintf("FilterKind(%d)", int(k))
	}
}

// Filter is the active selection criterion. Only the fields of its Kind are used.
type Filter struct {
	Kind     FilterKind
	Category string
	Start    string // yyyy-MM-dd, inclusive
	End      string // yyyy-MM-dd, inclusive
}

// NoFilter matches every expense.
func NoFilter() Filter {
	return Filter{Kind: FilterNone}
}

// ByCategory matches expenses whose category equals c exactly, including c == "".
func ByCategory(c string) Filter {
	return Filter{Kind: FilterCategory, Category: c}
}

// ByDateRange matches expenses with start <= date <= end, compared as strings.
func ByDateRange(start, end string) Filter {
	return Filter{Kind: FilterDateRange, Start: start, End: end}
}

// Key is a stable identifier for the filter, used for cache keys and logs.
func (f Filter) Key() string {
	switch f.Kind {
	case FilterCategory:
		return "category:" + f.Category
	case FilterDateRange:
		return "range:" + f.Start + ".." + f.End
	default:
		return "all"
	}
}

// Selection maps an empty category selection to NoFilter. Stores never
// apply it; a blank category is a real value there.
func (f Filter) Selection() Filter {
	if f.Kind == FilterCategory && f.Category == "" {
		return NoFilter()
	}
	return f
}

func (f Filter) String() string {
	return f.Key()
}

// Matches reports whether e belongs to the filter's result set.
func (f Filter) Matches(e Expense) bool {
	switch f.Kind {
	case FilterCategory:
		return e.Category == f.Category
	case FilterDateRange:
		return f.Start <= e.Date && e.Date <= f.End
	default:
		return true
	}
}
