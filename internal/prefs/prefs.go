// Package prefs persists small keyed string values: the custom category list
// and similar settings that live outside the expenses table.
package prefs

import (
	"encoding/json"
	"strings"
)

// KeyCustomCategories holds the user's custom categories as a JSON array.
const KeyCustomCategories = "custom_categories"

// Store is a keyed string store. GetString returns def when key is absent.
type Store interface {
	GetString(key, def string) (string, error)
	PutString(key, value string) error
}

// DecodeCategories parses a stored category blob. Any malformed input yields
// an empty list; blanks and duplicates are dropped, order is kept.
func DecodeCategories(raw string) []string {
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return []string{}
	}
	return Normalize(list)
}

// EncodeCategories renders the list as a JSON array. A nil list encodes as [].
func EncodeCategories(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Normalize trims names and drops blanks and duplicates, keeping first
// occurrences in order.
func Normalize(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
