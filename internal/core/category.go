package core

import "strings"

// categories is the fixed set of spending categories offered by the expense form.
var categories = []string{
	"Food & Dining",
	"Transportation",
	"Shopping",
	"Entertainment",
	"Bills & Utilities",
	"Healthcare",
	"Education",
	"Travel",
	"Investment",
	"Other",
}

// Categories returns a copy of the category labels in display order.
func Categories() []string {
	return append([]string(nil), categories...)
}

// ParseCategory matches s case-insensitively against the fixed category set
// and returns the canonical label.
func ParseCategory(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyCategory
	}
	for _, c := range categories {
		if strings.EqualFold(c, s) {
			return c, nil
		}
	}
	return "", ErrUnknownCategory
}
