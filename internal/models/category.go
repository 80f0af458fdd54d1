package models

import (
	"regexp"
	"strings"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Category is a named, coloured grouping of transactions of one type.
type Category struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Color  string          `json:"color"`
	Type   TransactionType `json:"type"`
	UserID int64           `json:"user_id"`
}

// Validate checks the fields a category needs before it is stored.
func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("category name is required")
	}
	if !colorPattern.MatchString(c.Color) {
		return NewValidationError("category color must look like #RRGGBB, got %q", c.Color)
	}
	if !c.Type.Valid() {
		return NewValidationError("category type must be INCOME or EXPENSE, got %q", c.Type)
	}
	return nil
}

// NormalizeColor upper-cases a hex colour and adds a missing leading '#'.
func NormalizeColor(color string) string {
	color = strings.TrimSpace(color)
	if color != "" && !strings.HasPrefix(color, "#") {
		color = "#" + color
	}
	return strings.ToUpper(color)
}
