package core

import (
	"fmt"
	"strings"
)

// Category classifies a log record.
type Category string

const (
	CategorySecurity Category = "Security"
	CategoryWeather  Category = "Weather"
	CategoryClimate  Category = "Climate"
	CategoryStatus   Category = "Status"
	CategoryLighting Category = "Lighting"
	CategorySump     Category = "Sump"
)

// LabelWidth is the column width categories are right-justified into.
const LabelWidth = 8

// CommandPrefix is prepended to the upper-cased category to form its log command.
const CommandPrefix = "LOGTXT"

var categories = []Category{
	CategorySecurity,
	CategoryWeather,
	CategoryClimate,
	CategoryStatus,
	CategoryLighting,
	CategorySump,
}

// Categories returns every known category in a stable order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range categories {
		if k == c {
			return true
		}
	}
	return false
}

// Command returns the command name that logs under this category,
// e.g. LOGTXTWEATHER.
func (c Category) Command() string {
	return CommandPrefix + strings.ToUpper(string(c))
}

// ParseCategory resolves a category case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// CategoryFromCommand maps a LOGTXT<CATEGORY> command back to its category.
func CategoryFromCommand(cmd string) (Category, error) {
	if !strings.HasPrefix(cmd, CommandPrefix) {
		return "", fmt.Errorf("invalid log command %q: expected %s<CATEGORY>", cmd, CommandPrefix)
	}
	return ParseCategory(strings.TrimPrefix(cmd, CommandPrefix))
}
