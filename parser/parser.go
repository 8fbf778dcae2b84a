// Package parser turns raw catalog fields into validated values and raw table
// of contents text into a heading outline.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/aluiziolira/bookroad/models"
)

// PubDateLayout is the catalog's publication date format.
const PubDateLayout = "2006-01-02"

// IsISBN13 reports whether s is exactly thirteen ASCII digits.
func IsISBN13(s string) bool {
	if len(s) != 13 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeISBN trims spacing and hyphens from a catalog identifier.
func NormalizeISBN(s string) string {
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, "-", "")
}

// ParsePubDate parses the catalog date; unknown or malformed dates yield nil.
func ParsePubDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(PubDateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

// PageCount maps the catalog page count to an optional value; zero means unknown.
func PageCount(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

// ValidateBook ensures a fetched record can be keyed. An empty title is
// stored as is so dedup recognises the book on later runs.
func ValidateBook(b *models.BookRecord) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if !IsISBN13(b.ISBN) {
		return fmt.Errorf("book has malformed isbn %q", b.ISBN)
	}
	return nil
}
