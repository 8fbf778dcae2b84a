// Package etl rebuilds the vector store from every stored table of contents.
package etl

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/bookroad/models"
)

const compositeFormat = "도서명: %s. 챕터: %s. 책소개: %s"

// Description returns the first non-blank of the summary, the full
// description and the publisher description.
func Description(b *models.BookRecord) string {
	if b == nil {
		return ""
	}
	for _, s := range []string{b.Summary, b.FullDescription, b.PublisherDescription} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// CompositeText is the text embedded for one chapter: book title, chapter
// title and book description in a fixed template.
func CompositeText(b *models.BookRecord, n *models.OutlineNode) string {
	var bookTitle, chapterTitle string
	if b != nil {
		bookTitle = b.Title
	}
	if n != nil {
		chapterTitle = n.Title
	}
	return fmt.Sprintf(compositeFormat, bookTitle, chapterTitle, Description(b))
}
