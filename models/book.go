// Package models defines data structures shared by the ingestion pipeline and the ETL.
package models

import (
	"encoding/json"
	"time"
)

// BookRecord is the persisted catalog entry for one ISBN-13.
type BookRecord struct {
	ISBN                 string          `json:"isbn"`
	Title                string          `json:"title"`
	Author               string          `json:"author"`
	Summary              string          `json:"summary"`
	Subtitle             string          `json:"subtitle"`
	Publisher            string          `json:"publisher"`
	PublicationDate      *time.Time      `json:"publication_date,omitempty"`
	PageCount            *int            `json:"page_count,omitempty"`
	AuthorsJSON          json.RawMessage `json:"authors,omitempty"`
	FullDescription      string          `json:"full_description"`
	PublisherDescription string          `json:"publisher_description"`
	RawTOC               string          `json:"raw_toc"`
	TOCParsingFailed     bool            `json:"toc_parsing_failed"`
	SummaryEmbedding     []float32       `json:"-"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// HasTOC reports whether the record carries any table of contents text.
func (b *BookRecord) HasTOC() bool {
	return b != nil && b.RawTOC != ""
}

// ChapterRecord is one persisted outline heading. Order is 1-based and
// strictly increasing per book.
type ChapterRecord struct {
	ID             int64     `json:"id"`
	BookISBN       string    `json:"isbn"`
	Order          int       `json:"order"`
	Level          int       `json:"level"`
	Number         string    `json:"number"`
	Title          string    `json:"title"`
	TitleEmbedding []float32 `json:"-"`
}

// EmbeddingText is the input sent to the embedder for this chapter.
func (c ChapterRecord) EmbeddingText() string {
	if c.Number == "" {
		return c.Title
	}
	return c.Number + " " + c.Title
}
