package catalog

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/aluiziolira/bookroad/models"
	"github.com/aluiziolira/bookroad/parser"
)

// LookupOptions is the OptResult set requested for detail lookups.
const LookupOptions = "authors,Toc,fullDescription,publisherReview,itemPage"

// ListType selects an ItemList query.
type ListType string

const (
	ListBestseller ListType = "Bestseller"
	ListNewAll     ListType = "ItemNewAll"
)

// ListResponse is the envelope shared by ItemList, ItemSearch and ItemLookUp.
type ListResponse struct {
	TotalResults int    `json:"totalResults"`
	StartIndex   int    `json:"startIndex"`
	ItemsPerPage int    `json:"itemsPerPage"`
	Items        []Item `json:"item"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Item is one catalog entry. Optional fields that need an explicit absent
// state are pointers.
type Item struct {
	Title            string    `json:"title"`
	Author           string    `json:"author"`
	PubDate          string    `json:"pubDate"`
	Description      string    `json:"description"`
	ISBN13           ISBNField `json:"isbn13"`
	Publisher        string    `json:"publisher"`
	FullDescription  string    `json:"fullDescription"`
	FullDescription2 string    `json:"fullDescription2"`
	PublisherReview  *string   `json:"publisherReview"`
	SubInfo          *SubInfo  `json:"subInfo"`
}

// SubInfo carries the lookup-only nested fields.
type SubInfo struct {
	SubTitle string          `json:"subTitle"`
	ItemPage int             `json:"itemPage"`
	Authors  json.RawMessage `json:"authors"`
	TOC      string          `json:"toc"`
}

// ISBNField accepts either a string or a list of strings; a list is reduced
// to its first element.
type ISBNField string

func (f *ISBNField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			*f = ""
			return nil
		}
		return f.UnmarshalJSON(list[0])
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Numeric identifiers are tolerated and dropped by validation.
		*f = ""
		return nil
	}
	*f = ISBNField(strings.TrimSpace(s))
	return nil
}

// ValidISBN returns the item's ISBN-13 when well formed.
func (it Item) ValidISBN() (string, bool) {
	isbn := string(it.ISBN13)
	return isbn, parser.IsISBN13(isbn)
}

// PublisherDescription prefers publisherReview and falls back to
// fullDescription2 only when the review key is absent.
func (it Item) PublisherDescription() string {
	if it.PublisherReview != nil {
		return *it.PublisherReview
	}
	return it.FullDescription2
}

// Record maps a lookup item onto a BookRecord. Missing fields become their
// zero value or nil, never an error.
func (it Item) Record() *models.BookRecord {
	rec := &models.BookRecord{
		ISBN:                 string(it.ISBN13),
		Title:                it.Title,
		Author:               it.Author,
		Summary:              it.Description,
		Publisher:            it.Publisher,
		PublicationDate:      parser.ParsePubDate(it.PubDate),
		FullDescription:      it.FullDescription,
		PublisherDescription: it.PublisherDescription(),
	}
	if sub := it.SubInfo; sub != nil {
		rec.Subtitle = sub.SubTitle
		rec.PageCount = parser.PageCount(sub.ItemPage)
		rec.RawTOC = sub.TOC
		if len(sub.Authors) > 0 && !bytes.Equal(sub.Authors, []byte("null")) {
			rec.AuthorsJSON = append(json.RawMessage(nil), sub.Authors...)
		}
	}
	return rec
}
