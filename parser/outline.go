package parser

import (
	"log/slog"
	"unicode/utf8"

	"github.com/aluiziolira/bookroad/models"
)

const (
	rootNumber = "0"
	rootTitle  = "BOOK_ROOT"

	// ContinuationDelimiter joins a continuation line onto the open heading.
	ContinuationDelimiter = " : "
)

// Outline is the result of parsing one book's table of contents. Nodes lists
// every heading in document order and shares its pointers with the tree under
// Root.
type Outline struct {
	ISBN     string
	Root     *models.OutlineNode
	Nodes    []*models.OutlineNode
	Failures []models.ParseFailure
}

// ParseTOC builds the heading tree for raw. It never fails; lines it cannot
// place are reported in Failures.
func ParseTOC(isbn, raw string) *Outline {
	root := &models.OutlineNode{
		ISBN:   isbn,
		Number: rootNumber,
		Title:  rootTitle,
		Level:  0,
	}
	out := &Outline{ISBN: isbn, Root: root}
	stack := []*models.OutlineNode{root}

	for i, physical := range splitLines(raw) {
		lineNum := i + 1
		line, ok := CleanLine(physical)
		if !ok {
			continue
		}

		if m, ok := MatchHeading(line); ok {
			for stack[len(stack)-1].Level >= m.Level {
				stack = stack[:len(stack)-1]
			}
			parent := stack[len(stack)-1]
			node := &models.OutlineNode{
				ISBN:       isbn,
				Number:     m.Number,
				Title:      m.Title,
				Level:      m.Level,
				SourceLine: lineNum,
			}
			parent.Children = append(parent.Children, node)
			stack = append(stack, node)
			out.Nodes = append(out.Nodes, node)
			continue
		}

		top := stack[len(stack)-1]
		if !top.IsRoot() {
			if top.Title == "" {
				top.Title = line
			} else {
				top.Title += ContinuationDelimiter + line
			}
			continue
		}

		slog.Warn("unmatched toc line",
			slog.String("isbn", isbn),
			slog.Int("line", lineNum),
			slog.String("content", line),
		)
		out.Failures = append(out.Failures, models.ParseFailure{
			ISBN:    isbn,
			LineNum: lineNum,
			Content: line,
		})
	}

	return out
}

// Empty reports whether no heading was recognised.
func (o *Outline) Empty() bool {
	return len(o.Nodes) == 0
}

// Chapters flattens the outline into persistable rows in document order.
func (o *Outline) Chapters() []models.ChapterRecord {
	chapters := make([]models.ChapterRecord, 0, len(o.Nodes))
	for i, n := range o.Nodes {
		chapters = append(chapters, models.ChapterRecord{
			BookISBN: o.ISBN,
			Order:    i + 1,
			Level:    n.Level,
			Number:   n.Number,
			Title:    n.Title,
		})
	}
	return chapters
}

// splitLines splits on every line boundary a text file may carry while
// keeping physical line numbering stable.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	var lines []string
	start := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch r {
		case '\r':
			lines = append(lines, s[start:i])
			i += size
			if i < len(s) && s[i] == '\n' {
				i++
			}
			start = i
			continue
		case '\n', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
			lines = append(lines, s[start:i])
			i += size
			start = i
			continue
		}
		i += size
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
