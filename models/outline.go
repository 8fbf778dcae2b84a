package models

import "strconv"

// OutlineNode is one heading of a parsed table of contents. Level 0 is the
// synthetic root; every child has a level strictly greater than its parent.
type OutlineNode struct {
	ISBN       string         `json:"isbn" yaml:"isbn"`
	Number     string         `json:"number" yaml:"number"`
	Title      string         `json:"title" yaml:"title"`
	Level      int            `json:"level" yaml:"level"`
	SourceLine int            `json:"source_line" yaml:"source_line"`
	Children   []*OutlineNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsRoot reports whether n is the synthetic root of an outline.
func (n *OutlineNode) IsRoot() bool {
	return n.Level == 0
}

// CSVHeader matches the column layout of structured_toc_nodes.csv.
func (n *OutlineNode) CSVHeader() []string {
	return []string{"isbn", "level", "number", "title", "source_line"}
}

// CSVRecord renders the node as a row of structured_toc_nodes.csv.
func (n *OutlineNode) CSVRecord() []string {
	return []string{n.ISBN, strconv.Itoa(n.Level), n.Number, n.Title, strconv.Itoa(n.SourceLine)}
}

// ParseFailure records a TOC line that matched neither a heading rule nor
// the continuation fallback.
type ParseFailure struct {
	ISBN    string `json:"isbn" yaml:"isbn"`
	LineNum int    `json:"line_num" yaml:"line_num"`
	Content string `json:"line_content" yaml:"line_content"`
}

// CSVHeader matches the column layout of parsing_failures.csv.
func (f *ParseFailure) CSVHeader() []string {
	return []string{"isbn", "line_num", "line_content"}
}

// CSVRecord renders the failure as a row of parsing_failures.csv.
func (f *ParseFailure) CSVRecord() []string {
	return []string{f.ISBN, strconv.Itoa(f.LineNum), f.Content}
}
