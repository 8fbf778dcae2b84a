package parser

import (
	"reflect"
	"strings"
	"testing"

	"github.com/aluiziolira/bookroad/models"
)

const testISBN = "9788966262281"

func TestParseTOCNesting(t *testing.T) {
	raw := strings.Join([]string{"Part 1 소개", "Chapter 1 개요", "1.1 배경", "(1) 세부"}, "\n")
	out := ParseTOC(testISBN, raw)

	if len(out.Nodes) != 4 {
		t.Fatalf("nodes = %d, want 4", len(out.Nodes))
	}
	wantLevels := []int{1, 2, 4, 6}
	for i, n := range out.Nodes {
		if n.Level != wantLevels[i] {
			t.Fatalf("node %d level = %d, want %d", i, n.Level, wantLevels[i])
		}
	}

	if len(out.Root.Children) != 1 || out.Root.Children[0] != out.Nodes[0] {
		t.Fatalf("part should be the only child of the root")
	}
	for i := 1; i < len(out.Nodes); i++ {
		parent := out.Nodes[i-1]
		if len(parent.Children) != 1 || parent.Children[0] != out.Nodes[i] {
			t.Fatalf("node %d should be the only child of node %d", i, i-1)
		}
	}
	if len(out.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", out.Failures)
	}
	assertLevelsIncrease(t, out.Root)
}

func TestParseTOCPopsToSibling(t *testing.T) {
	raw := "1장 시작\n1.1 배경\n1.2 목표\n2장 설계\n2.1 구조"
	out := ParseTOC(testISBN, raw)

	if len(out.Root.Children) != 2 {
		t.Fatalf("root children = %d, want 2", len(out.Root.Children))
	}
	first, second := out.Root.Children[0], out.Root.Children[1]
	if first.Title != "시작" || len(first.Children) != 2 {
		t.Fatalf("first chapter = %+v", first)
	}
	if second.Title != "설계" || len(second.Children) != 1 || second.Children[0].Number != "2.1" {
		t.Fatalf("second chapter = %+v", second)
	}
	assertLevelsIncrease(t, out.Root)
}

func TestParseTOCSkippedLevelAttachesToNearestAncestor(t *testing.T) {
	out := ParseTOC(testISBN, "1부 기초\n1.1 용어")
	part := out.Root.Children[0]
	if len(part.Children) != 1 || part.Children[0].Level != 4 {
		t.Fatalf("decimal heading should nest under the part: %+v", part)
	}
}

func TestParseTOCFallbackAppendsToOpenHeading(t *testing.T) {
	out := ParseTOC(testISBN, "1장 개요\n세부 설명\n추가 설명")

	if len(out.Nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(out.Nodes))
	}
	want := "개요 : 세부 설명 : 추가 설명"
	if out.Nodes[0].Title != want {
		t.Fatalf("flat title = %q, want %q", out.Nodes[0].Title, want)
	}
	if out.Root.Children[0].Title != want {
		t.Fatalf("tree title = %q, want %q", out.Root.Children[0].Title, want)
	}
	if len(out.Failures) != 0 {
		t.Fatalf("continuation lines must not fail: %+v", out.Failures)
	}
}

func TestParseTOCFallbackFillsEmptyTitle(t *testing.T) {
	out := ParseTOC(testISBN, "1장.\n운영체제 소개")
	if len(out.Nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(out.Nodes))
	}
	if out.Nodes[0].Title != "운영체제 소개" {
		t.Fatalf("title = %q, want %q", out.Nodes[0].Title, "운영체제 소개")
	}
}

func TestParseTOCFailureBeforeFirstHeading(t *testing.T) {
	out := ParseTOC(testISBN, "그냥 텍스트\n1장 개요")

	want := []models.ParseFailure{{ISBN: testISBN, LineNum: 1, Content: "그냥 텍스트"}}
	if !reflect.DeepEqual(out.Failures, want) {
		t.Fatalf("failures = %+v, want %+v", out.Failures, want)
	}
	if len(out.Nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(out.Nodes))
	}
}

func TestParseTOCSourceLinesSurviveNoise(t *testing.T) {
	raw := "목차\n\n1장 개요 ..... 1\n  12\n1.1 배경 ..... 3"
	out := ParseTOC(testISBN, raw)

	if len(out.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(out.Nodes))
	}
	if out.Nodes[0].SourceLine != 3 || out.Nodes[1].SourceLine != 5 {
		t.Fatalf("source lines = %d,%d want 3,5", out.Nodes[0].SourceLine, out.Nodes[1].SourceLine)
	}
	if out.Nodes[0].Title != "개요" || out.Nodes[1].Title != "배경" {
		t.Fatalf("titles = %q,%q", out.Nodes[0].Title, out.Nodes[1].Title)
	}
}

func TestParseTOCLineEndings(t *testing.T) {
	for _, sep := range []string{"\r\n", "\r", "\u2028"} {
		out := ParseTOC(testISBN, "1장 개요"+sep+"1.1 배경"+sep)
		if len(out.Nodes) != 2 || out.Nodes[1].SourceLine != 2 {
			t.Fatalf("separator %q: nodes=%d", sep, len(out.Nodes))
		}
	}
}

func TestParseTOCEmpty(t *testing.T) {
	for _, raw := range []string{"", "\n\n", "목차\n찾아보기"} {
		out := ParseTOC(testISBN, raw)
		if !out.Empty() || len(out.Failures) != 0 {
			t.Fatalf("ParseTOC(%q) = %d nodes, %d failures", raw, len(out.Nodes), len(out.Failures))
		}
		if len(out.Chapters()) != 0 {
			t.Fatalf("empty outline must produce no chapters")
		}
	}
}

func TestParseTOCIdempotent(t *testing.T) {
	raw := "Part 1 소개\n서문\nChapter 1 개요\n부제\n1.1 배경 ..... 7\n(1) 세부\n2장 설계"
	first := ParseTOC(testISBN, raw).Chapters()
	second := ParseTOC(testISBN, raw).Chapters()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("chapters differ between runs:\n%+v\n%+v", first, second)
	}
}

func TestOutlineChapters(t *testing.T) {
	out := ParseTOC(testISBN, "1장 개요\n1.1 배경\n2장 설계")
	chapters := out.Chapters()
	if len(chapters) != 3 {
		t.Fatalf("chapters = %d, want 3", len(chapters))
	}
	for i, c := range chapters {
		if c.Order != i+1 {
			t.Fatalf("chapter %d order = %d", i, c.Order)
		}
		if c.BookISBN != testISBN {
			t.Fatalf("chapter %d isbn = %q", i, c.BookISBN)
		}
	}
	if chapters[1].Number != "1.1" || chapters[1].Level != 4 {
		t.Fatalf("second chapter = %+v", chapters[1])
	}
}

func TestSplitLines(t *testing.T) {
	got := splitLines("a\r\nb\rc\nd\u2029e\x0cf")
	want := []string{"a", "b", "c", "d", "e", "f"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitLines = %q, want %q", got, want)
	}
	if got := splitLines("a\n"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("trailing newline: %q", got)
	}
	if got := splitLines("a\n\nb"); len(got) != 3 {
		t.Fatalf("blank line must keep numbering: %q", got)
	}
}

func assertLevelsIncrease(t *testing.T, node *models.OutlineNode) {
	t.Helper()
	for _, child := range node.Children {
		if child.Level <= node.Level {
			t.Fatalf("child %q level %d not deeper than parent level %d", child.Title, child.Level, node.Level)
		}
		assertLevelsIncrease(t, child)
	}
}

func TestMarkerNumbersReachChapters(t *testing.T) {
	raw := "A 기업정보시스템\n① 기초통계이론\n1) 항목\n(1) 세부\n(a) 예시"
	chapters := ParseTOC(testISBN, raw).Chapters()

	want := []struct {
		level     int
		number    string
		embedding string
	}{
		{1, "A", "A 기업정보시스템"},
		{2, "①", "① 기초통계이론"},
		{5, "1", "1 항목"},
		{6, "1", "1 세부"},
		{7, "a", "a 예시"},
	}
	if len(chapters) != len(want) {
		t.Fatalf("chapters = %d, want %d", len(chapters), len(want))
	}
	for i, w := range want {
		ch := chapters[i]
		if ch.Level != w.level || ch.Number != w.number || ch.EmbeddingText() != w.embedding {
			t.Fatalf("chapter %d = (%d, %q, %q), want (%d, %q, %q)",
				i, ch.Level, ch.Number, ch.EmbeddingText(), w.level, w.number, w.embedding)
		}
	}
}
