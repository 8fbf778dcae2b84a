package parser

import (
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	leadingDecoration = regexp.MustCompile(`^[\s_\-■•ㆍ]+`)
	trailingPageNum   = regexp.MustCompile(`([\s.]{2,}|[ \t]+)([0-9xvi]+|\d{1,3}(?:,\d{3})*)(\s*</?b>)?$`)
	barePageNum       = regexp.MustCompile(`(?i)^([0-9xvi]+|\d{1,3}(?:,\d{3})+)$`)
)

type noiseRule struct {
	name string
	re   *regexp.Regexp
}

// noiseRules is evaluated in order and the first hit discards the line.
var noiseRules = []noiseRule{
	{"front_matter_ko", regexp.MustCompile(`(?i)^\s*(옮긴이 머리말|베타리더|감수의 글|감사의 글|지은이의 말|옮긴이의 말|저자 소개|역자 서문|책머리에|이 책에 대하여|찾아보기|목차|Contents|서문|들어가며|추천사|머리말|서언|발간사|프롤로그|Prologue|맺는 말|에필로그|부록|감사의 말|참고 문헌|연보|해설|주석|편집자의 말|추천의 글|지은이의 글|저자 서문|역자의 말|작품 해설|작가 연보|지은이 소개|옮긴이 소개|지은이 머리말)`)},
	{"exercise_prefix", regexp.MustCompile(`(?i)^(Exercise|연습문제|이것만은 알고 갑시다)`)},
	{"exercise_standalone", regexp.MustCompile(`(?i)^[\s·ㆍ]*(연습문제|요약|핵심정리|확인 문제)[\s·ㆍ]*$`)},
	{"edition_preface", regexp.MustCompile(`(?i)^\s*([0-9]+판|한국어판|개정판)\s*(서문|머리말|을 내며)`)},
	{"front_matter_en", regexp.MustCompile(`(?i)^\s*(To (Everyone|Educators|Students)|Acknowledgments|Final Words|References|Introduction|PREFACE|Summary|Index|Glossary)`)},
	{"reading_guide", regexp.MustCompile(`(?i)^\s*(이 책을 (보는|읽는) (방법|법)|이 책의 (사용|활용)법|이 책의 (사용|목적|구성|특징)|시작하기 전에|주의|저작권 안내|상세 변경 이력|학습 (방법|가이드|로드맵|지원 안내)|강의 (계획|보조 자료)|일러두기|등장인물|용어 (설명|해설|대역표)|(지은이|옮긴이|감수자|기술 감수자|저자|역자|작가|베타리더|리뷰어|편집자).*(소개|의 글|주|서문|후기|머리말|대담|인터뷰|추천사)|표지에 대하여|해제|발문|서론|서설|개요|도입|시작하며|들어가기 전에|글을 (열며|시작하며|내면서)|책을 (내면서|펴내며|시작하며|머리에)|여는 글|책 머리에|숲과 나무 이야기)`)},
	{"bracket_only", regexp.MustCompile(`^\s*\[.*\]\s*$`)},
	{"bracket_marker", regexp.MustCompile(`^\s*\[(문제|칼럼|실습|Do it!|LAB|응용 예제|프로젝트)`)},
	{"worksheet", regexp.MustCompile(`^(OMR 답안지|// 나눗셈 연산자|논\.설\.해\.변\.책|서\.발)`)},
	{"divider", regexp.MustCompile(`^={2,}.*={2,}$`)},
	{"appendix_letter", regexp.MustCompile(`^(부록)\s+[A-Z]\.?`)},
	{"table_caption", regexp.MustCompile(`^\s*<표.*>.*$`)},
	{"figure_caption", regexp.MustCompile(`^\s*<그림.*>.*$`)},
	{"example_marker", regexp.MustCompile(`^#\s*예제\d+`)},
	{"day_marker", regexp.MustCompile(`^DAY\s*\d+`)},
	{"episode_marker", regexp.MustCompile(`^\d+화\s+`)},
	{"pipe_framed", regexp.MustCompile(`^\s*\|.*\|\s*$`)},
	{"attachment", regexp.MustCompile(`^\s*\[붙임 \d+\]`)},
	{"quiz_bullet", regexp.MustCompile(`^\s*(￭|●|◎|::|\+\+|◇)\s*(연습|프로그래밍|퀴즈)`)},
	{"step_marker", regexp.MustCompile(`^\s*Step\d+`)},
	{"week_marker", regexp.MustCompile(`^\s*WEEK`)},
	{"escaped_angle", regexp.MustCompile(`^\s*&lt;.*&gt;`)},
	{"hash_number", regexp.MustCompile(`^\s*#\d+`)},
	{"value_chain_summary", regexp.MustCompile(`(?i)^\s*Value Chain.*BSC.*$`)},
	{"lettered_summary", regexp.MustCompile(`(?i)^\s*[A-Z][가-힣]+ / [A-Z][가-힣]+.*$`)},
	{"series_banner", regexp.MustCompile(`(?i)^\s*\(전면개정판\)\s*핵심 정보통신기술 총서.*$`)},
	{"chart_index", regexp.MustCompile(`(?i)^\s*이 책에서 소개하는 차트.*$`)},
	{"essay_credit", regexp.MustCompile(`^\s*이순신론 / 이민수`)},
	{"ranking_sites", regexp.MustCompile(`(?i)^\s*최신 AI 랭킹 사이트.*$`)},
	{"glossary_box", regexp.MustCompile(`(?i)^\s*전문 용어 잠깐 알아보기`)},
	{"tool_table", regexp.MustCompile(`(?i)^\s*생성형 AI 도구 100선 요약표`)},
	{"tool_report", regexp.MustCompile(`(?i)^\s*리포트 : AI 도구 100선.*$`)},
	{"blurb", regexp.MustCompile(`^\s*(이 책은 데이터베이스를 처음 공부하는|모바일 웹에 빠져 보세요|통계학에 임하는 여러분의 두뇌).*$`)},
	{"bare_part", regexp.MustCompile(`(?i)^\s*(Part|PART|LC|RC)\s*$`)},
	{"exam_part", regexp.MustCompile(`(?i)^\s*(LC|RC).*(Part|기초|학습)`)},
}

// CleanLine normalises one physical TOC line. It returns false when the line
// carries no heading content and must be discarded.
func CleanLine(raw string) (string, bool) {
	line := stripMarkup(raw)
	line = leadingDecoration.ReplaceAllString(line, "")
	line = strings.TrimSpace(line)
	line = trailingPageNum.ReplaceAllString(line, "")
	line = strings.TrimSpace(line)

	if barePageNum.MatchString(line) {
		return "", false
	}

	line = strings.Join(strings.Fields(line), " ")
	if line == "" {
		return "", false
	}

	if rule, ok := matchNoise(line); ok {
		slog.Debug("discarded noise line", slog.String("rule", rule), slog.String("line", line))
		return "", false
	}
	return line, true
}

func matchNoise(line string) (string, bool) {
	for _, rule := range noiseRules {
		if rule.re.MatchString(line) {
			return rule.name, true
		}
	}
	return "", false
}

// stripMarkup drops tags and comments. Text is kept verbatim so entity
// escaped content reaches the noise table unchanged. An unclosed "<" is text,
// not a tag.
func stripMarkup(raw string) string {
	if !strings.ContainsRune(raw, '<') {
		return raw
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return raw
			}
			b.Write(z.Raw())
			return b.String()
		case html.TextToken:
			b.Write(z.Raw())
		}
	}
}
