package storage

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

const (
	defaultMatchesPerFile = 20
	defaultMaxResults     = 50
	maxExcerptRunes       = 200
)

// SearchQuery selects files by content and, optionally, by a glob over the path.
type SearchQuery struct {
	Query string
	// Pattern is a doublestar glob such as "src/**/*.ts". A pattern without a
	// slash matches the base name only ("*.go").
	Pattern string
	// Regex treats Query as a regular expression instead of a literal substring.
	Regex bool
	// CaseSensitive disables the default case folding.
	CaseSensitive bool
	// MaxMatchesPerFile caps the excerpts kept per file; TotalMatches still counts all.
	MaxMatchesPerFile int
	// MaxResults caps the number of files returned.
	MaxResults int
}

type searcher struct {
	q    SearchQuery
	re   *regexp.Regexp
	resp models.SearchResponse
}

func newSearcher(q SearchQuery) (*searcher, error) {
	if q.Query == "" {
		return nil, models.InvalidArgument("search query is empty")
	}
	expr := q.Query
	if !q.Regex {
		expr = regexp.QuoteMeta(expr)
	}
	if !q.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, models.InvalidArgument("invalid search pattern: %v", err)
	}
	if q.Pattern != "" && !doublestar.ValidatePattern(strings.TrimPrefix(q.Pattern, "/")) {
		return nil, models.InvalidArgument("invalid file pattern %q", q.Pattern)
	}
	if q.MaxMatchesPerFile <= 0 {
		q.MaxMatchesPerFile = defaultMatchesPerFile
	}
	if q.MaxResults <= 0 {
		q.MaxResults = defaultMaxResults
	}
	return &searcher{
		q:    q,
		re:   re,
		resp: models.SearchResponse{Query: q.Query, Results: []models.SearchResult{}},
	}, nil
}

// wantPath applies the glob filter.
func (s *searcher) wantPath(path string) bool {
	if s.q.Pattern == "" {
		return true
	}
	pattern := strings.TrimPrefix(s.q.Pattern, "/")
	rel := strings.TrimPrefix(path, "/")
	if !strings.Contains(pattern, "/") {
		rel = rel[strings.LastIndexByte(rel, '/')+1:]
	}
	ok, err := doublestar.Match(pattern, rel)
	return err == nil && ok
}

// add scans one file. It returns false once the result cap is exceeded.
func (s *searcher) add(path, content string) bool {
	if !s.wantPath(path) {
		return true
	}
	res := models.SearchResult{Path: path, Matches: []models.SearchMatch{}}
	for i, line := range strings.Split(content, "\n") {
		if !s.re.MatchString(line) {
			continue
		}
		res.TotalMatches++
		if len(res.Matches) < s.q.MaxMatchesPerFile {
			res.Matches = append(res.Matches, models.SearchMatch{Line: i + 1, Excerpt: excerpt(line)})
		}
	}
	if res.TotalMatches == 0 {
		return true
	}
	if len(s.resp.Results) >= s.q.MaxResults {
		s.resp.Truncated = true
		return false
	}
	s.resp.Results = append(s.resp.Results, res)
	return true
}

func (s *searcher) response() *models.SearchResponse {
	return &s.resp
}

// prefilter returns a lowered ASCII needle usable with SQL INSTR, or "" when the
// query can only be evaluated in Go.
func (s *searcher) prefilter() (needle string, fold bool) {
	if s.q.Regex {
		return "", false
	}
	for i := 0; i < len(s.q.Query); i++ {
		if s.q.Query[i] >= utf8.RuneSelf {
			return "", false
		}
	}
	if s.q.CaseSensitive {
		return s.q.Query, false
	}
	return strings.ToLower(s.q.Query), true
}

func excerpt(line string) string {
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= maxExcerptRunes {
		return line
	}
	r := []rune(line)
	return string(r[:maxExcerptRunes]) + "..."
}
