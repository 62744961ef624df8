// Package stories turns a specification document into epics and stories and
// sequences them into one directive per build step.
package stories

import (
	"regexp"
	"strings"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

var (
	epicHeader  = regexp.MustCompile(`(?mi)^#{1,3}[ \t]*Epic[ \t]+(\d+)[ \t]*[:.\-–—]?[ \t]*(.*)$`)
	// The story number must end at a separator, so "1.2.3" is not story 1.2.
	storyHeader = regexp.MustCompile(`(?mi)^#{2,5}[ \t]*(?:Story[ \t]+)?(\d+)\.(\d+)(?:\.?[ \t]*[:\-–—]|\.?[ \t]+|\.?$)[ \t]*[:\-–—]?[ \t]*(.*)$`)

	// A labeled field such as "**Description:**", "Files:" or "__Acceptance Criteria__:".
	labelLine = regexp.MustCompile(`^\s*(?:\*\*|__)?([A-Za-z][A-Za-z /]{1,40}?)(?:\*\*|__)?\s*:(?:\*\*|__)?(?:\s+(.*))?$`)

	checkboxItem = regexp.MustCompile(`^\s*[-*+]\s*\[[ xX]\]\s*(.+)$`)
	bulletItem   = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(.+)$`)
	backtickSpan = regexp.MustCompile("`([^`\\s]+)`")

	descriptionLabel = regexp.MustCompile(`(?i)^description$`)
	criteriaLabel    = regexp.MustCompile(`(?i)^acceptance criteria$|^criteria$`)
	filesLabel       = regexp.MustCompile(`(?i)^(?:target )?files?(?: to (?:create|modify|touch))?$`)
)

var sourceExtensions = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".mjs": true,
	".cjs": true, ".json": true, ".css": true, ".scss": true, ".html": true, ".md": true,
	".py": true, ".rb": true, ".rs": true, ".java": true, ".kt": true, ".swift": true,
	".vue": true, ".svelte": true, ".yaml": true, ".yml": true, ".toml": true,
	".sql": true, ".sh": true, ".txt": true, ".prisma": true, ".graphql": true,
}

// Parse extracts epics and their stories in document order. It never fails:
// unrecognized sections leave the corresponding fields empty.
func Parse(text string) []models.Epic {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	epics := []models.Epic{}

	headers := epicHeader.FindAllStringSubmatchIndex(text, -1)
	for i, h := range headers {
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		epic := models.Epic{
			ID:    text[h[2]:h[3]],
			Title: cleanTitle(text[h[4]:h[5]]),
		}
		epic.Stories = parseStories(epic.ID, text[h[1]:end])
		epics = append(epics, epic)
	}
	return epics
}

func parseStories(epicID, span string) []models.Story {
	stories := []models.Story{}
	headers := storyHeader.FindAllStringSubmatchIndex(span, -1)
	for i, h := range headers {
		end := len(span)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		lines := strings.Split(span[h[1]:end], "\n")
		stories = append(stories, models.Story{
			EpicID:             epicID,
			ID:                 span[h[2]:h[3]] + "." + span[h[4]:h[5]],
			Title:              cleanTitle(span[h[6]:h[7]]),
			Description:        extractDescription(lines),
			AcceptanceCriteria: extractCriteria(lines),
			Files:              extractFiles(lines),
			Status:             models.StatusPending,
		})
	}
	return stories
}

func cleanTitle(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_#"))
}

// label returns the field name of a labeled line and the text after the colon.
func label(line string) (name, rest string, ok bool) {
	if bulletItem.MatchString(line) || checkboxItem.MatchString(line) {
		return "", "", false
	}
	m := labelLine.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

func isHeading(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

// section returns the lines of the field whose label matches re: the text after
// the label, then every line up to the next label or heading.
func section(lines []string, re *regexp.Regexp) ([]string, bool) {
	for i, line := range lines {
		name, rest, ok := label(line)
		if !ok || !re.MatchString(name) {
			continue
		}
		var out []string
		if rest != "" {
			out = append(out, rest)
		}
		for _, next := range lines[i+1:] {
			if _, _, ok := label(next); ok || isHeading(next) {
				break
			}
			out = append(out, next)
		}
		return out, true
	}
	return nil, false
}

// --- Description ---

func extractDescription(lines []string) string {
	if d := labeledDescription(lines); d != "" {
		return d
	}
	return firstParagraph(lines)
}

// labeledDescription takes the first block after "Description:", stopping at a
// blank line that follows text or at any list.
func labeledDescription(lines []string) string {
	sec, ok := section(lines, descriptionLabel)
	if !ok {
		return ""
	}
	var parts []string
	for _, l := range sec {
		t := strings.TrimSpace(l)
		if checkboxItem.MatchString(l) || bulletItem.MatchString(l) {
			break
		}
		if t == "" {
			if len(parts) > 0 {
				break
			}
			continue
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, " ")
}

// firstParagraph is the fallback: the first run of plain text lines.
func firstParagraph(lines []string) string {
	var parts []string
	for _, l := range lines {
		t := strings.TrimSpace(l)
		_, _, labeled := label(l)
		plain := t != "" && !labeled && !isHeading(l) && !bulletItem.MatchString(l) && !checkboxItem.MatchString(l)
		if plain {
			parts = append(parts, t)
			continue
		}
		if len(parts) > 0 {
			break
		}
	}
	return strings.Join(parts, " ")
}

// --- Acceptance criteria ---

func extractCriteria(lines []string) []string {
	if c := checkboxCriteria(lines); len(c) > 0 {
		return c
	}
	return labeledCriteria(lines)
}

func checkboxCriteria(lines []string) []string {
	out := []string{}
	for _, l := range lines {
		if m := checkboxItem.FindStringSubmatch(l); m != nil {
			out = append(out, strings.TrimSpace(m[1]))
		}
	}
	return out
}

func labeledCriteria(lines []string) []string {
	out := []string{}
	sec, ok := section(lines, criteriaLabel)
	if !ok {
		return out
	}
	for _, l := range sec {
		if m := bulletItem.FindStringSubmatch(l); m != nil {
			out = append(out, strings.TrimSpace(m[1]))
		}
	}
	return out
}

// --- Files ---

func extractFiles(lines []string) []string {
	if sec, ok := section(lines, filesLabel); ok {
		if f := backtickPaths(sec, false); len(f) > 0 {
			return f
		}
		if f := bulletPaths(sec); len(f) > 0 {
			return f
		}
	}
	return backtickPaths(lines, true)
}

// backtickPaths collects `quoted` tokens. With requireExt only tokens ending in
// a known source extension count.
func backtickPaths(lines []string, requireExt bool) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, l := range lines {
		for _, m := range backtickSpan.FindAllStringSubmatch(l, -1) {
			p := m[1]
			if requireExt && !hasSourceExt(p) {
				continue
			}
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

func bulletPaths(lines []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, l := range lines {
		m := bulletItem.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		// "src/app.ts - main entry" keeps only the path.
		fields := strings.Fields(m[1])
		if len(fields) == 0 {
			continue
		}
		p := strings.Trim(fields[0], "`")
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func hasSourceExt(p string) bool {
	i := strings.LastIndexByte(p, '.')
	if i <= 0 || i == len(p)-1 {
		return false
	}
	return sourceExtensions[strings.ToLower(p[i:])]
}
