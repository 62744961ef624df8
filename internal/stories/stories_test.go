package stories

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

const twoEpics = `# Todo App Specification

Some introduction that belongs to no epic.

## Epic 1: Foundations

### Story 1.1: Project skeleton

**Description:** Create the application shell
with routing.

**Acceptance Criteria:**
- [ ] App renders a header
- [x] Router is configured

**Files:** ` + "`src/App.tsx`" + `

### Story 1.2: Todo list

**Description:** Show the todos.

- [ ] Empty state is shown
- [ ] Items render in order

Files:
- ` + "`src/components/TodoList.tsx`" + `

## Epic 2: Persistence

### Story 2.1: Save to storage

Persist todos in local storage whenever they change.

Acceptance Criteria:
1. Reloading keeps the todos
2. Corrupt data is ignored
`

func TestParseTwoEpics(t *testing.T) {
	epics := Parse(twoEpics)
	if len(epics) != 2 {
		t.Fatalf("Parse returned %d epics, want 2", len(epics))
	}
	e1 := epics[0]
	if e1.ID != "1" || e1.Title != "Foundations" {
		t.Errorf("epic 1 = %q %q", e1.ID, e1.Title)
	}
	if len(e1.Stories) != 2 {
		t.Fatalf("epic 1 has %d stories, want 2", len(e1.Stories))
	}
	if e1.Stories[0].ID != "1.1" || e1.Stories[1].ID != "1.2" {
		t.Errorf("story order = %q, %q", e1.Stories[0].ID, e1.Stories[1].ID)
	}
	if got := e1.Stories[0].Files; !reflect.DeepEqual(got, []string{"src/App.tsx"}) {
		t.Errorf("story 1.1 files = %v", got)
	}
	if got := e1.Stories[1].Files; !reflect.DeepEqual(got, []string{"src/components/TodoList.tsx"}) {
		t.Errorf("story 1.2 files = %v", got)
	}
	for _, s := range e1.Stories {
		if s.Status != models.StatusPending || s.EpicID != "1" {
			t.Errorf("story %s status=%q epic=%q", s.ID, s.Status, s.EpicID)
		}
	}
}

func TestParseFields(t *testing.T) {
	epics := Parse(twoEpics)
	s11 := epics[0].Stories[0]
	if s11.Title != "Project skeleton" {
		t.Errorf("Title = %q", s11.Title)
	}
	if s11.Description != "Create the application shell with routing." {
		t.Errorf("Description = %q", s11.Description)
	}
	if !reflect.DeepEqual(s11.AcceptanceCriteria, []string{"App renders a header", "Router is configured"}) {
		t.Errorf("Criteria = %v", s11.AcceptanceCriteria)
	}

	s21 := epics[1].Stories[0]
	if s21.Description != "Persist todos in local storage whenever they change." {
		t.Errorf("fallback Description = %q", s21.Description)
	}
	if !reflect.DeepEqual(s21.AcceptanceCriteria, []string{"Reloading keeps the todos", "Corrupt data is ignored"}) {
		t.Errorf("labeled Criteria = %v", s21.AcceptanceCriteria)
	}
	if len(s21.Files) != 0 {
		t.Errorf("Files = %v, want none", s21.Files)
	}
}

func TestParseLenient(t *testing.T) {
	tests := map[string]string{
		"empty":            "",
		"no epics":         "# Title\n\nJust prose.\n### 1.1 Orphan story\n",
		"epic only":        "## Epic 3\n",
		"garbage criteria": "## Epic 1\n### 1.1 X\n- [ ]\n**Files:**\n-   \n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			epics := Parse(doc)
			if epics == nil {
				t.Fatal("Parse returned nil")
			}
			for _, e := range epics {
				for _, s := range e.Stories {
					if s.AcceptanceCriteria == nil || s.Files == nil {
						t.Errorf("story %s has nil lists", s.ID)
					}
				}
			}
		})
	}
	if got := Parse("## Epic 3\n"); len(got) != 1 || len(got[0].Stories) != 0 {
		t.Errorf("epic only = %+v", got)
	}
}

func TestStoryHeaderForms(t *testing.T) {
	doc := "## Epic 1\n" +
		"### 1.1 Plain\n" +
		"### Story 1.2: Colon\n" +
		"#### 1.2.1 Sub-step of 1.2\n" +
		"### 1.3. Dotted\n" +
		"### 1.4 - Dashed\n" +
		"### 1.5\n"
	epics := Parse(doc)
	if len(epics) != 1 {
		t.Fatalf("epics = %d, want 1", len(epics))
	}
	want := []struct{ id, title string }{
		{"1.1", "Plain"},
		{"1.2", "Colon"},
		{"1.3", "Dotted"},
		{"1.4", "Dashed"},
		{"1.5", ""},
	}
	got := epics[0].Stories
	if len(got) != len(want) {
		t.Fatalf("stories = %+v, want %d", got, len(want))
	}
	for i, w := range want {
		if got[i].ID != w.id || got[i].Title != w.title {
			t.Errorf("story %d = %q %q, want %q %q", i, got[i].ID, got[i].Title, w.id, w.title)
		}
	}
}

func TestExtractFilesFallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"section backticks", "Files: `a.go`, `b.go`", []string{"a.go", "b.go"}},
		{"section bullets", "Target files:\n- src/main.ts - entry\n- src/util.ts", []string{"src/main.ts", "src/util.ts"}},
		{"any backtick with extension", "Edit `src/index.js` and run `npm test`.", []string{"src/index.js"}},
		{"nothing", "No files here.", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractFiles(strings.Split(tt.body, "\n"))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractFiles = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextPendingStory(t *testing.T) {
	stories := []*models.Story{
		{ID: "1.1", Status: models.StatusDone},
		{ID: "1.2", Status: models.StatusPending, Title: "Second"},
		{ID: "1.3", Status: models.StatusPending},
	}
	next, idx := NextPendingStory(stories)
	if next == nil || next.ID != "1.2" || idx != 1 {
		t.Fatalf("NextPendingStory = %v, %d", next, idx)
	}
	prompt := BuildStoryPrompt(*next, idx == 0)
	if strings.Contains(prompt, firstStoryNote) {
		t.Error("prompt for a later story contains the first-story note")
	}
	if !strings.Contains(prompt, "Implement only story 1.2") {
		t.Errorf("prompt lacks scope directive:\n%s", prompt)
	}

	for _, s := range stories {
		s.Status = models.StatusDone
	}
	if next, idx := NextPendingStory(stories); next != nil || idx != -1 {
		t.Errorf("NextPendingStory on finished list = %v, %d", next, idx)
	}
}

func TestBuildStoryPromptFirst(t *testing.T) {
	s := models.Story{
		ID:                 "1.1",
		Title:              "Skeleton",
		Description:        "Create the shell.",
		AcceptanceCriteria: []string{"Renders"},
		Files:              []string{"src/App.tsx"},
	}
	prompt := BuildStoryPrompt(s, true)
	for _, want := range []string{firstStoryNote, "Create the shell.", "- Renders", "- src/App.tsx", "story 1.1"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt lacks %q", want)
		}
	}
}

func TestTransitions(t *testing.T) {
	s := &models.Story{ID: "1.1", Status: models.StatusPending}
	if err := Finish(s, nil); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("Finish before Start: err = %v", err)
	}
	if err := Start(s); err != nil || s.Status != models.StatusBuilding {
		t.Fatalf("Start: %v, status %q", err, s.Status)
	}
	if err := Start(s); err == nil {
		t.Error("Start twice should fail")
	}
	if err := Finish(s, nil); err != nil || s.Status != models.StatusDone {
		t.Errorf("Finish: %v, status %q", err, s.Status)
	}

	failed := &models.Story{ID: "1.2", Status: models.StatusPending}
	Start(failed)
	Finish(failed, errors.New("tool failed"))
	if failed.Status != models.StatusError {
		t.Errorf("status = %q, want error", failed.Status)
	}
}

func TestFlattenAndSummarize(t *testing.T) {
	epics := Parse(twoEpics)
	flat := Flatten(epics)
	if len(flat) != 3 {
		t.Fatalf("Flatten = %d stories, want 3", len(flat))
	}
	Start(flat[0])
	Finish(flat[0], nil)
	if epics[0].Stories[0].Status != models.StatusDone {
		t.Error("status change through Flatten did not reach epics")
	}
	p := Summarize(flat)
	if p.Total != 3 || p.Done != 1 || p.Pending != 2 || p.Complete() {
		t.Errorf("Summarize = %+v", p)
	}
}
