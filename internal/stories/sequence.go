package stories

import (
	"fmt"
	"strings"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

// Flatten returns pointers to every story in document order, so status
// changes made through them land in epics.
func Flatten(epics []models.Epic) []*models.Story {
	var out []*models.Story
	for i := range epics {
		for j := range epics[i].Stories {
			out = append(out, &epics[i].Stories[j])
		}
	}
	return out
}

// NextPendingStory returns the first pending story and its index, or nil and -1
// when nothing is pending.
func NextPendingStory(stories []*models.Story) (*models.Story, int) {
	for i, s := range stories {
		if s.Status == models.StatusPending {
			return s, i
		}
	}
	return nil, -1
}

// Start moves a pending story to building.
func Start(s *models.Story) error {
	if s.Status != models.StatusPending {
		return models.InvalidArgument("story %s is %s, not pending", s.ID, s.Status)
	}
	s.Status = models.StatusBuilding
	return nil
}

// Finish moves a building story to done, or to error when turnErr is non-nil.
func Finish(s *models.Story, turnErr error) error {
	if s.Status != models.StatusBuilding {
		return models.InvalidArgument("story %s is %s, not building", s.ID, s.Status)
	}
	if turnErr != nil {
		s.Status = models.StatusError
	} else {
		s.Status = models.StatusDone
	}
	return nil
}

// Progress counts stories by status.
type Progress struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Building int `json:"building"`
	Done     int `json:"done"`
	Error    int `json:"error"`
}

// Complete reports whether no story is pending or building.
func (p Progress) Complete() bool {
	return p.Pending == 0 && p.Building == 0
}

func Summarize(stories []*models.Story) Progress {
	p := Progress{Total: len(stories)}
	for _, s := range stories {
		switch s.Status {
		case models.StatusPending:
			p.Pending++
		case models.StatusBuilding:
			p.Building++
		case models.StatusDone:
			p.Done++
		case models.StatusError:
			p.Error++
		}
	}
	return p
}

const firstStoryNote = `This is the first story of the project. Before implementing it, set up the ` +
	`baseline project structure: package manifest, entry point, and the directory layout ` +
	`the later stories will build on.`

// BuildStoryPrompt renders the directive for one story. isFirst adds the
// project setup note.
func BuildStoryPrompt(s models.Story, isFirst bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement story %s: %s\n", s.ID, s.Title)

	if s.Description != "" {
		fmt.Fprintf(&b, "\nDescription:\n%s\n", s.Description)
	}
	if len(s.AcceptanceCriteria) > 0 {
		b.WriteString("\nAcceptance criteria:\n")
		for _, c := range s.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if len(s.Files) > 0 {
		b.WriteString("\nFiles to create or modify:\n")
		for _, f := range s.Files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if isFirst {
		fmt.Fprintf(&b, "\n%s\n", firstStoryNote)
	}
	fmt.Fprintf(&b, "\nImplement only story %s. Do not start work on any other story, "+
		"even if it looks related; later stories will be requested separately. "+
		"Use the file tools to read existing files before changing them.\n", s.ID)
	return b.String()
}
