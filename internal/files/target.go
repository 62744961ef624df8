package files

import (
	"context"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
	"github.com/ItachiCrypto/appforge-sub001/internal/storage"
)

// TargetKind selects the storage representation of a Target.
type TargetKind string

const (
	KindProject TargetKind = "project"
	KindApp     TargetKind = "app"
)

// Target names the project or legacy app a file operation applies to.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

func ProjectTarget(id string) Target { return Target{Kind: KindProject, ID: id} }

func AppTarget(id string) Target { return Target{Kind: KindApp, ID: id} }

// ParseTarget accepts "project"/"projects" and "app"/"apps".
func ParseTarget(kind, id string) (Target, error) {
	var t Target
	switch kind {
	case "project", "projects":
		t = ProjectTarget(id)
	case "app", "apps":
		t = AppTarget(id)
	default:
		return Target{}, models.InvalidArgument("unknown target kind %q", kind)
	}
	return t, t.Validate()
}

// Validate rejects targets without an id or with an unknown kind.
func (t Target) Validate() error {
	if t.Kind != KindProject && t.Kind != KindApp {
		return models.InvalidArgument("unknown target kind %q", t.Kind)
	}
	if t.ID == "" {
		return models.InvalidArgument("%s id is required", t.Kind)
	}
	return nil
}

// Key identifies the target in lock tables.
func (t Target) Key() string {
	return string(t.Kind) + ":" + t.ID
}

func (t Target) String() string {
	return t.Key()
}

// Authorize loads the record behind t and checks that callerID owns it. It
// returns the record name, a not-found error when the record is missing and a
// forbidden error when another owner holds it.
func Authorize(ctx context.Context, meta *storage.MetaStore, callerID string, t Target) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	var name, owner string
	switch t.Kind {
	case KindProject:
		p, err := meta.GetProject(ctx, t.ID)
		if err != nil {
			return "", err
		}
		name, owner = p.Name, p.OwnerID
	case KindApp:
		a, err := meta.GetApp(ctx, t.ID)
		if err != nil {
			return "", err
		}
		name, owner = a.Name, a.OwnerID
	}
	if callerID == "" || owner != callerID {
		return "", models.Forbidden("%s is not owned by the caller", t)
	}
	return name, nil
}
