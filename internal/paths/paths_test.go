package paths

import (
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "/main.go", "/main.go"},
		{"nested", "/src/app/index.ts", "/src/app/index.ts"},
		{"duplicate slashes", "//src///app.ts", "/src/app.ts"},
		{"dotfile", "/.gitignore", "/.gitignore"},
		{"dots in name", "/a/b..c/x.test.js", "/a/b..c/x.test.js"},
		{"case preserved", "/Src/README.md", "/Src/README.md"},
		{"spaces in name", "/docs/my notes.md", "/docs/my notes.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"relative", "src/app.ts"},
		{"root", "/"},
		{"only slashes", "///"},
		{"trailing slash", "/src/"},
		{"dot segment", "/src/./app.ts"},
		{"dotdot segment", "/src/../etc/passwd"},
		{"leading dotdot", "/../secret"},
		{"blank segment", "/src/ /app.ts"},
		{"null byte", "/src/app\x00.ts"},
		{"control char", "/src/app\n.ts"},
		{"backslash", `/src\app.ts`},
		{"too long", "/" + strings.Repeat("a", MaxLength)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.in)
			if !errors.Is(err, models.ErrInvalidPath) {
				t.Errorf("Normalize(%q) error = %v, want invalid_path", tt.in, err)
			}
		})
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"/", "/"},
		{"src", "/src"},
		{"/src/", "/src/"},
		{"//src//lib/", "/src/lib/"},
	}
	for _, tt := range tests {
		got, err := NormalizePrefix(tt.in)
		if err != nil {
			t.Fatalf("NormalizePrefix(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("NormalizePrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := NormalizePrefix("/src/../x"); err == nil {
		t.Error("expected error for traversal prefix")
	}
}

func TestDirBase(t *testing.T) {
	if got := Dir("/a/b/c.go"); got != "/a/b" {
		t.Errorf("Dir = %q", got)
	}
	if got := Dir("/c.go"); got != "/" {
		t.Errorf("Dir top-level = %q", got)
	}
	if got := Base("/a/b/c.go"); got != "c.go" {
		t.Errorf("Base = %q", got)
	}
}

func segmentGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[A-Za-z0-9_\-][A-Za-z0-9_.\-]{0,12}`)
}

func TestNormalizeIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		segs := rapid.SliceOfN(segmentGen(), 1, 8).Draw(t, "segments")
		sep := rapid.SampledFrom([]string{"/", "//", "///"}).Draw(t, "sep")
		p := sep + strings.Join(segs, sep)
		once, err := Normalize(p)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", p, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(%q) failed on canonical input: %v", once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", p, once, twice)
		}
	})
}

func TestNormalizeRejectsTraversal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		before := rapid.SliceOfN(segmentGen(), 0, 4).Draw(t, "before")
		after := rapid.SliceOfN(segmentGen(), 1, 4).Draw(t, "after")
		bad := rapid.SampledFrom([]string{"..", ".", " "}).Draw(t, "bad")
		segs := append(append(append([]string{}, before...), bad), after...)
		p := "/" + strings.Join(segs, "/")
		if _, err := Normalize(p); !errors.Is(err, models.ErrInvalidPath) {
			t.Fatalf("Normalize(%q) error = %v, want invalid_path", p, err)
		}
	})
}
