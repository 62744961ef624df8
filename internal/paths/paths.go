// Package paths validates and normalizes the absolute file paths of a project.
package paths

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

// MaxLength is the longest accepted path, in bytes.
const MaxLength = 512

// Normalize returns the canonical form of p or an invalid_path error.
// Duplicate slashes collapse; everything else that is not a plain name is rejected.
func Normalize(p string) (string, error) {
	if p == "" {
		return "", models.InvalidPath(p, "path is empty")
	}
	if !strings.HasPrefix(p, "/") {
		return "", models.InvalidPath(p, "path must start with /")
	}
	if !utf8.ValidString(p) {
		return "", models.InvalidPath(p, "path is not valid UTF-8")
	}
	for _, r := range p {
		if r == 0 {
			return "", models.InvalidPath(p, "path contains a null byte")
		}
		if unicode.IsControl(r) {
			return "", models.InvalidPath(p, "path contains control characters")
		}
	}
	if strings.HasSuffix(p, "/") {
		return "", models.InvalidPath(p, "path must name a file, not a directory")
	}

	var b strings.Builder
	b.Grow(len(p))
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		switch {
		case seg == "." || seg == "..":
			return "", models.InvalidPath(p, "relative segments are not allowed")
		case strings.TrimSpace(seg) == "":
			return "", models.InvalidPath(p, "empty path segment")
		case strings.Contains(seg, `\`):
			return "", models.InvalidPath(p, "backslashes are not allowed")
		}
		b.WriteByte('/')
		b.WriteString(seg)
	}
	out := b.String()
	if out == "" {
		return "", models.InvalidPath(p, "path must name a file, not the root")
	}
	if len(out) > MaxLength {
		return "", models.InvalidPath(p, "path is longer than 512 bytes")
	}
	return out, nil
}

// Root prefixes a missing leading slash. Agents often omit it.
func Root(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

// NormalizePrefix canonicalizes a listing prefix. An empty prefix lists everything.
func NormalizePrefix(prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return "/", nil
	}
	dir := strings.HasSuffix(prefix, "/")
	n, err := Normalize(strings.TrimRight(Root(prefix), "/"))
	if err != nil {
		return "", err
	}
	if dir {
		n += "/"
	}
	return n, nil
}

// Dir returns the parent directory of a normalized path, "/" for top-level files.
func Dir(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

// Base returns the last segment of a path.
func Base(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}
