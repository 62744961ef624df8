package storage

import (
	"encoding/hex"
	"unicode/utf8"

	"lukechampine.com/blake3"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

// Limits bounds single files and whole projects.
type Limits struct {
	// MaxFileSize is the largest accepted file content in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
	// DefaultQuota applies to projects and apps created with a zero quota.
	DefaultQuota int64 `yaml:"default_quota"`
}

// DefaultLimits returns 1 MiB per file and 50 MiB per project.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:  1 << 20,
		DefaultQuota: 50 << 20,
	}
}

func (l Limits) quotaFor(q int64) int64 {
	if q > 0 {
		return q
	}
	return l.DefaultQuota
}

// CheckCapacity decides whether delta more bytes fit under quota. Shrinking
// writes are always allowed. A non-positive quota means unlimited.
func CheckCapacity(usage, quota, delta int64) (models.Capacity, error) {
	c := models.Capacity{
		Usage:       usage,
		Quota:       quota,
		PercentUsed: models.PercentUsed(usage, quota),
	}
	if quota > 0 && delta > 0 && usage+delta > quota {
		return c, models.QuotaExceeded(usage, delta, quota)
	}
	c.Allowed = true
	return c, nil
}

// CheckFileSize rejects content larger than limit. A non-positive limit disables the check.
func CheckFileSize(path string, size, limit int64) error {
	if limit > 0 && size > limit {
		return models.FileTooLarge(path, size, limit)
	}
	return nil
}

// CheckContent applies the size limit and rejects content that is not valid
// UTF-8, which the blob encoding cannot carry unchanged.
func CheckContent(path, content string, limit int64) error {
	if err := CheckFileSize(path, int64(len(content)), limit); err != nil {
		return err
	}
	if !utf8.ValidString(content) {
		return models.InvalidArgument("content of %s is not valid UTF-8", path)
	}
	return nil
}

func contentHash(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}
