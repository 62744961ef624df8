package models

// Project owns a set of files stored as individual records.
type Project struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	Name       string `json:"name"`
	QuotaBytes int64  `json:"quota_bytes"`
	CreatedAt  int64  `json:"created_at"`
}

// App is the legacy container whose files live in a single blob.
type App struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	Name       string `json:"name"`
	QuotaBytes int64  `json:"quota_bytes"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// File is a single source file with its content.
type File struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Size      int64  `json:"size"`
	Hash      string `json:"hash"`
	UpdatedAt int64  `json:"updated_at"`
}

// Info strips the content from a file.
func (f *File) Info() FileInfo {
	return FileInfo{Path: f.Path, Size: f.Size, Hash: f.Hash, UpdatedAt: f.UpdatedAt}
}

// FileInfo is the metadata returned by directory listings.
type FileInfo struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Hash      string `json:"hash,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// SearchMatch is one matching line inside a file.
type SearchMatch struct {
	Line    int    `json:"line"`
	Excerpt string `json:"excerpt"`
}

// SearchResult groups the matches found in one file.
type SearchResult struct {
	Path         string        `json:"path"`
	Matches      []SearchMatch `json:"matches"`
	TotalMatches int           `json:"total_matches"`
}

// SearchResponse is the capped result set of a search.
type SearchResponse struct {
	Query     string         `json:"query"`
	Results   []SearchResult `json:"results"`
	Truncated bool           `json:"truncated"`
}

// Capacity reports storage usage against the quota.
type Capacity struct {
	Allowed     bool    `json:"allowed"`
	Usage       int64   `json:"usage"`
	Quota       int64   `json:"quota"`
	PercentUsed float64 `json:"percent_used"`
}

// BulkOp names the kind of a bulk item.
type BulkOp string

const (
	BulkCreate BulkOp = "create"
	BulkUpdate BulkOp = "update"
	BulkDelete BulkOp = "delete"
	BulkRename BulkOp = "rename"
)

// BulkOperation is one item of a bulk request.
type BulkOperation struct {
	Op      BulkOp `json:"op"`
	Path    string `json:"path"`
	NewPath string `json:"new_path,omitempty"`
	Content string `json:"content,omitempty"`
}

// BulkResult is the outcome of one bulk item.
type BulkResult struct {
	Op      BulkOperation `json:"op"`
	Success bool          `json:"success"`
	Error   *ErrorDetails `json:"error,omitempty"`
}

// BulkSummary counts the outcomes of a bulk request.
type BulkSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// StoryStatus is the lifecycle state of a story.
type StoryStatus string

const (
	StatusPending  StoryStatus = "pending"
	StatusBuilding StoryStatus = "building"
	StatusDone     StoryStatus = "done"
	StatusError    StoryStatus = "error"
)

// Story is one build increment parsed from a specification document.
type Story struct {
	EpicID             string      `json:"epic_id"`
	ID                 string      `json:"id"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	AcceptanceCriteria []string    `json:"acceptance_criteria"`
	Files              []string    `json:"files"`
	Status             StoryStatus `json:"status"`
}

// Epic groups stories under one section of the document.
type Epic struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Stories []Story `json:"stories"`
}
