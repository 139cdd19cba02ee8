package api

import "subtrove/internal/media"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// MediaRequest identifies the media to search or select for.
type MediaRequest struct {
	Media  media.Descriptor `json:"media"`
	Policy PolicyOverrides  `json:"policy"`
}

// DownloadRequest asks for a previously returned subtitle to be materialized.
// MediaID defaults to the identifier derived from Media.
type DownloadRequest struct {
	Subtitle Subtitle          `json:"subtitle"`
	MediaID  string            `json:"mediaId,omitempty"`
	Media    *media.Descriptor `json:"media,omitempty"`
}

// Subtitle describes one subtitle offering.
type Subtitle struct {
	ID           string            `json:"id"`
	Source       string            `json:"source"`
	Language     string            `json:"language"`
	LanguageName string            `json:"languageName,omitempty"`
	Title        string            `json:"title"`
	Format       string            `json:"format"`
	MIMEType     string            `json:"mimeType"`
	Encoding     string            `json:"encoding,omitempty"`
	Rating       float64           `json:"rating"`
	Downloads    int               `json:"downloads"`
	UploadedAt   string            `json:"uploadedAt,omitempty"`
	FileSize     int64             `json:"fileSize,omitempty"`
	DownloadURL  string            `json:"downloadUrl,omitempty"`
	Uploader     string            `json:"uploader,omitempty"`
	LocalPath    string            `json:"localPath,omitempty"`
	ContentHash  string            `json:"contentHash,omitempty"`
	Downloaded   bool              `json:"downloaded"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Match is a scored subtitle.
type Match struct {
	Subtitle   Subtitle `json:"subtitle"`
	Similarity float64  `json:"similarity"`
	Confidence float64  `json:"confidence"`
	Quality    float64  `json:"quality"`
	Tier       string   `json:"tier"`
	Reasons    []string `json:"reasons,omitempty"`
}

// ProviderError reports one provider's failure within a search.
type ProviderError struct {
	Source  string `json:"source"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SearchResponse is the outcome of a search.
type SearchResponse struct {
	RequestID  string          `json:"requestId"`
	FileID     string          `json:"fileId"`
	TotalCount int             `json:"totalCount"`
	FromCache  bool            `json:"fromCache"`
	ElapsedMS  int64           `json:"elapsedMs"`
	Matches    []Match         `json:"matches"`
	Errors     []ProviderError `json:"errors,omitempty"`
}

// SelectResponse is the outcome of automatic selection. Found is false when
// nothing suitable exists.
type SelectResponse struct {
	Found    bool            `json:"found"`
	Origin   string          `json:"origin,omitempty"`
	Path     string          `json:"path,omitempty"`
	MIMEType string          `json:"mimeType,omitempty"`
	Subtitle *Subtitle       `json:"subtitle,omitempty"`
	Search   *SearchResponse `json:"search,omitempty"`
}

// DownloadResponse wraps the materialized subtitle.
type DownloadResponse struct {
	Subtitle Subtitle `json:"subtitle"`
}

// ProviderLimits is a provider quota snapshot.
type ProviderLimits struct {
	Source         string `json:"source"`
	RequestsPerDay int    `json:"requestsPerDay"`
	Used           int    `json:"used"`
	Remaining      int    `json:"remaining"`
	ResetAt        string `json:"resetAt,omitempty"`
	Limited        bool   `json:"limited"`
	CanRequest     bool   `json:"canRequest"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

// LimitsResponse wraps every registered provider's quota.
type LimitsResponse struct {
	Providers []ProviderLimits `json:"providers"`
}

// CacheStats describes cache usage.
type CacheStats struct {
	Directory    string `json:"directory"`
	Records      int    `json:"records"`
	Downloaded   int    `json:"downloaded"`
	MediaEntries int    `json:"mediaEntries"`
	Files        int    `json:"files"`
	TotalBytes   int64  `json:"totalBytes"`
	MaxBytes     int64  `json:"maxBytes"`
	FreeBytes    uint64 `json:"freeBytes"`
	TotalFSBytes uint64 `json:"totalFsBytes"`
	LastCleanup  string `json:"lastCleanup,omitempty"`
}

// CleanupCounts summarises removals of one kind.
type CleanupCounts struct {
	Records int   `json:"records"`
	Files   int   `json:"files"`
	Bytes   int64 `json:"bytes"`
}

// CleanupResponse reports a maintenance pass or a single cleanup step.
type CleanupResponse struct {
	Expired    *CleanupCounts `json:"expired,omitempty"`
	Evicted    *CleanupCounts `json:"evicted,omitempty"`
	Orphans    *CleanupCounts `json:"orphans,omitempty"`
	Total      CleanupCounts  `json:"total"`
	DurationMS int64          `json:"durationMs"`
	RanAt      string         `json:"ranAt,omitempty"`
}

// ServiceStatus aggregates service runtime information.
type ServiceStatus struct {
	Running      bool       `json:"running"`
	PID          int        `json:"pid"`
	StartedAt    string     `json:"startedAt,omitempty"`
	LockFilePath string     `json:"lockFilePath"`
	CacheDir     string     `json:"cacheDir"`
	Sources      []string   `json:"sources"`
	Languages    []string   `json:"languages"`
	Cache        CacheStats `json:"cache"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
