// pkg/schema/events.go
package schema

// IngestJob requests ingestion of a file staged on the shared volume.
type IngestJob struct {
	ID             string   `json:"id"`
	Path           string   `json:"path"`
	Filename       string   `json:"filename"`
	MimeType       string   `json:"mime_type"`
	Scope          string   `json:"scope"` // "gallery" or "listing"
	OwnerRef       string   `json:"owner_ref,omitempty"`
	UploadedBy     string   `json:"uploaded_by"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	Category       string   `json:"category,omitempty"`
	VisibilityTier string   `json:"visibility_tier,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Featured       bool     `json:"featured,omitempty"`
	Primary        bool     `json:"primary,omitempty"`
}

// IngestProgress mirrors one pipeline progress event onto the bus. Events
// for a job arrive in non-decreasing percent order; there is no ordering
// across jobs.
type IngestProgress struct {
	JobID      string `json:"job_id"`
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	Percent    int    `json:"percent"`
	Error      string `json:"error,omitempty"`
	HappenedAt int64  `json:"happened_at"`
}

// IngestDone reports the terminal outcome of a job.
type IngestDone struct {
	JobID            string `json:"job_id"`
	RecordID         string `json:"record_id,omitempty"`
	OriginalURL      string `json:"original_url,omitempty"`
	DerivativeURL    string `json:"derivative_url,omitempty"`
	StorageKey       string `json:"storage_key,omitempty"`
	ByteSize         int64  `json:"byte_size,omitempty"`
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Error            string `json:"error,omitempty"`
	HappenedAt       int64  `json:"happened_at"`
}
