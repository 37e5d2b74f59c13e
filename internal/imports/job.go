package imports

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job records one history import into a chat.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	ChatID int64  `gorm:"index;not null" json:"chat_id"`
	URL    string `gorm:"type:text;not null" json:"url"`

	// Set when only one author's messages are imported
	UserFilter *string `gorm:"type:varchar(255)" json:"user_filter,omitempty"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	Processed int `gorm:"not null;default:0" json:"processed"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "import_jobs" }
