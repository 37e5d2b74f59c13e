package imports

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("import job not found")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Job{})
}

func (r *Repo) Create(ctx context.Context, job *Job) error {
	if job.Status == "" {
		job.Status = JobQueued
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// ListByChat returns the most recent jobs of a chat, newest first.
func (r *Repo) ListByChat(ctx context.Context, chatID int64, limit int) ([]Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var jobs []Job
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *Repo) MarkRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkSucceeded(ctx context.Context, id string, processed int) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":    JobSucceeded,
			"processed": processed,
			"error":     nil,
		}).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id string, processed int, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":    JobFailed,
			"processed": processed,
			"error":     errMsg,
		}).Error
}
