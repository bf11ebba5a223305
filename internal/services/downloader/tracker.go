package downloader

import (
	"context"
	"errors"
	"time"

	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/riff/internal/services/jobstore"
	"go.uber.org/zap"
)

// tracker funnels every write for one job. Writes after a terminal status are
// rejected and progress never moves backwards.
type tracker struct {
	store jobstore.Store
	id    string
	now   func() time.Time
}

func (t *tracker) update(ctx context.Context, fn func(*jobstore.Job)) error {
	_, err := t.store.Update(ctx, t.id, func(j *jobstore.Job) error {
		if j.Status.Terminal() {
			return jobstore.ErrJobFinalized
		}
		prev := j.Progress
		fn(j)
		j.Progress = min(max(j.Progress, prev), 100)
		return nil
	})
	if err != nil && !errors.Is(err, jobstore.ErrJobFinalized) {
		zaplog.ErrorC(ctx, "failed to update job", zap.String("jobId", t.id), zap.Error(err))
	}
	return err
}

func (t *tracker) step(ctx context.Context, step string, progress int) {
	_ = t.update(ctx, func(j *jobstore.Job) {
		j.Step = step
		j.Progress = progress
	})
}

func (t *tracker) complete(ctx context.Context, fn func(*jobstore.Job)) error {
	return t.update(ctx, func(j *jobstore.Job) {
		fn(j)
		done := t.now()
		j.Status = jobstore.StatusCompleted
		j.Step = stepReady
		j.Progress = 100
		j.Error = ""
		j.CompletedAt = &done
	})
}

func (t *tracker) fail(ctx context.Context, err error) {
	msg := userMessage(err)
	zaplog.ErrorC(ctx, "conversion failed", zap.String("jobId", t.id), zap.String("message", msg), zap.Error(err))
	_ = t.update(ctx, func(j *jobstore.Job) {
		j.Status = jobstore.StatusError
		j.Step = stepFailed
		j.Error = msg
	})
}
