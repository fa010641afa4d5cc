package settlement

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/inaiurai/shellmarket/internal/models"
)

type recordingMirror struct {
	calls []string
	err   error
}

func (r *recordingMirror) Lock(_ context.Context, job *models.Job) error {
	r.calls = append(r.calls, "lock")
	return r.err
}

func (r *recordingMirror) Release(_ context.Context, job *models.Job, payout, fee int64) error {
	r.calls = append(r.calls, "release")
	return r.err
}

func (r *recordingMirror) Refund(_ context.Context, job *models.Job) error {
	r.calls = append(r.calls, "refund")
	return r.err
}

func TestLoggingForwards(t *testing.T) {
	var buf bytes.Buffer
	next := &recordingMirror{err: errors.New("chain unavailable")}
	m := Logging{Next: next, Log: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	job := &models.Job{ID: uuid.New(), Amount: 10}
	ctx := context.Background()

	assert.ErrorIs(t, m.Lock(ctx, job), next.err)
	assert.ErrorIs(t, m.Release(ctx, job, 9, 1), next.err)
	assert.ErrorIs(t, m.Refund(ctx, job), next.err)
	assert.Equal(t, []string{"lock", "release", "refund"}, next.calls)
	assert.Contains(t, buf.String(), "payout=9")
}

func TestNoop(t *testing.T) {
	var m Mirror = Noop{}
	job := &models.Job{ID: uuid.New()}
	assert.NoError(t, m.Lock(context.Background(), job))
	assert.NoError(t, m.Release(context.Background(), job, 1, 0))
	assert.NoError(t, m.Refund(context.Background(), job))
}
