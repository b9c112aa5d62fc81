package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	types "github.com/zistudy/zistudy-backend/internal/domain"
	"github.com/zistudy/zistudy-backend/internal/platform/envutil"
	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

// JobNotifier publishes job lifecycle events so clients can follow progress
// without polling. Publishing is best effort; a broken broker never fails
// the job itself.
type JobNotifier interface {
	JobCreated(ctx context.Context, job *types.JobRun)
	JobProgress(ctx context.Context, job *types.JobRun, stage string, progress int)
	JobSucceeded(ctx context.Context, job *types.JobRun)
	JobFailed(ctx context.Context, job *types.JobRun, message string)
	Close() error
}

type redisJobNotifier struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewRedisJobNotifier connects to REDIS_ADDR and publishes per-owner job
// events on "jobs:<owner_user_id>".
func NewRedisJobNotifier(baseLog *logger.Logger) (JobNotifier, error) {
	addr := strings.TrimSpace(envutil.String("REDIS_ADDR", ""))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisJobNotifier{
		log: baseLog.With("service", "RedisJobNotifier"),
		rdb: rdb,
	}, nil
}

func (n *redisJobNotifier) JobCreated(ctx context.Context, job *types.JobRun) {
	n.publish(ctx, job, map[string]any{
		"event": "job.created",
		"job":   job,
	})
}

func (n *redisJobNotifier) JobProgress(ctx context.Context, job *types.JobRun, stage string, progress int) {
	n.publish(ctx, job, map[string]any{
		"event":    "job.progress",
		"job_id":   job.ID,
		"job_type": job.JobType,
		"stage":    stage,
		"progress": progress,
	})
}

func (n *redisJobNotifier) JobSucceeded(ctx context.Context, job *types.JobRun) {
	n.publish(ctx, job, map[string]any{
		"event": "job.succeeded",
		"job":   job,
	})
}

func (n *redisJobNotifier) JobFailed(ctx context.Context, job *types.JobRun, message string) {
	n.publish(ctx, job, map[string]any{
		"event":  "job.failed",
		"job_id": job.ID,
		"error":  message,
	})
}

func (n *redisJobNotifier) publish(ctx context.Context, job *types.JobRun, event map[string]any) {
	if n == nil || n.rdb == nil || job == nil {
		return
	}
	raw, err := json.Marshal(event)
	if err != nil {
		n.log.Warn("Dropping unencodable job event", "job_id", job.ID, "error", err.Error())
		return
	}
	channel := "jobs:" + job.OwnerUserID.String()
	if err := n.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		n.log.Warn("Job event publish failed", "job_id", job.ID, "channel", channel, "error", err.Error())
	}
}

func (n *redisJobNotifier) Close() error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Close()
}

// noopJobNotifier keeps job execution working when no broker is configured.
type noopJobNotifier struct{}

func NewNoopJobNotifier() JobNotifier { return noopJobNotifier{} }

func (noopJobNotifier) JobCreated(context.Context, *types.JobRun) {}

func (noopJobNotifier) JobProgress(context.Context, *types.JobRun, string, int) {}

func (noopJobNotifier) JobSucceeded(context.Context, *types.JobRun) {}

func (noopJobNotifier) JobFailed(context.Context, *types.JobRun, string) {}

func (noopJobNotifier) Close() error { return nil }
