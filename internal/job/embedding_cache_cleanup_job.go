package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type cacheCleaner interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

// EmbeddingCacheCleanupJob drops persisted embeddings older than maxAge.
type EmbeddingCacheCleanupJob struct {
	repo   cacheCleaner
	maxAge time.Duration
	now    func() time.Time
}

func NewEmbeddingCacheCleanupJob(repo cacheCleaner, maxAge time.Duration) *EmbeddingCacheCleanupJob {
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &EmbeddingCacheCleanupJob{repo: repo, maxAge: maxAge, now: time.Now}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.maxAge).Unix()
	n, err := j.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("embedding cache cleaned", zap.Int64("deleted", n))
	return nil
}
