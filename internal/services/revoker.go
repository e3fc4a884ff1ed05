package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/codebuddy/apiserver/internal/metrics"
)

// Revoker runs the scheduled mass-revocation sweep: every user's token
// version is bumped, forcing re-authentication globally. The increment
// is a single atomic statement at the store, so overlapping runs are
// harmless.
type Revoker struct {
	repo UserRepository
	log  *zap.SugaredLogger
}

func NewRevoker(repo UserRepository, log *zap.SugaredLogger) *Revoker {
	return &Revoker{repo: repo, log: log}
}

// RevokeAll bumps every user's revocation counter and returns how many
// users were affected.
func (r *Revoker) RevokeAll(ctx context.Context) (int64, error) {
	count, err := r.repo.IncrementAllTokenVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("revocation sweep: %w", err)
	}
	metrics.SessionsRevoked.Add(float64(count))
	r.log.Infow("revocation sweep complete", "users", count)
	return count, nil
}
