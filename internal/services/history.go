package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/codebuddy/apiserver/internal/storage"
)

// HistoryArchiver enforces the login-history retention policy: entries
// beyond the newest keep per user are uploaded to object storage (when
// a sink is configured) and then deleted. Without a sink the prune is a
// plain ring buffer.
type HistoryArchiver struct {
	repo    UserRepository
	archive *storage.ArchiveStore
	keep    int
	log     *zap.SugaredLogger
}

func NewHistoryArchiver(repo UserRepository, archive *storage.ArchiveStore, keep int, log *zap.SugaredLogger) *HistoryArchiver {
	if keep <= 0 {
		keep = 20
	}
	return &HistoryArchiver{repo: repo, archive: archive, keep: keep, log: log}
}

// Run performs one archive pass. The upload happens before the delete,
// so a failed upload leaves the rows in place for the next cycle.
func (a *HistoryArchiver) Run(ctx context.Context) (int, error) {
	records, err := a.repo.ListPrunableLoginHistory(ctx, a.keep)
	if err != nil {
		return 0, fmt.Errorf("listing prunable history: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	if a.archive != nil {
		doc, err := json.Marshal(records)
		if err != nil {
			return 0, fmt.Errorf("encoding archive: %w", err)
		}
		key := fmt.Sprintf("login-history/%s.json", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
		if err := a.archive.Put(ctx, key, doc); err != nil {
			return 0, fmt.Errorf("uploading archive: %w", err)
		}
		a.log.Infow("archived login history", "key", key, "records", len(records))
	}

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	if err := a.repo.DeleteLoginHistory(ctx, ids); err != nil {
		return 0, fmt.Errorf("deleting pruned history: %w", err)
	}
	return len(records), nil
}
