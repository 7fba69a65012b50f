package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/MimeLyc/subtitle-studio/internal/persistence"
)

// CheckpointBackend stores finished translation batches per job.
// *persistence.SQLiteStore implements it.
type CheckpointBackend interface {
	SaveBatchCheckpoint(ctx context.Context, jobID string, batchStart, batchEnd int, translatedLines []string) error
	LoadBatchCheckpoints(ctx context.Context, jobID string) ([]persistence.BatchCheckpoint, error)
}

type persistentBatchCheckpointStore struct {
	backend CheckpointBackend
	jobID   string

	mu     sync.RWMutex
	cached map[string][]string
}

func newPersistentBatchCheckpointStore(ctx context.Context, backend CheckpointBackend, jobID string) (*persistentBatchCheckpointStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("checkpoint backend is nil")
	}
	if jobID == "" {
		return nil, fmt.Errorf("job id is empty")
	}

	checkpoints, err := backend.LoadBatchCheckpoints(ctx, jobID)
	if err != nil {
		return nil, err
	}

	cached := make(map[string][]string, len(checkpoints))
	for _, cp := range checkpoints {
		cached[batchKey(cp.BatchStart, cp.BatchEnd)] = append([]string(nil), cp.TranslatedLines...)
	}

	return &persistentBatchCheckpointStore{
		backend: backend,
		jobID:   jobID,
		cached:  cached,
	}, nil
}

func (s *persistentBatchCheckpointStore) Load(start, end int) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret, ok := s.cached[batchKey(start, end)]
	if !ok {
		return nil, false
	}
	return append([]string(nil), ret...), true
}

func (s *persistentBatchCheckpointStore) Save(ctx context.Context, start, end int, translated []string) error {
	if s == nil {
		return nil
	}
	copyData := append([]string(nil), translated...)
	if err := s.backend.SaveBatchCheckpoint(ctx, s.jobID, start, end, copyData); err != nil {
		return err
	}
	s.mu.Lock()
	s.cached[batchKey(start, end)] = copyData
	s.mu.Unlock()
	return nil
}

func batchKey(start, end int) string {
	return fmt.Sprintf("%d:%d", start, end)
}
