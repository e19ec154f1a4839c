package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileSnapshot is the on-disk JSON layout.
type fileSnapshot struct {
	Version         int                               `json:"version"`
	UpdatedAt       string                            `json:"updatedAt"`
	RouteCursors    map[string]int                    `json:"routeCursors"`
	CandidateStates map[string]CandidateState         `json:"candidateStates"`
	BucketUsage     map[string]map[string]BucketUsage `json:"bucketUsage"`
}

const fileSnapshotVersion = 1

// FileStore persists state to a single JSON file. The in-memory copy is the
// source of truth between flushes; every mutation schedules an atomic
// rewrite (tmp file + rename) through a single-writer queue.
type FileStore struct {
	*MemoryStore

	path   string
	logger *slog.Logger

	flushCh chan chan error
	done    chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// OpenFile loads (or creates) a file-backed store at path. A corrupt file is
// renamed aside and replaced with empty state.
func OpenFile(path string, logger *slog.Logger, opts ...MemoryOption) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{
		MemoryStore: NewMemory(opts...),
		path:        path,
		logger:      logger,
		flushCh:     make(chan chan error, 64),
		done:        make(chan struct{}),
	}
	if err := s.loadFromDisk(); err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

func (s *FileStore) loadFromDisk() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	var snap fileSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		quarantine := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().UnixMilli())
		if renameErr := os.Rename(s.path, quarantine); renameErr != nil {
			return fmt.Errorf("quarantine corrupt state file: %w", renameErr)
		}
		s.logger.Warn("state file corrupt, starting empty",
			slog.String("path", s.path),
			slog.String("quarantined", quarantine),
			slog.String("error", err.Error()))
		return nil
	}
	s.replace(snap.RouteCursors, snap.CandidateStates, snap.BucketUsage)
	return nil
}

// writeLoop serializes disk rewrites. Pending flush requests are coalesced
// into a single write per wakeup.
func (s *FileStore) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case ack := <-s.flushCh:
			waiters := []chan error{ack}
			for drained := false; !drained; {
				select {
				case more := <-s.flushCh:
					waiters = append(waiters, more)
				default:
					drained = true
				}
			}
			err := s.writeSnapshot()
			if err != nil {
				s.logger.Error("state flush failed",
					slog.String("path", s.path),
					slog.String("error", err.Error()))
			}
			for _, w := range waiters {
				if w != nil {
					w <- err
				}
			}
		case <-s.done:
			return
		}
	}
}

func (s *FileStore) writeSnapshot() error {
	cursors, states, usage := s.Snapshot()
	snap := fileSnapshot{
		Version:         fileSnapshotVersion,
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		RouteCursors:    cursors,
		CandidateStates: states,
		BucketUsage:     usage,
	}
	raw, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := fmt.Sprintf("%s.tmp-%d-%d-%04d", s.path, os.Getpid(), time.Now().UnixMilli(), rand.Intn(10000))
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

// scheduleFlush enqueues a rewrite without waiting for it.
func (s *FileStore) scheduleFlush() {
	select {
	case s.flushCh <- nil:
	default:
		// Queue full: a rewrite is already pending and will pick up this
		// mutation from the in-memory copy.
	}
}

// Flush blocks until the current state has been written to disk.
func (s *FileStore) Flush() error {
	ack := make(chan error, 1)
	select {
	case s.flushCh <- ack:
		return <-ack
	case <-s.done:
		return errors.New("state store closed")
	}
}

// ReloadFromDisk flushes pending writes, then replaces the in-memory state
// with the file contents.
func (s *FileStore) ReloadFromDisk() error {
	if err := s.Flush(); err != nil {
		return err
	}
	return s.loadFromDisk()
}

func (s *FileStore) SetRouteCursor(ctx context.Context, routeKey string, v int) error {
	if err := s.MemoryStore.SetRouteCursor(ctx, routeKey, v); err != nil {
		return err
	}
	s.scheduleFlush()
	return nil
}

func (s *FileStore) SetCandidateState(ctx context.Context, candidateKey string, st *CandidateState) error {
	if err := s.MemoryStore.SetCandidateState(ctx, candidateKey, st); err != nil {
		return err
	}
	s.scheduleFlush()
	return nil
}

func (s *FileStore) IncrementBucketUsage(ctx context.Context, bucketKey, windowKey string, amount int, expiresAt, now time.Time) (int, error) {
	n, err := s.MemoryStore.IncrementBucketUsage(ctx, bucketKey, windowKey, amount, expiresAt, now)
	if err != nil {
		return n, err
	}
	s.scheduleFlush()
	return n, nil
}

func (s *FileStore) PruneExpired(ctx context.Context, now time.Time) (PruneResult, error) {
	res, err := s.MemoryStore.PruneExpired(ctx, now)
	if err != nil {
		return res, err
	}
	if res.PrunedBuckets > 0 || res.PrunedCandidateStates > 0 {
		s.scheduleFlush()
	}
	return res, nil
}

// Close flushes the queue and stops the writer.
func (s *FileStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.Flush()
		close(s.done)
		s.wg.Wait()
	})
	return err
}
