package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/restful-users/apiserver/types"
	"github.com/rs/zerolog"
)

const (
	snapshotTimeLayout = "20060102T150405Z"
	snapshotPrefix     = "snapshot-"
	snapshotSuffix     = ".json"
)

// SnapshotStore keeps JSON documents under object keys. PutJSON returns
// the key it wrote; the other methods take such keys.
type SnapshotStore interface {
	PutJSON(ctx context.Context, name string, value any) (string, error)
	GetJSON(ctx context.Context, key string, dst any) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// Snapshot is the document written by ExportService.
type Snapshot struct {
	GeneratedAt time.Time    `json:"generatedAt"`
	Count       int          `json:"count"`
	Users       []types.User `json:"users"`
}

// ExportService writes point-in-time copies of the directory to object
// storage.
type ExportService struct {
	users  *UserService
	store  SnapshotStore
	logger zerolog.Logger
	now    func() time.Time
}

func NewExportService(users *UserService, store SnapshotStore, logger zerolog.Logger) *ExportService {
	return &ExportService{
		users:  users,
		store:  store,
		logger: logger.With().Str("component", "export_service").Logger(),
		now:    time.Now,
	}
}

// Export uploads every user as one snapshot and returns its key.
func (s *ExportService) Export(ctx context.Context) (string, Snapshot, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return "", Snapshot{}, err
	}

	generatedAt := s.now().UTC()
	snapshot := Snapshot{
		GeneratedAt: generatedAt,
		Count:       len(users),
		Users:       users,
	}

	name := snapshotPrefix + generatedAt.Format(snapshotTimeLayout) + snapshotSuffix
	key, err := s.store.PutJSON(ctx, name, snapshot)
	if err != nil {
		return "", Snapshot{}, fmt.Errorf("export users: %w", err)
	}

	s.logger.Info().Str("key", key).Int("count", snapshot.Count).Msg("exported users")
	return key, snapshot, nil
}

// Load reads back the snapshot stored at key.
func (s *ExportService) Load(ctx context.Context, key string) (Snapshot, error) {
	var snapshot Snapshot
	if err := s.store.GetJSON(ctx, key, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return snapshot, nil
}

// Snapshots lists stored snapshot keys, oldest first. Other objects under
// the same prefix are ignored.
func (s *ExportService) Snapshots(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	snapshots := make([]string, 0, len(keys))
	for _, key := range keys {
		name := path.Base(key)
		if strings.HasPrefix(name, snapshotPrefix) && strings.HasSuffix(name, snapshotSuffix) {
			snapshots = append(snapshots, key)
		}
	}
	// The timestamp layout sorts chronologically.
	sort.Slice(snapshots, func(i, j int) bool {
		return path.Base(snapshots[i]) < path.Base(snapshots[j])
	})
	return snapshots, nil
}

// Prune deletes all but the newest keep snapshots and returns the deleted
// keys.
func (s *ExportService) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		return nil, errors.New("keep must be at least 1")
	}

	snapshots, err := s.Snapshots(ctx)
	if err != nil {
		return nil, err
	}
	if len(snapshots) <= keep {
		return nil, nil
	}

	stale := snapshots[:len(snapshots)-keep]
	for i, key := range stale {
		if err := s.store.Delete(ctx, key); err != nil {
			return stale[:i], fmt.Errorf("delete snapshot %s: %w", key, err)
		}
	}
	s.logger.Info().Int("deleted", len(stale)).Int("kept", keep).Msg("pruned snapshots")
	return stale, nil
}
