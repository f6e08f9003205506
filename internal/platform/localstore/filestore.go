package localstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	fileExtension  = ".json"
	eventBuffer    = 16
	dirPermissions = 0o755
)

// FileStore persists one JSON file per key beneath a data directory. Writes go
// through a temp file and rename so readers never observe partial content.
type FileStore struct {
	dir    string
	logger *zap.Logger

	mu        sync.Mutex
	revisions map[string]Revision
	closed    bool

	subMu       sync.Mutex
	subscribers map[int]*subscriber
	nextSubID   int

	watcher *watcher
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// FileStoreOption customises FileStore construction.
type FileStoreOption func(*FileStore)

// WithLogger attaches a logger used for watch and repair diagnostics.
func WithLogger(logger *zap.Logger) FileStoreOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWatcher enables the filesystem watcher so changes made by external
// processes are surfaced to subscribers as well.
func WithWatcher() FileStoreOption {
	return func(s *FileStore) {
		s.watcher = newWatcher(s)
	}
}

// NewFileStore opens (creating if needed) the store rooted at dir.
func NewFileStore(dir string, opts ...FileStoreOption) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("localstore: data directory is required")
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("localstore: create data directory: %w", err)
	}

	store := &FileStore{
		dir:         dir,
		logger:      zap.NewNop(),
		revisions:   make(map[string]Revision),
		subscribers: make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.loadRevisions(); err != nil {
		return nil, err
	}

	if store.watcher != nil {
		if err := store.watcher.start(); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// Close stops the watcher and closes all subscriber channels.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.watcher != nil {
		err = s.watcher.stop()
	}

	s.subMu.Lock()
	for id, sub := range s.subscribers {
		close(sub.ch)
		delete(s.subscribers, id)
	}
	s.subMu.Unlock()
	return err
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, NoRevision, err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return nil, NoRevision, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, NoRevision, ErrClosed
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, NoRevision, ErrNotFound
	}
	if err != nil {
		return nil, NoRevision, fmt.Errorf("localstore: read %s: %w", key, err)
	}

	rev := revisionOf(data)
	s.revisions[key] = rev
	return data, rev, nil
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, expected Revision) (Revision, error) {
	if err := ctx.Err(); err != nil {
		return NoRevision, err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return NoRevision, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return NoRevision, ErrClosed
	}

	current, err := s.currentRevisionLocked(key, path)
	if err != nil {
		s.mu.Unlock()
		return NoRevision, err
	}
	if expected != AnyRevision && expected != current {
		s.mu.Unlock()
		return NoRevision, ErrRevisionMismatch
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		s.mu.Unlock()
		return NoRevision, fmt.Errorf("localstore: create key directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		s.mu.Unlock()
		return NoRevision, fmt.Errorf("localstore: temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		s.mu.Unlock()
		return NoRevision, fmt.Errorf("localstore: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		s.mu.Unlock()
		return NoRevision, fmt.Errorf("localstore: close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		s.mu.Unlock()
		return NoRevision, fmt.Errorf("localstore: commit %s: %w", key, err)
	}

	rev := revisionOf(data)
	s.revisions[key] = rev
	s.mu.Unlock()

	s.notify(Event{Key: key, Revision: rev})
	return rev, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, key string, expected Revision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	current, err := s.currentRevisionLocked(key, path)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if current == NoRevision {
		s.mu.Unlock()
		return ErrNotFound
	}
	if expected != AnyRevision && expected != current {
		s.mu.Unlock()
		return ErrRevisionMismatch
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.mu.Unlock()
		return fmt.Errorf("localstore: delete %s: %w", key, err)
	}
	delete(s.revisions, key)
	s.mu.Unlock()

	s.notify(Event{Key: key, Deleted: true})
	return nil
}

// Subscribe implements Store.
func (s *FileStore) Subscribe(ctx context.Context, prefix string) (<-chan Event, func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrClosed
	}
	s.mu.Unlock()

	sub := &subscriber{prefix: prefix, ch: make(chan Event, eventBuffer)}

	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = sub
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			if existing, ok := s.subscribers[id]; ok && existing == sub {
				delete(s.subscribers, id)
				close(sub.ch)
			}
			s.subMu.Unlock()
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return sub.ch, cancel, nil
}

func (s *FileStore) notify(event Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subscribers {
		if sub.prefix != "" && !strings.HasPrefix(event.Key, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Slow consumers drop events rather than block writers.
		}
	}
}

func (s *FileStore) currentRevisionLocked(key, path string) (Revision, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		delete(s.revisions, key)
		return NoRevision, nil
	}
	if err != nil {
		return NoRevision, fmt.Errorf("localstore: read %s: %w", key, err)
	}
	rev := revisionOf(data)
	s.revisions[key] = rev
	return rev, nil
}

func (s *FileStore) loadRevisions() error {
	return filepath.WalkDir(s.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(path, fileExtension) {
			return nil
		}
		key, ok := s.keyFor(path)
		if !ok {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			s.logger.Warn("skipping unreadable store file",
				zap.String("path", path),
				zap.Error(readErr),
			)
			return nil
		}
		s.revisions[key] = revisionOf(data)
		return nil
	})
}

func (s *FileStore) pathFor(key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)+fileExtension), nil
}

func (s *FileStore) keyFor(path string) (string, bool) {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasSuffix(rel, fileExtension) {
		return "", false
	}
	key := strings.TrimSuffix(rel, fileExtension)
	if !validKey(key) {
		return "", false
	}
	return key, true
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return false
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
		for _, r := range segment {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
			case r == '-' || r == '_' || r == '.':
			default:
				return false
			}
		}
	}
	return true
}

func revisionOf(data []byte) Revision {
	sum := sha256.Sum256(data)
	return Revision(hex.EncodeToString(sum[:8]))
}
