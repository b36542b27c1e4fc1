// Package storage implements the bootstrap cache: a bounded, concurrency-safe
// set of known peer addresses persisted to a versioned YAML file with atomic
// replace-on-write.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"ant-bootstrap/internal/logger"
	"ant-bootstrap/internal/types"
)

// Constants for file operations
const (
	// TempFilePattern is the CreateTemp pattern for in-progress writes
	TempFilePattern = ".*.tmp"
	// BackupFileSuffix is the suffix for copies of unreadable cache files
	BackupFileSuffix = ".backup"
	// FilePermissions defines the file permissions for cache files
	FilePermissions = 0644
	// DirPermissions defines the permissions of a created cache directory
	DirPermissions = 0755
)

// Option configures a CacheStore
type Option func(*CacheStore)

// WithClock replaces the wall clock used for timestamps and flush ticks
func WithClock(c clock.Clock) Option {
	return func(s *CacheStore) {
		s.clock = c
	}
}

// CacheStore owns the in-memory set of known peer addresses. Reads and
// mutations are guarded by mu; disk I/O happens on copies outside it.
type CacheStore struct {
	mu      sync.RWMutex // Protects entries
	entries *simplelru.LRU[string, types.CacheEntry]

	flushMu sync.Mutex // Serializes flushes so renames never interleave

	config types.CacheConfig
	clock  clock.Clock
	log    *logger.Logger

	tasksMu sync.Mutex
	tasks   []*PeriodicFlush
	closed  bool

	// beforeRename runs between the temp file write and the rename
	beforeRename func(tempPath string) error
}

// Open loads the cache file named by config.CachePath. A missing file yields
// an empty store. An unreadable file is backed up next to the original and
// reported as a *DecodeError; the original is never removed. With cache
// writing disabled no backup is made.
func Open(config types.CacheConfig, opts ...Option) (*CacheStore, error) {
	config = config.WithDefaults()
	if config.MaxEntries < 1 {
		return nil, fmt.Errorf("max_entries must be positive, got %d", config.MaxEntries)
	}

	s := &CacheStore{
		config: config,
		clock:  clock.New(),
		log:    logger.Component("bootstrap.cache"),
	}
	for _, opt := range opts {
		opt(s)
	}

	lru, err := simplelru.NewLRU[string, types.CacheEntry](config.MaxEntries, s.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry set: %w", err)
	}
	s.entries = lru

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *CacheStore) load() error {
	data, err := os.ReadFile(s.config.CachePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Info("No bootstrap cache file, starting empty", "path", s.config.CachePath)
			return nil
		}
		return fmt.Errorf("failed to read bootstrap cache %s: %w", s.config.CachePath, err)
	}

	result, err := Decode(data, s.clock.Now())
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			decodeErr.Path = s.config.CachePath
		}

		if s.config.DisableCacheWriting {
			s.log.Warn("Unreadable bootstrap cache not backed up, cache writing disabled",
				"path", s.config.CachePath, "error", err)
			return err
		}

		backupPath, backupErr := s.createBackup()
		if backupErr != nil {
			s.log.Warn("Failed to back up unreadable cache file", "path", s.config.CachePath, "error", backupErr)
		} else if decodeErr != nil {
			decodeErr.BackupPath = backupPath
		}
		return err
	}

	entries := result.File.Entries
	sortByRecency(entries)

	s.mu.Lock()
	for _, entry := range entries {
		s.entries.Add(entry.Address.Key(), entry)
	}
	s.mu.Unlock()

	s.log.Info("Loaded bootstrap cache",
		"path", s.config.CachePath,
		"entries", s.Len(),
		"dropped", result.Dropped,
		"source_version", result.SourceVersion)
	if result.Migrated() {
		s.log.Info("Bootstrap cache will be rewritten at current version",
			"from", result.SourceVersion, "to", CurrentVersion)
	}

	return nil
}

func (s *CacheStore) onEvict(key string, entry types.CacheEntry) {
	s.log.Debug("Evicted least recently seen peer", "address", key, "last_seen", entry.LastSeen)
}

// Config returns the configuration the store was opened with
func (s *CacheStore) Config() types.CacheConfig {
	return s.config
}

// Snapshot returns every known address, most recently seen first
func (s *CacheStore) Snapshot() []types.PeerAddress {
	s.mu.RLock()
	values := s.entries.Values()
	s.mu.RUnlock()

	result := make([]types.PeerAddress, len(values))
	for i, entry := range values {
		result[len(values)-1-i] = entry.Address
	}
	return result
}

// Entries returns copies of every entry, most recently seen first
func (s *CacheStore) Entries() []types.CacheEntry {
	s.mu.RLock()
	values := s.entries.Values()
	result := make([]types.CacheEntry, len(values))
	for i, entry := range values {
		result[len(values)-1-i] = entry.Clone()
	}
	s.mu.RUnlock()
	return result
}

// Len returns the number of known addresses
func (s *CacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Len()
}

// RecordSeen inserts addr or refreshes its timestamp. When the store is full
// the least recently seen entry is evicted.
func (s *CacheStore) RecordSeen(addr types.PeerAddress) {
	s.RecordSeenWithMetadata(addr, nil)
}

// RecordSeenWithMetadata is RecordSeen that also merges metadata into the entry
func (s *CacheStore) RecordSeenWithMetadata(addr types.PeerAddress, metadata map[string]string) {
	if addr.IsZero() {
		return
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries.Peek(addr.Key())
	if !ok {
		entry = types.CacheEntry{Address: addr}
	} else {
		entry = entry.Clone()
	}
	entry.LastSeen = now
	if len(metadata) > 0 {
		if entry.Metadata == nil {
			entry.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			entry.Metadata[k] = v
		}
	}

	s.entries.Add(addr.Key(), entry)
}

// Remove drops addr from the set, reporting whether it was present
func (s *CacheStore) Remove(addr types.PeerAddress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Remove(addr.Key())
}

// FlushNow encodes the current entries and atomically replaces the cache
// file. With disable_cache_writing set it does nothing.
func (s *CacheStore) FlushNow() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if s.config.DisableCacheWriting {
		s.log.Debug("Cache writing disabled, skipping flush")
		return nil
	}

	entries := s.Entries()
	data, err := Encode(CacheFile{Version: CurrentVersion, Entries: entries})
	if err != nil {
		return err
	}

	if err := s.writeFileAtomic(data); err != nil {
		return fmt.Errorf("failed to write bootstrap cache: %w", err)
	}

	s.log.Debug("Flushed bootstrap cache", "path", s.config.CachePath, "entries", len(entries))
	return nil
}

// writeFileAtomic writes data to file atomically using temp file + rename
func (s *CacheStore) writeFileAtomic(data []byte) error {
	dir := filepath.Dir(s.config.CachePath)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.CreateTemp(dir, filepath.Base(s.config.CachePath)+TempFilePattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempFile := file.Name()

	// Ensure temp file is cleaned up on error
	renamed := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !renamed {
			os.Remove(tempFile)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := file.Chmod(FilePermissions); err != nil {
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	file = nil

	if s.beforeRename != nil {
		if err := s.beforeRename(tempFile); err != nil {
			return err
		}
	}

	if err := os.Rename(tempFile, s.config.CachePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	renamed = true

	return nil
}

// createBackup copies an unreadable cache file aside so it survives a later
// flush. An existing backup is never overwritten; later copies get a
// timestamp suffix.
func (s *CacheStore) createBackup() (string, error) {
	backupPath := s.config.CachePath + BackupFileSuffix
	err := copyFile(s.config.CachePath, backupPath)
	if errors.Is(err, os.ErrExist) {
		backupPath = fmt.Sprintf("%s%s.%d", s.config.CachePath, BackupFileSuffix, s.clock.Now().UnixNano())
		err = copyFile(s.config.CachePath, backupPath)
	}
	if err != nil {
		return "", err
	}

	s.log.Warn("Unreadable bootstrap cache backed up", "path", s.config.CachePath, "backup", backupPath)
	return backupPath, nil
}

// copyFile copies src to dst, failing if dst already exists
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	destFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, FilePermissions)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	return destFile.Sync()
}

// PeriodicFlush is a running background flush task
type PeriodicFlush struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	err    error
	cycles int
}

// Stop cancels the task and waits for an in-progress cycle to finish
func (p *PeriodicFlush) Stop() {
	p.cancel()
	<-p.done
}

// Done is closed once the task has exited
func (p *PeriodicFlush) Done() <-chan struct{} {
	return p.done
}

// Err returns the result of the most recent cycle
func (p *PeriodicFlush) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Cycles returns how many flush cycles have completed
func (p *PeriodicFlush) Cycles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles
}

func (p *PeriodicFlush) record(err error) {
	p.mu.Lock()
	p.err = err
	p.cycles++
	p.mu.Unlock()
}

// SyncAndFlushPeriodically flushes the store every interval until ctx is
// cancelled or Stop is called. Cancellation is only observed between cycles,
// so a write in progress always completes. With disable_cache_writing set the
// task still ticks but every cycle is a no-op. A non-positive interval uses
// the configured sync_interval.
func (s *CacheStore) SyncAndFlushPeriodically(ctx context.Context, interval time.Duration) *PeriodicFlush {
	if interval <= 0 {
		interval = s.config.SyncInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	task := &PeriodicFlush{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// Create the ticker before returning so a mocked clock can be advanced
	// immediately by the caller.
	ticker := s.clock.Ticker(interval)

	s.tasksMu.Lock()
	s.tasks = append(s.tasks, task)
	s.tasksMu.Unlock()

	go func() {
		defer close(task.done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := s.FlushNow()
				if err != nil {
					s.log.Error("Periodic bootstrap cache flush failed", "error", err)
				}
				task.record(err)
			}
		}
	}()

	s.log.Info("Started periodic bootstrap cache flush",
		"interval", interval.String(),
		"writes_disabled", s.config.DisableCacheWriting)
	return task
}

// Close stops every periodic task and performs a final flush
func (s *CacheStore) Close() error {
	s.tasksMu.Lock()
	if s.closed {
		s.tasksMu.Unlock()
		return ErrStoreClosed
	}
	s.closed = true
	tasks := s.tasks
	s.tasks = nil
	s.tasksMu.Unlock()

	for _, task := range tasks {
		task.Stop()
	}

	return s.FlushNow()
}
