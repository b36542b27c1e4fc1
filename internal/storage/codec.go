package storage

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"ant-bootstrap/internal/types"
)

// CurrentVersion is the cache file schema this build reads and writes
const CurrentVersion uint = 1

// CacheFile is the in-memory form of the persisted cache
type CacheFile struct {
	Version uint
	Entries []types.CacheEntry
}

// DecodeResult is a decoded file plus what happened on the way
type DecodeResult struct {
	File CacheFile
	// SourceVersion is the version tag found on disk before migration
	SourceVersion uint
	// Dropped counts entries discarded because they failed validation
	Dropped int
}

// Migrated reports whether the file was written by an older schema
func (r *DecodeResult) Migrated() bool {
	return r.SourceVersion < CurrentVersion
}

// fileHeader is decoded first so the version tag is known before the body
type fileHeader struct {
	Version *uint `yaml:"version"`
}

// rawFile is the superset of every schema version's fields
type rawFile struct {
	Version uint       `yaml:"version"`
	Entries []rawEntry `yaml:"entries"`
}

// rawBody defers entry decoding so one badly typed entry cannot fail the file
type rawBody struct {
	Entries []yaml.Node `yaml:"entries"`
}

type rawEntry struct {
	Address  string            `yaml:"address"`
	LastSeen *uint64           `yaml:"last_seen,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// migration upgrades a raw file from version i to version i+1
type migration func(f *rawFile, now time.Time)

// migrations is indexed by the version each step upgrades from
var migrations = []migration{
	migrateV0ToV1,
}

// migrateV0ToV1 stamps every entry with the migration time since v0 had no
// recency field. The stamp is rounded up so it is never before now.
func migrateV0ToV1(f *rawFile, now time.Time) {
	stamp := now.Truncate(time.Second)
	if stamp.Before(now) {
		stamp = stamp.Add(time.Second)
	}
	ts := uint64(stamp.Unix())
	for i := range f.Entries {
		seen := ts
		f.Entries[i].LastSeen = &seen
	}
	f.Version = 1
}

// Decode parses a cache file, migrating older schemas to CurrentVersion.
// Entries that are badly typed or fail address validation are dropped and
// counted. Only an unreadable document, a missing version tag, or a version
// newer than CurrentVersion is an error.
func Decode(data []byte, now time.Time) (*DecodeResult, error) {
	var header fileHeader
	if err := yaml.Unmarshal(data, &header); err != nil {
		return nil, &DecodeError{Cause: fmt.Errorf("%w: %v", ErrUnreadableVersion, err)}
	}
	if header.Version == nil {
		return nil, &DecodeError{Cause: ErrUnreadableVersion}
	}

	version := *header.Version
	if version > CurrentVersion {
		return nil, &DecodeError{Version: version, Cause: ErrUnsupportedVersion}
	}

	var body rawBody
	if err := yaml.Unmarshal(data, &body); err != nil {
		return nil, &DecodeError{Version: version, Cause: err}
	}

	result := &DecodeResult{
		File:          CacheFile{Version: CurrentVersion},
		SourceVersion: version,
	}

	raw := rawFile{Version: version, Entries: make([]rawEntry, 0, len(body.Entries))}
	for i := range body.Entries {
		var re rawEntry
		if err := body.Entries[i].Decode(&re); err != nil {
			result.Dropped++
			continue
		}
		raw.Entries = append(raw.Entries, re)
	}

	for v := version; v < CurrentVersion; v++ {
		migrations[v](&raw, now)
	}

	index := make(map[string]int, len(raw.Entries))
	for _, re := range raw.Entries {
		addr, err := types.ParsePeerAddress(re.Address)
		if err != nil || re.LastSeen == nil || *re.LastSeen > math.MaxInt64 {
			result.Dropped++
			continue
		}

		entry := types.CacheEntry{
			Address:  addr,
			LastSeen: time.Unix(int64(*re.LastSeen), 0),
			Metadata: re.Metadata,
		}

		if i, ok := index[addr.Key()]; ok {
			if entry.LastSeen.After(result.File.Entries[i].LastSeen) {
				result.File.Entries[i] = entry
			}
			continue
		}
		index[addr.Key()] = len(result.File.Entries)
		result.File.Entries = append(result.File.Entries, entry)
	}

	return result, nil
}

// Encode serializes entries at CurrentVersion. Output is byte-identical for
// the same entry set regardless of input order.
func Encode(f CacheFile) ([]byte, error) {
	entries := make([]types.CacheEntry, len(f.Entries))
	copy(entries, f.Entries)
	types.SortEntries(entries)

	raw := rawFile{
		Version: CurrentVersion,
		Entries: make([]rawEntry, 0, len(entries)),
	}
	for _, e := range entries {
		seen := uint64(e.LastSeen.Unix())
		raw.Entries = append(raw.Entries, rawEntry{
			Address:  e.Address.String(),
			LastSeen: &seen,
			Metadata: e.Metadata,
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&raw); err != nil {
		return nil, fmt.Errorf("failed to encode cache file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode cache file: %w", err)
	}
	return buf.Bytes(), nil
}

// sortByRecency orders entries oldest first, ties broken by address
func sortByRecency(entries []types.CacheEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].Address.Key() < entries[j].Address.Key()
		}
		return entries[i].LastSeen.Before(entries[j].LastSeen)
	})
}
