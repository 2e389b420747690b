// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/tomtom215/basketrec/internal/recommend"
)

const (
	filePrefix = "snapshot_v"
	fileSuffix = ".gob.zst"
)

var (
	// ErrNoArchive is returned by Load when no snapshot has been saved.
	ErrNoArchive = errors.New("no archived snapshot")

	// ErrChecksumMismatch is returned when an archive's payload does not
	// match the checksum recorded at save time.
	ErrChecksumMismatch = errors.New("archive checksum mismatch")
)

// Metadata describes one archived snapshot.
type Metadata struct {
	Version int       `json:"version"`
	RunID   string    `json:"run_id"`
	BuiltAt time.Time `json:"built_at"`
	SavedAt time.Time `json:"saved_at"`

	// Checksum is the hex SHA-256 of the uncompressed payload.
	Checksum string `json:"checksum"`

	// SizeBytes is the compressed payload size.
	SizeBytes int64 `json:"size_bytes"`
	RawBytes  int64 `json:"raw_bytes"`

	Items    int                 `json:"items"`
	Variants []recommend.Variant `json:"variants"`
}

// VariantVectors holds every vector of one variant.
type VariantVectors struct {
	Dimension int
	Vectors   map[string][]float64
	Metadata  map[string]string
}

// Snapshot is the full output of a batch run: the catalog plus every
// variant's vectors. It is what the loader republishes on restore.
type Snapshot struct {
	Meta     recommend.CatalogMeta
	Popular  []recommend.PopularItem
	Partners map[string][]recommend.Partner
	Orders   map[string][]string
	Variants map[recommend.Variant]*VariantVectors
}

// VariantNames returns the archived variants in sorted order.
func (s *Snapshot) VariantNames() []recommend.Variant {
	names := make([]recommend.Variant, 0, len(s.Variants))
	for v := range s.Variants {
		names = append(names, v)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// storedFile is the on-disk format.
type storedFile struct {
	Metadata       Metadata
	CompressedData []byte
}

// Archive keeps numbered snapshot files in one directory.
type Archive struct {
	baseDir string
	mu      sync.RWMutex
	latest  int
	now     func() time.Time
}

// NewArchive opens or creates an archive rooted at baseDir.
func NewArchive(baseDir string) (*Archive, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil { //nolint:gosec // 0750 is acceptable for snapshot storage
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	a := &Archive{baseDir: baseDir, now: time.Now}
	versions, err := a.versions()
	if err != nil {
		return nil, fmt.Errorf("scan archive: %w", err)
	}
	if len(versions) > 0 {
		a.latest = versions[0]
	}
	return a, nil
}

// Dir returns the archive directory.
func (a *Archive) Dir() string { return a.baseDir }

// versions lists the archived versions, newest first.
func (a *Archive) versions() ([]int, error) {
	entries, err := os.ReadDir(a.baseDir)
	if err != nil {
		return nil, err
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if v, ok := parseFilename(entry.Name()); ok {
			versions = append(versions, v)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	return versions, nil
}

// parseFilename extracts the version from "snapshot_v12.gob.zst".
func parseFilename(name string) (int, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	v, err := strconv.Atoi(name[len(filePrefix) : len(name)-len(fileSuffix)])
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func (a *Archive) path(version int) string {
	return filepath.Join(a.baseDir, filePrefix+strconv.Itoa(version)+fileSuffix)
}

// Save writes snap as the next version and returns its metadata. The
// file is written to a temporary name and renamed into place.
func (a *Archive) Save(ctx context.Context, snap *Snapshot) (*Metadata, error) {
	if snap == nil {
		return nil, errors.New("save snapshot: nil snapshot")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	rawData := buf.Bytes()
	hash := sha256.Sum256(rawData)

	var compressed bytes.Buffer
	zw, err := zstd.NewWriter(&compressed, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create compressor: %w", err)
	}
	if _, err := zw.Write(rawData); err != nil {
		_ = zw.Close() //nolint:errcheck // write error takes precedence
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}

	version := a.latest + 1
	meta := Metadata{
		Version:   version,
		RunID:     snap.Meta.RunID,
		BuiltAt:   snap.Meta.BuiltAt,
		SavedAt:   a.now().UTC(),
		Checksum:  hex.EncodeToString(hash[:]),
		SizeBytes: int64(compressed.Len()),
		RawBytes:  int64(len(rawData)),
		Items:     len(snap.Popular),
		Variants:  snap.VariantNames(),
	}

	tmp, err := os.CreateTemp(a.baseDir, ".snapshot-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) } //nolint:errcheck // best-effort cleanup of partial file

	sf := storedFile{Metadata: meta, CompressedData: compressed.Bytes()}
	if err := gob.NewEncoder(tmp).Encode(sf); err != nil {
		_ = tmp.Close() //nolint:errcheck // encode error takes precedence
		cleanup()
		return nil, fmt.Errorf("write archive file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // sync error takes precedence
		cleanup()
		return nil, fmt.Errorf("sync archive file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("close archive file: %w", err)
	}
	if err := os.Rename(tmpName, a.path(version)); err != nil {
		cleanup()
		return nil, fmt.Errorf("rename archive file: %w", err)
	}

	a.latest = version
	return &meta, nil
}

// Load reads a snapshot by version. Version 0 loads the latest.
func (a *Archive) Load(ctx context.Context, version int) (*Snapshot, *Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if version == 0 {
		if a.latest == 0 {
			return nil, nil, ErrNoArchive
		}
		version = a.latest
	}

	sf, err := a.readFile(version)
	if err != nil {
		return nil, nil, err
	}

	zr, err := zstd.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	defer zr.Close()

	rawData, err := io.ReadAll(zr)
	if err != nil {
		return nil, nil, fmt.Errorf("read decompressed data: %w", err)
	}

	hash := sha256.Sum256(rawData)
	if checksum := hex.EncodeToString(hash[:]); checksum != sf.Metadata.Checksum {
		return nil, nil, fmt.Errorf("%w: version %d: expected %s, got %s",
			ErrChecksumMismatch, version, sf.Metadata.Checksum, checksum)
	}

	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(rawData)).Decode(&snap); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, &sf.Metadata, nil
}

func (a *Archive) readFile(version int) (*storedFile, error) {
	f, err := os.Open(a.path(version)) //nolint:gosec // path is built from a numeric version
	if err != nil {
		return nil, fmt.Errorf("open archive file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // error on close after read is not actionable

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, fmt.Errorf("read archive file: %w", err)
	}
	return &sf, nil
}

// LatestVersion returns the newest version, or false if the archive is empty.
func (a *Archive) LatestVersion() (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest, a.latest > 0
}

// List returns metadata for every readable archive, newest first.
func (a *Archive) List(ctx context.Context) ([]Metadata, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	versions, err := a.versions()
	if err != nil {
		return nil, fmt.Errorf("scan archive: %w", err)
	}

	out := make([]Metadata, 0, len(versions))
	for _, v := range versions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sf, err := a.readFile(v)
		if err != nil {
			continue
		}
		out = append(out, sf.Metadata)
	}
	return out, nil
}

// Prune deletes all but the newest keep versions and returns how many
// files were removed.
func (a *Archive) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	versions, err := a.versions()
	if err != nil {
		return 0, fmt.Errorf("scan archive: %w", err)
	}

	removed := 0
	for i := keep; i < len(versions); i++ {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := os.Remove(a.path(versions[i])); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove version %d: %w", versions[i], err)
		}
		removed++
	}
	return removed, nil
}
