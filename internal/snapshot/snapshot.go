// Copyright 2025 James Ross
// Package snapshot defines the point-in-time backup record and the
// dedup-entry bookkeeping that accompanies it. A Snapshot is the unit a
// restore operation targets; committing one is the only point at which the
// dedup index's refcounts are durably bumped.
package snapshot

import (
	"time"

	"github.com/google/uuid"
)

// FileMetadata describes one file or directory captured by a snapshot.
type FileMetadata struct {
	LogicalPath     string    `json:"logical_path"`
	Size            uint64    `json:"size"`
	ModifiedTime    time.Time `json:"modified_time"`
	PermissionBits  uint32    `json:"permission_bits"`
	IsDirectory     bool      `json:"is_directory"`
	ChunkSequence   []string  `json:"chunk_sequence"`
}

// Snapshot is the durable record of one backup run.
type Snapshot struct {
	SnapshotID         string     `json:"snapshot_id"`
	DisplayName        string     `json:"display_name"`
	CreatedAt          time.Time  `json:"created_at"`
	SourceRoot         string     `json:"source_root"`
	TotalPlaintextBytes uint64    `json:"total_plaintext_bytes"`
	// TotalStoredBytes is the sum of bytes for chunks newly written by this
	// snapshot's commit, not the total size of every chunk it references
	// (the Rust prototype conflated the two; spec §9 calls this out).
	TotalStoredBytes   uint64   `json:"total_stored_bytes"`
	FileCount          uint64   `json:"file_count"`
	ChunkSequenceUnion []string `json:"chunk_sequence_union"`
	ParentSnapshotID   string   `json:"parent_snapshot_id,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	Files              []FileMetadata `json:"files"`
}

// DedupEntry is an (address, refcount) pair. No code in this module writes
// or reads DedupEntry records: the engine's dedup index lives in memory
// only and is not rebuilt from storage when a new Engine is created.
type DedupEntry struct {
	Address  string `json:"address"`
	RefCount int64  `json:"refcount"`
}

// NewID generates a fresh snapshot identifier.
func NewID() string {
	return uuid.NewString()
}

// CanonicalizeAddresses deduplicates a chunk-address sequence while
// preserving first-occurrence order, producing the set a snapshot commit
// should bump each address's refcount by exactly once — a file that
// references the same chunk twice (e.g. a repeated block) must not inflate
// that chunk's refcount twice for a single snapshot.
func CanonicalizeAddresses(addresses []string) []string {
	seen := make(map[string]bool, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

// Builder accumulates file metadata and chunk references while a backup
// runs, then produces a finished Snapshot when the source tree has been
// fully walked.
type Builder struct {
	displayName      string
	sourceRoot       string
	parentSnapshotID string
	tags             []string

	files               []FileMetadata
	totalPlaintextBytes uint64
	totalStoredBytes    uint64
	allAddresses        []string
}

// NewBuilder starts a snapshot for sourceRoot.
func NewBuilder(displayName, sourceRoot string) *Builder {
	return &Builder{displayName: displayName, sourceRoot: sourceRoot}
}

// WithParent records the snapshot this one is incremental against.
func (b *Builder) WithParent(parentSnapshotID string) *Builder {
	b.parentSnapshotID = parentSnapshotID
	return b
}

// WithTags attaches free-form labels to the finished snapshot.
func (b *Builder) WithTags(tags ...string) *Builder {
	b.tags = append(b.tags, tags...)
	return b
}

// AddFile records one ingested file's metadata and chunk sequence.
// storedBytes is the number of bytes IngestFile actually wrote to storage
// for this file's chunks (0 for a file whose content was entirely
// deduplicated against chunks already known to the repository).
func (b *Builder) AddFile(meta FileMetadata, storedBytes uint64) {
	b.files = append(b.files, meta)
	b.totalPlaintextBytes += meta.Size
	b.totalStoredBytes += storedBytes
	b.allAddresses = append(b.allAddresses, meta.ChunkSequence...)
}

// Finish produces the Snapshot. TotalStoredBytes is the running sum of the
// storedBytes passed to AddFile, not the size of every chunk the snapshot
// references: chunks deduplicated against an earlier snapshot or an
// already-present chunk contribute nothing to it.
func (b *Builder) Finish(now time.Time) Snapshot {
	return Snapshot{
		SnapshotID:          NewID(),
		DisplayName:         b.displayName,
		CreatedAt:           now,
		SourceRoot:          b.sourceRoot,
		TotalPlaintextBytes: b.totalPlaintextBytes,
		TotalStoredBytes:    b.totalStoredBytes,
		FileCount:           uint64(len(b.files)),
		ChunkSequenceUnion:  CanonicalizeAddresses(b.allAddresses),
		ParentSnapshotID:    b.parentSnapshotID,
		Tags:                b.tags,
		Files:               b.files,
	}
}
