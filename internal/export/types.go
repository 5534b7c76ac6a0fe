package export

import (
	"encoding/json"

	"vibesrails/internal/drift"
	"vibesrails/internal/session"
)

// Record kinds, one per line.
const (
	KindMeta     = "meta"
	KindSession  = "session"
	KindSnapshot = "snapshot"
)

// FormatVersion is written into every export header.
const FormatVersion = 1

// Options selects what Export writes.
type Options struct {
	ProjectPath   string
	Compress      bool
	SessionLimit  int
	SnapshotLimit int
}

// Metadata is the first record of an export.
type Metadata struct {
	FormatVersion int    `json:"format_version" yaml:"format_version"`
	ProjectPath   string `json:"project_path" yaml:"project_path"`
	Generated     string `json:"generated" yaml:"generated"`
	Tool          string `json:"tool" yaml:"tool"`
}

// Record is one JSON line.
type Record struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Archive is an export read back into memory.
type Archive struct {
	Meta      Metadata          `json:"meta" yaml:"meta"`
	Sessions  []session.Session `json:"sessions" yaml:"sessions"`
	Snapshots []drift.Snapshot  `json:"snapshots" yaml:"snapshots"`
}

// Stats summarizes a finished export.
type Stats struct {
	ProjectPath string `json:"project_path" yaml:"project_path"`
	Sessions    int    `json:"sessions" yaml:"sessions"`
	Snapshots   int    `json:"snapshots" yaml:"snapshots"`
	Compressed  bool   `json:"compressed" yaml:"compressed"`
	Bytes       int64  `json:"bytes" yaml:"bytes"`
}
