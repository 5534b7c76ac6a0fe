// Package export writes session and drift history as JSON Lines, optionally
// zstd compressed.
package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"vibesrails/internal/drift"
	"vibesrails/internal/paths"
	"vibesrails/internal/session"
	"vibesrails/internal/storage"
	"vibesrails/internal/version"
)

const defaultLimit = 1000

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Exporter reads history from both trackers.
type Exporter struct {
	sessions *session.Tracker
	drift    *drift.Tracker
	logger   *slog.Logger
	now      func() time.Time
}

// NewExporter creates a new exporter
func NewExporter(sessions *session.Tracker, driftTracker *drift.Tracker, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{
		sessions: sessions,
		drift:    driftTracker,
		logger:   logger,
		now:      time.Now,
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Export writes a metadata line followed by one line per session and per
// snapshot of opts.ProjectPath, newest first.
func (e *Exporter) Export(ctx context.Context, w io.Writer, opts Options) (*Stats, error) {
	project, err := paths.CanonicalizeProject(opts.ProjectPath)
	if err != nil {
		return nil, err
	}
	if opts.SessionLimit <= 0 {
		opts.SessionLimit = defaultLimit
	}
	if opts.SnapshotLimit <= 0 {
		opts.SnapshotLimit = defaultLimit
	}

	sessions, err := e.sessions.ListSessions(ctx, project, opts.SessionLimit)
	if err != nil {
		return nil, err
	}
	snapshots, err := e.drift.History(ctx, project, opts.SnapshotLimit)
	if err != nil {
		return nil, err
	}

	counter := &countingWriter{w: w}
	var out io.Writer = counter
	var zw *zstd.Encoder
	if opts.Compress {
		zw, err = zstd.NewWriter(counter)
		if err != nil {
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}
		out = zw
	}
	enc := json.NewEncoder(out)

	meta := Metadata{
		FormatVersion: FormatVersion,
		ProjectPath:   project,
		Generated:     storage.FormatTime(e.now()),
		Tool:          "vibesrails " + version.Version,
	}
	if err := writeRecord(enc, KindMeta, meta); err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if err := writeRecord(enc, KindSession, s); err != nil {
			return nil, err
		}
	}
	for _, s := range snapshots {
		if err := writeRecord(enc, KindSnapshot, s); err != nil {
			return nil, err
		}
	}

	if zw != nil {
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("finish zstd stream: %w", err)
		}
	}

	stats := &Stats{
		ProjectPath: project,
		Sessions:    len(sessions),
		Snapshots:   len(snapshots),
		Compressed:  opts.Compress,
		Bytes:       counter.n,
	}
	e.logger.Info("Export complete",
		"project", project,
		"sessions", stats.Sessions,
		"snapshots", stats.Snapshots,
		"bytes", stats.Bytes,
	)
	return stats, nil
}

func writeRecord(enc *json.Encoder, kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	return enc.Encode(Record{Kind: kind, Data: data})
}

// ReadAll reads an export written by Export, compressed or not.
func ReadAll(r io.Reader) (*Archive, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if head, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	archive := &Archive{}
	dec := json.NewDecoder(src)
	sawMeta := false
	for line := 1; ; line++ {
		var rec Record
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("record %d: %w", line, err)
		}

		var err error
		switch rec.Kind {
		case KindMeta:
			err = json.Unmarshal(rec.Data, &archive.Meta)
			sawMeta = true
		case KindSession:
			var s session.Session
			if err = json.Unmarshal(rec.Data, &s); err == nil {
				archive.Sessions = append(archive.Sessions, s)
			}
		case KindSnapshot:
			var s drift.Snapshot
			if err = json.Unmarshal(rec.Data, &s); err == nil {
				archive.Snapshots = append(archive.Snapshots, s)
			}
		default:
			err = fmt.Errorf("unknown kind %q", rec.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", line, err)
		}
	}

	if !sawMeta {
		return nil, fmt.Errorf("missing %s record", KindMeta)
	}
	if archive.Meta.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported export format version %d", archive.Meta.FormatVersion)
	}
	return archive, nil
}
