// Package archive moves old sent-schedule history out of the hot table into
// zstd-compressed NDJSON files, keeping the queue table bounded.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"coursepulse/internal/types"
)

// HistorySource is the subset of the schedule repository the archiver needs.
type HistorySource interface {
	ListSentBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Schedule, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// Sink receives one compressed archive segment. The filesystem
// implementation below writes it under a configured directory; an S3 sink
// would upload it instead.
type Sink interface {
	Store(ctx context.Context, name string, contents io.Reader) error
}

// Archiver exports sent schedule rows older than a retention cutoff and
// deletes them from the hot table only after the export is durably stored.
type Archiver struct {
	source    HistorySource
	sink      Sink
	retainFor time.Duration
	batch     int
	clock     types.Clock
	logger    types.Logger
}

func NewArchiver(source HistorySource, sink Sink, retainFor time.Duration, batch int, clock types.Clock, logger types.Logger) *Archiver {
	if batch < 1 {
		batch = 1000
	}
	return &Archiver{
		source:    source,
		sink:      sink,
		retainFor: retainFor,
		batch:     batch,
		clock:     clock,
		logger:    logger,
	}
}

// Run performs one archival pass, looping batch by batch until no rows older
// than the cutoff remain. Returns the total number of rows archived.
//
// Export happens before delete: a crash between the two leaves duplicate
// rows in the archive on the next run, never lost history.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	cutoff := a.clock.Now().Add(-a.retainFor)
	total := 0

	for {
		rows, err := a.source.ListSentBefore(ctx, cutoff, a.batch)
		if err != nil {
			return total, fmt.Errorf("listing sent history: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		name := fmt.Sprintf("schedules-%s.ndjson.zst", a.clock.Now().Format("20060102T150405.000000000"))
		if err := a.exportSegment(ctx, name, rows); err != nil {
			return total, err
		}

		ids := make([]string, len(rows))
		for i, row := range rows {
			ids[i] = row.ID
		}
		deleted, err := a.source.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("deleting archived rows: %w", err)
		}
		total += int(deleted)

		a.logger.Info("archived schedule history segment",
			"segment", name,
			"rows", deleted,
		)

		if len(rows) < a.batch {
			break
		}
	}

	return total, nil
}

// exportSegment writes one batch as zstd-compressed NDJSON to the sink.
func (a *Archiver) exportSegment(ctx context.Context, name string, rows []*types.Schedule) error {
	pr, pw := io.Pipe()

	go func() {
		enc, err := zstd.NewWriter(pw)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("creating zstd writer: %w", err))
			return
		}
		jw := json.NewEncoder(enc)
		for _, row := range rows {
			if err := jw.Encode(toRecord(row)); err != nil {
				pw.CloseWithError(fmt.Errorf("encoding archive record: %w", err))
				return
			}
		}
		if err := enc.Close(); err != nil {
			pw.CloseWithError(fmt.Errorf("flushing zstd writer: %w", err))
			return
		}
		pw.Close()
	}()

	if err := a.sink.Store(ctx, name, pr); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("storing archive segment %s: %w", name, err)
	}
	return nil
}

func toRecord(s *types.Schedule) types.ScheduleArchiveRecord {
	return types.ScheduleArchiveRecord{
		ID:           s.ID,
		InstanceID:   s.InstanceID,
		UserID:       s.UserID,
		Type:         s.Type,
		ScheduleTime: s.ScheduleTime,
		NotifiedTime: s.NotifiedTime,
		NotifyCount:  s.NotifyCount,
		CreatedAt:    s.CreatedAt,
	}
}

// DirSink stores archive segments as files under a directory.
type DirSink struct {
	dir string
}

func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Store writes the segment to a temp file and renames it into place, so a
// partially written segment is never visible under its final name.
func (s *DirSink) Store(ctx context.Context, name string, contents io.Reader) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp segment: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, contents); err != nil {
		tmp.Close()
		return fmt.Errorf("writing segment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing segment: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("publishing segment: %w", err)
	}
	return nil
}

var _ Sink = (*DirSink)(nil)
