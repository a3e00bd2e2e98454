package s3blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quantrove/vaultbot/internal/domain"
)

// Archiver implements domain.RunArchiver: it uploads a completed run's
// event-log stream files to archive/runs/{correlation_id}-{pid}/.
//
// Deletion of the local run directory is intentionally NOT performed here;
// that is a separate, explicit step after the archive has been verified.
type Archiver struct {
	writer domain.BlobWriter
}

// NewArchiver creates an Archiver using the given blob writer.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{writer: writer}
}

// multipartThreshold is the stream file size above which the archiver switches
// from a single PutObject to a multipart upload.
const multipartThreshold = minPartSize

// ArchiveRun uploads every .jsonl stream file found in runDir and returns
// the number of streams archived. Files are uploaded one by one; the first
// failure aborts so a partial archive is never silently treated as complete.
// Streams larger than multipartThreshold go through the multipart path.
func (a *Archiver) ArchiveRun(ctx context.Context, runDir, correlationID string, pid int) (int, error) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return 0, fmt.Errorf("s3blob: read run dir %s: %w", runDir, err)
	}

	prefix := fmt.Sprintf("archive/runs/%s-%d", correlationID, pid)
	archived := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return archived, fmt.Errorf("s3blob: stat stream %s: %w", entry.Name(), err)
		}
		path := filepath.Join(runDir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			return archived, fmt.Errorf("s3blob: open stream %s: %w", path, err)
		}
		key := prefix + "/" + entry.Name()
		if info.Size() > multipartThreshold {
			err = a.writer.PutMultipart(ctx, key, f, "application/x-ndjson", minPartSize)
		} else {
			err = a.writer.Put(ctx, key, f, "application/x-ndjson")
		}
		f.Close()
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive stream %s: %w", entry.Name(), err)
		}
		archived++
	}
	return archived, nil
}
