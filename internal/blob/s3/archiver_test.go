package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	puts       []string
	multiparts []string
	failOn     string
}

func (w *recordingWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if _, err := io.Copy(io.Discard, data); err != nil {
		return err
	}
	if filepath.Base(path) == w.failOn {
		return errors.New("upload rejected")
	}
	w.puts = append(w.puts, path)
	return nil
}

func (w *recordingWriter) PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error {
	if _, err := io.Copy(io.Discard, data); err != nil {
		return err
	}
	w.multiparts = append(w.multiparts, path)
	return nil
}

func TestArchiveRun_SelectsUploadPathBySize(t *testing.T) {
	runDir := t.TempDir()
	small := []byte(`{"kind":"order"}` + "\n")
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "order.jsonl"), small, 0o644))

	big := bytes.Repeat([]byte(`{"kind":"strategy_decision"}`+"\n"), int(multipartThreshold/16))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "strategy_decision.jsonl"), big, 0o644))

	// Non-stream files are not part of the archive.
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "notes.txt"), []byte("scratch"), 0o644))

	w := &recordingWriter{}
	archived, err := NewArchiver(w).ArchiveRun(context.Background(), runDir, "run-a", 7)
	require.NoError(t, err)
	assert.Equal(t, 2, archived)
	assert.Equal(t, []string{"archive/runs/run-a-7/order.jsonl"}, w.puts)
	assert.Equal(t, []string{"archive/runs/run-a-7/strategy_decision.jsonl"}, w.multiparts)
}

func TestArchiveRun_FirstFailureAborts(t *testing.T) {
	runDir := t.TempDir()
	for _, name := range []string{"decision.jsonl", "order.jsonl"} {
		require.NoError(t, os.WriteFile(filepath.Join(runDir, name), []byte("{}\n"), 0o644))
	}

	w := &recordingWriter{failOn: "decision.jsonl"}
	archived, err := NewArchiver(w).ArchiveRun(context.Background(), runDir, "run-b", 8)
	require.Error(t, err)
	assert.Zero(t, archived)
	assert.Empty(t, w.puts)
}
