package telemetry

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/muhadif/culverin/internal/models"
)

const emitterBufferSize = 64 * 1024

// Emitter writes outcomes as line-delimited JSON, one object per line,
// flushed opportunistically.
type Emitter struct {
	writer *bufio.Writer
	file   *os.File
	mu     sync.Mutex

	totalWritten atomic.Int64
	totalBytes   atomic.Int64
}

// NewEmitter creates (truncating) the output file at path.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Emitter{
		file:   f,
		writer: bufio.NewWriterSize(f, emitterBufferSize),
	}, nil
}

// NewEmitterWithWriter wraps an existing writer, for tests and stdout.
func NewEmitterWithWriter(w io.Writer) *Emitter {
	return &Emitter{writer: bufio.NewWriterSize(w, emitterBufferSize)}
}

// Emit serializes one outcome and appends it as a line.
func (e *Emitter) Emit(o *models.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.writer.Write(data); err != nil {
		return err
	}
	if err := e.writer.WriteByte('\n'); err != nil {
		return err
	}

	e.totalWritten.Add(1)
	e.totalBytes.Add(int64(len(data)) + 1)
	return nil
}

func (e *Emitter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writer.Flush()
}

// Close flushes and closes the underlying file, if any.
func (e *Emitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	flushErr := e.writer.Flush()
	if e.file != nil {
		if err := e.file.Close(); err != nil {
			return err
		}
	}
	return flushErr
}

// TotalWritten is the number of outcome lines emitted so far.
func (e *Emitter) TotalWritten() int64 {
	return e.totalWritten.Load()
}
