package runlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Record is one benchmark event, serialized as a single JSON line. One record
// is emitted per query per pass.
type Record struct {
	Framework    string  `json:"framework"`
	RunID        string  `json:"run_id,omitempty"`
	Phase        string  `json:"phase"`
	Query        string  `json:"query"`
	Mode         string  `json:"mode"`
	UsedMemory   bool    `json:"used_memory"`
	ItemsWritten int     `json:"items_written"`
	LatencyMS    float64 `json:"latency_ms"`
	Namespace    string  `json:"namespace,omitempty"`
}

// Writer appends Records to a JSON-lines file. Safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	path string
}

// NewWriter opens path for appending, creating parent directories as needed.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &Writer{
		f:    f,
		buf:  buf,
		enc:  json.NewEncoder(buf),
		path: path,
	}, nil
}

// Path returns the file this writer appends to.
func (w *Writer) Path() string { return w.path }

// Append writes one record as a JSON line. Each line is flushed to disk
// immediately so a run that dies partway leaves a valid partial log.
func (w *Writer) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	return nil
}

// Close flushes buffered lines and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Read loads records from one or more JSON-lines files. Unreadable files and
// malformed lines are reported to the logger and skipped so partial logs can
// still be analyzed.
func Read(logger *log.Logger, paths ...string) ([]Record, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "runlog: ", log.LstdFlags)
	}
	var records []Record
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			logger.Printf("skipping %s: %v", path, err)
			continue
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for sc.Scan() {
			lineNo++
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			var rec Record
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				logger.Printf("%s:%d: bad record: %v", path, lineNo, err)
				continue
			}
			records = append(records, rec)
		}
		if err := sc.Err(); err != nil {
			f.Close()
			return records, fmt.Errorf("read %s: %w", path, err)
		}
		f.Close()
	}
	return records, nil
}
