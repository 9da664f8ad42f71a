package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"grovecraft.io/internal/logging"
	"grovecraft.io/internal/sim/world"
	"grovecraft.io/internal/transport/ws"
)

// JSONLZstdWriter appends JSON lines to hourly rotated zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines into the current zstd frame.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// asyncWriter feeds a JSONLZstdWriter from a bounded queue so producers on
// the simulation path never wait for disk.
type asyncWriter struct {
	w   *JSONLZstdWriter
	log logrus.FieldLogger

	// mu orders offers against close so no send hits a closed channel.
	mu      sync.RWMutex
	closed  bool
	ch      chan any
	done    chan struct{}
	dropped atomic.Uint64
}

func newAsyncWriter(w *JSONLZstdWriter, queue int, log logrus.FieldLogger) *asyncWriter {
	if queue <= 0 {
		queue = 4096
	}
	a := &asyncWriter{w: w, log: logging.OrDiscard(log), ch: make(chan any, queue), done: make(chan struct{})}
	go a.loop()
	return a
}

func (a *asyncWriter) offer(v any) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- v:
	default:
		a.dropped.Add(1)
	}
}

func (a *asyncWriter) loop() {
	defer close(a.done)
	flush := time.NewTicker(time.Second)
	defer flush.Stop()
	for {
		select {
		case v, ok := <-a.ch:
			if !ok {
				_ = a.w.Close()
				return
			}
			if err := a.w.Write(v); err != nil {
				a.log.WithError(err).Warn("jsonl write")
			}
		case <-flush.C:
			_ = a.w.Flush()
		}
	}
}

func (a *asyncWriter) close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}

// AuditLogger writes world audit entries as compressed JSONL. It implements
// world.AuditSink.
type AuditLogger struct{ a *asyncWriter }

func NewAuditLogger(dataDir string, log logrus.FieldLogger) *AuditLogger {
	return &AuditLogger{a: newAsyncWriter(NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit"), 0, log)}
}

func (l *AuditLogger) WriteAudit(e world.AuditEntry) { l.a.offer(e) }
func (l *AuditLogger) Dropped() uint64               { return l.a.dropped.Load() }
func (l *AuditLogger) Close() error                  { return l.a.close() }

// SessionLogger writes one line per finished session. It implements
// ws.SessionSink.
type SessionLogger struct{ a *asyncWriter }

func NewSessionLogger(dataDir string, log logrus.FieldLogger) *SessionLogger {
	return &SessionLogger{a: newAsyncWriter(NewJSONLZstdWriter(filepath.Join(dataDir, "sessions"), "sessions"), 0, log)}
}

func (l *SessionLogger) RecordSession(r ws.SessionRecord) { l.a.offer(r) }
func (l *SessionLogger) Close() error                     { return l.a.close() }

// Files lists the JSONL files of prefix under dir in chronological order.
func Files(dir, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// ReadJSONL decodes every line of a compressed JSONL file.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	return scanLines(dec, fn)
}

func scanLines(r io.Reader, fn func([]byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return sc.Err()
}
