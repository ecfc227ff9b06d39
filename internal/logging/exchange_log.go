// Package logging writes the exchange journal: one JSON line per handled
// message, buffered in memory and flushed to size-rotated files.
package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ai_gateway/internal/utils"
)

// ExchangeRecord is one journal line.
type ExchangeRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	DeviceID         string    `json:"device_id"`
	ChatID           string    `json:"chat_id"`
	Provider         string    `json:"provider,omitempty"`
	Model            string    `json:"model,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	LatencyMS        int64     `json:"latency_ms"`
	Responded        bool      `json:"responded"`
	SkipReason       string    `json:"skip_reason,omitempty"`
	Handover         bool      `json:"handover"`
	ImageID          string    `json:"image_id,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Config controls file naming, rotation and buffering.
type Config struct {
	// FileTemplate must contain exactly one %s, replaced by the rotation stamp,
	// e.g. "/var/log/ai-gateway/exchanges-%s.jsonl".
	FileTemplate  string
	MaxSize       int64
	MaxFiles      int
	BufferSize    int
	FlushInterval time.Duration
}

// ExchangeLog is an asynchronous, buffered journal with rotation and periodic flush.
type ExchangeLog struct {
	cfg Config

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64
	seq         int

	logCh   chan ExchangeRecord
	doneCh  chan struct{}
	wg      sync.WaitGroup
	closed  bool
	dropped atomic.Int64

	logger *utils.Logger
}

// NewExchangeLog opens the first file and starts the writer goroutine.
func NewExchangeLog(cfg Config) (*ExchangeLog, error) {
	if strings.Count(cfg.FileTemplate, "%s") != 1 {
		return nil, fmt.Errorf("exchange log template %q must contain exactly one %%s", cfg.FileTemplate)
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 50 << 20
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 10
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	l := &ExchangeLog{
		cfg:    cfg,
		logCh:  make(chan ExchangeRecord, cfg.BufferSize),
		doneCh: make(chan struct{}),
		logger: utils.NewLogger("exchange-log"),
	}
	if err := l.openFile(); err != nil {
		return nil, err
	}

	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Log queues rec. When the buffer is full or the journal is shut down the
// record is dropped and counted.
func (l *ExchangeLog) Log(rec *ExchangeRecord) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed || rec == nil {
		l.dropped.Add(1)
		return
	}

	select {
	case l.logCh <- *rec:
	default:
		l.dropped.Add(1)
	}
}

// Dropped reports how many records never reached the file.
func (l *ExchangeLog) Dropped() int64 {
	return l.dropped.Load()
}

// CurrentFile returns the file being written.
func (l *ExchangeLog) CurrentFile() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentFile
}

// Shutdown drains the queue, flushes and closes the file. Safe to call twice.
func (l *ExchangeLog) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.doneCh)
	l.wg.Wait()
}

// newFileName stamps the template with the time and a sequence number so two
// rotations within one second never reuse a file.
func (l *ExchangeLog) newFileName() string {
	l.seq++
	stamp := fmt.Sprintf("%s-%06d", time.Now().UTC().Format("20060102150405"), l.seq)
	return fmt.Sprintf(l.cfg.FileTemplate, stamp)
}

// openFile must be called with mu held (or before the writer starts).
func (l *ExchangeLog) openFile() error {
	name := l.newFileName()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}

	file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open exchange log: %w", err)
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	l.currentFile = name
	l.currentSize = fi.Size()
	l.file = file
	l.writer = bufio.NewWriter(file)
	return nil
}

func (l *ExchangeLog) rotateIfNeeded(n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentSize == 0 || l.currentSize+int64(n) < l.cfg.MaxSize {
		return nil
	}
	if err := l.writer.Flush(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := l.openFile(); err != nil {
		return err
	}
	return l.cleanupOldFiles()
}

// cleanupOldFiles keeps the newest MaxFiles files. Stamps sort lexically.
func (l *ExchangeLog) cleanupOldFiles() error {
	matches, err := filepath.Glob(fmt.Sprintf(l.cfg.FileTemplate, "*"))
	if err != nil {
		return err
	}
	sort.Strings(matches)

	excess := len(matches) - l.cfg.MaxFiles
	for i := 0; i < excess; i++ {
		if matches[i] == l.currentFile {
			continue
		}
		_ = os.Remove(matches[i])
	}
	return nil
}

func (l *ExchangeLog) run() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-l.logCh:
			l.write(rec)
		case <-ticker.C:
			l.mu.Lock()
			_ = l.writer.Flush()
			l.mu.Unlock()
		case <-l.doneCh:
			for {
				select {
				case rec := <-l.logCh:
					l.write(rec)
				default:
					l.mu.Lock()
					_ = l.writer.Flush()
					_ = l.file.Close()
					l.mu.Unlock()
					return
				}
			}
		}
	}
}

func (l *ExchangeLog) write(rec ExchangeRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		l.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	if err := l.rotateIfNeeded(len(data)); err != nil {
		l.logger.Error("Exchange log rotation failed", "file", l.CurrentFile(), "error", err)
	}

	l.mu.Lock()
	_, _ = l.writer.Write(data)
	l.currentSize += int64(len(data))
	l.mu.Unlock()
}
