package events

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sink consumes updates from the router.
type Sink interface {
	Start(ctx context.Context, updates <-chan Update) error
	Stop() error
}

// LogSink writes every processed event to a JSON lines transcript. Each line
// is an envelope readable with UnmarshalEnvelope.
type LogSink struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
	done   chan struct{}
}

// NewLogSink creates a new LogSink that writes to the specified path.
func NewLogSink(path string) *LogSink {
	return &LogSink{
		path: path,
		done: make(chan struct{}),
	}
}

// Start opens the log file and begins writing updates.
// It runs until the context is canceled or the updates channel is closed.
func (s *LogSink) Start(ctx context.Context, updates <-chan Update) error {
	if err := s.openFile(); err != nil {
		return err
	}

	go s.run(ctx, updates)
	return nil
}

// largeLogThreshold is the size above which we warn about large log files.
const largeLogThreshold = 100 * 1024 * 1024 // 100MB

func (s *LogSink) openFile() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	if err := s.rotateExistingLog(); err != nil {
		return err
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	s.mu.Lock()
	s.file = file
	s.writer = bufio.NewWriter(file)
	s.mu.Unlock()

	return nil
}

// rotateExistingLog renames an existing log file with a timestamp suffix.
// This preserves tail -f compatibility by creating a fresh file.
func (s *LogSink) rotateExistingLog() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat log file: %w", err)
	}

	if info.Size() == 0 {
		return nil
	}

	if info.Size() > largeLogThreshold {
		fmt.Fprintf(os.Stderr, "log sink: warning: large log file (%d MB), consider cleaning up old .bak files in %s\n",
			info.Size()/(1024*1024), filepath.Dir(s.path))
	}

	timestamp := time.Now().Format("2006-01-02T15-04-05")
	bakPath := fmt.Sprintf("%s.%s.bak", s.path, timestamp)

	if err := os.Rename(s.path, bakPath); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}

	return nil
}

func (s *LogSink) run(ctx context.Context, updates <-chan Update) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			s.write(u.Event)
		}
	}
}

func (s *LogSink) write(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return
	}

	line, err := MarshalEnvelope(evt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log sink: failed to encode event: %v\n", err)
		return
	}
	line = append(line, '\n')
	if _, err := s.writer.Write(line); err != nil {
		fmt.Fprintf(os.Stderr, "log sink: failed to write event: %v\n", err)
		return
	}
	// Flush per line so tail -f sees complete records.
	if err := s.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "log sink: failed to flush: %v\n", err)
	}
}

// Stop waits for the writer goroutine and closes the log file.
func (s *LogSink) Stop() error {
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		s.writer = nil
		return err
	}
	return nil
}

// Path returns the log file path.
func (s *LogSink) Path() string {
	return s.path
}
