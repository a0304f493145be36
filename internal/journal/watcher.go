package journal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/npratt/wingman/internal/config"
)

// Watcher monitors the journal directory. On start it replays the newest
// journal as historic entries, then tails appended lines as live entries,
// following the game onto newer journal files.
type Watcher struct {
	lifecycle

	dir           string
	historicLimit int
	ingest        Ingestor
	logger        *slog.Logger
	warnings      rateLimiter

	// tailMu guards the read position.
	tailMu  sync.Mutex
	current string
	offset  int64
}

// NewWatcher creates a Watcher for cfg.Dir.
func NewWatcher(cfg config.JournalConfig, ingest Ingestor, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:           cfg.Dir,
		historicLimit: cfg.HistoricLimit,
		ingest:        ingest,
		logger:        logger.With("component", "journal"),
	}
}

// Start begins watching in a background goroutine.
// Returns immediately. Use Stop() to terminate.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := os.Stat(w.dir); err != nil {
		return fmt.Errorf("journal directory: %w", err)
	}
	return w.start(ctx, func() {
		w.logger.Info("started watching journal directory", "dir", w.dir)
		dirWatch{
			dir:      w.dir,
			match:    IsJournalFile,
			ready:    w.replayLatest,
			onChange: w.poll,
			warn:     w.warn,
		}.run(w.context())
	})
}

// Position returns the journal being tailed and the byte offset read so far.
func (w *Watcher) Position() (string, int64) {
	w.tailMu.Lock()
	defer w.tailMu.Unlock()
	return w.current, w.offset
}

// replayLatest hands the newest journal to the ingestor as history and
// positions the tail at its end.
func (w *Watcher) replayLatest() {
	w.tailMu.Lock()
	defer w.tailMu.Unlock()

	latest, err := LatestJournal(w.dir)
	if err != nil {
		if !errors.Is(err, ErrNoJournal) {
			w.warn(fmt.Sprintf("find journal: %v", err))
		}
		return
	}

	entries, offset, err := w.readFrom(latest, 0)
	if err != nil {
		w.warn(fmt.Sprintf("read journal %s: %v", latest, err))
		return
	}
	w.current, w.offset = latest, offset

	if w.historicLimit > 0 && len(entries) > w.historicLimit {
		entries = entries[len(entries)-w.historicLimit:]
	}
	if len(entries) == 0 {
		return
	}

	replayed, err := w.ingest.AddHistoricGameEvents(w.context(), entries)
	if err != nil {
		w.warn(fmt.Sprintf("replay journal %s: %v", latest, err))
		return
	}
	w.logger.Info("replayed journal history",
		"path", latest,
		"entries", len(entries),
		"replayed", replayed)
}

// poll delivers lines appended since the last read, switching to a newer
// journal once the current one has been drained. A journal from an earlier
// session is never switched to, even when it was modified more recently.
func (w *Watcher) poll() {
	if w.stopped() {
		return
	}

	w.tailMu.Lock()
	defer w.tailMu.Unlock()

	latest, err := LatestJournal(w.dir)
	if err != nil {
		if !errors.Is(err, ErrNoJournal) {
			w.warn(fmt.Sprintf("find journal: %v", err))
		}
		return
	}

	if w.current != latest {
		if w.current != "" {
			w.deliverNew()
			if !laterSession(latest, w.current) {
				w.logger.Debug("ignoring write to an earlier journal", "path", latest, "current", w.current)
				return
			}
			w.logger.Info("switched journal", "from", w.current, "to", latest)
		}
		w.current, w.offset = latest, 0
	}
	w.deliverNew()
}

// deliverNew must be called with tailMu held.
func (w *Watcher) deliverNew() {
	entries, offset, err := w.readFrom(w.current, w.offset)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.warn(fmt.Sprintf("read journal %s: %v", w.current, err))
		}
		return
	}
	w.offset = offset
	for _, entry := range entries {
		w.ingest.AddGameEvent(entry)
	}
}

// readFrom parses complete lines after offset. A trailing partial line is
// left for the next read.
func (w *Watcher) readFrom(path string, offset int64) ([]map[string]any, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, offset, err
	}
	if info.Size() < offset {
		w.logger.Warn("journal truncated, rereading", "path", path)
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, err
	}

	var entries []map[string]any
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, offset, err
		}

		entry, parseErr := ParseLine(line)
		if parseErr != nil {
			w.logger.Warn("skipping malformed journal line",
				"path", path,
				"offset", offset,
				"error", parseErr)
		} else if entry != nil {
			entries = append(entries, entry)
		}
		offset += int64(len(line))
	}

	return entries, offset, nil
}

func (w *Watcher) warn(msg string) {
	if w.warnings.allow() {
		w.logger.Warn(msg)
	}
}
