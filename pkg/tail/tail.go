// Package tail reads and follows rtilog text log files.
package tail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/modoterra/rtilog/pkg/core"
	"github.com/modoterra/rtilog/pkg/txtlog"
)

// DefaultPollInterval is how often Follow checks the file for new data.
const DefaultPollInterval = 250 * time.Millisecond

// Filter selects records. The zero value matches everything.
type Filter struct {
	Categories []core.Category
	MinSeq     uint32
}

// Match reports whether rec passes the filter.
func (f Filter) Match(rec core.Record) bool {
	if rec.Seq < f.MinSeq {
		return false
	}
	if len(f.Categories) == 0 {
		return true
	}
	for _, c := range f.Categories {
		if c == rec.Category {
			return true
		}
	}
	return false
}

// Scan parses every line of r and calls fn for records matching f.
// Malformed lines are skipped and counted.
func Scan(r io.Reader, loc *time.Location, f Filter, fn func(core.Record) error) (malformed int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		rec, perr := txtlog.ParseRecord(scanner.Text(), loc)
		if perr != nil {
			malformed++
			continue
		}
		if !f.Match(rec) {
			continue
		}
		if err := fn(rec); err != nil {
			return malformed, err
		}
	}
	return malformed, scanner.Err()
}

// Last returns the last n matching records of the file at path.
func Last(path string, n int, loc *time.Location, f Filter) ([]core.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var recs []core.Record
	_, err = Scan(file, loc, f, func(rec core.Record) error {
		recs = append(recs, rec)
		if n > 0 && len(recs) > n {
			recs = recs[1:]
		}
		return nil
	})
	return recs, err
}

// Follower tails a log file, emitting records appended after it starts.
type Follower struct {
	path         string
	loc          *time.Location
	filter       Filter
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewFollower creates a follower for path.
func NewFollower(path string, loc *time.Location, f Filter, logger *slog.Logger) *Follower {
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{
		path:         path,
		loc:          loc,
		filter:       f,
		pollInterval: DefaultPollInterval,
		logger:       logger,
	}
}

// Follow starts tailing from the current end of the file. The returned
// channel is closed when ctx is cancelled.
func (fw *Follower) Follow(ctx context.Context) (<-chan core.Record, error) {
	f, err := os.Open(fw.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fw.path, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek %s: %w", fw.path, err)
	}

	ch := make(chan core.Record, 100)
	go fw.loop(ctx, f, ch)
	fw.logger.Debug("following file", "path", fw.path)
	return ch, nil
}

func (fw *Follower) loop(ctx context.Context, f *os.File, ch chan<- core.Record) {
	defer f.Close()
	defer close(ch)

	reader := bufio.NewReader(f)
	var partial []byte
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		chunk, err := reader.ReadBytes('\n')
		partial = append(partial, chunk...)
		if errors.Is(err, io.EOF) {
			// No complete line yet; poll
			select {
			case <-ctx.Done():
				return
			case <-time.After(fw.pollInterval):
			}
			if fw.truncated(f) {
				if _, err := f.Seek(0, io.SeekStart); err != nil {
					fw.logger.Error("seek after truncation failed", "path", fw.path, "err", err)
					return
				}
				reader.Reset(f)
				partial = partial[:0]
			}
			continue
		}
		if err != nil {
			fw.logger.Error("read failed", "path", fw.path, "err", err)
			return
		}

		line := string(partial)
		partial = partial[:0]
		rec, err := txtlog.ParseRecord(line, fw.loc)
		if err != nil {
			fw.logger.Warn("skipping malformed line", "err", err)
			continue
		}
		if !fw.filter.Match(rec) {
			continue
		}
		select {
		case ch <- rec:
		case <-ctx.Done():
			return
		}
	}
}

// truncated reports whether the file shrank below the read position.
func (fw *Follower) truncated(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return false
	}
	return info.Size() < pos
}
