// Package export converts rtilog text logs to other formats, optionally
// zstd-compressed.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/modoterra/rtilog/pkg/core"
	"github.com/modoterra/rtilog/pkg/tail"
	"github.com/modoterra/rtilog/pkg/txtlog"
)

// Format names an export format.
type Format string

const (
	FormatText  Format = "text"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// Options controls an export.
type Options struct {
	Format     Format
	Filter     tail.Filter
	Compress   bool
	// Decompress reads the input as a zstd stream, such as an earlier
	// compressed export in text format.
	Decompress bool
	Location   *time.Location
}

// Result summarizes an export.
type Result struct {
	Records   int
	Malformed int
}

// File exports the log at path to output. An empty output writes to w.
func File(path, output string, w io.Writer, opts Options) (Result, error) {
	in, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open log file: %w", err)
	}
	defer in.Close()

	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return Result{}, fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return Export(in, w, opts)
}

// Export reads records from r and writes them to w in opts.Format.
func Export(r io.Reader, w io.Writer, opts Options) (res Result, err error) {
	if opts.Format == "" {
		opts.Format = FormatText
	}

	var enc recordEncoder
	switch opts.Format {
	case FormatText:
		enc = textEncoder{}
	case FormatJSONL:
		enc = jsonlEncoder{}
	case FormatCSV:
		enc = csvEncoder{}
	default:
		return Result{}, fmt.Errorf("unknown format: %s (supported: text, jsonl, csv)", opts.Format)
	}

	if opts.Decompress {
		zr, zerr := zstd.NewReader(r)
		if zerr != nil {
			return Result{}, fmt.Errorf("zstd reader: %w", zerr)
		}
		defer zr.Close()
		r = zr
	}

	if opts.Compress {
		zw, zerr := zstd.NewWriter(w)
		if zerr != nil {
			return Result{}, fmt.Errorf("zstd writer: %w", zerr)
		}
		defer func() {
			if cerr := zw.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("zstd close: %w", cerr)
			}
		}()
		w = zw
	}

	write, flush, err := enc.start(w)
	if err != nil {
		return Result{}, err
	}
	res.Malformed, err = tail.Scan(r, opts.Location, opts.Filter, func(rec core.Record) error {
		res.Records++
		return write(rec)
	})
	if err != nil {
		return res, fmt.Errorf("export: %w", err)
	}
	return res, flush()
}

type recordEncoder interface {
	start(w io.Writer) (write func(core.Record) error, flush func() error, err error)
}

type textEncoder struct{}

func (textEncoder) start(w io.Writer) (func(core.Record) error, func() error, error) {
	write := func(rec core.Record) error {
		_, err := io.WriteString(w, txtlog.Format(rec.Category, rec.Payload, rec.Seq, rec.Time))
		return err
	}
	return write, func() error { return nil }, nil
}

type jsonlEncoder struct{}

func (jsonlEncoder) start(w io.Writer) (func(core.Record) error, func() error, error) {
	enc := json.NewEncoder(w)
	return func(rec core.Record) error { return enc.Encode(rec) }, func() error { return nil }, nil
}

type csvEncoder struct{}

func (csvEncoder) start(w io.Writer) (func(core.Record) error, func() error, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"seq", "timestamp", "category", "payload"}); err != nil {
		return nil, nil, fmt.Errorf("failed to write header: %w", err)
	}
	write := func(rec core.Record) error {
		return cw.Write([]string{
			strconv.FormatUint(uint64(rec.Seq), 10),
			rec.Time.Format(time.RFC3339),
			string(rec.Category),
			rec.Payload,
		})
	}
	flush := func() error {
		cw.Flush()
		return cw.Error()
	}
	return write, flush, nil
}

// Stats summarizes a log file.
type Stats struct {
	Records    int
	Malformed  int
	ByCategory map[core.Category]int
	FirstSeq   uint32
	LastSeq    uint32
	First      time.Time
	Last       time.Time
	// Gaps counts places where consecutive records skip sequence numbers,
	// as happens across daemon restarts.
	Gaps int
}

// Categories returns the categories present, sorted by name.
func (s Stats) Categories() []core.Category {
	out := make([]core.Category, 0, len(s.ByCategory))
	for c := range s.ByCategory {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Collect computes Stats over the records in r.
func Collect(r io.Reader, loc *time.Location) (Stats, error) {
	s := Stats{ByCategory: make(map[core.Category]int)}
	var err error
	s.Malformed, err = tail.Scan(r, loc, tail.Filter{}, func(rec core.Record) error {
		if s.Records == 0 {
			s.FirstSeq, s.First = rec.Seq, rec.Time
		} else if rec.Seq != s.LastSeq+1 {
			s.Gaps++
		}
		s.LastSeq, s.Last = rec.Seq, rec.Time
		s.Records++
		s.ByCategory[rec.Category]++
		return nil
	})
	return s, err
}
