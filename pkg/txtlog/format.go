package txtlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/modoterra/rtilog/pkg/core"
)

// TimeLayout renders timestamps as MM-DD-YYYY | HH:MM:SS.
const TimeLayout = "01-02-2006 | 15:04:05"

// MaxPayload is the largest payload accepted, in bytes.
const MaxPayload = 240

const fieldSep = " | "

var payloadEscaper = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// Format renders one record line, including the trailing newline.
// The payload is written as is.
func Format(cat core.Category, payload string, seq uint32, now time.Time) string {
	return fmt.Sprintf("%05d | %s | %*s | %s\n", seq, now.Format(TimeLayout), core.LabelWidth, cat, payload)
}

// EscapePayload replaces line breaks so a payload cannot split a record.
func EscapePayload(payload string) string {
	return payloadEscaper.Replace(payload)
}

// ParseRecord parses a line produced by Format. Timestamps are read in loc;
// a nil loc means time.Local.
func ParseRecord(line string, loc *time.Location) (core.Record, error) {
	if loc == nil {
		loc = time.Local
	}
	line = strings.TrimSuffix(line, "\n")

	// seq | date | time | category | payload (payload may contain separators)
	parts := strings.SplitN(line, fieldSep, 5)
	if len(parts) != 5 {
		return core.Record{}, fmt.Errorf("malformed record %q: expected 5 fields, got %d", line, len(parts))
	}

	seq, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return core.Record{}, fmt.Errorf("malformed sequence %q: %w", parts[0], err)
	}

	ts, err := time.ParseInLocation(TimeLayout, parts[1]+fieldSep+parts[2], loc)
	if err != nil {
		return core.Record{}, fmt.Errorf("malformed timestamp: %w", err)
	}

	cat, err := core.ParseCategory(parts[3])
	if err != nil {
		return core.Record{}, err
	}

	return core.Record{
		Seq:      uint32(seq),
		Time:     ts,
		Category: cat,
		Payload:  parts[4],
	}, nil
}
