package core

import "time"

// Record is a single categorized entry in the text log.
type Record struct {
	Seq      uint32    `json:"seq"`
	Time     time.Time `json:"time"`
	Category Category  `json:"category"`
	Payload  string    `json:"payload"`
}

// LogLine is a raw line appended to the text log, as pushed to subscribers.
type LogLine struct {
	Seq      uint32 `json:"seq"`
	TsUnixMs int64  `json:"ts_unix_ms"`
	Line     string `json:"line"`
}

// Status is the externally visible state of the text log.
type Status struct {
	BootID        string `json:"boot_id"`
	FileOpen      bool   `json:"txt_file_open"`
	Path          string `json:"path,omitempty"`
	Index         uint32 `json:"txt_idx"`
	Written       uint64 `json:"written"`
	WriteFailures uint64 `json:"write_failures"`
	Dropped       uint64 `json:"dropped"`
	DroppedEvents uint64 `json:"dropped_events"`
}
