package txtlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modoterra/rtilog/pkg/core"
)

var fixedTime = time.Date(2024, time.July, 4, 9, 5, 3, 0, time.UTC)

func TestFormatLine(t *testing.T) {
	got := Format(core.CategoryWeather, "72F sunny", 7, fixedTime)
	assert.Equal(t, "00007 | 07-04-2024 | 09:05:03 |  Weather | 72F sunny\n", got)
}

func TestFormatRightJustifiesCategory(t *testing.T) {
	tests := []struct {
		cat  core.Category
		want string
	}{
		{core.CategorySecurity, "| Security |"},
		{core.CategoryStatus, "|   Status |"},
		{core.CategorySump, "|     Sump |"},
	}
	for _, tt := range tests {
		t.Run(string(tt.cat), func(t *testing.T) {
			assert.Contains(t, Format(tt.cat, "x", 0, fixedTime), tt.want)
		})
	}
}

func TestFormatIsDeterministic(t *testing.T) {
	a := Format(core.CategoryClimate, "setpoint 68", 42, fixedTime)
	b := Format(core.CategoryClimate, "setpoint 68", 42, fixedTime)
	assert.Equal(t, a, b)
}

func TestEscapePayload(t *testing.T) {
	assert.Equal(t, `door open\nwindow open\r`, EscapePayload("door open\nwindow open\r"))
	assert.Equal(t, "plain", EscapePayload("plain"))
}

func TestParseRecordRoundTrip(t *testing.T) {
	line := Format(core.CategorySecurity, "zone 3 | armed", 12345, fixedTime)

	rec, err := ParseRecord(line, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, uint32(12345), rec.Seq)
	assert.Equal(t, core.CategorySecurity, rec.Category)
	assert.Equal(t, "zone 3 | armed", rec.Payload)
	assert.True(t, rec.Time.Equal(fixedTime))
}

func TestParseRecordEmptyPayload(t *testing.T) {
	rec, err := ParseRecord(Format(core.CategoryStatus, "", 1, fixedTime), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "", rec.Payload)
}

func TestParseRecordMalformed(t *testing.T) {
	tests := map[string]string{
		"too few fields": "00001 | 07-04-2024 | 09:05:03\n",
		"bad sequence":   "abcde | 07-04-2024 | 09:05:03 |  Weather | x\n",
		"bad timestamp":  "00001 | 13-45-2024 | 09:05:03 |  Weather | x\n",
		"bad category":   "00001 | 07-04-2024 | 09:05:03 |   Garage | x\n",
	}
	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRecord(line, time.UTC)
			assert.Error(t, err)
		})
	}
}
