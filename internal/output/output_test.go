package output

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"meetcap/internal/domain"
)

func init() {
	color.NoColor = true
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "00:00", FormatSeconds(0))
	assert.Equal(t, "00:00", FormatSeconds(-5))
	assert.Equal(t, "10:00", FormatSeconds(600))
	assert.Equal(t, "30:00", FormatSeconds(1800))
	assert.Equal(t, "2:00:00", FormatSeconds(7200))
	assert.Equal(t, "1:01:05", FormatSeconds(3665))
}

func TestElapsedShowsRemaining(t *testing.T) {
	var buf bytes.Buffer
	NewFormatter(&buf).Elapsed(1790, 1800)
	assert.Equal(t, "\r  29:50 elapsed, 00:10 remaining ", buf.String())
}

func TestRecordingFinished(t *testing.T) {
	var buf bytes.Buffer
	NewFormatter(&buf).RecordingFinished(domain.StopResult{ElapsedSeconds: 1800, Segments: 3, EndStatus: "processing"})
	assert.Equal(t, "✓ Recording finished after 30:00, 3 segment(s), server status processing\n", buf.String())
}

func TestStateSkipsEmptyMessage(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)
	f.State(domain.SessionStatusActive, "")
	assert.Empty(t, buf.String())

	f.State(domain.SessionStatusError, "boom")
	assert.Equal(t, "\n✗ boom\n", buf.String())
}
