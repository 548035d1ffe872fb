package output

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"meetcap/internal/domain"
)

// Formatter renders session progress for the terminal.
type Formatter struct {
	w      io.Writer
	green  *color.Color
	yellow *color.Color
	red    *color.Color
	cyan   *color.Color
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{
		w:      w,
		green:  color.New(color.FgGreen, color.Bold),
		yellow: color.New(color.FgYellow, color.Bold),
		red:    color.New(color.FgRed, color.Bold),
		cyan:   color.New(color.FgCyan, color.Bold),
	}
}

func (f *Formatter) RecordingStarted(session domain.RecordingSession) {
	f.green.Fprintf(f.w, "● Recording")
	fmt.Fprintf(f.w, " %q (%s, %s plan, session %s)\n", session.Title, session.Mode, session.Tier, session.SessionID)
	fmt.Fprintf(f.w, "  Limit %s, segments every %s. Press Ctrl+C to stop.\n",
		FormatSeconds(session.MaxDurationSeconds), FormatSeconds(session.SegmentLengthSeconds))
}

// Elapsed rewrites the progress line in place.
func (f *Formatter) Elapsed(elapsed int, max int) {
	remaining := max - elapsed
	if remaining < 0 {
		remaining = 0
	}
	fmt.Fprintf(f.w, "\r  %s elapsed, %s remaining ", FormatSeconds(elapsed), FormatSeconds(remaining))
}

func (f *Formatter) State(status domain.SessionStatus, message string) {
	if message == "" {
		return
	}
	fmt.Fprint(f.w, "\n")
	switch status {
	case domain.SessionStatusError:
		f.red.Fprintf(f.w, "✗ ")
	case domain.SessionStatusStopping:
		f.yellow.Fprintf(f.w, "■ ")
	default:
		f.cyan.Fprintf(f.w, "• ")
	}
	fmt.Fprintln(f.w, message)
}

func (f *Formatter) RecordingFinished(result domain.StopResult) {
	f.green.Fprintf(f.w, "✓ Recording finished")
	fmt.Fprintf(f.w, " after %s, %d segment(s)", FormatSeconds(result.ElapsedSeconds), result.Segments)
	if result.EndStatus != "" {
		fmt.Fprintf(f.w, ", server status %s", result.EndStatus)
	}
	fmt.Fprintln(f.w)
}

func (f *Formatter) Quota(tier domain.Tier, profile domain.QuotaProfile) {
	f.cyan.Fprintf(f.w, "%-8s", tier)
	fmt.Fprintf(f.w, " max %s, segment %s\n", FormatSeconds(profile.MaxDurationSeconds), FormatSeconds(profile.SegmentLengthSeconds))
}

func (f *Formatter) SessionStatus(id string, title string, status string, link string) {
	f.cyan.Fprintf(f.w, "Session %s", id)
	fmt.Fprintf(f.w, " %q: %s\n", title, status)
	if link != "" {
		fmt.Fprintf(f.w, "  %s\n", link)
	}
}

func (f *Formatter) Error(msg string) {
	f.red.Fprintf(f.w, "✗ ")
	fmt.Fprintln(f.w, msg)
}

func (f *Formatter) Warning(msg string) {
	f.yellow.Fprintf(f.w, "! ")
	fmt.Fprintln(f.w, msg)
}

// FormatSeconds renders a second count as MM:SS, or H:MM:SS past an hour.
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	s := int((d % time.Minute) / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
