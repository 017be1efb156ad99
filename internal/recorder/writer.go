// Package recorder writes the monitor log: a CSV header, one row per
// sample and a single trailer line summarizing the run.
package recorder

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/randomizedcoder/go-workload-monitor/internal/sampler"
)

// Header is the first line of every log file.
const Header = "timestamp,sys_cpu_pct,sys_mem_mb,gpu_util_pct,gpu_mem_mb,proc_cpu_pct,proc_mem_mb,proc_gpu_mem_mb"

const trailerPrefix = "# exit_status="

var (
	// ErrTrailerWritten is returned when the trailer was already written.
	ErrTrailerWritten = errors.New("trailer already written")

	// ErrClosed is returned on use after Close.
	ErrClosed = errors.New("log writer closed")
)

// Writer appends samples to the log. It has a single owner and does no
// locking. Every line is one write(2) on an O_APPEND descriptor, so a
// crash loses at most the line in flight.
type Writer struct {
	path    string
	f       *os.File
	rows    int
	trailer bool
}

// Open opens path for appending, creating it if needed. The header is
// written when the file is new or empty.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log %s: %w", path, err)
	}

	w := &Writer{path: path, f: f}
	if info.Size() == 0 {
		if err := w.writeLine(Header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return w, nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Rows returns the number of sample rows written by this Writer.
func (w *Writer) Rows() int {
	return w.rows
}

// Append writes one sample row.
func (w *Writer) Append(s sampler.Sample) error {
	if w.trailer {
		return ErrTrailerWritten
	}
	if err := w.writeLine(FormatRow(s)); err != nil {
		return err
	}
	w.rows++
	return nil
}

// WriteTrailer writes the closing summary line. It may be called once.
func (w *Writer) WriteTrailer(exitStatus int, duration time.Duration) error {
	if w.trailer {
		return ErrTrailerWritten
	}
	if err := w.writeLine(FormatTrailer(exitStatus, duration)); err != nil {
		return err
	}
	w.trailer = true
	return nil
}

// Close closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *Writer) writeLine(line string) error {
	if w.f == nil {
		return ErrClosed
	}
	if _, err := w.f.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write log %s: %w", w.path, err)
	}
	return nil
}

// FormatRow renders a sample as a log row.
func FormatRow(s sampler.Sample) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(s.Time.Unix(), 10))
	for _, v := range s.Values {
		b.WriteByte(',')
		b.WriteString(v.String())
	}
	return b.String()
}

// FormatTrailer renders the trailer line (without newline).
func FormatTrailer(exitStatus int, duration time.Duration) string {
	return fmt.Sprintf("%s%d, duration_s=%d, duration_hms=%s",
		trailerPrefix, exitStatus, wholeSeconds(duration), FormatHMS(duration))
}

// FormatHMS formats d as HH:MM:SS. Hours may exceed two digits.
func FormatHMS(d time.Duration) string {
	s := wholeSeconds(d)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

func wholeSeconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// Trailer is a parsed trailer line.
type Trailer struct {
	ExitStatus int
	Duration   time.Duration
	HMS        string
}

// IsTrailer reports whether line is a trailer line.
func IsTrailer(line string) bool {
	return strings.HasPrefix(line, trailerPrefix)
}

// ParseTrailer parses a trailer line written by WriteTrailer.
func ParseTrailer(line string) (Trailer, error) {
	line = strings.TrimRight(line, "\r\n")
	if !IsTrailer(line) {
		return Trailer{}, fmt.Errorf("not a trailer line: %q", line)
	}

	var t Trailer
	for _, part := range strings.Split(strings.TrimPrefix(line, "# "), ", ") {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return Trailer{}, fmt.Errorf("malformed trailer field %q", part)
		}
		switch key {
		case "exit_status":
			n, err := strconv.Atoi(val)
			if err != nil {
				return Trailer{}, fmt.Errorf("exit_status: %w", err)
			}
			t.ExitStatus = n
		case "duration_s":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return Trailer{}, fmt.Errorf("duration_s: %w", err)
			}
			t.Duration = time.Duration(n) * time.Second
		case "duration_hms":
			t.HMS = val
		default:
			return Trailer{}, fmt.Errorf("unknown trailer field %q", key)
		}
	}
	return t, nil
}
