package recorder

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Log is the parsed content of a log file.
type Log struct {
	Headers  int
	Rows     [][]string
	Trailers []Trailer
	// TrailerLast is true when the final line of the file is a trailer.
	TrailerLast bool
}

// Load reads and parses a log file.
func Load(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	l := &Log{}
	var last string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		last = line
		switch {
		case line == Header:
			l.Headers++
		case IsTrailer(line):
			t, err := ParseTrailer(line)
			if err != nil {
				return nil, err
			}
			l.Trailers = append(l.Trailers, t)
		case line == "":
		default:
			fields := strings.Split(line, ",")
			if len(fields) != 8 {
				return nil, fmt.Errorf("row has %d fields, want 8: %q", len(fields), line)
			}
			l.Rows = append(l.Rows, fields)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	l.TrailerLast = IsTrailer(last)
	return l, nil
}
