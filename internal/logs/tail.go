package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Filter keeps lines whose structured fields carry every given value. Keys
// are log field names such as episode_id or run_id.
type Filter map[string]string

// Match reports whether line carries every field of f, in either the console
// (key=value) or JSON ("key":"value") rendering.
func (f Filter) Match(line string) bool {
	for key, value := range f {
		if value == "" {
			continue
		}
		forms := []string{
			key + "=" + value + " ",
			key + "=" + strconv.Quote(value),
			`"` + key + `":` + strconv.Quote(value),
		}
		found := strings.HasSuffix(line, key+"="+value)
		for _, form := range forms {
			if strings.Contains(line, form) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// TailOptions controls Tail.
type TailOptions struct {
	Limit  int
	Filter Filter
}

// TailResult holds the matched lines and the file offset reading stopped at.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail returns the last Limit matching lines of path. A missing file yields
// no lines. Limit <= 0 returns every matching line.
func Tail(path string, opts TailOptions) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var ring []string
	scanner := newScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !opts.Filter.Match(line) {
			continue
		}
		ring = append(ring, line)
		if opts.Limit > 0 && len(ring) > opts.Limit {
			ring = ring[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return TailResult{}, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return TailResult{}, fmt.Errorf("determine log offset: %w", err)
	}
	return TailResult{Lines: ring, Offset: offset}, nil
}

// Follow polls path from offset and hands each new matching line to emit
// until ctx ends. A truncated file is read again from the start.
func Follow(ctx context.Context, path string, offset int64, filter Filter, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		lines, next, err := readFrom(path, offset)
		if err != nil {
			return err
		}
		offset = next
		for _, line := range lines {
			if filter.Match(line) {
				emit(line)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	// Only whole lines are consumed; a partial last line is read next time.
	reader := bufio.NewReader(file)
	var lines []string
	for {
		chunk, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(chunk))
		lines = append(lines, strings.TrimRight(chunk, "\r\n"))
	}
	return lines, offset, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}
