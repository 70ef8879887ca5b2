package replay

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// requestPrefix marks the logged lines that are replayed.
const requestPrefix = "REQUEST: "

// LoadLog reads the request paths of a tracker log file.
func LoadLog(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open request log: %w", err)
	}
	defer f.Close()

	entries, err := ReadLog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// ReadLog returns, in order, the path of every "REQUEST: " line.
// Paths without a leading slash get one.
func ReadLog(r io.Reader) ([]string, error) {
	var entries []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, requestPrefix) {
			continue
		}
		path := strings.TrimSpace(line[len(requestPrefix):])
		if path == "" {
			continue
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		entries = append(entries, path)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no %q lines found", strings.TrimSpace(requestPrefix))
	}
	return entries, nil
}
