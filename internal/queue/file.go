// Package queue reads and writes the newline-delimited files that hold pending
// tasks and dispatch history.
package queue

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"unicode/utf8"
)

// Read returns the lines of the file at path in order. A trailing line
// terminator does not produce an extra empty line and "\r\n" endings are
// accepted. One trailing "\r" is stripped from every line, so a line that
// was written ending in "\r" reads back without it.
func Read(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	if !utf8.Valid(data) {
		return nil, &IOError{Op: "read", Path: path, Err: errors.New("file is not valid UTF-8")}
	}
	if len(data) == 0 {
		return []string{}, nil
	}

	text := strings.TrimSuffix(string(data), "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines, nil
}

// Write replaces the content of path with tasks, one per line. An empty slice
// leaves a zero-length file behind; removing it is up to the caller. Tasks are
// written verbatim, but a task ending in "\r" does not survive a later Read
// unchanged.
func Write(path string, tasks []string) error {
	var buf bytes.Buffer
	for _, task := range tasks {
		buf.WriteString(task)
		buf.WriteByte('\n')
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Append adds line plus a terminator to the end of path, creating the file if
// needed.
func Append(path, line string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return &IOError{Op: "append", Path: path, Err: err}
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return &IOError{Op: "append", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "append", Path: path, Err: err}
	}
	return nil
}
