package proclog

import (
	"bytes"
	"io"
	"os"

	"github.com/tradex-ops/tradexd/pkg/errors"
)

const tailChunkSize = 16 * 1024

// TailFile returns the last n lines of a log file. It reads backwards in
// chunks so large logs are not loaded whole.
func TailFile(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("log file not found", err).WithContext("path", path)
		}
		return nil, errors.NewIOError("failed to open log file", err).WithContext("path", path)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, errors.NewIOError("failed to stat log file", err).WithContext("path", path)
	}

	var collected []byte
	offset := info.Size()
	buf := make([]byte, tailChunkSize)

	for offset > 0 {
		chunk := int64(tailChunkSize)
		if offset < chunk {
			chunk = offset
		}
		offset -= chunk

		if _, err := file.ReadAt(buf[:chunk], offset); err != nil && err != io.EOF {
			return nil, errors.NewIOError("failed to read log file", err).WithContext("path", path)
		}

		collected = append(append([]byte{}, buf[:chunk]...), collected...)
		if bytes.Count(collected, []byte{'\n'}) > n {
			break
		}
	}

	lines := splitTrailing(collected)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func splitTrailing(data []byte) []string {
	data = bytes.TrimSuffix(data, []byte{'\n'})
	if len(data) == 0 {
		return nil
	}
	raw := bytes.Split(data, []byte{'\n'})
	lines := make([]string, len(raw))
	for i, line := range raw {
		lines[i] = string(bytes.TrimSuffix(line, []byte{'\r'}))
	}
	return lines
}
