package paths

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

const maxRootLength = 1 << 20

// ScanRoots reads delimiter separated root paths from r and calls fn for each
// non-empty one, in input order. The last root may lack a trailing delimiter.
func ScanRoots(r io.Reader, delim byte, fn func(root string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxRootLength)
	scanner.Split(splitOn(delim))

	for scanner.Scan() {
		root := scanner.Text()
		if root == "" {
			continue
		}
		if err := fn(root); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read roots")
	}

	return nil
}

func splitOn(delim byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.IndexByte(data, delim); i >= 0 {
			return i + 1, data[:i], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
