package record

import (
	"bytes"
	"io"
	"sync"

	"github.com/pkg/errors"
)

const chunkSize = 1 << 14

var bufferPool = &sync.Pool{
	New: func() interface{} {
		buffer := make([]byte, chunkSize)
		return &buffer
	},
}

// Equal reports whether a and b have identical content. Both are read in
// fixed-size chunks; the first chunk that differs in length or bytes ends the
// comparison. Content changing while it is read is not detected.
func Equal(a, b Comparable) (bool, error) {
	ra, err := a.Open()
	if err != nil {
		return false, errors.Wrapf(err, "failed to open %s", a)
	}
	defer ra.Close()

	rb, err := b.Open()
	if err != nil {
		return false, errors.Wrapf(err, "failed to open %s", b)
	}
	defer rb.Close()

	bufA := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufA)
	bufB := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufB)

	for {
		na, errA := readChunk(ra, *bufA)
		if errA != nil {
			return false, errors.Wrapf(errA, "failed to read %s", a)
		}
		nb, errB := readChunk(rb, *bufB)
		if errB != nil {
			return false, errors.Wrapf(errB, "failed to read %s", b)
		}

		if na != nb {
			return false, nil
		}
		if !bytes.Equal((*bufA)[:na], (*bufB)[:nb]) {
			return false, nil
		}
		if na < chunkSize {
			// both streams ended on the same short chunk
			return true, nil
		}
	}
}

// readChunk fills buf unless the stream ends first. End of stream is not an error.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, nil
	}
	return n, err
}
