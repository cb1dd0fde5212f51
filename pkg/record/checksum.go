package record

import (
	"hash"
	"hash/adler32"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// Hasher produces the streaming checksum used to rule out candidates before a
// full comparison. Equal checksums never prove equal content.
type Hasher interface {
	Name() string
	New() hash.Hash
}

type hasher struct {
	name string
	new  func() hash.Hash
}

func (h hasher) Name() string   { return h.name }
func (h hasher) New() hash.Hash { return h.new() }

var (
	Adler32 Hasher = hasher{name: "adler32", new: func() hash.Hash { return adler32.New() }}
	Blake3  Hasher = hasher{name: "blake3", new: func() hash.Hash { return blake3.New() }}
)

// HasherByName resolves a checksum_algorithm setting.
func HasherByName(name string) (Hasher, error) {
	switch strings.ToLower(name) {
	case "", Adler32.Name():
		return Adler32, nil
	case Blake3.Name():
		return Blake3, nil
	default:
		return nil, errors.Errorf("unsupported checksum algorithm: %q", name)
	}
}

// Sum reads c to the end and returns its checksum.
func Sum(c Comparable, h Hasher) ([]byte, error) {
	rc, err := c.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", c)
	}
	defer rc.Close()

	buf := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(buf)

	digest := h.New()
	if _, err := io.CopyBuffer(digest, rc, *buf); err != nil {
		return nil, errors.Wrapf(err, "failed to checksum %s", c)
	}

	return digest.Sum(nil), nil
}
