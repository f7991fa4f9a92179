// Package contenthash implements the Dropbox content hash used to verify
// uploaded files.
//
// The input is split into 4 MiB blocks. Each block is hashed with SHA-256,
// the block digests are concatenated, and the result is hashed again with
// SHA-256. The final digest is reported hex-encoded in the content_hash field
// of file metadata.
//
// Reference: https://www.dropbox.com/developers/reference/content-hash
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
)

const (
	// Size is the length, in bytes, of a content hash digest.
	Size = sha256.Size

	// BlockSize is the number of input bytes covered by one block digest.
	BlockSize = 4 * 1024 * 1024
)

// digest is the running state of a content hash computation.
type digest struct {
	overall    hash.Hash // hashes the concatenated block digests
	block      hash.Hash // hashes the current block
	blockBytes int       // bytes written into the current block
}

// New returns a new hash.Hash computing the Dropbox content hash.
func New() hash.Hash {
	return &digest{
		overall: sha256.New(),
		block:   sha256.New(),
	}
}

// Write absorbs more data into the running hash.
// It always returns len(p), nil.
func (d *digest) Write(p []byte) (int, error) {
	written := len(p)

	for len(p) > 0 {
		room := BlockSize - d.blockBytes
		n := min(room, len(p))

		d.block.Write(p[:n])
		d.blockBytes += n
		p = p[n:]

		if d.blockBytes == BlockSize {
			d.overall.Write(d.block.Sum(nil))
			d.block.Reset()
			d.blockBytes = 0
		}
	}

	return written, nil
}

// Sum appends the current hash to b and returns the resulting slice.
// It does not change the underlying hash state.
func (d *digest) Sum(b []byte) []byte {
	// Fold the pending block into a copy of the overall state.
	overall := cloneSHA256(d.overall)

	if d.blockBytes > 0 {
		overall.Write(d.block.Sum(nil))
	}

	return overall.Sum(b)
}

// Reset resets the hash to its initial state.
func (d *digest) Reset() {
	d.overall.Reset()
	d.block.Reset()
	d.blockBytes = 0
}

// Size returns the number of bytes Sum will return.
func (d *digest) Size() int {
	return Size
}

// BlockSize returns the hash's underlying block size.
func (d *digest) BlockSize() int {
	return BlockSize
}

// binaryState is implemented by the standard library SHA-256 digest.
type binaryState interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

func cloneSHA256(h hash.Hash) hash.Hash {
	dup := sha256.New()

	src, ok := h.(binaryState)
	if !ok {
		return dup
	}

	state, err := src.MarshalBinary()
	if err != nil {
		return dup
	}

	if dst, ok := dup.(binaryState); ok {
		_ = dst.UnmarshalBinary(state) //nolint:errcheck // state came from the same type
	}

	return dup
}

// File returns the hex-encoded content hash of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
