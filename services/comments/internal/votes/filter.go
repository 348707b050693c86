package votes

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"
)

const (
	blobMagic   = 'V'
	blobVersion = 1
	keySize     = 32
	headerSize  = 2 + 8 + 4 + keySize
	maxHashes   = 64
	// maxBits bounds decoded filters so a corrupt blob cannot demand huge allocations.
	maxBits = 1 << 24
)

// ErrCorruptBlob reports a voters blob that cannot be decoded.
var ErrCorruptBlob = errors.New("votes: corrupt voters blob")

// Filter is a bloom filter over voter addresses. Each filter carries its
// own random BLAKE2b key, so bit positions differ between comments.
// It has no false negatives; false positives occur at roughly the rate
// it was sized for while it holds at most the expected element count.
type Filter struct {
	bits   uint64
	hashes uint32
	key    [keySize]byte
	bitmap []byte
}

// NewFilter sizes a filter for expected elements at the target
// false-positive rate (0 < fpRate < 1).
func NewFilter(expected uint, fpRate float64) (*Filter, error) {
	if expected == 0 {
		return nil, errors.New("votes: expected element count must be positive")
	}
	if fpRate <= 0 || fpRate >= 1 {
		return nil, fmt.Errorf("votes: false positive rate %v out of range (0,1)", fpRate)
	}
	n := float64(expected)
	m := math.Ceil(-n * math.Log(fpRate) / (math.Ln2 * math.Ln2))
	k := math.Round(m / n * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > maxHashes {
		k = maxHashes
	}
	f := &Filter{
		bits:   uint64(m),
		hashes: uint32(k),
		bitmap: make([]byte, (uint64(m)+7)/8),
	}
	if _, err := rand.Read(f.key[:]); err != nil {
		return nil, fmt.Errorf("votes: filter key: %w", err)
	}
	return f, nil
}

// Bits is the size of the bitmap in bits.
func (f *Filter) Bits() uint64 { return f.bits }

// Hashes is the number of bit positions set per element.
func (f *Filter) Hashes() uint32 { return f.hashes }

// Test reports whether item may have been inserted.
func (f *Filter) Test(item string) bool {
	h1, h2 := f.digest(item)
	for i := uint64(0); i < uint64(f.hashes); i++ {
		pos := (h1 + i*h2) % f.bits
		if f.bitmap[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// Insert adds item to the filter.
func (f *Filter) Insert(item string) {
	h1, h2 := f.digest(item)
	for i := uint64(0); i < uint64(f.hashes); i++ {
		pos := (h1 + i*h2) % f.bits
		f.bitmap[pos/8] |= 1 << (pos % 8)
	}
}

// digest derives the two double-hashing seeds for item.
func (f *Filter) digest(item string) (uint64, uint64) {
	h, err := blake2b.New256(f.key[:])
	if err != nil {
		// only possible with a key longer than 64 bytes
		panic(err)
	}
	_, _ = h.Write([]byte(item))
	sum := h.Sum(nil)
	h1 := binary.BigEndian.Uint64(sum[0:8])
	h2 := binary.BigEndian.Uint64(sum[8:16]) | 1
	return h1, h2
}

// MarshalBinary encodes the filter as
// magic | version | bits (u64 BE) | hashes (u32 BE) | key | bitmap.
func (f *Filter) MarshalBinary() ([]byte, error) {
	if f.bits == 0 || uint64(len(f.bitmap)) != (f.bits+7)/8 {
		return nil, errors.New("votes: filter not initialised")
	}
	out := make([]byte, headerSize+len(f.bitmap))
	out[0] = blobMagic
	out[1] = blobVersion
	binary.BigEndian.PutUint64(out[2:10], f.bits)
	binary.BigEndian.PutUint32(out[10:14], f.hashes)
	copy(out[14:14+keySize], f.key[:])
	copy(out[headerSize:], f.bitmap)
	return out, nil
}

// UnmarshalBinary decodes a blob produced by MarshalBinary.
func (f *Filter) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptBlob, len(data))
	}
	if data[0] != blobMagic || data[1] != blobVersion {
		return fmt.Errorf("%w: unknown format %q/%d", ErrCorruptBlob, data[0], data[1])
	}
	bits := binary.BigEndian.Uint64(data[2:10])
	hashes := binary.BigEndian.Uint32(data[10:14])
	if bits == 0 || bits > maxBits {
		return fmt.Errorf("%w: bit count %d", ErrCorruptBlob, bits)
	}
	if hashes == 0 || hashes > maxHashes {
		return fmt.Errorf("%w: hash count %d", ErrCorruptBlob, hashes)
	}
	bitmap := data[headerSize:]
	if uint64(len(bitmap)) != (bits+7)/8 {
		return fmt.Errorf("%w: bitmap is %d bytes, want %d", ErrCorruptBlob, len(bitmap), (bits+7)/8)
	}
	f.bits = bits
	f.hashes = hashes
	copy(f.key[:], data[14:14+keySize])
	f.bitmap = append([]byte(nil), bitmap...)
	return nil
}
