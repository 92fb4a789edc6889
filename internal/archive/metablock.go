package archive

// Brotli stream framing constants (RFC 7932, section 9.2).
const (
	// maxMetaBlockLen is the largest MLEN a single meta-block may carry.
	maxMetaBlockLen = 1 << 24
	// lastEmptyMetaBlock has ISLAST and ISLASTEMPTY set; it terminates a stream.
	lastEmptyMetaBlock = 0b0000_0011
)

// AppendRawMetaBlocks appends data to dst as a sequence of uncompressed,
// non-final meta-blocks. The encoder output it follows must end on a byte
// boundary, which holds after every brotli flush.
func AppendRawMetaBlocks(dst, data []byte) []byte {
	for len(data) > 0 {
		n := min(len(data), maxMetaBlockLen)

		dst = append(dst, rawMetaBlockHeader(n)...)
		dst = append(dst, data[:n]...)
		data = data[n:]
	}

	return dst
}

// FinishedLen returns the exact number of bytes Finish adds for a tail of n bytes.
func FinishedLen(n int) int {
	total := 1 // lastEmptyMetaBlock

	for n > 0 {
		chunk := min(n, maxMetaBlockLen)
		total += len(rawMetaBlockHeader(chunk)) + chunk
		n -= chunk
	}

	return total
}

// rawMetaBlockHeader encodes the header of an uncompressed meta-block holding
// n bytes (1 <= n <= maxMetaBlockLen). Fields, least significant bit first:
// ISLAST=0, MNIBBLES-4 (2 bits), MLEN-1 (4*MNIBBLES bits), ISUNCOMPRESSED=1,
// then zero padding up to the byte boundary.
func rawMetaBlockHeader(n int) []byte {
	mlen := uint64(n - 1)

	// The shortest nibble count is mandatory: a longer one with a zero top
	// nibble makes the stream invalid.
	nibbles := 4
	for nibbles < 6 && mlen >= 1<<(4*nibbles) {
		nibbles++
	}

	var (
		bits  uint64
		width uint
	)

	put := func(value uint64, size uint) {
		bits |= value << width
		width += size
	}

	put(0, 1)
	put(uint64(nibbles-4), 2)
	put(mlen, uint(4*nibbles))
	put(1, 1)

	header := make([]byte, (width+7)/8)
	for i := range header {
		header[i] = byte(bits >> (8 * i))
	}

	return header
}
