package protocol

// Checksum computes the frame checksum of an encoded buffer.
// It is the one's complement of the 8-bit sum of every byte except the
// checksum byte itself, so the value stored at ChecksumOffset does not
// affect the result.
//
// buf must be at least HeaderSize bytes long.
func Checksum(buf []byte) byte {
	var sum byte
	for i, b := range buf {
		if i == ChecksumOffset {
			continue
		}
		sum += b
	}
	return ^sum
}
