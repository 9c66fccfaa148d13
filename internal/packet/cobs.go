package packet

import "fmt"

// cobsDelimiter terminates every COBS-encoded packet.
const cobsDelimiter = 0x00

// cobsEncode returns the COBS encoding of src followed by the delimiter.
func cobsEncode(src []byte) []byte {
	dst := make([]byte, 1, cobsMaxEncoded(len(src))+1)
	codeIdx := 0
	code := byte(1)
	for _, b := range src {
		if b != 0 {
			dst = append(dst, b)
			code++
		}
		if b == 0 || code == 0xFF {
			dst[codeIdx] = code
			codeIdx = len(dst)
			dst = append(dst, 0)
			code = 1
		}
	}
	dst[codeIdx] = code
	return append(dst, cobsDelimiter)
}

// cobsDecode reverses cobsEncode. src must not include the delimiter.
func cobsDecode(src []byte) ([]byte, error) {
	dst := make([]byte, 0, len(src))
	for i := 0; i < len(src); {
		code := int(src[i])
		if code == 0 {
			return nil, fmt.Errorf("packet: cobs: zero byte at offset %d: %w", i, ErrInvalidFrame)
		}
		i++
		end := i + code - 1
		if end > len(src) {
			return nil, fmt.Errorf("packet: cobs: block of %d overruns %d-byte packet: %w", code, len(src), ErrInvalidFrame)
		}
		dst = append(dst, src[i:end]...)
		i = end
		if code < 0xFF && i < len(src) {
			dst = append(dst, 0)
		}
	}
	return dst, nil
}

// cobsMaxEncoded is the worst-case encoded size of n bytes, excluding the delimiter.
func cobsMaxEncoded(n int) int {
	return n + n/254 + 1
}
