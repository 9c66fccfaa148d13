package engine

// chunkFrame splits an encoded frame into transport writes of at most mtu
// bytes. A non-positive mtu leaves the frame whole. Chunks alias data.
func chunkFrame(data []byte, mtu int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if mtu <= 0 || len(data) <= mtu {
		return [][]byte{data}
	}
	chunks := make([][]byte, 0, (len(data)+mtu-1)/mtu)
	for len(data) > 0 {
		n := min(mtu, len(data))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}
