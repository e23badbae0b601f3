package internal

// BytesHash returns a hash value for the given byte slice.
func BytesHash(p []byte) (hash uint64) {
	// DJBX33A
	hash = 5381
	for _, b := range p {
		hash = ((hash << 5) + hash) + uint64(b)
	}
	return
}
