package flatdb

// Obfuscate XORs data with key repeated to its length and returns the result
// in a new slice. Applying it twice with the same key restores the input. An
// empty key returns an unchanged copy.
//
// This hides payloads from casual inspection only. It is not encryption: the
// key is recoverable from any known plaintext.
func Obfuscate(data []byte, key string) []byte {
	out := make([]byte, len(data))
	xorInto(out, data, key)
	return out
}

// xorInto writes the obfuscated data into dst, which must be at least as
// long as data. The key restarts at the beginning of every call.
func xorInto(dst, data []byte, key string) {
	if len(key) == 0 {
		copy(dst, data)
		return
	}
	k := 0
	for i, b := range data {
		dst[i] = b ^ key[k]
		k++
		if k == len(key) {
			k = 0
		}
	}
}
