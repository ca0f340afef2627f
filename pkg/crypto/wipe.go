package crypto

// Wipe zeroes every buffer. Nil buffers are ignored.
func Wipe(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
	}
}
