package flatdb

import "sync"

var fingerprintBytesPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 256)
	},
}
