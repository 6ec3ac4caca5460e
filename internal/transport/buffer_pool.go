package transport

import (
	"sync"
)

// maxPacketSize bounds a single mDNS message: RFC 6762 §17 allows
// packets up to the 9000-byte jumbo-frame payload.
const maxPacketSize = 9000

// bufferPool recycles receive buffers so the per-packet hot path does
// not allocate. Pointers to slices keep sync.Pool from boxing on every
// Put.
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, maxPacketSize)
		return &buf
	},
}

// GetBuffer borrows a maxPacketSize buffer from the pool. Return it with
// PutBuffer, usually via defer.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer to the pool. The buffer is zeroed first so
// one datagram's bytes never bleed into a later receive.
func PutBuffer(bufPtr *[]byte) {
	buf := *bufPtr
	for i := range buf {
		buf[i] = 0
	}
	bufferPool.Put(bufPtr)
}
