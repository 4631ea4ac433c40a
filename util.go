package mapi

import (
	"encoding/hex"
	"log/slog"
	"sync"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

func hexstr(b []byte) string {
	if b == nil {
		return "<nil>"
	}
	if len(b) == 0 {
		return "<empty>"
	}
	return hex.EncodeToString(b)
}

func hexAttr(key string, b []byte) slog.Attr {
	return slog.String(key, hexstr(b))
}

var ropBufferPool = &sync.Pool{
	New: func() any {
		b := make([]byte, 0, maxRopBuffer)
		return &b
	},
}

func acquireRopBuffer() *[]byte {
	return ropBufferPool.Get().(*[]byte)
}

func releaseRopBuffer(p *[]byte) {
	*p = (*p)[:0]
	ropBufferPool.Put(p)
}
