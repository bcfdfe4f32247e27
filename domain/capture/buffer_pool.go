package capture

import (
	"bytes"
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// Encoding a full-screen frame grows a buffer to several megabytes; pooling
// the buffers keeps the capture loop from retaining a fresh one per frame.
// The returned slice is always an independent copy.
var bufferPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

func acquireBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func recycleBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > 64<<20 {
		return
	}
	bufferPool.Put(buf)
}

// encodePNG encodes img through a pooled buffer.
func encodePNG(img image.Image) ([]byte, error) {
	buf := acquireBuffer()
	defer recycleBuffer(buf)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Bytes()...), nil
}
