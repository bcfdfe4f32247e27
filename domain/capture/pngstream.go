package capture

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// maxChunkLen guards against a corrupt length field allocating gigabytes.
const maxChunkLen = 256 << 20

// ErrBadPNGStream is returned when the stream is not a sequence of PNGs.
var ErrBadPNGStream = errors.New("malformed png stream")

// PNGSplitter cuts a concatenation of PNG files (ffmpeg image2pipe output)
// into individual images by walking chunk headers up to IEND.
type PNGSplitter struct {
	r *bufio.Reader
}

func NewPNGSplitter(r io.Reader) *PNGSplitter {
	return &PNGSplitter{r: bufio.NewReaderSize(r, 1<<20)}
}

// Next returns the next complete PNG. It returns io.EOF when the stream ends
// cleanly between images and io.ErrUnexpectedEOF when it ends inside one.
func (p *PNGSplitter) Next() ([]byte, error) {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(p.r, sig); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, fmt.Errorf("%w: bad signature", ErrBadPNGStream)
	}
	var out bytes.Buffer
	out.Write(sig)
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(p.r, header); err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		n := binary.BigEndian.Uint32(header[:4])
		if n > maxChunkLen {
			return nil, fmt.Errorf("%w: chunk length %d", ErrBadPNGStream, n)
		}
		out.Write(header)
		// chunk data plus CRC
		if _, err := io.CopyN(&out, p.r, int64(n)+4); err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		if string(header[4:8]) == "IEND" {
			return out.Bytes(), nil
		}
	}
}
