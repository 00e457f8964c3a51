package ibgw

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// The gateway socket protocol frames every message as a 4-byte big-endian
// payload length followed by NUL-separated fields. Frames are
// self-delimiting, so a reader may consume the leading fields it
// understands and discard the rest of the frame.

const maxFrameSize = 1 << 20

func writeFrame(w io.Writer, fields ...string) error {
	payload := strings.Join(fields, "\x00") + "\x00"

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, payload)
	return err
}

func readFrame(r io.Reader) ([]string, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxFrameSize {
		return nil, fmt.Errorf("invalid frame size %d", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	// Trailing NUL produces one empty trailing element; drop it.
	fields := strings.Split(string(payload), "\x00")
	if n := len(fields); n > 0 && fields[n-1] == "" {
		fields = fields[:n-1]
	}
	return fields, nil
}

// fieldReader walks a frame's fields with lenient decoding: missing fields
// read as zero values, since older gateway versions send shorter frames.
type fieldReader struct {
	fields []string
	pos    int
}

func (f *fieldReader) next() string {
	if f.pos >= len(f.fields) {
		return ""
	}
	v := f.fields[f.pos]
	f.pos++
	return v
}

func (f *fieldReader) skip(n int) {
	f.pos += n
}

func (f *fieldReader) nextInt() int {
	v, _ := strconv.Atoi(f.next())
	return v
}

func (f *fieldReader) nextInt64() int64 {
	v, _ := strconv.ParseInt(f.next(), 10, 64)
	return v
}

func (f *fieldReader) nextFloat() float64 {
	v, _ := strconv.ParseFloat(f.next(), 64)
	return v
}

func encodeFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func encodeBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
