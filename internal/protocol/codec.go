package protocol

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrTruncated is returned when a read runs past the declared length of
	// the enclosing message. It is always a hard decode error.
	ErrTruncated = errors.New("read past end of message")

	ErrNestingUnderflow = errors.New("EndMessage without BeginMessage")
)

// Writer builds wire payloads. Nested messages are bracketed with
// BeginMessage/EndMessage: Begin reserves a two byte length prefix and the
// tag byte, End backpatches the length once the body is known. Lengths never
// include the three byte header.
type Writer struct {
	buf   []byte
	stack []int
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 128)}
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.stack = w.stack[:0]
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteInt8(v int8) {
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteUint16BE writes big-endian. Reliable nonces are big-endian on the
// wire; everything else is little-endian.
func (w *Writer) WriteUint16BE(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

// WriteUPacked writes an unsigned LEB128 style varint: seven bits per group,
// high bit set while more groups follow.
func (w *Writer) WriteUPacked(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf = append(w.buf, b)
		if v == 0 {
			return
		}
	}
}

// WritePacked writes a signed value with the same group encoding, reading
// back through the unsigned bit pattern.
func (w *Writer) WritePacked(v int32) {
	w.WriteUPacked(uint32(v))
}

func (w *Writer) WriteBytes(data []byte) {
	w.buf = append(w.buf, data...)
}

func (w *Writer) WriteString(s string) {
	w.WriteUPacked(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteVector2 writes a position as two 16 bit fixed point values mapped
// over [-40, 40].
func (w *Writer) WriteVector2(x, y float32) {
	w.WriteUint16(lerpUint16(x))
	w.WriteUint16(lerpUint16(y))
}

func (w *Writer) BeginMessage(tag uint8) {
	w.stack = append(w.stack, len(w.buf))
	w.buf = append(w.buf, 0, 0, tag)
}

func (w *Writer) EndMessage() error {
	if len(w.stack) == 0 {
		return ErrNestingUnderflow
	}
	start := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]

	length := len(w.buf) - start - 3
	binary.LittleEndian.PutUint16(w.buf[start:], uint16(length))
	return nil
}

// WriteMessage writes a complete tagged child message in one call.
func (w *Writer) WriteMessage(m Message) error {
	w.BeginMessage(m.Tag())
	if err := m.WriteTo(w); err != nil {
		return err
	}
	return w.EndMessage()
}

// Reader consumes a wire payload. A Reader is bounded: reads past its end
// return ErrTruncated rather than spilling into sibling messages.
type Reader struct {
	data []byte
	pos  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *Reader) HasNext() bool {
	return r.Remaining() > 0
}

func (r *Reader) ReadUint8() (uint8, error) {
	if r.Remaining() < 1 {
		return 0, ErrTruncated
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadUint16BE() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadUPacked() (uint32, error) {
	var value uint32
	var shift uint
	for {
		b, err := r.ReadUint8()
		if err != nil {
			return 0, err
		}
		value |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
		if shift > 28 {
			return 0, errors.New("packed integer too long")
		}
	}
}

func (r *Reader) ReadPacked() (int32, error) {
	v, err := r.ReadUPacked()
	return int32(v), err
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrTruncated
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// ReadRemaining consumes the rest of the reader's bounds.
func (r *Reader) ReadRemaining() []byte {
	v := r.data[r.pos:]
	r.pos = len(r.data)
	return v
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUPacked()
	if err != nil {
		return "", err
	}
	data, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *Reader) ReadVector2() (float32, float32, error) {
	xr, err := r.ReadUint16()
	if err != nil {
		return 0, 0, err
	}
	yr, err := r.ReadUint16()
	if err != nil {
		return 0, 0, err
	}
	return unlerpUint16(xr), unlerpUint16(yr), nil
}

// ReadMessage reads one length-prefixed tagged child and returns a Reader
// bounded to its declared body.
func (r *Reader) ReadMessage() (uint8, *Reader, error) {
	length, err := r.ReadUint16()
	if err != nil {
		return 0, nil, err
	}
	tag, err := r.ReadUint8()
	if err != nil {
		return 0, nil, err
	}
	body, err := r.ReadBytes(int(length))
	if err != nil {
		return 0, nil, err
	}
	return tag, NewReader(body), nil
}

const vectorRange = 40.0

func lerpUint16(v float32) uint16 {
	t := (v + vectorRange) / (2 * vectorRange)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return uint16(t * 65535.0)
}

func unlerpUint16(v uint16) float32 {
	t := float32(v) / 65535.0
	return t*2*vectorRange - vectorRange
}
