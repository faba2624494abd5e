package wirestream

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrame bounds the payload size of a single frame unless a reader
// or writer is configured with its own limit.
const DefaultMaxFrame uint32 = 16 * 1024 * 1024 // 16 MB

// headerSize is the fixed frame prefix: a big-endian uint32 payload length.
const headerSize = 4

var (
	// ErrMessageTooLarge reports an envelope whose encoding does not fit the
	// frame limit. The write is rejected before any byte reaches the
	// transport; reads reject the declared length before allocating.
	ErrMessageTooLarge = errors.New("wirestream: message exceeds frame limit")

	// ErrMalformedPayload reports a frame whose payload bytes failed to
	// decode as the requested envelope type. The connection should be
	// considered desynchronized and closed.
	ErrMalformedPayload = errors.New("wirestream: malformed payload")
)

// A MessageWriter frames encoded envelopes onto one transport write half.
//
// The header and payload of each frame are assembled in a scratch buffer
// owned by the writer and reused across calls. At most one WriteMessage or
// WriteFrame may be in flight at a time. A write that failed partway may
// have left a partial frame on the wire; the writer and its transport must
// be discarded, not retried.
type MessageWriter struct {
	w   io.Writer
	buf []byte

	// MaxFrame bounds the payload size of an outgoing frame.
	// Zero means DefaultMaxFrame.
	MaxFrame uint32
}

// NewMessageWriter returns a writer that frames messages onto w.
func NewMessageWriter(w io.Writer) *MessageWriter {
	return &MessageWriter{w: w}
}

// WriteMessage encodes m and writes it as one frame.
func (mw *MessageWriter) WriteMessage(m encoding.BinaryMarshaler) error {
	payload, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return mw.WriteFrame(payload)
}

// WriteFrame writes one already-encoded payload as a frame. The length
// header and the payload are handed to the transport as a single logical
// write, looping until the transport has accepted every byte.
func (mw *MessageWriter) WriteFrame(payload []byte) error {
	if uint64(len(payload)) > uint64(mw.limit()) {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}
	mw.buf = binary.BigEndian.AppendUint32(mw.buf[:0], uint32(len(payload)))
	mw.buf = append(mw.buf, payload...)
	if err := writeFull(mw.w, mw.buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

func (mw *MessageWriter) limit() uint32 {
	if mw.MaxFrame != 0 {
		return mw.MaxFrame
	}
	return DefaultMaxFrame
}

// writeFull writes all of p, tolerating transports that accept fewer bytes
// than offered per call. A Write that makes no progress and reports no
// error fails with io.ErrShortWrite rather than spinning.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// A MessageReader reads frames off one transport read half and decodes them.
//
// The reader owns a scratch buffer reused across reads, so at most one
// ReadMessage or ReadFrame may be in flight at a time. A read that failed
// mid-frame leaves the transport's byte alignment unknown; the reader and
// its transport must be discarded.
type MessageReader struct {
	r   io.Reader
	buf []byte

	// MaxFrame bounds the payload size this reader accepts before
	// allocating. Zero means DefaultMaxFrame.
	MaxFrame uint32
}

// NewMessageReader returns a reader that decodes frames from r.
func NewMessageReader(r io.Reader) *MessageReader {
	return &MessageReader{r: r}
}

// ReadMessage reads one frame and decodes its payload into m.
//
// A transport that closes cleanly between frames yields io.EOF. A close
// partway through a frame yields an error wrapping io.ErrUnexpectedEOF;
// no partial frame is ever surfaced. A payload that fails to decode yields
// an error wrapping ErrMalformedPayload.
func (mr *MessageReader) ReadMessage(m encoding.BinaryUnmarshaler) error {
	payload, err := mr.ReadFrame()
	if err != nil {
		return err
	}
	if err := m.UnmarshalBinary(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// ReadFrame reads one frame and returns its payload. The returned slice
// aliases the reader's scratch buffer and is valid only until the next
// read. EOF conventions match ReadMessage.
func (mr *MessageReader) ReadFrame() ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(mr.r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > mr.limit() {
		return nil, fmt.Errorf("%w: frame declares %d bytes", ErrMessageTooLarge, length)
	}

	if cap(mr.buf) < int(length) {
		mr.buf = make([]byte, length)
	}
	mr.buf = mr.buf[:length]
	if _, err := io.ReadFull(mr.r, mr.buf); err != nil {
		// The header promised more bytes than arrived. Plain EOF here is
		// still a truncated frame, not a clean close.
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return mr.buf, nil
}

func (mr *MessageReader) limit() uint32 {
	if mr.MaxFrame != 0 {
		return mr.MaxFrame
	}
	return DefaultMaxFrame
}

// A MessageStream couples a MessageReader and a MessageWriter over one
// duplex transport. The halves are independent: one goroutine may read
// while another writes. Neither half tolerates two concurrent callers.
type MessageStream struct {
	*MessageReader
	*MessageWriter
	rw io.ReadWriter
}

// NewMessageStream returns a stream over a duplex transport.
func NewMessageStream(rw io.ReadWriter) *MessageStream {
	return &MessageStream{
		MessageReader: NewMessageReader(rw),
		MessageWriter: NewMessageWriter(rw),
		rw:            rw,
	}
}

// Transport returns the underlying connection for out-of-band use, such as
// closing it or setting deadlines. Reading or writing raw bytes on it while
// framed traffic is in flight desynchronizes the stream.
func (s *MessageStream) Transport() io.ReadWriter { return s.rw }
