// Package wiretest provides in-memory transports for exercising framing
// code under unfriendly I/O conditions: short reads, short writes and
// transports that die mid-frame.
package wiretest

import (
	"io"
	"net"
)

// ChunkedBuffer is a loopback transport that moves at most Chunk bytes per
// Read or Write call. Zero or negative Chunk means no cap. Once the
// written bytes are exhausted, Read returns io.EOF.
type ChunkedBuffer struct {
	Chunk int

	data []byte
	off  int
}

func (b *ChunkedBuffer) Write(p []byte) (int, error) {
	n := b.chunk(len(p))
	b.data = append(b.data, p[:n]...)
	return n, nil
}

func (b *ChunkedBuffer) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		return 0, io.EOF
	}
	n := b.chunk(min(len(p), len(b.data)-b.off))
	copy(p, b.data[b.off:b.off+n])
	b.off += n
	return n, nil
}

func (b *ChunkedBuffer) chunk(n int) int {
	if b.Chunk > 0 && n > b.Chunk {
		return b.Chunk
	}
	return n
}

// Bytes returns everything written so far, read or not.
func (b *ChunkedBuffer) Bytes() []byte { return b.data }

// Truncate drops all but the first n written bytes, so the next reads see
// a transport that closed mid-frame.
func (b *ChunkedBuffer) Truncate(n int) {
	if n >= 0 && n < len(b.data) {
		b.data = b.data[:n]
	}
}

// ChunkedConn caps each Read and Write on a net.Conn at Chunk bytes.
// Short writes report success for the truncated prefix.
type ChunkedConn struct {
	net.Conn
	Chunk int
}

func (c *ChunkedConn) Read(p []byte) (int, error) {
	if c.Chunk > 0 && len(p) > c.Chunk {
		p = p[:c.Chunk]
	}
	return c.Conn.Read(p)
}

func (c *ChunkedConn) Write(p []byte) (int, error) {
	if c.Chunk > 0 && len(p) > c.Chunk {
		p = p[:c.Chunk]
	}
	return c.Conn.Write(p)
}

// Pipe returns both ends of an in-memory duplex connection, each capped at
// chunk bytes per I/O call.
func Pipe(chunk int) (net.Conn, net.Conn) {
	a, b := net.Pipe()
	return &ChunkedConn{Conn: a, Chunk: chunk}, &ChunkedConn{Conn: b, Chunk: chunk}
}
