package wirestream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/codewiresh/wirestream/messages"
	"github.com/codewiresh/wirestream/wiretest"
)

// ---------------------------------------------------------------------------
// Frame wire format
// ---------------------------------------------------------------------------

func TestFrameWireFormat(t *testing.T) {
	payload := []byte("test")

	var buf wiretest.ChunkedBuffer
	mw := NewMessageWriter(&buf)
	if err := mw.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	wire := buf.Bytes()
	if len(wire) != 4+len(payload) {
		t.Fatalf("wire length = %d, want %d", len(wire), 4+len(payload))
	}
	length := binary.BigEndian.Uint32(wire[:4])
	if length != uint32(len(payload)) {
		t.Errorf("length field = %d, want %d", length, len(payload))
	}
	if !bytes.Equal(wire[4:], payload) {
		t.Errorf("wire payload = %q, want %q", wire[4:], payload)
	}
}

func TestEmptyFrame(t *testing.T) {
	var buf wiretest.ChunkedBuffer
	mw := NewMessageWriter(&buf)
	if err := mw.WriteFrame(nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if got := buf.Bytes(); !bytes.Equal(got, []byte{0, 0, 0, 0}) {
		t.Fatalf("wire = %v, want a bare zero header", got)
	}

	mr := NewMessageReader(&buf)
	payload, err := mr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(payload) != 0 {
		t.Errorf("payload length = %d, want 0", len(payload))
	}
	if _, err := mr.ReadFrame(); err != io.EOF {
		t.Errorf("ReadFrame after last frame: %v, want io.EOF", err)
	}
}

func TestSingleWritePerFrame(t *testing.T) {
	w := &countingWriter{}
	mw := NewMessageWriter(w)
	if err := mw.WriteMessage(messages.NewFromClient(1, messages.CreateWorkspace{Name: "api"})); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	// Header and body travel in one buffer, so an unconstrained transport
	// sees exactly one write per frame.
	if w.writes != 1 {
		t.Errorf("transport writes = %d, want 1", w.writes)
	}
}

// ---------------------------------------------------------------------------
// Round-trips under different chunkings
// ---------------------------------------------------------------------------

func TestMessageRoundTrip(t *testing.T) {
	for _, chunk := range []int{0, 1, 3} {
		buf := &wiretest.ChunkedBuffer{Chunk: chunk}
		mw := NewMessageWriter(buf)
		mr := NewMessageReader(buf)

		original := messages.NewFromClient(7, messages.Auth{UserID: 5, AccessToken: "the-access-token"})
		if err := mw.WriteMessage(original); err != nil {
			t.Fatalf("chunk %d: WriteMessage: %v", chunk, err)
		}

		var decoded messages.FromClient
		if err := mr.ReadMessage(&decoded); err != nil {
			t.Fatalf("chunk %d: ReadMessage: %v", chunk, err)
		}
		if decoded.ID != 7 {
			t.Errorf("chunk %d: ID = %d, want 7", chunk, decoded.ID)
		}
		auth, ok := messages.ClientPayload[messages.Auth](&decoded)
		if !ok {
			t.Fatalf("chunk %d: variant = %T, want Auth", chunk, decoded.Variant)
		}
		if auth.UserID != 5 || auth.AccessToken != "the-access-token" {
			t.Errorf("chunk %d: auth = %+v", chunk, auth)
		}
	}
}

func TestOrderPreserved(t *testing.T) {
	buf := &wiretest.ChunkedBuffer{Chunk: 3}
	mw := NewMessageWriter(buf)
	mr := NewMessageReader(buf)

	first := messages.NewFromServer(1, messages.SessionEvent{WorkspaceID: 9, SessionID: 1, Status: "running"})
	second := messages.NewFromServer(2, messages.SessionEvent{WorkspaceID: 9, SessionID: 1, Status: "exited"})
	if err := mw.WriteMessage(first); err != nil {
		t.Fatalf("WriteMessage first: %v", err)
	}
	if err := mw.WriteMessage(second); err != nil {
		t.Fatalf("WriteMessage second: %v", err)
	}

	for i, want := range []string{"running", "exited"} {
		var env messages.FromServer
		if err := mr.ReadMessage(&env); err != nil {
			t.Fatalf("ReadMessage[%d]: %v", i, err)
		}
		ev, ok := messages.ServerPayload[messages.SessionEvent](&env)
		if !ok {
			t.Fatalf("ReadMessage[%d]: variant = %T, want SessionEvent", i, env.Variant)
		}
		if ev.Status != want {
			t.Errorf("ReadMessage[%d]: status = %q, want %q", i, ev.Status, want)
		}
	}
	if _, err := mr.ReadFrame(); err != io.EOF {
		t.Errorf("ReadFrame after last frame: %v, want io.EOF", err)
	}
}

// ---------------------------------------------------------------------------
// Frame limits
// ---------------------------------------------------------------------------

func TestOversizeRejected(t *testing.T) {
	var buf wiretest.ChunkedBuffer
	mw := NewMessageWriter(&buf)
	mw.MaxFrame = 8

	err := mw.WriteMessage(messages.NewFromClient(1, messages.Auth{UserID: 5, AccessToken: "the-access-token"}))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("WriteMessage: %v, want ErrMessageTooLarge", err)
	}
	if len(buf.Bytes()) != 0 {
		t.Errorf("transport saw %d bytes, want 0", len(buf.Bytes()))
	}
}

func TestReadLimitReject(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], DefaultMaxFrame+1)

	mr := NewMessageReader(bytes.NewReader(header[:]))
	_, err := mr.ReadFrame()
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("ReadFrame: %v, want ErrMessageTooLarge", err)
	}
	if !strings.Contains(err.Error(), "declares") {
		t.Errorf("error = %q, want the declared length mentioned", err)
	}
}

// ---------------------------------------------------------------------------
// EOF and transport failure conventions
// ---------------------------------------------------------------------------

func TestCleanEOF(t *testing.T) {
	mr := NewMessageReader(bytes.NewReader(nil))
	if _, err := mr.ReadFrame(); err != io.EOF {
		t.Fatalf("ReadFrame on empty transport: %v, want io.EOF", err)
	}

	var env messages.FromClient
	if err := mr.ReadMessage(&env); err != io.EOF {
		t.Fatalf("ReadMessage on empty transport: %v, want io.EOF", err)
	}
}

func TestTruncatedHeader(t *testing.T) {
	mr := NewMessageReader(bytes.NewReader([]byte{0x00, 0x00, 0x01}))
	_, err := mr.ReadFrame()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadFrame: %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestTruncatedPayload(t *testing.T) {
	buf := &wiretest.ChunkedBuffer{}
	mw := NewMessageWriter(buf)
	if err := mw.WriteMessage(messages.NewFromClient(1, messages.Auth{UserID: 5, AccessToken: "the-access-token"})); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	// Drop the tail of the frame: the reader must report truncation, never
	// a short payload.
	buf.Truncate(len(buf.Bytes()) - 2)

	var env messages.FromClient
	err := NewMessageReader(buf).ReadMessage(&env)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadMessage: %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestTransportErrorPassthrough(t *testing.T) {
	errBroken := errors.New("broken pipe")

	mr := NewMessageReader(&failingReader{err: errBroken})
	if _, err := mr.ReadFrame(); !errors.Is(err, errBroken) {
		t.Errorf("ReadFrame: %v, want wrapped %v", err, errBroken)
	}

	mw := NewMessageWriter(&failingWriter{err: errBroken})
	if err := mw.WriteFrame([]byte("x")); !errors.Is(err, errBroken) {
		t.Errorf("WriteFrame: %v, want wrapped %v", err, errBroken)
	}
}

func TestStuckWriter(t *testing.T) {
	mw := NewMessageWriter(stuckWriter{})
	err := mw.WriteFrame([]byte("x"))
	if !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("WriteFrame: %v, want io.ErrShortWrite", err)
	}
}

func TestMalformedPayload(t *testing.T) {
	buf := &wiretest.ChunkedBuffer{}
	if err := NewMessageWriter(buf).WriteFrame([]byte("not json")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	var env messages.FromClient
	err := NewMessageReader(buf).ReadMessage(&env)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("ReadMessage: %v, want ErrMalformedPayload", err)
	}
}

// ---------------------------------------------------------------------------
// Auth then upload over a 3-byte transport
// ---------------------------------------------------------------------------

func TestAuthThenUploadChunked(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 40) // 400 bytes, length needs the full header field
	auth := messages.NewFromClient(3, messages.Auth{UserID: 5, AccessToken: "the-access-token"})
	upload := messages.NewFromClient(4, messages.UploadFile{WorkspaceID: 1, Path: "notes.txt", Content: content})

	buf := &wiretest.ChunkedBuffer{Chunk: 3}
	mw := NewMessageWriter(buf)
	if err := mw.WriteMessage(auth); err != nil {
		t.Fatalf("WriteMessage auth: %v", err)
	}
	if err := mw.WriteMessage(upload); err != nil {
		t.Fatalf("WriteMessage upload: %v", err)
	}

	mr := NewMessageReader(buf)

	var gotAuth messages.FromClient
	if err := mr.ReadMessage(&gotAuth); err != nil {
		t.Fatalf("ReadMessage auth: %v", err)
	}
	if gotAuth.ID != 3 {
		t.Errorf("auth ID = %d, want 3", gotAuth.ID)
	}
	a, ok := messages.ClientPayload[messages.Auth](&gotAuth)
	if !ok {
		t.Fatalf("first variant = %T, want Auth", gotAuth.Variant)
	}
	if a.UserID != 5 || a.AccessToken != "the-access-token" {
		t.Errorf("auth payload = %+v", a)
	}

	var gotUpload messages.FromClient
	if err := mr.ReadMessage(&gotUpload); err != nil {
		t.Fatalf("ReadMessage upload: %v", err)
	}
	if gotUpload.ID != 4 {
		t.Errorf("upload ID = %d, want 4", gotUpload.ID)
	}
	u, ok := messages.ClientPayload[messages.UploadFile](&gotUpload)
	if !ok {
		t.Fatalf("second variant = %T, want UploadFile", gotUpload.Variant)
	}
	if u.Path != "notes.txt" || !bytes.Equal(u.Content, content) {
		t.Errorf("upload payload = %+v", u)
	}

	// Re-encoding what was decoded reproduces the written frames byte for
	// byte.
	originals := []*messages.FromClient{auth, upload}
	decoded := []*messages.FromClient{&gotAuth, &gotUpload}
	for i := range originals {
		want, err := originals[i].MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary original[%d]: %v", i, err)
		}
		got, err := decoded[i].MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary decoded[%d]: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame[%d] re-encoding differs:\n got %s\nwant %s", i, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Duplex streams
// ---------------------------------------------------------------------------

func TestMessageStreamDuplex(t *testing.T) {
	clientConn, serverConn := wiretest.Pipe(3)
	defer clientConn.Close()
	defer serverConn.Close()

	serverDone := make(chan error, 1)
	go func() {
		server := NewMessageStream(serverConn)
		var env messages.FromClient
		if err := server.ReadMessage(&env); err != nil {
			serverDone <- err
			return
		}
		if _, ok := messages.ClientPayload[messages.ShareWorkspace](&env); !ok {
			serverDone <- errors.New("unexpected variant")
			return
		}
		serverDone <- server.WriteMessage(messages.NewFromServer(env.ID, messages.ShareWorkspaceResponse{URL: "wss://hub/w/9"}))
	}()

	client := NewMessageStream(clientConn)
	if err := client.WriteMessage(messages.NewFromClient(12, messages.ShareWorkspace{WorkspaceID: 9})); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	var reply messages.FromServer
	if err := client.ReadMessage(&reply); err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("server: %v", err)
	}
	if reply.ID != 12 {
		t.Errorf("reply ID = %d, want 12", reply.ID)
	}
	resp, ok := messages.ServerPayload[messages.ShareWorkspaceResponse](&reply)
	if !ok {
		t.Fatalf("reply variant = %T, want ShareWorkspaceResponse", reply.Variant)
	}
	if resp.URL != "wss://hub/w/9" {
		t.Errorf("reply URL = %q", resp.URL)
	}

	if client.Transport() != clientConn {
		t.Error("Transport() does not return the bound connection")
	}
}

// ---------------------------------------------------------------------------
// Test transports
// ---------------------------------------------------------------------------

type countingWriter struct {
	writes int
	data   []byte
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	w.data = append(w.data, p...)
	return len(p), nil
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

type failingWriter struct{ err error }

func (w *failingWriter) Write([]byte) (int, error) { return 0, w.err }

type stuckWriter struct{}

func (stuckWriter) Write(p []byte) (int, error) { return 0, nil }
