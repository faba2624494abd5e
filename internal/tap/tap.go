// Package tap implements a debugging proxy for framed message traffic.
//
// The proxy accepts client connections, dials the upstream server, and
// relays frames byte-for-byte in both directions. Each relayed frame is
// additionally decoded (on a copy of the metadata only, never mutating
// the bytes on the wire) for logging, metrics, and optional capture to
// a SQLite store.
package tap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/codewiresh/wirestream"
	"github.com/codewiresh/wirestream/internal/capture"
	"github.com/codewiresh/wirestream/messages"
	"github.com/codewiresh/wirestream/wsconn"
)

// Config configures a Proxy.
type Config struct {
	// ListenAddr is the TCP address clients connect to ("127.0.0.1:0" picks a port).
	ListenAddr string
	// Upstream is either a host:port TCP address or a ws:// / wss:// URL.
	Upstream string
	// MaxFrame overrides the frame size limit on both relay directions.
	// Zero keeps the default.
	MaxFrame uint32
	// Note is stored on the capture session, if any.
	Note string
	// Store receives a capture session and one row per relayed frame.
	// Nil disables capture.
	Store *capture.Store
}

// Proxy is a listening frame relay. Create one with Listen, then call
// Serve to accept connections.
type Proxy struct {
	cfg       Config
	ln        net.Listener
	store     *capture.Store
	sessionID string
}

// Listen binds the proxy's listener and, when capture is enabled,
// opens a capture session. Serve must be called to start relaying.
func Listen(cfg Config) (*Proxy, error) {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("tap listen: %w", err)
	}
	p := &Proxy{cfg: cfg, ln: ln, store: cfg.Store}
	if p.store != nil {
		sess, err := p.store.CreateSession(context.Background(), ln.Addr().String(), cfg.Upstream, cfg.Note)
		if err != nil {
			ln.Close()
			return nil, fmt.Errorf("creating capture session: %w", err)
		}
		p.sessionID = sess.ID
	}
	return p, nil
}

// Addr returns the bound listen address.
func (p *Proxy) Addr() net.Addr { return p.ln.Addr() }

// SessionID returns the capture session ID, or "" when capture is off.
func (p *Proxy) SessionID() string { return p.sessionID }

// Serve accepts and relays connections until ctx is cancelled.
func (p *Proxy) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		p.ln.Close()
	}()
	slog.Info("tap: listening", "addr", p.ln.Addr().String(), "upstream", p.cfg.Upstream)
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			if p.store != nil {
				if err := p.store.EndSession(context.Background(), p.sessionID); err != nil {
					slog.Error("tap: ending capture session", "err", err)
				}
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go p.handle(ctx, conn)
	}
}

func (p *Proxy) handle(ctx context.Context, client net.Conn) {
	defer client.Close()

	upstream, err := dialUpstream(ctx, p.cfg.Upstream)
	if err != nil {
		slog.Error("tap: upstream dial failed", "upstream", p.cfg.Upstream, "err", err)
		return
	}
	defer upstream.Close()

	slog.Info("tap: relaying", "client", client.RemoteAddr().String(), "upstream", p.cfg.Upstream)

	// Relay both directions. When either side finishes, close both
	// conns so the opposite pump unblocks, then wait for it too.
	done := make(chan struct{}, 2)
	go func() { p.pump(capture.DirClient, client, upstream); done <- struct{}{} }()
	go func() { p.pump(capture.DirServer, upstream, client); done <- struct{}{} }()
	select {
	case <-done:
	case <-ctx.Done():
	}
	client.Close()
	upstream.Close()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// pump relays frames from src to dst until either side fails or closes.
// The frame bytes written downstream are exactly the bytes read.
func (p *Proxy) pump(dir string, src, dst net.Conn) {
	r := wirestream.NewMessageReader(src)
	w := wirestream.NewMessageWriter(dst)
	if p.cfg.MaxFrame != 0 {
		r.MaxFrame = p.cfg.MaxFrame
		w.MaxFrame = p.cfg.MaxFrame
	}
	for {
		payload, err := r.ReadFrame()
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				slog.Warn("tap: read failed", "direction", dir, "err", err)
			}
			return
		}
		p.observe(dir, payload)
		if err := w.WriteFrame(payload); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Warn("tap: write failed", "direction", dir, "err", err)
			}
			return
		}
	}
}

// observe records one relayed frame: metrics, a debug log line, and a
// capture row when a store is attached. payload is only valid until the
// next read, so it is persisted before pump touches the reader again.
func (p *Proxy) observe(dir string, payload []byte) {
	FrameRelayed(dir, len(payload)+4)

	id, kind, err := decodeMeta(dir, payload)
	if err != nil {
		DecodeFailed(dir)
		slog.Warn("tap: undecodable frame", "direction", dir, "bytes", len(payload), "err", err)
	} else {
		slog.Debug("tap: frame", "direction", dir, "kind", kind, "id", id, "bytes", len(payload))
	}

	if p.store == nil {
		return
	}
	f := capture.Frame{
		SessionID:  p.sessionID,
		Direction:  dir,
		Size:       len(payload),
		Raw:        payload,
		ObservedAt: time.Now().UTC(),
	}
	if err == nil {
		f.CorrelationID = id
		f.Kind = kind
	}
	if err := p.store.AppendFrame(context.Background(), f); err != nil {
		slog.Error("tap: capture append failed", "err", err)
	}
}

// decodeMeta extracts the correlation ID and kind from an envelope
// without acting on the payload.
func decodeMeta(dir string, payload []byte) (uint32, string, error) {
	if dir == capture.DirClient {
		var env messages.FromClient
		if err := env.UnmarshalBinary(payload); err != nil {
			return 0, "", err
		}
		return env.ID, env.Variant.Kind(), nil
	}
	var env messages.FromServer
	if err := env.UnmarshalBinary(payload); err != nil {
		return 0, "", err
	}
	return env.ID, env.Variant.Kind(), nil
}

func dialUpstream(ctx context.Context, upstream string) (net.Conn, error) {
	if strings.HasPrefix(upstream, "ws://") || strings.HasPrefix(upstream, "wss://") {
		return wsconn.Dial(ctx, upstream, nil)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", upstream)
}
