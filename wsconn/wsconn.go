// Package wsconn adapts websocket connections into the ordered byte
// transports that wirestream framing expects. Frames ride inside binary
// messages; the codec reads the byte stream and never sees message
// boundaries.
package wsconn

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"nhooyr.io/websocket"
)

// Dial opens a websocket to url and returns it as a net.Conn. The context
// governs the dial and every read and write on the returned conn; closing
// the conn closes the websocket.
func Dial(ctx context.Context, url string, header http.Header) (net.Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return websocket.NetConn(ctx, ws, websocket.MessageBinary), nil
}

// Accept upgrades an incoming HTTP request and returns the websocket as a
// net.Conn. The request context governs the conn, so the conn dies with
// the handler.
func Accept(w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("accepting websocket: %w", err)
	}
	return websocket.NetConn(r.Context(), ws, websocket.MessageBinary), nil
}
