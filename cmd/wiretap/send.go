package main

import (
	"context"
	"encoding"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewiresh/wirestream"
	"github.com/codewiresh/wirestream/internal/capture"
	"github.com/codewiresh/wirestream/messages"
	"github.com/codewiresh/wirestream/wsconn"
)

func sendCmd() *cobra.Command {
	var (
		kind      string
		id        uint32
		body      string
		direction string
		to        string
		await     bool
		output    string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send --kind <kind> [--body <json>]",
		Short: "Encode one message and write its frame to stdout or a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if await && direction != capture.DirClient {
				return fmt.Errorf("--await only applies to client messages")
			}

			env := struct {
				ID   uint32          `json:"id"`
				Kind string          `json:"kind"`
				Body json.RawMessage `json:"body,omitempty"`
			}{ID: id, Kind: kind}
			if body != "" {
				if !json.Valid([]byte(body)) {
					return fmt.Errorf("--body is not valid JSON")
				}
				env.Body = json.RawMessage(body)
			}
			wire, err := json.Marshal(env)
			if err != nil {
				return err
			}

			// Decode through the typed layer so unknown kinds and bad
			// bodies are rejected before anything hits the wire.
			var frame encoding.BinaryMarshaler
			switch direction {
			case capture.DirClient:
				var m messages.FromClient
				if err := m.UnmarshalBinary(wire); err != nil {
					return fmt.Errorf("invalid message: %w", err)
				}
				frame = &m
			case capture.DirServer:
				var m messages.FromServer
				if err := m.UnmarshalBinary(wire); err != nil {
					return fmt.Errorf("invalid message: %w", err)
				}
				frame = &m
			default:
				return fmt.Errorf("unknown direction %q (want %s or %s)", direction, capture.DirClient, capture.DirServer)
			}

			if to == "" {
				return wirestream.NewMessageWriter(os.Stdout).WriteMessage(frame)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			conn, err := dialTarget(ctx, to)
			if err != nil {
				return fmt.Errorf("dialing %s: %w", to, err)
			}
			defer conn.Close()

			stream := wirestream.NewMessageStream(conn)
			if err := stream.WriteMessage(frame); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "[wiretap] sent %s (id %d) to %s\n", kind, id, to)

			if !await {
				return nil
			}
			var reply messages.FromServer
			if err := stream.ReadMessage(&reply); err != nil {
				return fmt.Errorf("reading reply: %w", err)
			}
			replyWire, err := reply.MarshalBinary()
			if err != nil {
				return err
			}
			row := frameRow{
				Seq:           1,
				Direction:     capture.DirServer,
				CorrelationID: reply.ID,
				Kind:          reply.Variant.Kind(),
				Size:          len(replyWire),
			}
			row.Body, _ = payloadFields(reply.Variant)
			return writeFrameRows(os.Stdout, output, []frameRow{row})
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Message kind (e.g. auth, upload_file)")
	cmd.Flags().Uint32Var(&id, "id", 0, "Correlation identifier")
	cmd.Flags().StringVar(&body, "body", "", "Payload as JSON (empty sends a zero payload)")
	cmd.Flags().StringVarP(&direction, "direction", "d", capture.DirClient, "Encode as a client or server message")
	cmd.Flags().StringVar(&to, "to", "", "Destination host:port or ws:// URL (empty writes the frame to stdout)")
	cmd.Flags().BoolVar(&await, "await", false, "Wait for one reply frame and print it")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Reply output format: table, json, or yaml")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Dial and reply timeout")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func dialTarget(ctx context.Context, to string) (net.Conn, error) {
	if strings.HasPrefix(to, "ws://") || strings.HasPrefix(to, "wss://") {
		return wsconn.Dial(ctx, to, nil)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", to)
}
