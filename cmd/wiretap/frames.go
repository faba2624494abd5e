package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codewiresh/wirestream/internal/capture"
	"github.com/codewiresh/wirestream/messages"
)

func framesCmd() *cobra.Command {
	var (
		storePath string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "frames <session-id>",
		Short: "List the frames captured in one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(storePath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			sess, err := st.SessionGet(ctx, args[0])
			if err != nil {
				return err
			}
			if sess == nil {
				return fmt.Errorf("unknown session %q", args[0])
			}
			frames, err := st.Frames(ctx, sess.ID)
			if err != nil {
				return err
			}

			rows := make([]frameRow, 0, len(frames))
			for _, f := range frames {
				observed := f.ObservedAt
				row := frameRow{
					Seq:           f.Seq,
					Direction:     f.Direction,
					CorrelationID: f.CorrelationID,
					Kind:          f.Kind,
					Size:          f.Size,
					Observed:      &observed,
				}
				if body, err := decodeBody(f.Direction, f.Raw); err == nil {
					row.Body = body
				}
				rows = append(rows, row)
			}
			return writeFrameRows(os.Stdout, output, rows)
		},
	}

	cmd.Flags().StringVar(&storePath, "store", filepath.Join(dataDir(), "capture.db"), "Capture database path")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json, or yaml")
	return cmd
}

// decodeBody re-decodes a captured frame's payload fields.
func decodeBody(direction string, raw []byte) (map[string]any, error) {
	if direction == capture.DirClient {
		var env messages.FromClient
		if err := env.UnmarshalBinary(raw); err != nil {
			return nil, err
		}
		return payloadFields(env.Variant)
	}
	var env messages.FromServer
	if err := env.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return payloadFields(env.Variant)
}
