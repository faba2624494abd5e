package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/codewiresh/wirestream"
	"github.com/codewiresh/wirestream/internal/capture"
	"github.com/codewiresh/wirestream/messages"
)

func decodeCmd() *cobra.Command {
	var (
		direction string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode length-prefixed frames from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = os.Stdin
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			rows, err := decodeFrames(in, direction)
			if err != nil {
				return err
			}
			return writeFrameRows(os.Stdout, output, rows)
		},
	}

	cmd.Flags().StringVarP(&direction, "direction", "d", capture.DirClient, "Decode as client or server frames")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json, or yaml")
	return cmd
}

// decodeFrames reads frames from in until EOF. Frames whose payload
// does not decode keep an empty kind and no body.
func decodeFrames(in io.Reader, direction string) ([]frameRow, error) {
	if direction != capture.DirClient && direction != capture.DirServer {
		return nil, fmt.Errorf("unknown direction %q (want %s or %s)", direction, capture.DirClient, capture.DirServer)
	}
	r := wirestream.NewMessageReader(in)
	var rows []frameRow
	for seq := int64(1); ; seq++ {
		payload, err := r.ReadFrame()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("frame %d: %w", seq, err)
		}
		row := frameRow{Seq: seq, Direction: direction, Size: len(payload)}
		if direction == capture.DirClient {
			var env messages.FromClient
			if err := env.UnmarshalBinary(payload); err == nil {
				row.CorrelationID = env.ID
				row.Kind = env.Variant.Kind()
				row.Body, _ = payloadFields(env.Variant)
			}
		} else {
			var env messages.FromServer
			if err := env.UnmarshalBinary(payload); err == nil {
				row.CorrelationID = env.ID
				row.Kind = env.Variant.Kind()
				row.Body, _ = payloadFields(env.Variant)
			}
		}
		rows = append(rows, row)
	}
}
