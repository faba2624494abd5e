package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewiresh/wirestream/internal/capture"
)

type sessionRow struct {
	ID        string     `json:"id" yaml:"id"`
	Listen    string     `json:"listen_addr" yaml:"listen_addr"`
	Upstream  string     `json:"upstream_addr" yaml:"upstream_addr"`
	Note      string     `json:"note,omitempty" yaml:"note,omitempty"`
	Frames    int64      `json:"frames" yaml:"frames"`
	StartedAt time.Time  `json:"started_at" yaml:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
}

func sessionsCmd() *cobra.Command {
	var (
		storePath string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List capture sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(storePath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			sessions, err := st.Sessions(ctx)
			if err != nil {
				return err
			}
			rows := make([]sessionRow, 0, len(sessions))
			for _, s := range sessions {
				count, err := st.FrameCount(ctx, s.ID)
				if err != nil {
					return err
				}
				rows = append(rows, sessionRow{
					ID:        s.ID,
					Listen:    s.ListenAddr,
					Upstream:  s.UpstreamAddr,
					Note:      s.Note,
					Frames:    count,
					StartedAt: s.StartedAt,
					EndedAt:   s.EndedAt,
				})
			}
			return writeSessionRows(os.Stdout, output, rows)
		},
	}

	cmd.Flags().StringVar(&storePath, "store", filepath.Join(dataDir(), "capture.db"), "Capture database path")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json, or yaml")
	return cmd
}

func writeSessionRows(w io.Writer, format string, rows []sessionRow) error {
	if format != "table" {
		return encodeAs(w, format, rows)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tLISTEN\tUPSTREAM\tFRAMES\tSTARTED\tENDED\tNOTE\n")
	for _, r := range rows {
		ended := "active"
		if r.EndedAt != nil {
			ended = r.EndedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Listen, r.Upstream, r.Frames, r.StartedAt.Format(time.RFC3339), ended, r.Note)
	}
	return tw.Flush()
}

// openStore opens an existing capture database. It does not create one.
func openStore(path string) (*capture.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no capture database at %s (run the proxy with --capture first)", path)
	}
	return capture.Open(path)
}
