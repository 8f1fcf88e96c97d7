package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nosqlbench/nbdatatools-sub010/internal/cacheconfig"
	"github.com/nosqlbench/nbdatatools-sub010/internal/eventlog"
	"github.com/nosqlbench/nbdatatools-sub010/internal/merkletree"
	"github.com/nosqlbench/nbdatatools-sub010/internal/pane"
	"github.com/nosqlbench/nbdatatools-sub010/internal/painter"
	"github.com/nosqlbench/nbdatatools-sub010/internal/transport"
)

var paintOffset int64
var paintLength int64
var paintMaxConns int
var paintLogPath string

var paintCmd = &cobra.Command{
	Use:   "paint <remote-url> <local-path>",
	Short: "Download and verify a byte range of a remote artifact",
	Long: `Materializes the remote reference tree (at <remote-url>.mref) if
necessary, opens (or creates) the local pane at local-path, and paints
[offset, offset+length) by range-coalesced, chunk-verified download.
A length of 0 paints the whole artifact.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		remoteURL, localPath := args[0], args[1]

		cfg, err := cacheconfig.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx := context.Background()

		refTransport := transport.NewHTTPTransport(remoteURL+".mref", paintMaxConns)
		defer refTransport.Close()
		reference, err := merkletree.MaterializeReferenceTree(ctx, refTransport, localPath+".mref")
		if err != nil {
			return fmt.Errorf("materialize reference tree: %w", err)
		}
		defer reference.Close()

		contentTransport := transport.NewHTTPTransport(remoteURL, paintMaxConns)
		defer contentTransport.Close()

		p, err := pane.Open(localPath, reference)
		if err != nil {
			return fmt.Errorf("open pane: %w", err)
		}
		defer p.Close()

		var sink eventlog.Sink = eventlog.NopSink{}
		if paintLogPath != "" {
			fileSink, err := eventlog.NewFileSink(paintLogPath, 16*1024*1024, true)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer fileSink.Close()
			sink = fileSink
		}

		pc := painter.Config{
			MinDownloadSize: cfg.MinDownloadSize,
			MaxDownloadSize: cfg.MaxDownloadSize,
			RangeRetries:    cfg.RangeRetries,
			ChunkRetries:    cfg.ChunkRetries,
			RangeTimeout:    cfg.RangeTimeout(),
		}
		painterInst := painter.New(p, reference, contentTransport, pc, sink)
		defer painterInst.Close()

		contentSize := reference.Shape().ContentSize
		end := paintOffset + paintLength
		if paintLength <= 0 {
			end = contentSize
		}

		start := time.Now()
		if err := painterInst.Paint(ctx, paintOffset, end); err != nil {
			return fmt.Errorf("paint: %w", err)
		}
		fmt.Printf("painted [%d, %d) of %s in %s\n", paintOffset, end, localPath, time.Since(start))
		return nil
	},
}

func init() {
	paintCmd.Flags().Int64Var(&paintOffset, "offset", 0, "start byte offset")
	paintCmd.Flags().Int64Var(&paintLength, "length", 0, "byte length to paint (0 = whole artifact)")
	paintCmd.Flags().IntVar(&paintMaxConns, "max-conns", 4, "maximum concurrent range requests")
	paintCmd.Flags().StringVar(&paintLogPath, "event-log", "", "optional path to write a compressed rotating event log")
}
