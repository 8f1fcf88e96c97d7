package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nosqlbench/nbdatatools-sub010/internal/colors"
	"github.com/nosqlbench/nbdatatools-sub010/internal/merkletree"
	"github.com/nosqlbench/nbdatatools-sub010/internal/pane"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <local-path>",
	Short: "Re-verify every chunk of a cached artifact against its reference tree",
	Long:  `Reads local-path's reference tree (local-path + ".mref") and rehashes every chunk of local-path, reporting any that fail to match.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		localPath := args[0]

		reference, err := merkletree.OpenReferenceTree(localPath + ".mref")
		if err != nil {
			return fmt.Errorf("open reference tree: %w", err)
		}
		defer reference.Close()

		p, err := pane.Open(localPath, reference)
		if err != nil {
			return fmt.Errorf("open pane: %w", err)
		}
		defer p.Close()

		shape := reference.Shape()
		var failed, ok int64
		for c := int64(0); c < shape.LeafCount; c++ {
			if err := p.VerifyChunk(c); err != nil {
				failed++
				fmt.Printf("%s chunk %d: %v\n", colors.Red("FAIL"), c, err)
				continue
			}
			ok++
		}

		fmt.Printf("verified %d chunks: %s %d, %s %d\n", shape.LeafCount, colors.Green("ok"), ok, colors.Red("failed"), failed)
		if failed > 0 {
			return fmt.Errorf("verification found %d corrupt chunks", failed)
		}
		return nil
	},
}
