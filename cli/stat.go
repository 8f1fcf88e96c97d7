package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nosqlbench/nbdatatools-sub010/internal/merkletree"
)

var statCmd = &cobra.Command{
	Use:   "stat <local-path>",
	Short: "Print geometry and cache-completeness info for an artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		localPath := args[0]

		reference, err := merkletree.OpenReferenceTree(localPath + ".mref")
		if err != nil {
			return fmt.Errorf("open reference tree: %w", err)
		}
		defer reference.Close()

		shape := reference.Shape()
		fmt.Printf("content size:  %d bytes\n", shape.ContentSize)
		fmt.Printf("chunk size:    %d bytes\n", shape.ChunkSize)
		fmt.Printf("leaf count:    %d (capacity %d)\n", shape.LeafCount, shape.CapLeaf)
		fmt.Printf("node count:    %d\n", shape.NodeCount)

		localTreePath := localPath + ".mrkl"
		if _, err := os.Stat(localTreePath); err != nil {
			fmt.Println("local cache:   not present")
			return nil
		}

		local, err := merkletree.Open(localTreePath)
		if err != nil {
			return fmt.Errorf("open local tree: %w", err)
		}
		defer local.Close()

		var intact int64
		for c := int64(0); c < shape.LeafCount; c++ {
			if local.IsLeafValid(c) {
				intact++
			}
		}
		pct := float64(0)
		if shape.LeafCount > 0 {
			pct = 100 * float64(intact) / float64(shape.LeafCount)
		}
		fmt.Printf("local cache:   %d/%d chunks intact (%.1f%%)\n", intact, shape.LeafCount, pct)
		return nil
	},
}
