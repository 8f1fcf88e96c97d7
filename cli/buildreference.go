package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nosqlbench/nbdatatools-sub010/internal/merkleshape"
	"github.com/nosqlbench/nbdatatools-sub010/internal/merkletree"
)

var buildReferenceChunkSize int64
var buildReferenceWorkers int
var buildReferenceOutput string

var buildReferenceCmd = &cobra.Command{
	Use:   "build-reference <source-file>",
	Short: "Build a reference Merkle tree for a local file",
	Long:  `Hashes every chunk of source-file and writes a reference tree (".mref" sibling by default) that painters verify downloads against.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]

		info, err := os.Stat(source)
		if err != nil {
			return fmt.Errorf("stat %s: %w", source, err)
		}

		shape, err := merkleshape.ForContent(info.Size(), buildReferenceChunkSize)
		if err != nil {
			return fmt.Errorf("derive shape: %w", err)
		}

		tree, err := merkletree.Build(context.Background(), source, shape, buildReferenceWorkers)
		if err != nil {
			return fmt.Errorf("build reference tree: %w", err)
		}
		for c := int64(0); c < shape.LeafCount; c++ {
			tree.SetLeafValid(c)
		}
		builtPath := tree.Path()
		if err := tree.Close(); err != nil {
			return fmt.Errorf("close reference tree: %w", err)
		}

		out := buildReferenceOutput
		if out == "" {
			out = source + ".mref"
		}
		if out != builtPath {
			if err := os.Rename(builtPath, out); err != nil {
				return fmt.Errorf("rename %s to %s: %w", builtPath, out, err)
			}
		}

		fmt.Printf("reference tree written to %s (%d leaves, %d bytes chunked at %d)\n",
			out, shape.LeafCount, shape.ContentSize, shape.ChunkSize)
		return nil
	},
}

func init() {
	buildReferenceCmd.Flags().Int64Var(&buildReferenceChunkSize, "chunk-size", 1024*1024, "chunk size in bytes, must be a power of two")
	buildReferenceCmd.Flags().IntVar(&buildReferenceWorkers, "workers", 0, "leaf-hashing worker count (0 = 2*GOMAXPROCS)")
	buildReferenceCmd.Flags().StringVar(&buildReferenceOutput, "output", "", "reference tree output path (default: <source-file>.mref)")
}
