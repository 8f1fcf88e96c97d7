// Command merklecache is the CLI entrypoint: see cli.Execute for the
// command tree.
package main

import "github.com/nosqlbench/nbdatatools-sub010/cli"

func main() {
	cli.Execute()
}
