// main.go - Operator command line for footprint
package main

import (
	"os"

	"footprint/internal/cli"
)

func main() {
	// go-flags already printed the error
	if err := cli.Run(); err != nil {
		os.Exit(1)
	}
}
