package main

import (
	"fmt"
	"os"

	"github.com/abdul-hamid-achik/frameset/internal/cli/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
