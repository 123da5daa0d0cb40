package main

import (
	"fmt"
	"os"

	"github.com/samijaber1/aegis-sla/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
