package main

import (
	"fmt"
	"os"

	"github.com/agentcore/qcode/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
