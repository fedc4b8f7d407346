package main

import (
	"fmt"
	"os"

	"github.com/iniwex5/keyguard-go/pkg/cli"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cmd := cli.NewRootCommand(os.Stdin, os.Stdout, cli.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "keyguardd:", err)
		os.Exit(1)
	}
}
