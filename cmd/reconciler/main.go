package main

import (
	"os"

	"statement-reconciler/cmd/reconciler/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
