package main

import (
	"cashsync/cmd/cashsync/commands"
	"cashsync/lib/util/serviceutil"
	"os"
)

func main() {
	ctx, cancel := serviceutil.SignalContext()
	code := commands.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
