package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/vitaminmoo/z407-tool/internal/cli"
	"github.com/vitaminmoo/z407-tool/internal/commands"
)

func main() {
	var c cli.CLI
	ctx := kong.Parse(&c, cli.Options()...)

	if err := ctx.Run(&c); err != nil {
		// Session failures have already been reported.
		if !errors.Is(err, commands.ErrFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
