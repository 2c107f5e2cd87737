// Package main is a binary wrapper package around cmd.
package main

import (
	"io"
	"os"

	"github.com/coconut-svsm/go-vtpm-attest/cmd"
	"github.com/google/logger"
)

func main() {
	// Leveled debug output is gated by --verbosity via
	// logger.SetLevel in the root command.
	defer logger.Init("vtpmattest", true, false, io.Discard).Close()

	if cmd.RootCmd.Execute() != nil {
		os.Exit(1)
	}
}
