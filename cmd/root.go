// Package cmd contains the vtpmattest subcommands.
package cmd

import (
	"io"
	"os"

	"github.com/google/logger"
	"github.com/spf13/cobra"
)

var (
	quiet     bool
	verbosity int
)

// RootCmd is the vtpmattest root command. All other commands are
// attached to it.
var RootCmd = &cobra.Command{
	Use:   "vtpmattest",
	Short: "Request and verify SVSM vTPM attestations",
	Long: `Request and verify SVSM vTPM attestations

vtpmattest drives the Linux configfs-tsm report interface to obtain a
signed SEV-SNP attestation report and the vTPM service manifest from
the SVSM, then checks that the manifest matches the Endorsement Key
the vTPM derives from the TCG default template and that the report is
bound to this run's nonce.`,
	PersistentPreRun: func(*cobra.Command, []string) {
		logger.SetLevel(logger.Level(verbosity))
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false,
		"print nothing but errors")
	RootCmd.PersistentFlags().IntVar(&verbosity, "verbosity", 0,
		"logging verbosity for debug detail")
	hideHelp(RootCmd)
}

func messageOutput() io.Writer {
	if quiet {
		return io.Discard
	}
	return os.Stdout
}

func debugOutput() io.Writer {
	if quiet {
		return io.Discard
	}
	return os.Stderr
}
