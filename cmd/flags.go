package cmd

import (
	"errors"
	"strings"

	"github.com/google/go-tpm/legacy/tpm2"
	"github.com/spf13/cobra"
)

var (
	output         string
	manifestOutput string
	nonce          []byte
	svsmAttribute  bool
	format         string
	keyAlgo        = tpm2.AlgRSA
)

var algos = map[tpm2.Algorithm]string{
	tpm2.AlgRSA: "rsa",
	tpm2.AlgECC: "ecc",
}

type algoFlag struct {
	value   *tpm2.Algorithm
	allowed []tpm2.Algorithm
}

func (f *algoFlag) Set(val string) error {
	for _, algo := range f.allowed {
		if algos[algo] == val {
			*f.value = algo
			return nil
		}
	}
	return errors.New("unknown algorithm")
}

func (f *algoFlag) Type() string {
	return "algo"
}

func (f *algoFlag) String() string {
	return algos[*f.value]
}

// Allowed gives a string list of the permitted algorithm values for this flag.
func (f *algoFlag) Allowed() string {
	out := make([]string, len(f.allowed))
	for i, a := range f.allowed {
		out[i] = algos[a]
	}
	return strings.Join(out, ", ")
}

// Disable the "help" subcommand (and just use the -h/--help flags).
// This should be called on all commands with subcommands.
// See https://github.com/spf13/cobra/issues/587 for why this is needed.
func hideHelp(cmd *cobra.Command) {
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
}

// Lets this command specify where the raw report is persisted.
func addReportOutputFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&output, "output", "report.bin",
		"file the raw attestation report is written to")
}

func addManifestOutputFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&manifestOutput, "manifest-output", "",
		"optional file the raw vTPM service manifest is written to")
}

func addNonceFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().BytesHexVar(&nonce, "nonce", []byte{},
		"hex encoded 64-byte report nonce; freshly drawn from crypto/rand when empty")
}

// Lets this command select the pre-v6.10 provider attribute.
func addSvsmAttributeFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(&svsmAttribute, "svsm-attribute", false,
		"use the legacy configfs-tsm svsm attribute, required by pre v6.10 kernels")
}

// Lets this command specify the EK public key algorithm.
func addPublicKeyAlgoFlag(cmd *cobra.Command) {
	f := algoFlag{&keyAlgo, []tpm2.Algorithm{tpm2.AlgRSA, tpm2.AlgECC}}
	cmd.PersistentFlags().Var(&f, "algo", "EK public key algorithm: "+f.Allowed())
}

// Lets this command pick how the decoded report is displayed.
func addFormatFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&format, "format", "none",
		"how to print the decoded report <none|textproto>")
}
