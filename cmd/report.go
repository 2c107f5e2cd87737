package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/coconut-svsm/go-vtpm-attest/snpreport"
	"github.com/coconut-svsm/go-vtpm-attest/svsm"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetch the SVSM vTPM attestation report and service manifest",
	Long: `Fetch the SVSM vTPM attestation report and service manifest

Drives the configfs-tsm report interface: a fresh report entry is
created, the provider selector, nonce and vTPM service GUID are
written, and the signed report plus the EK manifest are read back.
The raw report is persisted to --output as an audit artifact.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		reportNonce, err := getNonce()
		if err != nil {
			return err
		}
		resp, err := fetchAndPersist(reportNonce)
		if err != nil {
			return err
		}
		// Decode even when nothing is printed, so an interface
		// version mismatch is caught here and not by a later
		// verification run over the persisted artifact.
		report, err := snpreport.Decode(resp.OutBlob)
		if err != nil {
			return fmt.Errorf("decoding attestation report: %w", err)
		}
		if format == "textproto" {
			fmt.Fprintln(debugOutput(), report.String())
		}
		return nil
	},
}

func getNonce() ([]byte, error) {
	if len(nonce) != 0 {
		fmt.Fprintf(messageOutput(), "Using caller-supplied nonce: %s\n", hex.EncodeToString(nonce))
		return nonce, nil
	}
	fresh := make([]byte, svsm.NonceSize)
	if _, err := rand.Read(fresh); err != nil {
		return nil, fmt.Errorf("generating report nonce: %w", err)
	}
	fmt.Fprintf(messageOutput(), "Generated report nonce: %s\n", hex.EncodeToString(fresh))
	return fresh, nil
}

// fetchAndPersist runs the report request and writes the raw report
// (and optionally the manifest) to disk before anything else can
// fail, so the artifact is available for offline diagnosis even when
// a later stage rejects the attestation.
func fetchAndPersist(reportNonce []byte) (*svsm.Response, error) {
	if format != "none" && format != "textproto" {
		return nil, fmt.Errorf("unknown report format %q", format)
	}
	configfs, err := openConfigfs()
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(messageOutput(), "Requesting vTPM attestation report from the SVSM via configfs-tsm")
	resp, err := svsm.GetReport(configfs, &svsm.Request{
		Nonce:               reportNonce,
		LegacySvsmAttribute: svsmAttribute,
	})
	if err != nil {
		return nil, fmt.Errorf("requesting attestation report: %w", err)
	}
	if err := os.WriteFile(output, resp.OutBlob, 0644); err != nil {
		return nil, fmt.Errorf("persisting raw report: %w", err)
	}
	fmt.Fprintf(messageOutput(), "Wrote raw report (%d bytes) to %s\n", len(resp.OutBlob), output)
	if manifestOutput != "" {
		if err := os.WriteFile(manifestOutput, resp.ManifestBlob, 0644); err != nil {
			return nil, fmt.Errorf("persisting manifest: %w", err)
		}
		fmt.Fprintf(messageOutput(), "Wrote vTPM service manifest (%d bytes) to %s\n", len(resp.ManifestBlob), manifestOutput)
	}
	return resp, nil
}

func init() {
	RootCmd.AddCommand(reportCmd)
	addNonceFlag(reportCmd)
	addSvsmAttributeFlag(reportCmd)
	addReportOutputFlag(reportCmd)
	addManifestOutputFlag(reportCmd)
	addFormatFlag(reportCmd)
}
