package cmd

import (
	"fmt"

	"github.com/coconut-svsm/go-vtpm-attest/ek"
	"github.com/coconut-svsm/go-vtpm-attest/snpreport"
	"github.com/coconut-svsm/go-vtpm-attest/verify"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify that the SVSM vTPM's attested EK is genuine",
	Long: `Verify that the SVSM vTPM's attested EK is genuine

Runs the full pipeline: fetch the attestation report and EK manifest
through configfs-tsm, decode the SEV-SNP report, derive the EK on the
live vTPM from the TCG default template, and check that

  1. the manifest equals the derived EK public area, and
  2. REPORT_DATA equals SHA-512(nonce || manifest).

The raw report is persisted to --output even when verification fails.
This does not verify the report's AMD signature chain; pair it with a
report verifier when the chain of trust has to be established.`,
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
		report, err := snpreport.Decode(resp.OutBlob)
		if err != nil {
			return fmt.Errorf("decoding attestation report: %w", err)
		}
		if format == "textproto" {
			fmt.Fprintln(debugOutput(), report.String())
		}

		template, err := ek.Template(keyAlgo)
		if err != nil {
			return fmt.Errorf("building EK template: %w", err)
		}
		rwc, err := openTpm()
		if err != nil {
			return err
		}
		defer rwc.Close()
		fmt.Fprintf(messageOutput(), "Deriving the %s EK on the vTPM from the TCG default template\n", algos[keyAlgo])
		key, err := ek.NewEndorsementKey(rwc, template)
		if err != nil {
			return fmt.Errorf("deriving device EK: %w", err)
		}
		defer key.Close()
		deviceEKPublic, err := key.PublicAreaBytes()
		if err != nil {
			return fmt.Errorf("encoding device EK public area: %w", err)
		}

		result := verify.Attestation(reportNonce, resp.ManifestBlob, report, deviceEKPublic)
		if result.KeyMatch {
			fmt.Fprintln(messageOutput(), "EK manifest matches the EK derived on the vTPM")
		}
		if result.FreshnessMatch {
			fmt.Fprintln(messageOutput(), "REPORT_DATA matches SHA-512(nonce || manifest)")
		}
		if err := result.Err(); err != nil {
			return fmt.Errorf("attestation verification failed: %w", err)
		}
		fmt.Fprintln(messageOutput(), "vTPM attestation verified")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(verifyCmd)
	addNonceFlag(verifyCmd)
	addSvsmAttributeFlag(verifyCmd)
	addReportOutputFlag(verifyCmd)
	addManifestOutputFlag(verifyCmd)
	addFormatFlag(verifyCmd)
	addPublicKeyAlgoFlag(verifyCmd)
}
