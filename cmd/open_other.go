//go:build !windows

package cmd

import (
	"io"
	"os"

	"github.com/google/go-tpm/legacy/tpm2"
)

var tpmPath string

func init() {
	RootCmd.PersistentFlags().StringVar(&tpmPath, "tpm-path", "",
		"path to TPM device (defaults to $TPM_DEVICE, then /dev/tpmrm0, then /dev/tpm0)")
}

// On Linux, the device path comes from the flag, then the TPM_DEVICE
// environment variable, then the resource-managed device with a
// fallback to the raw one.
func openImpl() (io.ReadWriteCloser, error) {
	path := tpmPath
	if path == "" {
		path = os.Getenv("TPM_DEVICE")
	}
	if path == "" {
		rwc, err := tpm2.OpenTPM("/dev/tpmrm0")
		if os.IsNotExist(err) {
			rwc, err = tpm2.OpenTPM("/dev/tpm0")
		}
		return rwc, err
	}
	return tpm2.OpenTPM(path)
}
