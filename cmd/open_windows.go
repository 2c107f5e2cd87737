//go:build windows

package cmd

import (
	"errors"
	"io"
)

// SVSM report requests go through the Linux configfs-tsm interface,
// so there is nothing to open elsewhere.
func openImpl() (io.ReadWriteCloser, error) {
	return nil, errors.New("SVSM vTPM attestation requires the Linux configfs-tsm interface")
}
