package cmd

import (
	"fmt"
	"io"

	"github.com/google/go-configfs-tsm/configfs/configfsi"
	"github.com/google/go-configfs-tsm/configfs/linuxtsm"
)

// ExternalTPM can be set to run commands against a TPM initialized by
// an external package (like the simulator). Setting this value will
// make all vtpmattest commands run against it, and will prevent the
// cmd package from closing the TPM. Setting this value and closing
// the TPM must be managed by the external package.
var ExternalTPM io.ReadWriter

// ExternalConfigfs can be set to serve report requests from a fake
// configfs-tsm client instead of /sys/kernel/config/tsm.
var ExternalConfigfs configfsi.Client

// extTPMWrapper wraps ExternalTPM to keep commands from closing the
// underlying device.
type extTPMWrapper struct {
	io.ReadWriter
}

func (et extTPMWrapper) Close() error {
	return nil
}

func openTpm() (io.ReadWriteCloser, error) {
	if ExternalTPM != nil {
		return extTPMWrapper{ExternalTPM}, nil
	}
	rwc, err := openImpl()
	if err != nil {
		return nil, fmt.Errorf("connecting to TPM: %w", err)
	}
	return rwc, nil
}

func openConfigfs() (configfsi.Client, error) {
	if ExternalConfigfs != nil {
		return ExternalConfigfs, nil
	}
	client, err := linuxtsm.MakeClient()
	if err != nil {
		return nil, fmt.Errorf("connecting to configfs-tsm: %w", err)
	}
	return client, nil
}
