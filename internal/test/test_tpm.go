// Package test provides TPM helpers for this repository's tests.
package test

import (
	"fmt"
	"io"
	"math"
	"testing"

	"github.com/google/go-tpm-tools/simulator"
	"github.com/google/go-tpm/legacy/tpm2"
	"github.com/google/go-tpm/tpmutil"
)

// GetTPM returns a simulated TPM for testing. The simulator seeds are
// randomized per instance, so derived keys differ across tests but
// are stable within one instance.
func GetTPM(tb testing.TB) io.ReadWriteCloser {
	tb.Helper()
	sim, err := simulator.Get()
	if err != nil {
		tb.Fatalf("simulator initialization failed: %v", err)
	}
	return sim
}

// CheckedClose closes the TPM and fails the test if any transient
// handles or sessions were leaked.
func CheckedClose(tb testing.TB, rwc io.ReadWriteCloser) {
	tb.Helper()
	for _, handleType := range []tpm2.HandleType{
		tpm2.HandleTypeLoadedSession,
		tpm2.HandleTypeSavedSession,
		tpm2.HandleTypeTransient,
	} {
		handles, err := Handles(rwc, handleType)
		if err != nil {
			tb.Errorf("failed to enumerate handles of type 0x%x: %v", handleType, err)
			continue
		}
		if len(handles) != 0 {
			tb.Errorf("test leaked %d handles of type 0x%x: %v", len(handles), handleType, handles)
		}
	}
	if err := rwc.Close(); err != nil {
		tb.Errorf("failed to close TPM: %v", err)
	}
}

// Handles returns all handles within the TPM rw of type handleType.
func Handles(rw io.ReadWriter, handleType tpm2.HandleType) ([]tpmutil.Handle, error) {
	// Handle type is determined by the most-significant octet (MSO) of the property.
	property := uint32(handleType) << 24

	vals, moreData, err := tpm2.GetCapability(rw, tpm2.CapabilityHandles, math.MaxUint32, property)
	if err != nil {
		return nil, err
	}
	if moreData {
		return nil, fmt.Errorf("tpm2.GetCapability() should never return moreData==true for tpm2.CapabilityHandles")
	}
	handles := make([]tpmutil.Handle, len(vals))
	for i, v := range vals {
		handle, ok := v.(tpmutil.Handle)
		if !ok {
			return nil, fmt.Errorf("unable to assert type tpmutil.Handle of value %v", v)
		}
		handles[i] = handle
	}
	return handles, nil
}
