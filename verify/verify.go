// Package verify cross-checks an SVSM vTPM attestation against
// locally derived values.
package verify

import (
	"bytes"
	"crypto/sha512"
	"errors"

	"github.com/coconut-svsm/go-vtpm-attest/snpreport"
)

// ErrKeyMismatch means the EK manifest the report vouches for is not
// the key the live vTPM derives from the default template. The
// attested identity cannot be trusted.
var ErrKeyMismatch = errors.New("vTPM service manifest does not match the EK derived on the device")

// ErrFreshnessMismatch means REPORT_DATA is not the digest of this
// run's nonce and the retrieved manifest: either the report is a
// replay or it was signed over a different manifest.
var ErrFreshnessMismatch = errors.New("report REPORT_DATA does not match SHA-512(nonce || manifest)")

// Result records the outcome of the two independent checks. Both
// must pass for the attestation to be trusted.
type Result struct {
	// KeyMatch is true when the manifest and the device EK public
	// area are byte-identical.
	KeyMatch bool
	// FreshnessMatch is true when SHA-512(nonce || manifest) equals
	// the report's REPORT_DATA.
	FreshnessMatch bool
}

// Verified reports whether both checks passed.
func (r Result) Verified() bool {
	return r.KeyMatch && r.FreshnessMatch
}

// Err returns nil for a verified result, and otherwise the mismatch
// errors for the failed checks.
func (r Result) Err() error {
	var errs []error
	if !r.KeyMatch {
		errs = append(errs, ErrKeyMismatch)
	}
	if !r.FreshnessMatch {
		errs = append(errs, ErrFreshnessMismatch)
	}
	return errors.Join(errs...)
}

// BindingDigest computes the digest the SVSM places in REPORT_DATA:
// SHA-512 over the nonce immediately followed by the manifest bytes.
// This corresponds to attest_single_service() in the SVSM kernel.
func BindingDigest(nonce, manifest []byte) []byte {
	h := sha512.New()
	h.Write(nonce)
	h.Write(manifest)
	return h.Sum(nil)
}

// Attestation runs both checks over already-retrieved data. It is a
// pure computation: no device access, no retries. Key identity is
// checked against deviceEKPublic while the freshness binding is
// recomputed from the manifest itself, so the two checks stay
// independent.
func Attestation(nonce, manifest []byte, report *snpreport.Report, deviceEKPublic []byte) Result {
	return Result{
		KeyMatch:       bytes.Equal(manifest, deviceEKPublic),
		FreshnessMatch: bytes.Equal(BindingDigest(nonce, manifest), report.ReportData()),
	}
}
