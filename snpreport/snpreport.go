// Package snpreport decodes the SEV-SNP attestation report returned
// through the configfs-tsm outblob.
package snpreport

import (
	"fmt"

	"github.com/google/go-sev-guest/abi"
	spb "github.com/google/go-sev-guest/proto/sevsnp"
	"google.golang.org/protobuf/encoding/prototext"
)

// MalformedError is returned when the raw bytes do not carry the
// fixed-size SEV-SNP ATTESTATION_REPORT layout. It usually indicates
// a kernel/SVSM interface version mismatch rather than tampering.
type MalformedError struct {
	Size int
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed attestation report (%d bytes): %v", e.Size, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Report is a decoded SEV-SNP attestation report. The raw bytes are
// retained so the report round-trips losslessly through decoding.
type Report struct {
	raw   []byte
	proto *spb.Report
}

// Decode parses the vendor ATTESTATION_REPORT structure. It performs
// no device access and no signature verification.
func Decode(raw []byte) (*Report, error) {
	if len(raw) < abi.ReportSize {
		return nil, &MalformedError{
			Size: len(raw),
			Err:  fmt.Errorf("shorter than the %d byte report structure", abi.ReportSize),
		}
	}
	proto, err := abi.ReportToProto(raw)
	if err != nil {
		return nil, &MalformedError{Size: len(raw), Err: err}
	}
	r := &Report{raw: make([]byte, len(raw)), proto: proto}
	copy(r.raw, raw)
	return r, nil
}

// Raw returns the exact bytes the report was decoded from.
func (r *Report) Raw() []byte {
	return r.raw
}

// Proto returns the decoded report message.
func (r *Report) Proto() *spb.Report {
	return r.proto
}

// ReportData returns the 64-byte REPORT_DATA field, the binding of
// externally supplied data into the signed report.
func (r *Report) ReportData() []byte {
	return r.proto.GetReportData()
}

// String renders the decoded report as textproto for debug output.
func (r *Report) String() string {
	out, err := prototext.MarshalOptions{Multiline: true}.Marshal(r.proto)
	if err != nil {
		return fmt.Sprintf("unprintable report: %v", err)
	}
	return string(out)
}
