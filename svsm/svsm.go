// Package svsm retrieves SVSM service attestation reports through the
// Linux configfs-tsm report interface.
//
// A report request is a uniquely named entry under
// /sys/kernel/config/tsm/report. All input attributes must be written
// before any output attribute is read, and the entry's generation
// number tells us whether another writer raced with ours.
package svsm

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/google/go-configfs-tsm/configfs/configfsi"
	"github.com/google/logger"
	"github.com/google/uuid"
)

const (
	// ServiceProvider is the service_provider attribute value that
	// routes a report request to the SVSM (Linux v6.10+).
	ServiceProvider = "svsm"

	// VTPMServiceGUID identifies the SVSM vTPM attestation service.
	// Specified by the SVSM reference (AMD document 58019).
	VTPMServiceGUID = "c476f1eb-0123-45a5-9641-b4e7dde5bfe3"

	// NonceSize is the exact inblob size the SVSM attestation
	// protocol hashes into the report's REPORT_DATA field.
	NonceSize = 64

	// maxPrivilegeLevel is the largest SEV-SNP VMPL.
	maxPrivilegeLevel = 3
)

// VTPMServiceUUID is the UUID representation of VTPMServiceGUID.
var VTPMServiceUUID = uuid.MustParse(VTPMServiceGUID)

// ErrProviderConflict is returned when a request selects both the
// legacy svsm attribute and an explicit service provider name. The
// two forms belong to different kernel generations and are mutually
// exclusive.
var ErrProviderConflict = errors.New("legacy svsm attribute and service_provider are mutually exclusive")

// ContextError reports a failure to create the report entry that
// backs a request.
type ContextError struct {
	Err error
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("creating tsm report entry: %v", e.Err)
}

func (e *ContextError) Unwrap() error { return e.Err }

// AttributeError reports an I/O failure on a single report attribute.
// Requests are not retried on attribute errors: the kernel interface
// gives no idempotency guarantee within one entry.
type AttributeError struct {
	Attribute string
	Op        string // "write" or "read"
	Err       error
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("%s of tsm report attribute %q: %v", e.Op, e.Attribute, e.Err)
}

func (e *AttributeError) Unwrap() error { return e.Err }

// GenerationError means the entry's write generation moved past the
// writes this request performed, so the outblob may belong to a
// different writer's inputs.
type GenerationError struct {
	Got  uint64
	Want uint64
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("tsm report entry generation is %d, expected %d: entry shared with another writer", e.Got, e.Want)
}

// Request carries the inputs for one SVSM report request.
type Request struct {
	// Nonce is mixed into the report's REPORT_DATA as
	// SHA-512(Nonce || manifest). Must be exactly NonceSize bytes
	// and should be freshly drawn from a CSPRNG per request.
	Nonce []byte

	// LegacySvsmAttribute selects the boolean `svsm` attribute used
	// by pre-v6.10 kernels instead of `service_provider`.
	LegacySvsmAttribute bool

	// ServiceProvider overrides the provider name written to
	// `service_provider`. Defaults to ServiceProvider. Must be empty
	// when LegacySvsmAttribute is set.
	ServiceProvider string

	// ServiceGUID selects the attestation service. Defaults to
	// VTPMServiceGUID.
	ServiceGUID string

	// ServiceManifestVersion, if non-empty, is written to
	// `service_manifest_version`. Kernels before v6.10 do not have
	// the attribute, so it is only written when requested.
	ServiceManifestVersion string

	// Privilege, if non-nil, asks for a report at the given VMPL.
	Privilege *uint
}

// Response holds the two outputs of a report request.
type Response struct {
	// OutBlob is the raw signed attestation report.
	OutBlob []byte
	// ManifestBlob is the service manifest the report vouches for;
	// for the vTPM service this is the marshalled EK public area.
	ManifestBlob []byte
}

func (r *Request) provider() (attribute, value string, err error) {
	if r.LegacySvsmAttribute {
		if r.ServiceProvider != "" {
			return "", "", ErrProviderConflict
		}
		return "svsm", "1", nil
	}
	if r.ServiceProvider != "" {
		return "service_provider", r.ServiceProvider, nil
	}
	return "service_provider", ServiceProvider, nil
}

func (r *Request) validate() error {
	if _, _, err := r.provider(); err != nil {
		return err
	}
	if len(r.Nonce) != NonceSize {
		return fmt.Errorf("nonce is %d bytes, the svsm inblob must be exactly %d", len(r.Nonce), NonceSize)
	}
	guid := r.ServiceGUID
	if guid == "" {
		guid = VTPMServiceGUID
	}
	if _, err := uuid.Parse(guid); err != nil {
		return fmt.Errorf("service guid %q: %w", guid, err)
	}
	if r.Privilege != nil && *r.Privilege > maxPrivilegeLevel {
		return fmt.Errorf("privilege level %d out of range [0, %d]", *r.Privilege, maxPrivilegeLevel)
	}
	return nil
}

// GetReport drives one report request through client and returns the
// raw report and manifest. The backing entry is removed on every
// return path, success or failure.
func GetReport(client configfsi.Client, req *Request) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	entryPath, err := client.MkdirTemp(path.Join(configfsi.TsmPrefix, "report"), "vtpm")
	if err != nil {
		return nil, &ContextError{Err: err}
	}
	logger.V(1).Infof("created tsm report entry %s", entryPath)
	defer func() {
		if err := client.RemoveAll(entryPath); err != nil {
			logger.Warningf("failed to remove tsm report entry %s: %v", entryPath, err)
		}
	}()

	writes := uint64(0)
	writeAttr := func(attribute, value string) error {
		if err := client.WriteFile(path.Join(entryPath, attribute), []byte(value)); err != nil {
			return &AttributeError{Attribute: attribute, Op: "write", Err: err}
		}
		logger.V(2).Infof("wrote tsm report attribute %q", attribute)
		writes++
		return nil
	}
	readAttr := func(attribute string) ([]byte, error) {
		data, err := client.ReadFile(path.Join(entryPath, attribute))
		if err != nil {
			return nil, &AttributeError{Attribute: attribute, Op: "read", Err: err}
		}
		logger.V(2).Infof("read %d bytes from tsm report attribute %q", len(data), attribute)
		return data, nil
	}

	providerAttr, providerValue, err := req.provider()
	if err != nil {
		return nil, err
	}
	if err := writeAttr(providerAttr, providerValue); err != nil {
		return nil, err
	}
	if err := writeAttr("inblob", string(req.Nonce)); err != nil {
		return nil, err
	}
	guid := req.ServiceGUID
	if guid == "" {
		guid = VTPMServiceGUID
	}
	if err := writeAttr("service_guid", guid); err != nil {
		return nil, err
	}
	if req.ServiceManifestVersion != "" {
		if err := writeAttr("service_manifest_version", req.ServiceManifestVersion); err != nil {
			return nil, err
		}
	}
	if req.Privilege != nil {
		if err := writeAttr("privlevel", strconv.FormatUint(uint64(*req.Privilege), 10)); err != nil {
			return nil, err
		}
	}

	outBlob, err := readAttr("outblob")
	if err != nil {
		return nil, err
	}
	// Each attribute write bumps the entry's generation and a stale
	// generation means the outblob was produced from someone else's
	// inputs. Check before trusting either output blob.
	genData, err := readAttr("generation")
	if err != nil {
		return nil, err
	}
	generation, err := strconv.ParseUint(string(bytes.TrimSpace(genData)), 10, 64)
	if err != nil {
		return nil, &AttributeError{Attribute: "generation", Op: "read", Err: err}
	}
	if generation != writes {
		return nil, &GenerationError{Got: generation, Want: writes}
	}
	manifestBlob, err := readAttr("manifestblob")
	if err != nil {
		return nil, err
	}

	return &Response{OutBlob: outBlob, ManifestBlob: manifestBlob}, nil
}
