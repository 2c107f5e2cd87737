package ek

import (
	"fmt"
	"io"

	"github.com/google/go-tpm/legacy/tpm2"
	"github.com/google/go-tpm/tpmutil"
)

// TransportError reports a failure to derive or read back a key from
// the TPM command channel.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tpm %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Key wraps a primary key loaded in the TPM. Callers must Close the
// key when done so the transient handle is flushed.
type Key struct {
	rw      io.ReadWriter
	handle  tpmutil.Handle
	pubArea tpm2.Public
}

// NewEndorsementKey creates a primary key from template under the
// Endorsement hierarchy. The hierarchy is authorized with an empty
// password, as the SVSM vTPM provisions no endorsement auth.
func NewEndorsementKey(rw io.ReadWriter, template tpm2.Public) (*Key, error) {
	return newPrimaryKey(rw, tpm2.HandleEndorsement, template)
}

func newPrimaryKey(rw io.ReadWriter, hierarchy tpmutil.Handle, template tpm2.Public) (key *Key, err error) {
	handle, pubArea, _, _, _, _, err :=
		tpm2.CreatePrimaryEx(rw, hierarchy, tpm2.PCRSelection{}, "", "", template)
	if err != nil {
		return nil, &TransportError{Op: "CreatePrimary", Err: err}
	}
	defer func() {
		if err != nil {
			tpm2.FlushContext(rw, handle)
		}
	}()

	key = &Key{rw: rw, handle: handle}
	if key.pubArea, err = tpm2.DecodePublic(pubArea); err != nil {
		return nil, &TransportError{Op: "DecodePublic", Err: err}
	}
	if !key.pubArea.MatchesTemplate(template) {
		return nil, &TransportError{Op: "CreatePrimary", Err: fmt.Errorf("created key does not match template")}
	}
	return key, nil
}

// Handle allows this key to be used directly with other go-tpm commands.
func (k *Key) Handle() tpmutil.Handle {
	return k.handle
}

// PublicArea exposes the key's decoded public area.
func (k *Key) PublicArea() tpm2.Public {
	return k.pubArea
}

// PublicAreaBytes returns the marshalled TPMT_PUBLIC of the key. This
// is the encoding the SVSM places in the vTPM service manifest, so the
// result can be byte-compared against a retrieved manifest.
func (k *Key) PublicAreaBytes() ([]byte, error) {
	encoded, err := k.pubArea.Encode()
	if err != nil {
		return nil, &TransportError{Op: "EncodePublic", Err: err}
	}
	return encoded, nil
}

// Close should be called when the key is no longer needed. This is
// important to do as most TPMs can only have a small number of keys
// simultaneously loaded.
func (k *Key) Close() {
	tpm2.FlushContext(k.rw, k.handle)
}
