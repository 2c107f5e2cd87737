package ek

import (
	"bytes"
	"testing"

	"github.com/coconut-svsm/go-vtpm-attest/internal/test"
	"github.com/google/go-tpm/legacy/tpm2"
)

func TestNewEndorsementKey(t *testing.T) {
	rwc := test.GetTPM(t)
	defer test.CheckedClose(t, rwc)

	for _, alg := range []tpm2.Algorithm{tpm2.AlgRSA, tpm2.AlgECC} {
		t.Run(algName(alg), func(t *testing.T) {
			template, err := Template(alg)
			if err != nil {
				t.Fatalf("Template failed: %v", err)
			}
			key, err := NewEndorsementKey(rwc, template)
			if err != nil {
				t.Fatalf("NewEndorsementKey failed: %v", err)
			}
			defer key.Close()

			if !key.PublicArea().MatchesTemplate(template) {
				t.Error("derived key does not match the template")
			}
			encoded, err := key.PublicAreaBytes()
			if err != nil {
				t.Fatalf("PublicAreaBytes failed: %v", err)
			}
			decoded, err := tpm2.DecodePublic(encoded)
			if err != nil {
				t.Fatalf("PublicAreaBytes is not a TPMT_PUBLIC: %v", err)
			}
			if !decoded.MatchesTemplate(template) {
				t.Error("marshalled public area does not match the template")
			}
		})
	}
}

// The EK is derived from the endorsement primary seed, so repeated
// derivation from the same template must yield the same key.
func TestEndorsementKeyReproducible(t *testing.T) {
	rwc := test.GetTPM(t)
	defer test.CheckedClose(t, rwc)

	derive := func() []byte {
		key, err := NewEndorsementKey(rwc, DefaultEKTemplateRSA())
		if err != nil {
			t.Fatalf("NewEndorsementKey failed: %v", err)
		}
		defer key.Close()
		encoded, err := key.PublicAreaBytes()
		if err != nil {
			t.Fatalf("PublicAreaBytes failed: %v", err)
		}
		return encoded
	}

	if first, second := derive(), derive(); !bytes.Equal(first, second) {
		t.Error("EK derivation is not reproducible on the same TPM")
	}
}

func algName(alg tpm2.Algorithm) string {
	if alg == tpm2.AlgRSA {
		return "RSA"
	}
	return "ECC"
}
