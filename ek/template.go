// Package ek builds the TCG default Endorsement Key templates and
// derives the corresponding primary key from a live (v)TPM.
package ek

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/go-tpm/legacy/tpm2"
	"github.com/google/go-tpm/tpmutil"
)

// UnsupportedAlgorithmError is returned by Template for algorithms
// without a published default EK profile.
type UnsupportedAlgorithmError struct {
	Alg tpm2.Algorithm
}

func (e *UnsupportedAlgorithmError) Error() string {
	return fmt.Sprintf("no default EK template for algorithm 0x%x (supported: RSA, ECC)", uint16(e.Alg))
}

// Calculations from Credential_Profile_EK_V2.0, section 2.1.5.3 - authPolicy
func defaultEKAuthPolicy() []byte {
	buf, err := tpmutil.Pack(tpm2.CmdPolicySecret, tpm2.HandleEndorsement)
	if err != nil {
		panic(err)
	}
	digest1 := sha256.Sum256(append(make([]byte, 32), buf...))
	// We would normally append the policy buffer to digest1, but the
	// policy buffer is empty for the default Auth Policy.
	digest2 := sha256.Sum256(digest1[:])
	return digest2[:]
}

func defaultEKAttributes() tpm2.KeyProp {
	// The EK is a storage key that must use session-based authorization.
	return (tpm2.FlagStorageDefault | tpm2.FlagAdminWithPolicy) & ^tpm2.FlagUserWithAuth
}

func defaultSymScheme() *tpm2.SymScheme {
	return &tpm2.SymScheme{
		Alg:     tpm2.AlgAES,
		KeyBits: 128,
		Mode:    tpm2.AlgCFB,
	}
}

func defaultRSADecrypt() *tpm2.RSAParams {
	return &tpm2.RSAParams{
		Symmetric:  defaultSymScheme(),
		KeyBits:    2048,
		ModulusRaw: make([]byte, 256), // public.unique must be all zeros
	}
}

func defaultECCDecrypt() *tpm2.ECCParams {
	return &tpm2.ECCParams{
		Symmetric: defaultSymScheme(),
		CurveID:   tpm2.CurveNISTP256,
		Point: tpm2.ECPoint{
			XRaw: make([]byte, 32),
			YRaw: make([]byte, 32),
		},
		KDF: &tpm2.KDFScheme{
			Alg: tpm2.AlgNull,
		},
	}
}

// DefaultEKTemplateRSA returns the default Endorsement Key (EK) template as
// specified in Credential_Profile_EK_V2.0, section 2.1.5.1 - authPolicy.
// https://trustedcomputinggroup.org/wp-content/uploads/Credential_Profile_EK_V2.0_R14_published.pdf
func DefaultEKTemplateRSA() tpm2.Public {
	return tpm2.Public{
		Type:          tpm2.AlgRSA,
		NameAlg:       tpm2.AlgSHA256,
		Attributes:    defaultEKAttributes(),
		AuthPolicy:    defaultEKAuthPolicy(),
		RSAParameters: defaultRSADecrypt(),
	}
}

// DefaultEKTemplateECC returns the default Endorsement Key (EK) template as
// specified in Credential_Profile_EK_V2.0, section 2.1.5.2 - authPolicy.
// https://trustedcomputinggroup.org/wp-content/uploads/Credential_Profile_EK_V2.0_R14_published.pdf
func DefaultEKTemplateECC() tpm2.Public {
	return tpm2.Public{
		Type:          tpm2.AlgECC,
		NameAlg:       tpm2.AlgSHA256,
		Attributes:    defaultEKAttributes(),
		AuthPolicy:    defaultEKAuthPolicy(),
		ECCParameters: defaultECCDecrypt(),
	}
}

// Template returns the default EK template for the given asymmetric
// algorithm. The result depends only on the algorithm: repeated calls
// yield bit-identical templates.
func Template(alg tpm2.Algorithm) (tpm2.Public, error) {
	switch alg {
	case tpm2.AlgRSA:
		return DefaultEKTemplateRSA(), nil
	case tpm2.AlgECC:
		return DefaultEKTemplateECC(), nil
	default:
		return tpm2.Public{}, &UnsupportedAlgorithmError{Alg: alg}
	}
}
