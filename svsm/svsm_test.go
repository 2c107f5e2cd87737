package svsm

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/coconut-svsm/go-vtpm-attest/internal/test"
	"github.com/google/go-configfs-tsm/configfs/configfsi"
	"github.com/google/go-configfs-tsm/configfs/faketsm"
)

var (
	testNonce    = bytes.Repeat([]byte{0xff}, NonceSize)
	testOutBlob  = []byte("raw attestation report bytes")
	testManifest = []byte("marshalled ek public area")
)

func fakeClient() *test.FakeTsm {
	return &test.FakeTsm{
		MakeOutBlob: func(*test.FakeTsmEntry) ([]byte, error) {
			return testOutBlob, nil
		},
		ManifestBlob: testManifest,
	}
}

func TestGetReportLegacyAttribute(t *testing.T) {
	client := fakeClient()
	resp, err := GetReport(client, &Request{Nonce: testNonce, LegacySvsmAttribute: true})
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if !bytes.Equal(resp.OutBlob, testOutBlob) {
		t.Errorf("OutBlob = %q, want %q", resp.OutBlob, testOutBlob)
	}
	if !bytes.Equal(resp.ManifestBlob, testManifest) {
		t.Errorf("ManifestBlob = %q, want %q", resp.ManifestBlob, testManifest)
	}

	entry := client.Entry
	if got := entry.Attrs["svsm"]; string(got) != "1" {
		t.Errorf("svsm attribute = %q, want %q", got, "1")
	}
	if _, ok := entry.Attrs["service_provider"]; ok {
		t.Error("legacy request also wrote service_provider")
	}
	if got := entry.Attrs["inblob"]; !bytes.Equal(got, testNonce) {
		t.Errorf("inblob = %x, want the nonce", got)
	}
	if got := entry.Attrs["service_guid"]; string(got) != VTPMServiceGUID {
		t.Errorf("service_guid = %q, want %q", got, VTPMServiceGUID)
	}
	if !entry.Removed {
		t.Error("report entry was not removed after success")
	}
}

// The current interface generation is also exercised through the
// go-configfs-tsm fake, like a v6.11 kernel would serve it.
func TestGetReportServiceProvider(t *testing.T) {
	report := faketsm.Report611(0)
	report.ReadAttr = func(_ *faketsm.ReportEntry, attr string) ([]byte, error) {
		switch attr {
		case "provider":
			return []byte("fake\n"), nil
		case "outblob":
			return testOutBlob, nil
		case "manifestblob":
			return testManifest, nil
		}
		return nil, os.ErrNotExist
	}
	client := &faketsm.Client{Subsystems: map[string]configfsi.Client{"report": report}}

	resp, err := GetReport(client, &Request{Nonce: testNonce, ServiceManifestVersion: "0"})
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if !bytes.Equal(resp.OutBlob, testOutBlob) {
		t.Errorf("OutBlob = %q, want %q", resp.OutBlob, testOutBlob)
	}
	if !bytes.Equal(resp.ManifestBlob, testManifest) {
		t.Errorf("ManifestBlob = %q, want %q", resp.ManifestBlob, testManifest)
	}
}

func TestGetReportOptionalAttributes(t *testing.T) {
	client := fakeClient()
	privilege := uint(3)
	_, err := GetReport(client, &Request{
		Nonce:                  testNonce,
		ServiceManifestVersion: "0",
		Privilege:              &privilege,
	})
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if got := client.Entry.Attrs["service_provider"]; string(got) != ServiceProvider {
		t.Errorf("service_provider = %q, want %q", got, ServiceProvider)
	}
	if got := client.Entry.Attrs["service_manifest_version"]; string(got) != "0" {
		t.Errorf("service_manifest_version = %q, want %q", got, "0")
	}
	if got := client.Entry.Attrs["privlevel"]; string(got) != "3" {
		t.Errorf("privlevel = %q, want %q", got, "3")
	}
}

func TestProviderConflictRejectedBeforeIO(t *testing.T) {
	client := fakeClient()
	client.MkdirErr = errors.New("should never be reached")
	_, err := GetReport(client, &Request{
		Nonce:               testNonce,
		LegacySvsmAttribute: true,
		ServiceProvider:     "svsm",
	})
	if !errors.Is(err, ErrProviderConflict) {
		t.Fatalf("GetReport = %v, want ErrProviderConflict", err)
	}
	if client.Entry != nil {
		t.Error("request with conflicting providers performed I/O")
	}
}

func TestRequestValidation(t *testing.T) {
	badPrivilege := uint(4)
	testcases := []struct {
		name string
		req  *Request
	}{
		{"short nonce", &Request{Nonce: testNonce[:32]}},
		{"long nonce", &Request{Nonce: append([]byte{0}, testNonce...)}},
		{"bad guid", &Request{Nonce: testNonce, ServiceGUID: "not-a-guid"}},
		{"privilege out of range", &Request{Nonce: testNonce, Privilege: &badPrivilege}},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			client := fakeClient()
			if _, err := GetReport(client, tc.req); err == nil {
				t.Error("GetReport accepted an invalid request")
			}
			if client.Entry != nil {
				t.Error("invalid request performed I/O")
			}
		})
	}
}

func TestContextCreationError(t *testing.T) {
	client := fakeClient()
	client.MkdirErr = os.ErrPermission
	_, err := GetReport(client, &Request{Nonce: testNonce})
	var contextErr *ContextError
	if !errors.As(err, &contextErr) {
		t.Fatalf("GetReport = %v, want ContextError", err)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("ContextError does not wrap the cause: %v", err)
	}
}

func TestAttributeErrors(t *testing.T) {
	testcases := []struct {
		name          string
		setup         func(*test.FakeTsm)
		wantAttribute string
		wantOp        string
	}{
		{
			name:          "inblob write",
			setup:         func(f *test.FakeTsm) { f.WriteErr = map[string]error{"inblob": os.ErrPermission} },
			wantAttribute: "inblob",
			wantOp:        "write",
		},
		{
			name:          "outblob read",
			setup:         func(f *test.FakeTsm) { f.ReadErr = map[string]error{"outblob": os.ErrInvalid} },
			wantAttribute: "outblob",
			wantOp:        "read",
		},
		{
			name:          "manifestblob read",
			setup:         func(f *test.FakeTsm) { f.ReadErr = map[string]error{"manifestblob": os.ErrInvalid} },
			wantAttribute: "manifestblob",
			wantOp:        "read",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			client := fakeClient()
			tc.setup(client)
			_, err := GetReport(client, &Request{Nonce: testNonce})
			var attrErr *AttributeError
			if !errors.As(err, &attrErr) {
				t.Fatalf("GetReport = %v, want AttributeError", err)
			}
			if attrErr.Attribute != tc.wantAttribute || attrErr.Op != tc.wantOp {
				t.Errorf("got %s of %q, want %s of %q", attrErr.Op, attrErr.Attribute, tc.wantOp, tc.wantAttribute)
			}
			if !client.Entry.Removed {
				t.Error("report entry leaked after attribute failure")
			}
		})
	}
}

func TestGenerationMismatch(t *testing.T) {
	client := fakeClient()
	client.ExtraGeneration = 1
	_, err := GetReport(client, &Request{Nonce: testNonce})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("GetReport = %v, want GenerationError", err)
	}
	if genErr.Got != genErr.Want+1 {
		t.Errorf("GenerationError = got %d want %d, expected an off-by-one", genErr.Got, genErr.Want)
	}
	if !client.Entry.Removed {
		t.Error("report entry leaked after generation mismatch")
	}
}
