package test

import (
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/google/go-configfs-tsm/configfs/configfsi"
)

// FakeTsmEntry records the state of one fake report entry.
type FakeTsmEntry struct {
	// Attrs holds the attribute values written so far.
	Attrs map[string][]byte
	// Generation counts attribute writes, like the kernel does.
	Generation uint64
	// Removed is set once the entry has been torn down.
	Removed bool
}

// FakeTsm is a configfs-tsm client serving canned report responses,
// for testing report requests without /sys/kernel/config.
type FakeTsm struct {
	// MakeOutBlob produces the outblob from the written inputs.
	MakeOutBlob func(entry *FakeTsmEntry) ([]byte, error)
	// ManifestBlob is returned for manifestblob reads.
	ManifestBlob []byte

	// MkdirErr fails entry creation when set.
	MkdirErr error
	// WriteErr fails the write of the named attributes.
	WriteErr map[string]error
	// ReadErr fails the read of the named attributes.
	ReadErr map[string]error
	// ExtraGeneration simulates an interfering writer by inflating
	// the generation reported back.
	ExtraGeneration uint64

	// Entry is the single entry created through MkdirTemp.
	Entry *FakeTsmEntry
}

var _ configfsi.Client = (*FakeTsm)(nil)

var reportDir = path.Join(configfsi.TsmPrefix, "report")

// MkdirTemp creates the fake report entry.
func (f *FakeTsm) MkdirTemp(dir, pattern string) (string, error) {
	if f.MkdirErr != nil {
		return "", f.MkdirErr
	}
	if dir != reportDir {
		return "", fmt.Errorf("unexpected report entry directory %q, want %q", dir, reportDir)
	}
	if f.Entry != nil {
		return "", fmt.Errorf("fake supports a single report entry")
	}
	f.Entry = &FakeTsmEntry{Attrs: make(map[string][]byte)}
	return path.Join(dir, pattern+"4025893007"), nil
}

// WriteFile records an attribute write and bumps the generation.
func (f *FakeTsm) WriteFile(name string, contents []byte) error {
	attr, err := f.attribute(name)
	if err != nil {
		return err
	}
	if err := f.WriteErr[attr]; err != nil {
		return err
	}
	f.Entry.Attrs[attr] = append([]byte{}, contents...)
	f.Entry.Generation++
	return nil
}

// ReadFile serves the output attributes.
func (f *FakeTsm) ReadFile(name string) ([]byte, error) {
	attr, err := f.attribute(name)
	if err != nil {
		return nil, err
	}
	if err := f.ReadErr[attr]; err != nil {
		return nil, err
	}
	switch attr {
	case "generation":
		return []byte(strconv.FormatUint(f.Entry.Generation+f.ExtraGeneration, 10)), nil
	case "outblob":
		if f.MakeOutBlob == nil {
			return nil, os.ErrNotExist
		}
		return f.MakeOutBlob(f.Entry)
	case "manifestblob":
		return append([]byte{}, f.ManifestBlob...), nil
	case "provider":
		return []byte("fake\n"), nil
	}
	return nil, os.ErrNotExist
}

// ReadDir is not used by report entries.
func (f *FakeTsm) ReadDir(dirname string) ([]os.DirEntry, error) {
	return nil, fmt.Errorf("fake report subsystem does not support ReadDir")
}

// RemoveAll tears the entry down.
func (f *FakeTsm) RemoveAll(p string) error {
	if f.Entry == nil || f.Entry.Removed {
		return os.ErrNotExist
	}
	f.Entry.Removed = true
	return nil
}

func (f *FakeTsm) attribute(name string) (string, error) {
	if f.Entry == nil || f.Entry.Removed {
		return "", os.ErrNotExist
	}
	return path.Base(name), nil
}
