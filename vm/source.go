package vm

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// Source is the out-of-scope, interface-only file backing spec.md keeps
// outside the core: the decoder and binary reader only ever see a byte
// slice through this interface, never a concrete file handle.
type Source interface {
	Bytes() []byte
	Close() error
}

// ByteSource wraps an in-memory byte slice. Used by every test and by any
// embedder that already has the form bytes (e.g. bundled into a binary).
type ByteSource struct {
	data []byte
}

func NewByteSource(data []byte) *ByteSource {
	return &ByteSource{data: data}
}

func (b *ByteSource) Bytes() []byte { return b.data }
func (b *ByteSource) Close() error  { return nil }

// MappedSource memory-maps a form file read-only. This is the host CLI's
// production path; the VM and decoder never import this package's mmap
// dependency directly.
type MappedSource struct {
	file *os.File
	mmap mmap.MMap
}

func NewMappedSource(path string) (*MappedSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &MappedSource{file: f, mmap: m}, nil
}

func (m *MappedSource) Bytes() []byte { return m.mmap }

func (m *MappedSource) Close() error {
	if err := m.mmap.Unmap(); err != nil {
		m.file.Close()
		return err
	}
	return m.file.Close()
}
