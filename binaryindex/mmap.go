package binaryindex

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// mappedFile owns a memory-mapped file's bytes for the lifetime of the
// session (spec.md §4.A "open the executable by memory-mapping the file").
// It is the single owner of the self-referential arena described in
// spec.md §9: everything handed out of binaryindex is either a copy
// (interned strings) or a value type (SymbolInfo), never a slice into
// this mapping, so mappedFile can be closed independently of its
// consumers.
type mappedFile struct {
	f    *os.File
	data []byte
}

func openMapped(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		f.Close()
		return nil, io.ErrUnexpectedEOF
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &mappedFile{f: f, data: data}, nil
}

// reader returns an io.ReaderAt over the mapped bytes, suitable for
// elf.NewFile.
func (m *mappedFile) reader() io.ReaderAt {
	return bytes.NewReader(m.data)
}

func (m *mappedFile) Close() error {
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
		m.data = nil
	}
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}
