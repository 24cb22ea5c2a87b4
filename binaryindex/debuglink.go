package binaryindex

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/cloudnepal/wachy/wacherr"
)

// loadDebugLinkCompanion looks for a .gnu_debuglink section in the main
// executable and, if present, opens and validates the companion file it
// names (spec.md §4.A). The companion is searched for next to the binary
// and under /usr/lib/debug, mirroring original_source/src/program.rs. A
// companion whose CRC32 does not match the recorded value is a startup
// failure (DebugLinkCRCMismatch); a missing .gnu_debuglink section is not
// an error here, it just means there is no companion to try.
func (idx *Index) loadDebugLinkCompanion() (*elf.File, *mappedFile, error) {
	sec := idx.mainELF.Section(".gnu_debuglink")
	if sec == nil {
		return nil, nil, nil
	}

	data, err := sec.Data()
	if err != nil {
		return nil, nil, wacherr.Errorf(wacherr.BinaryParseFailed, err)
	}

	name, wantCRC, err := parseDebugLink(data)
	if err != nil {
		return nil, nil, wacherr.Errorf(wacherr.BinaryParseFailed, err)
	}

	dir := filepath.Dir(idx.path)
	candidates := []string{
		filepath.Join(dir, name),
		filepath.Join("/usr/lib/debug", dir, name),
		filepath.Join("/usr/lib/debug", name),
	}

	var companionPath string
	for _, c := range candidates {
		if fileExists(c) {
			companionPath = c
			break
		}
	}
	if companionPath == "" {
		return nil, nil, nil
	}

	gotCRC, err := crc32File(companionPath)
	if err != nil {
		return nil, nil, wacherr.Errorf(wacherr.BinaryOpenFailed, err)
	}
	if gotCRC != wantCRC {
		return nil, nil, wacherr.Errorf(wacherr.DebugLinkCRCMismatch, companionPath)
	}

	mf, err := openMapped(companionPath)
	if err != nil {
		return nil, nil, wacherr.Errorf(wacherr.BinaryOpenFailed, err)
	}

	ef, err := elf.NewFile(mf.reader())
	if err != nil {
		mf.Close()
		return nil, nil, wacherr.Errorf(wacherr.BinaryParseFailed, err)
	}

	return ef, mf, nil
}

// parseDebugLink decodes a .gnu_debuglink section: a NUL-terminated file
// name, zero-padded to the next 4-byte boundary, followed by a 4-byte
// little-endian CRC32 of the named file.
func parseDebugLink(data []byte) (name string, crc uint32, err error) {
	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return "", 0, os.ErrInvalid
	}
	name = string(data[:nul])

	// CRC sits in the last 4 bytes of the (padded) section
	if len(data) < 4 {
		return "", 0, os.ErrInvalid
	}
	crc = binary.LittleEndian.Uint32(data[len(data)-4:])
	return name, crc, nil
}

func crc32File(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := crc32.NewIEEE()
	buf := make([]byte, 64*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}
	return h.Sum32(), nil
}
