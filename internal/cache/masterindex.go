package cache

import (
	"fmt"
	"os"

	"github.com/rt4serv/rt4serv/internal/buf"
)

// MasterIndex is the process-wide, write-once-at-startup summary of
// every archive's checksum and version, served verbatim for the
// (archive=255, group=255) JS5 request.
type MasterIndex struct {
	bytes []byte
}

// Bytes returns the serialized master index payload.
func (m *MasterIndex) Bytes() []byte { return m.bytes }

// ArchiveChecksum returns the checksum recorded for archive, as used
// by the login handshake's per-archive verification loop. The second
// return value is false if archive is out of range.
func (m *MasterIndex) ArchiveChecksum(archive int) (uint32, bool) {
	const recordSize = 8 // checksum:u32, version:u32
	offset := archive * recordSize
	if archive < 0 || offset+4 > len(m.bytes) {
		return 0, false
	}
	b := m.bytes[offset : offset+4]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}

// BuildMasterIndex summarizes every archive's index file into one
// {checksum:u32, version:u32} record each, in archive order. An archive
// whose index file is absent contributes a zero record, matching the
// cache store's own degraded-service handling of missing index files.
func BuildMasterIndex(dir string) (*MasterIndex, error) {
	out := buf.New(0)
	for archive := 0; archive < NumArchives; archive++ {
		raw, err := os.ReadFile(fmt.Sprintf("%s/main_file_cache.idx%d", dir, archive))
		if err != nil {
			out.WriteIntBE(0)
			out.WriteIntBE(0)
			continue
		}
		checksum := CRC32B(raw)
		version := uint32(len(raw) / indexEntrySize)
		out.WriteIntBE(int32(checksum))
		out.WriteIntBE(int32(version))
	}
	return &MasterIndex{bytes: out.Bytes()}, nil
}
