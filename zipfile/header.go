package zipfile

import (
	"time"

	"github.com/go-students/goflate/internal/cp437"
)

// FileHeader describes one archive member, per spec.md §3's FileHeader
// data model. It is created when a file is added or when the central
// directory is parsed, and is only ever mutated to rewrite FileOffset
// during compaction or to fill in CRC32/CompressedSize after compressing.
type FileHeader struct {
	Name             string
	DOSTime          uint16
	DOSDate          uint16
	Attributes       uint32
	FileOffset       uint32
	UncompressedSize uint32
	CompressedSize   uint32
	CRC32            uint32
	Method           uint16
	BitFlags         uint16
	Version          uint16
	IsPath           bool

	// ModTime, if non-zero, is the sub-second modification time recorded
	// in the NTFS extra field (spec.md §4.5.1/S5); DOSTime/DOSDate are
	// always populated too, for readers that don't understand the extra
	// field.
	ModTime time.Time
}

// extraLen returns the length of the NTFS extra field this header writes:
// 0 for directories, 36 (4-byte header + tag 0x0001's 32-byte body) for
// files, per spec.md §4.5.1.
func (h *FileHeader) extraLen() int {
	if h.IsPath {
		return 0
	}
	return 36
}

// encodeName converts Name to its on-wire code page 437 form with forward
// slashes, per spec.md §1/§6.
func encodeName(name string) ([]byte, error) {
	return cp437.Encode(name)
}

func decodeName(b []byte) (string, error) {
	return cp437.Decode(b)
}

// packDOSTime converts t to the 32-bit packed DOS date/time pair of
// spec.md §9: seconds are stored in 2-second increments, and odd seconds
// round down (the decided reading of the spec's open question).
func packDOSTime(t time.Time) (date, timeField uint16) {
	year := t.Year() - 1980
	if year < 0 {
		year = 0
	}
	date = uint16(year<<9 | int(t.Month())<<5 | t.Day())
	timeField = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	return date, timeField
}

// unpackDOSTime is the inverse of packDOSTime, used when no NTFS extra
// field is present.
func unpackDOSTime(date, timeField uint16) time.Time {
	year := 1980 + int(date>>9)
	month := int((date >> 5) & 0xF)
	day := int(date & 0x1F)
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	hour := int(timeField >> 11)
	min := int((timeField >> 5) & 0x3F)
	sec := int(timeField&0x1F) * 2
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
}

// NTFS FILETIME epoch (1601-01-01); used to convert between Go's time.Time
// and the 64-bit 100ns-tick timestamps the NTFS extra field carries.
// Conversions go through Unix seconds, since the span since 1601 does not
// fit in a time.Duration.
var ntfsEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

func timeToFiletime(t time.Time) uint64 {
	secs := t.Unix() - ntfsEpoch.Unix()
	return uint64(secs)*1e7 + uint64(t.Nanosecond()/100)
}

func filetimeToTime(ft uint64) time.Time {
	secs := int64(ft/1e7) + ntfsEpoch.Unix()
	return time.Unix(secs, int64(ft%1e7)*100).UTC()
}

// encodeNTFSExtra builds the 36-byte NTFS extra field (tag 0x0001) that
// round-trips ModTime's sub-second precision, per spec.md §4.5.1/S5:
// write, access and create times are all set to ModTime since the archive
// does not separately track access/create times.
func encodeNTFSExtra(t time.Time) []byte {
	var w writeBuf
	w.u16(ntfsExtraTag)
	w.u16(32) // tag data size: 4 (reserved) + 2 (attr tag) + 2 (attr size) + 3*8
	w.u32(0)  // reserved
	w.u16(1)  // attribute tag 1: file times
	w.u16(24) // attribute size: 3 * 8 bytes
	ft := timeToFiletime(t)
	w.u64(ft) // last modification
	w.u64(ft) // last access
	w.u64(ft) // creation
	return w.buf
}

// decodeNTFSExtra scans a local/central extra field for tag 0x0001 and
// returns the modification time it carries, if present.
func decodeNTFSExtra(extra []byte) (time.Time, bool) {
	b := readBuf(extra)
	for len(b) >= 4 {
		tag := b.uint16()
		size := int(b.uint16())
		if len(b) < size {
			return time.Time{}, false
		}
		field := b.sub(size)
		if tag != ntfsExtraTag {
			continue
		}
		if len(field) < 8 {
			continue
		}
		field.skip(4) // reserved
		for len(field) >= 4 {
			attrTag := field.uint16()
			attrSize := int(field.uint16())
			if len(field) < attrSize {
				break
			}
			attrData := field.sub(attrSize)
			if attrTag == 1 && len(attrData) >= 8 {
				mtime := attrData.uint64()
				return filetimeToTime(mtime), true
			}
		}
	}
	return time.Time{}, false
}
