// Package binary decodes the WebAssembly binary module format into an *internal/wasm.Module,
// per https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-format%E2%91%A0.
package binary

import (
	"io"

	"github.com/jblebrun/wazir/internal/wasm"
)

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d}

const version = uint32(1)

// Decode reads a binary-format module from r. features is kept in the decoder state but not
// consulted: every encoding the decoder knows is accepted whatever features are enabled, and
// proposal gating happens in the validator.
func Decode(r io.Reader, features wasm.Features) (*wasm.Module, error) {
	cr := newCountingReader(r)

	var hdr [4]byte
	b, err := cr.readBytes(4)
	if err != nil {
		return nil, newErr(KindInvalidMagic, "failed to read magic header")
	}
	copy(hdr[:], b)
	if hdr != magic {
		return nil, newErr(KindInvalidMagic, "invalid magic number")
	}
	ver, err := readRawU32(cr)
	if err != nil {
		return nil, newErr(KindInvalidVersion, "failed to read version")
	}
	if ver != version {
		return nil, newErr(KindInvalidVersion, "unsupported version: %d", ver)
	}

	m := &wasm.Module{}
	d := &decoderState{m: m, features: features}

	lastID, lastRank := -1, -1
	for {
		id, err := cr.ReadByte()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, newErr(KindIO, "failed to read section id").Wrap(err)
		}
		size, err := cr.readU32()
		if err != nil {
			return nil, err
		}
		body, err := cr.sectionReader(size)
		if err != nil {
			return nil, err
		}

		sid := int(id)
		if sid != sectionCustom {
			// DataCount (id 12) is laid out between Element and Code.
			rank := 2 * sid
			if sid == sectionDataCount {
				rank = 2*sectionElement + 1
			}
			if rank <= lastRank {
				return nil, newErr(KindInvalidSectionID, "section out of order: id %d after %d", sid, lastID)
			}
			lastID, lastRank = sid, rank
		}

		if err := d.decodeSection(sid, body); err != nil {
			return nil, err
		}
		if rem := body.remaining(); rem > 0 {
			return nil, newErr(KindExtraSectionBytes, "section %d has %d unread bytes", sid, rem)
		}
	}

	if err := d.crossCheck(); err != nil {
		return nil, err
	}

	m.ID = contentID(m)
	return m, nil
}

// decoderState accumulates the custom-name-section handling, which is the one bit of
// per-module state that can't just be "decode this section, assign the field".
type decoderState struct {
	m        *wasm.Module
	features wasm.Features
}

func (d *decoderState) decodeSection(id int, body *countingReader) (err error) {
	m := d.m
	switch id {
	case sectionCustom:
		name, err := decodeName(body)
		if err != nil {
			return err
		}
		if name == "name" {
			// Malformed name-section contents are non-fatal: per the spec, a consumer may
			// ignore them. We record nothing and continue.
			if ns, err := decodeNameSection(body); err == nil {
				m.NameSection = ns
			}
		}
		// The rest of the payload (all of it for other custom sections) is skipped.
		_, err = body.readBytes(uint32(body.remaining()))
		return err
	case sectionType:
		m.TypeSection, err = decodeTypeSection(body)
	case sectionImport:
		m.ImportSection, err = decodeImportSection(body)
	case sectionFunction:
		m.FunctionSection, err = decodeFunctionSection(body)
	case sectionTable:
		m.TableSection, err = decodeTableSection(body)
	case sectionMemory:
		m.MemorySection, err = decodeMemorySection(body)
	case sectionGlobal:
		m.GlobalSection, err = decodeGlobalSection(body)
	case sectionExport:
		m.ExportSection, err = decodeExportSection(body)
	case sectionStart:
		m.StartSection, err = decodeStartSection(body)
	case sectionElement:
		m.ElementSection, err = decodeElementSection(body)
	case sectionCode:
		m.CodeSection, err = decodeCodeSection(body)
	case sectionData:
		m.DataSection, err = decodeDataSection(body)
	case sectionDataCount:
		m.DataCountSection, err = decodeDataCountSection(body)
	default:
		// Ids past DataCount are skipped for forward compatibility.
		_, err = body.readBytes(uint32(body.remaining()))
	}
	return err
}

func (d *decoderState) crossCheck() error {
	m := d.m
	if len(m.FunctionSection) != len(m.CodeSection) {
		return newErr(KindFuncSizeMismatch, "function and code section have inconsistent lengths: %d != %d",
			len(m.FunctionSection), len(m.CodeSection))
	}
	if m.DataCountSection != nil && int(*m.DataCountSection) != len(m.DataSection) {
		return newErr(KindDataCountMismatch, "data count section (%d) and data segment count (%d) disagree",
			*m.DataCountSection, len(m.DataSection))
	}
	if m.DataCountSection == nil {
		for _, code := range m.CodeSection {
			for _, ins := range code.Body.Instrs {
				switch ins.(type) {
				case wasm.InsMemoryInit, wasm.InsDataDrop:
					return newErr(KindDataCountMismatch, "data count section required by memory.init/data.drop is missing")
				}
			}
		}
	}
	return nil
}

func readRawU32(c *countingReader) (uint32, error) {
	b, err := c.readBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// contentID folds the entry count of each non-custom section and the local-type bytes of
// every function body into an FNV-style hash. Instructions, signatures, names and segment
// contents are not hashed, so modules that differ only in those share an ID.
func contentID(m *wasm.Module) wasm.ModuleID {
	h := fnvOffset
	mix := func(b byte) { h = (h ^ uint64(b)) * fnvPrime }
	mixU32 := func(v uint32) {
		mix(byte(v))
		mix(byte(v >> 8))
		mix(byte(v >> 16))
		mix(byte(v >> 24))
	}
	mixU32(uint32(len(m.TypeSection)))
	mixU32(uint32(len(m.ImportSection)))
	mixU32(uint32(len(m.FunctionSection)))
	mixU32(uint32(len(m.CodeSection)))
	mixU32(uint32(len(m.TableSection)))
	mixU32(uint32(len(m.MemorySection)))
	mixU32(uint32(len(m.GlobalSection)))
	mixU32(uint32(len(m.ExportSection)))
	mixU32(uint32(len(m.ElementSection)))
	mixU32(uint32(len(m.DataSection)))
	for _, c := range m.CodeSection {
		for _, b := range c.LocalTypes {
			mix(b)
		}
	}
	var id wasm.ModuleID
	for i := range id {
		mix(byte(i))
		id[i] = byte(h)
		h = h * fnvPrime
	}
	return id
}

const (
	fnvOffset = uint64(14695981039346656037)
	fnvPrime  = uint64(1099511628211)
)
