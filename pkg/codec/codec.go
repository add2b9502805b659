// Package codec implements the versioned binary envelope the store is
// persisted as: a little-endian, packed stream with a magic header, a
// metadata section, and one section per vector modality. Readers accept
// versions 2 through 5; writers always produce 5.
package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kestrel-db/kestrel/pkg/metadata"
)

const (
	magic = 0x46454154 // "FEAT"

	// CurrentVersion is the envelope version Encode always writes.
	CurrentVersion = 5
	currentVersion = CurrentVersion
	minVersion     = 2
)

// Modality is one vector space's worth of points to persist: a name, a
// dimension, and every (key, vector) pair currently indexed.
type Modality struct {
	Name    string
	Dim     int
	Vectors map[uint64][]float32
}

// Document is everything Encode writes and Decode reconstructs. Version is
// the envelope version the document was actually read from (0 for a fresh
// or unreadable file, which never counts as a migration); callers that
// care about migration only need to compare it against CurrentVersion.
type Document struct {
	Records    map[uint64]metadata.Metadata
	Modalities []Modality
	Version    int
}

// Encode writes doc to w in the current (v5) format.
func Encode(w io.Writer, doc Document) error {
	bw := bufio.NewWriter(w)

	if err := writeU32(bw, magic); err != nil {
		return err
	}
	if err := writeU32(bw, currentVersion); err != nil {
		return err
	}

	if err := writeU32(bw, uint32(len(doc.Records))); err != nil {
		return err
	}
	for id, m := range doc.Records {
		if err := writeU64(bw, id); err != nil {
			return err
		}
		if err := encodeMetadata(bw, m); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(doc.Modalities))); err != nil {
		return err
	}
	for _, mod := range doc.Modalities {
		if err := writeString16(bw, mod.Name); err != nil {
			return err
		}
		if err := writeU32(bw, uint32(mod.Dim)); err != nil {
			return err
		}
		if err := writeU32(bw, uint32(len(mod.Vectors))); err != nil {
			return err
		}
		for key, vec := range mod.Vectors {
			if err := writeU64(bw, key); err != nil {
				return err
			}
			for _, f := range vec {
				if err := writeF32(bw, f); err != nil {
					return err
				}
			}
		}
	}

	return bw.Flush()
}

// Decode reads a persisted store from r. A stream with a missing or
// mismatched magic is treated as an empty document rather than an error —
// open must succeed regardless of what's on disk.
func Decode(r io.Reader) (Document, error) {
	br := bufio.NewReader(r)

	gotMagic, err := readU32(br)
	if err != nil {
		return Document{Records: map[uint64]metadata.Metadata{}}, nil
	}
	if gotMagic != magic {
		return Document{Records: map[uint64]metadata.Metadata{}}, nil
	}

	version, err := readU32(br)
	if err != nil {
		return Document{Records: map[uint64]metadata.Metadata{}}, nil
	}
	if version < minVersion || version > currentVersion {
		return Document{Records: map[uint64]metadata.Metadata{}}, nil
	}

	if version == 2 {
		return decodeV2(br)
	}
	return decodeV3Plus(br, int(version))
}

func decodeV2(br *bufio.Reader) (Document, error) {
	dim, err := readU32(br)
	if err != nil {
		return Document{}, fmt.Errorf("codec: read v2 dim: %w", err)
	}

	records := make(map[uint64]metadata.Metadata)
	vectors := make(map[uint64][]float32)

	for {
		id, err := readU64(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return Document{}, fmt.Errorf("codec: read v2 key: %w", err)
		}
		m, err := decodeMetadata(br)
		if err != nil {
			return Document{}, fmt.Errorf("codec: read v2 metadata: %w", err)
		}
		vec := make([]float32, dim)
		for i := range vec {
			f, err := readF32(br)
			if err != nil {
				return Document{}, fmt.Errorf("codec: read v2 vector: %w", err)
			}
			vec[i] = f
		}
		records[id] = m
		vectors[id] = vec
	}

	return Document{
		Records:    records,
		Modalities: []Modality{{Name: "text", Dim: int(dim), Vectors: vectors}},
		Version:    2,
	}, nil
}

func decodeV3Plus(br *bufio.Reader, version int) (Document, error) {
	metaCount, err := readU32(br)
	if err != nil {
		return Document{}, fmt.Errorf("codec: read meta_count: %w", err)
	}
	records := make(map[uint64]metadata.Metadata, metaCount)
	for i := uint32(0); i < metaCount; i++ {
		id, err := readU64(br)
		if err != nil {
			return Document{}, fmt.Errorf("codec: read record key: %w", err)
		}
		m, err := decodeMetadata(br)
		if err != nil {
			return Document{}, fmt.Errorf("codec: read record metadata: %w", err)
		}
		records[id] = m
	}

	modalCount, err := readU32(br)
	if err != nil {
		return Document{}, fmt.Errorf("codec: read modal_count: %w", err)
	}
	modalities := make([]Modality, 0, modalCount)
	for i := uint32(0); i < modalCount; i++ {
		name, err := readString16(br)
		if err != nil {
			return Document{}, fmt.Errorf("codec: read modality name: %w", err)
		}
		dim, err := readU32(br)
		if err != nil {
			return Document{}, fmt.Errorf("codec: read modality dim: %w", err)
		}
		elementCount, err := readU32(br)
		if err != nil {
			return Document{}, fmt.Errorf("codec: read modality element_count: %w", err)
		}
		vectors := make(map[uint64][]float32, elementCount)
		for j := uint32(0); j < elementCount; j++ {
			key, err := readU64(br)
			if err != nil {
				return Document{}, fmt.Errorf("codec: read vector key: %w", err)
			}
			vec := make([]float32, dim)
			for k := range vec {
				f, err := readF32(br)
				if err != nil {
					return Document{}, fmt.Errorf("codec: read vector component: %w", err)
				}
				vec[k] = f
			}
			vectors[key] = vec
		}
		modalities = append(modalities, Modality{Name: name, Dim: int(dim), Vectors: vectors})
	}

	return Document{Records: records, Modalities: modalities, Version: version}, nil
}

// encodeMetadata writes fields in the order §3 lists them, matching the
// original core's layout byte-for-byte: a legacy links_count slot of 0 is
// written between tags_json and recall_count, for v3/v4 reader compat.
func encodeMetadata(w io.Writer, m metadata.Metadata) error {
	if err := writeI64(w, m.Timestamp); err != nil {
		return err
	}
	if err := writeF32(w, m.Importance); err != nil {
		return err
	}
	if err := writeU8(w, uint8(m.Type)); err != nil {
		return err
	}
	if err := writeString16(w, m.Source); err != nil {
		return err
	}
	if err := writeString32(w, m.Content); err != nil {
		return err
	}
	if err := writeString16(w, m.TagsJSON); err != nil {
		return err
	}
	if err := writeU16(w, 0); err != nil { // legacy links_count, always 0 on write
		return err
	}
	if err := writeU32(w, m.RecallCount); err != nil {
		return err
	}
	if err := writeU64(w, m.LastRecalledAt); err != nil {
		return err
	}
	if err := writeString16(w, m.NamespaceID); err != nil {
		return err
	}
	if err := writeString16(w, m.EntityID); err != nil {
		return err
	}

	if err := writeU16(w, uint16(len(m.Attributes))); err != nil {
		return err
	}
	for k, v := range m.Attributes {
		if err := writeString16(w, k); err != nil {
			return err
		}
		if err := writeString32(w, v); err != nil {
			return err
		}
	}

	if err := writeU16(w, uint16(len(m.Edges))); err != nil {
		return err
	}
	for _, e := range m.Edges {
		if err := writeU64(w, e.Target); err != nil {
			return err
		}
		relType := e.RelType
		if len(relType) > 255 {
			relType = relType[:255]
		}
		if err := writeU8(w, uint8(len(relType))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, relType); err != nil {
			return err
		}
		if err := writeF32(w, e.Weight); err != nil {
			return err
		}
	}

	return nil
}

// decodeMetadata reads a record in v3/v4/v5 layout. A nonzero legacy
// links_count means this record predates typed edges: each plain target
// ID is promoted to an Edge with RelType "related_to" and Weight 1.0.
func decodeMetadata(r io.Reader) (metadata.Metadata, error) {
	var m metadata.Metadata

	ts, err := readI64(r)
	if err != nil {
		return m, err
	}
	m.Timestamp = ts

	imp, err := readF32(r)
	if err != nil {
		return m, err
	}
	m.Importance = imp

	typ, err := readU8(r)
	if err != nil {
		return m, err
	}
	m.Type = metadata.ContextType(typ)

	if m.Source, err = readString16(r); err != nil {
		return m, err
	}
	if m.Content, err = readString32(r); err != nil {
		return m, err
	}
	if m.TagsJSON, err = readString16(r); err != nil {
		return m, err
	}

	legacyLinksCount, err := readU16(r)
	if err != nil {
		return m, err
	}
	for i := uint16(0); i < legacyLinksCount; i++ {
		target, err := readU64(r)
		if err != nil {
			return m, err
		}
		m.Edges = append(m.Edges, metadata.Edge{Target: target, RelType: "related_to", Weight: 1.0})
	}

	if m.RecallCount, err = readU32(r); err != nil {
		return m, err
	}
	if m.LastRecalledAt, err = readU64(r); err != nil {
		return m, err
	}
	if m.NamespaceID, err = readString16(r); err != nil {
		return m, err
	}
	if m.EntityID, err = readString16(r); err != nil {
		return m, err
	}

	attrCount, err := readU16(r)
	if err != nil {
		return m, err
	}
	if attrCount > 0 {
		m.Attributes = make(map[string]string, attrCount)
		for i := uint16(0); i < attrCount; i++ {
			key, err := readString16(r)
			if err != nil {
				return m, err
			}
			val, err := readString32(r)
			if err != nil {
				return m, err
			}
			m.Attributes[key] = val
		}
	}

	edgeCount, err := readU16(r)
	if err != nil {
		return m, err
	}
	for i := uint16(0); i < edgeCount; i++ {
		target, err := readU64(r)
		if err != nil {
			return m, err
		}
		rtLen, err := readU8(r)
		if err != nil {
			return m, err
		}
		relType, err := readFixedString(r, int(rtLen))
		if err != nil {
			return m, err
		}
		weight, err := readF32(r)
		if err != nil {
			return m, err
		}
		m.Edges = append(m.Edges, metadata.Edge{Target: target, RelType: relType, Weight: weight})
	}

	return m, nil
}

func writeU8(w io.Writer, v uint8) error  { return binary.Write(w, binary.LittleEndian, v) }
func writeU16(w io.Writer, v uint16) error { return binary.Write(w, binary.LittleEndian, v) }
func writeU32(w io.Writer, v uint32) error { return binary.Write(w, binary.LittleEndian, v) }
func writeU64(w io.Writer, v uint64) error { return binary.Write(w, binary.LittleEndian, v) }
func writeI64(w io.Writer, v int64) error  { return binary.Write(w, binary.LittleEndian, v) }
func writeF32(w io.Writer, v float32) error { return binary.Write(w, binary.LittleEndian, v) }

func writeString16(w io.Writer, s string) error {
	if err := writeU16(w, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeString32(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readU8(r io.Reader) (uint8, error) {
	var v uint8
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readU16(r io.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readU64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readI64(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readF32(r io.Reader) (float32, error) {
	var v float32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readFixedString(r io.Reader, n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readString16(r io.Reader) (string, error) {
	n, err := readU16(r)
	if err != nil {
		return "", err
	}
	return readFixedString(r, int(n))
}

func readString32(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	return readFixedString(r, int(n))
}
