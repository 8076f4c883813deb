// Package archive implements the experimental ".vlc" bytecode archive
// format: a header/constant-pool encoding (magic number, version, typed
// constant tags) with a deliberately asymmetric read path — Encode is
// fully implemented, Decode reads the header and constant pool but
// refuses to read the code stream.
//
// Nothing in pkg/vm, pkg/compiler, or pkg/value calls this package: it is
// reachable only from the CLI (`vela run --emit-vlc`).
package archive

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/kristofer/vela/pkg/value"
)

const (
	// MagicNumber is the file signature, "VLA\x00" read as a big-endian
	// word. It is written little-endian like every other field, so a file
	// starts with the bytes 00 41 4C 56.
	MagicNumber uint32 = 0x564C4100
	// FormatVersion is the current archive format version.
	FormatVersion uint32 = 1
)

// ErrArchiveReadUnsupported is returned by Decode when it reaches the code
// stream: the read path is intentionally a stub, matching the original
// source's asymmetric CLASM format.
var ErrArchiveReadUnsupported = errors.New("archive: reading the compiled code stream is not supported")

const (
	constTypeNil    byte = 0x01
	constTypeBool   byte = 0x02
	constTypeNumber byte = 0x03
	constTypeString byte = 0x04
	constTypeFunc   byte = 0x05
)

// Encode serializes a top-level function's chunk: header, constant pool,
// then the raw code stream. This is the fully-implemented write half of
// the format.
func Encode(fn *value.ObjFunction, w io.Writer) error {
	if err := writeHeader(w); err != nil {
		return errors.Wrap(err, "writing archive header")
	}
	if err := writeFunctionBody(w, fn); err != nil {
		return errors.Wrap(err, "writing function body")
	}
	return nil
}

func writeFunctionBody(w io.Writer, fn *value.ObjFunction) error {
	if err := writeString(w, functionName(fn)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(fn.Arity)); err != nil {
		return err
	}
	if err := writeConstants(w, fn.Chunk.Constants); err != nil {
		return errors.Wrap(err, "writing constants")
	}
	return writeCode(w, fn.Chunk.Code)
}

func functionName(fn *value.ObjFunction) string {
	if fn.Name == nil {
		return ""
	}
	return fn.Name.Chars
}

func writeHeader(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, MagicNumber); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, FormatVersion)
}

func readHeader(r io.Reader) (uint32, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return 0, err
	}
	if magic != MagicNumber {
		return 0, errors.Errorf("invalid archive magic number: 0x%08X", magic)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, err
	}
	return version, nil
}

func writeConstants(w io.Writer, constants []value.Value) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(constants))); err != nil {
		return err
	}
	for i, c := range constants {
		if err := writeConstant(w, c); err != nil {
			return errors.Wrapf(err, "constant %d", i)
		}
	}
	return nil
}

func writeConstant(w io.Writer, v value.Value) error {
	switch {
	case v.IsNil():
		return binary.Write(w, binary.LittleEndian, constTypeNil)
	case v.IsBool():
		if err := binary.Write(w, binary.LittleEndian, constTypeBool); err != nil {
			return err
		}
		var b byte
		if v.AsBool() {
			b = 1
		}
		return binary.Write(w, binary.LittleEndian, b)
	case v.IsNumber():
		if err := binary.Write(w, binary.LittleEndian, constTypeNumber); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.AsNumber())
	case v.IsString():
		if err := binary.Write(w, binary.LittleEndian, constTypeString); err != nil {
			return err
		}
		return writeString(w, v.AsGoString())
	default:
		if fn, ok := v.AsObj().(*value.ObjFunction); ok {
			if err := binary.Write(w, binary.LittleEndian, constTypeFunc); err != nil {
				return err
			}
			return writeFunctionBody(w, fn)
		}
		return errors.Errorf("unsupported constant type for archive: %v", v.Type())
	}
}

func writeCode(w io.Writer, code []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(code))); err != nil {
		return err
	}
	_, err := w.Write(code)
	return err
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// Header describes the metadata Decode is able to recover without reading
// the (unsupported) code stream.
type Header struct {
	Version   uint32
	Name      string
	Arity     int
	Constants []ConstantPreview
}

// ConstantPreview is a best-effort rendering of a decoded constant: scalar
// constants are fully reconstructed, nested function constants are
// reported by name only (reading their own code stream would recurse into
// the same unsupported path).
type ConstantPreview struct {
	Kind string
	Repr string
}

// Decode reads an archive's header and constant pool, then returns a nil
// *Header and ErrArchiveReadUnsupported (wrapped with the recovered name,
// arity, and constant count) instead of reading the code stream: a full
// round-trip is not required of this format.
func Decode(r io.Reader) (*Header, error) {
	version, err := readHeader(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading archive header")
	}

	name, err := readString(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading function name")
	}

	var arity uint32
	if err := binary.Read(r, binary.LittleEndian, &arity); err != nil {
		return nil, errors.Wrap(err, "reading arity")
	}

	constants, err := readConstantPreviews(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading constants")
	}

	return nil, joinHeaderAndStub(&Header{
		Version:   version,
		Name:      name,
		Arity:     int(arity),
		Constants: constants,
	})
}

// joinHeaderAndStub always returns ErrArchiveReadUnsupported, wrapped with
// the recovered header's name, arity, and constant count in the message;
// the Header value itself is not returned.
func joinHeaderAndStub(h *Header) error {
	return errors.Wrapf(ErrArchiveReadUnsupported, "parsed header for %q (arity %d, %d constants)", h.Name, h.Arity, len(h.Constants))
}

func readConstantPreviews(r io.Reader) ([]ConstantPreview, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]ConstantPreview, 0, count)
	for i := uint32(0); i < count; i++ {
		var tag byte
		if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
			return nil, err
		}
		switch tag {
		case constTypeNil:
			out = append(out, ConstantPreview{Kind: "nil"})
		case constTypeBool:
			var b byte
			if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
				return nil, err
			}
			out = append(out, ConstantPreview{Kind: "bool", Repr: boolRepr(b != 0)})
		case constTypeNumber:
			var n float64
			if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
				return nil, err
			}
			out = append(out, ConstantPreview{Kind: "number", Repr: value.PrintValue(value.Number(n))})
		case constTypeString:
			s, err := readString(r)
			if err != nil {
				return nil, err
			}
			out = append(out, ConstantPreview{Kind: "string", Repr: s})
		case constTypeFunc:
			name, err := readString(r)
			if err != nil {
				return nil, err
			}
			var fnArity uint32
			if err := binary.Read(r, binary.LittleEndian, &fnArity); err != nil {
				return nil, err
			}
			nested, err := readConstantPreviews(r)
			if err != nil {
				return nil, err
			}
			out = append(out, ConstantPreview{Kind: "function", Repr: name})
			_ = nested
			// The nested function's own code stream follows here in the
			// file but Decode stops before reading any code stream, so we
			// do not attempt to skip past it; callers get
			// ErrArchiveReadUnsupported as soon as control returns to the
			// caller of Decode.
			return out, nil
		default:
			return nil, errors.Errorf("unknown constant tag: 0x%02X", tag)
		}
	}
	return out, nil
}

func readString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func boolRepr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
