// Binary serialization for .bldb bytecode files.
//
// File Format Specification:
//
// The .bldb file format is a binary format for storing a compiled Blade
// program. Encode and Decode are its only readers and writers; the `blade`
// launcher (including `-j`/`--just-compile`) calls neither. The format is:
//   - Compact: flat binary encoding, no text re-parsing on load
//   - Versioned: a format version field allows the layout to evolve
//   - Recursive: stores every nested function prototype. Decode cannot
//     rebuild string constants (see readConstant), so a file holding any
//     string does not load back.
//
// Binary Format Layout:
//
//   [Header]
//     Magic Number (4 bytes): "BLDB"
//     Version (4 bytes): format version (currently 1)
//     Flags (4 bytes): reserved for future use
//
//   [Blob] (recursive: top-level Blob, then each nested Functions[i])
//     Name (string: 4-byte length + UTF-8)
//     Arity (4 bytes), IsVariadic (1 byte), NumLocals (4 bytes)
//     Constants section: count (4 bytes) + type-tagged constants
//     Functions section: count (4 bytes) + nested Blobs (recursive)
//     Upvalue descriptors: count (4 bytes) + (Index int32, IsLocal byte) pairs
//     Instructions section: count (4 bytes) + (Opcode byte, Operand int32, Line int32)
//
// Constant Types:
//   0x01 = Nil
//   0x02 = Bool (1 byte)
//   0x03 = Number (float64, 8 bytes, IEEE 754)
//   0x04 = String (4-byte length + UTF-8 bytes)
//
// Only scalar and string constants can be written; list/dict literals are
// built at runtime by dedicated opcodes (OpList, OpDict) out of them. A
// byte-string literal's *object.Bytes constant has no record type, and
// Encode returns an error for it.
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/blade-lang/blade/pkg/value"
)

const (
	// Magic is the four-byte file signature for .bldb files.
	Magic uint32 = 0x424C4442 // "BLDB"

	// FormatVersion is the current bytecode format version.
	FormatVersion uint32 = 1

	formatFlags uint32 = 0
)

const (
	constTypeNil    byte = 0x01
	constTypeBool   byte = 0x02
	constTypeNumber byte = 0x03
	constTypeString byte = 0x04
)

// Encode writes blob, and everything it transitively references through
// Functions, to w in the .bldb format.
func Encode(blob *Blob, w io.Writer) error {
	if err := writeHeader(w); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return writeBlob(w, blob)
}

// Decode reads a .bldb file from r and reconstructs its top-level Blob.
func Decode(r io.Reader) (*Blob, error) {
	version, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported bytecode version: %d (expected %d)", version, FormatVersion)
	}
	return readBlob(r)
}

func writeHeader(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, Magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, FormatVersion); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, formatFlags)
}

func readHeader(r io.Reader) (uint32, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return 0, err
	}
	if magic != Magic {
		return 0, fmt.Errorf("invalid magic number: 0x%08X (expected 0x%08X)", magic, Magic)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, err
	}
	var flags uint32
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return 0, err
	}
	return version, nil
}

func writeBlob(w io.Writer, b *Blob) error {
	if err := writeString(w, b.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(b.Arity)); err != nil {
		return err
	}
	var variadic byte
	if b.IsVariadic {
		variadic = 1
	}
	if err := binary.Write(w, binary.LittleEndian, variadic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(b.NumLocals)); err != nil {
		return err
	}
	if err := writeConstants(w, b.Constants); err != nil {
		return fmt.Errorf("failed to write constants: %w", err)
	}
	if err := writeFunctions(w, b.Functions); err != nil {
		return fmt.Errorf("failed to write nested functions: %w", err)
	}
	if err := writeUpvalues(w, b.Upvalues); err != nil {
		return fmt.Errorf("failed to write upvalue descriptors: %w", err)
	}
	if err := writeInstructions(w, b.Code); err != nil {
		return fmt.Errorf("failed to write instructions: %w", err)
	}
	return nil
}

func readBlob(r io.Reader) (*Blob, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	var arity int32
	if err := binary.Read(r, binary.LittleEndian, &arity); err != nil {
		return nil, err
	}
	var variadic byte
	if err := binary.Read(r, binary.LittleEndian, &variadic); err != nil {
		return nil, err
	}
	var numLocals int32
	if err := binary.Read(r, binary.LittleEndian, &numLocals); err != nil {
		return nil, err
	}
	constants, err := readConstants(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read constants: %w", err)
	}
	functions, err := readFunctions(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read nested functions: %w", err)
	}
	upvalues, err := readUpvalues(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upvalue descriptors: %w", err)
	}
	code, err := readInstructions(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read instructions: %w", err)
	}
	blob := &Blob{
		Name:       name,
		Arity:      int(arity),
		IsVariadic: variadic != 0,
		NumLocals:  int(numLocals),
		Constants:  constants,
		Functions:  functions,
		Upvalues:   upvalues,
		Code:       code,
	}
	for _, inst := range code {
		blob.AddLine(inst.Line)
	}
	return blob, nil
}

func writeConstants(w io.Writer, constants []value.Value) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(constants))); err != nil {
		return err
	}
	for i, c := range constants {
		if err := writeConstant(w, c); err != nil {
			return fmt.Errorf("constant %d: %w", i, err)
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
		if v.B {
			b = 1
		}
		return binary.Write(w, binary.LittleEndian, b)
	case v.IsNumber():
		if err := binary.Write(w, binary.LittleEndian, constTypeNumber); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.N)
	case v.IsObject():
		// Interned strings are the only heap constants written here; list,
		// dict and range literals are built at runtime by the opcode that
		// needs them (OpList, OpDict, OpRange). Any other object constant
		// (a byte-string literal's Bytes) is rejected.
		s, ok := constantString(v)
		if !ok {
			return fmt.Errorf("unsupported constant object type")
		}
		if err := binary.Write(w, binary.LittleEndian, constTypeString); err != nil {
			return err
		}
		return writeString(w, s)
	default:
		return fmt.Errorf("unsupported constant value")
	}
}

// constantString extracts the backing text of a *object.String constant
// without pkg/bytecode importing pkg/object (which already imports
// pkg/bytecode). ObjType().String() == "string" identifies the variant;
// String() then yields its content, since object.String defines both to
// return the same thing.
func constantString(v value.Value) (string, bool) {
	if !v.IsObjType(value.ObjString) {
		return "", false
	}
	return v.Obj.String(), true
}

func readConstants(r io.Reader) ([]value.Value, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	constants := make([]value.Value, count)
	for i := uint32(0); i < count; i++ {
		v, err := readConstant(r)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		constants[i] = v
	}
	return constants, nil
}

// readConstant reads back every constant kind except string: a string
// record is read and then reported as an error wrapping
// errStringNeedsInterning, since this package has no intern table to
// rebuild the *object.String from.
func readConstant(r io.Reader) (value.Value, error) {
	var ct byte
	if err := binary.Read(r, binary.LittleEndian, &ct); err != nil {
		return value.NilValue, err
	}
	switch ct {
	case constTypeNil:
		return value.NilValue, nil
	case constTypeBool:
		var b byte
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return value.NilValue, err
		}
		return value.BoolValue(b != 0), nil
	case constTypeNumber:
		var n float64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return value.NilValue, err
		}
		return value.NumberValue(n), nil
	case constTypeString:
		s, err := readString(r)
		if err != nil {
			return value.NilValue, err
		}
		return value.NilValue, fmt.Errorf("string constant %q requires pkg/module re-interning: %w", s, errStringNeedsInterning)
	default:
		return value.NilValue, fmt.Errorf("unknown constant type: 0x%02X", ct)
	}
}

var errStringNeedsInterning = fmt.Errorf("string constants cannot be reconstructed without the VM's intern table")

func writeFunctions(w io.Writer, fns []*Blob) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(fns))); err != nil {
		return err
	}
	for i, fn := range fns {
		if err := writeBlob(w, fn); err != nil {
			return fmt.Errorf("function %d: %w", i, err)
		}
	}
	return nil
}

func readFunctions(r io.Reader) ([]*Blob, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	fns := make([]*Blob, count)
	for i := uint32(0); i < count; i++ {
		fn, err := readBlob(r)
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
		fns[i] = fn
	}
	return fns, nil
}

func writeUpvalues(w io.Writer, ups []UpvalueDescriptor) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ups))); err != nil {
		return err
	}
	for _, u := range ups {
		if err := binary.Write(w, binary.LittleEndian, int32(u.Index)); err != nil {
			return err
		}
		var isLocal byte
		if u.IsLocal {
			isLocal = 1
		}
		if err := binary.Write(w, binary.LittleEndian, isLocal); err != nil {
			return err
		}
	}
	return nil
}

func readUpvalues(r io.Reader) ([]UpvalueDescriptor, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	ups := make([]UpvalueDescriptor, count)
	for i := uint32(0); i < count; i++ {
		var index int32
		if err := binary.Read(r, binary.LittleEndian, &index); err != nil {
			return nil, err
		}
		var isLocal byte
		if err := binary.Read(r, binary.LittleEndian, &isLocal); err != nil {
			return nil, err
		}
		ups[i] = UpvalueDescriptor{Index: int(index), IsLocal: isLocal != 0}
	}
	return ups, nil
}

func writeInstructions(w io.Writer, code []Instruction) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(code))); err != nil {
		return err
	}
	for i, inst := range code {
		if err := binary.Write(w, binary.LittleEndian, byte(inst.Op)); err != nil {
			return fmt.Errorf("instruction %d opcode: %w", i, err)
		}
		if err := binary.Write(w, binary.LittleEndian, int32(inst.Operand)); err != nil {
			return fmt.Errorf("instruction %d operand: %w", i, err)
		}
		if err := binary.Write(w, binary.LittleEndian, int32(inst.Line)); err != nil {
			return fmt.Errorf("instruction %d line: %w", i, err)
		}
	}
	return nil
}

func readInstructions(r io.Reader) ([]Instruction, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	code := make([]Instruction, count)
	for i := uint32(0); i < count; i++ {
		var op byte
		if err := binary.Read(r, binary.LittleEndian, &op); err != nil {
			return nil, fmt.Errorf("instruction %d opcode: %w", i, err)
		}
		var operand int32
		if err := binary.Read(r, binary.LittleEndian, &operand); err != nil {
			return nil, fmt.Errorf("instruction %d operand: %w", i, err)
		}
		var line int32
		if err := binary.Read(r, binary.LittleEndian, &line); err != nil {
			return nil, fmt.Errorf("instruction %d line: %w", i, err)
		}
		code[i] = Instruction{Op: Opcode(op), Operand: int(operand), Line: int(line)}
	}
	return code, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
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

// Disassemble renders blob's instructions as human-readable text, the
// format the launcher prints under `-d`/`--debug`. Each
// line is "OFFSET LINE OPCODE OPERAND", matching the teacher's
// smog disassembler layout.
func Disassemble(blob *Blob, name string) string {
	var out []byte
	out = append(out, fmt.Sprintf("== %s ==\n", name)...)
	lastLine := -1
	for offset, inst := range blob.Code {
		line := blob.LineAt(offset)
		lineCol := "   |"
		if line != lastLine {
			lineCol = fmt.Sprintf("%4d", line)
			lastLine = line
		}
		out = append(out, fmt.Sprintf("%04d %s %-20s %d\n", offset, lineCol, inst.Op.String(), inst.Operand)...)
	}
	for i, fn := range blob.Functions {
		out = append(out, Disassemble(fn, fmt.Sprintf("%s/fn%d", name, i))...)
	}
	return string(out)
}
