package il

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// SerializationError marks a malformed on-disk program (spec.md §7
// "SerializationError"). Corpus.ImportState skips the offending sample
// and counts it in its skipped result rather than aborting the whole
// import.
type SerializationError struct {
	Reason string
}

func (e *SerializationError) Error() string { return "il: serialization error: " + e.Reason }

// Serialize encodes p as a length-prefixed sequence of instruction
// records (spec.md §6.1): a varint instruction count, then for each
// instruction a varint opcode tag, repeated input/output/inner-output
// variable numbers, and an opcode-specific immediate payload.
func Serialize(p Program) []byte {
	var buf bytes.Buffer
	writeUvarint(&buf, uint64(p.Len()))
	for _, instr := range p.instructions {
		writeInstruction(&buf, instr)
	}
	return buf.Bytes()
}

// Deserialize is the inverse of Serialize. It returns a *SerializationError
// (not an *InvariantError) on malformed bytes; callers that need a
// well-formed Program must additionally call Verify.
func Deserialize(data []byte) (Program, error) {
	r := bytes.NewReader(data)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return Program{}, &SerializationError{"truncated instruction count"}
	}
	instrs := make([]Instruction, 0, count)
	for i := uint64(0); i < count; i++ {
		instr, err := readInstruction(r)
		if err != nil {
			return Program{}, &SerializationError{fmt.Sprintf("instruction %d: %v", i, err)}
		}
		instrs = append(instrs, instr)
	}
	if r.Len() != 0 {
		return Program{}, &SerializationError{"trailing bytes after last instruction"}
	}
	return NewProgram(instrs), nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeVariables(buf *bytes.Buffer, vars []Variable) {
	writeUvarint(buf, uint64(len(vars)))
	for _, v := range vars {
		writeUvarint(buf, uint64(v))
	}
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeInstruction(buf *bytes.Buffer, instr Instruction) {
	writeUvarint(buf, uint64(instr.Operation.Op))
	writeVariables(buf, instr.Inputs)
	writeVariables(buf, instr.Outputs)
	writeVariables(buf, instr.InnerOutputs)
	writePayload(buf, instr.Operation)
}

func writePayload(buf *bytes.Buffer, op Operation) {
	writeVarint(buf, op.IntValue)
	var fbits [8]byte
	binary.LittleEndian.PutUint64(fbits[:], uint64(int64FromFloat(op.FloatValue)))
	buf.Write(fbits[:])
	writeString(buf, op.StringValue)
	writeString(buf, op.StringValue2)
	if op.BoolValue {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.WriteByte(byte(op.Comparator))
	buf.WriteByte(byte(op.BinaryOp))
	buf.WriteByte(byte(op.UnaryOp))
	buf.WriteByte(byte(op.FunctionKind))
	writeUvarint(buf, uint64(op.NumParameters))
	writeUvarint(buf, uint64(len(op.PropertyNames)))
	for _, s := range op.PropertyNames {
		writeString(buf, s)
	}
	writeUvarint(buf, uint64(len(op.Spreads)))
	for _, b := range op.Spreads {
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
}

func readInstruction(r *bytes.Reader) (Instruction, error) {
	tag, err := binary.ReadUvarint(r)
	if err != nil || tag >= uint64(numOpcodes) {
		return Instruction{}, fmt.Errorf("invalid opcode tag")
	}
	inputs, err := readVariables(r)
	if err != nil {
		return Instruction{}, err
	}
	outputs, err := readVariables(r)
	if err != nil {
		return Instruction{}, err
	}
	inner, err := readVariables(r)
	if err != nil {
		return Instruction{}, err
	}
	op, err := readPayload(r, Opcode(tag))
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{Operation: op, Inputs: inputs, Outputs: outputs, InnerOutputs: inner}, nil
}

func readVariables(r *bytes.Reader) ([]Variable, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]Variable, n)
	for i := range out {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		out[i] = Variable(v)
	}
	return out, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readPayload(r *bytes.Reader, op Opcode) (Operation, error) {
	intVal, err := binary.ReadVarint(r)
	if err != nil {
		return Operation{}, err
	}
	var fbits [8]byte
	if _, err := io.ReadFull(r, fbits[:]); err != nil {
		return Operation{}, err
	}
	floatVal := floatFromInt64(int64(binary.LittleEndian.Uint64(fbits[:])))
	strVal, err := readString(r)
	if err != nil {
		return Operation{}, err
	}
	str2Val, err := readString(r)
	if err != nil {
		return Operation{}, err
	}
	boolByte, err := r.ReadByte()
	if err != nil {
		return Operation{}, err
	}
	cmpByte, err := r.ReadByte()
	if err != nil {
		return Operation{}, err
	}
	binByte, err := r.ReadByte()
	if err != nil {
		return Operation{}, err
	}
	unByte, err := r.ReadByte()
	if err != nil {
		return Operation{}, err
	}
	fnByte, err := r.ReadByte()
	if err != nil {
		return Operation{}, err
	}
	numParams, err := binary.ReadUvarint(r)
	if err != nil {
		return Operation{}, err
	}
	numProps, err := binary.ReadUvarint(r)
	if err != nil {
		return Operation{}, err
	}
	var props []string
	if numProps > 0 {
		props = make([]string, numProps)
		for i := range props {
			props[i], err = readString(r)
			if err != nil {
				return Operation{}, err
			}
		}
	}
	numSpreads, err := binary.ReadUvarint(r)
	if err != nil {
		return Operation{}, err
	}
	var spreads []bool
	if numSpreads > 0 {
		spreads = make([]bool, numSpreads)
		for i := range spreads {
			b, err := r.ReadByte()
			if err != nil {
				return Operation{}, err
			}
			spreads[i] = b != 0
		}
	}
	return Operation{
		Op:            op,
		IntValue:      intVal,
		FloatValue:    floatVal,
		StringValue:   strVal,
		StringValue2:  str2Val,
		BoolValue:     boolByte != 0,
		Comparator:    Comparator(cmpByte),
		BinaryOp:      BinaryOp(binByte),
		UnaryOp:       UnaryOp(unByte),
		FunctionKind:  FunctionKind(fnByte),
		NumParameters: int(numParams),
		PropertyNames: props,
		Spreads:       spreads,
	}, nil
}
