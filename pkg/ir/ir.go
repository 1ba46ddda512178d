// Package ir provides a read-only, arena-indexed view of a compiled module:
// functions, basic blocks, instructions, call operands, metadata nodes and
// debug locations.
//
// Instructions are identified by their InstID, an index into the module's
// instruction arena. Analyses that need to decorate instructions keep side
// tables keyed by InstID instead of mutating the module.
package ir

import (
	"fmt"
	"strings"
)

// InstID identifies an instruction within its module.
type InstID int

// Location is a source location as reported by debug information.
type Location struct {
	File     string `json:"file"`
	Function string `json:"function,omitempty"` // name of the enclosing scope, if known
	Line     uint32 `json:"line"`
	Column   uint32 `json:"column"`
}

// String formats the location as file:line:column.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Module is a whole compiled module.
type Module struct {
	Name  string
	Funcs []*Function

	insts []*Instruction
	users map[InstID][]InstID
	index map[string]*Function
}

// Function returns the function with the given name or nil.
func (m *Module) Function(name string) *Function {
	return m.index[name]
}

// Inst returns the instruction with the given ID. It panics on IDs that do
// not belong to the module.
func (m *Module) Inst(id InstID) *Instruction {
	return m.insts[id]
}

// Users returns the instructions that consume the result of id, in program
// order.
func (m *Module) Users(id InstID) []InstID {
	return m.users[id]
}

// CallersOf returns every call instruction whose callee is the named
// function, in program order.
func (m *Module) CallersOf(name string) []*Instruction {
	var calls []*Instruction
	for _, inst := range m.insts {
		if callee, ok := inst.CalledFunction(); ok && callee == name {
			calls = append(calls, inst)
		}
	}
	return calls
}

// Function is a defined or declared function.
type Function struct {
	Name   string
	Blocks []*Block
}

// IsDeclaration reports whether the function has no body.
func (f *Function) IsDeclaration() bool {
	return len(f.Blocks) == 0
}

// Block is a basic block.
type Block struct {
	Name   string
	Parent *Function
	Insts  []*Instruction
}

// Instruction is a single IR instruction. For calls, Callee holds the called
// value and Operands the call arguments; for everything else Operands holds
// the instruction's operands.
type Instruction struct {
	ID       InstID
	Opcode   string
	Callee   Value
	Operands []Value
	Loc      *Location // nil when the compiler attached none
	Block    *Block
}

// IsCall reports whether the instruction is a call.
func (i *Instruction) IsCall() bool {
	return i.Opcode == OpCall
}

// CalledFunction returns the name of the directly called function. It returns
// false for non-calls and for indirect calls.
func (i *Instruction) CalledFunction() (string, bool) {
	if !i.IsCall() {
		return "", false
	}
	fn, ok := i.Callee.(FuncRef)
	if !ok {
		return "", false
	}
	return fn.Name, true
}

// Arg returns the n-th call argument or nil when out of range.
func (i *Instruction) Arg(n int) Value {
	if n < 0 || n >= len(i.Operands) {
		return nil
	}
	return i.Operands[n]
}

// Function returns the enclosing function.
func (i *Instruction) Function() *Function {
	if i.Block == nil {
		return nil
	}
	return i.Block.Parent
}

func (i *Instruction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%%%d = %s", i.ID, i.Opcode)
	if i.IsCall() {
		b.WriteByte(' ')
		b.WriteString(valueString(i.Callee))
	}
	for n, op := range i.Operands {
		if n == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		b.WriteString(valueString(op))
	}
	return b.String()
}

// Opcodes the analyses care about. Loaders may use any other opcode name.
const (
	OpCall          = "call"
	OpLoad          = "load"
	OpStore         = "store"
	OpBitCast       = "bitcast"
	OpGetElementPtr = "getelementptr"
	OpRet           = "ret"
)

// Value is an instruction operand.
type Value interface {
	isValue()
}

// InstRef is the result of another instruction.
type InstRef struct{ ID InstID }

// FuncRef is a reference to a named function.
type FuncRef struct{ Name string }

// MetadataArg is a metadata node passed as a value.
type MetadataArg struct{ Node Metadata }

// Opaque is any other value (constants, globals, parameters).
type Opaque struct{ Text string }

func (InstRef) isValue()     {}
func (FuncRef) isValue()     {}
func (MetadataArg) isValue() {}
func (Opaque) isValue()      {}

func valueString(v Value) string {
	switch v := v.(type) {
	case InstRef:
		return fmt.Sprintf("%%%d", v.ID)
	case FuncRef:
		return "@" + v.Name
	case MetadataArg:
		return "metadata " + MetadataString(v.Node)
	case Opaque:
		return v.Text
	}
	return "<nil>"
}
