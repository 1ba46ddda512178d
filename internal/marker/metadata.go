package marker

import (
	"errors"
	"fmt"

	"github.com/715d/sdrange/pkg/demangle"
	"github.com/715d/sdrange/pkg/ir"
)

// ErrMalformedMetadata reports a marker call whose metadata operands do not
// have the shape the instrumentation stage guarantees.
var ErrMalformedMetadata = errors.New("malformed checked-dispatch metadata")

// Argument positions of the metadata operands on a marker call.
const (
	argDeclaredClass = 1
	argPreciseClass  = 2
	argMethod        = 3
)

// Triple is the static class context attached to a marker call.
type Triple struct {
	DeclaredClass string // vtable symbol of the static type at the call
	PreciseClass  string // vtable symbol of the most precise known type
	Method        string
}

// DecodeMetadata extracts the class/method triple from a marker call.
func DecodeMetadata(markerCall *ir.Instruction) (Triple, error) {
	declared, err := classOperand(markerCall, argDeclaredClass)
	if err != nil {
		return Triple{}, err
	}
	precise, err := classOperand(markerCall, argPreciseClass)
	if err != nil {
		return Triple{}, err
	}
	method, err := methodOperand(markerCall, argMethod)
	if err != nil {
		return Triple{}, err
	}
	return Triple{DeclaredClass: declared, PreciseClass: precise, Method: method}, nil
}

func metadataArg(call *ir.Instruction, pos int) (ir.Metadata, error) {
	arg, ok := call.Arg(pos).(ir.MetadataArg)
	if !ok {
		return nil, malformed(call, pos, "not a metadata operand")
	}
	return arg.Node, nil
}

// classOperand reads !{!{!"<vtable>"}, ...}: a tuple whose first operand is a
// node wrapping the vtable symbol.
func classOperand(call *ir.Instruction, pos int) (string, error) {
	md, err := metadataArg(call, pos)
	if err != nil {
		return "", err
	}
	tuple, ok := md.(*ir.MDTuple)
	if !ok {
		return "", malformed(call, pos, "class operand is not a tuple")
	}
	inner, ok := tuple.Operand(0).(*ir.MDTuple)
	if !ok {
		return "", malformed(call, pos, "class tuple does not start with a node")
	}
	str, ok := inner.Operand(0).(*ir.MDString)
	if !ok {
		return "", malformed(call, pos, "class node does not wrap a string")
	}
	if !demangle.IsVtableName(str.Value) {
		return "", malformed(call, pos, fmt.Sprintf("%q is not a vtable symbol", str.Value))
	}
	return str.Value, nil
}

// methodOperand reads the method name, given either directly as !"name" or
// wrapped as !{!"name"}.
func methodOperand(call *ir.Instruction, pos int) (string, error) {
	md, err := metadataArg(call, pos)
	if err != nil {
		return "", err
	}
	if tuple, ok := md.(*ir.MDTuple); ok {
		md = tuple.Operand(0)
	}
	str, ok := md.(*ir.MDString)
	if !ok {
		return "", malformed(call, pos, "method operand is not a string")
	}
	return str.Value, nil
}

func malformed(call *ir.Instruction, pos int, reason string) error {
	return fmt.Errorf("%w: %s: argument %d: %s", ErrMalformedMetadata, call, pos, reason)
}
