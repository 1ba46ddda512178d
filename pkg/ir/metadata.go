package ir

import "strings"

// Metadata is a metadata node.
type Metadata interface {
	isMetadata()
}

// MDString is a string-valued metadata node (!"text").
type MDString struct{ Value string }

// MDTuple is a generic metadata tuple (!{...}).
type MDTuple struct{ Operands []Metadata }

// MDOther is metadata the analyses do not interpret (specialized nodes,
// constants wrapped as metadata, null).
type MDOther struct{ Text string }

func (*MDString) isMetadata() {}
func (*MDTuple) isMetadata()  {}
func (*MDOther) isMetadata()  {}

// Str returns a string node.
func Str(s string) *MDString { return &MDString{Value: s} }

// Tuple returns a tuple node.
func Tuple(ops ...Metadata) *MDTuple { return &MDTuple{Operands: ops} }

// Operand returns the n-th operand of a tuple node or nil.
func (t *MDTuple) Operand(n int) Metadata {
	if t == nil || n < 0 || n >= len(t.Operands) {
		return nil
	}
	return t.Operands[n]
}

// MetadataString renders a node in a compact textual form for diagnostics.
func MetadataString(md Metadata) string {
	var b strings.Builder
	writeMetadata(&b, md, 0)
	return b.String()
}

func writeMetadata(b *strings.Builder, md Metadata, depth int) {
	if depth > 8 {
		b.WriteString("...")
		return
	}
	switch md := md.(type) {
	case *MDString:
		b.WriteString(`!"`)
		b.WriteString(md.Value)
		b.WriteByte('"')
	case *MDTuple:
		b.WriteString("!{")
		for i, op := range md.Operands {
			if i > 0 {
				b.WriteString(", ")
			}
			writeMetadata(b, op, depth+1)
		}
		b.WriteByte('}')
	case *MDOther:
		b.WriteString(md.Text)
	default:
		b.WriteString("null")
	}
}
