package marker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/sdrange/pkg/ir"
)

func decode(t *testing.T, args ...ir.Value) (Triple, error) {
	t.Helper()
	b := ir.NewBuilder("md")
	call := b.Func("main").Block("entry").Call(ir.Func(DefaultIntrinsic), args...)
	b.Build()
	return DecodeMetadata(call)
}

func TestDecodeMetadata(t *testing.T) {
	vptr := ir.Opaque{Text: "%vptr"}

	got, err := decode(t, vptr,
		ir.MD(classMD("_ZTV5Shape")),
		ir.MD(classMD("_ZTV6Circle")),
		ir.MD(ir.Tuple(ir.Str("area"))))
	require.NoError(t, err)
	require.Equal(t, Triple{DeclaredClass: "_ZTV5Shape", PreciseClass: "_ZTV6Circle", Method: "area"}, got)

	// The method name may also be passed as a bare string node.
	got, err = decode(t, vptr,
		ir.MD(classMD("_ZTV1A")),
		ir.MD(classMD("_ZTV1A")),
		ir.MD(ir.Str("foo")))
	require.NoError(t, err)
	require.Equal(t, "foo", got.Method)
}

func TestDecodeMetadata_Malformed(t *testing.T) {
	vptr := ir.Opaque{Text: "%vptr"}
	good := ir.MD(classMD("_ZTV1A"))
	method := ir.MD(ir.Str("foo"))

	tests := []struct {
		name string
		args []ir.Value
	}{
		{name: "missing_operands", args: []ir.Value{vptr, good}},
		{name: "not_metadata", args: []ir.Value{vptr, ir.Opaque{Text: "i32 0"}, good, method}},
		{name: "class_is_string", args: []ir.Value{vptr, ir.MD(ir.Str("_ZTV1A")), good, method}},
		{name: "class_tuple_empty", args: []ir.Value{vptr, ir.MD(ir.Tuple()), good, method}},
		{name: "class_node_without_string", args: []ir.Value{vptr, good, ir.MD(ir.Tuple(ir.Tuple(ir.Tuple()))), method}},
		{name: "class_not_vtable", args: []ir.Value{vptr, ir.MD(classMD("_ZTI1A")), good, method}},
		{name: "method_not_string", args: []ir.Value{vptr, good, good, ir.MD(&ir.MDOther{Text: "null"})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(t, tt.args...)
			require.ErrorIs(t, err, ErrMalformedMetadata)
		})
	}
}
