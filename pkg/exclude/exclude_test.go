package exclude

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilter_Default(t *testing.T) {
	tests := []struct {
		name     string
		callee   string
		excluded bool
	}{
		{name: "reserved_prefix", callee: "__cxa_throw", excluded: true},
		{name: "intrinsic", callee: "llvm.memcpy.p0i8.p0i8.i64", excluded: true},
		{name: "marker_intrinsic", callee: "llvm.sd.get.checked.vptr", excluded: true},
		{name: "operator_new", callee: "_Znwm", excluded: true},
		{name: "operator_new_array", callee: "_Znam", excluded: false},
		{name: "single_underscore", callee: "_ZN1A3fooEv", excluded: false},
		{name: "plain", callee: "printf", excluded: false},
		{name: "llvm_without_dot", callee: "llvmish", excluded: false},
	}

	f := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.excluded, f.Excluded(tt.callee))
		})
	}
}

func TestNewFilter(t *testing.T) {
	f, err := NewFilter([]string{"std."}, []string{"malloc"})
	require.NoError(t, err)
	require.True(t, f.Excluded("std.sort"))
	require.True(t, f.Excluded("malloc"))
	require.False(t, f.Excluded("__cxa_throw"), "custom rules replace the defaults")

	_, err = NewFilter([]string{"bad prefix"}, nil)
	require.Error(t, err)

	_, err = NewFilter(nil, []string{"a,b"})
	require.Error(t, err)
}
