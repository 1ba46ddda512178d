package demangle

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestItanium_ClassName(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		want    string
		wantOK  bool
		wantErr error
	}{
		{
			name:   "plain_vtable",
			symbol: "_ZTV1A",
			want:   "A",
			wantOK: true,
		},
		{
			name:   "nested_vtable",
			symbol: "_ZTVN2ns5ShapeE",
			want:   "ns::Shape",
			wantOK: true,
		},
		{
			name:   "construction_vtable",
			symbol: "_ZTC1D0_1B",
			wantOK: false,
		},
		{
			name:   "not_mangled",
			symbol: "plainSymbol",
			wantOK: false,
		},
		{
			name:    "typeinfo_is_unknown_format",
			symbol:  "_ZTI1A",
			wantErr: ErrUnknownFormat,
		},
	}

	d := NewItanium()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ClassName(d, tt.symbol, nil)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestItanium_Memoizes(t *testing.T) {
	d := NewItanium()

	first, err := d.Demangle("_ZTV1A")
	require.NoError(t, err)
	second, err := d.Demangle("_ZTV1A")
	require.NoError(t, err)
	require.Equal(t, first, second)

	_, ok := d.cache.Load("_ZTV1A")
	require.True(t, ok, "result should be cached")

	// Failures are cached too.
	_, err = d.Demangle("notmangled")
	require.Error(t, err)
	cached, ok := d.cache.Load("notmangled")
	require.True(t, ok)
	require.Error(t, cached.err)
}

func TestClassName_DemanglerFailure(t *testing.T) {
	failing := Func(func(string) (string, error) {
		return "", errors.New("status -2")
	})
	name, ok, err := ClassName(failing, "_ZTV1A", nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, name)
}

func TestClassName_Logging(t *testing.T) {
	failing := Func(func(string) (string, error) {
		return "", errors.New("status -2")
	})
	tests := []struct {
		name      string
		demangler Demangler
		symbol    string
		wantLevel string // empty when nothing may be logged
	}{
		{name: "vtable", demangler: NewItanium(), symbol: "_ZTV1A"},
		{name: "construction_vtable", demangler: NewItanium(), symbol: "_ZTC1D0_1B"},
		{name: "demangler_failure", demangler: failing, symbol: "_ZTV1A", wantLevel: "level=WARN"},
		{name: "unknown_format", demangler: NewItanium(), symbol: "_ZTI1A", wantLevel: "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			_, _, _ = ClassName(tt.demangler, tt.symbol, logger)

			if tt.wantLevel == "" {
				require.Empty(t, buf.String())
				return
			}
			require.Contains(t, buf.String(), tt.wantLevel)
			require.Contains(t, buf.String(), tt.symbol)
		})
	}
}

func TestIsVtableName(t *testing.T) {
	require.True(t, IsVtableName("_ZTV1A"))
	require.True(t, IsVtableName("_ZTC1D0_1B"))
	require.False(t, IsVtableName("_ZTI1A"))
	require.False(t, IsVtableName("foo"))
}
