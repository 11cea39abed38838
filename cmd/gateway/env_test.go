package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFlagEnv_String(t *testing.T) {
	t.Parallel()

	env := newFlagEnv(mapLookup(map[string]string{
		"GATEWAY_LOG_LEVEL":  "debug",
		"GATEWAY_LOG_FORMAT": "",
		"LOG_LEVEL":          "error",
	}))

	assert.Equal(t, "debug", env.stringOr("LOG_LEVEL", "info"))
	assert.Equal(t, "json", env.stringOr("LOG_FORMAT", "json"))
	assert.Equal(t, "x", env.stringOr("MISSING", "x"))
	assert.NoError(t, env.err())
}

func TestFlagEnv_Bool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		def     bool
		want    bool
		wantErr bool
	}{
		{name: "true", value: "true", want: true},
		{name: "one", value: "1", want: true},
		{name: "upper", value: "TRUE", want: true},
		{name: "false", value: "false", def: true, want: false},
		{name: "zero", value: "0", def: true, want: false},
		{name: "empty", value: "", def: true, want: true},
		{name: "invalid", value: "maybe", def: true, want: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newFlagEnv(mapLookup(map[string]string{"GATEWAY_SHOW_VERSION": tt.value}))
			assert.Equal(t, tt.want, env.boolOr("SHOW_VERSION", tt.def))

			if tt.wantErr {
				require.Error(t, env.err())
				assert.Contains(t, env.err().Error(), "GATEWAY_SHOW_VERSION")
			} else {
				assert.NoError(t, env.err())
			}
		})
	}
}
