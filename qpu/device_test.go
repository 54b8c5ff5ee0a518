//go:build unit
// +build unit

package qpu

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDeviceSetting(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    *DeviceSetting
		wantErr bool
	}{
		{
			name: "full",
			content: heredoc.Doc(`
				device_name = "wako"
				max_qubits = 8
				epsilon = 1e-6
			`),
			want: &DeviceSetting{DeviceName: "wako", MaxQubits: 8, Epsilon: 1e-6},
		},
		{
			name:    "partial",
			content: `max_qubits = 4`,
			want:    &DeviceSetting{DeviceName: DummyDeviceName, MaxQubits: 4, Epsilon: 1e-9},
		},
		{
			name:    "zero qubits",
			content: `max_qubits = 0`,
			wantErr: true,
		},
		{
			name:    "broken",
			content: `max_qubits = "many`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "device.toml")
			require.Nil(t, os.WriteFile(path, []byte(tt.content), 0o600))
			ds, err := LoadDeviceSetting(path)
			if tt.wantErr {
				assert.NotNil(t, err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tt.want, ds)
		})
	}
}

func TestLoadDeviceSettingDefaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.toml")} {
		ds, err := LoadDeviceSetting(path)
		require.Nil(t, err)
		assert.Equal(t, NewDeviceSetting(), ds)
	}
}
