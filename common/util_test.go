//go:build unit
// +build unit

package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"a", true},
		{"Abc_123", true},
		{"_", true},
		{"", false},
		{"a-b", false},
		{"a b", false},
		{"ä", false},
		{"a\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidIdentifier(tt.in))
		})
	}
}

func TestNewSimulatorAddress(t *testing.T) {
	a := NewSimulatorAddress()
	b := NewSimulatorAddress()
	assert.True(t, strings.HasPrefix(a, "mem://"))
	assert.NotEqual(t, a, b)
}

func TestReadSettingsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "setting.toml")
	assert.Nil(t, os.WriteFile(path, []byte("seed = 1\n"), 0o600))

	s, err := ReadSettingsFile(path)
	assert.Nil(t, err)
	assert.Equal(t, "seed = 1\n", s)

	_, err = ReadSettingsFile(filepath.Join(dir, "missing.toml"))
	assert.NotNil(t, err)
}

func TestIsDirWritable(t *testing.T) {
	dir := t.TempDir()
	assert.Nil(t, IsDirWritable(dir))
	assert.EqualError(t, IsDirWritable(filepath.Join(dir, "nope")),
		"directory does not exist: "+filepath.Join(dir, "nope"))
}
