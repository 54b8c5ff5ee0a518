//go:build unit
// +build unit

package core

import (
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSetting(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
		want    *Setting
	}{
		{
			name: "empty",
			in:   "",
			want: NewSetting(),
		},
		{
			name: "full",
			in: heredoc.Doc(`
				known_host_ifaces = ["ctl"]
				known_upstream_ifaces = ["noise", "trace"]

				[plugin]
				name = "null"
				author = "cosim"
				version = "0.1.0"

				[[init_cmds]]
				iface = "noise"
				oper = "set"
				data = '{"p": 0.5}'
			`),
			want: &Setting{
				Plugin:              PluginSetting{Name: "null", Author: "cosim", Version: "0.1.0"},
				KnownHostIfaces:     []string{"ctl"},
				KnownUpstreamIfaces: []string{"noise", "trace"},
				InitCmds:            []InitCmdSetting{{Iface: "noise", Oper: "set", Data: `{"p": 0.5}`}},
			},
		},
		{
			name:    "bad interface",
			in:      `known_host_ifaces = ["a-b"]`,
			wantErr: ErrValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSetting(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettingArbCmds(t *testing.T) {
	s := NewSetting()
	s.InitCmds = []InitCmdSetting{
		{Iface: "a", Oper: "b", Data: `{"k": "v"}`},
		{Iface: "c", Oper: "d"},
	}
	q, err := s.ArbCmds()
	require.Nil(t, err)
	cmds := q.Cmds()
	require.Equal(t, 2, len(cmds))
	v, ok := cmds[0].Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, "d", cmds[1].Oper())

	s.InitCmds = []InitCmdSetting{{Iface: "a", Oper: "b", Data: "[]"}}
	_, err = s.ArbCmds()
	assert.ErrorIs(t, err, ErrType)

	s.InitCmds = []InitCmdSetting{{Iface: "a b", Oper: "b"}}
	_, err = s.ArbCmds()
	assert.ErrorIs(t, err, ErrValue)
}
