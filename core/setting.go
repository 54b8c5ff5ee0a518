package core

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/oqtopus-team/cosim-plugin/common"
	"go.uber.org/zap"
)

// PluginSetting overrides the metadata a plugin definition was created with.
type PluginSetting struct {
	Name    string `toml:"name"`
	Author  string `toml:"author"`
	Version string `toml:"version"`
}

// InitCmdSetting is one initialization command. Data is a JSON object.
type InitCmdSetting struct {
	Iface string `toml:"iface"`
	Oper  string `toml:"oper"`
	Data  string `toml:"data"`
}

type Setting struct {
	Plugin              PluginSetting    `toml:"plugin"`
	KnownHostIfaces     []string         `toml:"known_host_ifaces"`
	KnownUpstreamIfaces []string         `toml:"known_upstream_ifaces"`
	InitCmds            []InitCmdSetting `toml:"init_cmds"`
}

func NewSetting() *Setting {
	return &Setting{
		KnownHostIfaces:     []string{},
		KnownUpstreamIfaces: []string{},
		InitCmds:            []InitCmdSetting{},
	}
}

func ParseSettingFromPath(settingsPath string) (*Setting, error) {
	tomlString, err := common.ReadSettingsFile(settingsPath)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to read setting file/reason:%s", err))
		return nil, err
	}
	return ParseSetting(tomlString)
}

func ParseSetting(tomlString string) (*Setting, error) {
	s := NewSetting()
	if _, err := toml.Decode(tomlString, s); err != nil {
		zap.L().Error(fmt.Sprintf("failed to parse setting/reason:%s", err))
		return nil, err
	}
	for _, iface := range append(append([]string{}, s.KnownHostIfaces...), s.KnownUpstreamIfaces...) {
		if !common.ValidIdentifier(iface) {
			return nil, valueErrorf("%q is not a valid interface identifier", iface)
		}
	}
	zap.L().Debug(fmt.Sprintf("Setting is %+v", s))
	return s, nil
}

// ArbCmds converts the configured initialization commands.
func (s *Setting) ArbCmds() (*ArbCmdQueue, error) {
	q := &ArbCmdQueue{}
	for i, c := range s.InitCmds {
		data, err := ArbDataFromJSON(c.Data)
		if err != nil {
			return nil, fmt.Errorf("init command %d: %w", i, err)
		}
		cmd, err := NewArbCmd(c.Iface, c.Oper, data)
		if err != nil {
			return nil, fmt.Errorf("init command %d: %w", i, err)
		}
		q.cmds = append(q.cmds, cmd)
	}
	return q, nil
}
