package core

import (
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// PluginInfo identifies one running plugin instance.
type PluginInfo struct {
	InstanceID string
	Role       string
	Name       string
	Author     string
	Version    string
	Started    strfmt.DateTime
}

func NewPluginInfo(role, name, author, version string) *PluginInfo {
	return &PluginInfo{
		InstanceID: uuid.NewString(),
		Role:       role,
		Name:       name,
		Author:     author,
		Version:    version,
		Started:    strfmt.DateTime(time.Now()),
	}
}

func (p *PluginInfo) String() string {
	return fmt.Sprintf("%s %s %s by %s (instance %s, started %s)",
		p.Role, p.Name, p.Version, p.Author, p.InstanceID, p.Started.String())
}
