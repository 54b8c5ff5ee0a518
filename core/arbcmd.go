package core

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/common"
	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/native"
)

// ArbCmd is an ArbData addressed to an interface and an operation.
type ArbCmd struct {
	ArbData
	iface string
	oper  string
}

// NewArbCmd validates both identifiers. A nil data is an empty payload.
func NewArbCmd(iface, oper string, data *ArbData) (*ArbCmd, error) {
	if !common.ValidIdentifier(iface) {
		return nil, valueErrorf("%q is not a valid interface identifier", iface)
	}
	if !common.ValidIdentifier(oper) {
		return nil, valueErrorf("%q is not a valid operation identifier", oper)
	}
	c := &ArbCmd{ArbData: *NewArbData(), iface: iface, oper: oper}
	if data != nil {
		c.ArbData = *data.Clone()
	}
	return c, nil
}

func (c *ArbCmd) Iface() string {
	return c.iface
}

func (c *ArbCmd) Oper() string {
	return c.oper
}

// Data returns a copy of the payload.
func (c *ArbCmd) Data() *ArbData {
	return c.ArbData.Clone()
}

func (c *ArbCmd) Clone() *ArbCmd {
	return &ArbCmd{ArbData: *c.ArbData.Clone(), iface: c.iface, oper: c.oper}
}

func (c *ArbCmd) Equal(o *ArbCmd) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.iface == o.iface && c.oper == o.oper && c.ArbData.Equal(&o.ArbData)
}

func (c *ArbCmd) String() string {
	return fmt.Sprintf("ArbCmd(%s.%s, %s)", c.iface, c.oper, c.ArbData.String())
}

// Encode allocates a new ArbCmd resource.
func (c *ArbCmd) Encode(eng native.Engine) (*handle.Handle, error) {
	id, err := eng.CmdNew(c.iface, c.oper)
	if err != nil {
		return nil, err
	}
	h := handle.New(eng, id)
	if err := c.ArbData.encodeInto(eng, id); err != nil {
		h.Release()
		return nil, err
	}
	return h, nil
}

func DecodeArbCmd(eng native.Engine, h *handle.Handle) (*ArbCmd, error) {
	id, err := h.Borrow()
	if err != nil {
		return nil, err
	}
	return decodeArbCmd(eng, id)
}

func decodeArbCmd(eng native.Engine, id native.ID) (*ArbCmd, error) {
	iface, err := eng.CmdIface(id)
	if err != nil {
		return nil, errors.Wrap(err, "get ArbCmd interface")
	}
	oper, err := eng.CmdOper(id)
	if err != nil {
		return nil, errors.Wrap(err, "get ArbCmd operation")
	}
	data, err := decodeArbData(eng, id)
	if err != nil {
		return nil, err
	}
	return &ArbCmd{ArbData: *data, iface: iface, oper: oper}, nil
}
