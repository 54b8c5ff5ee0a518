package plugin

import (
	"fmt"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/common"
	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/log"
	"github.com/oqtopus-team/cosim-plugin/native"
	"go.uber.org/multierr"
)

// Handlers receive the Context of the callback they serve. The Context is
// only valid until the handler returns.
type (
	InitHandler              func(c *Context, cmds []*core.ArbCmd) error
	DropHandler              func(c *Context) error
	RunHandler               func(c *Context, args *core.ArbData) (*core.ArbData, error)
	AllocateHandler          func(c *Context, qubits []core.QubitRef, cmds []*core.ArbCmd) error
	FreeHandler              func(c *Context, qubits []core.QubitRef) error
	UnitaryGateHandler       func(c *Context, targets []core.QubitRef, matrix *core.Matrix) error
	ControlledGateHandler    func(c *Context, targets, controls []core.QubitRef, matrix *core.Matrix) error
	MeasurementGateHandler   func(c *Context, measures []core.QubitRef) (*core.MeasurementSet, error)
	CustomGateHandler        func(c *Context, gate *core.Gate) (*core.MeasurementSet, error)
	ModifyMeasurementHandler func(c *Context, meas *core.Measurement) ([]*core.Measurement, error)
	AdvanceHandler           func(c *Context, cycles uint64) error
	ArbHandler               func(c *Context, cmd *core.ArbCmd) (*core.ArbData, error)
)

// Definition describes a plugin: its role, metadata and handlers. Builder
// methods record misuse and Run or Start report it.
type Definition struct {
	typ     native.PluginType
	name    string
	author  string
	version string

	init              InitHandler
	drop              DropHandler
	run               RunHandler
	allocate          AllocateHandler
	free              FreeHandler
	unitary           UnitaryGateHandler
	controlled        ControlledGateHandler
	measurement       MeasurementGateHandler
	custom            map[string]CustomGateHandler
	modifyMeasurement ModifyMeasurementHandler
	advance           AdvanceHandler

	router  *router
	metrics *log.DispatchMetrics

	errs    error
	started atomic.Bool
}

func newDefinition(typ native.PluginType, name, author, version string) *Definition {
	return &Definition{
		typ:     typ,
		name:    name,
		author:  author,
		version: version,
		custom:  map[string]CustomGateHandler{},
		router:  newRouter(),
	}
}

// NewFrontend defines a frontend. run is called for every Run issued by the
// host and is required.
func NewFrontend(name, author, version string, run RunHandler) *Definition {
	d := newDefinition(native.PluginTypeFrontend, name, author, version)
	if run == nil {
		d.fail(requiredErr("handle_run"))
	}
	d.run = run
	return d
}

// NewOperator defines an operator. Every hook that is not set forwards to
// the downstream plugin.
func NewOperator(name, author, version string) *Definition {
	return newDefinition(native.PluginTypeOperator, name, author, version)
}

// NewBackend defines a backend. The unitary and measurement handlers are
// required; a controlled handler set through OnControlledGate takes
// precedence over unitary.
func NewBackend(name, author, version string, unitary UnitaryGateHandler, measurement MeasurementGateHandler) *Definition {
	d := newDefinition(native.PluginTypeBackend, name, author, version)
	if unitary == nil {
		d.fail(requiredErr("handle_unitary_gate"))
	}
	if measurement == nil {
		d.fail(requiredErr("handle_measurement_gate"))
	}
	d.unitary = unitary
	d.measurement = measurement
	return d
}

func (d *Definition) Type() native.PluginType {
	return d.typ
}

func (d *Definition) Name() string {
	return d.name
}

func (d *Definition) fail(err error) {
	d.errs = multierr.Append(d.errs, err)
}

func (d *Definition) allow(hook string, roles ...native.PluginType) bool {
	for _, r := range roles {
		if r == d.typ {
			return true
		}
	}
	d.fail(errors.Wrapf(core.ErrValue, "%s is not supported for %s plugins", hook, d.typ))
	return false
}

func (d *Definition) OnInit(h InitHandler) *Definition {
	d.init = h
	return d
}

func (d *Definition) OnDrop(h DropHandler) *Definition {
	d.drop = h
	return d
}

func (d *Definition) OnAllocate(h AllocateHandler) *Definition {
	if d.allow("handle_allocate", native.PluginTypeOperator, native.PluginTypeBackend) {
		d.allocate = h
	}
	return d
}

func (d *Definition) OnFree(h FreeHandler) *Definition {
	if d.allow("handle_free", native.PluginTypeOperator, native.PluginTypeBackend) {
		d.free = h
	}
	return d
}

func (d *Definition) OnUnitaryGate(h UnitaryGateHandler) *Definition {
	if d.allow("handle_unitary_gate", native.PluginTypeOperator, native.PluginTypeBackend) {
		d.unitary = h
	}
	return d
}

func (d *Definition) OnControlledGate(h ControlledGateHandler) *Definition {
	if d.allow("handle_controlled_gate", native.PluginTypeOperator, native.PluginTypeBackend) {
		d.controlled = h
	}
	return d
}

func (d *Definition) OnMeasurementGate(h MeasurementGateHandler) *Definition {
	if d.allow("handle_measurement_gate", native.PluginTypeOperator, native.PluginTypeBackend) {
		d.measurement = h
	}
	return d
}

// OnCustomGate registers the handler of custom gates called name.
func (d *Definition) OnCustomGate(name string, h CustomGateHandler) *Definition {
	hook := fmt.Sprintf("handle_%s_gate", name)
	if !d.allow(hook, native.PluginTypeOperator, native.PluginTypeBackend) {
		return d
	}
	if name == "" {
		d.fail(errors.Wrap(core.ErrValue, "custom gate name is empty"))
		return d
	}
	d.custom[name] = h
	return d
}

func (d *Definition) OnModifyMeasurement(h ModifyMeasurementHandler) *Definition {
	if d.allow("handle_modify_measurement", native.PluginTypeOperator) {
		d.modifyMeasurement = h
	}
	return d
}

func (d *Definition) OnAdvance(h AdvanceHandler) *Definition {
	if d.allow("handle_advance", native.PluginTypeOperator, native.PluginTypeBackend) {
		d.advance = h
	}
	return d
}

// OnHostArb registers the handler of ArbCmds sent by the host.
func (d *Definition) OnHostArb(iface, oper string, h ArbHandler) *Definition {
	if err := d.router.register(Host, iface, oper, h); err != nil {
		d.fail(err)
	}
	return d
}

// OnUpstreamArb registers the handler of ArbCmds sent by the upstream plugin.
func (d *Definition) OnUpstreamArb(iface, oper string, h ArbHandler) *Definition {
	if !d.allow(handlerName(Upstream, iface, oper), native.PluginTypeOperator, native.PluginTypeBackend) {
		return d
	}
	if err := d.router.register(Upstream, iface, oper, h); err != nil {
		d.fail(err)
	}
	return d
}

// DeclareHostIfaces marks interfaces as known without registering an
// operation, so that any command sent to them fails instead of being ignored.
func (d *Definition) DeclareHostIfaces(ifaces ...string) *Definition {
	for _, iface := range ifaces {
		if err := d.router.declare(Host, iface); err != nil {
			d.fail(err)
		}
	}
	return d
}

func (d *Definition) DeclareUpstreamIfaces(ifaces ...string) *Definition {
	for _, iface := range ifaces {
		if err := d.router.declare(Upstream, iface); err != nil {
			d.fail(err)
		}
	}
	return d
}

// ApplySetting overrides the metadata with the non-empty fields of s and
// declares its known interfaces.
func (d *Definition) ApplySetting(s *core.Setting) *Definition {
	if s.Plugin.Name != "" {
		d.name = s.Plugin.Name
	}
	if s.Plugin.Author != "" {
		d.author = s.Plugin.Author
	}
	if s.Plugin.Version != "" {
		d.version = s.Plugin.Version
	}
	d.DeclareHostIfaces(s.KnownHostIfaces...)
	if len(s.KnownUpstreamIfaces) > 0 && d.typ != native.PluginTypeFrontend {
		d.DeclareUpstreamIfaces(s.KnownUpstreamIfaces...)
	}
	return d
}

// WithMetrics makes the plugin record its callbacks in m instead of a
// private DispatchMetrics.
func (d *Definition) WithMetrics(m *log.DispatchMetrics) *Definition {
	d.metrics = m
	return d
}

func (d *Definition) Err() error {
	return d.errs
}

func checkIdentifier(kind, s string) error {
	if !common.ValidIdentifier(s) {
		return errors.Wrapf(core.ErrValue, "invalid %s %q", kind, s)
	}
	return nil
}
