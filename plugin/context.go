package plugin

import (
	"context"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/native"
	"go.uber.org/zap"
)

// Context is handed to every handler. It identifies the in-flight callback
// and gives access to the plugin operations of the engine. All methods fail
// with ErrOutsideCallback once the handler has returned.
type Context struct {
	inst     *instance
	state    native.StateID
	ctx      context.Context
	callback string
	active   atomic.Bool
}

func newContext(inst *instance, state native.StateID, ctx context.Context, callback string) *Context {
	c := &Context{inst: inst, state: state, ctx: ctx, callback: callback}
	c.active.Store(true)
	return c
}

func (c *Context) invalidate() {
	c.active.Store(false)
}

func (c *Context) check() (native.Engine, error) {
	if c == nil || !c.active.Load() {
		return nil, ErrOutsideCallback
	}
	return c.inst.eng, nil
}

// Context returns the context.Context of the callback, which carries its
// trace span.
func (c *Context) Context() context.Context {
	if _, err := c.check(); err != nil {
		return context.Background()
	}
	return c.ctx
}

// Logger returns the global logger annotated with the plugin and callback.
func (c *Context) Logger() *zap.Logger {
	if _, err := c.check(); err != nil {
		return zap.L()
	}
	return zap.L().With(
		zap.String("plugin", c.inst.def.name),
		zap.String("callback", c.callback))
}

func (c *Context) Info() *core.PluginInfo {
	return c.inst.info
}

// Allocate asks the downstream plugin for num qubits.
func (c *Context) Allocate(num int, cmds ...*core.ArbCmd) ([]core.QubitRef, error) {
	eng, err := c.check()
	if err != nil {
		return nil, err
	}
	queue, err := core.ArbCmdQueueFromSlice(cmds)
	if err != nil {
		return nil, err
	}
	qh, err := queue.ToRaw(eng)
	if err != nil {
		return nil, err
	}
	defer qh.Release()
	qid, err := qh.Borrow()
	if err != nil {
		return nil, err
	}
	res, err := eng.PluginAllocate(c.state, num, qid)
	if err != nil {
		return nil, err
	}
	if _, err := qh.Take(); err != nil {
		return nil, err
	}
	rh := handle.New(eng, res)
	defer rh.Release()
	qubits, err := core.QubitSetFromRaw(eng, rh)
	if err != nil {
		return nil, err
	}
	return qubits.Qubits(), nil
}

// Free releases qubits allocated through Allocate.
func (c *Context) Free(qubits ...core.QubitRef) error {
	eng, err := c.check()
	if err != nil {
		return err
	}
	set, err := core.QubitSetFromSlice(qubits)
	if err != nil {
		return err
	}
	h, err := set.ToRaw(eng)
	if err != nil {
		return err
	}
	return consumeWith(h, func(id native.ID) error {
		return eng.PluginFree(c.state, id)
	})
}

// Gate sends g to the downstream plugin. Measurement results become
// available through GetMeasurement once Gate returns.
func (c *Context) Gate(g *core.Gate) error {
	eng, err := c.check()
	if err != nil {
		return err
	}
	h, err := g.Encode(eng)
	if err != nil {
		return err
	}
	return consumeWith(h, func(id native.ID) error {
		return eng.PluginGate(c.state, id)
	})
}

func (c *Context) Unitary(matrix *core.Matrix, targets ...core.QubitRef) error {
	g, err := core.NewUnitaryGate(targets, nil, matrix)
	if err != nil {
		return err
	}
	return c.Gate(g)
}

func (c *Context) Measure(qubits ...core.QubitRef) error {
	g, err := core.NewMeasurementGate(qubits)
	if err != nil {
		return err
	}
	return c.Gate(g)
}

// GetMeasurement returns the latest measurement of qubit.
func (c *Context) GetMeasurement(qubit core.QubitRef) (*core.Measurement, error) {
	eng, err := c.check()
	if err != nil {
		return nil, err
	}
	id, err := eng.PluginGetMeasurement(c.state, uint64(qubit))
	if err != nil {
		return nil, err
	}
	h := handle.New(eng, id)
	defer h.Release()
	return core.DecodeMeasurement(eng, h)
}

func (c *Context) GetCyclesSinceMeasure(qubit core.QubitRef) (uint64, error) {
	eng, err := c.check()
	if err != nil {
		return 0, err
	}
	return eng.PluginGetCyclesSinceMeasure(c.state, uint64(qubit))
}

func (c *Context) GetCycle() (uint64, error) {
	eng, err := c.check()
	if err != nil {
		return 0, err
	}
	return eng.PluginGetCycle(c.state)
}

// Advance moves simulation time forward and returns the new cycle.
func (c *Context) Advance(cycles uint64) (uint64, error) {
	eng, err := c.check()
	if err != nil {
		return 0, err
	}
	return eng.PluginAdvance(c.state, cycles)
}

// Arb sends cmd to the downstream plugin and returns its answer.
func (c *Context) Arb(cmd *core.ArbCmd) (*core.ArbData, error) {
	eng, err := c.check()
	if err != nil {
		return nil, err
	}
	h, err := cmd.Encode(eng)
	if err != nil {
		return nil, err
	}
	var res native.ID
	if err := consumeWith(h, func(id native.ID) error {
		res, err = eng.PluginArb(c.state, id)
		return err
	}); err != nil {
		return nil, err
	}
	rh := handle.New(eng, res)
	defer rh.Release()
	return core.DecodeArbData(eng, rh)
}

// Send queues data for the host. Only frontends can send.
func (c *Context) Send(data *core.ArbData) error {
	eng, err := c.check()
	if err != nil {
		return err
	}
	h, err := data.Encode(eng, nil)
	if err != nil {
		return err
	}
	return consumeWith(h, func(id native.ID) error {
		return eng.PluginSend(c.state, id)
	})
}

// Recv returns the oldest data the host sent. Only frontends can receive.
func (c *Context) Recv() (*core.ArbData, error) {
	eng, err := c.check()
	if err != nil {
		return nil, err
	}
	id, err := eng.PluginRecv(c.state)
	if err != nil {
		return nil, err
	}
	h := handle.New(eng, id)
	defer h.Release()
	return core.DecodeArbData(eng, h)
}

func (c *Context) RandomFloat() (float64, error) {
	eng, err := c.check()
	if err != nil {
		return 0, err
	}
	return eng.PluginRandomF64(c.state)
}

func (c *Context) RandomUint64() (uint64, error) {
	eng, err := c.check()
	if err != nil {
		return 0, err
	}
	return eng.PluginRandomU64(c.state)
}

// consumeWith passes h to an engine call that consumes it on success and
// releases it otherwise.
func consumeWith(h *handle.Handle, call func(id native.ID) error) error {
	defer h.Release()
	id, err := h.Borrow()
	if err != nil {
		return err
	}
	if err := call(id); err != nil {
		return err
	}
	if _, err := h.Take(); err != nil {
		return errors.Wrap(err, "take consumed handle")
	}
	return nil
}
