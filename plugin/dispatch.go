package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/log"
	"github.com/oqtopus-team/cosim-plugin/native"
	"go.uber.org/zap"
)

type lifecycle int

const (
	uninitialized lifecycle = iota
	idle
	inCallback
	dropped
)

func (l lifecycle) String() string {
	switch l {
	case uninitialized:
		return "uninitialized"
	case idle:
		return "idle"
	case inCallback:
		return "in callback"
	case dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

const (
	cbInitialize        = "initialize"
	cbDrop              = "drop"
	cbRun               = "run"
	cbAllocate          = "allocate"
	cbFree              = "free"
	cbGate              = "gate"
	cbModifyMeasurement = "modify_measurement"
	cbAdvance           = "advance"
	cbUpstreamArb       = "upstream_arb"
	cbHostArb           = "host_arb"
)

// instance is one running copy of a Definition. Callbacks into it are
// strictly sequential.
type instance struct {
	def     *Definition
	eng     native.Engine
	info    *core.PluginInfo
	metrics *log.DispatchMetrics

	mu      sync.Mutex
	state   lifecycle
	current string
}

func newInstance(eng native.Engine, def *Definition) (*instance, error) {
	metrics := def.metrics
	if metrics == nil {
		var err error
		if metrics, err = log.NewDispatchMetrics(); err != nil {
			return nil, err
		}
	}
	return &instance{
		def:     def,
		eng:     eng,
		info:    core.NewPluginInfo(def.typ.String(), def.name, def.author, def.version),
		metrics: metrics,
	}, nil
}

func (p *instance) enter(callback string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case inCallback:
		return errors.Wrapf(ErrReentrant, "%s while in %s", callback, p.current)
	case dropped:
		return errors.Errorf("invalid state, %s after the plugin was dropped", callback)
	case uninitialized:
		if callback != cbInitialize {
			return errors.Errorf("invalid state, %s before the plugin was initialized", callback)
		}
	case idle:
		if callback == cbInitialize {
			return errors.New("invalid state, the plugin is already initialized")
		}
	}
	p.state = inCallback
	p.current = callback
	return nil
}

func (p *instance) leave(callback string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = ""
	if callback == cbDrop {
		p.state = dropped
		return
	}
	p.state = idle
}

func (p *instance) lifecycle() lifecycle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// call runs fn as the callback named callback. The error is logged and
// returned so the engine fails the boundary call that caused it. Handles
// passed in by the engine belong to the plugin even when call rejects the
// callback, so callers wrap them before calling.
func (p *instance) call(state native.StateID, callback string, fn func(c *Context) error) (err error) {
	if err := p.enter(callback); err != nil {
		zap.L().Error(fmt.Sprintf("failed to enter callback/plugin:%s/callback:%s/reason:%s", p.def.name, callback, err))
		return err
	}
	ctx, end := p.metrics.Begin(context.Background(), p.def.name, callback)
	c := newContext(p, state, ctx, callback)
	defer func() {
		c.invalidate()
		end(err)
		p.leave(callback)
		if err != nil {
			zap.L().Debug(fmt.Sprintf("callback failed/plugin:%s/callback:%s/diagnostics:%+v", p.def.name, callback, err))
			zap.L().Error(fmt.Sprintf("failed to handle %s/plugin:%s/reason:%s", callback, p.def.name, err))
		}
	}()
	return fn(c)
}

// install sets every callback the role supports on the definition handle.
func (p *instance) install(pdef native.ID) error {
	eng := p.eng
	errs := []error{
		eng.PdefSetInitializeCallback(pdef, p.onInitialize),
		eng.PdefSetDropCallback(pdef, p.onDrop),
		eng.PdefSetHostArbCallback(pdef, p.onHostArb),
	}
	switch p.def.typ {
	case native.PluginTypeFrontend:
		errs = append(errs, eng.PdefSetRunCallback(pdef, p.onRun))
	case native.PluginTypeOperator:
		errs = append(errs, eng.PdefSetModifyMeasurementCallback(pdef, p.onModifyMeasurement))
		fallthrough
	case native.PluginTypeBackend:
		errs = append(errs,
			eng.PdefSetAllocateCallback(pdef, p.onAllocate),
			eng.PdefSetFreeCallback(pdef, p.onFree),
			eng.PdefSetGateCallback(pdef, p.onGate),
			eng.PdefSetAdvanceCallback(pdef, p.onAdvance),
			eng.PdefSetUpstreamArbCallback(pdef, p.onUpstreamArb))
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *instance) onInitialize(state native.StateID, initCmds native.ID) error {
	h := handle.New(p.eng, initCmds)
	defer h.Release()
	return p.call(state, cbInitialize, func(c *Context) error {
		queue, err := core.ArbCmdQueueFromRaw(p.eng, h)
		if err != nil {
			return err
		}
		if p.def.init != nil {
			return p.def.init(c, queue.Cmds())
		}
		for _, cmd := range queue.Cmds() {
			if _, err := p.def.router.dispatch(c, Host, cmd); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *instance) onDrop(state native.StateID) error {
	return p.call(state, cbDrop, func(c *Context) error {
		if p.def.drop == nil {
			return nil
		}
		return p.def.drop(c)
	})
}

func (p *instance) onRun(state native.StateID, args native.ID) (native.ID, error) {
	h := handle.New(p.eng, args)
	defer h.Release()
	var res native.ID
	err := p.call(state, cbRun, func(c *Context) error {
		data, err := core.DecodeArbData(p.eng, h)
		if err != nil {
			return err
		}
		if p.def.run == nil {
			return requiredErr("handle_run")
		}
		out, err := p.def.run(c, data)
		if err != nil {
			return err
		}
		res, err = p.encodeArb(out)
		return err
	})
	return res, err
}

func (p *instance) onAllocate(state native.StateID, qubits, cmds native.ID) error {
	qh := handle.New(p.eng, qubits)
	ch := handle.New(p.eng, cmds)
	defer handle.ReleaseAll(qh, ch)
	return p.call(state, cbAllocate, func(c *Context) error {
		set, err := core.QubitSetFromRaw(p.eng, qh)
		if err != nil {
			return err
		}
		queue, err := core.ArbCmdQueueFromRaw(p.eng, ch)
		if err != nil {
			return err
		}
		switch {
		case p.def.allocate != nil:
			return p.def.allocate(c, set.Qubits(), queue.Cmds())
		case p.def.typ == native.PluginTypeOperator:
			_, err := c.Allocate(set.Len(), queue.Cmds()...)
			return err
		}
		return nil
	})
}

func (p *instance) onFree(state native.StateID, qubits native.ID) error {
	h := handle.New(p.eng, qubits)
	defer h.Release()
	return p.call(state, cbFree, func(c *Context) error {
		set, err := core.QubitSetFromRaw(p.eng, h)
		if err != nil {
			return err
		}
		switch {
		case p.def.free != nil:
			return p.def.free(c, set.Qubits())
		case p.def.typ == native.PluginTypeOperator:
			return c.Free(set.Qubits()...)
		}
		return nil
	})
}

func (p *instance) onGate(state native.StateID, gate native.ID) (native.ID, error) {
	h := handle.New(p.eng, gate)
	defer h.Release()
	var res native.ID
	err := p.call(state, cbGate, func(c *Context) error {
		g, err := core.DecodeGate(p.eng, h)
		if err != nil {
			return err
		}
		ms, err := p.def.routeGate(c, g)
		if err != nil {
			return err
		}
		if ms == nil || ms.Len() == 0 {
			return nil
		}
		mh, err := ms.ToRaw(p.eng)
		if err != nil {
			return err
		}
		res, err = mh.Take()
		return err
	})
	return res, err
}

func (p *instance) onModifyMeasurement(state native.StateID, meas native.ID) (native.ID, error) {
	h := handle.New(p.eng, meas)
	defer h.Release()
	var res native.ID
	err := p.call(state, cbModifyMeasurement, func(c *Context) error {
		m, err := core.DecodeMeasurement(p.eng, h)
		if err != nil {
			return err
		}
		out := []*core.Measurement{m}
		if p.def.modifyMeasurement != nil {
			if out, err = p.def.modifyMeasurement(c, m); err != nil {
				return err
			}
		}
		if len(out) == 0 {
			return nil
		}
		set, err := core.MeasurementSetFromSlice(out)
		if err != nil {
			return err
		}
		sh, err := set.ToRaw(p.eng)
		if err != nil {
			return err
		}
		res, err = sh.Take()
		return err
	})
	return res, err
}

func (p *instance) onAdvance(state native.StateID, cycles uint64) error {
	return p.call(state, cbAdvance, func(c *Context) error {
		switch {
		case p.def.advance != nil:
			return p.def.advance(c, cycles)
		case p.def.typ == native.PluginTypeOperator:
			_, err := c.Advance(cycles)
			return err
		}
		return nil
	})
}

func (p *instance) onHostArb(state native.StateID, cmd native.ID) (native.ID, error) {
	return p.onArb(state, cbHostArb, Host, cmd)
}

func (p *instance) onUpstreamArb(state native.StateID, cmd native.ID) (native.ID, error) {
	return p.onArb(state, cbUpstreamArb, Upstream, cmd)
}

func (p *instance) onArb(state native.StateID, callback string, src Source, cmd native.ID) (native.ID, error) {
	h := handle.New(p.eng, cmd)
	defer h.Release()
	var res native.ID
	err := p.call(state, callback, func(c *Context) error {
		arb, err := core.DecodeArbCmd(p.eng, h)
		if err != nil {
			return err
		}
		out, err := p.def.router.dispatch(c, src, arb)
		if err != nil {
			return err
		}
		res, err = p.encodeArb(out)
		return err
	})
	return res, err
}

func (p *instance) encodeArb(data *core.ArbData) (native.ID, error) {
	if data == nil {
		data = core.NewArbData()
	}
	h, err := data.Encode(p.eng, nil)
	if err != nil {
		return 0, err
	}
	return h.Take()
}
