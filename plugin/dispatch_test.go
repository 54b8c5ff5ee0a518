//go:build unit
// +build unit

package plugin

import (
	"testing"

	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/log"
	"github.com/oqtopus-team/cosim-plugin/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoFrontend() *Definition {
	return NewFrontend("echo", "test", "0.1.0", func(c *Context, args *core.ArbData) (*core.ArbData, error) {
		return args, nil
	})
}

func TestInstanceLifecycle(t *testing.T) {
	inst, err := newInstance(native.NewMemory(0), echoFrontend())
	require.Nil(t, err)

	assert.NotNil(t, inst.enter(cbRun))
	require.Nil(t, inst.enter(cbInitialize))
	assert.ErrorIs(t, inst.enter(cbHostArb), ErrReentrant)
	inst.leave(cbInitialize)
	assert.Equal(t, idle, inst.lifecycle())

	assert.NotNil(t, inst.enter(cbInitialize))
	require.Nil(t, inst.enter(cbDrop))
	inst.leave(cbDrop)
	assert.Equal(t, dropped, inst.lifecycle())
	assert.NotNil(t, inst.enter(cbHostArb))
}

func TestNestedCallIsReentrant(t *testing.T) {
	inst, err := newInstance(native.NewMemory(0), echoFrontend())
	require.Nil(t, err)
	require.Nil(t, inst.call(0, cbInitialize, func(c *Context) error { return nil }))

	var inner error
	err = inst.call(0, cbHostArb, func(c *Context) error {
		inner = inst.call(0, cbHostArb, func(c *Context) error { return nil })
		return nil
	})
	require.Nil(t, err)
	assert.ErrorIs(t, inner, ErrReentrant)
	assert.Equal(t, idle, inst.lifecycle())
}

func TestPanickingHandlerLeavesCallback(t *testing.T) {
	inst, err := newInstance(native.NewMemory(0), echoFrontend())
	require.Nil(t, err)
	require.Nil(t, inst.call(0, cbInitialize, func(c *Context) error { return nil }))

	var stashed *Context
	assert.Panics(t, func() {
		_ = inst.call(0, cbHostArb, func(c *Context) error {
			stashed = c
			panic("handler bug")
		})
	})
	assert.Equal(t, idle, inst.lifecycle())
	_, err = stashed.GetCycle()
	assert.ErrorIs(t, err, ErrOutsideCallback)
	assert.Nil(t, inst.call(0, cbHostArb, func(c *Context) error { return nil }))
}

func TestReentrantHostArb(t *testing.T) {
	var h *harness
	var inner error
	fe := echoFrontend().
		OnHostArb("ctl", "outer", func(c *Context, cmd *core.ArbCmd) (*core.ArbData, error) {
			_, inner = h.arb(0, mustCmd(t, "ctl", "inner"))
			return nil, nil
		}).
		OnHostArb("ctl", "inner", func(c *Context, cmd *core.ArbCmd) (*core.ArbData, error) {
			return nil, nil
		})
	h = newHarness(t, fe, newBitBackend().definition()).mustInit()

	_, err := h.arb(0, mustCmd(t, "ctl", "outer"))
	require.Nil(t, err)
	require.NotNil(t, inner)
	assert.Contains(t, inner.Error(), "recursive callback")

	_, err = h.arb(0, mustCmd(t, "ctl", "inner"))
	assert.Nil(t, err)
	assert.Nil(t, h.stop())
	assert.Equal(t, 0, h.m.Live())
}

func TestContextOutsideCallback(t *testing.T) {
	var stashed *Context
	fe := NewFrontend("stash", "test", "0.1.0", func(c *Context, args *core.ArbData) (*core.ArbData, error) {
		stashed = c
		_, err := c.GetCycle()
		return nil, err
	})
	h := newHarness(t, fe, newBitBackend().definition()).mustInit()
	_, err := h.run(core.NewArbData())
	require.Nil(t, err)
	require.NotNil(t, stashed)

	_, err = stashed.Allocate(1)
	assert.ErrorIs(t, err, ErrOutsideCallback)
	_, err = stashed.GetCycle()
	assert.ErrorIs(t, err, ErrOutsideCallback)
	assert.ErrorIs(t, stashed.Send(core.NewArbData()), ErrOutsideCallback)
	_, err = stashed.RandomFloat()
	assert.ErrorIs(t, err, ErrOutsideCallback)
	assert.Equal(t, "cannot call plugin operator outside of a callback", ErrOutsideCallback.Error())
	assert.Nil(t, h.stop())
}

func TestStartTwice(t *testing.T) {
	m := native.NewMemory(0)
	def := echoFrontend()
	_, err := Start(m, def, "mem://nowhere")
	assert.ErrorIs(t, err, native.ErrBoundary)
	_, err = Start(m, def, "mem://nowhere")
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.ErrorIs(t, Run(m, def, "mem://nowhere"), ErrAlreadyStarted)
	assert.Equal(t, 0, m.Live())
}

func TestDefinitionErrors(t *testing.T) {
	noArb := func(c *Context, cmd *core.ArbCmd) (*core.ArbData, error) { return nil, nil }
	tests := []struct {
		name    string
		def     func() *Definition
		wantErr error
	}{
		{name: "frontend without run", def: func() *Definition { return NewFrontend("f", "a", "v", nil) }, wantErr: core.ErrDispatch},
		{name: "backend without unitary", def: func() *Definition { return NewBackend("b", "a", "v", nil, nil) }, wantErr: core.ErrDispatch},
		{name: "frontend allocate", def: func() *Definition {
			return echoFrontend().OnAllocate(func(c *Context, q []core.QubitRef, cmds []*core.ArbCmd) error { return nil })
		}, wantErr: core.ErrValue},
		{name: "frontend upstream arb", def: func() *Definition { return echoFrontend().OnUpstreamArb("a", "b", noArb) }, wantErr: core.ErrValue},
		{name: "backend modify measurement", def: func() *Definition {
			return newBitBackend().definition().OnModifyMeasurement(func(c *Context, m *core.Measurement) ([]*core.Measurement, error) { return nil, nil })
		}, wantErr: core.ErrValue},
		{name: "bad interface", def: func() *Definition { return echoFrontend().OnHostArb("a b", "c", noArb) }, wantErr: core.ErrValue},
		{name: "bad declared interface", def: func() *Definition { return NewOperator("o", "a", "v").DeclareUpstreamIfaces("") }, wantErr: core.ErrValue},
		{name: "empty custom gate name", def: func() *Definition { return NewOperator("o", "a", "v").OnCustomGate("", nil) }, wantErr: core.ErrValue},
		{name: "operator", def: func() *Definition { return NewOperator("o", "a", "v").OnUpstreamArb("a", "b", noArb) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := tt.def()
			if tt.wantErr == nil {
				assert.Nil(t, def.Err())
				return
			}
			assert.ErrorIs(t, def.Err(), tt.wantErr)
			m := native.NewMemory(0)
			assert.ErrorIs(t, Run(m, def, "mem://nowhere"), tt.wantErr)
		})
	}
}

func TestApplySetting(t *testing.T) {
	s, err := core.ParseSetting(`
known_host_ifaces = ["ctl"]
known_upstream_ifaces = ["noise"]

[plugin]
name = "renamed"
`)
	require.Nil(t, err)
	def := NewOperator("op", "a", "v").ApplySetting(s)
	require.Nil(t, def.Err())
	assert.Equal(t, "renamed", def.Name())
	assert.Equal(t, "a", def.author)
	assert.True(t, def.router.knows(Host, "ctl"))
	assert.True(t, def.router.knows(Upstream, "noise"))

	fe := echoFrontend().ApplySetting(s)
	assert.Nil(t, fe.Err())
	assert.False(t, fe.router.knows(Upstream, "noise"))
}

func TestInitRoutesHostArbs(t *testing.T) {
	var got []string
	record := func(c *Context, cmd *core.ArbCmd) (*core.ArbData, error) {
		got = append(got, cmd.Iface()+"/"+cmd.Oper())
		return nil, nil
	}
	newFrontend := func() *Definition {
		return echoFrontend().OnHostArb("cfg", "set", record).OnHostArb("cfg", "reset", record)
	}

	h := newHarnessWithInit(t, map[int][]*core.ArbCmd{
		0: {mustCmd(t, "cfg", "set"), mustCmd(t, "unknown", "x"), mustCmd(t, "cfg", "reset")},
	}, newFrontend(), newBitBackend().definition()).mustInit()
	assert.Equal(t, []string{"cfg/set", "cfg/reset"}, got)
	assert.Nil(t, h.stop())

	h = newHarnessWithInit(t, map[int][]*core.ArbCmd{
		0: {mustCmd(t, "cfg", "bogus")},
	}, newFrontend(), newBitBackend().definition())
	err := h.init()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "invalid operation ID bogus for interface ID cfg")
	assert.Nil(t, h.stop())
}

func TestInitHandlerReceivesCommands(t *testing.T) {
	var cmds []*core.ArbCmd
	be := newBitBackend().definition().OnInit(func(c *Context, in []*core.ArbCmd) error {
		cmds = in
		return nil
	})
	h := newHarnessWithInit(t, map[int][]*core.ArbCmd{
		1: {mustCmd(t, "noise", "set")},
	}, echoFrontend(), be).mustInit()
	require.Equal(t, 1, len(cmds))
	assert.Equal(t, "noise", cmds[0].Iface())
	assert.Nil(t, h.stop())
}

func TestHostArbAsymmetry(t *testing.T) {
	be := newBitBackend().definition().
		OnHostArb("ctl", "ping", func(c *Context, cmd *core.ArbCmd) (*core.ArbData, error) {
			return core.NewArbData([]byte("pong")), nil
		}).
		DeclareHostIfaces("reserved")
	h := newHarness(t, echoFrontend(), be).mustInit()

	res, err := h.arb(1, mustCmd(t, "ctl", "ping"))
	require.Nil(t, err)
	arg, err := res.Arg(0)
	require.Nil(t, err)
	assert.Equal(t, []byte("pong"), arg)

	res, err = h.arb(1, mustCmd(t, "elsewhere", "ping"))
	require.Nil(t, err)
	assert.True(t, res.IsEmpty())

	_, err = h.arb(1, mustCmd(t, "ctl", "pong"))
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "invalid operation ID pong for interface ID ctl")

	_, err = h.arb(1, mustCmd(t, "reserved", "x"))
	assert.NotNil(t, err)
	assert.Nil(t, h.stop())
}

func TestSendRecv(t *testing.T) {
	fe := NewFrontend("relay", "test", "0.1.0", func(c *Context, args *core.ArbData) (*core.ArbData, error) {
		in, err := c.Recv()
		if err != nil {
			return nil, err
		}
		in.PushArg([]byte("seen"))
		return nil, c.Send(in)
	})
	h := newHarness(t, fe, newBitBackend().definition()).mustInit()

	_, err := h.run(core.NewArbData())
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "the host has not sent any data")

	require.Nil(t, h.send(core.NewArbData([]byte("hello"))))
	_, err = h.run(core.NewArbData())
	require.Nil(t, err)
	got, err := h.recv()
	require.Nil(t, err)
	assert.Equal(t, [][]byte{[]byte("hello"), []byte("seen")}, got.Args())
	assert.Nil(t, h.stop())
}

func TestRandomIsDeterministic(t *testing.T) {
	draw := func() []uint64 {
		var out []uint64
		fe := NewFrontend("rng", "test", "0.1.0", func(c *Context, args *core.ArbData) (*core.ArbData, error) {
			for i := 0; i < 3; i++ {
				v, err := c.RandomUint64()
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			f, err := c.RandomFloat()
			if err != nil {
				return nil, err
			}
			if f < 0 || f >= 1 {
				return nil, core.DispatchErrorf("random float %f out of range", f)
			}
			return nil, nil
		})
		h := newHarness(t, fe, newBitBackend().definition()).mustInit()
		_, err := h.run(core.NewArbData())
		require.Nil(t, err)
		require.Nil(t, h.stop())
		return out
	}
	first := draw()
	assert.Equal(t, 3, len(first))
	assert.Equal(t, first, draw())
}

func TestDispatchMetrics(t *testing.T) {
	metrics, err := log.NewDispatchMetrics()
	require.Nil(t, err)
	fe := NewFrontend("fail", "test", "0.1.0", func(c *Context, args *core.ArbData) (*core.ArbData, error) {
		return nil, core.DispatchErrorf("always fails")
	}).WithMetrics(metrics)
	h := newHarness(t, fe, newBitBackend().definition()).mustInit()

	_, err = h.run(core.NewArbData())
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "always fails")
	assert.Nil(t, h.stop())

	counts := metrics.Counts()
	assert.Equal(t, log.CallbackCount{Calls: 1, Failures: 1}, counts[cbRun])
	assert.Equal(t, log.CallbackCount{Calls: 1}, counts[cbInitialize])
	assert.Equal(t, log.CallbackCount{Calls: 1}, counts[cbDrop])
}
