//go:build unit
// +build unit

package plugin

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/oqtopus-team/cosim-plugin/common"
	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bellFrontend flips the first qubit, copies it to the second with a CNOT
// and reports both measurements.
func bellFrontend() *Definition {
	return NewFrontend("bell", "test", "0.1.0", func(c *Context, args *core.ArbData) (*core.ArbData, error) {
		qs, err := c.Allocate(2)
		if err != nil {
			return nil, err
		}
		if err := c.Unitary(pauliX, qs[0]); err != nil {
			return nil, err
		}
		g, err := core.NewUnitaryGate([]core.QubitRef{qs[1]}, []core.QubitRef{qs[0]}, pauliX)
		if err != nil {
			return nil, err
		}
		if err := c.Gate(g); err != nil {
			return nil, err
		}
		if err := c.Measure(qs...); err != nil {
			return nil, err
		}
		res := core.NewArbData()
		for _, q := range qs {
			m, err := c.GetMeasurement(q)
			if err != nil {
				return nil, err
			}
			if err := res.Set(q.String(), m.Value().String()); err != nil {
				return nil, err
			}
		}
		return res, c.Free(qs...)
	})
}

func TestControlledGateIsUpscaled(t *testing.T) {
	be := newBitBackend()
	h := newHarness(t, bellFrontend(), NewOperator("pass", "test", "0.1.0"), be.definition()).mustInit()

	res, err := h.run(core.NewArbData())
	require.Nil(t, err)
	want, err := core.ArbDataFromJSON(fmt.Sprintf(`{"q1": %q, "q2": %q}`, core.One, core.One))
	require.Nil(t, err)
	assert.True(t, want.Equal(res), "got %s", res)

	require.Equal(t, 2, len(be.calls))
	assert.Equal(t, []core.QubitRef{1}, be.calls[0].targets)
	assert.Equal(t, []core.QubitRef{1, 2}, be.calls[1].targets)
	assert.True(t, cnot.Equal(be.calls[1].matrix), "got %s", be.calls[1].matrix)
	assert.Empty(t, be.bits)

	assert.Nil(t, h.stop())
	assert.Equal(t, 0, h.m.Live())
}

func TestControlledHandlerTakesPrecedence(t *testing.T) {
	type call struct {
		targets, controls []core.QubitRef
		matrix            *core.Matrix
	}
	var calls []call
	be := newBitBackend()
	def := be.definition().OnControlledGate(func(c *Context, targets, controls []core.QubitRef, matrix *core.Matrix) error {
		calls = append(calls, call{targets, controls, matrix})
		return nil
	})
	h := newHarness(t, bellFrontend(), def).mustInit()

	_, err := h.run(core.NewArbData())
	require.Nil(t, err)
	assert.Empty(t, be.calls)
	require.Equal(t, 2, len(calls))
	assert.Empty(t, calls[0].controls)
	assert.Equal(t, []core.QubitRef{2}, calls[1].targets)
	assert.Equal(t, []core.QubitRef{1}, calls[1].controls)
	assert.True(t, pauliX.Equal(calls[1].matrix))
	assert.Nil(t, h.stop())
}

func TestOperatorModifiesMeasurements(t *testing.T) {
	op := NewOperator("invert", "test", "0.1.0").
		OnModifyMeasurement(func(c *Context, m *core.Measurement) ([]*core.Measurement, error) {
			if m.Value() == core.One {
				m.SetValue(core.Zero)
			} else {
				m.SetValue(core.One)
			}
			return []*core.Measurement{m}, nil
		})
	h := newHarness(t, bellFrontend(), op, newBitBackend().definition()).mustInit()

	res, err := h.run(core.NewArbData())
	require.Nil(t, err)
	want, err := core.ArbDataFromJSON(fmt.Sprintf(`{"q1": %q, "q2": %q}`, core.Zero, core.Zero))
	require.Nil(t, err)
	assert.True(t, want.Equal(res), "got %s", res)
	assert.Nil(t, h.stop())
}

func TestOperatorHandlesGates(t *testing.T) {
	var seen []string
	op := NewOperator("count", "test", "0.1.0").
		OnUnitaryGate(func(c *Context, targets []core.QubitRef, matrix *core.Matrix) error {
			seen = append(seen, fmt.Sprintf("unitary %v", targets))
			return c.Unitary(matrix, targets...)
		}).
		OnMeasurementGate(func(c *Context, measures []core.QubitRef) (*core.MeasurementSet, error) {
			seen = append(seen, fmt.Sprintf("measure %v", measures))
			return nil, c.Measure(measures...)
		})
	be := newBitBackend()
	h := newHarness(t, bellFrontend(), op, be.definition()).mustInit()

	res, err := h.run(core.NewArbData())
	require.Nil(t, err)
	v, ok := res.Get("q2")
	assert.True(t, ok)
	assert.Equal(t, core.One.String(), v)
	assert.Equal(t, []string{"unitary [q1]", "unitary [q1 q2]", "measure [q1 q2]"}, seen)
	assert.Nil(t, h.stop())
}

func TestCustomGates(t *testing.T) {
	var got *core.Gate
	be := newBitBackend()
	def := be.definition().OnCustomGate("peek", func(c *Context, g *core.Gate) (*core.MeasurementSet, error) {
		got = g
		set := core.NewMeasurementSet()
		for _, q := range []core.QubitRef{1, 2} {
			m, err := core.NewMeasurement(q, core.One, core.NewArbData([]byte("peeked")))
			if err != nil {
				return nil, err
			}
			if err := set.Add(m); err != nil {
				return nil, err
			}
		}
		return set, nil
	})
	fe := NewFrontend("custom", "test", "0.1.0", func(c *Context, args *core.ArbData) (*core.ArbData, error) {
		qs, err := c.Allocate(2)
		if err != nil {
			return nil, err
		}
		name, _ := args.Get("gate")
		data := core.NewArbData([]byte("payload"))
		g, err := core.NewCustomGate(name.(string), []core.QubitRef{qs[0]}, nil, []core.QubitRef{qs[0]}, nil, data)
		if err != nil {
			return nil, err
		}
		if err := c.Gate(g); err != nil {
			return nil, err
		}
		m, err := c.GetMeasurement(qs[0])
		if err != nil {
			return nil, err
		}
		if _, err := c.GetMeasurement(qs[1]); err == nil {
			return nil, core.DispatchErrorf("q2 was not measured")
		}
		return m.Data(), nil
	})
	h := newHarness(t, fe, NewOperator("pass", "test", "0.1.0"), def).mustInit()

	args, err := core.ArbDataFromJSON(`{"gate": "peek"}`)
	require.Nil(t, err)
	res, err := h.run(args)
	require.Nil(t, err)
	assert.Equal(t, [][]byte{[]byte("peeked")}, res.Args())
	require.NotNil(t, got)
	assert.Equal(t, "peek", got.Name())
	assert.Equal(t, [][]byte{[]byte("payload")}, got.Data().Args())
	assert.Nil(t, got.Matrix())

	args, err = core.ArbDataFromJSON(`{"gate": "poke"}`)
	require.Nil(t, err)
	_, err = h.run(args)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "plugin doesn't implement handler handle_poke_gate, which is required")
	assert.Nil(t, h.stop())
}

func TestBackendRequiresUnitaryHandler(t *testing.T) {
	be := NewBackend("measure-only", "test", "0.1.0",
		func(c *Context, targets []core.QubitRef, matrix *core.Matrix) error { return nil },
		func(c *Context, measures []core.QubitRef) (*core.MeasurementSet, error) { return nil, nil })
	be.unitary = nil
	h := newHarness(t, bellFrontend(), be).mustInit()

	_, err := h.run(core.NewArbData())
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "plugin doesn't implement handler handle_unitary_gate, which is required")
	assert.Nil(t, h.stop())
}

func TestKeepMeasured(t *testing.T) {
	set := core.NewMeasurementSet()
	for _, q := range []core.QubitRef{1, 2, 3} {
		m, err := core.NewMeasurement(q, core.Zero, nil)
		require.Nil(t, err)
		require.Nil(t, set.Add(m))
	}
	got := keepMeasured([]core.QubitRef{3, 1}, set)
	assert.Equal(t, []core.QubitRef{1, 3}, got.Qubits())
	assert.Equal(t, 3, set.Len())
	assert.Nil(t, keepMeasured([]core.QubitRef{1}, nil))
}

func TestAdvanceAndCycles(t *testing.T) {
	be := newBitBackend()
	fe := NewFrontend("clock", "test", "0.1.0", func(c *Context, args *core.ArbData) (*core.ArbData, error) {
		qs, err := c.Allocate(1)
		if err != nil {
			return nil, err
		}
		if err := c.Measure(qs...); err != nil {
			return nil, err
		}
		cycle, err := c.Advance(5)
		if err != nil {
			return nil, err
		}
		since, err := c.GetCyclesSinceMeasure(qs[0])
		if err != nil {
			return nil, err
		}
		now, err := c.GetCycle()
		if err != nil {
			return nil, err
		}
		res := core.NewArbData()
		for k, v := range map[string]uint64{"advance": cycle, "since": since, "now": now} {
			if err := res.Set(k, v); err != nil {
				return nil, err
			}
		}
		return res, nil
	})
	h := newHarness(t, fe, NewOperator("pass", "test", "0.1.0"), be.definition()).mustInit()

	res, err := h.run(core.NewArbData())
	require.Nil(t, err)
	for _, k := range []string{"advance", "since", "now"} {
		v, ok := res.Get(k)
		assert.True(t, ok, k)
		assert.EqualValues(t, 5, v, k)
	}
	assert.Equal(t, uint64(5), be.advanced)
	assert.Nil(t, h.stop())
}

// gateRecorder records every gate its plugin sends downstream.
type gateRecorder struct {
	*native.Memory
	gates []*core.Gate
}

func (r *gateRecorder) PluginGate(state native.StateID, gate native.ID) error {
	g, err := core.DecodeGate(r.Memory, handle.Borrowed(r.Memory, gate))
	if err != nil {
		return err
	}
	r.gates = append(r.gates, g)
	return r.Memory.PluginGate(state, gate)
}

func TestOperatorForwardsGatesAsIs(t *testing.T) {
	fe := NewFrontend("tagged", "test", "0.1.0", func(c *Context, args *core.ArbData) (*core.ArbData, error) {
		qs, err := c.Allocate(2)
		if err != nil {
			return nil, err
		}
		g, err := core.NewUnitaryGate([]core.QubitRef{qs[1]}, []core.QubitRef{qs[0]}, pauliX)
		if err != nil {
			return nil, err
		}
		g.PushArg([]byte("unitary"))
		if err := c.Gate(g); err != nil {
			return nil, err
		}
		mg, err := core.NewMeasurementGate(qs)
		if err != nil {
			return nil, err
		}
		mg.PushArg([]byte("measure"))
		return nil, c.Gate(mg)
	})
	be := newBitBackend()
	m := native.NewMemory(7)
	rec := &gateRecorder{Memory: m}
	slots := []native.Slot{
		{Address: common.NewSimulatorAddress()},
		{Address: common.NewSimulatorAddress()},
		{Address: common.NewSimulatorAddress()},
	}
	sim, err := m.NewSimulation(slots...)
	require.Nil(t, err)
	var joins []*JoinHandle
	for i, start := range []struct {
		eng native.Engine
		def *Definition
	}{{m, fe}, {rec, NewOperator("pass", "test", "0.1.0")}, {m, be.definition()}} {
		j, err := Start(start.eng, start.def, slots[i].Address)
		require.Nil(t, err)
		joins = append(joins, j)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, sim.Init(ctx))

	ah, err := core.NewArbData().Encode(m, nil)
	require.Nil(t, err)
	require.Nil(t, consumeWith(ah, func(id native.ID) error {
		res, err := sim.Run(id)
		if err == nil {
			err = m.HandleDelete(res)
		}
		return err
	}))

	require.Equal(t, 2, len(rec.gates))
	assert.Equal(t, []core.QubitRef{1}, rec.gates[0].Controls())
	assert.Equal(t, []core.QubitRef{2}, rec.gates[0].Targets())
	assert.Equal(t, [][]byte{[]byte("unitary")}, rec.gates[0].Data().Args())
	assert.Equal(t, []core.QubitRef{1, 2}, rec.gates[1].Measures())
	assert.Equal(t, [][]byte{[]byte("measure")}, rec.gates[1].Data().Args())
	require.Equal(t, 1, len(be.calls))
	assert.True(t, cnot.Equal(be.calls[0].matrix))

	assert.Nil(t, sim.Stop())
	for _, j := range joins {
		assert.Nil(t, j.Wait())
	}
	assert.Equal(t, 0, m.Live())
}
