//go:build unit
// +build unit

package plugin

import (
	"context"
	"testing"
	"time"

	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/native"
	"github.com/stretchr/testify/require"
)

// harness runs a pipeline of plugin definitions on a Memory engine.
type harness struct {
	*Pipeline
	t *testing.T
	m *native.Memory
}

func newHarness(t *testing.T, defs ...*Definition) *harness {
	return newHarnessWithInit(t, nil, defs...)
}

// newHarnessWithInit passes initCmds[i] to the plugin at index i.
func newHarnessWithInit(t *testing.T, initCmds map[int][]*core.ArbCmd, defs ...*Definition) *harness {
	t.Helper()
	m := native.NewMemory(7)
	stages := make([]Stage, len(defs))
	for i, def := range defs {
		stages[i] = Stage{Def: def, InitCmds: initCmds[i]}
	}
	p, err := NewPipeline(m, stages...)
	require.Nil(t, err)
	return &harness{Pipeline: p, t: t, m: m}
}

func (h *harness) init() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.Init(ctx)
}

func (h *harness) mustInit() *harness {
	require.Nil(h.t, h.init())
	return h
}

func (h *harness) run(args *core.ArbData) (*core.ArbData, error) {
	return h.Run(args)
}

func (h *harness) arb(index int, cmd *core.ArbCmd) (*core.ArbData, error) {
	return h.Arb(index, cmd)
}

func (h *harness) send(data *core.ArbData) error {
	return h.Send(data)
}

func (h *harness) recv() (*core.ArbData, error) {
	return h.Recv()
}

// stop drops every plugin and waits for all of them.
func (h *harness) stop() error {
	return h.Stop()
}

var pauliX = func() *core.Matrix {
	m, err := core.NewMatrix([]complex128{0, 1, 1, 0})
	if err != nil {
		panic(err)
	}
	return m
}()

var cnot = func() *core.Matrix {
	m, err := core.NewMatrixFromRows([][]complex128{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 0, 1},
		{0, 0, 1, 0},
	})
	if err != nil {
		panic(err)
	}
	return m
}()

type unitaryCall struct {
	targets []core.QubitRef
	matrix  *core.Matrix
}

// bitBackend is a classical simulator that supports X and CNOT.
type bitBackend struct {
	bits     map[core.QubitRef]bool
	calls    []unitaryCall
	advanced uint64
}

func newBitBackend() *bitBackend {
	return &bitBackend{bits: map[core.QubitRef]bool{}}
}

func (b *bitBackend) definition() *Definition {
	return NewBackend("bits", "test", "0.1.0", b.unitary, b.measure).
		OnAllocate(func(c *Context, qubits []core.QubitRef, cmds []*core.ArbCmd) error {
			for _, q := range qubits {
				b.bits[q] = false
			}
			return nil
		}).
		OnFree(func(c *Context, qubits []core.QubitRef) error {
			for _, q := range qubits {
				delete(b.bits, q)
			}
			return nil
		}).
		OnAdvance(func(c *Context, cycles uint64) error {
			b.advanced += cycles
			return nil
		})
}

func (b *bitBackend) unitary(c *Context, targets []core.QubitRef, matrix *core.Matrix) error {
	b.calls = append(b.calls, unitaryCall{targets: targets, matrix: matrix})
	switch {
	case len(targets) == 1 && matrix.ApproxEqual(pauliX, 1e-9):
		b.bits[targets[0]] = !b.bits[targets[0]]
	case len(targets) == 2 && matrix.ApproxEqual(cnot, 1e-9):
		if b.bits[targets[0]] {
			b.bits[targets[1]] = !b.bits[targets[1]]
		}
	default:
		return core.DispatchErrorf("unsupported gate on %v", targets)
	}
	return nil
}

func (b *bitBackend) measure(c *Context, measures []core.QubitRef) (*core.MeasurementSet, error) {
	set := core.NewMeasurementSet()
	for _, q := range measures {
		m, err := core.NewMeasurement(q, core.MeasValueOf(b.bits[q]), nil)
		if err != nil {
			return nil, err
		}
		if err := set.Add(m); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func mustCmd(t *testing.T, iface, oper string) *core.ArbCmd {
	t.Helper()
	cmd, err := core.NewArbCmd(iface, oper, nil)
	require.Nil(t, err)
	return cmd
}
