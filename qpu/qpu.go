package qpu

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/plugin"
	"go.uber.org/zap"
)

const (
	DummyDeviceName = "DummyQPU"
	NullDeviceName  = "NullQPU"
	author          = "cosim"
)

// ErrNonClassical is returned by DummyQPU for gates that do not map basis
// states onto basis states.
var ErrNonClassical = errors.New("gate is not a classical permutation")

// DummyQPU is a backend that tracks every qubit as a classical bit. It
// executes gates whose matrix is a permutation of the computational basis,
// which covers X, CNOT, Toffoli and SWAP up to phases.
type DummyQPU struct {
	deviceSetting *DeviceSetting
	bits          map[core.QubitRef]bool
}

func NewDummyQPU(ds *DeviceSetting) *DummyQPU {
	return &DummyQPU{
		deviceSetting: ds,
		bits:          map[core.QubitRef]bool{},
	}
}

func (d *DummyQPU) Definition() *plugin.Definition {
	return plugin.NewBackend(d.deviceSetting.DeviceName, author, core.CurrentVersion(), d.unitary, d.measure).
		OnAllocate(d.allocate).
		OnFree(d.free).
		OnHostArb("dummy", "state", d.state).
		OnHostArb("dummy", "reset", d.reset)
}

func (d *DummyQPU) allocate(c *plugin.Context, qubits []core.QubitRef, cmds []*core.ArbCmd) error {
	if len(d.bits)+len(qubits) > d.deviceSetting.MaxQubits {
		return errors.Errorf("cannot allocate %d qubits, %d of %d are in use",
			len(qubits), len(d.bits), d.deviceSetting.MaxQubits)
	}
	for _, q := range qubits {
		d.bits[q] = false
	}
	zap.L().Debug(fmt.Sprintf("[Dummy] allocated qubits/qubits:%v/in use:%d", qubits, len(d.bits)))
	return nil
}

func (d *DummyQPU) free(c *plugin.Context, qubits []core.QubitRef) error {
	for _, q := range qubits {
		delete(d.bits, q)
	}
	return nil
}

// unitary maps the basis state of targets through matrix. The first target
// is the most significant bit of the basis index.
func (d *DummyQPU) unitary(c *plugin.Context, targets []core.QubitRef, matrix *core.Matrix) error {
	in := 0
	for _, q := range targets {
		in <<= 1
		if d.bits[q] {
			in |= 1
		}
	}
	out := -1
	for row := 0; row < matrix.Dim(); row++ {
		v := matrix.At(row, in)
		switch {
		case cmplx.Abs(v) < d.deviceSetting.Epsilon:
		case math.Abs(cmplx.Abs(v)-1) < d.deviceSetting.Epsilon && out < 0:
			out = row
		default:
			return errors.Wrapf(ErrNonClassical, "targets %v", targets)
		}
	}
	if out < 0 {
		return errors.Wrapf(ErrNonClassical, "targets %v", targets)
	}
	for i := len(targets) - 1; i >= 0; i-- {
		d.bits[targets[i]] = out&1 == 1
		out >>= 1
	}
	return nil
}

func (d *DummyQPU) measure(c *plugin.Context, measures []core.QubitRef) (*core.MeasurementSet, error) {
	set := core.NewMeasurementSet()
	for _, q := range measures {
		m, err := core.NewMeasurement(q, core.MeasValueOf(d.bits[q]), nil)
		if err != nil {
			return nil, err
		}
		if err := set.Add(m); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// state reports every allocated qubit as "q<n>": 0 or 1.
func (d *DummyQPU) state(c *plugin.Context, cmd *core.ArbCmd) (*core.ArbData, error) {
	qubits := make([]core.QubitRef, 0, len(d.bits))
	for q := range d.bits {
		qubits = append(qubits, q)
	}
	sort.Slice(qubits, func(i, j int) bool { return qubits[i] < qubits[j] })
	res := core.NewArbData()
	for _, q := range qubits {
		v := 0
		if d.bits[q] {
			v = 1
		}
		if err := res.Set(q.String(), v); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (d *DummyQPU) reset(c *plugin.Context, cmd *core.ArbCmd) (*core.ArbData, error) {
	for q := range d.bits {
		d.bits[q] = false
	}
	return nil, nil
}

// NullQPU accepts every gate and measures every qubit as zero.
type NullQPU struct{}

func (n *NullQPU) Definition() *plugin.Definition {
	return plugin.NewBackend(NullDeviceName, author, core.CurrentVersion(),
		func(c *plugin.Context, targets []core.QubitRef, matrix *core.Matrix) error {
			zap.L().Debug(fmt.Sprintf("[Null] ignoring unitary/targets:%v", targets))
			return nil
		},
		func(c *plugin.Context, measures []core.QubitRef) (*core.MeasurementSet, error) {
			set := core.NewMeasurementSet()
			for _, q := range measures {
				m, err := core.NewMeasurement(q, core.Zero, nil)
				if err != nil {
					return nil, err
				}
				if err := set.Add(m); err != nil {
					return nil, err
				}
			}
			return set, nil
		})
}
