package core

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/native"
)

// Gate describes one quantum operation. Unnamed gates are unitary (targets
// and a matrix), measurement (measures) or both; named gates are custom
// gates interpreted by the plugin that implements them.
type Gate struct {
	ArbData
	name     string
	targets  []QubitRef
	controls []QubitRef
	measures []QubitRef
	matrix   *Matrix
}

func checkGate(targets, controls, measures []QubitRef, matrix *Matrix) error {
	if _, err := QubitSetFromSlice(targets); err != nil {
		return errors.Wrap(err, "targets")
	}
	if _, err := QubitSetFromSlice(controls); err != nil {
		return errors.Wrap(err, "controls")
	}
	if _, err := QubitSetFromSlice(measures); err != nil {
		return errors.Wrap(err, "measures")
	}
	for _, c := range controls {
		for _, t := range targets {
			if c == t {
				return valueErrorf("qubit %s is both a target and a control", c)
			}
		}
	}
	if matrix != nil {
		if len(targets) == 0 {
			return valueErrorf("a matrix requires at least one target qubit")
		}
		if matrix.NumQubits() != len(targets) {
			return valueErrorf("a %dx%d matrix does not match %d target qubits",
				matrix.Dim(), matrix.Dim(), len(targets))
		}
	}
	return nil
}

// NewUnitaryGate builds a gate applying matrix to targets, controlled by
// controls.
func NewUnitaryGate(targets, controls []QubitRef, matrix *Matrix) (*Gate, error) {
	if len(targets) == 0 {
		return nil, valueErrorf("a unitary gate requires at least one target qubit")
	}
	if matrix == nil {
		return nil, valueErrorf("a unitary gate requires a matrix")
	}
	if err := checkGate(targets, controls, nil, matrix); err != nil {
		return nil, err
	}
	return &Gate{
		ArbData:  *NewArbData(),
		targets:  append([]QubitRef{}, targets...),
		controls: append([]QubitRef{}, controls...),
		matrix:   matrix.Clone(),
	}, nil
}

func NewMeasurementGate(measures []QubitRef) (*Gate, error) {
	if err := checkGate(nil, nil, measures, nil); err != nil {
		return nil, err
	}
	return &Gate{ArbData: *NewArbData(), measures: append([]QubitRef{}, measures...)}, nil
}

// NewCustomGate builds a named gate. matrix and data may be nil.
func NewCustomGate(name string, targets, controls, measures []QubitRef, matrix *Matrix, data *ArbData) (*Gate, error) {
	if name == "" {
		return nil, valueErrorf("custom gates require a name")
	}
	if err := checkGate(targets, controls, measures, matrix); err != nil {
		return nil, err
	}
	g := &Gate{
		ArbData:  *NewArbData(),
		name:     name,
		targets:  append([]QubitRef{}, targets...),
		controls: append([]QubitRef{}, controls...),
		measures: append([]QubitRef{}, measures...),
	}
	if matrix != nil {
		g.matrix = matrix.Clone()
	}
	if data != nil {
		g.ArbData = *data.Clone()
	}
	return g, nil
}

func (g *Gate) IsCustom() bool {
	return g.name != ""
}

func (g *Gate) Name() string {
	return g.name
}

func (g *Gate) Targets() []QubitRef {
	return append([]QubitRef{}, g.targets...)
}

func (g *Gate) Controls() []QubitRef {
	return append([]QubitRef{}, g.controls...)
}

func (g *Gate) Measures() []QubitRef {
	return append([]QubitRef{}, g.measures...)
}

// Matrix returns a copy of the matrix, or nil.
func (g *Gate) Matrix() *Matrix {
	if g.matrix == nil {
		return nil
	}
	return g.matrix.Clone()
}

func (g *Gate) Data() *ArbData {
	return g.ArbData.Clone()
}

func (g *Gate) Clone() *Gate {
	c := &Gate{
		ArbData:  *g.ArbData.Clone(),
		name:     g.name,
		targets:  g.Targets(),
		controls: g.Controls(),
		measures: g.Measures(),
		matrix:   g.Matrix(),
	}
	return c
}

func (g *Gate) Equal(o *Gate) bool {
	if g == nil || o == nil {
		return g == o
	}
	return g.name == o.name &&
		qubitsEqual(g.targets, o.targets) &&
		qubitsEqual(g.controls, o.controls) &&
		qubitsEqual(g.measures, o.measures) &&
		g.matrix.Equal(o.matrix) &&
		g.ArbData.Equal(&o.ArbData)
}

func qubitsEqual(a, b []QubitRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (g *Gate) String() string {
	name := "unitary"
	switch {
	case g.IsCustom():
		name = g.name
	case g.matrix == nil:
		name = "measure"
	}
	return fmt.Sprintf("Gate(%s, targets=%s, controls=%s, measures=%s)",
		name, qubitsString(g.targets), qubitsString(g.controls), qubitsString(g.measures))
}

func rawQubits(eng native.Engine, qubits []QubitRef) (*handle.Handle, native.ID, error) {
	if len(qubits) == 0 {
		return nil, 0, nil
	}
	s := &QubitSet{qubits: qubits}
	h, err := s.ToRaw(eng)
	if err != nil {
		return nil, 0, err
	}
	id, err := h.Borrow()
	if err != nil {
		h.Release()
		return nil, 0, err
	}
	return h, id, nil
}

func (g *Gate) Encode(eng native.Engine) (*handle.Handle, error) {
	th, tid, err := rawQubits(eng, g.targets)
	if err != nil {
		return nil, err
	}
	defer th.Release()
	ch, cid, err := rawQubits(eng, g.controls)
	if err != nil {
		return nil, err
	}
	defer ch.Release()
	mh, mid, err := rawQubits(eng, g.measures)
	if err != nil {
		return nil, err
	}
	defer mh.Release()

	var elements []complex128
	if g.matrix != nil {
		elements = g.matrix.Elements()
	}

	var id native.ID
	switch {
	case g.IsCustom():
		dh, err := g.ArbData.Encode(eng, nil)
		if err != nil {
			return nil, err
		}
		defer dh.Release()
		did, err := dh.Borrow()
		if err != nil {
			return nil, err
		}
		id, err = eng.GateNewCustom(g.name, tid, cid, mid, elements, did)
		if err != nil {
			return nil, err
		}
		return handle.New(eng, id), nil
	case g.matrix != nil:
		if len(g.measures) > 0 {
			return nil, valueErrorf("gates with both a matrix and measures must be custom gates to be sent")
		}
		id, err = eng.GateNewUnitary(tid, cid, elements)
	default:
		id, err = eng.GateNewMeasurement(mid)
	}
	if err != nil {
		return nil, err
	}
	h := handle.New(eng, id)
	if err := g.ArbData.encodeInto(eng, id); err != nil {
		h.Release()
		return nil, err
	}
	return h, nil
}

func DecodeGate(eng native.Engine, h *handle.Handle) (*Gate, error) {
	id, err := h.Borrow()
	if err != nil {
		return nil, err
	}
	g := &Gate{}
	custom, err := eng.GateIsCustom(id)
	if err != nil {
		return nil, errors.Wrap(err, "get gate type")
	}
	if custom {
		if g.name, err = eng.GateName(id); err != nil {
			return nil, errors.Wrap(err, "get gate name")
		}
	}
	if g.targets, err = gateQubits(eng, id, eng.GateTargets); err != nil {
		return nil, errors.Wrap(err, "get gate targets")
	}
	if g.controls, err = gateQubits(eng, id, eng.GateControls); err != nil {
		return nil, errors.Wrap(err, "get gate controls")
	}
	if g.measures, err = gateQubits(eng, id, eng.GateMeasures); err != nil {
		return nil, errors.Wrap(err, "get gate measures")
	}
	hasMatrix, err := eng.GateHasMatrix(id)
	if err != nil {
		return nil, err
	}
	if hasMatrix {
		elements, err := eng.GateMatrix(id)
		if err != nil {
			return nil, errors.Wrap(err, "get gate matrix")
		}
		if g.matrix, err = NewMatrix(elements); err != nil {
			return nil, err
		}
	}
	data, err := decodeArbData(eng, id)
	if err != nil {
		return nil, err
	}
	g.ArbData = *data
	if err := checkGate(g.targets, g.controls, g.measures, g.matrix); err != nil {
		return nil, err
	}
	return g, nil
}

func gateQubits(eng native.Engine, gate native.ID, get func(native.ID) (native.ID, error)) ([]QubitRef, error) {
	qid, err := get(gate)
	if err != nil {
		return nil, err
	}
	qh := handle.New(eng, qid)
	defer qh.Release()
	s, err := qubitSetFromID(eng, qid)
	if err != nil {
		return nil, err
	}
	return s.qubits, nil
}
