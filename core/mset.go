package core

import (
	"sort"
	"strings"

	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/native"
)

// MeasurementSet holds at most one measurement per qubit.
type MeasurementSet struct {
	meas map[QubitRef]*Measurement
}

func NewMeasurementSet() *MeasurementSet {
	return &MeasurementSet{meas: make(map[QubitRef]*Measurement)}
}

func MeasurementSetFromItems(ms ...*Measurement) (*MeasurementSet, error) {
	return MeasurementSetFromSlice(ms)
}

func MeasurementSetFromSlice(ms []*Measurement) (*MeasurementSet, error) {
	s := NewMeasurementSet()
	for _, m := range ms {
		if err := s.Add(m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add inserts a copy of m. A second measurement of the same qubit is an
// ErrValue.
func (s *MeasurementSet) Add(m *Measurement) error {
	if m == nil {
		return typeErrorf("measurement is nil")
	}
	if _, ok := s.meas[m.qubit]; ok {
		return valueErrorf("qubit %s is measured more than once", m.qubit)
	}
	s.meas[m.qubit] = m.Clone()
	return nil
}

// Set inserts or replaces the measurement of m's qubit.
func (s *MeasurementSet) Set(m *Measurement) error {
	if m == nil {
		return typeErrorf("measurement is nil")
	}
	s.meas[m.qubit] = m.Clone()
	return nil
}

func (s *MeasurementSet) Get(q QubitRef) (*Measurement, bool) {
	m, ok := s.meas[q]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

func (s *MeasurementSet) Remove(q QubitRef) {
	delete(s.meas, q)
}

func (s *MeasurementSet) Len() int {
	return len(s.meas)
}

// Sorted returns copies of the measurements in ascending qubit order.
func (s *MeasurementSet) Sorted() []*Measurement {
	ms := make([]*Measurement, 0, len(s.meas))
	for _, m := range s.meas {
		ms = append(ms, m.Clone())
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].qubit < ms[j].qubit })
	return ms
}

func (s *MeasurementSet) Qubits() []QubitRef {
	qs := make([]QubitRef, 0, len(s.meas))
	for q := range s.meas {
		qs = append(qs, q)
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i] < qs[j] })
	return qs
}

func (s *MeasurementSet) Clone() *MeasurementSet {
	c := NewMeasurementSet()
	for q, m := range s.meas {
		c.meas[q] = m.Clone()
	}
	return c
}

func (s *MeasurementSet) Equal(o *MeasurementSet) bool {
	if len(s.meas) != len(o.meas) {
		return false
	}
	for q, m := range s.meas {
		if !m.Equal(o.meas[q]) {
			return false
		}
	}
	return true
}

func (s *MeasurementSet) String() string {
	sorted := s.Sorted()
	parts := make([]string, len(sorted))
	for i, m := range sorted {
		parts[i] = m.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (s *MeasurementSet) ToRaw(eng native.Engine) (*handle.Handle, error) {
	id, err := eng.MsetNew()
	if err != nil {
		return nil, err
	}
	h := handle.New(eng, id)
	for _, m := range s.Sorted() {
		if err := setMeas(eng, id, m); err != nil {
			h.Release()
			return nil, err
		}
	}
	return h, nil
}

func setMeas(eng native.Engine, set native.ID, m *Measurement) error {
	mh, err := m.Encode(eng)
	if err != nil {
		return err
	}
	defer mh.Release()
	mid, err := mh.Borrow()
	if err != nil {
		return err
	}
	if err := eng.MsetSet(set, mid); err != nil {
		return err
	}
	_, err = mh.Take()
	return err
}

// MeasurementSetFromRaw drains the engine-side set. The drain order is up
// to the engine; use Sorted for a deterministic sequence.
func MeasurementSetFromRaw(eng native.Engine, h *handle.Handle) (*MeasurementSet, error) {
	id, err := h.Borrow()
	if err != nil {
		return nil, err
	}
	return measurementSetFromID(eng, id)
}

func measurementSetFromID(eng native.Engine, id native.ID) (*MeasurementSet, error) {
	s := NewMeasurementSet()
	for {
		n, err := eng.MsetLen(id)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return s, nil
		}
		mid, err := eng.MsetTakeAny(id)
		if err != nil {
			return nil, err
		}
		mh := handle.New(eng, mid)
		m, err := DecodeMeasurement(eng, mh)
		mh.Release()
		if err != nil {
			return nil, err
		}
		if err := s.Add(m); err != nil {
			return nil, err
		}
	}
}
