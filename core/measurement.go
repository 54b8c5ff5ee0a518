package core

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/native"
)

type MeasValue int

const (
	Undefined MeasValue = iota
	Zero
	One
)

// MeasValueOf converts a classical bit.
func MeasValueOf(bit bool) MeasValue {
	if bit {
		return One
	}
	return Zero
}

func (v MeasValue) String() string {
	switch v {
	case Zero:
		return "0"
	case One:
		return "1"
	default:
		return "?"
	}
}

func (v MeasValue) toNative() native.MeasValue {
	switch v {
	case Zero:
		return native.MeasZero
	case One:
		return native.MeasOne
	default:
		return native.MeasUndefined
	}
}

func measValueFromNative(v native.MeasValue) (MeasValue, error) {
	switch v {
	case native.MeasUndefined:
		return Undefined, nil
	case native.MeasZero:
		return Zero, nil
	case native.MeasOne:
		return One, nil
	default:
		return Undefined, valueErrorf("invalid measurement value %d", v)
	}
}

// Measurement is the outcome of measuring one qubit, with optional data
// attached by the plugin that produced it.
type Measurement struct {
	ArbData
	qubit QubitRef
	value MeasValue
}

func NewMeasurement(qubit QubitRef, value MeasValue, data *ArbData) (*Measurement, error) {
	if qubit == 0 {
		return nil, valueErrorf("qubit references must be positive")
	}
	switch value {
	case Undefined, Zero, One:
	default:
		return nil, valueErrorf("invalid measurement value %d", value)
	}
	m := &Measurement{ArbData: *NewArbData(), qubit: qubit, value: value}
	if data != nil {
		m.ArbData = *data.Clone()
	}
	return m, nil
}

func (m *Measurement) Qubit() QubitRef {
	return m.qubit
}

func (m *Measurement) Value() MeasValue {
	return m.value
}

func (m *Measurement) SetValue(v MeasValue) {
	m.value = v
}

func (m *Measurement) Data() *ArbData {
	return m.ArbData.Clone()
}

func (m *Measurement) Clone() *Measurement {
	return &Measurement{ArbData: *m.ArbData.Clone(), qubit: m.qubit, value: m.value}
}

func (m *Measurement) Equal(o *Measurement) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.qubit == o.qubit && m.value == o.value && m.ArbData.Equal(&o.ArbData)
}

func (m *Measurement) String() string {
	return fmt.Sprintf("Measurement(%s, %s, %s)", m.qubit, m.value, m.ArbData.String())
}

func (m *Measurement) Encode(eng native.Engine) (*handle.Handle, error) {
	id, err := eng.MeasNew(uint64(m.qubit), m.value.toNative())
	if err != nil {
		return nil, err
	}
	h := handle.New(eng, id)
	if err := m.ArbData.encodeInto(eng, id); err != nil {
		h.Release()
		return nil, err
	}
	return h, nil
}

func DecodeMeasurement(eng native.Engine, h *handle.Handle) (*Measurement, error) {
	id, err := h.Borrow()
	if err != nil {
		return nil, err
	}
	return decodeMeasurement(eng, id)
}

func decodeMeasurement(eng native.Engine, id native.ID) (*Measurement, error) {
	q, err := eng.MeasQubit(id)
	if err != nil {
		return nil, errors.Wrap(err, "get measurement qubit")
	}
	nv, err := eng.MeasValue(id)
	if err != nil {
		return nil, errors.Wrap(err, "get measurement value")
	}
	v, err := measValueFromNative(nv)
	if err != nil {
		return nil, err
	}
	data, err := decodeArbData(eng, id)
	if err != nil {
		return nil, err
	}
	return NewMeasurement(QubitRef(q), v, data)
}
