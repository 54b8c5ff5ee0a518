package core

import (
	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/native"
)

// QubitSet is an ordered sequence of distinct qubit references.
type QubitSet struct {
	qubits []QubitRef
}

func QubitSetFromItems(qubits ...QubitRef) (*QubitSet, error) {
	return QubitSetFromSlice(qubits)
}

func QubitSetFromSlice(qubits []QubitRef) (*QubitSet, error) {
	seen := make(map[QubitRef]bool, len(qubits))
	for _, q := range qubits {
		if q == 0 {
			return nil, valueErrorf("qubit references must be positive")
		}
		if seen[q] {
			return nil, valueErrorf("qubit %s appears more than once", q)
		}
		seen[q] = true
	}
	return &QubitSet{qubits: append([]QubitRef{}, qubits...)}, nil
}

func (s *QubitSet) Qubits() []QubitRef {
	return append([]QubitRef{}, s.qubits...)
}

func (s *QubitSet) Len() int {
	return len(s.qubits)
}

func (s *QubitSet) Contains(q QubitRef) bool {
	for _, x := range s.qubits {
		if x == q {
			return true
		}
	}
	return false
}

func (s *QubitSet) Clone() *QubitSet {
	return &QubitSet{qubits: s.Qubits()}
}

func (s *QubitSet) Equal(o *QubitSet) bool {
	if len(s.qubits) != len(o.qubits) {
		return false
	}
	for i := range s.qubits {
		if s.qubits[i] != o.qubits[i] {
			return false
		}
	}
	return true
}

func (s *QubitSet) String() string {
	return qubitsString(s.qubits)
}

func (s *QubitSet) ToRaw(eng native.Engine) (*handle.Handle, error) {
	id, err := eng.QbsetNew()
	if err != nil {
		return nil, err
	}
	h := handle.New(eng, id)
	for _, q := range s.qubits {
		if err := eng.QbsetPush(id, uint64(q)); err != nil {
			h.Release()
			return nil, errors.Wrapf(err, "push qubit %s", q)
		}
	}
	return h, nil
}

// QubitSetFromRaw drains the engine-side set into a QubitSet. The resource
// is empty afterwards but not released.
func QubitSetFromRaw(eng native.Engine, h *handle.Handle) (*QubitSet, error) {
	id, err := h.Borrow()
	if err != nil {
		return nil, err
	}
	return qubitSetFromID(eng, id)
}

func qubitSetFromID(eng native.Engine, id native.ID) (*QubitSet, error) {
	var qubits []QubitRef
	for {
		n, err := eng.QbsetLen(id)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		q, err := eng.QbsetPop(id)
		if err != nil {
			return nil, err
		}
		qubits = append(qubits, QubitRef(q))
	}
	return QubitSetFromSlice(qubits)
}
