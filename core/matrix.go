package core

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"
	"strings"
)

// Matrix is a square complex matrix over n qubits, stored row-major. The
// first qubit of the associated qubit list is the most significant bit of
// the row and column index.
type Matrix struct {
	dim      int
	elements []complex128
}

// NewMatrix takes the row-major elements of a 2^n x 2^n matrix, n >= 1.
func NewMatrix(elements []complex128) (*Matrix, error) {
	n := len(elements)
	dim := int(math.Round(math.Sqrt(float64(n))))
	if dim < 2 || dim*dim != n || bits.OnesCount(uint(dim)) != 1 {
		return nil, valueErrorf("a matrix of %d elements is not a square matrix over one or more qubits", n)
	}
	return &Matrix{dim: dim, elements: append([]complex128{}, elements...)}, nil
}

func NewMatrixFromRows(rows [][]complex128) (*Matrix, error) {
	elements := make([]complex128, 0, len(rows)*len(rows))
	for i, row := range rows {
		if len(row) != len(rows) {
			return nil, valueErrorf("row %d has %d columns, expected %d", i, len(row), len(rows))
		}
		elements = append(elements, row...)
	}
	return NewMatrix(elements)
}

// Identity returns the identity over numQubits qubits.
func Identity(numQubits int) *Matrix {
	dim := 1 << numQubits
	m := &Matrix{dim: dim, elements: make([]complex128, dim*dim)}
	for i := 0; i < dim; i++ {
		m.elements[i*dim+i] = 1
	}
	return m
}

func (m *Matrix) Dim() int {
	return m.dim
}

func (m *Matrix) NumQubits() int {
	return bits.TrailingZeros(uint(m.dim))
}

func (m *Matrix) At(row, col int) complex128 {
	return m.elements[row*m.dim+col]
}

// Elements returns a copy of the row-major elements.
func (m *Matrix) Elements() []complex128 {
	return append([]complex128{}, m.elements...)
}

func (m *Matrix) Clone() *Matrix {
	return &Matrix{dim: m.dim, elements: m.Elements()}
}

func (m *Matrix) Equal(o *Matrix) bool {
	return m.ApproxEqual(o, 0)
}

// ApproxEqual compares element-wise with an absolute tolerance.
func (m *Matrix) ApproxEqual(o *Matrix, epsilon float64) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.dim != o.dim {
		return false
	}
	for i := range m.elements {
		if cmplx.Abs(m.elements[i]-o.elements[i]) > epsilon {
			return false
		}
	}
	return true
}

// Controlled adds numControls control qubits in front of the target
// qubits. The result acts as the identity unless every control is one, in
// which case m is applied: the identity fills the top-left block and m the
// bottom-right block.
func (m *Matrix) Controlled(numControls int) *Matrix {
	if numControls <= 0 {
		return m.Clone()
	}
	dim := m.dim << numControls
	offset := dim - m.dim
	c := &Matrix{dim: dim, elements: make([]complex128, dim*dim)}
	for i := 0; i < offset; i++ {
		c.elements[i*dim+i] = 1
	}
	for row := 0; row < m.dim; row++ {
		copy(c.elements[(offset+row)*dim+offset:], m.elements[row*m.dim:(row+1)*m.dim])
	}
	return c
}

func (m *Matrix) String() string {
	rows := make([]string, m.dim)
	for r := 0; r < m.dim; r++ {
		cols := make([]string, m.dim)
		for c := 0; c < m.dim; c++ {
			cols[c] = fmt.Sprintf("%v", m.At(r, c))
		}
		rows[r] = "[" + strings.Join(cols, ", ") + "]"
	}
	return "[" + strings.Join(rows, ", ") + "]"
}
