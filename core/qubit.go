package core

import (
	"fmt"
	"strings"
)

// QubitRef refers to one qubit of the downstream plugin. Valid references
// start at 1.
type QubitRef uint64

func NewQubitRef(q uint64) (QubitRef, error) {
	if q == 0 {
		return 0, valueErrorf("qubit references must be positive")
	}
	return QubitRef(q), nil
}

func (q QubitRef) String() string {
	return fmt.Sprintf("q%d", uint64(q))
}

func qubitsString(qs []QubitRef) string {
	parts := make([]string, len(qs))
	for i, q := range qs {
		parts[i] = q.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
