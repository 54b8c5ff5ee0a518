package sampling

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/plugin"
	"go.uber.org/zap"
)

const (
	Name          = "sampling"
	author        = "cosim"
	maxShots      = 1 << 20
	defaultShots  = 1
	argShots      = "shots"
	argQubits     = "qubits"
	argCircuit    = "circuit"
	resultCounts  = "counts"
	resultQubits  = "qubits"
	resultShots   = "shots"
	ifaceSampling = "sampling"
)

// Counts maps a bitstring to the number of shots that produced it. Qubit 0
// is the rightmost character.
type Counts map[string]uint32

// Op is one parsed circuit line such as "cx 0 1" or "measure".
type Op struct {
	Name   string
	Qubits []int
}

func (o Op) String() string {
	parts := []string{o.Name}
	for _, q := range o.Qubits {
		parts = append(parts, strconv.Itoa(q))
	}
	return strings.Join(parts, " ")
}

type gateDef struct {
	matrix   *core.Matrix
	controls int
	arity    int
}

var (
	invSqrt2 = complex(1/math.Sqrt2, 0)

	pauliX = mustMatrix(0, 1, 1, 0)
	gates  = map[string]gateDef{
		"x":    {matrix: pauliX, arity: 1},
		"y":    {matrix: mustMatrix(0, -1i, 1i, 0), arity: 1},
		"z":    {matrix: mustMatrix(1, 0, 0, -1), arity: 1},
		"h":    {matrix: mustMatrix(invSqrt2, invSqrt2, invSqrt2, -invSqrt2), arity: 1},
		"s":    {matrix: mustMatrix(1, 0, 0, 1i), arity: 1},
		"cx":   {matrix: pauliX, controls: 1, arity: 2},
		"cz":   {matrix: mustMatrix(1, 0, 0, -1), controls: 1, arity: 2},
		"ccx":  {matrix: pauliX, controls: 2, arity: 3},
		"swap": {matrix: mustMatrix(1, 0, 0, 0, 0, 0, 1, 0, 0, 1, 0, 0, 0, 0, 0, 1), arity: 2},
	}
)

func mustMatrix(elements ...complex128) *core.Matrix {
	m, err := core.NewMatrix(elements)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseCircuit parses one operation per line. Operands are qubit indices in
// [0, numQubits). "measure" takes no operands and measures every qubit;
// the final measurement is implicit.
func ParseCircuit(lines []string, numQubits int) ([]Op, error) {
	ops := make([]Op, 0, len(lines))
	for i, line := range lines {
		fields := strings.Fields(strings.ToLower(line))
		if len(fields) == 0 {
			continue
		}
		op := Op{Name: fields[0]}
		for _, f := range fields[1:] {
			q, err := strconv.Atoi(f)
			if err != nil || q < 0 || q >= numQubits {
				return nil, core.DispatchErrorf("line %d: invalid qubit %q", i+1, f)
			}
			op.Qubits = append(op.Qubits, q)
		}
		if op.Name == "measure" {
			if len(op.Qubits) != 0 {
				return nil, core.DispatchErrorf("line %d: measure takes no operands", i+1)
			}
			ops = append(ops, op)
			continue
		}
		g, ok := gates[op.Name]
		if !ok {
			return nil, core.DispatchErrorf("line %d: unknown gate %q", i+1, op.Name)
		}
		if len(op.Qubits) != g.arity {
			return nil, core.DispatchErrorf("line %d: %s takes %d qubits, got %d", i+1, op.Name, g.arity, len(op.Qubits))
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// Sampler is a frontend that runs a small gate-level circuit a number of
// times and reports the measured bitstrings.
type Sampler struct {
	last Counts
}

func NewSampler() *Sampler {
	return &Sampler{}
}

func (s *Sampler) Definition() *plugin.Definition {
	return plugin.NewFrontend(Name, author, core.CurrentVersion(), s.run).
		OnHostArb(ifaceSampling, "last", s.lastCounts)
}

type job struct {
	shots     int
	numQubits int
	ops       []Op
}

func parseArgs(args *core.ArbData) (*job, error) {
	j := &job{shots: defaultShots}
	if v, ok := args.Get(argShots); ok {
		n, err := toInt(argShots, v)
		if err != nil {
			return nil, err
		}
		if n <= 0 || n > maxShots {
			return nil, core.DispatchErrorf("shots must be in [1, %d], got %d", maxShots, n)
		}
		j.shots = n
	}
	v, ok := args.Get(argQubits)
	if !ok {
		return nil, core.DispatchErrorf("missing argument %q", argQubits)
	}
	n, err := toInt(argQubits, v)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, core.DispatchErrorf("qubits must be positive, got %d", n)
	}
	j.numQubits = n
	raw, ok := args.Get(argCircuit)
	if !ok {
		return nil, core.DispatchErrorf("missing argument %q", argCircuit)
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, core.DispatchErrorf("circuit must be a list of strings, got %T", raw)
	}
	lines := make([]string, len(items))
	for i, item := range items {
		if lines[i], ok = item.(string); !ok {
			return nil, core.DispatchErrorf("circuit line %d must be a string, got %T", i+1, item)
		}
	}
	if j.ops, err = ParseCircuit(lines, j.numQubits); err != nil {
		return nil, err
	}
	return j, nil
}

func toInt(key string, v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		if n > math.MaxInt32 {
			return 0, core.DispatchErrorf("%s is too large: %d", key, n)
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, core.DispatchErrorf("%s must be an integer, got %v", key, n)
		}
		return int(n), nil
	}
	return 0, core.DispatchErrorf("%s must be an integer, got %T", key, v)
}

func (s *Sampler) run(c *plugin.Context, args *core.ArbData) (*core.ArbData, error) {
	j, err := parseArgs(args)
	if err != nil {
		return nil, err
	}
	zap.L().Debug(fmt.Sprintf("start sampling/shots:%d/qubits:%d/ops:%d", j.shots, j.numQubits, len(j.ops)))
	counts := Counts{}
	for shot := 0; shot < j.shots; shot++ {
		bits, err := s.shot(c, j)
		if err != nil {
			return nil, errors.Wrapf(err, "shot %d", shot)
		}
		counts[bits]++
	}
	s.last = counts
	return countsToArb(counts, j)
}

// shot allocates fresh qubits, applies the circuit and returns the final
// measurement as a bitstring.
func (s *Sampler) shot(c *plugin.Context, j *job) (string, error) {
	qs, err := c.Allocate(j.numQubits)
	if err != nil {
		return "", err
	}
	bits, err := s.apply(c, j, qs)
	if ferr := c.Free(qs...); ferr != nil && err == nil {
		err = ferr
	}
	return bits, err
}

func (s *Sampler) apply(c *plugin.Context, j *job, qs []core.QubitRef) (string, error) {
	for _, op := range j.ops {
		if op.Name == "measure" {
			if err := c.Measure(qs...); err != nil {
				return "", err
			}
			continue
		}
		g := gates[op.Name]
		operands := make([]core.QubitRef, len(op.Qubits))
		for i, q := range op.Qubits {
			operands[i] = qs[q]
		}
		gate, err := core.NewUnitaryGate(operands[g.controls:], operands[:g.controls], g.matrix)
		if err != nil {
			return "", err
		}
		if err := c.Gate(gate); err != nil {
			return "", err
		}
	}
	if err := c.Measure(qs...); err != nil {
		return "", err
	}
	var sb strings.Builder
	for i := len(qs) - 1; i >= 0; i-- {
		m, err := c.GetMeasurement(qs[i])
		if err != nil {
			return "", err
		}
		sb.WriteString(m.Value().String())
	}
	return sb.String(), nil
}

func countsToArb(counts Counts, j *job) (*core.ArbData, error) {
	obj := make(map[string]interface{}, len(counts))
	for k, v := range counts {
		obj[k] = v
	}
	return core.NewArbDataWith(map[string]interface{}{
		resultCounts: obj,
		resultQubits: j.numQubits,
		resultShots:  j.shots,
	})
}

// lastCounts returns the counts of the previous run, most frequent first,
// as a list of [bitstring, count] pairs.
func (s *Sampler) lastCounts(c *plugin.Context, cmd *core.ArbCmd) (*core.ArbData, error) {
	keys := make([]string, 0, len(s.last))
	for k := range s.last {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if s.last[keys[a]] != s.last[keys[b]] {
			return s.last[keys[a]] > s.last[keys[b]]
		}
		return keys[a] < keys[b]
	})
	pairs := make([]interface{}, len(keys))
	for i, k := range keys {
		pairs[i] = []interface{}{k, s.last[k]}
	}
	return core.NewArbDataWith(map[string]interface{}{resultCounts: pairs})
}

// CountsFromArb reads the counts of a run result.
func CountsFromArb(res *core.ArbData) (Counts, error) {
	raw, ok := res.Get(resultCounts)
	if !ok {
		return nil, core.DispatchErrorf("result has no %q", resultCounts)
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, core.DispatchErrorf("counts must be an object, got %T", raw)
	}
	counts := make(Counts, len(obj))
	for k, v := range obj {
		n, err := toInt(k, v)
		if err != nil {
			return nil, err
		}
		counts[k] = uint32(n)
	}
	return counts, nil
}
