package noise

import (
	"fmt"
	"sync"

	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/plugin"
	"go.uber.org/zap"
)

const (
	Name   = "readout-noise"
	author = "cosim"
	iface  = "noise"
	keyP   = "p"
)

// Readout is an operator that flips each measurement result with
// probability P. Randomness comes from the engine so runs with the same seed
// are reproducible.
type Readout struct {
	mu      sync.Mutex
	p       float64
	flipped uint64
}

func NewReadout(p float64) (*Readout, error) {
	if err := checkProbability(p); err != nil {
		return nil, err
	}
	return &Readout{p: p}, nil
}

func checkProbability(p float64) error {
	if p < 0 || p > 1 {
		return core.DispatchErrorf("probability must be in [0, 1], got %v", p)
	}
	return nil
}

// Definition builds the operator. Host arbs on "noise" are "set" with
// {"p": float} and "stats", which reports the current probability and the
// number of flipped results. Init commands are handled the same way.
func (r *Readout) Definition() *plugin.Definition {
	return plugin.NewOperator(Name, author, core.CurrentVersion()).
		OnModifyMeasurement(r.modify).
		OnHostArb(iface, "set", r.set).
		OnHostArb(iface, "stats", r.stats)
}

func (r *Readout) P() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.p
}

func (r *Readout) modify(c *plugin.Context, m *core.Measurement) ([]*core.Measurement, error) {
	p := r.P()
	if p == 0 || m.Value() == core.Undefined {
		return []*core.Measurement{m}, nil
	}
	f, err := c.RandomFloat()
	if err != nil {
		return nil, err
	}
	if f < p {
		if m.Value() == core.One {
			m.SetValue(core.Zero)
		} else {
			m.SetValue(core.One)
		}
		r.mu.Lock()
		r.flipped++
		r.mu.Unlock()
		zap.L().Debug(fmt.Sprintf("flipped readout/qubit:%s/value:%s", m.Qubit(), m.Value()))
	}
	return []*core.Measurement{m}, nil
}

func (r *Readout) set(c *plugin.Context, cmd *core.ArbCmd) (*core.ArbData, error) {
	v, ok := cmd.Data().Get(keyP)
	if !ok {
		return nil, core.DispatchErrorf("missing argument %q", keyP)
	}
	var p float64
	switch n := v.(type) {
	case float64:
		p = n
	case float32:
		p = float64(n)
	case uint64:
		p = float64(n)
	case int64:
		p = float64(n)
	default:
		return nil, core.DispatchErrorf("%s must be a number, got %T", keyP, v)
	}
	if err := checkProbability(p); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.p = p
	r.mu.Unlock()
	zap.L().Info(fmt.Sprintf("set readout error/p:%v", p))
	return nil, nil
}

func (r *Readout) stats(c *plugin.Context, cmd *core.ArbCmd) (*core.ArbData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return core.NewArbDataWith(map[string]interface{}{
		keyP:      r.p,
		"flipped": r.flipped,
	})
}
