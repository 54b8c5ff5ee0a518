package plugin

import (
	"fmt"

	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/native"
	"go.uber.org/zap"
)

// routeGate calls the handlers for g. Custom gates go to the handler
// registered for their name. Other gates run their unitary part first and
// their measurement part second. Operators forward whatever they do not
// handle to the downstream plugin, as the same gate when they handle no part
// of it.
func (d *Definition) routeGate(c *Context, g *core.Gate) (*core.MeasurementSet, error) {
	if g.IsCustom() {
		h, ok := d.custom[g.Name()]
		if ok {
			ms, err := h(c, g)
			if err != nil {
				return nil, err
			}
			return keepMeasured(g.Measures(), ms), nil
		}
		if d.typ == native.PluginTypeOperator {
			return nil, c.Gate(g)
		}
		return nil, requiredErr(fmt.Sprintf("handle_%s_gate", g.Name()))
	}
	if d.typ == native.PluginTypeOperator && !d.handlesPartOf(g) {
		return nil, c.Gate(g)
	}
	if g.Matrix() != nil {
		if err := d.routeUnitary(c, g.Targets(), g.Controls(), g.Matrix()); err != nil {
			return nil, err
		}
	}
	if len(g.Measures()) == 0 {
		return nil, nil
	}
	return d.routeMeasurement(c, g.Measures())
}

// handlesPartOf reports whether a handler is set for the unitary or the
// measurement part of g.
func (d *Definition) handlesPartOf(g *core.Gate) bool {
	if g.Matrix() != nil && (d.controlled != nil || d.unitary != nil) {
		return true
	}
	return len(g.Measures()) > 0 && d.measurement != nil
}

func (d *Definition) routeUnitary(c *Context, targets, controls []core.QubitRef, matrix *core.Matrix) error {
	switch {
	case d.controlled != nil:
		return d.controlled(c, targets, controls, matrix)
	case d.unitary != nil:
		if len(controls) == 0 {
			return d.unitary(c, targets, matrix)
		}
		all := make([]core.QubitRef, 0, len(controls)+len(targets))
		all = append(all, controls...)
		all = append(all, targets...)
		return d.unitary(c, all, matrix.Controlled(len(controls)))
	case d.typ == native.PluginTypeOperator:
		g, err := core.NewUnitaryGate(targets, controls, matrix)
		if err != nil {
			return err
		}
		return c.Gate(g)
	}
	return requiredErr("handle_unitary_gate")
}

func (d *Definition) routeMeasurement(c *Context, measures []core.QubitRef) (*core.MeasurementSet, error) {
	switch {
	case d.measurement != nil:
		ms, err := d.measurement(c, measures)
		if err != nil {
			return nil, err
		}
		return keepMeasured(measures, ms), nil
	case d.typ == native.PluginTypeOperator:
		return nil, c.Measure(measures...)
	}
	return nil, requiredErr("handle_measurement_gate")
}

// keepMeasured drops results for qubits the gate did not measure.
func keepMeasured(measures []core.QubitRef, ms *core.MeasurementSet) *core.MeasurementSet {
	if ms == nil {
		return nil
	}
	wanted := make(map[core.QubitRef]bool, len(measures))
	for _, q := range measures {
		wanted[q] = true
	}
	res := ms.Clone()
	for _, q := range ms.Qubits() {
		if !wanted[q] {
			zap.L().Warn(fmt.Sprintf("dropping measurement of a qubit the gate does not measure/qubit:%s", q))
			res.Remove(q)
		}
	}
	return res
}
