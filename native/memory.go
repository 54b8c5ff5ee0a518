package native

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var jsonIter = jsoniter.ConfigCompatibleWithStandardLibrary

var emptyCBORMap = []byte{0xa0}

var dumpDecMode cbor.DecMode

func init() {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("native: failed to create CBOR dec mode: %v", err))
	}
	dumpDecMode = dm
}

type object interface {
	handleType() HandleType
	dump() map[string]interface{}
}

type arbCarrier interface {
	arb() *arbObj
}

type arbObj struct {
	cbor []byte
	args [][]byte
}

func newArbObj() arbObj {
	return arbObj{cbor: append([]byte(nil), emptyCBORMap...)}
}

func (a *arbObj) arb() *arbObj { return a }

func (a *arbObj) handleType() HandleType { return HandleTypeArbData }

func (a *arbObj) clone() *arbObj {
	c := &arbObj{cbor: append([]byte(nil), a.cbor...)}
	for _, arg := range a.args {
		c.args = append(c.args, append([]byte(nil), arg...))
	}
	return c
}

func (a *arbObj) dumpInto(m map[string]interface{}) map[string]interface{} {
	var js interface{}
	if err := dumpDecMode.Unmarshal(a.cbor, &js); err != nil {
		js = fmt.Sprintf("<invalid cbor: %s>", err)
	}
	args := make([]string, 0, len(a.args))
	for _, arg := range a.args {
		args = append(args, fmt.Sprintf("%q", arg))
	}
	m["json"] = js
	m["args"] = args
	return m
}

func (a *arbObj) dump() map[string]interface{} {
	return a.dumpInto(map[string]interface{}{"type": HandleTypeArbData.String()})
}

type cmdObj struct {
	arbObj
	iface string
	oper  string
}

func (c *cmdObj) handleType() HandleType { return HandleTypeArbCmd }

func (c *cmdObj) clone() *cmdObj {
	return &cmdObj{arbObj: *c.arbObj.clone(), iface: c.iface, oper: c.oper}
}

func (c *cmdObj) dump() map[string]interface{} {
	return c.dumpInto(map[string]interface{}{
		"type":  HandleTypeArbCmd.String(),
		"iface": c.iface,
		"oper":  c.oper,
	})
}

type measObj struct {
	arbObj
	qubit uint64
	value MeasValue
}

func (m *measObj) handleType() HandleType { return HandleTypeMeasurement }

func (m *measObj) clone() *measObj {
	return &measObj{arbObj: *m.arbObj.clone(), qubit: m.qubit, value: m.value}
}

func (m *measObj) dump() map[string]interface{} {
	value := "?"
	switch m.value {
	case MeasZero:
		value = "0"
	case MeasOne:
		value = "1"
	}
	return m.dumpInto(map[string]interface{}{
		"type":  HandleTypeMeasurement.String(),
		"qubit": m.qubit,
		"value": value,
	})
}

type qbsetObj struct {
	qubits []uint64
}

func (q *qbsetObj) handleType() HandleType { return HandleTypeQubitSet }

func (q *qbsetObj) dump() map[string]interface{} {
	return map[string]interface{}{"type": HandleTypeQubitSet.String(), "qubits": q.qubits}
}

func (q *qbsetObj) contains(qubit uint64) bool {
	for _, x := range q.qubits {
		if x == qubit {
			return true
		}
	}
	return false
}

type cqObj struct {
	cmds []*cmdObj
}

func (c *cqObj) handleType() HandleType { return HandleTypeArbCmdQueue }

func (c *cqObj) dump() map[string]interface{} {
	cmds := make([]interface{}, 0, len(c.cmds))
	for _, cmd := range c.cmds {
		cmds = append(cmds, cmd.dump())
	}
	return map[string]interface{}{"type": HandleTypeArbCmdQueue.String(), "cmds": cmds}
}

type msetObj struct {
	meas map[uint64]*measObj
}

func (m *msetObj) handleType() HandleType { return HandleTypeMeasurementSet }

func (m *msetObj) dump() map[string]interface{} {
	qubits := make([]uint64, 0, len(m.meas))
	for q := range m.meas {
		qubits = append(qubits, q)
	}
	sort.Slice(qubits, func(i, j int) bool { return qubits[i] < qubits[j] })
	meas := make([]interface{}, 0, len(qubits))
	for _, q := range qubits {
		meas = append(meas, m.meas[q].dump())
	}
	return map[string]interface{}{"type": HandleTypeMeasurementSet.String(), "measurements": meas}
}

type gateObj struct {
	arbObj
	name     *string
	targets  []uint64
	controls []uint64
	measures []uint64
	matrix   []complex128
}

func (g *gateObj) handleType() HandleType { return HandleTypeGate }

func (g *gateObj) clone() *gateObj {
	c := &gateObj{
		arbObj:   *g.arbObj.clone(),
		name:     g.name,
		targets:  append([]uint64(nil), g.targets...),
		controls: append([]uint64(nil), g.controls...),
		measures: append([]uint64(nil), g.measures...),
	}
	if g.matrix != nil {
		c.matrix = append([]complex128(nil), g.matrix...)
	}
	return c
}

func (g *gateObj) dump() map[string]interface{} {
	m := map[string]interface{}{
		"type":     HandleTypeGate.String(),
		"targets":  g.targets,
		"controls": g.controls,
		"measures": g.measures,
	}
	if g.name != nil {
		m["name"] = *g.name
	}
	if g.matrix != nil {
		elements := make([][2]float64, 0, len(g.matrix))
		for _, e := range g.matrix {
			elements = append(elements, [2]float64{real(e), imag(e)})
		}
		m["matrix"] = elements
	}
	return g.dumpInto(m)
}

var _ Engine = (*Memory)(nil)

// Memory is an in-process Engine. All resources live in a handle table
// guarded by one mutex; the mutex is never held while a plugin callback runs.
type Memory struct {
	mu      sync.Mutex
	closed  bool
	nextID  ID
	objects map[ID]object

	seed      uint64
	nextState StateID
	states    map[StateID]*callState
	slots     map[string]*slot
}

// NewMemory creates an empty engine. The seed drives the per-plugin random
// number generators.
func NewMemory(seed uint64) *Memory {
	return &Memory{
		objects: make(map[ID]object),
		seed:    seed,
		states:  make(map[StateID]*callState),
		slots:   make(map[string]*slot),
	}
}

// Close makes every further primitive fail. Handles still alive at that
// point are leaked.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if len(m.objects) > 0 {
		zap.L().Debug(fmt.Sprintf("closing engine with %d live handles", len(m.objects)))
	}
	return nil
}

// Live returns the number of handles that have not been deleted.
func (m *Memory) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func (m *Memory) checkOpen(op string) error {
	if m.closed {
		return boundaryErr(op, "engine is closed")
	}
	return nil
}

// insert must be called with m.mu held.
func (m *Memory) insert(o object) ID {
	m.nextID++
	m.objects[m.nextID] = o
	return m.nextID
}

// resolve must be called with m.mu held.
func (m *Memory) resolve(op string, h ID) (object, error) {
	if err := m.checkOpen(op); err != nil {
		return nil, err
	}
	if h == 0 {
		return nil, boundaryErr(op, "invalid handle 0")
	}
	o, ok := m.objects[h]
	if !ok {
		return nil, boundaryErr(op, "handle %d does not exist", h)
	}
	return o, nil
}

func resolveAs[T object](m *Memory, op string, h ID) (T, error) {
	var zero T
	o, err := m.resolve(op, h)
	if err != nil {
		return zero, err
	}
	t, ok := o.(T)
	if !ok {
		return zero, boundaryErr(op, "handle %d is a %s", h, o.handleType())
	}
	return t, nil
}

func (m *Memory) resolveArb(op string, h ID) (*arbObj, error) {
	o, err := m.resolve(op, h)
	if err != nil {
		return nil, err
	}
	c, ok := o.(arbCarrier)
	if !ok {
		return nil, boundaryErr(op, "handle %d is a %s, which does not carry ArbData", h, o.handleType())
	}
	return c.arb(), nil
}

func (m *Memory) HandleDelete(h ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.resolve("handle_delete", h); err != nil {
		return err
	}
	delete(m.objects, h)
	return nil
}

func (m *Memory) HandleType(h ID) (HandleType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.resolve("handle_type", h)
	if err != nil {
		return HandleTypeInvalid, err
	}
	return o.handleType(), nil
}

func (m *Memory) HandleDump(h ID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.resolve("handle_dump", h)
	if err != nil {
		return "", err
	}
	b, err := jsonIter.Marshal(o.dump())
	if err != nil {
		return "", boundaryErr("handle_dump", "%s", err)
	}
	return string(b), nil
}

func (m *Memory) ArbNew() (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("arb_new"); err != nil {
		return 0, err
	}
	a := newArbObj()
	return m.insert(&a), nil
}

func copyOut(buf, data []byte) int {
	copy(buf, data)
	return len(data)
}

func (m *Memory) ArbCBORGet(h ID, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.resolveArb("arb_cbor_get", h)
	if err != nil {
		return 0, err
	}
	return copyOut(buf, a.cbor), nil
}

func (m *Memory) ArbCBORSet(h ID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.resolveArb("arb_cbor_set", h)
	if err != nil {
		return err
	}
	if err := cbor.Wellformed(data); err != nil {
		return boundaryErr("arb_cbor_set", "invalid CBOR: %s", err)
	}
	a.cbor = append([]byte(nil), data...)
	return nil
}

func (m *Memory) ArbLen(h ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.resolveArb("arb_len", h)
	if err != nil {
		return 0, err
	}
	return len(a.args), nil
}

func (m *Memory) ArbGetRaw(h ID, index int, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.resolveArb("arb_get_raw", h)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= len(a.args) {
		return 0, boundaryErr("arb_get_raw", "index %d out of range for %d arguments", index, len(a.args))
	}
	return copyOut(buf, a.args[index]), nil
}

func (m *Memory) ArbPushRaw(h ID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.resolveArb("arb_push_raw", h)
	if err != nil {
		return err
	}
	a.args = append(a.args, append([]byte{}, data...))
	return nil
}

func (m *Memory) ArbClear(h ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.resolveArb("arb_clear", h)
	if err != nil {
		return err
	}
	a.cbor = append([]byte(nil), emptyCBORMap...)
	a.args = nil
	return nil
}

func (m *Memory) CmdNew(iface, oper string) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("cmd_new"); err != nil {
		return 0, err
	}
	if !validIdentifier(iface) {
		return 0, boundaryErr("cmd_new", "%q is not a valid identifier", iface)
	}
	if !validIdentifier(oper) {
		return 0, boundaryErr("cmd_new", "%q is not a valid identifier", oper)
	}
	return m.insert(&cmdObj{arbObj: newArbObj(), iface: iface, oper: oper}), nil
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}

func (m *Memory) CmdIface(h ID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := resolveAs[*cmdObj](m, "cmd_iface_get", h)
	if err != nil {
		return "", err
	}
	return c.iface, nil
}

func (m *Memory) CmdOper(h ID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := resolveAs[*cmdObj](m, "cmd_oper_get", h)
	if err != nil {
		return "", err
	}
	return c.oper, nil
}

func (m *Memory) MeasNew(qubit uint64, value MeasValue) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("meas_new"); err != nil {
		return 0, err
	}
	if qubit == 0 {
		return 0, boundaryErr("meas_new", "0 is not a valid qubit reference")
	}
	return m.insert(&measObj{arbObj: newArbObj(), qubit: qubit, value: value}), nil
}

func (m *Memory) MeasQubit(h ID) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meas, err := resolveAs[*measObj](m, "meas_qubit_get", h)
	if err != nil {
		return 0, err
	}
	return meas.qubit, nil
}

func (m *Memory) MeasSetQubit(h ID, qubit uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meas, err := resolveAs[*measObj](m, "meas_qubit_set", h)
	if err != nil {
		return err
	}
	if qubit == 0 {
		return boundaryErr("meas_qubit_set", "0 is not a valid qubit reference")
	}
	meas.qubit = qubit
	return nil
}

func (m *Memory) MeasValue(h ID) (MeasValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meas, err := resolveAs[*measObj](m, "meas_value_get", h)
	if err != nil {
		return MeasUndefined, err
	}
	return meas.value, nil
}

func (m *Memory) MeasSetValue(h ID, value MeasValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meas, err := resolveAs[*measObj](m, "meas_value_set", h)
	if err != nil {
		return err
	}
	meas.value = value
	return nil
}

func (m *Memory) QbsetNew() (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("qbset_new"); err != nil {
		return 0, err
	}
	return m.insert(&qbsetObj{}), nil
}

func (m *Memory) QbsetPush(h ID, qubit uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := resolveAs[*qbsetObj](m, "qbset_push", h)
	if err != nil {
		return err
	}
	if qubit == 0 {
		return boundaryErr("qbset_push", "0 is not a valid qubit reference")
	}
	if q.contains(qubit) {
		return boundaryErr("qbset_push", "qubit %d is already a member of the set", qubit)
	}
	q.qubits = append(q.qubits, qubit)
	return nil
}

func (m *Memory) QbsetPop(h ID) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := resolveAs[*qbsetObj](m, "qbset_pop", h)
	if err != nil {
		return 0, err
	}
	if len(q.qubits) == 0 {
		return 0, boundaryErr("qbset_pop", "the qubit set is empty")
	}
	qubit := q.qubits[0]
	q.qubits = q.qubits[1:]
	return qubit, nil
}

func (m *Memory) QbsetLen(h ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := resolveAs[*qbsetObj](m, "qbset_len", h)
	if err != nil {
		return 0, err
	}
	return len(q.qubits), nil
}

func (m *Memory) CqNew() (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("cq_new"); err != nil {
		return 0, err
	}
	return m.insert(&cqObj{}), nil
}

func (m *Memory) CqPush(h ID, cmd ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := resolveAs[*cqObj](m, "cq_push", h)
	if err != nil {
		return err
	}
	c, err := resolveAs[*cmdObj](m, "cq_push", cmd)
	if err != nil {
		return err
	}
	q.cmds = append(q.cmds, c)
	delete(m.objects, cmd)
	return nil
}

func (m *Memory) CqPop(h ID) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := resolveAs[*cqObj](m, "cq_pop", h)
	if err != nil {
		return 0, err
	}
	if len(q.cmds) == 0 {
		return 0, boundaryErr("cq_pop", "the command queue is empty")
	}
	c := q.cmds[0]
	q.cmds = q.cmds[1:]
	return m.insert(c), nil
}

func (m *Memory) CqLen(h ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := resolveAs[*cqObj](m, "cq_len", h)
	if err != nil {
		return 0, err
	}
	return len(q.cmds), nil
}

func (m *Memory) MsetNew() (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("mset_new"); err != nil {
		return 0, err
	}
	return m.insert(&msetObj{meas: make(map[uint64]*measObj)}), nil
}

func (m *Memory) MsetSet(h ID, meas ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := resolveAs[*msetObj](m, "mset_set", h)
	if err != nil {
		return err
	}
	mo, err := resolveAs[*measObj](m, "mset_set", meas)
	if err != nil {
		return err
	}
	s.meas[mo.qubit] = mo
	delete(m.objects, meas)
	return nil
}

func (m *Memory) MsetTakeAny(h ID) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := resolveAs[*msetObj](m, "mset_take_any", h)
	if err != nil {
		return 0, err
	}
	for q, mo := range s.meas {
		delete(s.meas, q)
		return m.insert(mo), nil
	}
	return 0, boundaryErr("mset_take_any", "the measurement set is empty")
}

func (m *Memory) MsetLen(h ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := resolveAs[*msetObj](m, "mset_len", h)
	if err != nil {
		return 0, err
	}
	return len(s.meas), nil
}

// qubitsOf must be called with m.mu held. A zero handle is an empty set.
func (m *Memory) qubitsOf(op string, h ID) ([]uint64, error) {
	if h == 0 {
		return nil, nil
	}
	q, err := resolveAs[*qbsetObj](m, op, h)
	if err != nil {
		return nil, err
	}
	return append([]uint64(nil), q.qubits...), nil
}

func checkGateQubits(op string, targets, controls, measures []uint64, matrix []complex128, custom bool) error {
	seen := make(map[uint64]bool)
	for _, q := range append(append([]uint64(nil), targets...), controls...) {
		if seen[q] {
			return boundaryErr(op, "qubit %d is used more than once", q)
		}
		seen[q] = true
	}
	seen = make(map[uint64]bool)
	for _, q := range measures {
		if seen[q] {
			return boundaryErr(op, "qubit %d is measured more than once", q)
		}
		seen[q] = true
	}
	if matrix == nil {
		if !custom && len(targets) > 0 {
			return boundaryErr(op, "a unitary gate requires a matrix")
		}
		return nil
	}
	if len(targets) == 0 {
		return boundaryErr(op, "cannot specify a matrix when there are no target qubits")
	}
	expected := 1 << (2 * len(targets))
	if len(matrix) != expected {
		return boundaryErr(op, "the matrix is expected to be of size %d but was %d", expected, len(matrix))
	}
	return nil
}

func (m *Memory) GateNewUnitary(targets, controls ID, matrix []complex128) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("gate_new_unitary"); err != nil {
		return 0, err
	}
	t, err := m.qubitsOf("gate_new_unitary", targets)
	if err != nil {
		return 0, err
	}
	c, err := m.qubitsOf("gate_new_unitary", controls)
	if err != nil {
		return 0, err
	}
	if len(t) == 0 {
		return 0, boundaryErr("gate_new_unitary", "at least one target qubit is required")
	}
	if matrix == nil {
		matrix = []complex128{}
	}
	if err := checkGateQubits("gate_new_unitary", t, c, nil, matrix, false); err != nil {
		return 0, err
	}
	return m.insert(&gateObj{
		arbObj:   newArbObj(),
		targets:  t,
		controls: c,
		matrix:   append([]complex128(nil), matrix...),
	}), nil
}

func (m *Memory) GateNewMeasurement(measures ID) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("gate_new_measurement"); err != nil {
		return 0, err
	}
	q, err := m.qubitsOf("gate_new_measurement", measures)
	if err != nil {
		return 0, err
	}
	if err := checkGateQubits("gate_new_measurement", nil, nil, q, nil, false); err != nil {
		return 0, err
	}
	return m.insert(&gateObj{arbObj: newArbObj(), measures: q}), nil
}

func (m *Memory) GateNewCustom(name string, targets, controls, measures ID, matrix []complex128, data ID) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("gate_new_custom"); err != nil {
		return 0, err
	}
	if name == "" {
		return 0, boundaryErr("gate_new_custom", "custom gates require a name")
	}
	t, err := m.qubitsOf("gate_new_custom", targets)
	if err != nil {
		return 0, err
	}
	c, err := m.qubitsOf("gate_new_custom", controls)
	if err != nil {
		return 0, err
	}
	q, err := m.qubitsOf("gate_new_custom", measures)
	if err != nil {
		return 0, err
	}
	if err := checkGateQubits("gate_new_custom", t, c, q, matrix, true); err != nil {
		return 0, err
	}
	g := &gateObj{arbObj: newArbObj(), name: &name, targets: t, controls: c, measures: q}
	if matrix != nil {
		g.matrix = append([]complex128(nil), matrix...)
	}
	if data != 0 {
		a, err := m.resolveArb("gate_new_custom", data)
		if err != nil {
			return 0, err
		}
		g.arbObj = *a.clone()
	}
	return m.insert(g), nil
}

func (m *Memory) GateIsCustom(h ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := resolveAs[*gateObj](m, "gate_is_custom", h)
	if err != nil {
		return false, err
	}
	return g.name != nil, nil
}

func (m *Memory) GateName(h ID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := resolveAs[*gateObj](m, "gate_name", h)
	if err != nil {
		return "", err
	}
	if g.name == nil {
		return "", boundaryErr("gate_name", "gate %d is not a custom gate", h)
	}
	return *g.name, nil
}

func (m *Memory) gateQubits(op string, h ID, pick func(*gateObj) []uint64) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := resolveAs[*gateObj](m, op, h)
	if err != nil {
		return 0, err
	}
	return m.insert(&qbsetObj{qubits: append([]uint64(nil), pick(g)...)}), nil
}

func (m *Memory) GateTargets(h ID) (ID, error) {
	return m.gateQubits("gate_targets", h, func(g *gateObj) []uint64 { return g.targets })
}

func (m *Memory) GateControls(h ID) (ID, error) {
	return m.gateQubits("gate_controls", h, func(g *gateObj) []uint64 { return g.controls })
}

func (m *Memory) GateMeasures(h ID) (ID, error) {
	return m.gateQubits("gate_measures", h, func(g *gateObj) []uint64 { return g.measures })
}

func (m *Memory) GateHasMatrix(h ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := resolveAs[*gateObj](m, "gate_has_matrix", h)
	if err != nil {
		return false, err
	}
	return len(g.matrix) > 0, nil
}

func (m *Memory) GateMatrix(h ID) ([]complex128, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := resolveAs[*gateObj](m, "gate_matrix", h)
	if err != nil {
		return nil, err
	}
	if len(g.matrix) == 0 {
		return nil, boundaryErr("gate_matrix", "gate %d does not have a matrix", h)
	}
	return append([]complex128(nil), g.matrix...), nil
}
