package native

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type pdefObj struct {
	typ     PluginType
	name    string
	author  string
	version string

	initialize        InitializeCallback
	drop              DropCallback
	run               RunCallback
	allocate          AllocateCallback
	free              FreeCallback
	gate              GateCallback
	modifyMeasurement ModifyMeasurementCallback
	advance           AdvanceCallback
	upstreamArb       ArbCallback
	hostArb           ArbCallback
}

func (p *pdefObj) handleType() HandleType { return HandleTypePluginDefinition }

func (p *pdefObj) dump() map[string]interface{} {
	return map[string]interface{}{
		"type":    HandleTypePluginDefinition.String(),
		"role":    p.typ.String(),
		"name":    p.name,
		"author":  p.author,
		"version": p.version,
	}
}

type joinObj struct {
	done chan struct{}
	err  error
}

func (j *joinObj) handleType() HandleType { return HandleTypePluginJoin }

func (j *joinObj) dump() map[string]interface{} {
	return map[string]interface{}{"type": HandleTypePluginJoin.String()}
}

func (m *Memory) PdefNew(typ PluginType, name, author, version string) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("pdef_new"); err != nil {
		return 0, err
	}
	switch typ {
	case PluginTypeFrontend, PluginTypeOperator, PluginTypeBackend:
	default:
		return 0, boundaryErr("pdef_new", "invalid plugin type %d", typ)
	}
	return m.insert(&pdefObj{typ: typ, name: name, author: author, version: version}), nil
}

func (m *Memory) PdefType(h ID) (PluginType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := resolveAs[*pdefObj](m, "pdef_type", h)
	if err != nil {
		return 0, err
	}
	return p.typ, nil
}

func (m *Memory) setPdef(op string, h ID, allowed []PluginType, set func(*pdefObj)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := resolveAs[*pdefObj](m, op, h)
	if err != nil {
		return err
	}
	for _, t := range allowed {
		if t == p.typ {
			set(p)
			return nil
		}
	}
	return boundaryErr(op, "this callback is not supported for %s plugins", p.typ)
}

var (
	allRoles         = []PluginType{PluginTypeFrontend, PluginTypeOperator, PluginTypeBackend}
	frontendOnly     = []PluginType{PluginTypeFrontend}
	operatorOnly     = []PluginType{PluginTypeOperator}
	downstreamPlugin = []PluginType{PluginTypeOperator, PluginTypeBackend}
)

func (m *Memory) PdefSetInitializeCallback(h ID, cb InitializeCallback) error {
	return m.setPdef("pdef_set_initialize_cb", h, allRoles, func(p *pdefObj) { p.initialize = cb })
}

func (m *Memory) PdefSetDropCallback(h ID, cb DropCallback) error {
	return m.setPdef("pdef_set_drop_cb", h, allRoles, func(p *pdefObj) { p.drop = cb })
}

func (m *Memory) PdefSetRunCallback(h ID, cb RunCallback) error {
	return m.setPdef("pdef_set_run_cb", h, frontendOnly, func(p *pdefObj) { p.run = cb })
}

func (m *Memory) PdefSetAllocateCallback(h ID, cb AllocateCallback) error {
	return m.setPdef("pdef_set_allocate_cb", h, downstreamPlugin, func(p *pdefObj) { p.allocate = cb })
}

func (m *Memory) PdefSetFreeCallback(h ID, cb FreeCallback) error {
	return m.setPdef("pdef_set_free_cb", h, downstreamPlugin, func(p *pdefObj) { p.free = cb })
}

func (m *Memory) PdefSetGateCallback(h ID, cb GateCallback) error {
	return m.setPdef("pdef_set_gate_cb", h, downstreamPlugin, func(p *pdefObj) { p.gate = cb })
}

func (m *Memory) PdefSetModifyMeasurementCallback(h ID, cb ModifyMeasurementCallback) error {
	return m.setPdef("pdef_set_modify_measurement_cb", h, operatorOnly, func(p *pdefObj) { p.modifyMeasurement = cb })
}

func (m *Memory) PdefSetAdvanceCallback(h ID, cb AdvanceCallback) error {
	return m.setPdef("pdef_set_advance_cb", h, downstreamPlugin, func(p *pdefObj) { p.advance = cb })
}

func (m *Memory) PdefSetUpstreamArbCallback(h ID, cb ArbCallback) error {
	return m.setPdef("pdef_set_upstream_arb_cb", h, downstreamPlugin, func(p *pdefObj) { p.upstreamArb = cb })
}

func (m *Memory) PdefSetHostArbCallback(h ID, cb ArbCallback) error {
	return m.setPdef("pdef_set_host_arb_cb", h, allRoles, func(p *pdefObj) { p.hostArb = cb })
}

// slot is one position of a simulated pipeline. Everything but pdef is only
// touched from callbacks, which run on the goroutine driving the Simulation.
type slot struct {
	sim      *Simulation
	index    int
	address  string
	typ      PluginType
	initCmds ID

	pdef     *pdefObj
	attached chan struct{}
	done     chan struct{}
	dropErr  error

	rng          *rand.Rand
	nextQubit    uint64
	allocated    map[uint64]bool
	cycle        uint64
	measurements map[uint64]*measObj
	measCycle    map[uint64]uint64
	received     []*measObj
}

func (s *slot) downstream() *slot {
	if s.index+1 >= len(s.sim.slots) {
		return nil
	}
	return s.sim.slots[s.index+1]
}

type callState struct {
	slot *slot
}

// Slot describes one plugin position of a Simulation. InitCmds is an
// ArbCmdQueue handle consumed by Simulation.Init; zero means no commands.
type Slot struct {
	Address  string
	InitCmds ID
}

// Simulation drives a pipeline of plugins attached to a Memory engine from
// the host side. The first slot is the frontend, the last the backend and
// every slot in between an operator.
type Simulation struct {
	m        *Memory
	slots    []*slot
	toHost   *messageQueue
	fromHost *messageQueue

	mu          sync.Mutex
	initialized bool
	stopped     bool
}

// NewSimulation reserves the slot addresses. Plugins attach to them through
// PluginRun or PluginStart.
func (m *Memory) NewSimulation(slots ...Slot) (*Simulation, error) {
	if len(slots) < 2 {
		return nil, boundaryErr("simulation_new", "a simulation needs at least a frontend and a backend")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("simulation_new"); err != nil {
		return nil, err
	}
	sim := &Simulation{
		m:        m,
		toHost:   newMessageQueue("host-inbound"),
		fromHost: newMessageQueue("frontend-inbound"),
	}
	seen := make(map[string]bool)
	for i, sl := range slots {
		if sl.Address == "" {
			return nil, boundaryErr("simulation_new", "slot %d has no address", i)
		}
		if seen[sl.Address] || m.slots[sl.Address] != nil {
			return nil, boundaryErr("simulation_new", "address %s is already in use", sl.Address)
		}
		seen[sl.Address] = true
		typ := PluginTypeOperator
		switch i {
		case 0:
			typ = PluginTypeFrontend
		case len(slots) - 1:
			typ = PluginTypeBackend
		}
		var seed [32]byte
		binary.LittleEndian.PutUint64(seed[0:], m.seed)
		binary.LittleEndian.PutUint64(seed[8:], uint64(i))
		sim.slots = append(sim.slots, &slot{
			sim:          sim,
			index:        i,
			address:      sl.Address,
			typ:          typ,
			initCmds:     sl.InitCmds,
			attached:     make(chan struct{}),
			done:         make(chan struct{}),
			rng:          rand.New(rand.NewChaCha8(seed)),
			allocated:    make(map[uint64]bool),
			measurements: make(map[uint64]*measObj),
			measCycle:    make(map[uint64]uint64),
		})
	}
	for _, s := range sim.slots {
		m.slots[s.address] = s
	}
	return sim, nil
}

func (m *Memory) PluginRun(pdef ID, simulator string) error {
	s, err := m.attach(pdef, simulator)
	if err != nil {
		return err
	}
	<-s.done
	return s.dropErr
}

func (m *Memory) attach(pdef ID, simulator string) (*slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := resolveAs[*pdefObj](m, "plugin_run", pdef)
	if err != nil {
		return nil, err
	}
	delete(m.objects, pdef)
	s, ok := m.slots[simulator]
	if !ok {
		return nil, boundaryErr("plugin_run", "no simulation is listening at %s", simulator)
	}
	if s.pdef != nil {
		return nil, boundaryErr("plugin_run", "a plugin is already attached to %s", simulator)
	}
	if p.typ != s.typ {
		return nil, boundaryErr("plugin_run", "expected a %s plugin at %s but got a %s", s.typ, simulator, p.typ)
	}
	s.pdef = p
	close(s.attached)
	zap.L().Info(fmt.Sprintf("plugin attached/address:%s/role:%s/name:%s/author:%s/version:%s",
		simulator, p.typ, p.name, p.author, p.version))
	return s, nil
}

func (m *Memory) PluginStart(pdef ID, simulator string) (ID, error) {
	s, err := m.attach(pdef, simulator)
	if err != nil {
		return 0, err
	}
	j := &joinObj{done: make(chan struct{})}
	go func() {
		defer close(j.done)
		<-s.done
		j.err = s.dropErr
	}()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(j), nil
}

func (m *Memory) PluginWait(join ID) error {
	m.mu.Lock()
	j, err := resolveAs[*joinObj](m, "plugin_wait", join)
	if err == nil {
		delete(m.objects, join)
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	<-j.done
	return j.err
}

func (m *Memory) enter(s *slot) StateID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextState++
	m.states[m.nextState] = &callState{slot: s}
	return m.nextState
}

func (m *Memory) leave(state StateID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, state)
}

func (m *Memory) stateSlot(op string, state StateID) (*slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(op); err != nil {
		return nil, err
	}
	st, ok := m.states[state]
	if !ok {
		return nil, boundaryErr(op, "state %d does not belong to a running callback", state)
	}
	return st.slot, nil
}

func (m *Memory) downstreamOf(op string, state StateID) (*slot, *slot, error) {
	s, err := m.stateSlot(op, state)
	if err != nil {
		return nil, nil, err
	}
	d := s.downstream()
	if d == nil {
		return nil, nil, boundaryErr(op, "%s plugins have no downstream plugin", s.typ)
	}
	return s, d, nil
}

func cloneObject(o object) object {
	switch v := o.(type) {
	case *arbObj:
		return v.clone()
	case *cmdObj:
		return v.clone()
	case *measObj:
		return v.clone()
	case *gateObj:
		return v.clone()
	case *qbsetObj:
		return &qbsetObj{qubits: append([]uint64(nil), v.qubits...)}
	case *cqObj:
		c := &cqObj{}
		for _, cmd := range v.cmds {
			c.cmds = append(c.cmds, cmd.clone())
		}
		return c
	default:
		return o
	}
}

// lend creates a copy of h for a callee. The original is consumed through
// consume once the operation succeeded.
func lend[T object](m *Memory, op string, h ID) (ID, T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	o, err := resolveAs[T](m, op, h)
	if err != nil {
		return 0, zero, err
	}
	c := cloneObject(o).(T)
	return m.insert(c), c, nil
}

func (m *Memory) consume(h ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, h)
}

func (m *Memory) drop(h ID) {
	if h != 0 {
		m.consume(h)
	}
}

// takeResult moves a handle returned by a callback out of the table.
func (m *Memory) takeResult(op string, h ID) (object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.resolve(op, h)
	if err != nil {
		return nil, err
	}
	delete(m.objects, h)
	return o, nil
}

func (m *Memory) give(o object) ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(o)
}

func calleeErr(op string, s *slot, err error) error {
	return boundaryErr(op, "%s plugin at %s failed: %s", s.typ, s.address, err)
}

func (m *Memory) newCmdQueue(op string, h ID) (ID, error) {
	if h != 0 {
		id, _, err := lend[*cqObj](m, op, h)
		return id, err
	}
	return m.give(&cqObj{}), nil
}

// Init waits until every slot has a plugin attached or ctx is done, then
// initializes the plugins back to front.
func (s *Simulation) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return boundaryErr("simulation_init", "the simulation has already been initialized")
	}
	for _, sl := range s.slots {
		select {
		case <-sl.attached:
		case <-ctx.Done():
			return boundaryErr("simulation_init", "waiting for a plugin at %s: %s", sl.address, ctx.Err())
		}
	}
	for i := len(s.slots) - 1; i >= 0; i-- {
		sl := s.slots[i]
		cmds, err := s.m.newCmdQueue("simulation_init", sl.initCmds)
		if err != nil {
			return err
		}
		if sl.pdef.initialize == nil {
			s.m.drop(cmds)
		} else {
			state := s.m.enter(sl)
			err = sl.pdef.initialize(state, cmds)
			s.m.leave(state)
			if err != nil {
				return calleeErr("simulation_init", sl, err)
			}
		}
		s.m.drop(sl.initCmds)
		sl.initCmds = 0
	}
	s.initialized = true
	zap.L().Debug(fmt.Sprintf("simulation initialized/plugins:%d", len(s.slots)))
	return nil
}

func (s *Simulation) ready(op string) error {
	if !s.initialized {
		return boundaryErr(op, "the simulation has not been initialized")
	}
	if s.stopped {
		return boundaryErr(op, "the simulation has been stopped")
	}
	return nil
}

// Run calls the run callback of the frontend. args is consumed on success;
// the returned ArbData handle is owned by the caller.
func (s *Simulation) Run(args ID) (ID, error) {
	if err := s.ready("simulation_run"); err != nil {
		return 0, err
	}
	fe := s.slots[0]
	if fe.pdef.run == nil {
		return 0, boundaryErr("simulation_run", "the frontend does not implement run")
	}
	lent, _, err := lend[*arbObj](s.m, "simulation_run", args)
	if err != nil {
		return 0, err
	}
	state := s.m.enter(fe)
	res, err := fe.pdef.run(state, lent)
	s.m.leave(state)
	if err != nil {
		return 0, calleeErr("simulation_run", fe, err)
	}
	s.m.consume(args)
	return s.arbResult("simulation_run", res)
}

func (s *Simulation) arbResult(op string, res ID) (ID, error) {
	if res == 0 {
		a := newArbObj()
		return s.m.give(&a), nil
	}
	o, err := s.m.takeResult(op, res)
	if err != nil {
		return 0, err
	}
	c, ok := o.(arbCarrier)
	if !ok {
		return 0, boundaryErr(op, "callback returned a %s instead of ArbData", o.handleType())
	}
	return s.m.give(c.arb().clone()), nil
}

// Arb sends an ArbCmd from the host to the plugin at index. cmd is consumed
// on success.
func (s *Simulation) Arb(index int, cmd ID) (ID, error) {
	if err := s.ready("simulation_arb"); err != nil {
		return 0, err
	}
	if index < 0 || index >= len(s.slots) {
		return 0, boundaryErr("simulation_arb", "plugin index %d out of range", index)
	}
	sl := s.slots[index]
	if sl.pdef.hostArb == nil {
		if _, err := s.m.CmdIface(cmd); err != nil {
			return 0, err
		}
		s.m.consume(cmd)
		return s.arbResult("simulation_arb", 0)
	}
	lent, _, err := lend[*cmdObj](s.m, "simulation_arb", cmd)
	if err != nil {
		return 0, err
	}
	state := s.m.enter(sl)
	res, err := sl.pdef.hostArb(state, lent)
	s.m.leave(state)
	if err != nil {
		return 0, calleeErr("simulation_arb", sl, err)
	}
	s.m.consume(cmd)
	return s.arbResult("simulation_arb", res)
}

// Send queues ArbData for the frontend's Recv. arb is consumed on success.
func (s *Simulation) Send(arb ID) error {
	if err := s.ready("simulation_send"); err != nil {
		return err
	}
	s.m.mu.Lock()
	a, err := s.m.resolveArb("simulation_send", arb)
	s.m.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.fromHost.push(a); err != nil {
		return boundaryErr("simulation_send", "%s", err)
	}
	s.m.consume(arb)
	return nil
}

// Recv returns the oldest ArbData the frontend sent to the host.
func (s *Simulation) Recv() (ID, error) {
	if err := s.ready("simulation_recv"); err != nil {
		return 0, err
	}
	a, ok := s.toHost.pop()
	if !ok {
		return 0, boundaryErr("simulation_recv", "the frontend has not sent any data")
	}
	return s.m.give(a), nil
}

// Stop drops the plugins front to back and releases their PluginRun calls.
func (s *Simulation) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	var errs error
	for _, sl := range s.slots {
		select {
		case <-sl.attached:
		default:
			close(sl.done)
			continue
		}
		if s.initialized && sl.pdef.drop != nil {
			state := s.m.enter(sl)
			sl.dropErr = sl.pdef.drop(state)
			s.m.leave(state)
			if sl.dropErr != nil {
				errs = multierr.Append(errs, calleeErr("simulation_stop", sl, sl.dropErr))
			}
		}
		close(sl.done)
	}
	s.m.mu.Lock()
	for _, sl := range s.slots {
		delete(s.m.slots, sl.address)
	}
	s.m.mu.Unlock()
	return errs
}

// collect hands the measurements produced by a downstream call to the
// caller. Measurements the callee received from its own downstream pass
// through its modify-measurement callback first.
func (m *Memory) collect(op string, caller, callee *slot, returned []*measObj) error {
	results := returned
	pending := callee.received
	callee.received = nil
	for _, meas := range pending {
		if callee.pdef.modifyMeasurement == nil {
			results = append(results, meas)
			continue
		}
		h := m.give(meas)
		state := m.enter(callee)
		res, err := callee.pdef.modifyMeasurement(state, h)
		m.leave(state)
		if err != nil {
			return calleeErr(op, callee, err)
		}
		ms, err := m.measurementsOf(op, res)
		if err != nil {
			return err
		}
		results = append(results, ms...)
	}
	for _, meas := range results {
		caller.measurements[meas.qubit] = meas
		caller.measCycle[meas.qubit] = caller.cycle
		if caller.typ == PluginTypeOperator {
			caller.received = append(caller.received, meas.clone())
		}
	}
	return nil
}

func (m *Memory) measurementsOf(op string, res ID) ([]*measObj, error) {
	if res == 0 {
		return nil, nil
	}
	o, err := m.takeResult(op, res)
	if err != nil {
		return nil, err
	}
	switch v := o.(type) {
	case *msetObj:
		qubits := make([]uint64, 0, len(v.meas))
		for q := range v.meas {
			qubits = append(qubits, q)
		}
		sort.Slice(qubits, func(i, j int) bool { return qubits[i] < qubits[j] })
		ms := make([]*measObj, 0, len(qubits))
		for _, q := range qubits {
			ms = append(ms, v.meas[q])
		}
		return ms, nil
	case *measObj:
		return []*measObj{v}, nil
	default:
		return nil, boundaryErr(op, "callback returned a %s instead of measurements", o.handleType())
	}
}

// checkAllocated verifies that the qubits were allocated by s on the link
// to its downstream plugin.
func (m *Memory) checkAllocated(op string, s *slot, qubits ...[]uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, qs := range qubits {
		for _, q := range qs {
			if !s.allocated[q] {
				return boundaryErr(op, "qubit %d is not allocated", q)
			}
		}
	}
	return nil
}

func (m *Memory) PluginAllocate(state StateID, num int, cmds ID) (ID, error) {
	const op = "plugin_allocate"
	s, d, err := m.downstreamOf(op, state)
	if err != nil {
		return 0, err
	}
	if num < 0 {
		return 0, boundaryErr(op, "cannot allocate %d qubits", num)
	}
	lentCmds, err := m.newCmdQueue(op, cmds)
	if err != nil {
		return 0, err
	}
	qubits := make([]uint64, 0, num)
	m.mu.Lock()
	for i := 0; i < num; i++ {
		s.nextQubit++
		s.allocated[s.nextQubit] = true
		qubits = append(qubits, s.nextQubit)
	}
	m.mu.Unlock()
	lentQubits := m.give(&qbsetObj{qubits: append([]uint64(nil), qubits...)})
	if d.pdef.allocate == nil {
		m.drop(lentQubits)
		m.drop(lentCmds)
	} else {
		callee := m.enter(d)
		err = d.pdef.allocate(callee, lentQubits, lentCmds)
		m.leave(callee)
		if err != nil {
			m.release(s, qubits)
			return 0, calleeErr(op, d, err)
		}
	}
	m.drop(cmds)
	zap.L().Debug(fmt.Sprintf("allocated qubits/by:%s/qubits:%v", s.address, qubits))
	return m.give(&qbsetObj{qubits: qubits}), nil
}

func (m *Memory) release(s *slot, qubits []uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range qubits {
		delete(s.allocated, q)
	}
}

func (m *Memory) PluginFree(state StateID, qubits ID) error {
	const op = "plugin_free"
	s, d, err := m.downstreamOf(op, state)
	if err != nil {
		return err
	}
	lent, q, err := lend[*qbsetObj](m, op, qubits)
	if err != nil {
		return err
	}
	if err := m.checkAllocated(op, s, q.qubits); err != nil {
		m.drop(lent)
		return err
	}
	if d.pdef.free == nil {
		m.drop(lent)
	} else {
		callee := m.enter(d)
		err = d.pdef.free(callee, lent)
		m.leave(callee)
		if err != nil {
			return calleeErr(op, d, err)
		}
	}
	m.release(s, q.qubits)
	for _, qubit := range q.qubits {
		delete(s.measurements, qubit)
		delete(s.measCycle, qubit)
	}
	m.consume(qubits)
	return nil
}

func (m *Memory) PluginGate(state StateID, gate ID) error {
	const op = "plugin_gate"
	s, d, err := m.downstreamOf(op, state)
	if err != nil {
		return err
	}
	lent, g, err := lend[*gateObj](m, op, gate)
	if err != nil {
		return err
	}
	if err := m.checkAllocated(op, s, g.targets, g.controls, g.measures); err != nil {
		m.drop(lent)
		return err
	}
	var returned []*measObj
	if d.pdef.gate == nil {
		m.drop(lent)
	} else {
		callee := m.enter(d)
		res, err := d.pdef.gate(callee, lent)
		m.leave(callee)
		if err != nil {
			return calleeErr(op, d, err)
		}
		if returned, err = m.measurementsOf(op, res); err != nil {
			return err
		}
	}
	if err := m.collect(op, s, d, returned); err != nil {
		return err
	}
	m.consume(gate)
	return nil
}

func (m *Memory) PluginGetMeasurement(state StateID, qubit uint64) (ID, error) {
	const op = "plugin_get_measurement"
	s, err := m.stateSlot(op, state)
	if err != nil {
		return 0, err
	}
	meas, ok := s.measurements[qubit]
	if !ok {
		return 0, boundaryErr(op, "qubit %d has not been measured", qubit)
	}
	return m.give(meas.clone()), nil
}

func (m *Memory) PluginGetCyclesSinceMeasure(state StateID, qubit uint64) (uint64, error) {
	const op = "plugin_get_cycles_since_measure"
	s, err := m.stateSlot(op, state)
	if err != nil {
		return 0, err
	}
	at, ok := s.measCycle[qubit]
	if !ok {
		return 0, boundaryErr(op, "qubit %d has not been measured", qubit)
	}
	return s.cycle - at, nil
}

func (m *Memory) PluginGetCycle(state StateID) (uint64, error) {
	s, err := m.stateSlot("plugin_get_cycle", state)
	if err != nil {
		return 0, err
	}
	return s.cycle, nil
}

// PluginAdvance moves the caller's clock. A slot's clock counts the cycles
// it advanced on its downstream link; the backend has none and follows the
// advances it receives.
func (m *Memory) PluginAdvance(state StateID, cycles uint64) (uint64, error) {
	const op = "plugin_advance"
	s, d, err := m.downstreamOf(op, state)
	if err != nil {
		return 0, err
	}
	s.cycle += cycles
	if d.downstream() == nil {
		d.cycle += cycles
	}
	if d.pdef.advance != nil {
		callee := m.enter(d)
		err = d.pdef.advance(callee, cycles)
		m.leave(callee)
		if err != nil {
			return 0, calleeErr(op, d, err)
		}
	}
	if err := m.collect(op, s, d, nil); err != nil {
		return 0, err
	}
	return s.cycle, nil
}

func (m *Memory) PluginArb(state StateID, cmd ID) (ID, error) {
	const op = "plugin_arb"
	s, d, err := m.downstreamOf(op, state)
	if err != nil {
		return 0, err
	}
	lent, _, err := lend[*cmdObj](m, op, cmd)
	if err != nil {
		return 0, err
	}
	var res ID
	if d.pdef.upstreamArb == nil {
		m.drop(lent)
	} else {
		callee := m.enter(d)
		res, err = d.pdef.upstreamArb(callee, lent)
		m.leave(callee)
		if err != nil {
			return 0, calleeErr(op, d, err)
		}
	}
	if err := m.collect(op, s, d, nil); err != nil {
		return 0, err
	}
	m.consume(cmd)
	return s.sim.arbResult(op, res)
}

func (m *Memory) frontendOf(op string, state StateID) (*slot, error) {
	s, err := m.stateSlot(op, state)
	if err != nil {
		return nil, err
	}
	if s.typ != PluginTypeFrontend {
		return nil, boundaryErr(op, "only frontends can exchange data with the host")
	}
	return s, nil
}

func (m *Memory) PluginSend(state StateID, arb ID) error {
	const op = "plugin_send"
	s, err := m.frontendOf(op, state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	a, err := m.resolveArb(op, arb)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.sim.toHost.push(a); err != nil {
		return boundaryErr(op, "%s", err)
	}
	m.consume(arb)
	return nil
}

func (m *Memory) PluginRecv(state StateID) (ID, error) {
	const op = "plugin_recv"
	s, err := m.frontendOf(op, state)
	if err != nil {
		return 0, err
	}
	a, ok := s.sim.fromHost.pop()
	if !ok {
		return 0, boundaryErr(op, "the host has not sent any data")
	}
	return m.give(a), nil
}

func (m *Memory) PluginRandomF64(state StateID) (float64, error) {
	s, err := m.stateSlot("plugin_random_f64", state)
	if err != nil {
		return 0, err
	}
	return s.rng.Float64(), nil
}

func (m *Memory) PluginRandomU64(state StateID) (uint64, error) {
	s, err := m.stateSlot("plugin_random_u64", state)
	if err != nil {
		return 0, err
	}
	return s.rng.Uint64(), nil
}
