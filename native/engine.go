package native

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ID is the raw integer reference of a resource owned by the engine.
// Zero never refers to a resource.
type ID uint64

// HandleType identifies the kind of resource behind an ID.
type HandleType int

const (
	HandleTypeInvalid HandleType = iota
	HandleTypeArbData
	HandleTypeArbCmd
	HandleTypeArbCmdQueue
	HandleTypeQubitSet
	HandleTypeGate
	HandleTypeMeasurement
	HandleTypeMeasurementSet
	HandleTypePluginDefinition
	HandleTypePluginJoin
)

func (t HandleType) String() string {
	switch t {
	case HandleTypeArbData:
		return "ArbData"
	case HandleTypeArbCmd:
		return "ArbCmd"
	case HandleTypeArbCmdQueue:
		return "ArbCmdQueue"
	case HandleTypeQubitSet:
		return "QubitSet"
	case HandleTypeGate:
		return "Gate"
	case HandleTypeMeasurement:
		return "Measurement"
	case HandleTypeMeasurementSet:
		return "MeasurementSet"
	case HandleTypePluginDefinition:
		return "PluginDefinition"
	case HandleTypePluginJoin:
		return "PluginJoinHandle"
	default:
		return "Invalid"
	}
}

// MeasValue is the tri-state measurement outcome as the engine stores it.
type MeasValue int

const (
	MeasUndefined MeasValue = iota
	MeasZero
	MeasOne
)

// PluginType is the role of a plugin in the pipeline.
type PluginType int

const (
	PluginTypeFrontend PluginType = iota
	PluginTypeOperator
	PluginTypeBackend
)

func (p PluginType) String() string {
	switch p {
	case PluginTypeFrontend:
		return "frontend"
	case PluginTypeOperator:
		return "operator"
	case PluginTypeBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// StateID identifies the in-flight callback a plugin operation belongs to.
// It is only valid while the callback that received it is running.
type StateID uint64

// ErrBoundary is matched by every error the engine reports for a failed call.
var ErrBoundary = errors.New("boundary failure")

// Error is a failure reported by the engine for one primitive.
type Error struct {
	Op  string
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Is(target error) bool {
	return target == ErrBoundary
}

func boundaryErr(op, format string, args ...interface{}) error {
	return &Error{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Callback signatures installed on a plugin definition. Handles passed in
// are owned by the callee; handles returned are owned by the engine.
type (
	InitializeCallback        func(state StateID, initCmds ID) error
	DropCallback              func(state StateID) error
	RunCallback               func(state StateID, args ID) (ID, error)
	AllocateCallback          func(state StateID, qubits ID, allocCmds ID) error
	FreeCallback              func(state StateID, qubits ID) error
	GateCallback              func(state StateID, gate ID) (ID, error)
	ModifyMeasurementCallback func(state StateID, meas ID) (ID, error)
	AdvanceCallback           func(state StateID, cycles uint64) error
	ArbCallback               func(state StateID, cmd ID) (ID, error)
)

// Engine is the set of boundary primitives consumed from the native
// simulation engine.
type Engine interface {
	HandleDelete(h ID) error
	HandleType(h ID) (HandleType, error)
	HandleDump(h ID) (string, error)

	// ArbData accessors. They also work on every handle that carries ArbData
	// (ArbCmd, Measurement, Gate). The get functions copy into buf and return
	// the full size, which may exceed len(buf).
	ArbNew() (ID, error)
	ArbCBORGet(h ID, buf []byte) (int, error)
	ArbCBORSet(h ID, data []byte) error
	ArbLen(h ID) (int, error)
	ArbGetRaw(h ID, index int, buf []byte) (int, error)
	ArbPushRaw(h ID, data []byte) error
	ArbClear(h ID) error

	CmdNew(iface, oper string) (ID, error)
	CmdIface(h ID) (string, error)
	CmdOper(h ID) (string, error)

	MeasNew(qubit uint64, value MeasValue) (ID, error)
	MeasQubit(h ID) (uint64, error)
	MeasSetQubit(h ID, qubit uint64) error
	MeasValue(h ID) (MeasValue, error)
	MeasSetValue(h ID, value MeasValue) error

	// Collections. Push and set consume the element handle on success only.
	QbsetNew() (ID, error)
	QbsetPush(h ID, qubit uint64) error
	QbsetPop(h ID) (uint64, error)
	QbsetLen(h ID) (int, error)

	CqNew() (ID, error)
	CqPush(h ID, cmd ID) error
	CqPop(h ID) (ID, error)
	CqLen(h ID) (int, error)

	MsetNew() (ID, error)
	MsetSet(h ID, meas ID) error
	MsetTakeAny(h ID) (ID, error)
	MsetLen(h ID) (int, error)

	// Gate constructors borrow the qubit set handles; the ArbData of a
	// custom gate is copied from data when data is non-zero.
	GateNewUnitary(targets, controls ID, matrix []complex128) (ID, error)
	GateNewMeasurement(measures ID) (ID, error)
	GateNewCustom(name string, targets, controls, measures ID, matrix []complex128, data ID) (ID, error)
	GateIsCustom(h ID) (bool, error)
	GateName(h ID) (string, error)
	GateTargets(h ID) (ID, error)
	GateControls(h ID) (ID, error)
	GateMeasures(h ID) (ID, error)
	GateHasMatrix(h ID) (bool, error)
	GateMatrix(h ID) ([]complex128, error)

	PdefNew(typ PluginType, name, author, version string) (ID, error)
	PdefType(h ID) (PluginType, error)
	PdefSetInitializeCallback(h ID, cb InitializeCallback) error
	PdefSetDropCallback(h ID, cb DropCallback) error
	PdefSetRunCallback(h ID, cb RunCallback) error
	PdefSetAllocateCallback(h ID, cb AllocateCallback) error
	PdefSetFreeCallback(h ID, cb FreeCallback) error
	PdefSetGateCallback(h ID, cb GateCallback) error
	PdefSetModifyMeasurementCallback(h ID, cb ModifyMeasurementCallback) error
	PdefSetAdvanceCallback(h ID, cb AdvanceCallback) error
	PdefSetUpstreamArbCallback(h ID, cb ArbCallback) error
	PdefSetHostArbCallback(h ID, cb ArbCallback) error

	// PluginRun consumes the definition, even when it fails to attach, and
	// blocks until the plugin is dropped. PluginStart does the same in the background and returns a
	// join handle for PluginWait, which consumes it.
	PluginRun(pdef ID, simulator string) error
	PluginStart(pdef ID, simulator string) (ID, error)
	PluginWait(join ID) error

	// Operations available to a plugin from within a callback. Handle
	// arguments are consumed on success.
	PluginAllocate(state StateID, num int, cmds ID) (ID, error)
	PluginFree(state StateID, qubits ID) error
	PluginGate(state StateID, gate ID) error
	PluginGetMeasurement(state StateID, qubit uint64) (ID, error)
	PluginGetCyclesSinceMeasure(state StateID, qubit uint64) (uint64, error)
	PluginGetCycle(state StateID) (uint64, error)
	PluginAdvance(state StateID, cycles uint64) (uint64, error)
	PluginArb(state StateID, cmd ID) (ID, error)
	PluginSend(state StateID, arb ID) error
	PluginRecv(state StateID) (ID, error)
	PluginRandomF64(state StateID) (float64, error)
	PluginRandomU64(state StateID) (uint64, error)
}
