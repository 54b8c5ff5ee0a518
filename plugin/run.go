package plugin

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/log"
	"github.com/oqtopus-team/cosim-plugin/native"
	"go.uber.org/zap"
)

// prepare registers def with the engine and returns the definition handle.
// A Definition can be prepared once.
func prepare(eng native.Engine, def *Definition, simulator string) (native.ID, error) {
	if err := def.Err(); err != nil {
		return 0, errors.Wrapf(err, "invalid definition of plugin %s", def.name)
	}
	if !def.started.CompareAndSwap(false, true) {
		return 0, ErrAlreadyStarted
	}
	inst, err := newInstance(eng, def)
	if err != nil {
		return 0, err
	}
	id, err := eng.PdefNew(def.typ, def.name, def.author, def.version)
	if err != nil {
		return 0, err
	}
	h := handle.New(eng, id)
	defer h.Release()
	if err := inst.install(id); err != nil {
		return 0, err
	}
	log.LogStartup(inst.info, simulator)
	return h.Take()
}

// Run attaches def to the simulator and blocks until the plugin is dropped.
func Run(eng native.Engine, def *Definition, simulator string) error {
	pdef, err := prepare(eng, def, simulator)
	if err != nil {
		return err
	}
	err = eng.PluginRun(pdef, simulator)
	zap.L().Info(fmt.Sprintf("plugin finished/name:%s/simulator:%s", def.name, simulator))
	return err
}

// JoinHandle waits for a plugin started with Start.
type JoinHandle struct {
	eng native.Engine
	h   *handle.Handle
}

// Start attaches def to the simulator and returns without waiting.
func Start(eng native.Engine, def *Definition, simulator string) (*JoinHandle, error) {
	pdef, err := prepare(eng, def, simulator)
	if err != nil {
		return nil, err
	}
	join, err := eng.PluginStart(pdef, simulator)
	if err != nil {
		return nil, err
	}
	return &JoinHandle{eng: eng, h: handle.New(eng, join)}, nil
}

// Wait blocks until the plugin is dropped. It can be called once.
func (j *JoinHandle) Wait() error {
	id, err := j.h.Take()
	if err != nil {
		return err
	}
	return j.eng.PluginWait(id)
}
