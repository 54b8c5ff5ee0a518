package plugin

import (
	"context"
	"fmt"

	"github.com/oqtopus-team/cosim-plugin/common"
	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/native"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Stage is one plugin of a Pipeline together with its init commands.
type Stage struct {
	Def      *Definition
	InitCmds []*core.ArbCmd
}

// Pipeline runs a frontend, any number of operators and a backend on an
// in-process Memory engine and exposes the host side of the simulation.
type Pipeline struct {
	m     *native.Memory
	sim   *native.Simulation
	names []string
	joins []*JoinHandle
}

// NewPipeline starts every stage. The first stage must be a frontend and the
// last a backend. On error the stages started so far are stopped.
func NewPipeline(m *native.Memory, stages ...Stage) (p *Pipeline, err error) {
	slots := make([]native.Slot, len(stages))
	defer func() {
		if err == nil {
			return
		}
		for _, sl := range slots {
			if sl.InitCmds != 0 {
				_ = m.HandleDelete(sl.InitCmds)
			}
		}
	}()
	for i, st := range stages {
		slots[i] = native.Slot{Address: common.NewSimulatorAddress()}
		if len(st.InitCmds) == 0 {
			continue
		}
		q, err := core.ArbCmdQueueFromSlice(st.InitCmds)
		if err != nil {
			return nil, err
		}
		h, err := q.ToRaw(m)
		if err != nil {
			return nil, err
		}
		if slots[i].InitCmds, err = h.Take(); err != nil {
			return nil, err
		}
	}
	sim, err := m.NewSimulation(slots...)
	if err != nil {
		return nil, err
	}
	p = &Pipeline{m: m, sim: sim}
	for i, st := range stages {
		j, err := Start(m, st.Def, slots[i].Address)
		if err != nil {
			return nil, multierr.Append(err, p.Stop())
		}
		p.names = append(p.names, st.Def.Name())
		p.joins = append(p.joins, j)
	}
	zap.L().Info(fmt.Sprintf("pipeline started/plugins:%v", p.names))
	return p, nil
}

func (p *Pipeline) Engine() *native.Memory {
	return p.m
}

// Init initializes every plugin, back to front. It fails when a plugin does
// not attach before ctx is done.
func (p *Pipeline) Init(ctx context.Context) error {
	return p.sim.Init(ctx)
}

// Run calls the frontend's run handler with args.
func (p *Pipeline) Run(args *core.ArbData) (*core.ArbData, error) {
	if args == nil {
		args = core.NewArbData()
	}
	ah, err := args.Encode(p.m, nil)
	if err != nil {
		return nil, err
	}
	var res native.ID
	if err := consumeWith(ah, func(id native.ID) error {
		res, err = p.sim.Run(id)
		return err
	}); err != nil {
		return nil, err
	}
	return p.result(res)
}

// Arb sends cmd to the host arb handler of the plugin at index.
func (p *Pipeline) Arb(index int, cmd *core.ArbCmd) (*core.ArbData, error) {
	ch, err := cmd.Encode(p.m)
	if err != nil {
		return nil, err
	}
	var res native.ID
	if err := consumeWith(ch, func(id native.ID) error {
		res, err = p.sim.Arb(index, id)
		return err
	}); err != nil {
		return nil, err
	}
	return p.result(res)
}

// Send queues data for the frontend's Recv.
func (p *Pipeline) Send(data *core.ArbData) error {
	dh, err := data.Encode(p.m, nil)
	if err != nil {
		return err
	}
	return consumeWith(dh, p.sim.Send)
}

// Recv returns the oldest message the frontend sent to the host.
func (p *Pipeline) Recv() (*core.ArbData, error) {
	id, err := p.sim.Recv()
	if err != nil {
		return nil, err
	}
	return p.result(id)
}

func (p *Pipeline) result(id native.ID) (*core.ArbData, error) {
	h := handle.New(p.m, id)
	defer h.Release()
	return core.DecodeArbData(p.m, h)
}

// Stop drops every plugin and waits for them. It is safe to call twice.
func (p *Pipeline) Stop() error {
	err := p.sim.Stop()
	for i, j := range p.joins {
		if werr := j.Wait(); werr != nil {
			err = multierr.Append(err, werr)
			zap.L().Error(fmt.Sprintf("plugin failed/name:%s/reason:%s", p.names[i], werr))
		}
	}
	p.joins = nil
	return err
}
