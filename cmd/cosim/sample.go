package main

import (
	"context"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/oklog/run"
	"github.com/tidwall/pretty"

	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/log"
	"github.com/oqtopus-team/cosim-plugin/native"
	"github.com/oqtopus-team/cosim-plugin/noise"
	"github.com/oqtopus-team/cosim-plugin/plugin"
	"github.com/oqtopus-team/cosim-plugin/sampling"
	"go.uber.org/zap"
)

type sampleCmd struct {
	Shots int `long:"shots" description:"number of shots" default:"1024"`
}

func newSampleCmd() *sampleCmd {
	return &sampleCmd{}
}

func (c *sampleCmd) Execute(args []string) error {
	logger := setZap(app.Conf)
	defer logger.Sync()
	core.SetVersion(app.Conf, versionByBuildFlag)

	setting, err := loadSetting(app.Conf.SettingPath)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to parse settings/reason:%s", err))
		return err
	}
	zap.L().Debug(fmt.Sprintf("Providing DI Container with parameters %+v", app.DIContainerParameters))
	container, err := app.provideDIContainer()
	if err != nil {
		zap.L().Error(fmt.Sprintf("Failed to setting up DI-Container. Reason:%s", err.Error()))
		return err
	}

	var counts sampling.Counts
	err = container.Invoke(func(m *native.Memory, metrics *log.DispatchMetrics, fe *sampling.Sampler, ops []*noise.Readout, be backend) error {
		defer func() {
			metrics.Flush()
			if err := metrics.Close(); err != nil {
				zap.L().Warn(fmt.Sprintf("failed to close metrics log/reason:%s", err))
			}
		}()
		st, err := stages(setting, metrics, fe, ops, be)
		if err != nil {
			return err
		}
		p, err := plugin.NewPipeline(m, st...)
		if err != nil {
			return err
		}
		counts, err = c.sample(p, args)
		if serr := p.Stop(); serr != nil && err == nil {
			err = serr
		}
		if live := m.Live(); live != 0 {
			zap.L().Warn(fmt.Sprintf("handles left after the simulation/count:%d", live))
		}
		return err
	})
	if err != nil {
		zap.L().Error(fmt.Sprintf("sampling failed/reason:%s", err))
		return err
	}
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(counts)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, string(pretty.Pretty(out)))
	return nil
}

// sample initializes the pipeline and runs the circuit. An interrupt aborts
// the wait for plugins to attach.
func (c *sampleCmd) sample(p *plugin.Pipeline, circuit []string) (sampling.Counts, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var counts sampling.Counts
	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt))
	g.Add(func() error {
		initCtx, initCancel := context.WithTimeout(ctx, app.Conf.InitTimeout)
		defer initCancel()
		if err := p.Init(initCtx); err != nil {
			return err
		}
		lines := make([]interface{}, len(circuit))
		for i, l := range circuit {
			lines[i] = l
		}
		args, err := core.NewArbDataWith(map[string]interface{}{
			"shots":   c.Shots,
			"qubits":  app.Conf.Qubits,
			"circuit": lines,
		})
		if err != nil {
			return err
		}
		res, err := p.Run(args)
		if err != nil {
			return err
		}
		counts, err = sampling.CountsFromArb(res)
		return err
	}, func(error) {
		cancel()
	})
	err := g.Run()
	return counts, err
}
