package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/massn/envordot"

	"github.com/oqtopus-team/cosim-plugin/core"
	"github.com/oqtopus-team/cosim-plugin/log"
	"github.com/oqtopus-team/cosim-plugin/native"
	"github.com/oqtopus-team/cosim-plugin/noise"
	"github.com/oqtopus-team/cosim-plugin/plugin"
	"github.com/oqtopus-team/cosim-plugin/qpu"
	"github.com/oqtopus-team/cosim-plugin/sampling"

	"go.uber.org/dig"
	"go.uber.org/zap"
)

var versionByBuildFlag string
var parser *flags.Parser
var app *App

func init() {
	if err := envordot.Load(false, ".env"); err != nil {
		fmt.Printf("Not found \".env\" file. Use only environment variables. Reason:%s\n", err.Error())
	} else {
		fmt.Println("Found \".env\" file. Environment variables are preferred, " +
			"but non-conflicting variables are those in the \".env\" file.")
	}
	app = &App{}
	setParser(app)
}

type App struct {
	DIContainerParameters *DIContainerParameters
	Conf                  *core.Conf
}

type DIContainerParameters struct {
	Backend           string  `long:"backend" description:"backend plugin" default:"dummy" choice:"dummy" choice:"null" env:"COSIM_BACKEND"`
	DeviceSettingPath string  `long:"device-setting-path" description:"device setting of the dummy backend" env:"COSIM_DEVICE_SETTING_PATH"`
	ReadoutError      float64 `long:"readout-error" description:"probability that an operator flips a measurement" default:"0" env:"COSIM_READOUT_ERROR"`
}

// backend is a plugin that terminates the pipeline.
type backend interface {
	Definition() *plugin.Definition
}

func setParser(a *App) {
	parser = flags.NewParser(a, flags.Default)
	parser.ShortDescription = "cosim"
	parser.LongDescription = "runs a sampling frontend, readout-noise operators and a backend plugin on an in-process simulator."
	parser.AddCommand("sample", "sample a circuit", "run a circuit given as one operation per argument, e.g. \"x 0\" \"cx 0 1\"", newSampleCmd())
}

func parse() {
	if _, err := parser.Parse(); err != nil {
		code := 1
		if fe, ok := err.(*flags.Error); ok {
			if fe.Type == flags.ErrHelp {
				code = 0
			}
		}
		if code == 1 {
			fmt.Printf("failed to parse flags, because %s\n", err)
		}
		os.Exit(code)
	}
}

func (a *App) provideDIContainer() (c *dig.Container, err error) {
	c = dig.New()
	err = c.Provide(func() *native.Memory { return native.NewMemory(a.Conf.Seed) })
	if err != nil {
		return &dig.Container{}, err
	}
	err = c.Provide(func() (*log.DispatchMetrics, error) {
		m, err := log.NewDispatchMetrics()
		if err != nil {
			return nil, err
		}
		if a.Conf.MetricsLogDir != "" {
			if err := m.EnableFileLog(a.Conf.MetricsLogDir); err != nil {
				return nil, err
			}
		}
		return m, nil
	})
	if err != nil {
		return &dig.Container{}, err
	}
	err = c.Provide(func() (backend, error) {
		switch a.DIContainerParameters.Backend {
		case "dummy":
			ds, err := qpu.LoadDeviceSetting(a.DIContainerParameters.DeviceSettingPath)
			if err != nil {
				return nil, err
			}
			return qpu.NewDummyQPU(ds), nil
		case "null":
			return &qpu.NullQPU{}, nil
		default:
			return nil, fmt.Errorf("%s is an unknown backend", a.DIContainerParameters.Backend)
		}
	})
	if err != nil {
		return &dig.Container{}, err
	}
	err = c.Provide(func() ([]*noise.Readout, error) {
		ops := make([]*noise.Readout, 0, a.Conf.Operators)
		for i := 0; i < a.Conf.Operators; i++ {
			r, err := noise.NewReadout(a.DIContainerParameters.ReadoutError)
			if err != nil {
				return nil, err
			}
			ops = append(ops, r)
		}
		return ops, nil
	})
	if err != nil {
		return &dig.Container{}, err
	}
	err = c.Provide(sampling.NewSampler)
	if err != nil {
		return &dig.Container{}, err
	}
	return
}

// loadSetting reads the operator setting. Without a path an empty setting
// is used.
func loadSetting(path string) (*core.Setting, error) {
	if path == "" {
		return core.NewSetting(), nil
	}
	return core.ParseSettingFromPath(path)
}

// stages lays out the pipeline. The setting applies to every operator.
func stages(s *core.Setting, metrics *log.DispatchMetrics, fe *sampling.Sampler, ops []*noise.Readout, be backend) ([]plugin.Stage, error) {
	q, err := s.ArbCmds()
	if err != nil {
		return nil, err
	}
	st := []plugin.Stage{{Def: fe.Definition().WithMetrics(metrics)}}
	for _, op := range ops {
		st = append(st, plugin.Stage{
			Def:      op.Definition().ApplySetting(s).WithMetrics(metrics),
			InitCmds: q.Cmds(),
		})
	}
	st = append(st, plugin.Stage{Def: be.Definition().WithMetrics(metrics)})
	return st, nil
}

func main() {
	parse()
}

// setZap panics when the logger cannot be built, before anything else runs.
func setZap(conf *core.Conf) *zap.Logger {
	logger, err := log.SetZap(conf)
	if err != nil {
		fmt.Printf("Failed to setup logger. Reason:%s\n", err)
		panic(err)
	}
	return logger
}
