package log

import (
	"fmt"

	"github.com/oqtopus-team/cosim-plugin/core"
	"go.uber.org/zap"
)

// LogStartup reports the runtime version and the plugin that is about to
// attach to a simulator.
func LogStartup(info *core.PluginInfo, simulator string) {
	zap.L().Debug("Runtime version:" + core.Version)
	zap.L().Info(fmt.Sprintf("starting plugin/info:%s/simulator:%s", info, simulator))
}
