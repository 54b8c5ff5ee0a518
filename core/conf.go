package core

import "time"

type Conf struct {
	Version            string        `long:"version" description:"version of the plugin runtime" env:"COSIM_VERSION"`
	DevMode            bool          `long:"dev-mode" description:"run in dev mode" env:"COSIM_DEV_MODE"`
	DisableStdoutLog   bool          `long:"disable-stdout-log" description:"do not log in standard output" env:"COSIM_DISABLE_STDOUT_LOG"`
	EnableFileLog      bool          `long:"enable-file-log" description:"enable log in file" env:"COSIM_ENABLE_FILE_LOG"`
	LogDir             string        `long:"log-dir" description:"rotating log file dir" default:"./shares/logs" env:"COSIM_LOG_DIR"`
	LogLevel           string        `long:"log-level" description:"log level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" env:"COSIM_LOG_LEVEL"`
	LogRotationMaxDays int           `long:"log-rotation-max-days" description:"max days of log rotation" default:"7" env:"COSIM_LOG_ROTATION_MAX_DAYS"`
	MetricsLogDir      string        `long:"metrics-log-dir" description:"dir of the daily callback metrics log, disabled when empty" env:"COSIM_METRICS_LOG_DIR"`
	SettingPath        string        `long:"setting-path" description:"plugin setting file path, defaults are used when empty" env:"COSIM_SETTING_PATH"`
	Seed               uint64        `long:"seed" description:"seed of the plugin random number generators" default:"0" env:"COSIM_SEED"`
	Operators          int           `long:"operators" description:"number of operators between frontend and backend" default:"1" env:"COSIM_OPERATORS"`
	Qubits             int           `long:"qubits" description:"number of qubits the frontend allocates" default:"2" env:"COSIM_QUBITS"`
	InitTimeout        time.Duration `long:"init-timeout" description:"time to wait for all plugins to attach" default:"10s" env:"COSIM_INIT_TIMEOUT"`
}
