package log

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	rotate "github.com/lestrrat-go/file-rotatelogs"
	"github.com/oqtopus-team/cosim-plugin/common"
	"github.com/oqtopus-team/cosim-plugin/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const rotatePattern = "cosim-%Y-%m-%d.log"

// NewZapLogger builds the process logger. Dev mode logs to the console
// encoder, otherwise JSON lines with an ISO8601 timestamp.
func NewZapLogger(conf *core.Conf) (*zap.Logger, error) {
	var encoder zapcore.Encoder
	if conf.DevMode {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		c := zap.NewProductionEncoderConfig()
		c.EncodeTime = zapcore.ISO8601TimeEncoder //Not use UnixTime
		c.TimeKey = "timestamp"
		encoder = zapcore.NewJSONEncoder(c)
	}
	level := levelOf(conf.LogLevel)

	cores := []zapcore.Core{}
	if conf.EnableFileLog {
		rotator, err := makeRotator(conf.LogDir, conf.LogRotationMaxDays)
		if err != nil {
			return &zap.Logger{}, err
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}
	if !conf.DisableStdoutLog {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func levelOf(s string) zap.AtomicLevel {
	switch s {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

func makeRotator(dirPath string, rotationMaxDays int) (*rotate.RotateLogs, error) {
	if err := common.IsDirWritable(dirPath); err != nil {
		return &rotate.RotateLogs{}, err
	}
	rotator, err := rotate.New(
		filepath.Join(dirPath, rotatePattern),
		rotate.WithMaxAge(time.Duration(rotationMaxDays)*24*time.Hour),
		rotate.WithRotationTime(time.Hour))
	if err != nil {
		return &rotate.RotateLogs{}, err
	}
	return rotator, nil
}

// SetZap installs the logger built from conf as the global zap logger.
func SetZap(conf *core.Conf) (*zap.Logger, error) {
	logger, err := NewZapLogger(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger/reason:%w", err)
	}
	zap.ReplaceGlobals(logger)
	zap.L().Info("Starting logger")
	zap.L().Info(fmt.Sprintf("DevMode is %t", conf.DevMode))
	zap.L().Info(fmt.Sprintf("Log rotation max days is %d", conf.LogRotationMaxDays))
	return logger, nil
}
