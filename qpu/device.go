package qpu

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/oqtopus-team/cosim-plugin/common"
	"go.uber.org/zap"
)

type DeviceSetting struct {
	DeviceName string `toml:"device_name"`
	MaxQubits  int    `toml:"max_qubits"`
	// Epsilon is the tolerance used when classifying gate matrices.
	Epsilon float64 `toml:"epsilon"`
}

// LoadDeviceSetting reads a device setting file. A missing file yields the
// defaults.
func LoadDeviceSetting(path string) (*DeviceSetting, error) {
	ds := NewDeviceSetting()
	if path == "" {
		return ds, nil
	}
	blob, assetErr := common.ReadFile(path)
	if assetErr != nil {
		zap.L().Info(fmt.Sprintf("Failed to read file:%s Reason:%s", path, assetErr))
		return ds, nil
	}
	if _, err := toml.Decode(blob, ds); err != nil {
		zap.L().Error(fmt.Sprintf("failed to decode blob:%s", blob))
		return &DeviceSetting{}, err
	}
	if ds.MaxQubits <= 0 {
		return &DeviceSetting{}, fmt.Errorf("max_qubits must be positive, got %d", ds.MaxQubits)
	}
	return ds, nil
}

func NewDeviceSetting() *DeviceSetting {
	return &DeviceSetting{
		DeviceName: DummyDeviceName,
		MaxQubits:  64,
		Epsilon:    1e-9,
	}
}
