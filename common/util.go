package common

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidIdentifier reports whether s can be used as an interface or
// operation identifier.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// NewSimulatorAddress returns a unique address for an in-process simulation slot.
func NewSimulatorAddress() string {
	return fmt.Sprintf("mem://%s", uuid.NewString())
}

func ReadFile(filepath string) (string, error) {
	bytes, err := os.ReadFile(filepath)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func IsDirWritable(dirPath string) error {
	info, err := os.Stat(dirPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", dirPath)
	}
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dirPath)
	}

	tempFile, err := os.CreateTemp(dirPath, "test-write-*.tmp")
	if err != nil {
		return fmt.Errorf("write permission denied for directory: %s", dirPath)
	}
	fileName := tempFile.Name()
	tempFile.Close()

	if err := os.Remove(fileName); err != nil {
		return fmt.Errorf("failed to remove temporary file: %s", err)
	}

	return nil
}

func ReadSettingsFile(settingsPath string) (string, error) {
	bytes, err := os.ReadFile(settingsPath)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to read settings file/path:%s/reason:%s",
			settingsPath, err))
		if absolutePath, err := filepath.Abs(settingsPath); err != nil {
			zap.L().Error(fmt.Sprintf("failed to get absolute path of %s/reason:%s",
				settingsPath, err))
		} else {
			zap.L().Debug(fmt.Sprintf("absolute path:%s", absolutePath))
		}
		return "", err
	}
	return string(bytes), nil
}
