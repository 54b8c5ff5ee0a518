//go:build unit
// +build unit

package log

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchMetricsCounts(t *testing.T) {
	d, err := NewDispatchMetrics()
	require.Nil(t, err)

	_, end := d.Begin(context.Background(), "null", "gate")
	end(nil)
	_, end = d.Begin(context.Background(), "null", "gate")
	end(errors.New("boom"))
	_, end = d.Begin(context.Background(), "null", "allocate")
	end(nil)

	assert.Equal(t, map[string]CallbackCount{
		"gate":     {Calls: 2, Failures: 1},
		"allocate": {Calls: 1},
	}, d.Counts())
}

func TestDispatchMetricsFlush(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDispatchMetrics()
	require.Nil(t, err)
	d.Flush()

	require.Nil(t, d.EnableFileLog(dir))
	_, end := d.Begin(context.Background(), "null", "run")
	end(nil)
	d.Flush()
	require.Nil(t, d.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "metrics-*.log"))
	require.Nil(t, err)
	require.Equal(t, 1, len(matches))
	b, err := os.ReadFile(matches[0])
	require.Nil(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Equal(t, 1, len(lines))
	assert.Contains(t, lines[0], `"callback":"run"`)
	assert.Contains(t, lines[0], `"callbacks":1`)
	assert.Contains(t, lines[0], `"failures":0`)
}

func TestDispatchMetricsEnableFileLogMissingDir(t *testing.T) {
	d, err := NewDispatchMetrics()
	require.Nil(t, err)
	assert.NotNil(t, d.EnableFileLog(filepath.Join(t.TempDir(), "missing")))
}
