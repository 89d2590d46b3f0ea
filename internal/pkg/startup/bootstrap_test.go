package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"sim-gateway-go/internal/pkg/config"
	"sim-gateway-go/internal/pkg/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"missing file", fmt.Errorf("%w: res/configuration.yaml", config.ErrConfigNotFound), 1},
		{"unreadable", fmt.Errorf("%w: denied", config.ErrConfigUnreadable), 2},
		{"parse", fmt.Errorf("%w: bad yaml", config.ErrConfigParse), 3},
		{"bind", fmt.Errorf("%w on :4201: in use", server.ErrBind), 4},
		{"server config", fmt.Errorf("%w: port 80", config.ErrServerConfig), 5},
		{"other", errors.New("boom"), 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "configuration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing config", filepath.Join(t.TempDir(), "none.yaml"), ExitFileNotFound},
		{"invalid yaml", writeConfig(t, "Server: [unterminated"), ExitConfigParse},
		{"port out of range", writeConfig(t, "Server:\n  Port: 80\n"), ExitServerConfig},
		{"unknown component", writeConfig(t, "Devices:\n  - Port: COM1\n    Components:\n      - Type: dial\n"), ExitConfigParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Run("simgw", "test", tt.path))
		})
	}
}

func TestDefaultConfigPath(t *testing.T) {
	p, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "configuration.yaml", filepath.Base(p))
	assert.Equal(t, "res", filepath.Base(filepath.Dir(p)))
}
