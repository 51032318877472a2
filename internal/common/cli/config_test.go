package cli_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openaviation/grievance-insights/internal/common/cli"
	"github.com/openaviation/grievance-insights/internal/common/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvPrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "GRIEVANCE_INGEST_SERVICE_", cli.EnvPrefix("grievance-ingest-service"))
	assert.Equal(t, "APP_", cli.EnvPrefix("app"))
}

func TestInitViperConfig(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content string

		wantValue string
		wantErr   bool
	}{
		"Reads config file": {content: "name: from-file\n", wantValue: "from-file"},
		"Empty config file": {content: "", wantValue: ""},

		"Invalid config file errors": {content: "name: [unterminated", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := filepath.Join(t.TempDir(), "conf.yaml")
			require.NoError(t, os.WriteFile(p, []byte(tc.content), 0600), "Setup: failed to write config file")

			cmd := &cobra.Command{Use: "test-cmd"}
			cli.InstallConfigFlag(cmd)
			require.NoError(t, cmd.ParseFlags([]string{"--config", p}), "Setup: failed to parse config flag")

			vip := viper.New()
			err := cli.InitViperConfig(cli.NewLogger(0, false, io.Discard), "test-cmd", cmd, vip)
			if tc.wantErr {
				require.Error(t, err, "InitViperConfig should fail")
				return
			}
			require.NoError(t, err, "InitViperConfig should not fail")
			assert.Equal(t, tc.wantValue, vip.GetString("name"), "value read from config")
		})
	}
}

func TestUnmarshal(t *testing.T) {
	t.Parallel()

	type conf struct {
		Interval time.Duration
		Tables   []string
		Name     string
	}

	tests := map[string]struct {
		values map[string]any

		want    conf
		wantErr bool
	}{
		"Decodes durations and lists from strings": {
			values: map[string]any{"interval": "1h30m", "tables": "a,b", "name": "x"},
			want:   conf{Interval: 90 * time.Minute, Tables: []string{"a", "b"}, Name: "x"},
		},
		"Keeps native values": {
			values: map[string]any{"interval": time.Second, "tables": []string{"c"}},
			want:   conf{Interval: time.Second, Tables: []string{"c"}},
		},
		"Empty configuration": {},

		"Error on invalid duration": {values: map[string]any{"interval": "soon"}, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			vip := viper.New()
			for k, v := range tc.values {
				vip.Set(k, v)
			}

			var got conf
			err := cli.Unmarshal(vip, &got)
			if tc.wantErr {
				require.Error(t, err, "Unmarshal should fail")
				return
			}
			require.NoError(t, err, "Unmarshal should not fail")
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewVersionCmd(t *testing.T) {
	t.Parallel()

	root := &cobra.Command{Use: "test-cmd"}
	root.AddCommand(cli.NewVersionCmd("test-cmd"))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute(), "version should not fail")
	assert.Equal(t, "test-cmd\t"+constants.Version+"\n", out.String())

	root.SetArgs([]string{"version", "extra"})
	require.Error(t, root.Execute(), "version takes no arguments")
}
