package appconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
verbose: true
roadwayBaseURL: https://roadway-analytics-api.inrix.com
roadwayCredsPath: /etc/corridorutils/roadway.json
dbPath: /var/lib/corridorutils/corridors.db
report:
  startDate: "2021-02-01"
  endDate: "2021-02-28"
  granularity: 15
  mapVersion: "2101"
  corridors:
    - name: I-80 WB
      direction: W
      xdSegIds: [101, 102]
`)

	cfg, err := LoadFromFile(path, Production)
	require.NoError(t, err)

	assert.Equal(t, Production, cfg.Env)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "/var/lib/corridorutils/corridors.db", cfg.DBPath)
	assert.Equal(t, 15, cfg.Report.Granularity)
	require.Len(t, cfg.Report.Corridors, 1)
	assert.Equal(t, []int64{101, 102}, cfg.Report.Corridors[0].SegmentIDs)
	assert.Equal(t, "America/Los_Angeles", cfg.Report.Timezone, "timezone should default")
}

func TestLoadFromFileDefaults(t *testing.T) {
	path := writeConfigFile(t, "verbose: false\n")

	cfg, err := LoadFromFile(path, Test)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, Test, cfg.Env)
}

func TestLoadFromFileRejectsBadValues(t *testing.T) {
	t.Run("bad URL", func(t *testing.T) {
		path := writeConfigFile(t, "roadwayBaseURL: not-a-url\n")
		_, err := LoadFromFile(path, Development)
		require.Error(t, err)
	})

	t.Run("bad granularity", func(t *testing.T) {
		path := writeConfigFile(t, "report:\n  granularity: 7\n")
		_, err := LoadFromFile(path, Development)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"), Development)
		require.Error(t, err)
	})
}

func TestEnvFlagToEnvironment(t *testing.T) {
	assert.Equal(t, Test, EnvFlagToEnvironment("test"))
	assert.Equal(t, Production, EnvFlagToEnvironment("prod"))
	assert.Equal(t, Production, EnvFlagToEnvironment("production"))
	assert.Equal(t, Development, EnvFlagToEnvironment("anything-else"))
}
