package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"service":"payflow"`)

	assert.Equal(t, zerolog.InfoLevel, newLogger(&buf, "nonsense", "json").GetLevel())
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "debug", "console").Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"run", "poll-once", "migrate", "seed"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	t.Setenv("INGEST_TRANSPORT", "carrier-pigeon")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"run", "--poll=false", "--env-file", filepath.Join(t.TempDir(), "none.env")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INGEST_TRANSPORT")
}

func TestMigrateCmd_RequiresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "--env-file", ""})
	assert.Error(t, cmd.Execute())
}
