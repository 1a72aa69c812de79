package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load(nil)
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	setEnv(t, map[string]string{"GEMINI_API_KEY": "key"})

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, 3001, cfg.Port)
	require.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	require.Equal(t, 30*time.Second, cfg.TranslationTimeout)
	require.Equal(t, 30*time.Minute, cfg.SessionTimeout)
	require.Equal(t, 5*1024*1024, cfg.MaxBufferSize)
	require.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	require.Equal(t, ":3001", cfg.Addr())
}

func TestLoadEnvironmentAndFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	setEnv(t, map[string]string{
		"GEMINI_API_KEY":      "key",
		"PORT":                "9000",
		"MAX_SESSIONS":        "2",
		"TRANSLATION_TIMEOUT": "5s",
		"ALLOWED_ORIGINS":     "http://a.test, http://b.test",
	})

	cfg, err := Load([]string{"--port", "9100", "--log-level", "debug"})
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Port)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 2, cfg.MaxSessions)
	require.Equal(t, 5*time.Second, cfg.TranslationTimeout)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("GEMINI_API_KEY", "key")
	path := filepath.Join(dir, "callbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_sessions: 4\nlog_format: json\n"), 0o600))

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	require.Equal(t, 4, cfg.MaxSessions)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	for name, env := range map[string]map[string]string{
		"log level":  {"LOG_LEVEL": "loud"},
		"log format": {"LOG_FORMAT": "xml"},
		"sessions":   {"MAX_SESSIONS": "0"},
		"timeout":    {"TRANSLATION_TIMEOUT": "-1s"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "key")
			setEnv(t, env)
			_, err := Load(nil)
			require.Error(t, err)
		})
	}
}
