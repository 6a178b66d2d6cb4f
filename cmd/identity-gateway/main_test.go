// ABOUTME: Tests for the identity-gateway CLI helpers
// ABOUTME: Checks generated configs load cleanly and the color log handler output

package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/identity-gateway/internal/config"
)

func TestRenderConfig_SQLiteLoads(t *testing.T) {
	secret, err := generateSecret()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := renderConfig(initAnswers{
		HTTPAddr:    "127.0.0.1:3000",
		FrontendURL: "http://localhost:5173",
		Driver:      config.DriverSQLite,
		DBPath:      filepath.Join(t.TempDir(), "identity.db"),
		JWTSecret:   secret,
		LogLevel:    "debug",
		LogFormat:   "json",
	})
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3000", cfg.Server.HTTPAddr)
	assert.Equal(t, secret, cfg.Auth.JWTSecret)
	assert.Equal(t, 10, cfg.RateLimit.LoginPerMinute)
	assert.False(t, cfg.OAuth.Google.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestRenderConfig_MongoAndGoogle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := renderConfig(initAnswers{
		HTTPAddr:           "0.0.0.0:3000",
		FrontendURL:        "https://app.example.com",
		Driver:             config.DriverMongo,
		MongoURI:           "mongodb://db:27017",
		MongoDatabase:      "accounts",
		JWTSecret:          strings.Repeat("s", 44),
		GoogleEnabled:      true,
		GoogleClientID:     "client",
		GoogleClientSecret: "secret",
		GoogleRedirectURL:  "https://api.example.com/auth/google/callback",
		BrevoAPIKey:        "xkeysib-123",
		SenderEmail:        "news@example.com",
		LogLevel:           "info",
		LogFormat:          "text",
	})
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DriverMongo, cfg.Database.Driver)
	assert.Equal(t, "accounts", cfg.Database.MongoDatabase)
	assert.True(t, cfg.OAuth.Google.Enabled)
	assert.Equal(t, "client", cfg.OAuth.Google.ClientID)
	assert.Equal(t, "news@example.com", cfg.Newsletter.SenderEmail)
}

func TestRunInit_Defaults(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "identity", "config.yaml")
	t.Setenv("IDENTITY_CONFIG", configPath)
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))

	// Accept every default
	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "Config written to "+configPath)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, config.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, filepath.Join(dir, "data", "identity-gateway", "identity.db"), cfg.Database.Path)
	assert.GreaterOrEqual(t, len(cfg.Auth.JWTSecret), 32)
}

func TestRunInit_KeepsExistingFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("original"), 0600))
	t.Setenv("IDENTITY_CONFIG", configPath)

	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader("\nno\n"), &out))
	assert.Contains(t, out.String(), "Aborted.")

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestGenerateSecret_Unique(t *testing.T) {
	a, err := generateSecret()
	require.NoError(t, err)
	b, err := generateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 44)
}

func TestHealthURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:3000/health", healthURL("0.0.0.0:3000", "/health"))
	assert.Equal(t, "http://127.0.0.1:3000/health", healthURL(":3000", "/health"))
	assert.Equal(t, "http://api.local:8080/health/ready", healthURL("api.local:8080", "/health/ready"))
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("IDENTITY_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/identity-gateway/config.yaml", getConfigPath())

	t.Setenv("IDENTITY_CONFIG", "/etc/identity.yaml")
	assert.Equal(t, "/etc/identity.yaml", getConfigPath())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestColorHandler(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	h := &colorHandler{out: &buf, mu: &sync.Mutex{}, level: slog.LevelInfo}
	logger := slog.New(h).With("component", "gateway")

	logger.Debug("hidden")
	logger.Info("request served", "status", 200)
	logger.WithGroup("db").Warn("slow query", "ms", 250)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INF request served component=gateway status=200")
	assert.Contains(t, lines[1], "WRN slow query")
	assert.Contains(t, lines[1], "db.ms=250")
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}
