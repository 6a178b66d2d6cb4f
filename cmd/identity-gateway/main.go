// ABOUTME: Entry point for identity-gateway, the account and session server
// ABOUTME: Provides serve, init, health, ready and version subcommands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/identity-gateway/internal/config"
	"github.com/2389/identity-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _     _            _   _ _                     _
 (_) __| | ___ _ __ | |_(_) |_ _   _    __ _ ___| |_ ___
 | |/ _' |/ _ \ '_ \| __| | __| | | |  / _' / _ \ __/ _ \
 | | (_| |  __/ | | | |_| | |_| |_| | | (_| |  __/ ||  __/
 |_|\__,_|\___|_| |_|\__|_|\__|\__, |  \__, |\___|\__\___|
                               |___/   |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: IDENTITY_CONFIG env var > XDG_CONFIG_HOME/identity-gateway/config.yaml > ~/.config/identity-gateway/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("IDENTITY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "identity-gateway", "config.yaml")
}

// getDataPath returns the path to the data directory.
// Priority: XDG_DATA_HOME/identity-gateway > ~/.local/share/identity-gateway
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "identity-gateway")
}

func usage() {
	fmt.Println("Usage: identity-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the gateway server (default)")
	fmt.Println("  init      Create a new config file interactively")
	fmt.Println("  health    Check gateway liveness")
	fmt.Println("  ready     Check gateway readiness (database reachable)")
	fmt.Println("  version   Print the version")
}

func main() {
	command := "serve"
	if len(os.Args) >= 2 {
		command = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin, os.Stdout)
	case "health":
		err = runHealthCheck(ctx, "/health")
	case "ready":
		err = runHealthCheck(ctx, "/health/ready")
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Frontend:  %s\n", cfg.Server.FrontendURL)
	if cfg.OAuth.Google.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Google:    ")
		cyan.Println("enabled")
	}
	if cfg.Newsletter.BrevoAPIKey == "" {
		yellow.Print("    ▶ ")
		fmt.Println("Newsletter emails disabled (no brevo_api_key)")
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting identity-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"database", cfg.Database.Driver,
		"rate_limit_backend", cfg.RateLimit.Backend,
	)

	// Create and run gateway
	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = &colorHandler{
			out:   os.Stdout,
			mu:    &sync.Mutex{},
			level: level,
		}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// colorHandler provides colorized log output with thread-safe writes.
// Handlers derived with WithAttrs share the parent's mutex and writer.
type colorHandler struct {
	out    io.Writer
	mu     *sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	writeAttr := func(a slog.Attr) {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		out:    h.out,
		mu:     h.mu,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		out:    h.out,
		mu:     h.mu,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// runHealthCheck requests path on the configured server and fails on a non-200 answer.
func runHealthCheck(ctx context.Context, path string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := healthURL(cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// healthURL builds a loopback URL for addr, replacing a wildcard host.
func healthURL(addr, path string) string {
	host := addr
	if strings.HasPrefix(host, "0.0.0.0:") {
		host = "127.0.0.1" + strings.TrimPrefix(host, "0.0.0.0")
	} else if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	return "http://" + host + path
}

// generateSecret returns a random base64 signing key with 32 bytes of entropy.
func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

// initAnswers are the values collected by the init prompts.
type initAnswers struct {
	HTTPAddr    string
	FrontendURL string

	Driver        string
	DBPath        string
	MongoURI      string
	MongoDatabase string

	JWTSecret string

	GoogleEnabled      bool
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	BrevoAPIKey string
	SenderEmail string

	LogLevel  string
	LogFormat string
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "identity-gateway configuration setup")
	fmt.Fprintln(out, "====================================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}
	a := initAnswers{JWTSecret: secret}

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, out, "HTTP address", "0.0.0.0:3000")
	a.FrontendURL = prompt(reader, out, "Frontend URL", "http://localhost:5173")

	fmt.Fprintln(out, "\n--- Database Configuration ---")
	a.Driver = prompt(reader, out, "Database driver (sqlite/mongo)", config.DriverSQLite)
	if a.Driver == config.DriverMongo {
		a.MongoURI = prompt(reader, out, "MongoDB URI", "mongodb://localhost:27017")
		a.MongoDatabase = prompt(reader, out, "MongoDB database", "identity")
	} else {
		a.Driver = config.DriverSQLite
		a.DBPath = prompt(reader, out, "SQLite database path", filepath.Join(getDataPath(), "identity.db"))
	}

	fmt.Fprintln(out, "\n--- Google Sign-In ---")
	a.GoogleEnabled = yes(prompt(reader, out, "Enable Google sign-in?", "no"))
	if a.GoogleEnabled {
		a.GoogleClientID = prompt(reader, out, "Google client ID", "")
		a.GoogleClientSecret = prompt(reader, out, "Google client secret", "")
		a.GoogleRedirectURL = prompt(reader, out, "Google redirect URL", "http://localhost:3000/auth/google/callback")
	}

	fmt.Fprintln(out, "\n--- Newsletter ---")
	a.BrevoAPIKey = prompt(reader, out, "Brevo API key (leave empty to disable emails)", "")
	if a.BrevoAPIKey != "" {
		a.SenderEmail = prompt(reader, out, "Sender email", "")
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, out, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds the signing key and API secrets
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if a.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(a.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  identity-gateway serve")
	return nil
}

// renderConfig produces the YAML written by init.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# identity-gateway configuration\n")
	cfg.WriteString("# Generated by identity-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.HTTPAddr))
	cfg.WriteString(fmt.Sprintf("  frontend_url: %q\n", a.FrontendURL))
	cfg.WriteString("  # Proxies whose X-Forwarded-For is trusted for client addresses\n")
	cfg.WriteString("  trusted_proxies: []\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  driver: %q\n", a.Driver))
	if a.Driver == config.DriverMongo {
		cfg.WriteString(fmt.Sprintf("  mongo_uri: %q\n", a.MongoURI))
		cfg.WriteString(fmt.Sprintf("  mongo_database: %q\n", a.MongoDatabase))
	} else {
		cfg.WriteString(fmt.Sprintf("  path: %q\n", a.DBPath))
	}
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", a.JWTSecret))
	cfg.WriteString("  token_ttl: \"168h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("oauth:\n")
	cfg.WriteString("  google:\n")
	cfg.WriteString(fmt.Sprintf("    enabled: %t\n", a.GoogleEnabled))
	if a.GoogleEnabled {
		cfg.WriteString(fmt.Sprintf("    client_id: %q\n", a.GoogleClientID))
		cfg.WriteString(fmt.Sprintf("    client_secret: %q\n", a.GoogleClientSecret))
		cfg.WriteString(fmt.Sprintf("    redirect_url: %q\n", a.GoogleRedirectURL))
	}
	cfg.WriteString("\n")

	cfg.WriteString("newsletter:\n")
	cfg.WriteString(fmt.Sprintf("  brevo_api_key: %q\n", a.BrevoAPIKey))
	if a.SenderEmail != "" {
		cfg.WriteString(fmt.Sprintf("  sender_email: %q\n", a.SenderEmail))
	}
	cfg.WriteString("\n")

	cfg.WriteString("rate_limit:\n")
	cfg.WriteString("  backend: \"memory\"\n")
	cfg.WriteString("  login_per_minute: 10\n")
	cfg.WriteString("  signup_per_minute: 5\n")
	cfg.WriteString("  subscribe_per_minute: 5\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	return cfg.String()
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
