// Package config handles configuration loading for identity-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Files ending in .toml are decoded as TOML; anything else is YAML.
// Unset fields get defaults before validation.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${IDENTITY_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax and must be positive:
//
//	auth:
//	  token_ttl: "168h"
//	oauth:
//	  google:
//	    state_ttl: "10m"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:3000"
//	  frontend_url: "https://app.example.com"   # OAuth callback target, email links
//	  read_header_timeout: "10s"
//
//	database:
//	  driver: "sqlite"                           # sqlite or mongo
//	  path: "./data/identity.db"
//	  mongo_uri: "${MONGODB_URI}"
//	  mongo_database: "identity"
//
//	auth:
//	  jwt_secret: "${IDENTITY_JWT_SECRET}"       # at least 32 bytes
//	  token_ttl: "168h"
//	  bcrypt_cost: 10
//	  default_display_name: ""
//	  default_avatar_url: ""
//
//	oauth:
//	  google:
//	    enabled: true
//	    client_id: "${GOOGLE_CLIENT_ID}"
//	    client_secret: "${GOOGLE_CLIENT_SECRET}"
//	    redirect_url: "https://api.example.com/auth/google/callback"
//
//	newsletter:
//	  brevo_api_key: "${BREVO_API_KEY}"          # empty disables provider sync
//	  sender_email: "news@example.com"
//	  sender_name: "Web3 Platform"
//	  list_id: 2
//
//	rate_limit:
//	  backend: "memory"                          # memory or redis
//	  redis_addr: "localhost:6379"
//	  login_per_minute: 10
//	  signup_per_minute: 5
//	  subscribe_per_minute: 5
//
//	logging:
//	  level: "info"                              # debug, info, warn, error
//	  format: "text"                             # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Usage
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	core := cfg.IdentityConfig()
package config
