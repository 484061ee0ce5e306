// Package config loads runtime configuration from CLI flags and
// environment variables. Precedence: CLI flags > env vars > defaults.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the call server.
type Config struct {
	DataDir     string
	HTTPPort    int
	LogLevel    string
	LogFormat   string // log output format: "text" or "json"
	CORSOrigins string

	SIPHost string // advertised hostname in the SIP User-Agent
	SIPPort int
	SIPPeer string // upstream SIP peer (host:port) that outbound dials target

	RelayURL           string // media relay negotiation endpoint; empty selects the proxy strategy
	BridgeStrategy     string // "relay" or "proxy"
	DialTimeout        time.Duration
	NegotiationTimeout time.Duration

	ESLAddr     string // FreeSWITCH event socket (host:port); empty disables the media gateway
	ESLPassword string
	ParkDest    string // dialplan destination that parks a call for IVR control

	TTSURL      string // speech synthesis service base URL
	TTSVoice    string
	TTSSpeed    float64
	TTSFallback string // audio resource played when synthesis fails

	IVREntryMenu   string
	IVRMaxInvalid  int
	IVRStrictMenus bool

	LiveKitHost      string // room service URL; empty disables the WebRTC room path
	LiveKitAPIKey    string
	LiveKitAPISecret string
	RedisAddr        string // room-name store; empty falls back to in-memory

	RouteDirect       string // extension routed to the direct bridge path
	RouteIVR          string // extension routed into the IVR
	RouteWebRTCPrefix string // destination prefix routed to the room path
}

// defaults
const (
	defaultDataDir            = "./data"
	defaultHTTPPort           = 8080
	defaultSIPPort            = 5060
	defaultLogLevel           = "info"
	defaultLogFormat          = "text"
	defaultBridgeStrategy     = "relay"
	defaultDialTimeout        = 30 * time.Second
	defaultNegotiationTimeout = 10 * time.Second
	defaultParkDest           = "park"
	defaultTTSVoice           = "en-US-Standard-C"
	defaultTTSSpeed           = 1.0
	defaultIVREntryMenu       = "main"
	defaultIVRMaxInvalid      = 3
	defaultRouteDirect        = "6000"
	defaultRouteIVR           = "9999"
	defaultRouteWebRTCPrefix  = "555"
)

// envPrefix is the prefix for all call server environment variables.
const envPrefix = "CALLSERVER_"

// Load parses configuration from CLI flags and environment variables.
func Load() (*Config, error) {
	return load(os.Args[1:], os.LookupEnv)
}

// load is the testable core of Load.
func load(args []string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("callserver", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the sqlite database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "admin HTTP server listen port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")

	fs.StringVar(&cfg.SIPHost, "sip-host", "", "advertised SIP hostname (defaults to the machine hostname)")
	fs.IntVar(&cfg.SIPPort, "sip-port", defaultSIPPort, "SIP UDP/TCP listen port")
	fs.StringVar(&cfg.SIPPeer, "sip-peer", "", "upstream SIP peer host:port for outbound call legs")

	fs.StringVar(&cfg.RelayURL, "relay-url", "", "media relay negotiation endpoint URL")
	fs.StringVar(&cfg.BridgeStrategy, "bridge-strategy", defaultBridgeStrategy, "media bridging strategy (relay, proxy)")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", defaultDialTimeout, "timeout for establishing the callee leg")
	fs.DurationVar(&cfg.NegotiationTimeout, "negotiation-timeout", defaultNegotiationTimeout, "timeout for each relay offer/answer step")

	fs.StringVar(&cfg.ESLAddr, "esl-addr", "", "FreeSWITCH event socket address (host:port)")
	fs.StringVar(&cfg.ESLPassword, "esl-password", "ClueCon", "FreeSWITCH event socket password")
	fs.StringVar(&cfg.ParkDest, "park-dest", defaultParkDest, "dialplan destination that parks calls for IVR control")

	fs.StringVar(&cfg.TTSURL, "tts-url", "", "speech synthesis service base URL")
	fs.StringVar(&cfg.TTSVoice, "tts-voice", defaultTTSVoice, "speech synthesis voice")
	fs.Float64Var(&cfg.TTSSpeed, "tts-speed", defaultTTSSpeed, "speech synthesis speaking rate")
	fs.StringVar(&cfg.TTSFallback, "tts-fallback", "", "audio resource played when synthesis fails")

	fs.StringVar(&cfg.IVREntryMenu, "ivr-entry-menu", defaultIVREntryMenu, "menu entered when a call reaches the IVR")
	fs.IntVar(&cfg.IVRMaxInvalid, "ivr-max-invalid", defaultIVRMaxInvalid, "consecutive invalid digit entries before hangup")
	fs.BoolVar(&cfg.IVRStrictMenus, "ivr-strict-menus", false, "hang up on references to missing menus instead of ignoring them")

	fs.StringVar(&cfg.LiveKitHost, "livekit-host", "", "LiveKit server URL for the WebRTC room path")
	fs.StringVar(&cfg.LiveKitAPIKey, "livekit-api-key", "", "LiveKit API key")
	fs.StringVar(&cfg.LiveKitAPISecret, "livekit-api-secret", "", "LiveKit API secret")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address for the room-name store (host:port)")

	fs.StringVar(&cfg.RouteDirect, "route-direct", defaultRouteDirect, "extension routed to the direct bridge path")
	fs.StringVar(&cfg.RouteIVR, "route-ivr", defaultRouteIVR, "extension routed into the IVR")
	fs.StringVar(&cfg.RouteWebRTCPrefix, "route-webrtc-prefix", defaultRouteWebRTCPrefix, "destination prefix routed to the WebRTC room path")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	applyEnvOverrides(fs, lookupEnv)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides sets flag values from environment variables for any
// flag not explicitly provided on the command line, preserving the
// precedence CLI flags > env vars > defaults. The env var name is the
// prefixed upper-snake form of the flag name (sip-port -> CALLSERVER_SIP_PORT).
func applyEnvOverrides(fs *flag.FlagSet, lookupEnv func(string) (string, bool)) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	fs.VisitAll(func(f *flag.Flag) {
		if set[f.Name] {
			return
		}
		envVar := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		val, ok := lookupEnv(envVar)
		if !ok || val == "" {
			return
		}
		if err := f.Value.Set(val); err != nil {
			slog.Warn("ignoring invalid environment value",
				"var", envVar, "value", val, "error", err)
		}
	})
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.SIPPort < 1 || c.SIPPort > 65535 {
		return fmt.Errorf("sip-port must be between 1 and 65535, got %d", c.SIPPort)
	}

	if c.BridgeStrategy != "relay" && c.BridgeStrategy != "proxy" {
		return fmt.Errorf("bridge-strategy must be relay or proxy, got %q", c.BridgeStrategy)
	}
	if c.BridgeStrategy == "relay" && c.RelayURL == "" {
		slog.Warn("no relay-url configured, falling back to proxy bridging")
		c.BridgeStrategy = "proxy"
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial-timeout must be positive, got %s", c.DialTimeout)
	}
	if c.NegotiationTimeout <= 0 {
		return fmt.Errorf("negotiation-timeout must be positive, got %s", c.NegotiationTimeout)
	}

	if c.TTSSpeed <= 0 || c.TTSSpeed > 4 {
		return fmt.Errorf("tts-speed must be between 0 and 4, got %g", c.TTSSpeed)
	}
	if c.IVRMaxInvalid < 1 {
		return fmt.Errorf("ivr-max-invalid must be at least 1, got %d", c.IVRMaxInvalid)
	}

	// The room path needs all three LiveKit settings or none.
	lk := 0
	for _, v := range []string{c.LiveKitHost, c.LiveKitAPIKey, c.LiveKitAPISecret} {
		if v != "" {
			lk++
		}
	}
	if lk != 0 && lk != 3 {
		return fmt.Errorf("livekit-host, livekit-api-key and livekit-api-secret must all be provided or all be omitted")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// AdvertisedSIPHost returns the hostname used in the SIP User-Agent,
// falling back to the machine hostname.
func (c *Config) AdvertisedSIPHost() string {
	if c.SIPHost != "" {
		return c.SIPHost
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return hostname
}

// HTTPAddr returns the admin HTTP listen address.
func (c *Config) HTTPAddr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}

// SlogHandler returns a slog.Handler configured with the configured
// format and level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
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
