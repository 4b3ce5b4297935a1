package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/netip"
	"net/url"
	"strconv"

	"github.com/joshp123/null-webhook/internal/readiness"
	"github.com/joshp123/null-webhook/internal/server"
)

const (
	EnvListenAddress = "LISTEN_ADDRESS"
	EnvLogAccesses   = "NULL_WEBHOOK_LOG_ACCESSES"
	EnvHealthAddr    = "NULL_WEBHOOK_HEALTH_ADDR"
	EnvMQTTBroker    = "NULL_WEBHOOK_MQTT_BROKER"
	EnvMQTTTopic     = "NULL_WEBHOOK_MQTT_TOPIC"
	EnvMQTTClientID  = "NULL_WEBHOOK_MQTT_CLIENT_ID"
	EnvMQTTUsername  = "NULL_WEBHOOK_MQTT_USERNAME"
	EnvMQTTPassword  = "NULL_WEBHOOK_MQTT_PASSWORD"

	DefaultMQTTTopic = "null-webhook/status"
)

// Config is everything the daemon needs, parsed from flags and environment.
type Config struct {
	Server        server.Config
	SystemdNotify bool
	HealthAddr    string
	MQTT          readiness.MQTTConfig
	ShowVersion   bool
}

// Load parses args (without the program name), applies defaults, and validates.
// getenv supplies fallbacks for values not given on the command line.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	fs, err := newFlagSet(cfg, getenv)
	if err != nil {
		return nil, err
	}

	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return nil, err
	}
	if cfg.ShowVersion {
		return cfg, nil
	}

	listen := getenv(EnvListenAddress)
	switch len(positional) {
	case 0:
	case 1:
		listen = positional[0]
	default:
		return nil, fmt.Errorf("unexpected argument %q", positional[1])
	}
	if listen == "" {
		return nil, fmt.Errorf("listen address is required (argument or %s)", EnvListenAddress)
	}
	addr, err := netip.ParseAddrPort(listen)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	cfg.Server.ListenAddress = addr

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PrintUsage writes the flag summary to w.
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: null-webhook [flags] LISTEN_ADDRESS")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Replies to every HTTP request with an empty 200 response.")
	fmt.Fprintln(w, "")
	fs, _ := newFlagSet(&Config{}, func(string) string { return "" })
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func newFlagSet(cfg *Config, getenv func(string) string) (*flag.FlagSet, error) {
	logAccesses, err := envBool(getenv, EnvLogAccesses)
	if err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("null-webhook", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&cfg.Server.LogAccesses, "log-accesses", logAccesses, "Log all accesses to stdout")
	fs.BoolVar(&cfg.SystemdNotify, "systemd-notify", true, "Send READY=1 to $NOTIFY_SOCKET once listening")
	fs.StringVar(&cfg.HealthAddr, "health-addr", getenv(EnvHealthAddr), "Serve gRPC health on this address (disabled when empty)")
	fs.StringVar(&cfg.MQTT.Broker, "mqtt-broker", getenv(EnvMQTTBroker), "MQTT broker URL for availability messages (disabled when empty)")
	fs.StringVar(&cfg.MQTT.Topic, "mqtt-topic", getenv(EnvMQTTTopic), "MQTT availability topic")
	fs.StringVar(&cfg.MQTT.ClientID, "mqtt-client-id", getenv(EnvMQTTClientID), "MQTT client ID (random when empty)")
	fs.StringVar(&cfg.MQTT.Username, "mqtt-username", getenv(EnvMQTTUsername), "MQTT username")
	cfg.MQTT.Password = getenv(EnvMQTTPassword)
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")
	return fs, nil
}

// parseInterleaved allows flags both before and after positional arguments.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func envBool(getenv func(string) string, key string) (bool, error) {
	raw := getenv(key)
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MQTT.Broker != "" && cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = DefaultMQTTTopic
	}
}

// Validate enforces invariants the flag types cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if !cfg.Server.ListenAddress.IsValid() {
		return errors.New("listen address is required")
	}
	if cfg.HealthAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.HealthAddr); err != nil {
			return fmt.Errorf("health-addr: %w", err)
		}
		if cfg.HealthAddr == cfg.Server.ListenAddress.String() {
			return errors.New("health-addr must differ from the listen address")
		}
	}
	if cfg.MQTT.Broker != "" {
		u, err := url.Parse(cfg.MQTT.Broker)
		if err != nil {
			return fmt.Errorf("mqtt-broker: %w", err)
		}
		switch u.Scheme {
		case "tcp", "ssl", "ws", "wss", "mqtt", "mqtts":
		default:
			return fmt.Errorf("mqtt-broker scheme must be one of tcp, ssl, mqtt, mqtts, ws, wss; got %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("mqtt-broker %q has no host", cfg.MQTT.Broker)
		}
		if cfg.MQTT.Topic == "" {
			return errors.New("mqtt-topic is required when mqtt-broker is set")
		}
	}
	return nil
}
