// Command meshwire-node is an interactive meshwire peer.
//
// It runs the full protocol stack over a single UDP socket: reliable
// delivery, fragmentation, peer lifecycle with heartbeats and gossip,
// and lobby-style ready/start coordination. Nodes can be discovered
// over mDNS and every protocol event can be captured to a .mwlog file
// for inspection with meshwire-log.
//
// Usage:
//
//	meshwire-node [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-name string          Human-readable node name, shared with peers
//	-port uint            Bind this UDP port at startup (0 = stay unbound)
//	-protocol-log string  Write protocol events to this .mwlog file
//	-advertise            Announce the node over mDNS once bound
//	-debug                Enable debug logging to stderr
//
// Examples:
//
//	# Host a mesh on port 7777 and announce it
//	meshwire-node -name alice -port 7777 -advertise
//
//	# Join interactively, capturing protocol events
//	meshwire-node -name bob -protocol-log bob.mwlog
//
//	# Start from a config file
//	meshwire-node -config node.yaml
//
// Interactive Commands:
//
//	host <port>          - Bind and listen for peers
//	join <host:port>     - Connect to a node
//	discover [seconds]   - Browse for nodes over mDNS
//	peers                - List connected peers
//	send <peer> <text>   - Send text to one peer
//	broadcast <text>     - Send text to every peer
//	ready [on|off]       - Flag readiness for a coordinated start
//	rtt                  - Show smoothed round-trip times
//	whoami               - Show local identity
//	log <file|off>       - Retarget the protocol event log
//	quit                 - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meshwire-protocol/meshwire-go/cmd/meshwire-node/interactive"
	"github.com/meshwire-protocol/meshwire-go/pkg/lobby"
	"github.com/meshwire-protocol/meshwire-go/pkg/persistent"
)

// Config holds the node configuration.
type Config struct {
	ConfigFile  string
	Name        string
	Port        uint
	ProtocolLog string
	Advertise   bool
	Debug       bool
}

// fileConfig is the YAML shape of -config files. Durations are
// strings ("500ms", "5s") because yaml.v3 does not decode
// time.Duration natively.
type fileConfig struct {
	Name              string `yaml:"name"`
	Port              uint16 `yaml:"port"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	LivenessTimeout   string `yaml:"liveness_timeout"`
	ProtocolLog       string `yaml:"protocol_log"`
	Advertise         bool   `yaml:"advertise"`
	Debug             bool   `yaml:"debug"`
}

var config Config

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&config.Name, "name", "", "Human-readable node name, shared with peers")
	flag.UintVar(&config.Port, "port", 0, "Bind this UDP port at startup (0 = stay unbound)")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Write protocol events to this .mwlog file")
	flag.BoolVar(&config.Advertise, "advertise", false, "Announce the node over mDNS once bound")
	flag.BoolVar(&config.Debug, "debug", false, "Enable debug logging to stderr")
}

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	scfg := persistent.DefaultConfig()

	if config.ConfigFile != "" {
		if err := loadConfigFile(config.ConfigFile, &config, &scfg); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
	}
	if config.Port > 65535 {
		log.Fatalf("Invalid configuration: port %d out of range", config.Port)
	}

	scfg.Name = config.Name
	if config.Debug {
		scfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	protocolLog := interactive.NewSwitchableLogger()
	if config.ProtocolLog != "" {
		if err := protocolLog.SwitchTo(config.ProtocolLog); err != nil {
			log.Fatalf("Failed to open protocol log: %v", err)
		}
	}
	scfg.ProtocolLogger = protocolLog

	sock, err := persistent.New(scfg)
	if err != nil {
		log.Fatalf("Failed to create socket: %v", err)
	}

	sess, err := lobby.New(sock, lobby.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	log.Println("meshwire Node")
	log.Println("=============")
	log.Printf("ID: %s", sock.LocalID())
	if config.Name != "" {
		log.Printf("Name: %s", config.Name)
	}
	if config.ProtocolLog != "" {
		log.Printf("Protocol log: %s", config.ProtocolLog)
	}

	if config.Port > 0 {
		if err := sock.Host(uint16(config.Port)); err != nil {
			log.Fatalf("Failed to bind port %d: %v", config.Port, err)
		}
		log.Printf("Listening on %s", sock.LocalAddr())
	}

	node, err := interactive.New(sess, interactive.Options{
		Advertise:   config.Advertise,
		ProtocolLog: protocolLog,
	})
	if err != nil {
		log.Fatalf("Failed to create interactive node: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redirect log output through readline to avoid interfering with input
	log.SetOutput(node.Stdout())

	node.Start(ctx)
	go node.Run(ctx, cancel)

	// Wait for shutdown signal or context cancellation
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		// Context was cancelled (e.g., by the interactive quit command)
	}

	log.Println("Shutting down...")

	cancel()
	node.Stop()
	protocolLog.Disable()

	log.SetOutput(os.Stderr)
	log.Println("Goodbye!")
}

// loadConfigFile folds the YAML config file into the flag config and
// the socket config. Values set on the command line win.
func loadConfigFile(path string, cfg *Config, scfg *persistent.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if fc.Name != "" && cfg.Name == "" {
		cfg.Name = fc.Name
	}
	if fc.Port != 0 && cfg.Port == 0 {
		cfg.Port = uint(fc.Port)
	}
	if fc.ProtocolLog != "" && cfg.ProtocolLog == "" {
		cfg.ProtocolLog = fc.ProtocolLog
	}
	if fc.Advertise {
		cfg.Advertise = true
	}
	if fc.Debug {
		cfg.Debug = true
	}

	if fc.HeartbeatInterval != "" {
		d, err := time.ParseDuration(fc.HeartbeatInterval)
		if err != nil {
			return fmt.Errorf("invalid heartbeat_interval: %w", err)
		}
		scfg.HeartbeatInterval = d
	}
	if fc.LivenessTimeout != "" {
		d, err := time.ParseDuration(fc.LivenessTimeout)
		if err != nil {
			return fmt.Errorf("invalid liveness_timeout: %w", err)
		}
		scfg.LivenessTimeout = d
	}
	return nil
}
