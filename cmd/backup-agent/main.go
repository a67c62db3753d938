package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/agent"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "register" {
		register(os.Args[2:])
		return
	}

	configPath := flag.String("config", defaultConfigPath(), "Agent configuration file")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Token == "" {
		logger.Fatal().Msg("no agent token configured; run 'backup-agent register' first")
	}

	client := agent.NewClient(cfg.ServerURL, cfg.Token, logger)
	daemon := agent.NewDaemon(cfg, client, logger, version)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info().Msg("shutting down agent")
		cancel()
	}()

	if err := daemon.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("agent failed")
	}
}

// register performs the one-time agent registration and prints the token.
// The token is only ever shown here; store it in the config or a token file.
func register(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	serverURL := fs.String("server", "http://127.0.0.1:8090", "Coordination server URL")
	apiKey := fs.String("api-key", os.Getenv("BACKHAUL_API_KEY"), "API key of the owning user")
	name := fs.String("name", "", "Agent name, unique per user (required)")
	platformTag := fs.String("platform", "", "Platform tag (defaults to GOOS/GOARCH)")
	fs.Parse(args)

	if *apiKey == "" || *name == "" {
		fmt.Fprintln(os.Stderr, "error: --api-key (or BACKHAUL_API_KEY) and --name are required")
		fmt.Fprintln(os.Stderr, "usage: backup-agent register --server <url> --api-key <key> --name <name>")
		os.Exit(1)
	}

	logger := zerolog.Nop()
	client := agent.NewClient(*serverURL, "", logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registered, err := client.Register(ctx, *apiKey, *name, *platformTag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: registration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Agent registered successfully.\n\n")
	fmt.Printf("  Name:   %s\n", registered.Agent.Name)
	fmt.Printf("  ID:     %s\n", registered.Agent.ID)
	fmt.Printf("  Token:  %s\n\n", registered.Token)
	fmt.Printf("Save this token - it will not be shown again.\n")
}

func defaultConfigPath() string {
	if v := os.Getenv("BACKHAUL_AGENT_CONFIG"); v != "" {
		return v
	}
	return "/etc/backhaul/agent.yaml"
}
