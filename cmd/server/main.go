package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/parlorchat/parlor/pkg/credstore"
	"github.com/parlorchat/parlor/pkg/logging"
	"github.com/parlorchat/parlor/pkg/server"
	"github.com/parlorchat/parlor/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	configFile := flag.String("config", "", "YAML config file (flags override file values)")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "TCP bind address")
	flag.StringVar(&cfg.WSAddr, "ws", "", "HTTP bind address for the WebSocket transport (empty to disable)")
	flag.StringVar(&cfg.MetricsAddr, "metrics", "", "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "Maximum concurrent client connections")
	flag.StringVar(&cfg.UsersFile, "users", cfg.UsersFile, "Flat-file credential store path")
	flag.StringVar(&cfg.DBPath, "db", "", "SQLite credential store path (overrides -users)")
	flag.BoolVar(&cfg.ExportUsers, "export-users", false, "Export all registered users as YAML and exit")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: "+logging.LevelNames())
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	flag.Parse()

	if *showVersion {
		fmt.Println("parlor-server " + version.Full())
		return
	}

	// File config fills anything the flags left at default.
	if *configFile != "" {
		fileCfg, err := server.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid config file: %v\n", err)
			os.Exit(1)
		}
		base := server.DefaultConfig()
		if cfg.ListenAddr == base.ListenAddr {
			cfg.ListenAddr = fileCfg.ListenAddr
		}
		if cfg.WSAddr == "" {
			cfg.WSAddr = fileCfg.WSAddr
		}
		if cfg.MetricsAddr == "" {
			cfg.MetricsAddr = fileCfg.MetricsAddr
		}
		if cfg.MaxClients == base.MaxClients {
			cfg.MaxClients = fileCfg.MaxClients
		}
		if cfg.UsersFile == base.UsersFile {
			cfg.UsersFile = fileCfg.UsersFile
		}
		if cfg.DBPath == "" {
			cfg.DBPath = fileCfg.DBPath
		}
		if cfg.LogLevel == base.LogLevel {
			cfg.LogLevel = fileCfg.LogLevel
		}
		if cfg.LogFormat == base.LogFormat {
			cfg.LogFormat = fileCfg.LogFormat
		}
	}

	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	st, err := openStore(cfg)
	if err != nil {
		slog.Error("open credential store", "err", err)
		os.Exit(1)
	}

	// Handle export command (run and exit)
	if cfg.ExportUsers {
		defer func() { _ = st.Close() }()
		data, err := server.ExportUsersYAML(st)
		if err != nil {
			slog.Error("export users", "err", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
		return
	}

	srv := server.New(cfg, server.Dependencies{Creds: st})
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

// openStore picks the credential backend: SQLite when -db is set, the
// flat file otherwise.
func openStore(cfg server.Config) (credstore.Store, error) {
	if cfg.DBPath != "" {
		return credstore.OpenSQL(cfg.DBPath)
	}
	return credstore.OpenFile(cfg.UsersFile), nil
}
