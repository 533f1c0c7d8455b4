package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/KevoDB/wtdescent/pkg/common/log"
	"github.com/KevoDB/wtdescent/pkg/config"
	"github.com/KevoDB/wtdescent/pkg/telemetry"
)

const version = "0.3.0"

// Options holds the command line configuration
type Options struct {
	ConfigPath string
	ServerMode bool
	ListenAddr string
	TreePath   string
	Verify     bool
	LogLevel   string
	LogFile    string
	LogJSON    bool
	TraceCodec string

	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string
	TLSCAFile   string
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "gen" {
		if err := runGen(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	opts := parseFlags()

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	log.SetDefaultLogger(logger)

	cfg.Telemetry.LoadFromEnv()
	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting telemetry: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown: %v", err)
		}
	}()

	a, err := newApp(cfg, logger, tel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	if cfg.TreePath != "" {
		if err := a.open(cfg.TreePath); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening tree file: %v\n", err)
			os.Exit(1)
		}
	}

	if opts.ServerMode {
		if a.file == nil {
			fmt.Fprintf(os.Stderr, "Error: server mode requires a tree file\n")
			os.Exit(1)
		}
		if err := runServer(a, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error serving: %v\n", err)
			os.Exit(1)
		}
		return
	}

	runInteractive(a)
}

func parseFlags() Options {
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "wtdescent - walk row-store B-tree files from root to leaf\n\n")
		fmt.Fprintf(out, "Usage:\n")
		fmt.Fprintf(out, "  wtdescent [options] [tree_file]\n")
		fmt.Fprintf(out, "  wtdescent gen -out FILE [-keys N]\n\n")
		fmt.Fprintf(out, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(out, "\nFor shell commands, start wtdescent and type .help\n")
	}

	var opts Options
	flag.StringVar(&opts.ConfigPath, "config", "", "JSON config file")
	flag.BoolVar(&opts.ServerMode, "server", false, "Run the descent service instead of the shell")
	flag.StringVar(&opts.ListenAddr, "address", "", "Address to listen on in server mode")
	flag.BoolVar(&opts.Verify, "verify", false, "Verify page checksums on read")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	flag.StringVar(&opts.LogFile, "log-file", "", "Write logs to a rotated file")
	flag.BoolVar(&opts.LogJSON, "log-json", false, "Write logs as JSON")
	flag.StringVar(&opts.TraceCodec, "trace-codec", "", "Trace bundle compression: none, zstd or snappy")

	flag.BoolVar(&opts.TLSEnabled, "tls", false, "Enable TLS in server mode")
	flag.StringVar(&opts.TLSCertFile, "cert", "", "TLS certificate file path")
	flag.StringVar(&opts.TLSKeyFile, "key", "", "TLS private key file path")
	flag.StringVar(&opts.TLSCAFile, "ca", "", "TLS CA certificate file for client verification")

	flag.Parse()
	if flag.NArg() > 0 {
		opts.TreePath = flag.Arg(0)
	}
	return opts
}

// loadConfig reads the config file, if any, and applies flag overrides
func loadConfig(opts Options) (*config.Config, error) {
	cfg := config.NewDefaultConfig(opts.TreePath)
	if opts.ConfigPath != "" {
		loaded, err := config.LoadConfig(opts.ConfigPath)
		if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
			return nil, err
		}
		if loaded != nil {
			cfg = loaded
		}
	}

	cfg.Update(func(c *config.Config) {
		if opts.TreePath != "" {
			c.TreePath = opts.TreePath
		}
		if opts.ListenAddr != "" {
			c.ListenAddress = opts.ListenAddr
		}
		if opts.Verify {
			c.VerifyChecksums = true
		}
		if opts.LogLevel != "" {
			c.LogLevel = opts.LogLevel
		}
		if opts.LogFile != "" {
			c.LogFile = opts.LogFile
		}
		if opts.LogJSON {
			c.LogJSON = true
		}
		if opts.TraceCodec != "" {
			c.TraceCodec = opts.TraceCodec
		}
	})

	// The shell can start without a tree and open one later.
	if cfg.TreePath == "" {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*log.ZapLogger, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return log.NewZapLogger(log.ZapOptions{
		Level:      level,
		JSON:       cfg.LogJSON,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}), nil
}
