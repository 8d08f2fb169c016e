// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/srcquery/internal/logger"
	"github.com/woozymasta/srcquery/internal/vars"
)

// MinBufferSize is the largest datagram Source servers send.
const MinBufferSize = 1400

// Command names.
const (
	CommandInfo    = "info"
	CommandPlayers = "players"
	CommandRules   = "rules"
	CommandServe   = "serve"
	CommandCheck   = "check"
)

var (
	// ErrNoCommand is returned when neither a command nor --version was given.
	ErrNoCommand = errors.New("no command specified, expected one of: info, players, rules, serve, check")

	// ErrMissingAuthToken is returned when serve runs without an admin token.
	ErrMissingAuthToken = errors.New("required flag `-t, --auth-token' or environment variable `SRCQUERY_AUTH_TOKEN` was not specified")
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	A2S    A2S           `group:"A2S Options" namespace:"a2s" env-namespace:"SRCQUERY_A2S"`
	Logger logger.Config `group:"Logger Options" namespace:"log" env-namespace:"SRCQUERY_LOG"`

	Info    Query `command:"info" description:"Query server information (A2S_INFO)"`
	Players Query `command:"players" description:"Query connected players (A2S_PLAYER)"`
	Rules   Query `command:"rules" description:"Query server rules (A2S_RULES)"`
	Serve   Serve `command:"serve" description:"Run the HTTP query proxy and server registry"`
	Check   Check `command:"check" description:"Re-query registered servers and refresh the registry"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`

	// Command is the name of the selected subcommand.
	Command string `no-flag:"true"`
}

// A2S holds Source Query protocol configuration.
type A2S struct {
	// betteralign:ignore

	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Wait for each response datagram" default:"5s"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Largest accepted response datagram" default:"1400"`
}

// Query holds the target of a one-shot query command.
type Query struct {
	// betteralign:ignore

	Host   string `short:"H" long:"host" env:"SRCQUERY_HOST" description:"IP address or host name of the server" required:"true"`
	Port   int    `short:"p" long:"port" env:"SRCQUERY_PORT" description:"Query port of the server" default:"27015"`
	Format string `short:"f" long:"format" env:"SRCQUERY_FORMAT" description:"Output format" choice:"json" choice:"table" default:"json"`
}

// Serve holds the HTTP service configuration.
type Serve struct {
	// betteralign:ignore

	Server    Server    `group:"Server Options" env-namespace:"SRCQUERY"`
	Storage   Storage   `group:"Storage Options" namespace:"db" env-namespace:"SRCQUERY_DB"`
	GeoIP     GeoIP     `group:"GeoIP Options" namespace:"geoip" env-namespace:"SRCQUERY_GEOIP"`
	RateLimit RateLimit `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"SRCQUERY_RATE_LIMIT"`
}

// Check holds the registry refresh configuration.
type Check struct {
	// betteralign:ignore

	Storage Storage `group:"Storage Options" namespace:"db" env-namespace:"SRCQUERY_DB"`
	Refresh Refresh `group:"Refresh Options" namespace:"refresh" env-namespace:"SRCQUERY_REFRESH"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address      string   `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken    string   `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token"`
	AllowedGames []string `short:"g" long:"allowed-game" env:"ALLOWED_GAMES" description:"Game folders accepted by announce (all if empty)" env-delim:","`
	MaxBodySize  int64    `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"512"`
	QueueSize    int      `long:"queue-size" env:"QUEUE_SIZE" description:"Pending announce queue length" default:"1000"`
	Workers      int      `long:"workers" env:"WORKERS" description:"Announce workers" default:"10"`
	TrustProxy   bool     `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path string `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"srcquery.db"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `long:"path" env:"PATH" description:"Path to MMDB file" default:"srcquery.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
	Disable  bool          `long:"disable" env:"DISABLE" description:"Skip country detection"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Hard IP limit: requests count" default:"8"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Hard IP limit: window duration" default:"1m"`
	SoftLimitDur   time.Duration `long:"soft" env:"SOFT" description:"Soft limit: ignore announce if seen within duration" default:"5m"`
}

// Refresh holds options of the check command.
type Refresh struct {
	// betteralign:ignore

	Game       string  `long:"game" env:"GAME" description:"Only servers of this game folder"`
	OnlyEmpty  bool    `long:"only-empty" env:"ONLY_EMPTY" description:"Only servers without A2S data"`
	Prune      bool    `long:"prune-unreachable" env:"PRUNE_UNREACHABLE" description:"Delete servers that do not answer"`
	PruneEmpty bool    `long:"prune-empty" env:"PRUNE_EMPTY" description:"Only delete servers without A2S data, no queries are sent"`
	Workers    int     `long:"workers" env:"WORKERS" description:"Concurrent queries" default:"10"`
	Rate       float64 `long:"rate" env:"RATE" description:"Queries per second across all workers" default:"20"`
}

// Target returns the query options of the active one-shot command.
func (c *Config) Target() Query {
	switch c.Command {
	case CommandPlayers:
		return c.Players
	case CommandRules:
		return c.Rules
	default:
		return c.Info
	}
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := parse(os.Args[1:], flags.Default)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return cfg
}

// ParseArgs parses args without printing or exiting.
func ParseArgs(args []string) (*Config, error) {
	return parse(args, flags.HelpFlag|flags.PassDoubleDash)
}

func parse(args []string, options flags.Options) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, options)
	parser.NamespaceDelimiter = "-"
	parser.SubcommandsOptional = true

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if parser.Active != nil {
		cfg.Command = parser.Active.Name
	}

	if cfg.Version {
		return &cfg, nil
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Command == "" {
		return ErrNoCommand
	}

	if c.A2S.BufferSize < MinBufferSize {
		return fmt.Errorf("buffer size %d is below the %d bytes a server may send in one datagram", c.A2S.BufferSize, MinBufferSize)
	}

	switch c.Command {

	case CommandInfo, CommandPlayers, CommandRules:
		if q := c.Target(); q.Port <= 0 || q.Port > 65535 {
			return fmt.Errorf("invalid port %d", q.Port)
		}

	case CommandServe:
		if c.Serve.Server.AuthToken == "" {
			return ErrMissingAuthToken
		}

	case CommandCheck:
		if c.Check.Refresh.Workers <= 0 {
			return fmt.Errorf("invalid workers count %d", c.Check.Refresh.Workers)
		}
	}

	return nil
}
