package config

import (
	"flag"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Bus backends selectable with CHATD_BUS.
const (
	BusNone = "none"
	BusNATS = "nats"
	BusZMQ  = "zmq"
)

type Config struct {
	Addr            string        `env:"CHATD_ADDR" envDefault:"127.0.0.1:6000"`
	DBPath          string        `env:"CHATD_DB_PATH" envDefault:"chatd.db"`
	ReadTimeout     time.Duration `env:"CHATD_READ_TIMEOUT" envDefault:"0s"` // 0 disables the idle timeout
	WriteTimeout    time.Duration `env:"CHATD_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"CHATD_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	MaxLineSize     int           `env:"CHATD_MAX_LINE_BYTES" envDefault:"65536"`

	Bus     string `env:"CHATD_BUS" envDefault:"none"`
	NATSURL string `env:"CHATD_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	ZMQPub  string `env:"CHATD_ZMQ_PUB" envDefault:"tcp://127.0.0.1:5559"`
	ZMQSub  string `env:"CHATD_ZMQ_SUB" envDefault:"tcp://127.0.0.1:5560"`
}

// Load reads the environment, then lets flags override it. Two positional
// arguments are taken as the listen ip and port:
//
//	chatd 127.0.0.1 6000
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("chatd", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path")
	fs.StringVar(&cfg.Bus, "bus", cfg.Bus, "presence bus: none, nats or zmq")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch rest := fs.Args(); len(rest) {
	case 0:
	case 2:
		if _, err := strconv.ParseUint(rest[1], 10, 16); err != nil {
			return nil, fmt.Errorf("invalid port %q", rest[1])
		}
		cfg.Addr = net.JoinHostPort(rest[0], rest[1])
	default:
		return nil, fmt.Errorf("usage: chatd [flags] [ip port]")
	}

	switch cfg.Bus {
	case BusNone, BusNATS, BusZMQ:
	default:
		return nil, fmt.Errorf("unknown bus %q", cfg.Bus)
	}
	return cfg, nil
}
