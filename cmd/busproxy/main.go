// Command busproxy runs the ZeroMQ forwarder shared by chatd instances
// started with CHATD_BUS=zmq.
package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"

	"chatd/bus"
)

type proxyConfig struct {
	Frontend string `env:"CHATD_ZMQ_PUB" envDefault:"tcp://127.0.0.1:5559"`
	Backend  string `env:"CHATD_ZMQ_SUB" envDefault:"tcp://127.0.0.1:5560"`
}

func main() {
	log.SetPrefix("[BUSPROXY] ")

	var cfg proxyConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse env: %v", err)
	}
	fs := flag.NewFlagSet("busproxy", flag.ExitOnError)
	fs.StringVar(&cfg.Frontend, "frontend", cfg.Frontend, "address publishers connect to")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "address subscribers connect to")
	fs.Parse(os.Args[1:])

	// instances connect to tcp://host:port; the forwarder binds every interface
	frontend := bindAddr(cfg.Frontend)
	backend := bindAddr(cfg.Backend)
	if err := bus.Proxy(frontend, backend); err != nil {
		log.Fatal(err)
	}
}

func bindAddr(addr string) string {
	scheme, rest, ok := strings.Cut(addr, "://")
	if !ok || scheme != "tcp" {
		return addr
	}
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		return "tcp://*" + rest[i:]
	}
	return addr
}
