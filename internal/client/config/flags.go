package config

import (
	"flag"

	"github.com/dmitrijs2005/storefront/internal/flagx"
)

// parseFlags overlays the short flags it knows about onto cfg:
//
//	-u string     storefront HTTP API base URL
//	-g string     gRPC address of collaborator services
//	-f string     path of the local SQLite credentials database
//	-T duration   refresh timeout ("10s")
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-u", "-g", "-f", "-T"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.StringVar(&cfg.ServerURL, "u", cfg.ServerURL, "storefront API base URL")
	fs.StringVar(&cfg.GRPCAddr, "g", cfg.GRPCAddr, "gRPC address")
	fs.StringVar(&cfg.DBPath, "f", cfg.DBPath, "credentials database path")
	fs.DurationVar(&cfg.RefreshTimeout, "T", cfg.RefreshTimeout, "refresh timeout")

	return fs.Parse(args)
}
