package config

import (
	"flag"
	"fmt"
)

// parseFlags overrides c from args.
//
//	-d string   database URL (mongodb:// URI or SQLite path)
//	-p int      listening port
//	-e string   runtime mode (development|production)
func parseFlags(c *Config, args []string) error {
	fs := flag.NewFlagSet("lighthouse", flag.ContinueOnError)

	fs.StringVar(&c.DatabaseURL, "d", c.DatabaseURL, "database URL")
	fs.IntVar(&c.Port, "p", c.Port, "port to listen on")
	fs.StringVar(&c.Env, "e", c.Env, "runtime mode")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("error parsing flags: %w", err)
	}
	return nil
}
