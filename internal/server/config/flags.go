package config

import (
	"flag"
	"os"
	"time"

	"github.com/Tarcisio20/meu-gerente/internal/flagx"
)

// parseFlags overlays the flags below. Only these are picked out of
// os.Args, so -c/-config and foreign flags do not trip the parser.
//
//	-p string   API port
//	-d string   PostgreSQL DSN
//	-s string   token signing secret
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-q string   redis URL
//	-l string   log level
//	-b string   S3 bucket for audit archives
//	-e string   S3 base endpoint
//	-x string   edge proxy listen address
//	-f string   frontend upstream URL
func parseFlags(c *Config) error {
	args := flagx.FilterArgs(os.Args[1:], "p", "d", "s", "t", "r", "q", "l", "b", "e", "x", "f")

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&c.Port, "p", c.Port, "API port")
	fs.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "database DSN")
	fs.StringVar(&c.SecretKey, "s", c.SecretKey, "token signing secret")

	access := fs.Int("t", int(c.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refresh := fs.Int("r", int(c.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&c.RedisURL, "q", c.RedisURL, "redis URL")
	fs.StringVar(&c.LogLevel, "l", c.LogLevel, "log level")
	fs.StringVar(&c.S3Bucket, "b", c.S3Bucket, "S3 bucket")
	fs.StringVar(&c.S3BaseEndpoint, "e", c.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&c.EdgeAddress, "x", c.EdgeAddress, "edge proxy address")
	fs.StringVar(&c.FrontendUpstream, "f", c.FrontendUpstream, "frontend upstream URL")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// Only touch durations that were given, so sub-minute values from the
	// file or environment survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			c.AccessTokenValidityDuration = time.Duration(*access) * time.Minute
		case "r":
			c.RefreshTokenValidityDuration = time.Duration(*refresh) * time.Minute
		}
	})
	return nil
}
