// Command relengctl runs and administers the Debian package release task
// engine: a daemon mode (`serve`) plus CLI commands for managing projects
// and tasks.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.internal.example/releng/pkgrelease/internal/cli"
	"git.internal.example/releng/pkgrelease/internal/version"
)

func main() {
	c := &cli.CLI{}
	parser := kong.Parse(c,
		kong.Name("relengctl"),
		kong.Description("Debian package release task engine: daemon and operator CLI."),
		kong.Vars{"version": version.Version},
	)

	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	global := &cli.Global{Context: context.Background()}
	if err := parser.Run(global, c); err != nil {
		parser.FatalIfErrorf(err)
	}
}
