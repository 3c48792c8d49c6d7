// Package cli defines the kong command tree for relengctl: project and task
// management subcommands plus the scheduler daemon.
package cli

import (
	"context"
	"fmt"

	"github.com/alecthomas/kong"

	"git.internal.example/releng/pkgrelease/internal/config"
	"git.internal.example/releng/pkgrelease/internal/task"
)

// CLI is the root command definition and global flags.
type CLI struct {
	Config  string           `short:"c" help:"Seed/bootstrap configuration file path" default:"config.yaml"`
	DB      string           `help:"Override the sqlite database path from the config file"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve   ServeCmd   `cmd:"" help:"Run the scheduler daemon against the configured projects"`
	Project ProjectCmd `cmd:"" help:"Manage tracked projects"`
	Task    TaskCmd    `cmd:"" help:"Manage release tasks"`
	Config_ ConfigCmd  `cmd:"config" help:"Inspect the effective configuration"`
}

// Global is shared state built once in main and bound into every command's Run.
type Global struct {
	Context context.Context
}

// bootstrap loads the seed file and opens the database; every subcommand
// calls it independently rather than sharing one pre-built object, so each
// kong command stays independently testable.
func bootstrap(root *CLI) (*config.ReleaseConfig, task.Store, error) {
	rc, err := config.LoadReleaseConfig(root.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if root.DB != "" {
		rc.Database = root.DB
	}
	store, err := task.NewSQLiteStore(rc.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", rc.Database, err)
	}
	if err := config.Seed(context.Background(), rc, store); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("seed database: %w", err)
	}
	return rc, store, nil
}

// ConfigCmd implements `config show`.
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration"`
}

// ConfigShowCmd prints the resolved seed configuration and the persisted
// GlobalConfig singleton, redacting credential fields.
type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(_ *Global, root *CLI) error {
	rc, store, err := bootstrap(root)
	if err != nil {
		return err
	}
	defer store.Close()

	cfg, err := store.GetGlobalConfig(context.Background())
	if err != nil {
		return fmt.Errorf("load global config: %w", err)
	}

	fmt.Printf("database:              %s\n", rc.Database)
	fmt.Printf("listen_addr:           %s\n", rc.ListenAddr)
	fmt.Printf("workers:               %d\n", rc.Workers)
	fmt.Printf("forge_username:        %s\n", cfg.ForgeUsername)
	fmt.Printf("local_clone_root:      %s\n", cfg.LocalCloneRoot)
	fmt.Printf("crp_base_url:          %s\n", cfg.CRPBaseURL)
	fmt.Printf("package_service_topic: %s\n", cfg.PackageServiceTopicType)
	fmt.Printf("proxy_url:             %s\n", cfg.ProxyURL)
	fmt.Printf("deb_email:             %s\n", cfg.DebEmail())
	fmt.Printf("ldap_username:         %s\n", redact(cfg.LDAPUsername))
	fmt.Printf("ldap_password:         %s\n", redactSecret(cfg.LDAPPassword))
	fmt.Printf("forge_token:           %s\n", redactSecret(cfg.ForgeToken))
	fmt.Printf("package_service_token: %s\n", redactSecret(cfg.PackageServiceToken))
	return nil
}

func redact(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func redactSecret(s string) string {
	if s == "" {
		return "(unset)"
	}
	return "********"
}
