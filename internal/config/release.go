// Package config loads the release engine's seed file and watches it for
// hot-reloadable changes.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.internal.example/releng/pkgrelease/internal/task"
)

// ReleaseConfig is the seed file (config.yaml) that bootstraps the release
// task engine: daemon runtime settings plus the initial GlobalConfig and
// Project rows loaded on first run.
type ReleaseConfig struct {
	Database   string `yaml:"database"`    // sqlite file path
	ListenAddr string `yaml:"listen_addr"` // HTTP admin/metrics listener
	Workers    int    `yaml:"workers"`     // scheduler worker pool size

	Global   GlobalConfigSeed `yaml:"global"`
	Projects []ProjectSeed    `yaml:"projects"`
}

// GlobalConfigSeed mirrors task.GlobalConfig's persisted fields, loaded into
// the database singleton on first run only; subsequent edits happen through
// the database, not the file, except for the fields Watch treats as
// hot-reloadable.
type GlobalConfigSeed struct {
	LDAPUsername                 string `yaml:"ldap_username"`
	LDAPPassword                 string `yaml:"ldap_password"`
	ForgeToken                   string `yaml:"forge_token"`
	ForgeUsername                string `yaml:"forge_username"`
	PackageServiceToken           string `yaml:"package_service_token"`
	PackageServiceDefaultBranchID string `yaml:"package_service_default_branch_id"`
	PackageServiceTopicType      string `yaml:"package_service_topic_type"`
	ProxyURL                     string `yaml:"proxy_url"`
	LocalCloneRoot               string `yaml:"local_clone_root"`
	CRPBaseURL                   string `yaml:"crp_base_url"`
	CRPPublicKeyPEM              string `yaml:"crp_public_key_pem"`
	DebEmailName                 string `yaml:"deb_email_name"`
	DebEmailAddress              string `yaml:"deb_email_address"`
}

// ProjectSeed mirrors task.Project's configurable fields.
type ProjectSeed struct {
	Name                string            `yaml:"name"`
	ReviewForgeURL      string            `yaml:"review_forge_url"`
	ReviewForgeBranch   string            `yaml:"review_forge_branch"`
	MirrorForgeURL      string            `yaml:"mirror_forge_url"`
	MirrorForgeBranch   string            `yaml:"mirror_forge_branch"`
	MirrorCloneURL      string            `yaml:"mirror_clone_url"`
	PackageServiceAlias string            `yaml:"package_service_alias"`
	GithubUsername      string            `yaml:"github_username"`
	Tags                map[string]string `yaml:"tags"`
}

// DefaultDatabase and DefaultListenAddr apply when the seed file omits them.
const (
	DefaultDatabase   = "pkgrelease.db"
	DefaultListenAddr = ":8080"
	DefaultWorkers    = 3
)

// LoadReleaseConfig reads and parses a seed file, applying .env overlay
// values first (teacher's style: process environment wins over file
// defaults for secrets).
func LoadReleaseConfig(path string) (*ReleaseConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Note: .env file not loaded: %v\n", err)
	}

	var rc ReleaseConfig
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &rc); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}

	if rc.Database == "" {
		rc.Database = DefaultDatabase
	}
	if rc.ListenAddr == "" {
		rc.ListenAddr = DefaultListenAddr
	}
	if rc.Workers <= 0 {
		rc.Workers = DefaultWorkers
	}
	return &rc, nil
}

// ApplyTo copies non-empty seed fields onto an existing
// GlobalConfig, used the first time the database singleton is created
// lazily on first access.
func (g GlobalConfigSeed) ApplyTo(cfg *task.GlobalConfig) {
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	set(&cfg.LDAPUsername, g.LDAPUsername)
	set(&cfg.LDAPPassword, g.LDAPPassword)
	set(&cfg.ForgeToken, g.ForgeToken)
	set(&cfg.ForgeUsername, g.ForgeUsername)
	set(&cfg.PackageServiceToken, g.PackageServiceToken)
	set(&cfg.PackageServiceDefaultBranchID, g.PackageServiceDefaultBranchID)
	set(&cfg.PackageServiceTopicType, g.PackageServiceTopicType)
	set(&cfg.ProxyURL, g.ProxyURL)
	set(&cfg.LocalCloneRoot, g.LocalCloneRoot)
	set(&cfg.CRPBaseURL, g.CRPBaseURL)
	set(&cfg.CRPPublicKeyPEM, g.CRPPublicKeyPEM)
	set(&cfg.DebEmailName, g.DebEmailName)
	set(&cfg.DebEmailAddress, g.DebEmailAddress)
	cfg.UpdatedAt = time.Now().UTC()
}

// ToProject converts a seed entry into a task.Project ready for
// store.CreateProject, defaulting CloneState to pending.
func (p ProjectSeed) ToProject() *task.Project {
	return &task.Project{
		Name:                p.Name,
		ReviewForgeURL:      p.ReviewForgeURL,
		ReviewForgeBranch:   p.ReviewForgeBranch,
		MirrorForgeURL:      p.MirrorForgeURL,
		MirrorForgeBranch:   p.MirrorForgeBranch,
		MirrorCloneURL:      p.MirrorCloneURL,
		PackageServiceAlias: p.PackageServiceAlias,
		GithubUsername:      p.GithubUsername,
		Tags:                p.Tags,
		CloneState:          task.CloneStatePending,
	}
}

// Seed populates the database singleton and any named projects that do not
// already exist. Existing rows are left untouched; the seed file only ever
// fills gaps.
func Seed(ctx context.Context, rc *ReleaseConfig, store task.Store) error {
	cfg, err := store.GetGlobalConfig(ctx)
	if err != nil {
		return fmt.Errorf("load global config: %w", err)
	}
	if cfg.LocalCloneRoot == "" && cfg.CRPBaseURL == "" && cfg.ForgeUsername == "" {
		rc.Global.ApplyTo(cfg)
		if err := store.SaveGlobalConfig(ctx, cfg); err != nil {
			return fmt.Errorf("save seeded global config: %w", err)
		}
	}

	for _, seed := range rc.Projects {
		if seed.Name == "" {
			continue
		}
		if existing, err := store.GetProjectByName(ctx, seed.Name); err == nil && existing != nil {
			continue
		}
		if err := store.CreateProject(ctx, seed.ToProject()); err != nil {
			return fmt.Errorf("seed project %q: %w", seed.Name, err)
		}
	}
	return nil
}
