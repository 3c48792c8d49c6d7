package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.internal.example/releng/pkgrelease/internal/foundation"
	"git.internal.example/releng/pkgrelease/internal/task"
)

func TestLoadReleaseConfig_AppliesDefaultsWhenFileMissing(t *testing.T) {
	rc, err := LoadReleaseConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultDatabase, rc.Database)
	require.Equal(t, DefaultListenAddr, rc.ListenAddr)
	require.Equal(t, DefaultWorkers, rc.Workers)
}

func TestLoadReleaseConfig_ParsesSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: custom.db
listen_addr: ":9090"
workers: 7
global:
  forge_username: bot
  proxy_url: http://proxy.internal:3128
projects:
  - name: widget-tools
    review_forge_url: https://pf/owner/widget-tools
`), 0o644))

	rc, err := LoadReleaseConfig(path)
	require.NoError(t, err)
	require.Equal(t, "custom.db", rc.Database)
	require.Equal(t, ":9090", rc.ListenAddr)
	require.Equal(t, 7, rc.Workers)
	require.Equal(t, "bot", rc.Global.ForgeUsername)
	require.Len(t, rc.Projects, 1)
	require.Equal(t, "widget-tools", rc.Projects[0].Name)
}

func TestGlobalConfigSeed_ApplyToOnlySetsNonEmptyFields(t *testing.T) {
	cfg := &task.GlobalConfig{ForgeUsername: "existing"}
	seed := GlobalConfigSeed{ForgeUsername: "", ProxyURL: "http://proxy"}
	seed.ApplyTo(cfg)
	require.Equal(t, "existing", cfg.ForgeUsername)
	require.Equal(t, "http://proxy", cfg.ProxyURL)
}

type fakeStore struct {
	task.Store
	global   *task.GlobalConfig
	projects map[string]*task.Project
}

func newFakeStore() *fakeStore {
	return &fakeStore{global: &task.GlobalConfig{}, projects: map[string]*task.Project{}}
}

func (f *fakeStore) GetGlobalConfig(context.Context) (*task.GlobalConfig, error) { return f.global, nil }
func (f *fakeStore) SaveGlobalConfig(_ context.Context, cfg *task.GlobalConfig) error {
	f.global = cfg
	return nil
}
func (f *fakeStore) GetProjectByName(_ context.Context, name string) (*task.Project, error) {
	if p, ok := f.projects[name]; ok {
		return p, nil
	}
	return nil, foundation.NotFoundError("project not found").Build()
}
func (f *fakeStore) CreateProject(_ context.Context, p *task.Project) error {
	f.projects[p.Name] = p
	return nil
}

func TestSeed_PopulatesGlobalConfigAndProjectsOnlyWhenAbsent(t *testing.T) {
	store := newFakeStore()
	rc := &ReleaseConfig{
		Global:   GlobalConfigSeed{ForgeUsername: "bot", CRPBaseURL: "https://crp.example"},
		Projects: []ProjectSeed{{Name: "widget-tools"}},
	}

	require.NoError(t, Seed(context.Background(), rc, store))
	require.Equal(t, "bot", store.global.ForgeUsername)
	require.Contains(t, store.projects, "widget-tools")

	// Re-seeding with different values must not clobber the existing project.
	rc.Projects[0].ReviewForgeURL = "https://pf/changed"
	require.NoError(t, Seed(context.Background(), rc, store))
	require.Empty(t, store.projects["widget-tools"].ReviewForgeURL)
}
