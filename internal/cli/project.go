package cli

import (
	"context"
	"fmt"
	"net/url"

	"git.internal.example/releng/pkgrelease/internal/git"
	"git.internal.example/releng/pkgrelease/internal/task"
)

// ProjectCmd groups project management subcommands.
type ProjectCmd struct {
	Add     ProjectAddCmd     `cmd:"" help:"Register a project to track"`
	List    ProjectListCmd    `cmd:"" help:"List tracked projects"`
	Remove  ProjectRemoveCmd  `cmd:"" help:"Stop tracking a project"`
	Reclone ProjectRecloneCmd `cmd:"" help:"Re-clone a project's working tree from scratch"`
}

// ProjectAddCmd implements `project add`.
type ProjectAddCmd struct {
	Name              string `arg:"" help:"Unique project name"`
	ReviewForgeURL    string `name:"review-forge-url" help:"Public forge repository URL"`
	ReviewForgeBranch string `name:"review-forge-branch" help:"Public forge branch"`
	MirrorForgeURL    string `name:"mirror-forge-url" help:"Internal mirror project identifier"`
	MirrorForgeBranch string `name:"mirror-forge-branch" help:"Internal mirror branch"`
	MirrorCloneURL    string `name:"mirror-clone-url" help:"Internal mirror clone URL"`
	Alias             string `name:"alias" help:"package-service alias override (defaults to {name}-v25)"`
}

func (c *ProjectAddCmd) Run(_ *Global, root *CLI) error {
	_, store, err := bootstrap(root)
	if err != nil {
		return err
	}
	defer store.Close()

	p := &task.Project{
		Name:                c.Name,
		ReviewForgeURL:      c.ReviewForgeURL,
		ReviewForgeBranch:   c.ReviewForgeBranch,
		MirrorForgeURL:      c.MirrorForgeURL,
		MirrorForgeBranch:   c.MirrorForgeBranch,
		MirrorCloneURL:      c.MirrorCloneURL,
		PackageServiceAlias: c.Alias,
		CloneState:          task.CloneStatePending,
	}
	if err := store.CreateProject(context.Background(), p); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	fmt.Printf("project %q created (id=%s)\n", p.Name, p.ID)
	return nil
}

// ProjectListCmd implements `project list`.
type ProjectListCmd struct{}

func (c *ProjectListCmd) Run(_ *Global, root *CLI) error {
	_, store, err := bootstrap(root)
	if err != nil {
		return err
	}
	defer store.Close()

	projects, err := store.ListProjects(context.Background(), task.ProjectFilter{})
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	for _, p := range projects {
		fmt.Printf("%-8s %-24s state=%-8s review=%v mirror=%v\n", p.ID, p.Name, p.CloneState, p.HasReviewForge(), p.HasMirrorForge())
	}
	return nil
}

// ProjectRemoveCmd implements `project remove`.
type ProjectRemoveCmd struct {
	Name string `arg:"" help:"Project name to remove"`
}

func (c *ProjectRemoveCmd) Run(_ *Global, root *CLI) error {
	_, store, err := bootstrap(root)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.GetProjectByName(context.Background(), c.Name)
	if err != nil {
		return fmt.Errorf("find project: %w", err)
	}
	if err := store.DeleteProject(context.Background(), p.ID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	fmt.Printf("project %q removed\n", c.Name)
	return nil
}

// ProjectRecloneCmd implements `project reclone`: discards the on-disk
// working tree and clones it fresh from the configured remote, for
// recovering from a corrupted clone.
type ProjectRecloneCmd struct {
	Name string `arg:"" help:"Project name to re-clone"`
}

func (c *ProjectRecloneCmd) Run(_ *Global, root *CLI) error {
	rc, store, err := bootstrap(root)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	p, err := store.GetProjectByName(ctx, c.Name)
	if err != nil {
		return fmt.Errorf("find project: %w", err)
	}

	cfg, err := store.GetGlobalConfig(ctx)
	if err != nil {
		return fmt.Errorf("load global config: %w", err)
	}
	cloneRoot := cfg.LocalCloneRoot
	if cloneRoot == "" {
		cloneRoot = rc.Database + ".clones"
	}

	repos := git.NewRepositoryService(cloneRoot, cfg.ProxyURL, reviewForgeHost(p.ReviewForgeURL))
	url := p.ReviewForgeURL
	branch := p.ReviewForgeBranch
	if url == "" {
		url = p.MirrorCloneURL
		branch = p.MirrorForgeBranch
	}

	p.CloneState = task.CloneStateCloning
	_ = store.UpdateProject(ctx, p)

	path, err := repos.Clone(url, branch, p.Name)
	if err != nil {
		p.CloneState = task.CloneStateError
		p.CloneError = err.Error()
		_ = store.UpdateProject(ctx, p)
		return fmt.Errorf("clone project: %w", err)
	}

	p.ClonePath = path
	p.CloneState = task.CloneStateReady
	p.CloneError = ""
	if err := store.UpdateProject(ctx, p); err != nil {
		return fmt.Errorf("update project after clone: %w", err)
	}
	fmt.Printf("project %q re-cloned at %s\n", p.Name, path)
	return nil
}

func reviewForgeHost(reviewForgeURL string) string {
	u, err := url.Parse(reviewForgeURL)
	if err != nil {
		return ""
	}
	return u.Host
}
