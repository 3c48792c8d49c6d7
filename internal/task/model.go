// Package task defines the persistent data model for the release task engine:
// projects, the global configuration singleton, tasks and their steps.
package task

import "time"

// CloneState is the lifecycle of a project's on-disk working tree.
type CloneState string

const (
	CloneStatePending CloneState = "pending"
	CloneStateCloning CloneState = "cloning"
	CloneStateReady   CloneState = "ready"
	CloneStateError   CloneState = "error"
)

// Project is a tracked repository taken through the packaging pipeline.
type Project struct {
	ID                 string
	Name                string // unique
	ReviewForgeURL      string
	ReviewForgeBranch    string
	MirrorForgeURL       string
	MirrorForgeBranch    string
	MirrorCloneURL       string
	PackageServiceAlias string // defaults to "{name}-v25"
	ClonePath           string
	CloneState          CloneState
	CloneError          string
	LastKnownHead       string
	GithubUsername      string            // per-project override, falls back to GlobalConfig.ForgeUsername
	Tags                map[string]string // free-form operator annotations
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasReviewForge reports whether the project is configured against the public forge.
func (p *Project) HasReviewForge() bool { return p.ReviewForgeURL != "" }

// HasMirrorForge reports whether the project is configured against the internal mirror.
func (p *Project) HasMirrorForge() bool { return p.MirrorForgeURL != "" }

// EffectiveAlias returns the package-service alias, defaulting to "{name}-v25".
func (p *Project) EffectiveAlias() string {
	if p.PackageServiceAlias != "" {
		return p.PackageServiceAlias
	}
	return p.Name + "-v25"
}

// GlobalConfig is the process-wide singleton (id=1) holding credential
// material and defaults consumed by every other component.
type GlobalConfig struct {
	ID int // always 1

	LDAPUsername string
	LDAPPassword string

	ForgeToken    string
	ForgeUsername string

	PackageServiceToken      string
	PackageServiceDefaultBranchID string
	PackageServiceTopicType  string

	ProxyURL string

	LocalCloneRoot string

	// Supplemented fields (original_source/config.py, app/models/config.py).
	CRPBaseURL      string
	CRPPublicKeyPEM string
	DebEmailName    string
	DebEmailAddress string

	UpdatedAt time.Time
}

// DebEmail renders the DEBEMAIL environment value the way the original
// concatenates the two halves.
func (g *GlobalConfig) DebEmail() string {
	if g.DebEmailName == "" && g.DebEmailAddress == "" {
		return ""
	}
	return g.DebEmailName + " <" + g.DebEmailAddress + ">"
}

// Mode selects which step catalog a task runs.
type Mode string

const (
	ModeNormal        Mode = "normal"
	ModeChangelogOnly Mode = "changelog_only"
	ModeCRPOnly       Mode = "crp_only"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusSuccess   TaskStatus = "success"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status cannot be transitioned out of without a retry.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Task is one packaging pipeline execution against a Project.
type Task struct {
	ID                string
	ProjectID         string
	ProjectName       string // denormalized, survives project deletion
	Mode              Mode
	Version           string
	Architectures     []string
	TopicID           string
	TopicName         string
	StartHead         string
	Status            TaskStatus
	CurrentStepIndex  int
	Error             string
	ReviewBranch      string
	ReviewNumber      int
	ReviewURL         string
	ReviewState       string
	MirrorSynced      bool
	MirrorHead        string
	BuildID           string
	BuildState        string
	BuildURL          string
	CreatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
}

// StepStatus is the lifecycle state of a Step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusCancelled StepStatus = "cancelled"
)

// Step is one entry in a Task's pipeline.
type Step struct {
	ID          string
	TaskID      string
	Order       int // 0-based, dense, unique within a task
	Name        string
	Description string
	Status      StepStatus
	Log         string
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
}

// StepName enumerates the ten catalog step implementations.
type StepName string

const (
	StepCheckEnvironment  StepName = "check_environment"
	StepPullLatest        StepName = "pull_latest"
	StepGenerateChangelog StepName = "generate_changelog"
	StepCommit            StepName = "commit"
	StepPush              StepName = "push"
	StepCreateReview      StepName = "create_review"
	StepMonitorReview     StepName = "monitor_review"
	StepWaitMirrorSync    StepName = "wait_for_mirror_sync"
	StepDispatchBuild     StepName = "dispatch_build"
	StepMonitorBuild      StepName = "monitor_build"
)

// catalog maps each mode to its ordered, dense step list. Built at compile
// time; the persisted Step rows are a display/status aid only, resolved
// dynamically against this table rather than a fixed switch statement.
var catalog = map[Mode][]StepName{
	ModeNormal: {
		StepCheckEnvironment, StepPullLatest, StepGenerateChangelog, StepCommit,
		StepPush, StepCreateReview, StepMonitorReview, StepWaitMirrorSync,
		StepDispatchBuild, StepMonitorBuild,
	},
	ModeChangelogOnly: {
		StepCheckEnvironment, StepPullLatest, StepGenerateChangelog, StepCommit,
		StepPush, StepCreateReview, StepMonitorReview,
	},
	ModeCRPOnly: {
		StepCheckEnvironment, StepDispatchBuild, StepMonitorBuild,
	},
}

// StepsForMode returns the ordered step names for a mode, or nil for an unknown mode.
func StepsForMode(mode Mode) []StepName {
	steps, ok := catalog[mode]
	if !ok {
		return nil
	}
	out := make([]StepName, len(steps))
	copy(out, steps)
	return out
}

// stepDescriptions gives each step a short human-readable description, used
// when materializing Step rows at task-creation time.
var stepDescriptions = map[StepName]string{
	StepCheckEnvironment:  "verify clone, changelog file and required tooling are present",
	StepPullLatest:        "fetch and fast-forward the configured branch",
	StepGenerateChangelog: "synthesize a new debian/changelog entry",
	StepCommit:            "commit the changelog update",
	StepPush:              "push the commit to the review or mirror remote",
	StepCreateReview:      "open a review on the public forge",
	StepMonitorReview:     "poll the public forge until the review merges",
	StepWaitMirrorSync:    "poll the internal mirror until it observes the merge",
	StepDispatchBuild:     "submit a release to the package service",
	StepMonitorBuild:      "record the package service build URL",
}
