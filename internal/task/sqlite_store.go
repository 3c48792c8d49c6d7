package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"git.internal.example/releng/pkgrelease/internal/foundation"
)

// SQLiteStore implements Store over four tables: projects, global_config,
// build_tasks, build_task_steps. Every optional column is nullable and every
// read tolerates NULL to allow schema evolution. Uses the same
// modernc.org/sqlite-over-database/sql idiom as eventstore.SQLiteStore.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes the multi-statement mutation helpers
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures schema.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, taskError(foundation.ErrorCodeInternal, "open sqlite database").WithCause(err).Build()
	}
	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, taskError(foundation.ErrorCodeInternal, "initialize schema").WithCause(err).Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS global_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		ldap_username TEXT,
		ldap_password TEXT,
		forge_token TEXT,
		forge_username TEXT,
		package_service_token TEXT,
		package_service_default_branch_id TEXT,
		package_service_topic_type TEXT,
		proxy_url TEXT,
		local_clone_root TEXT,
		crp_base_url TEXT,
		crp_public_key_pem TEXT,
		debemail_name TEXT,
		debemail_address TEXT,
		updated_at TEXT
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		review_forge_url TEXT,
		review_forge_branch TEXT,
		mirror_forge_url TEXT,
		mirror_forge_branch TEXT,
		mirror_clone_url TEXT,
		package_service_alias TEXT,
		clone_path TEXT,
		clone_state TEXT NOT NULL DEFAULT 'pending',
		clone_error TEXT,
		last_known_head TEXT,
		github_username TEXT,
		tags TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS build_tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT,
		project_name TEXT NOT NULL,
		mode TEXT NOT NULL,
		version TEXT NOT NULL,
		architectures TEXT,
		topic_id TEXT,
		topic_name TEXT,
		start_head TEXT,
		status TEXT NOT NULL,
		current_step_index INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		review_branch TEXT,
		review_number INTEGER,
		review_url TEXT,
		review_state TEXT,
		mirror_synced INTEGER NOT NULL DEFAULT 0,
		mirror_head TEXT,
		build_id TEXT,
		build_state TEXT,
		build_url TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT
	);

	CREATE TABLE IF NOT EXISTS build_task_steps (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		step_order INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL,
		log TEXT,
		error TEXT,
		started_at TEXT,
		completed_at TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		UNIQUE(task_id, step_order)
	);

	CREATE INDEX IF NOT EXISTS idx_build_tasks_status ON build_tasks(status);
	CREATE INDEX IF NOT EXISTS idx_build_task_steps_task ON build_task_steps(task_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func nowStr() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// --- GlobalConfig ---

func (s *SQLiteStore) GetGlobalConfig(ctx context.Context) (*GlobalConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, ldap_username, ldap_password, forge_token, forge_username,
		package_service_token, package_service_default_branch_id, package_service_topic_type, proxy_url,
		local_clone_root, crp_base_url, crp_public_key_pem, debemail_name, debemail_address, updated_at
		FROM global_config WHERE id = 1`)

	cfg := &GlobalConfig{ID: 1}
	var ldapU, ldapP, forgeT, forgeU, pkgT, pkgB, pkgTopic, proxy, root, crpURL, crpKey, debName, debAddr, updated sql.NullString
	err := row.Scan(&cfg.ID, &ldapU, &ldapP, &forgeT, &forgeU, &pkgT, &pkgB, &pkgTopic, &proxy, &root, &crpURL, &crpKey, &debName, &debAddr, &updated)
	if err == sql.ErrNoRows {
		if err := s.SaveGlobalConfig(ctx, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, taskError(foundation.ErrorCodeInternal, "query global config").WithCause(err).Build()
	}

	cfg.LDAPUsername = ldapU.String
	cfg.LDAPPassword = ldapP.String
	cfg.ForgeToken = forgeT.String
	cfg.ForgeUsername = forgeU.String
	cfg.PackageServiceToken = pkgT.String
	cfg.PackageServiceDefaultBranchID = pkgB.String
	cfg.PackageServiceTopicType = pkgTopic.String
	cfg.ProxyURL = proxy.String
	cfg.LocalCloneRoot = root.String
	cfg.CRPBaseURL = crpURL.String
	cfg.CRPPublicKeyPEM = crpKey.String
	cfg.DebEmailName = debName.String
	cfg.DebEmailAddress = debAddr.String
	if t := parseTime(updated); t != nil {
		cfg.UpdatedAt = *t
	}
	return cfg, nil
}

func (s *SQLiteStore) SaveGlobalConfig(ctx context.Context, cfg *GlobalConfig) error {
	cfg.ID = 1
	cfg.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO global_config
		(id, ldap_username, ldap_password, forge_token, forge_username, package_service_token,
		 package_service_default_branch_id, package_service_topic_type, proxy_url, local_clone_root,
		 crp_base_url, crp_public_key_pem, debemail_name, debemail_address, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 ldap_username=excluded.ldap_username, ldap_password=excluded.ldap_password,
		 forge_token=excluded.forge_token, forge_username=excluded.forge_username,
		 package_service_token=excluded.package_service_token,
		 package_service_default_branch_id=excluded.package_service_default_branch_id,
		 package_service_topic_type=excluded.package_service_topic_type,
		 proxy_url=excluded.proxy_url, local_clone_root=excluded.local_clone_root,
		 crp_base_url=excluded.crp_base_url, crp_public_key_pem=excluded.crp_public_key_pem,
		 debemail_name=excluded.debemail_name, debemail_address=excluded.debemail_address,
		 updated_at=excluded.updated_at`,
		cfg.LDAPUsername, cfg.LDAPPassword, cfg.ForgeToken, cfg.ForgeUsername, cfg.PackageServiceToken,
		cfg.PackageServiceDefaultBranchID, cfg.PackageServiceTopicType, cfg.ProxyURL, cfg.LocalCloneRoot,
		cfg.CRPBaseURL, cfg.CRPPublicKeyPEM, cfg.DebEmailName, cfg.DebEmailAddress, nowStr())
	if err != nil {
		return taskError(foundation.ErrorCodeInternal, "save global config").WithCause(err).Build()
	}
	return nil
}

// --- Projects ---

func (s *SQLiteStore) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CloneState == "" {
		p.CloneState = CloneStatePending
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	tags, err := marshalTags(p.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO projects
		(id, name, review_forge_url, review_forge_branch, mirror_forge_url, mirror_forge_branch,
		 mirror_clone_url, package_service_alias, clone_path, clone_state, clone_error, last_known_head,
		 github_username, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, nullStr(p.ReviewForgeURL), nullStr(p.ReviewForgeBranch), nullStr(p.MirrorForgeURL),
		nullStr(p.MirrorForgeBranch), nullStr(p.MirrorCloneURL), nullStr(p.PackageServiceAlias),
		nullStr(p.ClonePath), string(p.CloneState), nullStr(p.CloneError), nullStr(p.LastKnownHead),
		nullStr(p.GithubUsername), tags, nowStr(), nowStr())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return foundation.ValidationError("project name already exists").
				WithComponent("task").WithField("name", p.Name).Build()
		}
		return taskError(foundation.ErrorCodeInternal, "create project").WithCause(err).Build()
	}
	return nil
}

func marshalTags(tags map[string]string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, taskError(foundation.ErrorCodeInternal, "marshal project tags").WithCause(err).Build()
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func (s *SQLiteStore) scanProject(row interface {
	Scan(dest ...any) error
}) (*Project, error) {
	p := &Project{}
	var reviewURL, reviewBranch, mirrorURL, mirrorBranch, mirrorClone, alias, clonePath, cloneErr, head, ghUser, tags sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &reviewURL, &reviewBranch, &mirrorURL, &mirrorBranch, &mirrorClone,
		&alias, &clonePath, &p.CloneState, &cloneErr, &head, &ghUser, &tags, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.ReviewForgeURL, p.ReviewForgeBranch = reviewURL.String, reviewBranch.String
	p.MirrorForgeURL, p.MirrorForgeBranch = mirrorURL.String, mirrorBranch.String
	p.MirrorCloneURL = mirrorClone.String
	p.PackageServiceAlias = alias.String
	p.ClonePath = clonePath.String
	p.CloneError = cloneErr.String
	p.LastKnownHead = head.String
	p.GithubUsername = ghUser.String
	if tags.Valid && tags.String != "" {
		_ = json.Unmarshal([]byte(tags.String), &p.Tags)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p, nil
}

const projectSelectCols = `id, name, review_forge_url, review_forge_branch, mirror_forge_url, mirror_forge_branch,
	mirror_clone_url, package_service_alias, clone_path, clone_state, clone_error, last_known_head,
	github_username, tags, created_at, updated_at`

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectSelectCols+` FROM projects WHERE id = ?`, id)
	p, err := s.scanProject(row)
	if err == sql.ErrNoRows {
		return nil, errProjectNotFound(id)
	}
	if err != nil {
		return nil, taskError(foundation.ErrorCodeInternal, "get project").WithCause(err).Build()
	}
	return p, nil
}

func (s *SQLiteStore) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectSelectCols+` FROM projects WHERE name = ?`, name)
	p, err := s.scanProject(row)
	if err == sql.ErrNoRows {
		return nil, errProjectNotFound(name)
	}
	if err != nil {
		return nil, taskError(foundation.ErrorCodeInternal, "get project by name").WithCause(err).Build()
	}
	return p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	query := `SELECT ` + projectSelectCols + ` FROM projects`
	args := []any{}
	if filter.CloneState != "" {
		query += ` WHERE clone_state = ?`
		args = append(args, string(filter.CloneState))
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, taskError(foundation.ErrorCodeInternal, "list projects").WithCause(err).Build()
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := s.scanProject(rows)
		if err != nil {
			return nil, taskError(foundation.ErrorCodeInternal, "scan project row").WithCause(err).Build()
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *Project) error {
	p.UpdatedAt = time.Now().UTC()
	tags, err := marshalTags(p.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET name=?, review_forge_url=?, review_forge_branch=?,
		mirror_forge_url=?, mirror_forge_branch=?, mirror_clone_url=?, package_service_alias=?, clone_path=?,
		clone_state=?, clone_error=?, last_known_head=?, github_username=?, tags=?, updated_at=? WHERE id=?`,
		p.Name, nullStr(p.ReviewForgeURL), nullStr(p.ReviewForgeBranch), nullStr(p.MirrorForgeURL),
		nullStr(p.MirrorForgeBranch), nullStr(p.MirrorCloneURL), nullStr(p.PackageServiceAlias),
		nullStr(p.ClonePath), string(p.CloneState), nullStr(p.CloneError), nullStr(p.LastKnownHead),
		nullStr(p.GithubUsername), tags, nowStr(), p.ID)
	if err != nil {
		return taskError(foundation.ErrorCodeInternal, "update project").WithCause(err).Build()
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errProjectNotFound(p.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return taskError(foundation.ErrorCodeInternal, "delete project").WithCause(err).Build()
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errProjectNotFound(id)
	}
	return nil
}

// --- Tasks & Steps ---

func (s *SQLiteStore) CreateTask(ctx context.Context, t *Task) error {
	steps := StepsForMode(t.Mode)
	if steps == nil {
		return errUnknownMode(t.Mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return taskError(foundation.ErrorCodeInternal, "begin create task transaction").WithCause(err).Build()
	}
	defer func() { _ = tx.Rollback() }()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = TaskStatusPending
	t.CurrentStepIndex = 0
	t.CreatedAt = time.Now().UTC()

	arches := strings.Join(t.Architectures, ",")
	_, err = tx.ExecContext(ctx, `INSERT INTO build_tasks
		(id, project_id, project_name, mode, version, architectures, topic_id, topic_name, start_head,
		 status, current_step_index, error, review_branch, review_number, review_url, review_state,
		 mirror_synced, mirror_head, build_id, build_state, build_url, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, NULL, NULL, NULL, NULL, 0, NULL, NULL, NULL, NULL, ?, NULL, NULL)`,
		t.ID, nullStr(t.ProjectID), t.ProjectName, string(t.Mode), t.Version, nullStr(arches),
		nullStr(t.TopicID), nullStr(t.TopicName), nullStr(t.StartHead), string(t.Status), nowStr())
	if err != nil {
		return taskError(foundation.ErrorCodeInternal, "insert task").WithCause(err).Build()
	}

	for i, name := range steps {
		step := &Step{
			ID:          uuid.NewString(),
			TaskID:      t.ID,
			Order:       i,
			Name:        string(name),
			Description: stepDescriptions[name],
			Status:      StepStatusPending,
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO build_task_steps
			(id, task_id, step_order, name, description, status, log, error, started_at, completed_at, retry_count)
			VALUES (?, ?, ?, ?, ?, ?, NULL, NULL, NULL, NULL, 0)`,
			step.ID, step.TaskID, step.Order, step.Name, step.Description, string(step.Status)); err != nil {
			return taskError(foundation.ErrorCodeInternal, "insert step").WithCause(err).WithField("step", step.Name).Build()
		}
	}

	if err := tx.Commit(); err != nil {
		return taskError(foundation.ErrorCodeInternal, "commit create task transaction").WithCause(err).Build()
	}
	return nil
}

const taskSelectCols = `id, project_id, project_name, mode, version, architectures, topic_id, topic_name,
	start_head, status, current_step_index, error, review_branch, review_number, review_url, review_state,
	mirror_synced, mirror_head, build_id, build_state, build_url, created_at, started_at, completed_at`

func (s *SQLiteStore) scanTask(row interface{ Scan(dest ...any) error }) (*Task, error) {
	t := &Task{}
	var projectID, arches, topicID, topicName, startHead, errMsg, reviewBranch, reviewURL, reviewState,
		mirrorHead, buildID, buildState, buildURL, startedAt, completedAt sql.NullString
	var reviewNumber sql.NullInt64
	var mirrorSynced int
	var createdAt string

	err := row.Scan(&t.ID, &projectID, &t.ProjectName, &t.Mode, &t.Version, &arches, &topicID, &topicName,
		&startHead, &t.Status, &t.CurrentStepIndex, &errMsg, &reviewBranch, &reviewNumber, &reviewURL,
		&reviewState, &mirrorSynced, &mirrorHead, &buildID, &buildState, &buildURL, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.ProjectID = projectID.String
	if arches.Valid && arches.String != "" {
		t.Architectures = strings.Split(arches.String, ",")
	}
	t.TopicID, t.TopicName, t.StartHead = topicID.String, topicName.String, startHead.String
	t.Error = errMsg.String
	t.ReviewBranch, t.ReviewURL, t.ReviewState = reviewBranch.String, reviewURL.String, reviewState.String
	if reviewNumber.Valid {
		t.ReviewNumber = int(reviewNumber.Int64)
	}
	t.MirrorSynced = mirrorSynced != 0
	t.MirrorHead = mirrorHead.String
	t.BuildID, t.BuildState, t.BuildURL = buildID.String, buildState.String, buildURL.String
	if ct, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		t.CreatedAt = ct
	}
	t.StartedAt = parseTime(startedAt)
	t.CompletedAt = parseTime(completedAt)
	return t, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskSelectCols+` FROM build_tasks WHERE id = ?`, id)
	t, err := s.scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errTaskNotFound(id)
	}
	if err != nil {
		return nil, taskError(foundation.ErrorCodeInternal, "get task").WithCause(err).Build()
	}
	return t, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter, limit int) ([]*Task, error) {
	query := `SELECT ` + taskSelectCols + ` FROM build_tasks`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, taskError(foundation.ErrorCodeInternal, "list tasks").WithCause(err).Build()
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, taskError(foundation.ErrorCodeInternal, "scan task row").WithCause(err).Build()
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListSteps(ctx context.Context, taskID string) ([]*Step, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, step_order, name, description, status, log, error,
		started_at, completed_at, retry_count FROM build_task_steps WHERE task_id = ? ORDER BY step_order`, taskID)
	if err != nil {
		return nil, taskError(foundation.ErrorCodeInternal, "list steps").WithCause(err).Build()
	}
	defer rows.Close()

	var out []*Step
	for rows.Next() {
		st := &Step{}
		var desc, log, errMsg, startedAt, completedAt sql.NullString
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Order, &st.Name, &desc, &st.Status, &log, &errMsg,
			&startedAt, &completedAt, &st.RetryCount); err != nil {
			return nil, taskError(foundation.ErrorCodeInternal, "scan step row").WithCause(err).Build()
		}
		st.Description, st.Log, st.Error = desc.String, log.String, errMsg.String
		st.StartedAt = parseTime(startedAt)
		st.CompletedAt = parseTime(completedAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, t *Task) error {
	arches := strings.Join(t.Architectures, ",")
	res, err := s.db.ExecContext(ctx, `UPDATE build_tasks SET project_id=?, project_name=?, mode=?, version=?,
		architectures=?, topic_id=?, topic_name=?, start_head=?, status=?, current_step_index=?, error=?,
		review_branch=?, review_number=?, review_url=?, review_state=?, mirror_synced=?, mirror_head=?,
		build_id=?, build_state=?, build_url=?, started_at=?, completed_at=? WHERE id=?`,
		nullStr(t.ProjectID), t.ProjectName, string(t.Mode), t.Version, nullStr(arches), nullStr(t.TopicID),
		nullStr(t.TopicName), nullStr(t.StartHead), string(t.Status), t.CurrentStepIndex, nullStr(t.Error),
		nullStr(t.ReviewBranch), nullIntPtr(t.ReviewNumber), nullStr(t.ReviewURL), nullStr(t.ReviewState),
		boolToInt(t.MirrorSynced), nullStr(t.MirrorHead), nullStr(t.BuildID), nullStr(t.BuildState),
		nullStr(t.BuildURL), nullTime(t.StartedAt), nullTime(t.CompletedAt), t.ID)
	if err != nil {
		return taskError(foundation.ErrorCodeInternal, "update task").WithCause(err).Build()
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errTaskNotFound(t.ID)
	}
	return nil
}

func nullIntPtr(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) UpdateStep(ctx context.Context, st *Step) error {
	res, err := s.db.ExecContext(ctx, `UPDATE build_task_steps SET name=?, description=?, status=?, log=?,
		error=?, started_at=?, completed_at=?, retry_count=? WHERE id=?`,
		st.Name, nullStr(st.Description), string(st.Status), nullStr(st.Log), nullStr(st.Error),
		nullTime(st.StartedAt), nullTime(st.CompletedAt), st.RetryCount, st.ID)
	if err != nil {
		return taskError(foundation.ErrorCodeInternal, "update step").WithCause(err).Build()
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return foundation.NotFoundError("step not found").WithComponent("task").WithField("step_id", st.ID).Build()
	}
	return nil
}

// --- Task-control surface ---

func (s *SQLiteStore) Start(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != TaskStatusPending && t.Status != TaskStatusPaused {
		return errIllegalTransition("start", t.Status)
	}
	t.Status = TaskStatusPending
	return s.UpdateTask(ctx, t)
}

func (s *SQLiteStore) Pause(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != TaskStatusRunning {
		return errIllegalTransition("pause", t.Status)
	}
	t.Status = TaskStatusPaused
	return s.UpdateTask(ctx, t)
}

func (s *SQLiteStore) Resume(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != TaskStatusPaused {
		return errIllegalTransition("resume", t.Status)
	}
	t.Status = TaskStatusPending
	return s.UpdateTask(ctx, t)
}

func (s *SQLiteStore) Cancel(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return errIllegalTransition("cancel", t.Status)
	}

	now := time.Now().UTC()
	t.Status = TaskStatusCancelled
	t.CompletedAt = &now
	if err := s.UpdateTask(ctx, t); err != nil {
		return err
	}

	steps, err := s.ListSteps(ctx, taskID)
	if err != nil {
		return err
	}
	for _, st := range steps {
		if st.Status == StepStatusPending || st.Status == StepStatusRunning {
			st.Status = StepStatusCancelled
			if err := s.UpdateStep(ctx, st); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SQLiteStore) Retry(ctx context.Context, taskID string, fromStep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status == TaskStatusRunning {
		return errIllegalTransition("retry", t.Status)
	}

	steps, err := s.ListSteps(ctx, taskID)
	if err != nil {
		return err
	}
	for _, st := range steps {
		if st.Order < fromStep {
			continue
		}
		st.Status = StepStatusPending
		st.Log = ""
		st.Error = ""
		st.StartedAt = nil
		st.CompletedAt = nil
		st.RetryCount++
		if err := s.UpdateStep(ctx, st); err != nil {
			return err
		}
	}

	t.Status = TaskStatusPending
	t.Error = ""
	t.CompletedAt = nil
	if fromStep == 0 {
		t.CurrentStepIndex = 0
		t.StartedAt = nil
	}
	return s.UpdateTask(ctx, t)
}

func (s *SQLiteStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status == TaskStatusRunning {
		return errIllegalTransition("delete", t.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return taskError(foundation.ErrorCodeInternal, "begin delete task transaction").WithCause(err).Build()
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM build_task_steps WHERE task_id = ?`, taskID); err != nil {
		return taskError(foundation.ErrorCodeInternal, "delete steps").WithCause(err).Build()
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM build_tasks WHERE id = ?`, taskID); err != nil {
		return taskError(foundation.ErrorCodeInternal, "delete task").WithCause(err).Build()
	}
	if err := tx.Commit(); err != nil {
		return taskError(foundation.ErrorCodeInternal, "commit delete task transaction").WithCause(err).Build()
	}
	return nil
}

func (s *SQLiteStore) CleanupCompleted(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	terminal := fmt.Sprintf(`('%s','%s','%s')`, TaskStatusSuccess, TaskStatusFailed, TaskStatusCancelled)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, taskError(foundation.ErrorCodeInternal, "begin cleanup transaction").WithCause(err).Build()
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM build_task_steps WHERE task_id IN
		(SELECT id FROM build_tasks WHERE status IN `+terminal+`)`); err != nil {
		return 0, taskError(foundation.ErrorCodeInternal, "cleanup completed steps").WithCause(err).Build()
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM build_tasks WHERE status IN `+terminal)
	if err != nil {
		return 0, taskError(foundation.ErrorCodeInternal, "cleanup completed tasks").WithCause(err).Build()
	}
	if err := tx.Commit(); err != nil {
		return 0, taskError(foundation.ErrorCodeInternal, "commit cleanup transaction").WithCause(err).Build()
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
