package repo

import (
    "context"
    "encoding/json"
    "errors"
    "time"

    "github.com/fusion-net-org/fusion-board/internal/domain"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, dsn string, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, dsn)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

// Repository persists board snapshots so a restart can warm-start the
// in-memory cache before the first refetch, and records refresh runs.
type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

func (r *Repository) UpsertSprints(ctx context.Context, sprints []domain.Sprint) error {
    if len(sprints) == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `
        INSERT INTO sprints(id, name, start_at, end_at, state, capacity_hours,
            committed_points, workflow_id, status_order, status_meta, updated_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
        ON CONFLICT(id) DO UPDATE SET
            name=EXCLUDED.name,
            start_at=EXCLUDED.start_at,
            end_at=EXCLUDED.end_at,
            state=EXCLUDED.state,
            capacity_hours=EXCLUDED.capacity_hours,
            committed_points=EXCLUDED.committed_points,
            workflow_id=EXCLUDED.workflow_id,
            status_order=EXCLUDED.status_order,
            status_meta=EXCLUDED.status_meta,
            updated_at=now()`
    for _, sp := range sprints {
        order, _ := json.Marshal(sp.StatusOrder)
        meta, _ := json.Marshal(sp.StatusMeta)
        batch.Queue(q, sp.ID, sp.Name, sp.Start, sp.End, string(sp.State),
            sp.CapacityHours, sp.CommittedPoints, sp.WorkflowID, order, meta)
    }
    br := r.db.Pool.SendBatch(ctx, batch); defer br.Close()
    for range sprints { if _, err := br.Exec(); err != nil { return err } }
    return nil
}

func (r *Repository) UpsertTasks(ctx context.Context, tasks []domain.Task) error {
    if len(tasks) == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `
        INSERT INTO tasks(id, code, title, type, priority, severity, story_points,
            estimate_hours, remaining_hours, order_in_sprint, due_date, sprint_id,
            workflow_status_id, status_code, status_category, status_name,
            assignees, depends_on, parent_task_id, carry_over_count, origin,
            opened_at, created_at, updated_at, source_ticket_id, source_ticket_code)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
        ON CONFLICT(id) DO UPDATE SET
            code=EXCLUDED.code,
            title=EXCLUDED.title,
            type=EXCLUDED.type,
            priority=EXCLUDED.priority,
            severity=EXCLUDED.severity,
            story_points=EXCLUDED.story_points,
            estimate_hours=EXCLUDED.estimate_hours,
            remaining_hours=EXCLUDED.remaining_hours,
            order_in_sprint=EXCLUDED.order_in_sprint,
            due_date=EXCLUDED.due_date,
            sprint_id=EXCLUDED.sprint_id,
            workflow_status_id=EXCLUDED.workflow_status_id,
            status_code=EXCLUDED.status_code,
            status_category=EXCLUDED.status_category,
            status_name=EXCLUDED.status_name,
            assignees=EXCLUDED.assignees,
            depends_on=EXCLUDED.depends_on,
            parent_task_id=EXCLUDED.parent_task_id,
            carry_over_count=EXCLUDED.carry_over_count,
            origin=EXCLUDED.origin,
            opened_at=EXCLUDED.opened_at,
            created_at=EXCLUDED.created_at,
            updated_at=EXCLUDED.updated_at,
            source_ticket_id=EXCLUDED.source_ticket_id,
            source_ticket_code=EXCLUDED.source_ticket_code`
    for _, t := range tasks {
        assignees, _ := json.Marshal(t.Assignees)
        deps, _ := json.Marshal(t.DependsOn)
        batch.Queue(q, t.ID, t.Code, t.Title, t.Type, t.Priority, t.Severity, t.StoryPoints,
            t.EstimateHours, t.RemainingHours, t.OrderInSprint, t.DueDate, nullIfEmpty(t.SprintID),
            t.WorkflowStatusID, t.StatusCode, string(t.StatusCategory), t.StatusName,
            assignees, deps, nullIfEmpty(t.ParentTaskID), t.CarryOverCount, string(t.Origin),
            t.OpenedAt, t.CreatedAt, t.UpdatedAt, nullIfEmpty(t.SourceTicketID), t.SourceTicketCode)
    }
    br := r.db.Pool.SendBatch(ctx, batch); defer br.Close()
    for range tasks { if _, err := br.Exec(); err != nil { return err } }
    return nil
}

func (r *Repository) LoadSprints(ctx context.Context) ([]domain.Sprint, error) {
    const q = `SELECT id, name, start_at, end_at, COALESCE(state,''), capacity_hours,
        committed_points, COALESCE(workflow_id,''), status_order, status_meta
        FROM sprints ORDER BY start_at NULLS LAST, id`
    rows, err := r.db.Pool.Query(ctx, q)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Sprint
    for rows.Next() {
        var sp domain.Sprint
        var state string
        var order, meta []byte
        if err := rows.Scan(&sp.ID, &sp.Name, &sp.Start, &sp.End, &state, &sp.CapacityHours,
            &sp.CommittedPoints, &sp.WorkflowID, &order, &meta); err != nil { return nil, err }
        sp.State = domain.SprintState(state)
        _ = json.Unmarshal(order, &sp.StatusOrder)
        _ = json.Unmarshal(meta, &sp.StatusMeta)
        sp.Columns = make(map[string][]domain.Task, len(sp.StatusOrder))
        for _, id := range sp.StatusOrder { sp.Columns[id] = []domain.Task{} }
        out = append(out, sp)
    }
    return out, rows.Err()
}

func (r *Repository) LoadTasks(ctx context.Context) ([]domain.Task, error) {
    const q = `SELECT id, COALESCE(code,''), title, type, priority, COALESCE(severity,''),
        story_points, estimate_hours, remaining_hours, order_in_sprint, due_date,
        COALESCE(sprint_id,''), workflow_status_id, status_code, status_category,
        status_name, assignees, depends_on, COALESCE(parent_task_id,''),
        carry_over_count, origin, opened_at, created_at, updated_at,
        COALESCE(source_ticket_id,''), COALESCE(source_ticket_code,'')
        FROM tasks ORDER BY sprint_id NULLS LAST, order_in_sprint, id`
    rows, err := r.db.Pool.Query(ctx, q)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Task
    for rows.Next() {
        var t domain.Task
        var cat, origin string
        var assignees, deps []byte
        if err := rows.Scan(&t.ID, &t.Code, &t.Title, &t.Type, &t.Priority, &t.Severity,
            &t.StoryPoints, &t.EstimateHours, &t.RemainingHours, &t.OrderInSprint, &t.DueDate,
            &t.SprintID, &t.WorkflowStatusID, &t.StatusCode, &cat,
            &t.StatusName, &assignees, &deps, &t.ParentTaskID,
            &t.CarryOverCount, &origin, &t.OpenedAt, &t.CreatedAt, &t.UpdatedAt,
            &t.SourceTicketID, &t.SourceTicketCode); err != nil { return nil, err }
        t.StatusCategory = domain.StatusCategory(cat)
        t.Origin = domain.TaskOrigin(origin)
        _ = json.Unmarshal(assignees, &t.Assignees)
        _ = json.Unmarshal(deps, &t.DependsOn)
        out = append(out, t)
    }
    return out, rows.Err()
}

type LastRefresh struct {
    StartedAt  time.Time  `json:"started_at"`
    FinishedAt *time.Time `json:"finished_at"`
    Sprints    int        `json:"sprints"`
    Tasks      int        `json:"tasks"`
    Dropped    int        `json:"dropped_from_columns"`
    Success    bool       `json:"success"`
    Error      string     `json:"error"`
}

func (r *Repository) StartRefreshRun(ctx context.Context) (int64, error) {
    const q = `INSERT INTO refresh_runs(started_at, success) VALUES(now(), false) RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) FinishRefreshRun(ctx context.Context, id int64, sprints, tasks, dropped int, success bool, errStr string) error {
    const q = `UPDATE refresh_runs SET finished_at=now(), sprints=$2, tasks=$3, dropped=$4, success=$5, error=$6 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, sprints, tasks, dropped, success, errStr)
    return err
}

func (r *Repository) GetLastRefresh(ctx context.Context) (*LastRefresh, error) {
    const q = `SELECT started_at, finished_at, coalesce(sprints,0), coalesce(tasks,0),
        coalesce(dropped,0), coalesce(success,false), coalesce(error,'')
        FROM refresh_runs ORDER BY id DESC LIMIT 1`
    row := r.db.Pool.QueryRow(ctx, q)
    lr := &LastRefresh{}
    if err := row.Scan(&lr.StartedAt, &lr.FinishedAt, &lr.Sprints, &lr.Tasks, &lr.Dropped, &lr.Success, &lr.Error); err != nil { return nil, err }
    return lr, nil
}

func nullIfEmpty(s string) any {
    if s == "" { return nil }
    return s
}
