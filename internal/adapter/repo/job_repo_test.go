package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"renderworker/internal/domain"
	"renderworker/internal/infra"
	"renderworker/internal/sqlinline"
)

// fakeExecutor records the last statement and arguments and plays back a
// canned command tag or row set.
type fakeExecutor struct {
	query string
	args  []any
	tag   pgconn.CommandTag
	rows  pgx.Rows
	err   error
}

func (f *fakeExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.query, f.args = query, args
	return f.tag, f.err
}

func (f *fakeExecutor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	f.query, f.args = query, args
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeExecutor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	f.query, f.args = query, args
	return noRow{}
}

type noRow struct{}

func (noRow) Scan(...any) error { return pgx.ErrNoRows }

var _ infra.SQLExecutor = (*fakeExecutor)(nil)

// fakeRows plays back pre-typed column values through the pgx.Rows surface.
type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Values() ([]any, error) {
	return nil, errors.New("values not supported in fake rows")
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan got %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *int:
			*p = row[i].(int)
		case *int64:
			*p = row[i].(int64)
		case *float64:
			*p = row[i].(float64)
		case *bool:
			*p = row[i].(bool)
		case *[]string:
			*p = row[i].([]string)
		case *domain.Status:
			*p = row[i].(domain.Status)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return fmt.Errorf("unsupported scan destination %T", d)
		}
	}
	return nil
}

var _ pgx.Rows = (*fakeRows)(nil)

func TestClaimWinsOnSingleRowUpdate(t *testing.T) {
	exec := &fakeExecutor{tag: pgconn.NewCommandTag("UPDATE 1")}
	r := NewJobRepository(exec)

	claimed, err := r.Claim(context.Background(), "job-1", domain.StatusPending)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claimed {
		t.Fatal("Claim = false, want true on one updated row")
	}
	if exec.query != sqlinline.QClaimJob {
		t.Fatalf("query = %q, want QClaimJob", exec.query)
	}
	want := []any{"job-1", domain.StatusPending, domain.StatusProcessing}
	if !reflect.DeepEqual(exec.args, want) {
		t.Fatalf("args = %v, want %v", exec.args, want)
	}
}

func TestClaimLosesOnZeroRowUpdate(t *testing.T) {
	exec := &fakeExecutor{tag: pgconn.NewCommandTag("UPDATE 0")}
	r := NewJobRepository(exec)

	claimed, err := r.Claim(context.Background(), "job-1", domain.StatusPending)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed {
		t.Fatal("Claim = true, want false when another worker won")
	}
}

func TestClaimRejectsInvalidTransitionWithoutQuerying(t *testing.T) {
	exec := &fakeExecutor{}
	r := NewJobRepository(exec)

	_, err := r.Claim(context.Background(), "job-1", domain.StatusCompleted)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if exec.query != "" {
		t.Fatalf("executor ran %q for an invalid transition", exec.query)
	}
}

func TestMarkCompleted(t *testing.T) {
	exec := &fakeExecutor{tag: pgconn.NewCommandTag("UPDATE 1")}
	r := NewJobRepository(exec)

	if err := r.MarkCompleted(context.Background(), "job-1", "/out/a.png"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if exec.query != sqlinline.QMarkCompleted {
		t.Fatalf("query = %q, want QMarkCompleted", exec.query)
	}
	if !reflect.DeepEqual(exec.args, []any{"job-1", "/out/a.png"}) {
		t.Fatalf("args = %v", exec.args)
	}
}

func TestMarkFailed(t *testing.T) {
	exec := &fakeExecutor{tag: pgconn.NewCommandTag("UPDATE 1")}
	r := NewJobRepository(exec)

	if err := r.MarkFailed(context.Background(), "job-1", "generate: boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if exec.query != sqlinline.QMarkFailed {
		t.Fatalf("query = %q, want QMarkFailed", exec.query)
	}
	if !reflect.DeepEqual(exec.args, []any{"job-1", "generate: boom"}) {
		t.Fatalf("args = %v", exec.args)
	}
}

func TestFetchEligiblePendingScansJobs(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	exec := &fakeExecutor{rows: &fakeRows{rows: [][]any{{
		"job-1", "owner-1", "schnell", "a red barn", 512, 768,
		0.6, 3.5, []string{"/storage/in.png"}, true,
		"", domain.StatusPending, "", created, created,
	}}}}
	r := NewJobRepository(exec)

	jobs, err := r.FetchEligiblePending(context.Background(), []string{"schnell", "dev"}, 3)
	if err != nil {
		t.Fatalf("FetchEligiblePending: %v", err)
	}
	if exec.query != sqlinline.QFetchEligiblePending {
		t.Fatalf("query = %q, want QFetchEligiblePending", exec.query)
	}
	if !reflect.DeepEqual(exec.args, []any{[]string{"schnell", "dev"}, 3}) {
		t.Fatalf("args = %v", exec.args)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %v, want 1 entry", jobs)
	}
	job := jobs[0]
	if job.ID != "job-1" || job.Model != "schnell" || job.Width != 512 || job.Height != 768 {
		t.Fatalf("job = %+v", job)
	}
	if !job.UploadRemote || len(job.InputImages) != 1 {
		t.Fatalf("job = %+v", job)
	}
}

func TestFetchStuckPassesPlainStringStatuses(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 11, 45, 0, 0, time.UTC)
	exec := &fakeExecutor{rows: &fakeRows{}}
	r := NewJobRepository(exec)

	statuses := []domain.Status{domain.StatusProcessing, domain.StatusRetrying}
	if _, err := r.FetchStuck(context.Background(), statuses, cutoff); err != nil {
		t.Fatalf("FetchStuck: %v", err)
	}
	if exec.query != sqlinline.QFetchStuck {
		t.Fatalf("query = %q, want QFetchStuck", exec.query)
	}
	if !reflect.DeepEqual(exec.args, []any{[]string{"PROCESSING", "RETRYING"}, cutoff}) {
		t.Fatalf("args = %v", exec.args)
	}
}

func TestReapStuck(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 11, 45, 0, 0, time.UTC)
	statuses := []domain.Status{domain.StatusProcessing, domain.StatusRetrying}

	exec := &fakeExecutor{tag: pgconn.NewCommandTag("UPDATE 1")}
	r := NewJobRepository(exec)

	reaped, err := r.ReapStuck(context.Background(), "job-1", statuses, cutoff)
	if err != nil {
		t.Fatalf("ReapStuck: %v", err)
	}
	if !reaped {
		t.Fatal("ReapStuck = false, want true on one updated row")
	}
	if exec.query != sqlinline.QReapStuck {
		t.Fatalf("query = %q, want QReapStuck", exec.query)
	}
	if len(exec.args) != 4 {
		t.Fatalf("args = %v, want 4", exec.args)
	}
	if !reflect.DeepEqual(exec.args[1], []string{"PROCESSING", "RETRYING"}) {
		t.Fatalf("status arg = %v, want plain strings", exec.args[1])
	}
	if reason, ok := exec.args[3].(string); !ok || reason == "" {
		t.Fatalf("reason arg = %v, want non-empty string", exec.args[3])
	}

	exec.tag = pgconn.NewCommandTag("UPDATE 0")
	reaped, err = r.ReapStuck(context.Background(), "job-1", statuses, cutoff)
	if err != nil {
		t.Fatalf("ReapStuck second pass: %v", err)
	}
	if reaped {
		t.Fatal("ReapStuck = true on zero updated rows, want false")
	}
}

func TestCountByStatus(t *testing.T) {
	exec := &fakeExecutor{rows: &fakeRows{rows: [][]any{
		{domain.StatusPending, int64(4)},
		{domain.StatusCompleted, int64(12)},
	}}}
	r := NewJobRepository(exec)

	counts, err := r.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if exec.query != sqlinline.QCountByStatus {
		t.Fatalf("query = %q, want QCountByStatus", exec.query)
	}
	if counts[domain.StatusPending] != 4 || counts[domain.StatusCompleted] != 12 {
		t.Fatalf("counts = %v", counts)
	}
}
