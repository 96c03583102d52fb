package orchestrate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sentinel/internal/eventbus"
	"sentinel/internal/panel"
	"sentinel/internal/parse"
	"sentinel/internal/schedule"
	"sentinel/internal/storage"
	"sentinel/internal/task"
	"sentinel/internal/validate"
	logx "sentinel/pkg/logx"
)

// Monday 2026-01-05 noon UTC.
var anchor = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

// stubPanel fails the first failures calls, then succeeds.
type stubPanel struct {
	mu       sync.Mutex
	failures int
	calls    int
	state    panel.State
}

func (p *stubPanel) call() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return errors.New("panel offline")
	}
	return nil
}

func (p *stubPanel) Arm(_ context.Context, mode task.ArmMode, _ string) (panel.Result, error) {
	if err := p.call(); err != nil {
		return panel.Result{}, err
	}
	p.mu.Lock()
	if mode == task.ModeStay {
		p.state = panel.StateArmedStay
	} else {
		p.state = panel.StateArmedAway
	}
	p.mu.Unlock()
	return panel.Result{Success: true, Message: "armed", State: p.state}, nil
}

func (p *stubPanel) Disarm(_ context.Context, _ string) (panel.Result, error) {
	if err := p.call(); err != nil {
		return panel.Result{}, err
	}
	p.mu.Lock()
	p.state = panel.StateDisarmed
	p.mu.Unlock()
	return panel.Result{Success: true, Message: "disarmed", State: panel.StateDisarmed}, nil
}

func (p *stubPanel) CurrentState(_ context.Context) (panel.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == "" {
		return panel.StateDisarmed, nil
	}
	return p.state, nil
}

type fixture struct {
	svc   *Service
	store *storage.Memory
	panel *stubPanel
	bus   eventbus.Bus
	now   time.Time
	mu    sync.Mutex
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	mem := storage.NewMemory()
	stub := &stubPanel{}
	bus := eventbus.New()
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 100
	}
	dir := panel.StaticDirectory{"u1": panel.RoleUser, "u2": panel.RoleUser, "root": panel.RoleAdmin}
	svc := New(cfg, mem, validate.New(validate.Config{}, mem, logx.Logger{}),
		parse.New("UTC"), stub, dir, bus, logx.Logger{})

	f := &fixture{svc: svc, store: mem, panel: stub, bus: bus, now: anchor}
	svc.SetClock(func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	})
	return f
}

func (f *fixture) setNow(at time.Time) {
	f.mu.Lock()
	f.now = at
	f.mu.Unlock()
}

func (f *fixture) create(t *testing.T, command string) *task.ScheduledTask {
	t.Helper()
	res := f.svc.Create(context.Background(), CreateRequest{UserID: "u1", Command: command})
	if !res.OK {
		t.Fatalf("Create(%q) failed: %v", command, res.Err)
	}
	return res.Data.Task
}

func TestCreateFromCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	st := f.create(t, "arm system in stay mode weekdays at 9 PM")
	if st.Status != task.StatusActive {
		t.Fatalf("Status = %v, want %v", st.Status, task.StatusActive)
	}
	if st.Action != task.ActionArm || st.Params.Mode != task.ModeStay {
		t.Fatalf("parsed action = %v/%v", st.Action, st.Params.Mode)
	}
	want := time.Date(2026, 1, 5, 21, 0, 0, 0, time.UTC)
	if st.NextRun == nil || !st.NextRun.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", st.NextRun, want)
	}

	stored, err := f.store.FindByID(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.Status != task.StatusActive {
		t.Fatalf("stored Status = %v", stored.Status)
	}
}

func TestCreateHoldStaysPending(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	res := f.svc.Create(context.Background(), CreateRequest{
		UserID: "u1", Command: "disarm weekends at 10 am", Hold: true,
	})
	if !res.OK {
		t.Fatalf("Create failed: %v", res.Err)
	}
	if res.Data.Task.Status != task.StatusPending {
		t.Fatalf("Status = %v, want %v", res.Data.Task.Status, task.StatusPending)
	}

	act := f.svc.Activate(context.Background(), "u1", res.Data.Task.ID)
	if !act.OK {
		t.Fatalf("Activate failed: %v", act.Err)
	}
	if act.Data.Status != task.StatusActive {
		t.Fatalf("Status after Activate = %v", act.Data.Status)
	}
}

func TestCreateParseFailureCarriesSuggestions(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	res := f.svc.Create(context.Background(), CreateRequest{UserID: "u1", Command: "arm system at 9 pm"})
	if res.OK {
		t.Fatal("expected parse failure")
	}
	if res.Err.Kind != KindValidation {
		t.Fatalf("Kind = %v, want %v", res.Err.Kind, KindValidation)
	}
	if res.Err.Details["suggestions"] == nil {
		t.Fatal("expected suggestions in failure details")
	}
}

func TestCreateConflictRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.create(t, "arm weekdays at 9 pm")

	res := f.svc.Create(context.Background(), CreateRequest{UserID: "u1", Command: "arm monday at 9 pm"})
	if res.OK {
		t.Fatal("expected conflict rejection")
	}
	if res.Err.Kind != KindValidation {
		t.Fatalf("Kind = %v, want %v", res.Err.Kind, KindValidation)
	}
}

func TestExecuteTaskSuccess(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	st := f.create(t, "arm weekdays at 9 pm")

	events, unsub := f.bus.Subscribe(16)
	defer unsub()

	runAt := time.Date(2026, 1, 5, 21, 0, 0, 0, time.UTC)
	f.setNow(runAt)

	res := f.svc.ExecuteTask(context.Background(), ExecuteRequest{TaskID: st.ID, ActorID: "u1"})
	if !res.OK || !res.Data.Success {
		t.Fatalf("ExecuteTask = %+v", res)
	}

	stored, _ := f.store.FindByID(context.Background(), st.ID)
	if stored.ExecutionCount != 1 {
		t.Fatalf("ExecutionCount = %d, want 1", stored.ExecutionCount)
	}
	wantNext := time.Date(2026, 1, 6, 21, 0, 0, 0, time.UTC)
	if stored.NextRun == nil || !stored.NextRun.Equal(wantNext) {
		t.Fatalf("NextRun = %v, want %v", stored.NextRun, wantNext)
	}

	sawExecuted := false
	for done := false; !done; {
		select {
		case e := <-events:
			if e.Type == eventbus.TopicScheduleExecuted {
				sawExecuted = true
				done = true
			}
		default:
			done = true
		}
	}
	if !sawExecuted {
		t.Fatal("expected schedule.executed event")
	}
}

func TestExecuteTaskNotDue(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	st := f.create(t, "arm weekdays at 9 pm")

	res := f.svc.ExecuteTask(context.Background(), ExecuteRequest{TaskID: st.ID})
	if res.OK {
		t.Fatal("expected refusal before due time")
	}
	if res.Err.Kind != KindExecution {
		t.Fatalf("Kind = %v, want %v", res.Err.Kind, KindExecution)
	}
}

func TestExecuteTaskOverdueGate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{OverdueGrace: 30 * time.Minute})
	st := f.create(t, "arm weekdays at 9 pm")

	late := time.Date(2026, 1, 5, 22, 0, 0, 0, time.UTC)
	f.setNow(late)

	res := f.svc.ExecuteTask(context.Background(), ExecuteRequest{TaskID: st.ID})
	if res.OK {
		t.Fatal("expected refusal for excessively overdue task")
	}

	forced := f.svc.ExecuteTask(context.Background(), ExecuteRequest{TaskID: st.ID, IgnoreOverdue: true})
	if !forced.OK || !forced.Data.Success {
		t.Fatalf("forced execution failed: %+v", forced)
	}
}

func TestExecuteBackoffSequence(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{MaxRetries: 3})
	f.panel.failures = 10 // never succeeds
	st := f.create(t, "arm weekdays at 9 pm")

	at := time.Date(2026, 1, 5, 21, 0, 0, 0, time.UTC)
	wantDelays := []time.Duration{5 * time.Minute, 10 * time.Minute, 20 * time.Minute}

	for i, want := range wantDelays {
		f.setNow(at)
		res := f.svc.ExecuteTask(context.Background(), ExecuteRequest{TaskID: st.ID, IgnoreOverdue: true})
		if !res.OK {
			t.Fatalf("attempt %d: system failure %v", i+1, res.Err)
		}
		if res.Data.Success {
			t.Fatalf("attempt %d: expected panel failure", i+1)
		}
		if res.Data.RetryAt == nil {
			t.Fatalf("attempt %d: expected retry scheduled", i+1)
		}
		if got := res.Data.RetryAt.Sub(at); got != want {
			t.Fatalf("attempt %d: retry delay = %v, want %v", i+1, got, want)
		}
		at = *res.Data.RetryAt
	}

	// Fourth failure exhausts the retries.
	f.setNow(at)
	res := f.svc.ExecuteTask(context.Background(), ExecuteRequest{TaskID: st.ID, IgnoreOverdue: true})
	if !res.OK {
		t.Fatalf("final attempt: system failure %v", res.Err)
	}
	if res.Data.RetryAt != nil {
		t.Fatal("expected no retry after limit")
	}
	if res.Data.Status != task.StatusFailed {
		t.Fatalf("Status = %v, want %v", res.Data.Status, task.StatusFailed)
	}

	stored, _ := f.store.FindByID(context.Background(), st.ID)
	if stored.NextRun != nil {
		t.Fatalf("NextRun = %v, want nil", stored.NextRun)
	}
	if stored.FailureCount != 4 {
		t.Fatalf("FailureCount = %d, want 4", stored.FailureCount)
	}
}

func TestExecuteRecoversAfterRetry(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{MaxRetries: 3})
	f.panel.failures = 1
	st := f.create(t, "arm weekdays at 9 pm")

	at := time.Date(2026, 1, 5, 21, 0, 0, 0, time.UTC)
	f.setNow(at)
	first := f.svc.ExecuteTask(context.Background(), ExecuteRequest{TaskID: st.ID, IgnoreOverdue: true})
	if !first.OK || first.Data.Success {
		t.Fatalf("expected first attempt to fail, got %+v", first)
	}

	f.setNow(*first.Data.RetryAt)
	second := f.svc.ExecuteTask(context.Background(), ExecuteRequest{TaskID: st.ID, IgnoreOverdue: true})
	if !second.OK || !second.Data.Success {
		t.Fatalf("expected retry to succeed, got %+v", second)
	}

	stored, _ := f.store.FindByID(context.Background(), st.ID)
	if stored.Status != task.StatusActive {
		t.Fatalf("Status = %v, want %v", stored.Status, task.StatusActive)
	}
}

func TestExecuteDueBatchCap(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.create(t, "arm monday at 9 pm")
	f.create(t, "arm monday at 9:30 pm")
	f.create(t, "arm monday at 10 pm")

	f.setNow(time.Date(2026, 1, 5, 22, 30, 0, 0, time.UTC))

	res := f.svc.ExecuteDue(context.Background(), SweepOptions{MaxTasks: 2})
	if !res.OK {
		t.Fatalf("ExecuteDue: %v", res.Err)
	}
	if res.Data.Examined != 2 || res.Data.Executed != 2 {
		t.Fatalf("report = %+v, want 2 examined/executed", res.Data)
	}
	if res.Data.Succeeded != 2 {
		t.Fatalf("Succeeded = %d, want 2", res.Data.Succeeded)
	}
}

func TestExecuteDueToleranceEarly(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	st := f.create(t, "arm weekdays at 9 pm")

	// Thirty seconds before the slot; a one-minute tolerance selects
	// the task and it must execute, not count as a batch failure.
	f.setNow(time.Date(2026, 1, 5, 20, 59, 30, 0, time.UTC))

	res := f.svc.ExecuteDue(context.Background(), SweepOptions{Tolerance: time.Minute})
	if !res.OK {
		t.Fatalf("ExecuteDue: %v", res.Err)
	}
	if res.Data.Examined != 1 || res.Data.Succeeded != 1 || res.Data.Failed != 0 {
		t.Fatalf("report = %+v, want 1 examined and 1 succeeded", res.Data)
	}

	got, err := f.store.FindByID(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.ExecutionCount != 1 || got.NextRun == nil {
		t.Fatalf("ExecutionCount = %d, NextRun = %v, want one recorded run", got.ExecutionCount, got.NextRun)
	}
	want := time.Date(2026, 1, 6, 21, 0, 0, 0, time.UTC)
	if !got.NextRun.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", got.NextRun, want)
	}
}

func TestStaleTasksDoNotConsumeBatchSlots(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.create(t, "arm monday at 8 pm")
	f.create(t, "arm monday at 9 pm")
	f.create(t, "arm monday at 10 pm")
	fresh := f.create(t, "arm thursday at 9 pm")

	// Thursday evening: the three Monday runs are days stale, the
	// Thursday run is due now. A capped batch must still reach it.
	f.setNow(time.Date(2026, 1, 8, 21, 0, 30, 0, time.UTC))

	res := f.svc.ExecuteOverdue(context.Background(), SweepOptions{MaxTasks: 2, MaxOverdueAge: 24 * time.Hour})
	if !res.OK {
		t.Fatalf("ExecuteOverdue: %v", res.Err)
	}
	if res.Data.Skipped != 3 || res.Data.Succeeded != 1 {
		t.Fatalf("report = %+v, want 3 skipped / 1 succeeded", res.Data)
	}

	got, err := f.store.FindByID(context.Background(), fresh.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.ExecutionCount != 1 {
		t.Fatalf("fresh ExecutionCount = %d, want 1", got.ExecutionCount)
	}
}

func TestExecuteDueContinuesOnError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{MaxRetries: 1})
	f.panel.failures = 1 // first panel call fails, rest succeed
	f.create(t, "arm monday at 9 pm")
	f.create(t, "arm monday at 9:10 pm")

	f.setNow(time.Date(2026, 1, 5, 21, 30, 0, 0, time.UTC))

	res := f.svc.ExecuteDue(context.Background(), SweepOptions{})
	if !res.OK {
		t.Fatalf("ExecuteDue: %v", res.Err)
	}
	if res.Data.Executed != 2 {
		t.Fatalf("Executed = %d, want 2", res.Data.Executed)
	}
	if res.Data.Succeeded != 1 || res.Data.Failed != 1 {
		t.Fatalf("report = %+v, want 1 succeeded / 1 failed", res.Data)
	}
}

func TestExecuteDueStopOnError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{MaxRetries: 1})
	f.panel.failures = 10
	f.create(t, "arm monday at 9 pm")
	f.create(t, "arm monday at 9:10 pm")

	f.setNow(time.Date(2026, 1, 5, 21, 30, 0, 0, time.UTC))

	res := f.svc.ExecuteDue(context.Background(), SweepOptions{StopOnError: true})
	if !res.OK {
		t.Fatalf("ExecuteDue: %v", res.Err)
	}
	if res.Data.Executed != 1 {
		t.Fatalf("Executed = %d, want 1 (stopped after first failure)", res.Data.Executed)
	}
}

func TestExecuteOverdueSkipsStale(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.create(t, "arm monday at 9 pm")

	// Two days late with a 24h staleness cutoff: skipped, not executed.
	f.setNow(time.Date(2026, 1, 7, 21, 0, 0, 0, time.UTC))

	res := f.svc.ExecuteOverdue(context.Background(), SweepOptions{MaxOverdueAge: 24 * time.Hour})
	if !res.OK {
		t.Fatalf("ExecuteOverdue: %v", res.Err)
	}
	if res.Data.Skipped != 1 || res.Data.Executed != 0 {
		t.Fatalf("report = %+v, want 1 skipped / 0 executed", res.Data)
	}
}

func TestUpdateChangesTime(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	st := f.create(t, "arm weekdays at 9 pm")

	at, _ := schedule.NewTimeOfDay(22, 30)
	res := f.svc.Update(context.Background(), UpdateRequest{
		ActorID: "u1", TaskID: st.ID, At: &at,
	})
	if !res.OK {
		t.Fatalf("Update failed: %v", res.Err)
	}
	if len(res.Data.Changes) != 1 || res.Data.Changes[0].Field != "time" {
		t.Fatalf("Changes = %+v, want one time change", res.Data.Changes)
	}
	want := time.Date(2026, 1, 5, 22, 30, 0, 0, time.UTC)
	if res.Data.Task.NextRun == nil || !res.Data.Task.NextRun.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", res.Data.Task.NextRun, want)
	}
}

func TestUpdateNoChangesIsNoOp(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	st := f.create(t, "arm weekdays at 9 pm")

	res := f.svc.Update(context.Background(), UpdateRequest{ActorID: "u1", TaskID: st.ID})
	if !res.OK {
		t.Fatalf("Update failed: %v", res.Err)
	}
	if len(res.Data.Changes) != 0 {
		t.Fatalf("Changes = %+v, want none", res.Data.Changes)
	}
}

func TestUpdatePermissions(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	st := f.create(t, "arm weekdays at 9 pm")

	at, _ := schedule.NewTimeOfDay(20, 0)

	denied := f.svc.Update(context.Background(), UpdateRequest{ActorID: "u2", TaskID: st.ID, At: &at})
	if denied.OK || denied.Err.Kind != KindPermission {
		t.Fatalf("expected permission failure, got %+v", denied)
	}

	admin := f.svc.Update(context.Background(), UpdateRequest{ActorID: "root", TaskID: st.ID, At: &at})
	if !admin.OK {
		t.Fatalf("admin update failed: %v", admin.Err)
	}
}

func TestCancelWithImpact(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	st := f.create(t, "arm weekdays at 9 pm")
	f.create(t, "arm weekends at 10 pm")

	res := f.svc.Cancel(context.Background(), CancelRequest{
		ActorID: "u1", TaskID: st.ID, Reason: "going on vacation",
	})
	if !res.OK {
		t.Fatalf("Cancel failed: %v", res.Err)
	}
	if res.Data.Task.Status != task.StatusCancelled {
		t.Fatalf("Status = %v, want %v", res.Data.Task.Status, task.StatusCancelled)
	}
	if res.Data.Task.CancelReason != "going on vacation" {
		t.Fatalf("CancelReason = %q", res.Data.Task.CancelReason)
	}
	// Weekday schedule over 30 days: at least 20 missed executions.
	if len(res.Data.Impact.MissedExecutions) < 20 {
		t.Fatalf("MissedExecutions = %d, want >= 20", len(res.Data.Impact.MissedExecutions))
	}
	// The weekend arm schedule remains; its next run is the fallback.
	if res.Data.Impact.NextSameAction == nil {
		t.Fatal("expected next same-action schedule in impact")
	}
}

func TestCancelTwiceFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	st := f.create(t, "arm weekdays at 9 pm")

	first := f.svc.Cancel(context.Background(), CancelRequest{ActorID: "u1", TaskID: st.ID})
	if !first.OK {
		t.Fatalf("Cancel failed: %v", first.Err)
	}
	second := f.svc.Cancel(context.Background(), CancelRequest{ActorID: "u1", TaskID: st.ID})
	if second.OK {
		t.Fatal("expected second cancel to fail")
	}
}

func TestCancelFailedRequiresForce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	st := f.create(t, "arm weekdays at 9 pm")

	loaded, err := f.store.FindByID(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if err := loaded.MarkExecutionFailed("panel offline", anchor); err != nil {
		t.Fatalf("MarkExecutionFailed: %v", err)
	}
	if err := f.store.Save(context.Background(), loaded); err != nil {
		t.Fatalf("Save: %v", err)
	}

	plain := f.svc.Cancel(context.Background(), CancelRequest{ActorID: "u1", TaskID: st.ID})
	if plain.OK || plain.Err.Kind != KindValidation {
		t.Fatalf("plain cancel = %+v, want validation failure", plain)
	}

	forced := f.svc.Cancel(context.Background(), CancelRequest{ActorID: "u1", TaskID: st.ID, Force: true, Reason: "cleanup"})
	if !forced.OK {
		t.Fatalf("forced cancel failed: %v", forced.Err)
	}
	if forced.Data.Task.Status != task.StatusCancelled {
		t.Fatalf("Status = %v, want %v", forced.Data.Task.Status, task.StatusCancelled)
	}
}

func TestEmergencyCancelRequiresAdmin(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	st := f.create(t, "arm weekdays at 9 pm")

	denied := f.svc.EmergencyCancel(context.Background(), "u2", st.ID, "")
	if denied.OK || denied.Err.Kind != KindPermission {
		t.Fatalf("expected permission failure, got %+v", denied)
	}

	res := f.svc.EmergencyCancel(context.Background(), "root", st.ID, "")
	if !res.OK {
		t.Fatalf("EmergencyCancel failed: %v", res.Err)
	}
	if res.Data.Task.CancelReason == "" {
		t.Fatal("expected default emergency reason")
	}
}

func TestCancelNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	res := f.svc.Cancel(context.Background(), CancelRequest{ActorID: "u1", TaskID: "missing"})
	if res.OK || res.Err.Kind != KindNotFound {
		t.Fatalf("expected not-found failure, got %+v", res)
	}
}

func TestListFiltersAndSummary(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.create(t, "arm weekdays at 9 pm")
	f.create(t, "disarm weekdays at 7 am")
	weekend := f.create(t, "arm weekends at 10 pm")
	f.svc.Cancel(context.Background(), CancelRequest{ActorID: "u1", TaskID: weekend.ID})

	res := f.svc.List(context.Background(), ListRequest{ActorID: "u1"})
	if !res.OK {
		t.Fatalf("List failed: %v", res.Err)
	}
	if res.Data.Total != 3 {
		t.Fatalf("Total = %d, want 3", res.Data.Total)
	}
	if res.Data.Summary.ByStatus[task.StatusActive] != 2 {
		t.Fatalf("active count = %d, want 2", res.Data.Summary.ByStatus[task.StatusActive])
	}
	if res.Data.Summary.ByStatus[task.StatusCancelled] != 1 {
		t.Fatalf("cancelled count = %d, want 1", res.Data.Summary.ByStatus[task.StatusCancelled])
	}

	active := f.svc.List(context.Background(), ListRequest{
		ActorID: "u1", Statuses: []task.Status{task.StatusActive},
	})
	if !active.OK || active.Data.Total != 2 {
		t.Fatalf("active Total = %d, want 2", active.Data.Total)
	}

	disarms := f.svc.List(context.Background(), ListRequest{ActorID: "u1", Action: task.ActionDisarm})
	if !disarms.OK || disarms.Data.Total != 1 {
		t.Fatalf("disarm Total = %d, want 1", disarms.Data.Total)
	}

	search := f.svc.List(context.Background(), ListRequest{ActorID: "u1", Search: "weekends"})
	if !search.OK || search.Data.Total != 1 {
		t.Fatalf("search Total = %d, want 1", search.Data.Total)
	}
}

func TestListPagination(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.create(t, "arm monday at 9 pm")
	f.create(t, "arm tuesday at 9 pm")
	f.create(t, "arm wednesday at 9 pm")

	page := f.svc.List(context.Background(), ListRequest{ActorID: "u1", Limit: 2})
	if !page.OK {
		t.Fatalf("List failed: %v", page.Err)
	}
	if len(page.Data.Tasks) != 2 || page.Data.Total != 3 {
		t.Fatalf("page = %d tasks of %d, want 2 of 3", len(page.Data.Tasks), page.Data.Total)
	}

	rest := f.svc.List(context.Background(), ListRequest{ActorID: "u1", Offset: 2, Limit: 2})
	if !rest.OK || len(rest.Data.Tasks) != 1 {
		t.Fatalf("rest = %d tasks, want 1", len(rest.Data.Tasks))
	}

	// Default next-run sort: Monday before Tuesday before Wednesday.
	first := page.Data.Tasks[0]
	if first.NextRun == nil || first.NextRun.Weekday() != time.Monday {
		t.Fatalf("first task runs %v, want Monday", first.NextRun)
	}
}

func TestListScopesNonAdminToOwnTasks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.create(t, "arm weekdays at 9 pm")
	other := f.svc.Create(context.Background(), CreateRequest{UserID: "u2", Command: "arm weekends at 10 pm"})
	if !other.OK {
		t.Fatalf("Create for u2 failed: %v", other.Err)
	}

	mine := f.svc.List(context.Background(), ListRequest{ActorID: "u1", UserID: "u2"})
	if !mine.OK || mine.Data.Total != 1 {
		t.Fatalf("Total = %d, want 1 (scoped to own)", mine.Data.Total)
	}

	all := f.svc.List(context.Background(), ListRequest{ActorID: "root"})
	if !all.OK || all.Data.Total != 2 {
		t.Fatalf("admin Total = %d, want 2", all.Data.Total)
	}
}

func TestAuditTrailRecorded(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	st := f.create(t, "arm weekdays at 9 pm")
	f.svc.Cancel(context.Background(), CancelRequest{ActorID: "u1", TaskID: st.ID, Reason: "test"})

	entries := f.store.AuditEntries()
	if len(entries) < 2 {
		t.Fatalf("audit entries = %d, want >= 2", len(entries))
	}
	categories := map[string]bool{}
	for _, e := range entries {
		categories[e.Category] = true
	}
	if !categories["schedule.create"] || !categories["schedule.cancel"] {
		t.Fatalf("categories = %v, want create and cancel", categories)
	}
}

func TestBulkCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	a := f.create(t, "arm monday at 9 pm")
	b := f.create(t, "arm tuesday at 9 pm")

	out := f.svc.BulkCancel(context.Background(), "u1", []string{a.ID, b.ID, "missing"}, "cleanup")
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	if !out[0].Result.OK || !out[1].Result.OK {
		t.Fatalf("expected first two cancels to succeed: %+v", out)
	}
	if out[2].Result.OK {
		t.Fatal("expected missing task cancel to fail")
	}
}

func TestRetryDelayGrowth(t *testing.T) {
	t.Parallel()
	want := []time.Duration{5 * time.Minute, 10 * time.Minute, 20 * time.Minute, 40 * time.Minute}
	for i, w := range want {
		if got := retryDelay(i); got != w {
			t.Fatalf("retryDelay(%d) = %v, want %v", i, got, w)
		}
	}
}
