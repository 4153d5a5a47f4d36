package runtime

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hatdsl/hat/internal/integration"
)

// logBuffer is a concurrency-safe log sink for assertions.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *logBuffer) contains(substr string) bool {
	return strings.Contains(b.String(), substr)
}

// waitFor polls until the predicate holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, predicate func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if predicate() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return predicate()
}

func newTestRuntime(t *testing.T) (*Runtime, *logBuffer) {
	t.Helper()
	buf := &logBuffer{}
	r := New(WithLogger(log.New(buf, "", 0)))
	t.Cleanup(r.Close)
	return r, buf
}

func testEvent(typ integration.EventType) integration.Event {
	return integration.Event{
		Type:      typ,
		Timestamp: time.Now().Local(),
		Device: integration.Device{
			Integration: "test",
			ID:          "test_dev",
			Type:        integration.DeviceDummy,
			State:       "on",
		},
	}
}

func TestEchoActionRuns(t *testing.T) {
	r, buf := newTestRuntime(t)

	if err := r.Parse("test.hat", `automation A(Dummy) { run echo("hi", 1+2) }`); err != nil {
		t.Fatal(err)
	}
	if err := r.DispatchEvent(testEvent(integration.EventDummy)); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return buf.contains("[ECHO] hi 3") }) {
		t.Fatalf("echo output missing, log:\n%s", buf.String())
	}
}

func TestFalsyConditionStopsActions(t *testing.T) {
	r, buf := newTestRuntime(t)

	if err := r.Parse("test.hat", `automation G(DoorOpenEvent) { if false; run echo("x") }`); err != nil {
		t.Fatal(err)
	}
	if err := r.DispatchEvent(testEvent(integration.EventDoorOpen)); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if buf.contains("[ECHO]") {
		t.Fatalf("action ran despite falsy condition, log:\n%s", buf.String())
	}
}

func TestEventTimeBetweenAcrossMidnight(t *testing.T) {
	r, buf := newTestRuntime(t)

	src := `
automation T(DoorOpenEvent) {
	if event_time_between("22:00", "06:00");
	run echo("night")
}`
	if err := r.Parse("test.hat", src); err != nil {
		t.Fatal(err)
	}

	nightEvent := testEvent(integration.EventDoorOpen)
	nightEvent.Timestamp = time.Date(2024, 1, 1, 23, 30, 0, 0, time.Local)
	if err := r.DispatchEvent(nightEvent); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return buf.contains("[ECHO] night") }) {
		t.Fatalf("23:30 should be inside 22:00-06:00, log:\n%s", buf.String())
	}

	r2, buf2 := newTestRuntime(t)
	if err := r2.Parse("test.hat", src); err != nil {
		t.Fatal(err)
	}
	dayEvent := testEvent(integration.EventDoorOpen)
	dayEvent.Timestamp = time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
	if err := r2.DispatchEvent(dayEvent); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if buf2.contains("[ECHO] night") {
		t.Fatal("12:00 must not be inside 22:00-06:00")
	}
}

func TestScheduleFires(t *testing.T) {
	r, buf := newTestRuntime(t)

	if err := r.Parse("test.hat", `schedule Tick(cron("*/1 * * * * *")) { run echo("tick") }`); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 3*time.Second, func() bool {
		return strings.Count(buf.String(), "[ECHO] tick") >= 2
	}) {
		t.Fatalf("expected at least two ticks within 3 seconds, log:\n%s", buf.String())
	}
}

func TestFailureIsolationBetweenAutomations(t *testing.T) {
	r, buf := newTestRuntime(t)

	src := `
automation Bad(Dummy) {
	run number(null)
	run echo("unreachable")
}
automation Good(Dummy) {
	run echo("survived")
}`
	if err := r.Parse("test.hat", src); err != nil {
		t.Fatal(err)
	}
	if err := r.DispatchEvent(testEvent(integration.EventDummy)); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return buf.contains("[ECHO] survived") }) {
		t.Fatalf("second automation did not run, log:\n%s", buf.String())
	}
	if !waitFor(t, 2*time.Second, func() bool { return buf.contains("action of Bad failed") }) {
		t.Fatalf("failure was not logged, log:\n%s", buf.String())
	}
	if buf.contains("[ECHO] unreachable") {
		t.Fatal("actions after a failed one must not run")
	}
}

func TestReplaceSourceClearsRules(t *testing.T) {
	r, buf := newTestRuntime(t)

	if err := r.Parse("test.hat", `automation A(Dummy) { run echo("old") }`); err != nil {
		t.Fatal(err)
	}
	if got := len(r.AutomationNames()); got != 1 {
		t.Fatalf("automation count = %d, want 1", got)
	}

	if err := r.ReplaceSource("empty.hat", ``); err != nil {
		t.Fatal(err)
	}
	if got := len(r.AutomationNames()); got != 0 {
		t.Fatalf("automation count after empty replace = %d, want 0", got)
	}

	if err := r.DispatchEvent(testEvent(integration.EventDummy)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if buf.contains("[ECHO] old") {
		t.Fatal("cleared automation still ran")
	}
}

func TestReplaceSourceIsIdempotent(t *testing.T) {
	r, _ := newTestRuntime(t)

	src := `
automation One(Dummy, DoorOpenEvent) { if true; run echo("1") }
automation Two(LightOnEvent) { run echo("2") }
schedule Nightly(at 03:00) { run echo("n") }`

	if err := r.Parse("first.hat", src); err != nil {
		t.Fatal(err)
	}
	first := r.AutomationNames()

	if err := r.ReplaceSource("second.hat", src); err != nil {
		t.Fatal(err)
	}
	second := r.AutomationNames()

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("cardinality: first=%d second=%d, want 2", len(first), len(second))
	}
	for _, name := range []string{"One", "Two"} {
		found := false
		for _, got := range second {
			if got == name {
				found = true
			}
		}
		if !found {
			t.Errorf("automation %s missing after replace", name)
		}
	}
}

func TestUnmatchedEventRunsNothing(t *testing.T) {
	r, buf := newTestRuntime(t)

	if err := r.Parse("test.hat", `automation A(DoorOpenEvent) { run echo("door") }`); err != nil {
		t.Fatal(err)
	}
	if err := r.DispatchEvent(testEvent(integration.EventLightOn)); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if buf.contains("[ECHO]") {
		t.Fatalf("unmatched event triggered actions, log:\n%s", buf.String())
	}
}

func TestDuplicateAutomationNameLaterWins(t *testing.T) {
	r, buf := newTestRuntime(t)

	src := `
automation A(Dummy) { run echo("first") }
automation A(Dummy) { run echo("second") }`
	if err := r.Parse("test.hat", src); err != nil {
		t.Fatal(err)
	}
	if got := len(r.AutomationNames()); got != 1 {
		t.Fatalf("automation count = %d, want 1", got)
	}

	if err := r.DispatchEvent(testEvent(integration.EventDummy)); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return buf.contains("[ECHO] second") }) {
		t.Fatalf("later definition did not win, log:\n%s", buf.String())
	}
	if buf.contains("[ECHO] first") {
		t.Fatal("earlier definition ran")
	}
}

func TestInvalidCronFailsParse(t *testing.T) {
	r, _ := newTestRuntime(t)

	err := r.Parse("test.hat", `schedule Broken(cron("not a cron")) { run echo("x") }`)
	if err == nil {
		t.Fatal("expected scheduler error for invalid cron expression")
	}
}

func TestCaseInsensitiveTriggerMatching(t *testing.T) {
	r, buf := newTestRuntime(t)

	if err := r.Parse("test.hat", `automation A(dooropenevent) { run echo("open") }`); err != nil {
		t.Fatal(err)
	}
	if err := r.DispatchEvent(testEvent(integration.EventDoorOpen)); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return buf.contains("[ECHO] open") }) {
		t.Fatalf("lowercase trigger did not match, log:\n%s", buf.String())
	}
}
