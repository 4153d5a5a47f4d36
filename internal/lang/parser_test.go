package lang

import (
	"errors"
	"strings"
	"testing"

	"github.com/hatdsl/hat/internal/value"
)

func parseOne(t *testing.T, src string) *Program {
	t.Helper()
	program, err := Parse("test.hat", src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return program
}

func TestParseAutomation(t *testing.T) {
	program := parseOne(t, `
// turn on the hallway light when the door opens
automation Hallway(DoorOpenEvent, DoorCloseEvent) {
	if is_device_off("hass@light.hallway");
	run turn_on_device("hass@light.hallway")
	run echo("done")
}`)

	if len(program.Automations) != 1 || len(program.ScheduleTasks) != 0 {
		t.Fatalf("unexpected program shape: %d automations, %d tasks",
			len(program.Automations), len(program.ScheduleTasks))
	}

	a := program.Automations[0]
	if a.Name != "Hallway" {
		t.Errorf("name = %q", a.Name)
	}
	if len(a.Triggers) != 2 || a.Triggers[0] != "DoorOpenEvent" || a.Triggers[1] != "DoorCloseEvent" {
		t.Errorf("triggers = %v", a.Triggers)
	}
	if len(a.Conditions) != 1 || len(a.Actions) != 2 {
		t.Errorf("body shape = %d conditions, %d actions", len(a.Conditions), len(a.Actions))
	}
	if !a.TriggeredBy("dooropenevent") {
		t.Error("trigger matching must be case-insensitive")
	}
	if a.TriggeredBy("LightOnEvent") {
		t.Error("must not match unrelated events")
	}
}

func TestParseStringName(t *testing.T) {
	program := parseOne(t, `automation "Front Door"(DoorOpenEvent) { run echo("x") }`)
	if got := program.Automations[0].Name; got != "Front Door" {
		t.Errorf("name = %q", got)
	}
}

func TestParseDuplicateNamesKeepBoth(t *testing.T) {
	// The parser reports both; the runtime lets the later one replace the
	// earlier on insert.
	program := parseOne(t, `
automation A(Dummy) { run echo("1") }
automation A(Dummy) { run echo("2") }`)
	if len(program.Automations) != 2 {
		t.Fatalf("expected both declarations, got %d", len(program.Automations))
	}
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`1 + 2 * 3`, `1 + 2 * 3`},
		{`(1 + 2) * 3`, `1 + 2 * 3`}, // grouping is structural, not textual
		{`1 + 2 == 3 and true`, `1 + 2 == 3 and true`},
		{`1 < 2 + 3`, `1 < 2 + 3`},
	}

	for _, tt := range tests {
		program := parseOne(t, `automation P(Dummy) { if `+tt.src+` }`)
		got := program.Automations[0].Conditions[0].String()
		if got != tt.want {
			t.Errorf("%q parsed as %q, want %q", tt.src, got, tt.want)
		}
	}

	// a + b * c must group as a + (b * c).
	program := parseOne(t, `automation P(Dummy) { if 1 + 2 * 3 }`)
	bin, ok := program.Automations[0].Conditions[0].(BinaryOperation)
	if !ok || bin.Op != OpAdd {
		t.Fatalf("top operator = %v", program.Automations[0].Conditions[0])
	}
	if inner, ok := bin.RHS.(BinaryOperation); !ok || inner.Op != OpMul {
		t.Errorf("rhs = %v, want multiplication", bin.RHS)
	}

	// == binds loosest: a and b == c groups as (a and b...) no —
	// equality is below and/or, so `true and 1 == 2` is (true and 1) == 2.
	program = parseOne(t, `automation P(Dummy) { if true and 1 == 2 }`)
	bin, ok = program.Automations[0].Conditions[0].(BinaryOperation)
	if !ok || bin.Op != OpEq {
		t.Errorf("top operator = %v, want ==", program.Automations[0].Conditions[0])
	}

	// Left associativity: 10 - 2 - 3 is (10 - 2) - 3.
	program = parseOne(t, `automation P(Dummy) { if 10 - 2 - 3 }`)
	bin = program.Automations[0].Conditions[0].(BinaryOperation)
	if left, ok := bin.LHS.(BinaryOperation); !ok || left.Op != OpSub {
		t.Errorf("lhs = %v, want subtraction", bin.LHS)
	}
}

func TestParseTimeLiterals(t *testing.T) {
	tests := []struct {
		text    string
		want    string
		wantErr bool
	}{
		{"23:59:59", "23:59:59", false},
		{"7:30", "07:30:00", false},
		{"06:00", "06:00:00", false},
		{"24:00:00", "", true},
		{"12:60", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTime(tt.text)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTime(%q) succeeded with %v", tt.text, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTime(%q): %v", tt.text, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParseTime(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestParseTimeAtomRejected(t *testing.T) {
	_, err := Parse("test.hat", `automation T(Dummy) { if 24:00:00 == 24:00:00 }`)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestParseSchedules(t *testing.T) {
	program := parseOne(t, `
schedule Nightly(at 22:30) { run echo("night") }
schedule Weekly(weekly monday at 07:00:30) { run echo("week") }
schedule Fast(cron("*/1 * * * * *")) { run echo("tick") }`)

	if len(program.ScheduleTasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(program.ScheduleTasks))
	}

	if got := program.ScheduleTasks[0].Interval.CronExpr(); got != "0 30 22 * * *" {
		t.Errorf("nightly cron = %q", got)
	}
	if got := program.ScheduleTasks[1].Interval.CronExpr(); got != "30 0 7 * * 1" {
		t.Errorf("weekly cron = %q", got)
	}
	if got := program.ScheduleTasks[2].Interval.CronExpr(); got != "*/1 * * * * *" {
		t.Errorf("raw cron = %q", got)
	}
}

func TestParseComments(t *testing.T) {
	program := parseOne(t, `
/* block
   comment */
automation C(Dummy) { // trailing
	run echo("x") /* inline */
}`)
	if len(program.Automations) != 1 {
		t.Fatalf("expected 1 automation, got %d", len(program.Automations))
	}
}

func TestParseErrorPositions(t *testing.T) {
	src := "automation A(Dummy) {\n\trun echo(\n}"
	_, err := Parse("broken.hat", src)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if parseErr.File != "broken.hat" {
		t.Errorf("file = %q", parseErr.File)
	}
	if parseErr.Line != 3 {
		t.Errorf("line = %d, want 3", parseErr.Line)
	}
	if len(parseErr.Expected) == 0 {
		t.Error("expected-token set is empty")
	}
	if !strings.Contains(parseErr.Error(), "broken.hat:3:") {
		t.Errorf("message lacks position: %q", parseErr.Error())
	}
}

func TestParseUnterminatedString(t *testing.T) {
	_, err := Parse("test.hat", `automation A(Dummy) { run echo("oops) }`)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestParseConstants(t *testing.T) {
	program := parseOne(t, `automation K(Dummy) { run echo(null, true, false, "s", 3.5, 12:30) }`)
	call := program.Automations[0].Actions[0].(FunctionCall)
	if len(call.Args) != 6 {
		t.Fatalf("argument count = %d", len(call.Args))
	}

	wantKinds := []value.Kind{
		value.KindNull, value.KindBoolean, value.KindBoolean,
		value.KindString, value.KindNumber, value.KindTime,
	}
	for i, want := range wantKinds {
		got := call.Args[i].(Constant).Value.Kind()
		if got != want {
			t.Errorf("arg %d kind = %v, want %v", i, got, want)
		}
	}
}
