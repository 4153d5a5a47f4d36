package runtime

import (
	"testing"
	"time"

	"github.com/hatdsl/hat/internal/integration/dummy"
	"github.com/hatdsl/hat/internal/value"
)

func TestNumberAndStringConversions(t *testing.T) {
	ec := &EvalContext{Runtime: mustRuntime(t)}

	tests := []struct {
		src     string
		want    value.Value
		wantErr bool
	}{
		{`number("3.5")`, value.Number(3.5), false},
		{`number(true)`, value.Number(1), false},
		{`number(false)`, value.Number(0), false},
		{`number(7)`, value.Number(7), false},
		{`number("x")`, value.Null(), true},
		{`number(null)`, value.Null(), true},
		{`number(12:00)`, value.Null(), true},
		{`string(3.5)`, value.String("3.5"), false},
		{`string(true)`, value.String("true"), false},
		{`string(null)`, value.String("null"), false},
		{`string(12:30)`, value.String("12:30:00"), false},
		{`number(string(42))`, value.Number(42), false},
		{`number(string(true))`, value.Number(1), false},
	}

	for _, tt := range tests {
		got, err := evalSrc(t, ec, tt.src)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got %v", tt.src, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tt.src, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func mustRuntime(t *testing.T) *Runtime {
	t.Helper()
	r, _ := newTestRuntime(t)
	return r
}

func TestTimeBuiltin(t *testing.T) {
	ec := &EvalContext{Runtime: mustRuntime(t)}

	got, err := evalSrc(t, ec, `time("7:30") == 7:30:00`)
	if err != nil || !got.Equal(value.Bool(true)) {
		t.Errorf("time(string) = %v, %v", got, err)
	}
	if _, err := evalSrc(t, ec, `time("25:00")`); err == nil {
		t.Error("time(\"25:00\") must fail")
	}
	if _, err := evalSrc(t, ec, `time(5)`); err == nil {
		t.Error("time(number) must fail")
	}

	// No argument: current local time, compared loosely.
	now, err := evalSrc(t, ec, `time()`)
	if err != nil {
		t.Fatal(err)
	}
	if now.Kind() != value.KindTime {
		t.Errorf("time() kind = %v", now.Kind())
	}
}

func TestDeviceStateBuiltins(t *testing.T) {
	r, buf := newTestRuntime(t)
	d := dummy.NewWithInterval(time.Hour)
	defer d.Close()
	r.Integrate(d)

	ec := &EvalContext{Runtime: r}
	fullID := `"` + d.ID() + `@dummy-device-2707"`

	got, err := evalSrc(t, ec, `is_device_off(`+fullID+`)`)
	if err != nil || !got.Equal(value.Bool(true)) {
		t.Fatalf("is_device_off = %v, %v", got, err)
	}

	// Actuation is async; poll for the state flip.
	if _, err := evalSrc(t, ec, `turn_on_device(`+fullID+`)`); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool {
		on, err := evalSrc(t, ec, `is_device_on(`+fullID+`)`)
		return err == nil && on.Equal(value.Bool(true))
	}) {
		t.Fatalf("device never turned on, log:\n%s", buf.String())
	}

	got, err = evalSrc(t, ec, `get_device_state(`+fullID+`)`)
	if err != nil || !got.Equal(value.String("on")) {
		t.Errorf("get_device_state = %v, %v", got, err)
	}

	// Bare device ids resolve across integrations.
	got, err = evalSrc(t, ec, `is_device_on("dummy-device-2707")`)
	if err != nil || !got.Equal(value.Bool(true)) {
		t.Errorf("bare id lookup = %v, %v", got, err)
	}

	if _, err := evalSrc(t, ec, `is_device_on("nope@missing")`); err == nil {
		t.Error("unknown device must be an error")
	}
	if _, err := evalSrc(t, ec, `get_device_state("missing-device")`); err == nil {
		t.Error("unknown bare device must be an error")
	}
}

func TestSetLightBuiltinsValidateArguments(t *testing.T) {
	r, _ := newTestRuntime(t)
	d := dummy.NewWithInterval(time.Hour)
	defer d.Close()
	r.Integrate(d)

	ec := &EvalContext{Runtime: r}
	fullID := `"` + d.ID() + `@dummy-device-2707"`

	if _, err := evalSrc(t, ec, `set_light_color(`+fullID+`, "#00ff7f")`); err != nil {
		t.Errorf("valid color rejected: %v", err)
	}
	if _, err := evalSrc(t, ec, `set_light_color(`+fullID+`, "00ff7f")`); err == nil {
		t.Error("color without '#' must fail")
	}
	if _, err := evalSrc(t, ec, `set_light_color(`+fullID+`, "#00ff7")`); err == nil {
		t.Error("short color must fail")
	}
	if _, err := evalSrc(t, ec, `set_light_color(`+fullID+`, 5)`); err == nil {
		t.Error("non-string color must fail")
	}

	if _, err := evalSrc(t, ec, `set_light_brightness(`+fullID+`, 128)`); err != nil {
		t.Errorf("valid brightness rejected: %v", err)
	}
	if _, err := evalSrc(t, ec, `set_light_brightness(`+fullID+`, 300)`); err == nil {
		t.Error("brightness above 255 must fail")
	}
	if _, err := evalSrc(t, ec, `set_light_brightness(`+fullID+`, "high")`); err == nil {
		t.Error("non-numeric brightness must fail")
	}
}

func TestWaitSuspends(t *testing.T) {
	ec := &EvalContext{Runtime: mustRuntime(t)}

	start := time.Now()
	got, err := evalSrc(t, ec, `wait(0.2)`)
	if err != nil || !got.IsNull() {
		t.Fatalf("wait = %v, %v", got, err)
	}
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Errorf("wait returned after %v, want >= 200ms", elapsed)
	}

	if _, err := evalSrc(t, ec, `wait("long")`); err == nil {
		t.Error("non-numeric wait must fail")
	}
}

func TestParseHexColor(t *testing.T) {
	rgb, err := parseHexColor("#0A80ff")
	if err != nil {
		t.Fatal(err)
	}
	if rgb != [3]byte{0x0a, 0x80, 0xff} {
		t.Errorf("decoded %v", rgb)
	}

	for _, bad := range []string{"", "#", "#12345", "#1234567", "123456#", "#gg0000"} {
		if _, err := parseHexColor(bad); err == nil {
			t.Errorf("%q must fail", bad)
		}
	}
}
