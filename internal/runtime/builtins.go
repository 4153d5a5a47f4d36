package runtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hatdsl/hat/internal/integration"
	"github.com/hatdsl/hat/internal/value"
)

func (r *Runtime) registerBuiltins() {
	builtins := map[string]Function{
		"echo":                 builtinEcho,
		"get_device":           builtinGetDevice,
		"get_integration":      builtinGetIntegration,
		"event_date":           builtinEventDate,
		"event_time":           builtinEventTime,
		"time":                 builtinTime,
		"turn_on_device":       actuator("turn on", integration.Integration.TurnOnDevice),
		"turn_off_device":      actuator("turn off", integration.Integration.TurnOffDevice),
		"set_light_color":      builtinSetLightColor,
		"set_light_brightness": builtinSetLightBrightness,
		"is_device_on":         deviceStateIs("on"),
		"is_device_off":        deviceStateIs("off"),
		"get_device_state":     builtinGetDeviceState,
		"wait":                 builtinWait,
		"number":               builtinNumber,
		"string":               builtinString,
		"event_time_between":   builtinEventTimeBetween,
	}

	r.functionsMu.Lock()
	defer r.functionsMu.Unlock()
	for name, fn := range builtins {
		r.functions[name] = fn
	}
}

func builtinEcho(_ context.Context, ec *EvalContext, args []value.Value) (value.Value, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.String()
	}
	ec.Runtime.logger.Printf("[ECHO] %s", strings.Join(parts, " "))
	return value.Null(), nil
}

func builtinGetDevice(_ context.Context, ec *EvalContext, _ []value.Value) (value.Value, error) {
	if e := ec.Trigger.Event; e != nil {
		return value.String(e.Device.FullID()), nil
	}
	return value.Null(), nil
}

func builtinGetIntegration(_ context.Context, ec *EvalContext, _ []value.Value) (value.Value, error) {
	if e := ec.Trigger.Event; e != nil {
		return value.String(e.Device.Integration), nil
	}
	return value.Null(), nil
}

func builtinEventDate(_ context.Context, ec *EvalContext, _ []value.Value) (value.Value, error) {
	if e := ec.Trigger.Event; e != nil {
		return value.String(e.Timestamp.Format(time.RFC3339)), nil
	}
	return value.Null(), nil
}

func builtinEventTime(_ context.Context, ec *EvalContext, _ []value.Value) (value.Value, error) {
	if e := ec.Trigger.Event; e != nil {
		return value.TimeValue(value.TimeOfDay(e.Timestamp)), nil
	}
	return value.Null(), nil
}

// coerceToTime interprets an optional argument as a time of day: absent
// means now, a string is parsed, a time passes through.
func coerceToTime(arg *value.Value) (value.Time, error) {
	if arg == nil || arg.IsNull() {
		return value.TimeNow(), nil
	}
	switch arg.Kind() {
	case value.KindTime:
		return arg.Time(), nil
	case value.KindString:
		return parseClockString(arg.Str())
	default:
		return value.Time{}, fmt.Errorf("cannot interpret %s as a time", arg.Kind())
	}
}

func parseClockString(text string) (value.Time, error) {
	parts := strings.SplitN(text, ":", 3)
	components := [3]int{}
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return value.Time{}, fmt.Errorf("invalid time string %q", text)
		}
		components[i] = n
	}
	return value.NewTime(components[0], components[1], components[2])
}

func builtinTime(_ context.Context, _ *EvalContext, args []value.Value) (value.Value, error) {
	var arg *value.Value
	if len(args) > 0 {
		arg = &args[0]
	}
	t, err := coerceToTime(arg)
	if err != nil {
		return value.Null(), err
	}
	return value.TimeValue(t), nil
}

func stringArg(args []value.Value, idx int, what string) (string, error) {
	if idx >= len(args) {
		return "", fmt.Errorf("missing %s argument", what)
	}
	if args[idx].Kind() != value.KindString {
		return "", fmt.Errorf("%s must be a string", what)
	}
	return args[idx].Str(), nil
}

// actuator builds the turn_on_device / turn_off_device builtins. The call
// is dispatched asynchronously: the function returns immediately and routing
// failures are logged, not surfaced to the expression.
func actuator(verb string, apply func(integration.Integration, context.Context, string) error) Function {
	return func(_ context.Context, ec *EvalContext, args []value.Value) (value.Value, error) {
		fullID, err := stringArg(args, 0, "device id")
		if err != nil {
			return value.Null(), err
		}

		r := ec.Runtime
		go r.actuate(fullID, verb, func(ctx context.Context, impl integration.Integration, deviceID string) error {
			return apply(impl, ctx, deviceID)
		})
		return value.Null(), nil
	}
}

// actuate resolves the integration of a full device id and applies an
// actuation to it, logging failures with the device id.
func (r *Runtime) actuate(fullID, verb string, apply func(context.Context, integration.Integration, string) error) {
	integrationID, deviceID := SplitDeviceID(fullID)

	impl := r.GetIntegration(integrationID)
	if impl == nil && integrationID == "" {
		// Bare id: find the integration owning the device.
		for _, candidate := range r.Integrations() {
			device, err := candidate.GetDevice(r.ctx, deviceID)
			if err == nil && device != nil {
				impl = candidate
				break
			}
		}
	}
	if impl == nil {
		r.logger.Printf("[runtime] failed to find integration of device %s", fullID)
		return
	}

	if err := apply(r.ctx, impl, deviceID); err != nil {
		r.logger.Printf("[runtime] failed to %s device %s: %v", verb, fullID, err)
	}
}

func builtinSetLightColor(_ context.Context, ec *EvalContext, args []value.Value) (value.Value, error) {
	fullID, err := stringArg(args, 0, "device id")
	if err != nil {
		return value.Null(), err
	}
	colorString, err := stringArg(args, 1, "color")
	if err != nil {
		return value.Null(), err
	}
	rgb, err := parseHexColor(colorString)
	if err != nil {
		return value.Null(), err
	}

	r := ec.Runtime
	go r.actuate(fullID, "set color on", func(ctx context.Context, impl integration.Integration, deviceID string) error {
		return impl.SetLightColorRGB(ctx, deviceID, rgb)
	})
	return value.Null(), nil
}

func parseHexColor(s string) ([3]byte, error) {
	if len(s) != 7 || s[0] != '#' {
		return [3]byte{}, errors.New(`invalid RGB string format, expected "#RRGGBB"`)
	}
	var rgb [3]byte
	for i := range 3 {
		component, err := strconv.ParseUint(s[1+2*i:3+2*i], 16, 8)
		if err != nil {
			return [3]byte{}, fmt.Errorf("invalid RGB string %q: %w", s, err)
		}
		rgb[i] = byte(component)
	}
	return rgb, nil
}

func builtinSetLightBrightness(_ context.Context, ec *EvalContext, args []value.Value) (value.Value, error) {
	fullID, err := stringArg(args, 0, "device id")
	if err != nil {
		return value.Null(), err
	}
	if len(args) < 2 || args[1].Kind() != value.KindNumber {
		return value.Null(), errors.New("brightness must be a number")
	}
	level := args[1].Num()
	if level < 0 || level > 255 {
		return value.Null(), fmt.Errorf("brightness %v is out of the 0..255 range", level)
	}
	brightness := byte(level)

	r := ec.Runtime
	go r.actuate(fullID, "set brightness on", func(ctx context.Context, impl integration.Integration, deviceID string) error {
		return impl.SetLightBrightness(ctx, deviceID, brightness)
	})
	return value.Null(), nil
}

func deviceStateIs(state string) Function {
	return func(ctx context.Context, ec *EvalContext, args []value.Value) (value.Value, error) {
		fullID, err := stringArg(args, 0, "device id")
		if err != nil {
			return value.Null(), err
		}
		device, err := ec.Runtime.GetDevice(ctx, fullID)
		if err != nil {
			return value.Null(), err
		}
		if device == nil {
			return value.Null(), fmt.Errorf("device %s not found", fullID)
		}
		return value.Bool(device.State == state), nil
	}
}

func builtinGetDeviceState(ctx context.Context, ec *EvalContext, args []value.Value) (value.Value, error) {
	fullID, err := stringArg(args, 0, "device id")
	if err != nil {
		return value.Null(), err
	}
	device, err := ec.Runtime.GetDevice(ctx, fullID)
	if err != nil {
		return value.Null(), err
	}
	if device == nil {
		return value.Null(), fmt.Errorf("device %s not found", fullID)
	}
	if device.State == "" {
		return value.Null(), nil
	}
	return value.String(device.State), nil
}

func builtinWait(ctx context.Context, _ *EvalContext, args []value.Value) (value.Value, error) {
	if len(args) == 0 || args[0].Kind() != value.KindNumber {
		return value.Null(), errors.New("first argument must be the seconds to wait")
	}

	duration := time.Duration(args[0].Num()*1000) * time.Millisecond
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return value.Null(), nil
	case <-ctx.Done():
		return value.Null(), ctx.Err()
	}
}

func builtinNumber(_ context.Context, _ *EvalContext, args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return value.Null(), errors.New("first argument is missing")
	}
	arg := args[0]
	switch arg.Kind() {
	case value.KindString:
		// The string forms of booleans convert like the booleans themselves.
		switch arg.Str() {
		case "true":
			return value.Number(1), nil
		case "false":
			return value.Number(0), nil
		}
		n, err := strconv.ParseFloat(arg.Str(), 64)
		if err != nil {
			return value.Null(), fmt.Errorf("cannot parse %q as a number", arg.Str())
		}
		return value.Number(n), nil
	case value.KindBoolean:
		if arg.Boolean() {
			return value.Number(1), nil
		}
		return value.Number(0), nil
	case value.KindNumber:
		return arg, nil
	default:
		return value.Null(), fmt.Errorf("cannot convert %s into a number", arg.Kind())
	}
}

func builtinString(_ context.Context, _ *EvalContext, args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return value.Null(), errors.New("first argument is missing")
	}
	return value.String(args[0].String()), nil
}

func builtinEventTimeBetween(_ context.Context, ec *EvalContext, args []value.Value) (value.Value, error) {
	e := ec.Trigger.Event
	if e == nil {
		return value.Null(), errors.New("event_time_between executed outside an event context")
	}
	if len(args) < 2 {
		return value.Null(), errors.New("event_time_between requires exactly two arguments")
	}

	start, err := coerceToTime(&args[0])
	if err != nil {
		return value.Null(), err
	}
	end, err := coerceToTime(&args[1])
	if err != nil {
		return value.Null(), err
	}

	now := value.TimeOfDay(e.Timestamp)

	// The interval is closed and circular on the clock: when start > end it
	// crosses midnight.
	var between bool
	if start.Compare(end) <= 0 {
		between = now.Compare(start) >= 0 && now.Compare(end) <= 0
	} else {
		between = now.Compare(start) >= 0 || now.Compare(end) <= 0
	}
	return value.Bool(between), nil
}
