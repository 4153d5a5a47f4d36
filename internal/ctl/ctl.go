// Package ctl implements the hatctl subcommands against a running hatd.
package ctl

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hatdsl/hat/internal/client"
	"github.com/hatdsl/hat/internal/version"
)

const defaultDaemonURL = "http://127.0.0.1:5000"

// isTTY returns true if stdout is connected to a terminal.
func isTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func daemonURL() string {
	if fromEnv := os.Getenv("HATD_URL"); fromEnv != "" {
		return fromEnv
	}
	return defaultDaemonURL
}

func Run(toolName string, args []string) int {
	if len(args) == 0 {
		printUsage(toolName)
		return 2
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "status":
		return runStatus(commandArgs)
	case "devices":
		return runDevices(commandArgs)
	case "device":
		return runDevice(commandArgs)
	case "events":
		return runEvents(commandArgs)
	case "history":
		return runHistory(commandArgs)
	case "clear-history":
		return runClearHistory(commandArgs)
	case "push":
		return runPush(commandArgs)
	case "version":
		fmt.Println(version.Version)
		if result, err := version.Check(); err == nil {
			if notice := version.FormatUpdateNotice(result); notice != "" {
				fmt.Fprintln(os.Stderr, notice)
			}
		}
		return 0
	case "help", "-h", "--help":
		printUsage(toolName)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage(toolName)
		return 2
	}
}

func printUsage(toolName string) {
	fmt.Printf(`usage: %s <command> [flags]

commands:
  status            show daemon status (uptime, automations, integrations)
  devices           list devices across all integrations
  device <id>       look one device up (integration@device or bare id)
  events            list the event type names usable as triggers
  history           show the recorded event history
  clear-history     delete recorded events (requires filters or --all)
  push <file.hat>   replace the loaded source with a HAT file
  version           print the hatctl version

The daemon address defaults to %s; override with $HATD_URL or --url.
`, toolName, defaultDaemonURL)
}

func newFlags(name string) (*flag.FlagSet, *string, *bool) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	urlFlag := flags.String("url", daemonURL(), "hatd base URL")
	jsonOut := flags.Bool("json", !isTTY(), "output as JSON (default when stdout is not a terminal)")
	return flags, urlFlag, jsonOut
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, err)
	return 1
}

func emitJSON(body any) int {
	_ = json.NewEncoder(os.Stdout).Encode(body)
	return 0
}

func runStatus(args []string) int {
	flags, urlFlag, jsonOut := newFlags("status")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	resp, err := client.New(*urlFlag).Status(context.Background())
	if err != nil {
		return fail(err)
	}

	if *jsonOut {
		return emitJSON(resp)
	}

	fmt.Printf("up %ds, %d automation(s), %d integration(s)\n",
		resp.UptimeSec, len(resp.Automations), len(resp.Integrations))
	for _, name := range resp.Automations {
		fmt.Printf("  automation %s\n", name)
	}
	for _, id := range resp.Integrations {
		fmt.Printf("  integration %s\n", id)
	}
	return 0
}

func runDevices(args []string) int {
	flags, urlFlag, jsonOut := newFlags("devices")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	resp, err := client.New(*urlFlag).Devices(context.Background())
	if err != nil {
		return fail(err)
	}

	if *jsonOut {
		return emitJSON(resp.Devices)
	}

	for _, device := range resp.Devices {
		fmt.Printf("%s\t%s\t%s\t%s\n", device.FullID(), device.Type, device.State, device.Name)
	}
	return 0
}

func runDevice(args []string) int {
	flags, urlFlag, jsonOut := newFlags("device")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: device <id>")
		return 2
	}

	resp, err := client.New(*urlFlag).Device(context.Background(), flags.Arg(0))
	if err != nil {
		return fail(err)
	}
	if resp.Device == nil {
		fmt.Fprintf(os.Stderr, "device %q not found\n", flags.Arg(0))
		return 1
	}

	if *jsonOut {
		return emitJSON(resp.Device)
	}

	fmt.Printf("%s\t%s\t%s\t%s\n", resp.Device.FullID(), resp.Device.Type, resp.Device.State, resp.Device.Name)
	return 0
}

func runEvents(args []string) int {
	flags, urlFlag, jsonOut := newFlags("events")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	resp, err := client.New(*urlFlag).PossibleEvents(context.Background())
	if err != nil {
		return fail(err)
	}

	if *jsonOut {
		return emitJSON(resp.Events)
	}

	for _, name := range resp.Events {
		fmt.Println(name)
	}
	return 0
}

func runHistory(args []string) int {
	flags, urlFlag, jsonOut := newFlags("history")
	integrationFlag := flags.String("integration", "", "filter by integration id")
	deviceFlag := flags.String("device", "", "filter by device id")
	typeFlag := flags.String("type", "", "filter by event type name")
	sinceFlag := flags.Int64("since-id", 0, "only events after this id")
	limitFlag := flags.Int("limit", 50, "maximum rows")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	resp, err := client.New(*urlFlag).History(context.Background(), client.HistoryOptions{
		Integration: *integrationFlag,
		DeviceID:    *deviceFlag,
		EventType:   *typeFlag,
		SinceID:     *sinceFlag,
		Limit:       *limitFlag,
	})
	if err != nil {
		return fail(err)
	}

	if *jsonOut {
		return emitJSON(resp.Events)
	}

	for _, event := range resp.Events {
		fmt.Printf("%d\t%s\t%s\t%s@%s\n",
			event.ID, event.Timestamp.Local().Format("2006-01-02 15:04:05"),
			event.EventType, event.Integration, event.DeviceID)
	}
	return 0
}

func runClearHistory(args []string) int {
	flags, urlFlag, _ := newFlags("clear-history")
	integrationFlag := flags.String("integration", "", "filter by integration id")
	deviceFlag := flags.String("device", "", "filter by device id")
	typeFlag := flags.String("type", "", "filter by event type name")
	allFlag := flags.Bool("all", false, "clear everything (required without filters)")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cleared, err := client.New(*urlFlag).ClearHistory(context.Background(), client.HistoryOptions{
		Integration: *integrationFlag,
		DeviceID:    *deviceFlag,
		EventType:   *typeFlag,
	}, *allFlag)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("cleared %d event(s)\n", cleared)
	return 0
}

func runPush(args []string) int {
	flags, urlFlag, _ := newFlags("push")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: push <file.hat>")
		return 2
	}

	path := flags.Arg(0)
	source, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}

	if err := client.New(*urlFlag).UpdateCode(context.Background(), filepath.Base(path), string(source)); err != nil {
		return fail(err)
	}

	fmt.Printf("pushed %s\n", path)
	return 0
}
