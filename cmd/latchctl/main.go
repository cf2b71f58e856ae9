// latchctl is a small command-line client for Schlage WiFi and BLE locks:
// list locks, lock and unlock them, inspect access codes and activity
// logs, and watch live state updates over the push channel.
//
// Usage:
//
//	latchctl [-config path] <command> [args]
//
// Commands:
//
//	locks                list all locks on the account
//	lock <device-id>     lock a device
//	unlock <device-id>   unlock a device
//	codes <device-id>    list access codes
//	logs <device-id>     show recent activity, newest first
//	users                list account users
//	watch <device-id>    stream push updates until interrupted
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/nerrad567/latchlink"
	"github.com/nerrad567/latchlink/internal/logging"
)

// Version information - set at build time via ldflags
var version = "dev"

const defaultConfigPath = "latchctl.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("latchctl", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	limit := fs.Int("limit", 20, "maximum log entries to fetch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: latchctl [-config path] <command> [args]")
	}
	command := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	log := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}, version)

	client, err := latchlink.NewClient(latchlink.Config{
		Tokens:  latchlink.NewPasswordTokens(cfg.Credentials.Username, cfg.Credentials.Password),
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.API.APIKey,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Error("closing client", "error", closeErr)
		}
	}()

	switch command {
	case "locks":
		return listLocks(ctx, client)
	case "lock", "unlock":
		return toggleLock(ctx, client, command, fs.Arg(1))
	case "codes":
		return listCodes(ctx, client, fs.Arg(1))
	case "logs":
		return showLogs(ctx, client, fs.Arg(1), *limit)
	case "users":
		return listUsers(ctx, client)
	case "watch":
		return watch(ctx, client, fs.Arg(1), log)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func listLocks(ctx context.Context, client *latchlink.Client) error {
	locks, err := client.Locks(ctx)
	if err != nil {
		return err
	}
	for _, l := range locks {
		fmt.Printf("%s  %-20s  model=%s  state=%s  battery=%s\n",
			l.DeviceID, l.Name, l.ModelName, lockState(l), batteryLevel(l))
	}
	return nil
}

func toggleLock(ctx context.Context, client *latchlink.Client, command, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("usage: latchctl %s <device-id>", command)
	}
	l, err := client.Lock(ctx, deviceID)
	if err != nil {
		return err
	}
	if command == "lock" {
		err = l.Lock(ctx)
	} else {
		err = l.Unlock(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", l.Name, lockState(l))
	return nil
}

func listCodes(ctx context.Context, client *latchlink.Client, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("usage: latchctl codes <device-id>")
	}
	l, err := client.Lock(ctx, deviceID)
	if err != nil {
		return err
	}
	codes, err := l.AccessCodes(ctx)
	if err != nil {
		return err
	}
	for _, c := range codes {
		status := "enabled"
		if c.Disabled {
			status = "disabled"
		}
		fmt.Printf("%s  %-20s  code=%s  %s  notify=%t\n",
			c.AccessCodeID, c.Name, c.Code, status, c.NotifyOnUse)
	}
	return nil
}

func showLogs(ctx context.Context, client *latchlink.Client, deviceID string, limit int) error {
	if deviceID == "" {
		return fmt.Errorf("usage: latchctl logs <device-id>")
	}
	l, err := client.Lock(ctx, deviceID)
	if err != nil {
		return err
	}
	logs, err := l.Logs(ctx, limit, true)
	if err != nil {
		return err
	}
	for _, entry := range logs {
		fmt.Printf("%s  %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Message)
	}
	return nil
}

func listUsers(ctx context.Context, client *latchlink.Client) error {
	users, err := client.Users(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Printf("%s  %-20s  %s\n", u.UserID, u.Name, u.Email)
	}
	return nil
}

func watch(ctx context.Context, client *latchlink.Client, deviceID string, log *slog.Logger) error {
	if deviceID == "" {
		return fmt.Errorf("usage: latchctl watch <device-id>")
	}
	callback := func(kind latchlink.SubscriptionKind, payload json.RawMessage) {
		fmt.Printf("[%s] %s\n", kind, payload)
	}
	err := client.Session().Subscribe(ctx, deviceID, callback, latchlink.SubscriptionReported)
	if err != nil {
		return err
	}
	log.Info("watching device", "device_id", deviceID)
	<-ctx.Done()
	return nil
}

func lockState(l *latchlink.Lock) string {
	switch {
	case l.IsJammed != nil && *l.IsJammed:
		return "jammed"
	case l.IsLocked == nil:
		return "unavailable"
	case *l.IsLocked:
		return "locked"
	default:
		return "unlocked"
	}
}

func batteryLevel(l *latchlink.Lock) string {
	if l.BatteryLevel == nil {
		return "n/a"
	}
	return strconv.Itoa(*l.BatteryLevel) + "%"
}
