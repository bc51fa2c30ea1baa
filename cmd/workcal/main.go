package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/nhle/workcal/internal/app"
	"github.com/nhle/workcal/internal/client"
	"github.com/nhle/workcal/internal/credential"
	"github.com/nhle/workcal/internal/model"
	appsync "github.com/nhle/workcal/internal/sync"
	"github.com/nhle/workcal/internal/theme"
	"github.com/nhle/workcal/internal/ui/settings"
)

const usage = `Usage: workcal [flags] [command]

With no command, opens the live terminal view.

Commands:
  list                      print every work item
  add <date> <content...>   add a work item (date is YYYY-MM-DD)
  done <id>                 mark a work item completed
  undo <id>                 mark a work item not completed
  rm <id>                   delete a work item
  report [--month] [--date YYYY-MM-DD]
                            print the weekly (default) or monthly report
  token set <token>         store the API token in the OS keyring
  token clear               remove the stored API token
  config init [--force]     write the default config file

Flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "workcal:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("workcal", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", model.DefaultConfigPath(), "path to the YAML config file")
	fs.String("client-server-url", "http://localhost:3000", "workcal server URL")
	fs.String("auth-token", "", "API token (overrides the keyring)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	changed := pflag.NewFlagSet("changed", pflag.ContinueOnError)
	fs.Visit(func(f *pflag.Flag) { changed.AddFlag(f) })
	cfg, err := model.LoadConfig(*configPath, changed)
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	vault, err := credential.Open(model.ConfigDir())
	if err != nil {
		slog.Warn("keyring unavailable", "err", err)
	}

	rest := fs.Args()
	if len(rest) > 0 {
		switch rest[0] {
		case "token":
			return runToken(vault, cfg.Client.ServerURL, rest[1:], out)
		case "config":
			return runConfig(*configPath, rest[1:], out)
		}
	}

	token, err := credential.ResolveToken(cfg.Auth.Token, cfg.Client.ServerURL, vault)
	if err != nil {
		slog.Warn("reading token from keyring", "err", err)
	}
	c := client.NewClient(cfg.Client.ServerURL, token)

	if len(rest) == 0 {
		return runTUI(cfg, c, settingsSaver(*configPath, cfg, vault))
	}
	return runCommand(c, rest, out)
}

// setupLogging sends slog output to the client log file: the terminal
// belongs to the UI.
func setupLogging(cfg *model.AppConfig) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Client.LogFile), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Client.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	slog.SetDefault(cfg.Log.NewLogger(f))
	return func() { _ = f.Close() }, nil
}

func runTUI(cfg *model.AppConfig, c *client.Client, save settings.Saver) error {
	if err := theme.Apply(cfg.Display.Theme); err != nil {
		return err
	}
	dialer, err := client.NewWSDialer(c.BaseURL(), c.Token(), cfg.Client.HandshakeTimeout)
	if err != nil {
		return err
	}
	session := client.NewSession(dialer, c, cfg.Client, slog.Default().With("component", "session"))
	driver := appsync.New(session)
	defer driver.Stop()

	root := app.New(driver, c).WithSettings(checkServer, save, c.BaseURL(), c.Token())
	p := tea.NewProgram(root, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// checkServer lists the work items of serverURL to prove the URL and token
// work together.
func checkServer(ctx context.Context, serverURL, token string) error {
	_, err := client.NewClient(serverURL, token).List(ctx)
	return err
}

// settingsSaver stores the token in the keyring and the server URL in the
// config file at path.
func settingsSaver(path string, cfg *model.AppConfig, vault *credential.Vault) settings.Saver {
	return func(serverURL, token string) error {
		if vault == nil && token != "" {
			return errors.New("no keyring available to store the token")
		}
		if vault != nil {
			var err error
			if token == "" {
				err = vault.DeleteToken(serverURL)
			} else {
				err = vault.SetToken(serverURL, token)
			}
			if err != nil {
				return err
			}
		}
		next := *cfg
		next.Client.ServerURL = serverURL
		return model.SaveConfig(path, &next)
	}
}

func runToken(vault *credential.Vault, serverURL string, args []string, out io.Writer) error {
	if vault == nil {
		return errors.New("no keyring available")
	}
	switch {
	case len(args) == 2 && args[0] == "set":
		if err := vault.SetToken(serverURL, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "token stored for %s\n", serverURL)
		return nil
	case len(args) == 1 && args[0] == "clear":
		if err := vault.DeleteToken(serverURL); err != nil {
			return err
		}
		fmt.Fprintf(out, "token removed for %s\n", serverURL)
		return nil
	}
	return errors.New("usage: workcal token set <token> | workcal token clear")
}

// runConfig handles "config init": it writes the default settings so they
// can be edited. An existing file is kept unless --force is given.
func runConfig(path string, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || fs.Arg(0) != "init" {
		return errors.New("usage: workcal config init [--force]")
	}

	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}
	if err := model.SaveConfig(path, model.DefaultAppConfig()); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}
