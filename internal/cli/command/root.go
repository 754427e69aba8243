package command

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/docsnap/internal/cli/config"
	"github.com/yndnr/docsnap/internal/cli/connection"
	"github.com/yndnr/docsnap/internal/cli/output"
	"github.com/yndnr/docsnap/internal/infra/buildinfo"
	"github.com/yndnr/docsnap/internal/infra/tlsroots"
)

const settingsKey = "settings"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "docsnap-cli",
		Usage:                "Manage docsnap snapshots over the admin API",
		Version:              buildinfo.String(),
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			BackupCommand(),
			SystemCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
		Before: loadSettings,
	}
}

// globalFlags returns the global CLI flags. Environment variables are
// applied by config.Merge so the file, env and flag layers stay ordered.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "admin API address, host:port or URL (env " + config.EnvServer + ")",
		},
		&cli.StringFlag{
			Name:    "token",
			Aliases: []string{"t"},
			Usage:   "admin bearer token (env " + config.EnvToken + ")",
		},
		&cli.StringFlag{
			Name:  "ca-file",
			Usage: "PEM bundle trusted in addition to the system roots (env " + config.EnvCAFile + ")",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "skip TLS certificate verification",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml (env " + config.EnvOutput + ")",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show wide output (more columns)",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "CLI config file",
			Value: config.DefaultConfigPath(),
		},
	}
}

// Settings is the effective CLI configuration of one invocation.
type Settings struct {
	Config     *config.CLIConfig
	ConfigPath string
	Format     output.Format

	client *connection.HTTPClient
}

func loadSettings(c *cli.Context) error {
	path := c.String("config")
	fileCfg, err := config.Load(path)
	if err != nil {
		return err
	}

	flags := make(map[string]string)
	for _, name := range []string{"server", "token", "ca-file", "output"} {
		if c.IsSet(name) {
			flags[name] = c.String(name)
		}
	}
	if c.IsSet("insecure") {
		flags["insecure"] = strconv.FormatBool(c.Bool("insecure"))
	}

	cfg := config.Merge(fileCfg, config.Environ(), flags)
	if c.Bool("wide") {
		cfg.Wide = true
	}

	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[settingsKey] = &Settings{Config: cfg, ConfigPath: path, Format: format}
	return nil
}

// GetSettings returns the settings stored by the Before hook.
func GetSettings(c *cli.Context) *Settings {
	if s, ok := c.App.Metadata[settingsKey].(*Settings); ok {
		return s
	}
	return &Settings{Config: config.Default(), Format: output.FormatTable}
}

// Client returns the admin API client, creating it on first use.
func Client(c *cli.Context) (*connection.HTTPClient, error) {
	s := GetSettings(c)
	if s.client != nil {
		return s.client, nil
	}

	var opts []connection.Option
	if s.Config.CAFile != "" || s.Config.Insecure {
		tlsCfg, err := tlsroots.ClientConfig(s.Config.CAFile, s.Config.Insecure)
		if err != nil {
			return nil, fmt.Errorf("load CA file: %w", err)
		}
		opts = append(opts, connection.WithTLSConfig(tlsCfg))
	}

	s.client = connection.NewHTTPClient(s.Config.Server, s.Config.Token, opts...)
	return s.client, nil
}

// render prints data in the selected format. In table mode a non-nil
// human func replaces the generic table rendering.
func render(c *cli.Context, data any, human func(w io.Writer) error) error {
	s := GetSettings(c)
	if s.Format == output.FormatTable && human != nil {
		return human(c.App.Writer)
	}
	return output.NewFormatter(s.Format, s.Config.Wide).Format(c.App.Writer, data)
}

// apiError adds an operator hint to well-known server errors.
func apiError(err error) error {
	var apiErr *connection.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case "DS-LOCK-4090":
		return fmt.Errorf("%w (another backup operation is running, retry later)", err)
	case "DS-AUTH-4010":
		return fmt.Errorf("%w (set --token or %s)", err, config.EnvToken)
	}
	return err
}

// VersionCommand prints client and server versions.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show client and server versions",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "client", Usage: "only show the client version"},
		},
		Action: func(c *cli.Context) error {
			view := versionView{Client: buildinfo.Get()}
			if !c.Bool("client") {
				client, err := Client(c)
				if err != nil {
					return err
				}
				var st statusView
				if err := client.Get(c.Context, "/admin/v1/status/summary", &st); err != nil {
					view.ServerError = apiError(err).Error()
				} else {
					view.Server = &st.Build
				}
			}

			return render(c, view, func(w io.Writer) error {
				fmt.Fprintf(w, "Client: %s (commit %s, %s)\n", view.Client.Version, view.Client.Commit, view.Client.GoVersion)
				switch {
				case view.Server != nil:
					fmt.Fprintf(w, "Server: %s (commit %s, %s)\n", view.Server.Version, view.Server.Commit, view.Server.GoVersion)
				case view.ServerError != "":
					fmt.Fprintf(w, "Server: unavailable: %s\n", view.ServerError)
				}
				return nil
			})
		},
	}
}

type versionView struct {
	Client      buildinfo.Info  `json:"client"`
	Server      *buildinfo.Info `json:"server,omitempty"`
	ServerError string          `json:"server_error,omitempty"`
}
