package command

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/docsnap/internal/cli/config"
)

// ConfigCommand returns the config subcommand group for the CLI's own
// settings file.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "CLI configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration (file, env and flags merged)",
				Action: configShow,
			},
			{
				Name:   "save",
				Usage:  "Write the effective configuration to the config file",
				Action: configSave,
			},
			{
				Name:   "path",
				Usage:  "Print the config file path",
				Action: configPath,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	s := GetSettings(c)
	view := *s.Config
	if view.Token != "" {
		view.Token = "********"
	}

	return render(c, view, func(w io.Writer) error {
		fmt.Fprintf(w, "Config file: %s\n\n", s.ConfigPath)
		fmt.Fprintf(w, "  server:    %s\n", view.Server)
		fmt.Fprintf(w, "  token:     %s\n", orDash(view.Token))
		fmt.Fprintf(w, "  ca_file:   %s\n", orDash(view.CAFile))
		fmt.Fprintf(w, "  insecure:  %t\n", view.Insecure)
		fmt.Fprintf(w, "  output:    %s\n", view.Output)
		fmt.Fprintf(w, "  wide:      %t\n", view.Wide)
		return nil
	})
}

func configSave(c *cli.Context) error {
	s := GetSettings(c)
	if err := config.Save(s.Config, s.ConfigPath); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "✓ Saved %s\n", s.ConfigPath)
	return nil
}

func configPath(c *cli.Context) error {
	fmt.Fprintln(c.App.Writer, GetSettings(c).ConfigPath)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
