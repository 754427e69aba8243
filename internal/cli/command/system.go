package command

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/docsnap/internal/cli/output"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server health and status",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check server liveness",
				Action: systemProbe("/health"),
			},
			{
				Name:   "ready",
				Usage:  "Check that the server can reach its document store",
				Action: systemProbe("/ready"),
			},
			{
				Name:   "status",
				Usage:  "Show build, store and collection summary",
				Action: systemStatus,
			},
		},
	}
}

func systemProbe(path string) cli.ActionFunc {
	return func(c *cli.Context) error {
		client, err := Client(c)
		if err != nil {
			return err
		}

		var res healthView
		if err := client.Get(c.Context, path, &res); err != nil {
			return fmt.Errorf("%s check against %s failed: %w", path[1:], client.BaseURL(), apiError(err))
		}

		return render(c, res, func(w io.Writer) error {
			fmt.Fprintf(w, "✓ Server is %s\n", res.Status)
			fmt.Fprintf(w, "  Target: %s\n", client.BaseURL())
			return nil
		})
	}
}

func systemStatus(c *cli.Context) error {
	client, err := Client(c)
	if err != nil {
		return err
	}

	var st statusView
	if err := client.Get(c.Context, "/admin/v1/status/summary", &st); err != nil {
		return apiError(err)
	}

	return render(c, st, func(w io.Writer) error {
		fmt.Fprintf(w, "Status:       %s\n", st.Status)
		fmt.Fprintf(w, "Version:      %s (commit %s)\n", st.Build.Version, st.Build.Commit)
		fmt.Fprintf(w, "Uptime:       %s\n", st.Uptime)
		fmt.Fprintf(w, "Store engine: %s\n", st.Engine)
		fmt.Fprintf(w, "Backup dir:   %s\n\n", st.BackupDir)
		if len(st.Collections) == 0 {
			fmt.Fprintln(w, "No tracked collections.")
			return nil
		}
		tf := &output.TableFormatter{Wide: GetSettings(c).Config.Wide}
		return tf.Format(w, st.Collections)
	})
}
