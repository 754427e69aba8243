package command

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/docsnap/internal/cli/connection"
	"github.com/yndnr/docsnap/internal/cli/output"
)

const snapshotsPath = "/admin/v1/backups/snapshots"

// BackupCommand returns the backup subcommand group.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:    "backup",
		Aliases: []string{"bk"},
		Usage:   "Create, inspect, restore and prune snapshots",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a snapshot",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "incremental", Aliases: []string{"i"}, Usage: "only documents changed since the latest full snapshot"},
					&cli.BoolFlag{Name: "no-compress", Usage: "write an uncompressed full snapshot"},
				},
				Action: backupCreate,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List snapshot files, newest first",
				Action:  backupList,
			},
			{
				Name:   "stats",
				Usage:  "Summarize the backup directory",
				Action: backupStats,
			},
			{
				Name:      "preview",
				Usage:     "Show what a snapshot contains without restoring it",
				ArgsUsage: "FILE",
				Action:    backupPreview,
			},
			{
				Name:      "restore",
				Usage:     "Restore a snapshot into the live store",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "clear", Usage: "delete every document of a restored collection first"},
					&cli.StringFlag{Name: "strategy", Usage: "conflict handling: skip or replace", Value: "skip"},
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "do not ask for confirmation"},
				},
				Action: backupRestore,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a snapshot file",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "do not ask for confirmation"},
				},
				Action: backupDelete,
			},
			{
				Name:  "prune",
				Usage: "Delete snapshots older than a number of days",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Aliases: []string{"d"}, Usage: "age threshold in days", Required: true},
				},
				Action: backupPrune,
			},
		},
	}
}

func backupCreate(c *cli.Context) error {
	client, err := Client(c)
	if err != nil {
		return err
	}

	kind := "full"
	if c.Bool("incremental") {
		kind = "incremental"
		if c.Bool("no-compress") {
			return fmt.Errorf("--no-compress only applies to full snapshots")
		}
	}
	compress := !c.Bool("no-compress")
	body := map[string]any{"kind": kind, "compress": compress}

	spinner := output.NewSpinner(c.App.ErrWriter, "Creating "+kind+" snapshot")
	spinner.Start()
	var res snapshotResult
	err = client.Post(c.Context, snapshotsPath, body, &res)
	spinner.Stop()
	if err != nil {
		return apiError(err)
	}

	return render(c, res, func(w io.Writer) error {
		fmt.Fprintf(w, "✓ Created %s snapshot %s\n", res.Kind, res.Filename)
		fmt.Fprintf(w, "  Size:        %s\n", humanize.Bytes(uint64(res.Size)))
		fmt.Fprintf(w, "  Documents:   %s in %d collection(s)\n",
			humanize.Comma(int64(res.Statistics.TotalDocuments)), res.Statistics.TotalCollections)
		if res.BasedOn != "" {
			fmt.Fprintf(w, "  Based on:    %s\n", res.BasedOn)
		}
		if res.FellBackToFull {
			fmt.Fprintln(w, "  No full snapshot existed yet, so a full snapshot was taken instead.")
		}
		if res.Checksum != "" {
			fmt.Fprintf(w, "  Checksum:    %s\n", res.Checksum)
		}
		return nil
	})
}

func backupList(c *cli.Context) error {
	client, err := Client(c)
	if err != nil {
		return err
	}

	var list snapshotList
	if err := client.Get(c.Context, snapshotsPath, &list); err != nil {
		return apiError(err)
	}

	s := GetSettings(c)
	if s.Format != output.FormatTable {
		return render(c, list, nil)
	}
	if len(list.Items) == 0 {
		fmt.Fprintln(c.App.Writer, "No snapshots found.")
		return nil
	}
	return render(c, list.Items, nil)
}

func backupStats(c *cli.Context) error {
	client, err := Client(c)
	if err != nil {
		return err
	}

	var st catalogStats
	if err := client.Get(c.Context, "/admin/v1/backups/stats", &st); err != nil {
		return apiError(err)
	}

	return render(c, st, func(w io.Writer) error {
		fmt.Fprintf(w, "Snapshots:    %d (%d full, %d incremental, %d compressed)\n",
			st.Count, st.FullCount, st.IncrementalCount, st.CompressedCount)
		fmt.Fprintf(w, "Total size:   %s\n", humanize.Bytes(uint64(st.TotalBytes)))
		if st.Newest != nil {
			fmt.Fprintf(w, "Newest:       %s (%s)\n", st.Newest.Local().Format("2006-01-02 15:04:05"), humanize.Time(*st.Newest))
		}
		if st.Oldest != nil {
			fmt.Fprintf(w, "Oldest:       %s (%s)\n", st.Oldest.Local().Format("2006-01-02 15:04:05"), humanize.Time(*st.Oldest))
		}
		return nil
	})
}

func backupPreview(c *cli.Context) error {
	filename, err := fileArg(c)
	if err != nil {
		return err
	}
	client, err := Client(c)
	if err != nil {
		return err
	}

	var p previewView
	if err := client.Get(c.Context, snapshotsPath+"/"+url.PathEscape(filename)+"/preview", &p); err != nil {
		return apiError(err)
	}

	return render(c, p, func(w io.Writer) error {
		fmt.Fprintf(w, "File:         %s (%s)\n", p.Filename, humanize.Bytes(uint64(p.Size)))
		fmt.Fprintf(w, "Kind:         %s\n", p.Metadata.Kind)
		fmt.Fprintf(w, "Taken:        %s (%s)\n", p.Metadata.Timestamp.Local().Format("2006-01-02 15:04:05"), humanize.Time(p.Metadata.Timestamp))
		fmt.Fprintf(w, "Format:       v%s, compressed=%t, encrypted=%t\n", p.Metadata.FormatVersion, p.Metadata.Compressed, p.Metadata.Encrypted)
		if p.Metadata.BasedOn != "" {
			fmt.Fprintf(w, "Based on:     %s\n", p.Metadata.BasedOn)
		}
		fmt.Fprintf(w, "Documents:    %s\n\n", humanize.Comma(int64(p.Statistics.TotalDocuments)))

		t := &output.Table{}
		t.SetHeaders("COLLECTION", "DOCUMENTS")
		for _, name := range sortedKeys(p.Statistics.Collections) {
			t.AddRow(name, humanize.Comma(int64(p.Statistics.Collections[name])))
		}
		return t.Render(w)
	})
}

func backupRestore(c *cli.Context) error {
	filename, err := fileArg(c)
	if err != nil {
		return err
	}

	strategy := strings.ToLower(strings.TrimSpace(c.String("strategy")))
	if strategy != "skip" && strategy != "replace" {
		return fmt.Errorf("invalid --strategy %q (want skip or replace)", c.String("strategy"))
	}

	if !c.Bool("force") {
		prompt := fmt.Sprintf("Restore %s into the live store (strategy %s", filename, strategy)
		if c.Bool("clear") {
			prompt += ", clearing existing documents first"
		}
		ok, err := confirm(c, prompt+")?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.App.Writer, "Restore cancelled.")
			return nil
		}
	}

	client, err := Client(c)
	if err != nil {
		return err
	}

	body := map[string]any{
		"filename":       filename,
		"clear_existing": c.Bool("clear"),
		"merge_strategy": strategy,
	}

	spinner := output.NewSpinner(c.App.ErrWriter, "Restoring "+filename)
	spinner.Start()
	var res restoreResult
	err = client.Post(c.Context, "/admin/v1/backups/restores", body, &res)
	spinner.Stop()
	if err != nil {
		// A failed apply still reports what was written before it stopped.
		var apiErr *connection.APIError
		if errors.As(err, &apiErr) && len(apiErr.Data) > 0 && json.Unmarshal(apiErr.Data, &res) == nil && res.RunID != "" {
			_ = render(c, res, func(w io.Writer) error { return printRestore(w, &res) })
		}
		return apiError(err)
	}

	return render(c, res, func(w io.Writer) error { return printRestore(w, &res) })
}

func printRestore(w io.Writer, res *restoreResult) error {
	mark := "✓"
	if res.State != "completed" {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s Restore %s %s in %s (run %s)\n", mark, res.Filename, res.State, res.Duration.Round(time.Millisecond), res.RunID)
	fmt.Fprintf(w, "  Inserted: %s  Skipped: %s  Errors: %s\n\n",
		humanize.Comma(int64(res.Inserted)), humanize.Comma(int64(res.Skipped)), humanize.Comma(int64(res.Errors)))

	t := &output.Table{}
	t.SetHeaders("COLLECTION", "CLEARED", "INSERTED", "SKIPPED", "ERRORS")
	for _, name := range sortedKeys(res.Collections) {
		o := res.Collections[name]
		t.AddRow(name, fmt.Sprint(o.Cleared), fmt.Sprint(o.Inserted), fmt.Sprint(o.Skipped), fmt.Sprint(o.Errors))
	}
	if err := t.Render(w); err != nil {
		return err
	}

	if len(res.ErrorSamples) > 0 {
		fmt.Fprintln(w, "\nFirst errors:")
		for _, e := range res.ErrorSamples {
			id := e.Identity
			if id == "" {
				id = "-"
			}
			fmt.Fprintf(w, "  %s/%s: %s\n", e.Collection, id, e.Error)
		}
	}
	return nil
}

func backupDelete(c *cli.Context) error {
	filename, err := fileArg(c)
	if err != nil {
		return err
	}

	if !c.Bool("force") {
		ok, err := confirm(c, "Delete snapshot "+filename+"?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.App.Writer, "Delete cancelled.")
			return nil
		}
	}

	client, err := Client(c)
	if err != nil {
		return err
	}

	var res deleteResult
	if err := client.Delete(c.Context, snapshotsPath+"/"+url.PathEscape(filename), &res); err != nil {
		return apiError(err)
	}

	return render(c, res, func(w io.Writer) error {
		fmt.Fprintf(w, "✓ Deleted %s (%s)\n", res.Filename, humanize.Bytes(uint64(res.Size)))
		return nil
	})
}

func backupPrune(c *cli.Context) error {
	days := c.Int("days")
	if days < 0 {
		return fmt.Errorf("--days must not be negative")
	}

	client, err := Client(c)
	if err != nil {
		return err
	}

	var res pruneResult
	if err := client.Post(c.Context, "/admin/v1/backups/prune", map[string]int{"days": days}, &res); err != nil {
		return apiError(err)
	}

	return render(c, res, func(w io.Writer) error {
		fmt.Fprintf(w, "✓ Pruned %d snapshot(s) older than %s, freed %s\n",
			res.DeletedCount, res.Cutoff.Local().Format("2006-01-02 15:04"), humanize.Bytes(uint64(res.FreedBytes)))
		for _, name := range res.Deleted {
			fmt.Fprintf(w, "  - %s\n", name)
		}
		if res.KeptBaseline != "" {
			fmt.Fprintf(w, "  Kept %s as the baseline for newer incrementals.\n", res.KeptBaseline)
		}
		return nil
	})
}

func fileArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one snapshot FILE argument")
	}
	return c.Args().First(), nil
}

// confirm asks a yes/no question on the app's reader. Anything other
// than y or yes is a no.
func confirm(c *cli.Context, question string) (bool, error) {
	fmt.Fprintf(c.App.Writer, "%s [y/N]: ", question)
	line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
