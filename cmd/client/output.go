package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/eric-downes/claude-sync/internal/client/state"
	"github.com/eric-downes/claude-sync/internal/client/sync"
	"github.com/eric-downes/claude-sync/internal/kb"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// errNotSuccessful is returned after a failed run has already been rendered
var errNotSuccessful = errors.New("not successful")

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
)

// writeOutput encodes v as json or yaml, or calls text for the default format
func writeOutput(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	format := formatText
	if f := cmd.Flag("output"); f != nil {
		format = strings.ToLower(f.Value.String())
	}

	w := cmd.OutOrStdout()
	switch format {
	case "", formatText:
		text(w)
		return nil
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderSyncResult(w io.Writer, res *sync.SyncResult) {
	header := fmt.Sprintf("sync %s (%s, %s)", res.Project, res.Direction, res.Policy)
	if res.DryRun {
		header += " " + yellow.Render("[dry run]")
	}
	fmt.Fprintln(w, cyan.Bold(true).Render(header))

	ops := res.Executed
	if res.DryRun {
		ops = res.Planned
	}
	for _, op := range ops {
		fmt.Fprintf(w, "  %s %s %s\n", opStyle(op.Kind()).Render(fmt.Sprintf("%-13s", op.Kind())), op.Path(), backupMark(op.BackupRequired()))
	}

	if len(res.Skipped) > 0 {
		fmt.Fprintln(w, yellow.Render("skipped"))
		for _, s := range res.Skipped {
			fmt.Fprintf(w, "  %-13s %s %s\n", s.Op.Kind(), s.Op.Path(), gray.Render(s.Reason))
		}
	}

	if len(res.Conflicts) > 0 {
		fmt.Fprintln(w, yellow.Render("conflicts"))
		for _, c := range res.Conflicts {
			fmt.Fprintf(w, "  %-14s %s\n", c.Type, c.Path)
		}
	}

	if res.Validation != nil {
		renderIssues(w, res.Validation.Issues)
	}
	renderList(w, yellow, "warnings", res.Warnings)

	errs := make([]string, 0, len(res.Errors))
	for _, err := range res.Errors {
		errs = append(errs, err.Error())
	}
	renderList(w, red, "errors", errs)
	renderList(w, lightGray, "recommendations", res.Recommendations())

	st := res.Stats
	fmt.Fprintf(w, "%s %d uploaded (%s), %d downloaded (%s), %d deleted locally, %d deleted remotely, %d skipped, %d failed, %d backups in %s\n",
		resultMark(res.Success),
		st.Uploaded, humanize.IBytes(uint64(st.BytesUploaded)),
		st.Downloaded, humanize.IBytes(uint64(st.BytesDownloaded)),
		st.DeletedLocal, st.DeletedRemote, st.Skipped, st.Failed, st.BackupsCreated,
		res.Duration.Round(time.Millisecond),
	)
}

func renderValidation(w io.Writer, res *sync.ValidationResult) {
	renderIssues(w, res.Issues)

	st := res.Stats
	fmt.Fprintf(w, "%s %d local, %d remote, %d tracked, %d conflicts, %s free\n",
		resultMark(res.CanProceed),
		st.LocalFiles, st.RemoteFiles, st.TrackedFiles, st.ConflictCount,
		humanize.IBytes(st.FreeBytes),
	)
	if len(res.Conflicts) > 0 {
		fmt.Fprintln(w, yellow.Render("conflicts"))
		for _, c := range res.Conflicts {
			fmt.Fprintf(w, "  %-14s %s\n", c.Type, c.Path)
		}
	}
	renderList(w, lightGray, "recommendations", res.Recommendations)
}

func renderStatus(w io.Writer, st *sync.StatusReport) {
	fmt.Fprintf(w, "%s%s\n", gray.Render("Project   "), cyan.Render(st.Project))
	fmt.Fprintf(w, "%s%s\n", gray.Render("Local     "), st.LocalDir)
	fmt.Fprintf(w, "%s%d (%s)\n", gray.Render("Tracked   "), st.Tracked, humanize.IBytes(uint64(st.TotalSize)))
	fmt.Fprintf(w, "%s%d\n", gray.Render("Deleted   "), st.Tombstoned)
	fmt.Fprintf(w, "%s%d (%s)\n", gray.Render("Backups   "), st.Backups, humanize.IBytes(uint64(st.BackupSize)))
	lastSync := "never"
	if !st.LastSync.IsZero() {
		lastSync = humanize.Time(st.LastSync)
	}
	fmt.Fprintf(w, "%s%s\n", gray.Render("Last sync "), lastSync)

	for _, p := range st.Paths {
		mark := green.Render("●")
		if p.Deleted {
			mark = gray.Render("○")
		}
		fmt.Fprintf(w, "  %s %s %s\n", mark, p.Path, gray.Render(fmt.Sprintf("%s, %s", humanize.IBytes(uint64(p.Size)), p.ConflictState)))
	}
}

func renderBackups(w io.Writer, backups []*state.BackupEntry) {
	if len(backups) == 0 {
		fmt.Fprintln(w, "No backups")
		return
	}
	for _, b := range backups {
		fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
			green.Render(b.ID),
			b.Path,
			gray.Render(string(b.Reason)),
			humanize.IBytes(uint64(b.Size)),
			lightGray.Render(humanize.Time(b.CreatedAt)),
		)
	}
}

func renderProjects(w io.Writer, projects []*kb.Project) {
	if len(projects) == 0 {
		fmt.Fprintln(w, "No projects")
		return
	}
	var sb strings.Builder
	for _, p := range projects {
		sb.WriteString(fmt.Sprintf("%s%s\n", gray.Render("ID      "), green.Render(p.ID)))
		sb.WriteString(fmt.Sprintf("%s%s\n", gray.Render("Name    "), cyan.Render(p.Name)))
		if p.Description != "" {
			sb.WriteString(fmt.Sprintf("%s%s\n", gray.Render("About   "), p.Description))
		}
		if !p.UpdatedAt.IsZero() {
			sb.WriteString(fmt.Sprintf("%s%s\n", gray.Render("Updated "), humanize.Time(p.UpdatedAt)))
		}
		sb.WriteString("\n")
	}
	fmt.Fprint(w, sb.String())
}

func renderIssues(w io.Writer, issues []sync.ValidationIssue) {
	for _, i := range issues {
		style := lightGray
		switch i.Severity {
		case sync.SeverityError:
			style = red
		case sync.SeverityWarning:
			style = yellow
		}
		fmt.Fprintf(w, "%s %s\n", style.Render(fmt.Sprintf("%-7s", i.Severity)), i.Message)
	}
}

func renderList(w io.Writer, style lipgloss.Style, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(w, style.Render(title))
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}

func opStyle(kind sync.OpKind) lipgloss.Style {
	switch kind {
	case sync.OpUpload:
		return green
	case sync.OpDownload:
		return cyan
	default:
		return red
	}
}

func backupMark(required bool) string {
	if required {
		return gray.Render("(backup)")
	}
	return ""
}

func resultMark(ok bool) string {
	if ok {
		return green.Bold(true).Render("OK")
	}
	return red.Bold(true).Render("FAILED")
}
