// Command smarttodo is the smarttodo CLI client.
package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/smarttodo/internal/version"
	"github.com/GoCodeAlone/smarttodo/suggest"
	"github.com/GoCodeAlone/smarttodo/task"
	"github.com/GoCodeAlone/smarttodo/update"
)

const defaultServer = "http://localhost:8080"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cli := &Client{HTTPClient: &http.Client{Timeout: 90 * time.Second}}
	var serverURL string

	root := &cobra.Command{
		Use:           "smarttodo",
		Short:         "smarttodo CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			cli.BaseURL = strings.TrimRight(serverURL, "/")
		},
	}
	root.PersistentFlags().StringVar(&serverURL, "server", cmp.Or(os.Getenv("SMARTTODO_SERVER"), defaultServer), "server URL (or $SMARTTODO_SERVER)")
	root.PersistentFlags().StringVar(&cli.Token, "token", os.Getenv("SMARTTODO_TOKEN"), "JWT auth token (or $SMARTTODO_TOKEN)")

	root.AddCommand(
		versionCmd(),
		statusCmd(cli),
		loginCmd(cli),
		tasksCmd(cli),
		taskCmd(cli),
		nextCmd(cli),
		recommendCmd(cli),
		suggestCmd(cli),
		categoriesCmd(cli),
		tagsCmd(cli),
		updateCmd(),
	)
	return root
}

// --- version / status / login ---

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}
}

func statusCmd(cli *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var result map[string]any
			if err := cli.get(cmd.Context(), "/api/status", &result); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status:  %v\n", result["status"])
			fmt.Fprintf(out, "version: %v\n", result["version"])
			return nil
		},
	}
}

func loginCmd(cli *Client) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain a token; export it as SMARTTODO_TOKEN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Token string `json:"token"`
			}
			body := map[string]string{"username": username, "password": password}
			if err := cli.post(cmd.Context(), "/api/auth/login", body, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "admin", "admin username")
	cmd.Flags().StringVarP(&password, "password", "p", os.Getenv("SMARTTODO_PASSWORD"), "admin password (or $SMARTTODO_PASSWORD)")
	return cmd
}

// --- tasks ---

func tasksCmd(cli *Client) *cobra.Command {
	var statuses []string
	var tag string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if len(statuses) > 0 {
				q.Set("status", strings.Join(statuses, ","))
			}
			if tag != "" {
				q.Set("tag", tag)
			}
			path := "/api/tasks"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			var tasks []task.Task
			if err := cli.get(cmd.Context(), path, &tasks); err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "filter by status (pending, in_progress, completed)")
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "filter by tag")
	return cmd
}

func taskCmd(cli *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, show, complete or delete a task",
	}
	cmd.AddCommand(taskCreateCmd(cli), taskShowCmd(cli), taskDoneCmd(cli), taskDeleteCmd(cli))
	return cmd
}

func taskCreateCmd(cli *Client) *cobra.Command {
	var (
		in       task.TaskInput
		title    string
		desc     string
		priority float64
		deadline string
		tags     []string
		category string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Title = &title
			if cmd.Flags().Changed("description") {
				in.Description = &desc
			}
			if cmd.Flags().Changed("priority") {
				in.PriorityScore = &priority
			}
			if deadline != "" {
				t, err := time.Parse(time.RFC3339, deadline)
				if err != nil {
					return fmt.Errorf("--deadline: %w", err)
				}
				in.Deadline = task.DeadlineAt(t)
			}
			if len(tags) > 0 {
				in.Tags = tags
			}
			if category != "" {
				in.CategoryID = &category
			}

			var created task.Task
			if err := cli.post(cmd.Context(), "/api/tasks", &in, &created); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created task %s\n", created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "task description")
	cmd.Flags().Float64Var(&priority, "priority", 0, "priority score")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline, RFC 3339")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag name (repeatable)")
	cmd.Flags().StringVar(&category, "category", "", "category ID")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskShowCmd(cli *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t task.Task
			if err := cli.get(cmd.Context(), "/api/tasks/"+url.PathEscape(args[0]), &t); err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), &t)
			return nil
		},
	}
}

func taskDoneCmd(cli *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"status": string(task.StatusCompleted)}
			if _, _, err := cli.do(cmd.Context(), http.MethodPatch, "/api/tasks/"+url.PathEscape(args[0]), body, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s completed\n", args[0])
			return nil
		},
	}
}

func taskDeleteCmd(cli *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := cli.do(cmd.Context(), http.MethodDelete, "/api/tasks/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s deleted\n", args[0])
			return nil
		},
	}
}

// --- ranking ---

func nextCmd(cli *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the next best task (highest priority, earliest deadline)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var t task.Task
			if err := cli.get(cmd.Context(), "/api/tasks/next-best", &t); err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), &t)
			return nil
		},
	}
}

func recommendCmd(cli *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend",
		Short: "Show the recommended task (priority blended with deadline proximity)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var t task.Task
			status, hdr, err := cli.do(cmd.Context(), http.MethodGet, "/api/tasks/recommend", nil, &t)
			if err != nil {
				return err
			}
			if status == http.StatusNoContent {
				fmt.Fprintln(cmd.OutOrStdout(), cmp.Or(hdr.Get("X-Detail"), "nothing to recommend"))
				return nil
			}
			printTask(cmd.OutOrStdout(), &t)
			return nil
		},
	}
}

// --- suggestions ---

func suggestCmd(cli *Client) *cobra.Command {
	var (
		desc    suggest.TaskDescription
		extra   []string
		withCtx bool
	)
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Ask the AI for priority, deadline and category suggestions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := suggest.Request{Task: &desc, Context: extra, IncludeContext: withCtx}
			if req.Context == nil {
				req.Context = []string{}
			}
			// The gateway reports failures in the body, so print whatever comes back.
			var out any
			_, _, err := cli.do(cmd.Context(), http.MethodPost, "/api/ai/suggestions", req, &out)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&desc.Title, "title", "", "task title")
	cmd.Flags().StringVar(&desc.Description, "description", "", "task description")
	cmd.Flags().StringArrayVar(&extra, "context", nil, "context line (repeatable)")
	cmd.Flags().BoolVar(&withCtx, "include-context", false, "append recent stored context entries")
	return cmd
}

// --- catalog ---

func categoriesCmd(cli *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List categories with usage counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cats []task.Category
			if err := cli.get(cmd.Context(), "/api/categories", &cats); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(cats) == 0 {
				fmt.Fprintln(out, "no categories")
				return nil
			}
			fmt.Fprintf(out, "%-36s %-30s %5s\n", "ID", "NAME", "USED")
			fmt.Fprintln(out, strings.Repeat("-", 73))
			for _, c := range cats {
				fmt.Fprintf(out, "%-36s %-30s %5d\n", c.ID, truncate(c.Name, 29), c.UsageCount)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a category",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c task.Category
			if err := cli.post(cmd.Context(), "/api/categories", map[string]string{"name": strings.Join(args, " ")}, &c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created category %s\n", c.ID)
			return nil
		},
	})
	return cmd
}

func tagsCmd(cli *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List tag names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var tags []string
			if err := cli.get(cmd.Context(), "/api/tags", &tags); err != nil {
				return err
			}
			for _, t := range tags {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

// --- self-update ---

func updateCmd() *cobra.Command {
	var checkOnly bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update this binary from the latest GitHub release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u := update.New(version.Version, "smarttodo")
			rel, err := u.CheckForUpdate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rel == nil {
				fmt.Fprintf(out, "already up to date (%s)\n", version.Version)
				return nil
			}
			if checkOnly {
				fmt.Fprintf(out, "update available: %s\n", rel.Version)
				return nil
			}
			if err := u.ApplyUpdate(cmd.Context(), rel); err != nil {
				return err
			}
			fmt.Fprintf(out, "updated to %s\n", rel.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkOnly, "check", false, "only report whether an update is available")
	return cmd
}

// --- output helpers ---

func printTasks(w io.Writer, tasks []task.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "no tasks")
		return
	}
	fmt.Fprintf(w, "%-36s %-30s %-12s %8s %-10s\n", "ID", "TITLE", "STATUS", "PRIORITY", "DEADLINE")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, t := range tasks {
		fmt.Fprintf(w, "%-36s %-30s %-12s %8.1f %-10s\n",
			t.ID,
			truncate(t.Title, 29),
			t.Status,
			t.PriorityScore,
			formatDeadline(t.Deadline),
		)
	}
}

func printTask(w io.Writer, t *task.Task) {
	fmt.Fprintf(w, "id:       %s\n", t.ID)
	fmt.Fprintf(w, "title:    %s\n", t.Title)
	fmt.Fprintf(w, "status:   %s\n", t.Status)
	fmt.Fprintf(w, "priority: %g\n", t.PriorityScore)
	fmt.Fprintf(w, "deadline: %s\n", formatDeadline(t.Deadline))
	if t.Category != nil {
		fmt.Fprintf(w, "category: %s\n", t.Category.Name)
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(w, "tags:     %s\n", strings.Join(t.Tags, ", "))
	}
	for _, item := range t.Checklist {
		mark := " "
		if item.Completed {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %s\n", mark, item.Text)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatDeadline(d *time.Time) string {
	if d == nil {
		return "-"
	}
	return d.Format(time.DateOnly)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
