package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harlequingg/taskd/internal/client"
	"github.com/harlequingg/taskd/internal/storage"
)

type taskOptions struct {
	server string
	user   string
	email  string
	token  string
}

func (o *taskOptions) client() *client.Client {
	var opts []client.Option
	if o.token != "" {
		opts = append(opts, client.WithToken(o.token))
	}
	return client.New(o.server, opts...)
}

func (o *taskOptions) identity() *client.Identity {
	if o.user == "" {
		return nil
	}
	return &client.Identity{ID: o.user, Email: o.email}
}

// view returns a View loaded with the tasks of --user.
func (o *taskOptions) view(cmd *cobra.Command) (*client.View, error) {
	v := client.NewView(o.client())
	if err := v.SetIdentity(cmd.Context(), o.identity()); err != nil {
		return nil, err
	}
	return v, nil
}

func taskCmd() *cobra.Command {
	opts := &taskOptions{}

	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks on a running taskd server",
		Long: `Manage tasks on a running taskd server.

Examples:
  taskd task add "Write report" --user u1 --email ana@example.com --due 2025-03-10
  taskd task ls --user u1 --filter active
  taskd task done 3f6c... --user u1
  taskd task clear --user u1`,
	}

	fs := cmd.PersistentFlags()
	fs.StringVar(&opts.server, "server", envOr("TASKD_SERVER", "http://localhost:3000"), "taskd server URL")
	fs.StringVar(&opts.user, "user", os.Getenv("TASKD_USER"), "Account id to act for")
	fs.StringVar(&opts.email, "email", os.Getenv("TASKD_EMAIL"), "Account email, used when the account does not exist yet")
	fs.StringVar(&opts.token, "token", os.Getenv("TASKD_TOKEN"), "Bearer token for servers with authentication enabled")

	cmd.AddCommand(taskListCmd(opts))
	cmd.AddCommand(taskAddCmd(opts))
	cmd.AddCommand(taskSetCompletedCmd(opts, "done", "Mark a task as completed", true))
	cmd.AddCommand(taskSetCompletedCmd(opts, "undo", "Mark a task as pending", false))
	cmd.AddCommand(taskRemoveCmd(opts))
	cmd.AddCommand(taskClearCmd(opts))
	cmd.AddCommand(taskStatsCmd(opts))

	return cmd
}

func taskListCmd(opts *taskOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.user == "" {
				// Without an identity the server lists every task.
				tasks, err := opts.client().ListTasks(cmd.Context(), client.ListOptions{Status: filterStatus(client.Filter(filter))})
				if err != nil {
					return err
				}
				return printTasks(cmd.OutOrStdout(), tasks)
			}

			v, err := opts.view(cmd)
			if err != nil {
				return err
			}
			v.SetFilter(client.Filter(filter))
			return printTasks(cmd.OutOrStdout(), v.Visible())
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", string(client.FilterAll), "Filter [all|active|completed]")

	return cmd
}

func taskAddCmd(opts *taskOptions) *cobra.Command {
	var in client.NewTask

	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Title = strings.Join(args, " ")
			v, err := opts.view(cmd)
			if err != nil {
				return err
			}
			if err := v.AddTask(cmd.Context(), in); err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), v.Visible()[:1])
		},
	}
	cmd.Flags().StringVar(&in.DueDate, "due", "", "Due date (2006-01-02 or RFC 3339)")
	cmd.Flags().StringVarP(&in.Priority, "priority", "p", "", "Priority [low|normal|high]")
	cmd.Flags().StringVarP(&in.Category, "category", "c", "", "Category")

	return cmd
}

func taskSetCompletedCmd(opts *taskOptions, use, short string, completed bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := opts.client().UpdateTask(cmd.Context(), args[0], client.Update{Completed: &completed})
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), []storage.Task{*task})
		},
	}
}

func taskRemoveCmd(opts *taskOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted task %s\n", args[0])
			return nil
		},
	}
}

func taskClearCmd(opts *taskOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every completed task of --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.user == "" {
				return client.ErrSignInToClear
			}
			v, err := opts.view(cmd)
			if err != nil {
				return err
			}
			n, err := v.ClearCompleted(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d completed tasks\n", n)
			return nil
		},
	}
}

func taskStatsCmd(opts *taskOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.client().Stats(cmd.Context(), opts.user)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total: %d\nactive: %d\ncompleted: %d (%d%%)\n",
				s.Total, s.Active, s.Completed, s.CompletionPercentage)
			return nil
		},
	}
}

func filterStatus(f client.Filter) storage.Status {
	switch f {
	case client.FilterActive:
		return storage.StatusPending
	case client.FilterCompleted:
		return storage.StatusCompleted
	}
	return storage.StatusAll
}

func printTasks(w io.Writer, tasks []storage.Task) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tPRIORITY\tCATEGORY\tDUE\tTITLE")
	for _, t := range tasks {
		done := " "
		if t.Completed {
			done = "x"
		}
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		title := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(t.Title)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, done, t.Priority, t.Category, due, title)
	}
	return tw.Flush()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
