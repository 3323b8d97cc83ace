package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"git.sr.ht/~jakintosh/studydesk/internal/catalog"
	"git.sr.ht/~jakintosh/studydesk/internal/domain"
)

var subjectCmd = &cobra.Command{
	Use:   "subject",
	Short: "Manage study subjects",
}

var subjectAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a study subject",
	Args:  cobra.ExactArgs(1),
	RunE: withCatalog(func(ctx context.Context, out io.Writer, m *catalog.Manager, args []string) error {
		if err := m.AddSubject(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Added subject %q\n", args[0])
		return nil
	}),
}

var subjectRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a subject and all of its resources",
	Args:  cobra.ExactArgs(1),
	RunE: withCatalog(func(ctx context.Context, out io.Writer, m *catalog.Manager, args []string) error {
		if err := m.RemoveSubject(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed subject %q\n", args[0])
		return nil
	}),
}

var subjectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subjects and their resources",
	Args:  cobra.NoArgs,
	RunE: withCatalog(func(ctx context.Context, out io.Writer, m *catalog.Manager, args []string) error {
		c, err := m.LoadCatalog(ctx)
		if err != nil {
			return err
		}
		printCatalog(out, c)
		return nil
	}),
}

var resourceCmd = &cobra.Command{
	Use:   "resource",
	Short: "Manage the resources attached to a subject",
}

var resourceAddCmd = &cobra.Command{
	Use:   "add [subject] [title]",
	Short: "Attach a resource to a subject",
	Args:  cobra.ExactArgs(2),
	RunE: withCatalog(func(ctx context.Context, out io.Writer, m *catalog.Manager, args []string) error {
		if err := m.AddResource(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Added %q to %q\n", args[1], args[0])
		return nil
	}),
}

var resourceRemoveCmd = &cobra.Command{
	Use:   "remove [subject] [title]",
	Short: "Remove a resource from a subject",
	Args:  cobra.ExactArgs(2),
	RunE: withCatalog(func(ctx context.Context, out io.Writer, m *catalog.Manager, args []string) error {
		if err := m.RemoveResource(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %q from %q\n", args[1], args[0])
		return nil
	}),
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage the task list",
}

var taskAddCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add a task",
	Args:  cobra.ExactArgs(1),
	RunE: withCatalog(func(ctx context.Context, out io.Writer, m *catalog.Manager, args []string) error {
		task, err := m.AddTask(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\n", task.ID, task.Text)
		return nil
	}),
}

var taskRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a task by id",
	Args:  cobra.ExactArgs(1),
	RunE: withCatalog(func(ctx context.Context, out io.Writer, m *catalog.Manager, args []string) error {
		if err := m.RemoveTask(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed task %s\n", args[0])
		return nil
	}),
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE: withCatalog(func(ctx context.Context, out io.Writer, m *catalog.Manager, args []string) error {
		// one snapshot is all we need
		got := make(chan []domain.Task, 1)
		unsubscribe, err := m.SubscribeTasks(ctx, func(tasks []domain.Task) {
			select {
			case got <- tasks:
			default:
			}
		})
		if err != nil {
			return err
		}
		defer unsubscribe()

		select {
		case tasks := <-got:
			printTasks(out, tasks)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}),
}

var taskWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the task list every time it changes, until interrupted",
	Args:  cobra.NoArgs,
	RunE: withCatalog(func(ctx context.Context, out io.Writer, m *catalog.Manager, args []string) error {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		unsubscribe, err := m.SubscribeTasks(ctx, func(tasks []domain.Task) {
			fmt.Fprintln(out, "---")
			printTasks(out, tasks)
		})
		if err != nil {
			return err
		}
		defer unsubscribe()

		<-ctx.Done()
		return nil
	}),
}

func init() {
	subjectCmd.AddCommand(subjectAddCmd, subjectRemoveCmd, subjectListCmd)
	resourceCmd.AddCommand(resourceAddCmd, resourceRemoveCmd)
	taskCmd.AddCommand(taskAddCmd, taskRemoveCmd, taskListCmd, taskWatchCmd)
	rootCmd.AddCommand(subjectCmd, resourceCmd, taskCmd)
}

type catalogFunc func(ctx context.Context, out io.Writer, m *catalog.Manager, args []string) error

// withCatalog opens the configured store around fn and turns operation
// errors into the same notices the web UI shows.
func withCatalog(fn catalogFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		m, s, err := openCatalog(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := fn(cmd.Context(), cmd.OutOrStdout(), m, args); err != nil {
			notice := catalog.Notice(err)
			if errors.Is(err, domain.ErrStore) {
				return fmt.Errorf("%s: %w", notice, err)
			}
			return errors.New(notice)
		}
		return nil
	}
}

func printCatalog(out io.Writer, c catalog.Catalog) {
	if len(c.Subjects) == 0 {
		fmt.Fprintln(out, "No subjects yet")
		return
	}
	for _, name := range c.Subjects {
		fmt.Fprintln(out, name)
		for _, title := range c.Resources[name] {
			fmt.Fprintf(out, "  - %s\n", title)
		}
	}
}

func printTasks(out io.Writer, tasks []domain.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks yet")
		return
	}
	for _, t := range tasks {
		fmt.Fprintf(out, "%s\t%s\n", t.ID, t.Text)
	}
	fmt.Fprintf(out, "Total Tasks: %d\n", len(tasks))
}
