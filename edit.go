package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CrowderSoup/planner/store"
	"github.com/CrowderSoup/planner/tasks"
	"github.com/CrowderSoup/planner/view"
)

type repeatFlags struct {
	every    string
	interval int
	until    string
}

func (f *repeatFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.every, "repeat", "", "daily, weekly or monthly")
	cmd.Flags().IntVar(&f.interval, "interval", 1, "repeat every N periods")
	cmd.Flags().StringVar(&f.until, "until", "", "last day of the repetition (yyyy-mm-dd)")
}

func (f *repeatFlags) pattern() (*tasks.RecurringPattern, error) {
	if f.every == "" {
		return nil, nil
	}
	p := &tasks.RecurringPattern{Type: tasks.PatternType(f.every), Interval: f.interval}
	if f.until != "" {
		end, err := tasks.ParseDate(f.until)
		if err != nil {
			return nil, err
		}
		p.EndDate = &end
	}
	return p, nil
}

func addCmd() *cobra.Command {
	var (
		date, color, description, parent string
		repeat                            repeatFlags
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task; without --date it goes to someday",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, "", view.Week)
			if err != nil {
				return err
			}
			draft := tasks.Draft{
				Title:        args[0],
				Description:  description,
				Color:        tasks.Color(color),
				ParentTaskID: parent,
			}
			if date != "" {
				if draft.Date, err = tasks.ParseDate(date); err != nil {
					return err
				}
			}
			if draft.RecurringPattern, err = repeat.pattern(); err != nil {
				return err
			}
			draft.IsRecurring = draft.RecurringPattern != nil

			created, err := sess.store.AddTask(ctx, draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %q #%s\n", created.Title, created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day of the task (yyyy-mm-dd)")
	cmd.Flags().StringVar(&color, "color", "", "default, red, amber, emerald, blue or purple")
	cmd.Flags().StringVar(&description, "description", "", "longer notes")
	cmd.Flags().StringVar(&parent, "parent", "", "id of the parent task")
	repeat.register(cmd)
	return cmd
}

func doneCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "done <id>...",
		Short: "Toggle completion of tasks in the view around --date",
		Long: `Toggle completion of tasks. Occurrences of recurring tasks are
addressed as <id>-<yyyy-mm-dd>, as printed by agenda.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, date, view.Week)
			if err != nil {
				return err
			}
			if err := sess.store.Refresh(ctx); err != nil {
				return err
			}
			for _, id := range args {
				if err := sess.store.Dispatch(ctx, store.ToggleComplete{ID: id}); err != nil {
					return err
				}
			}
			if err := sess.store.FlushCompletions(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Toggled %d task(s)\n", len(args))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day inside the week holding the tasks (yyyy-mm-dd)")
	return cmd
}

func editCmd() *cobra.Command {
	var (
		date, title, color, description, moveTo string
		someday, once                           bool
		repeat                                  repeatFlags
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a task; editing an occurrence edits its series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch tasks.Patch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("color") {
				c := tasks.Color(color)
				patch.Color = &c
			}
			switch {
			case someday:
				d := tasks.Someday
				patch.Date = &d
			case moveTo != "":
				d, err := tasks.ParseDate(moveTo)
				if err != nil {
					return err
				}
				patch.Date = &d
			}
			if once {
				off := false
				patch.IsRecurring = &off
			} else {
				p, err := repeat.pattern()
				if err != nil {
					return err
				}
				patch.RecurringPattern = p
			}
			if patch.Empty() {
				return errors.New("nothing to change")
			}

			ctx := cmd.Context()
			sess, err := openSession(ctx, date, view.Week)
			if err != nil {
				return err
			}
			if err := sess.store.Refresh(ctx); err != nil {
				return err
			}
			if err := sess.store.Dispatch(ctx, store.UpdateTask{ID: args[0], Patch: patch}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated #%s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day inside the week holding the task (yyyy-mm-dd)")
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&color, "color", "", "new color")
	cmd.Flags().StringVar(&moveTo, "move", "", "move to day (yyyy-mm-dd)")
	cmd.Flags().BoolVar(&someday, "someday", false, "move to someday")
	cmd.Flags().BoolVar(&once, "once", false, "stop repeating")
	repeat.register(cmd)
	return cmd
}

func removeCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task with its subtasks; removing an occurrence removes its series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, date, view.Week)
			if err != nil {
				return err
			}
			if err := sess.store.Refresh(ctx); err != nil {
				return err
			}
			if err := sess.store.Dispatch(ctx, store.DeleteTask{ID: args[0]}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed #%s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day inside the week holding the task (yyyy-mm-dd)")
	return cmd
}
