package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/CrowderSoup/planner/client"
	"github.com/CrowderSoup/planner/services"
	"github.com/CrowderSoup/planner/store"
	"github.com/CrowderSoup/planner/tasks"
	"github.com/CrowderSoup/planner/view"
)

// session is a client-side store bound to the configured server.
type session struct {
	cfg   services.Config
	repo  *client.Repository
	store *store.Store
}

func openSession(ctx context.Context, date string, vt view.Type) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Client.Token == "" {
		return nil, errors.New("no session token: set PLANNER_TOKEN or run `planner token --email ...`")
	}
	timeout, err := cfg.Client.Timeout()
	if err != nil {
		return nil, err
	}

	current := time.Now()
	if date != "" {
		if current, err = tasks.ParseDate(date); err != nil {
			return nil, err
		}
	}

	repo := client.New(cfg.Client.Server, cfg.Client.Token)
	ownerID, err := repo.Whoami(ctx)
	if err != nil {
		if client.IsUnauthorized(err) {
			return nil, fmt.Errorf("session token rejected, issue a new one with `planner token`: %w", err)
		}
		return nil, err
	}

	s := store.New(repo, ownerID,
		store.WithView(current, vt),
		store.WithCallTimeout(timeout),
	)
	return &session{cfg: cfg, repo: repo, store: s}, nil
}

func agendaCmd() *cobra.Command {
	var (
		date   string
		layout string
		search string
		watch  bool
	)
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Print the tasks of a week or month",
		Long: `Print the tasks of the current view.

Examples:
  planner agenda
  planner agenda --view month --date 2024-02-01
  planner agenda --view custom --search dentist
  planner agenda --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			vt, err := view.ParseType(layout)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := openSession(ctx, date, vt)
			if err != nil {
				return err
			}
			if err := sess.store.Dispatch(ctx, store.SetSearch{Query: search}); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := sess.store.Refresh(ctx); err != nil {
				return err
			}
			printAgenda(out, sess.store.State(), sess.store.FilteredTasks())
			if !watch {
				return nil
			}
			return sess.watch(ctx, out)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day inside the view (yyyy-mm-dd), default today")
	cmd.Flags().StringVar(&layout, "view", string(view.Week), "week, month or custom")
	cmd.Flags().StringVar(&search, "search", "", "only show tasks matching this text")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and reprint on changes")
	return cmd
}

// watch reprints the agenda whenever the server reports a change, flushing
// queued completions on the configured schedule and on exit.
func (s *session) watch(ctx context.Context, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	var lastGen uint64
	unsubscribe := s.store.Subscribe(func(st store.State) {
		if st.Status != store.Loaded {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if st.Generation == lastGen {
			return
		}
		lastGen = st.Generation
		fmt.Fprintln(out)
		printAgenda(out, st, view.Filter(st.CachedTasks, st.SearchQuery))
	})
	defer unsubscribe()

	interval, err := s.cfg.Client.Interval()
	if err != nil {
		return err
	}
	scheduler := services.NewScheduler(time.UTC)
	flushID, err := scheduler.ScheduleInterval(interval, func() {
		if err := s.store.FlushCompletions(ctx); err != nil {
			log.Printf("Error flushing completions: %v", err)
		}
	})
	if err != nil {
		return err
	}
	scheduler.Start()
	log.Printf("Flushing completions every %s, next at %s", interval, scheduler.Next(flushID).Format(time.Kitchen))
	defer func() {
		scheduler.Stop()
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.store.FlushCompletions(flushCtx); err != nil {
			log.Printf("Error flushing completions: %v", err)
		}
	}()

	for {
		err := s.repo.Watch(ctx, func() {
			if err := s.store.Refresh(ctx); err != nil {
				log.Printf("Error refreshing: %v", err)
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		if client.IsUnauthorized(err) {
			return err
		}
		log.Printf("Watch interrupted: %v, reconnecting", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}
		if err := s.store.Refresh(ctx); err != nil {
			log.Printf("Error refreshing: %v", err)
		}
	}
}

func printAgenda(out io.Writer, st store.State, list []tasks.Task) {
	dated, someday := view.Partition(list)
	w := view.ComputeWindow(st.CurrentDate, st.ViewType)

	switch st.ViewType {
	case view.Custom:
		query := st.SearchQuery
		if query == "" {
			query = "all tasks"
		}
		fmt.Fprintf(out, "Search: %s\n", query)
		for _, g := range view.GroupByDay(dated) {
			fmt.Fprintf(out, "\n%s\n", g.Day.Format("Monday, January 2, 2006"))
			printTasks(out, g.Tasks, "  ")
		}
	default:
		fmt.Fprintf(out, "%s %s\n", cases.Title(language.English).String(string(st.ViewType)), w)
		if st.ViewType == view.Month {
			printMonthGrid(out, st.CurrentDate, dated)
		}
		for _, day := range view.Days(w) {
			onDay := view.OnDay(dated, day)
			if len(onDay) == 0 && st.ViewType == view.Month {
				continue
			}
			fmt.Fprintf(out, "\n%s\n", day.Format("Mon Jan 2"))
			printTasks(out, onDay, "  ")
		}
	}

	if len(someday) > 0 {
		fmt.Fprintf(out, "\nSomeday\n")
		printTasks(out, someday, "  ")
	}
	if st.Err != nil {
		fmt.Fprintf(out, "\n(showing cached tasks: %v)\n", st.Err)
	}
}

// printMonthGrid draws the Monday-first calendar of the month, marking days
// that have tasks with '*'.
func printMonthGrid(out io.Writer, current time.Time, dated []tasks.Task) {
	month := view.ComputeWindow(current, view.Month)
	fmt.Fprintln(out, "  Mo  Tu  We  Th  Fr  Sa  Su")
	for i, day := range view.Days(view.MonthGrid(current)) {
		cell := "    "
		if month.Contains(day) {
			mark := " "
			if len(view.OnDay(dated, day)) > 0 {
				mark = "*"
			}
			cell = fmt.Sprintf("%3d%s", day.Day(), mark)
		}
		fmt.Fprint(out, cell)
		if i%7 == 6 {
			fmt.Fprintln(out)
		}
	}
}

func printTasks(out io.Writer, list []tasks.Task, indent string) {
	for _, t := range list {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		repeat := ""
		if t.IsRecurring && t.RecurringPattern != nil {
			repeat = " (" + string(t.RecurringPattern.Type) + ")"
		}
		fmt.Fprintf(out, "%s[%s] %s%s  #%s\n", indent, mark, t.Title, repeat, t.ID)
		printTasks(out, t.Subtasks, indent+"  ")
	}
}
