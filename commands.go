package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"

	"git.skobk.in/skobkin/study-group-sync/chat"
	"git.skobk.in/skobkin/study-group-sync/config"
	"git.skobk.in/skobkin/study-group-sync/course"
	"git.skobk.in/skobkin/study-group-sync/events"
	"git.skobk.in/skobkin/study-group-sync/group"
	"git.skobk.in/skobkin/study-group-sync/repository"
	"git.skobk.in/skobkin/study-group-sync/storage"
	"git.skobk.in/skobkin/study-group-sync/workflow"
)

var errUsage = errors.New("invalid usage")

type app struct {
	cfg     config.Config
	store   *storage.Storage
	catalog *course.Catalog

	engine     *workflow.Engine
	events     *events.Broadcaster
	membership *workflow.Membership
	requests   *workflow.JoinRequests

	notifier     *chat.Notifier
	subscription *events.Subscription

	out io.Writer
	in  io.Reader
}

func (a *app) close() {
	if a.subscription != nil {
		a.subscription.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Error("main: Failed to close storage", "error", err)
		}
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "list":
		return a.list(ctx, args)
	case "courses":
		return a.courses()
	case "create":
		return a.create(ctx, args)
	case "join":
		return a.join(ctx, args)
	case "leave":
		return a.leave(ctx, args)
	case "delete":
		return a.delete(ctx, args)
	case "requests":
		return a.listRequests(ctx, args)
	case "approve", "reject":
		return a.decide(ctx, command, args)
	case "pending":
		return a.pending(ctx)
	case "watch":
		return a.watch(ctx, args)
	case "cache":
		return a.cache(ctx, args)
	}

	return fmt.Errorf("%w: unknown command %q", errUsage, command)
}

func (a *app) list(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
	search := flags.StringP("search", "s", "", "Only available groups whose name contains this text")
	privacy := flags.String("privacy", string(group.PrivacyAll), "ALL, PUBLIC or PRIVATE")
	courseName := flags.String("course", "", "Only available groups of this course name")
	members := flags.Int("members", -1, "Only available groups with exactly this many members")
	asJSON := flags.Bool("json", false, "Print JSON instead of a table")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := a.engine.Reload(ctx); err != nil {
		return err
	}

	criteria := group.Criteria{
		Search:     *search,
		Privacy:    group.Privacy(strings.ToUpper(*privacy)),
		CourseName: *courseName,
	}
	if *members >= 0 {
		criteria.ExactMemberCount = members
	}

	view := a.engine.Snapshot()
	available := a.engine.Available(criteria)

	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Source    string                 `json:"source"`
			Owned     []group.Group          `json:"owned"`
			Joined    []group.Group          `json:"joined"`
			Available []group.Group          `json:"available"`
			Pending   []group.PendingRequest `json:"pending"`
		}{view.Source.String(), view.Owned, view.Joined, available, view.Pending})
	}

	if view.Source == repository.SourceCache {
		fmt.Fprintln(a.out, "Groups API is unreachable, showing groups saved on this device.")
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	printGroups(w, "Owned", view.Owned)
	printGroups(w, "Joined", view.Joined)
	printGroups(w, "Available", available)
	if len(view.Pending) > 0 {
		pending := make([]group.Group, 0, len(view.Pending))
		for _, p := range view.Pending {
			pending = append(pending, p.Group)
		}
		printGroups(w, "Pending requests", pending)
	}
	return w.Flush()
}

func printGroups(w io.Writer, title string, groups []group.Group) {
	fmt.Fprintf(w, "%s (%d)\n", title, len(groups))
	for _, g := range groups {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d members\n", g.ID, g.Name, g.CourseCode, g.Privacy, g.MemberCount)
	}
}

func (a *app) courses() error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, c := range a.catalog.All() {
		fmt.Fprintf(w, "%s\t%s\n", c.Code, c.Name)
	}
	return w.Flush()
}

func (a *app) create(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("create", pflag.ContinueOnError)
	name := flags.String("name", "", "Group name")
	description := flags.String("description", "", "Group description")
	courseCode := flags.String("course", "", "Course code from the catalog, e.g. CS101")
	private := flags.Bool("private", false, "Require admin approval to join")
	if err := flags.Parse(args); err != nil {
		return err
	}

	spec := group.CreateSpec{Name: *name, Description: *description, CourseCode: *courseCode, Privacy: group.PrivacyPublic}
	if *private {
		spec.Privacy = group.PrivacyPrivate
	}
	if err := a.catalog.Apply(&spec); err != nil {
		return err
	}

	if err := a.engine.Reload(ctx); err != nil {
		slog.Warn("main: Cannot load groups before create", "error", err)
	}

	created, err := a.membership.Create(ctx, spec)
	if err != nil && created.ID == "" {
		return err
	}

	fmt.Fprintf(a.out, "Created group %q (%s)\n", created.Name, created.ID)
	return err
}

func (a *app) join(ctx context.Context, args []string) error {
	g, err := a.findGroup(ctx, args)
	if err != nil {
		return err
	}

	outcome, err := a.membership.Join(ctx, g)
	if errors.Is(err, workflow.ErrNotAvailableOffline) {
		fmt.Fprintf(a.out, "Could not join %q: group not available offline\n", g.Name)
		return err
	}
	if err != nil && !outcome.Joined && !outcome.Pending {
		return err
	}

	switch {
	case outcome.Pending:
		fmt.Fprintf(a.out, "Join request sent for %q\n", g.Name)
	case outcome.Joined:
		fmt.Fprintf(a.out, "Joined %q\n", g.Name)
	default:
		fmt.Fprintf(a.out, "Already a member of %q\n", g.Name)
	}
	return err
}

func (a *app) leave(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: leave needs a group id", errUsage)
	}
	return a.membership.Leave(ctx, args[0])
}

func (a *app) delete(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("delete", pflag.ContinueOnError)
	yes := flags.BoolP("yes", "y", false, "Do not ask for confirmation")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("%w: delete needs a group id", errUsage)
	}

	confirm := workflow.ConfirmFunc(func(prompt string) bool {
		if *yes {
			return true
		}
		return ask(a.in, a.out, prompt)
	})

	err := a.membership.Delete(ctx, flags.Arg(0), confirm)
	if errors.Is(err, workflow.ErrNotConfirmed) {
		fmt.Fprintln(a.out, "Nothing deleted.")
		return nil
	}
	return err
}

func ask(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func (a *app) listRequests(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: requests needs a group id", errUsage)
	}

	list, err := a.requests.Fetch(ctx, args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Join requests (%d)\n", len(list))
	for _, r := range list {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", r.MemberID, r.UserName, r.UserMajor, r.RequestedAt)
	}
	return w.Flush()
}

func (a *app) decide(ctx context.Context, command string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: %s needs a group id and a member id", errUsage, command)
	}
	groupID, memberID := args[0], args[1]

	if command == "approve" {
		return a.requests.Approve(ctx, memberID, groupID)
	}
	return a.requests.Reject(ctx, memberID, groupID)
}

func (a *app) pending(ctx context.Context) error {
	if err := a.engine.Reload(ctx); err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	view := a.engine.Snapshot()
	fmt.Fprintf(w, "Pending requests (%d)\n", len(view.Pending))
	for _, p := range view.Pending {
		fmt.Fprintf(w, "  %s\t%s\t%s\tsent %s\n", p.ID, p.Name, p.CourseCode, p.SentAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func (a *app) findGroup(ctx context.Context, args []string) (group.Group, error) {
	if len(args) != 1 {
		return group.Group{}, fmt.Errorf("%w: a group id is required", errUsage)
	}

	if err := a.engine.Reload(ctx); err != nil {
		return group.Group{}, err
	}

	g, ok := a.engine.Find(args[0])
	if !ok {
		return group.Group{}, fmt.Errorf("group %s is not listed", args[0])
	}
	return g, nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	schedule := flags.String("schedule", a.cfg.WatchSchedule, "Cron schedule of the reloads")
	search := flags.StringP("search", "s", "", "Only report groups whose name contains this text")
	if err := flags.Parse(args); err != nil {
		return err
	}

	watcher := workflow.NewWatcher(a.engine, group.Criteria{Search: *search, Privacy: group.PrivacyAll})
	tick := func() {
		fresh, err := watcher.Tick(ctx)
		if err != nil {
			slog.Error("main: Watch reload failed", "error", err)
			return
		}
		for _, g := range fresh {
			fmt.Fprintf(a.out, "New group: %s %q (%s)\n", g.ID, g.Name, g.CourseCode)
		}
		if a.notifier != nil {
			if err := a.notifier.Announce(ctx, fresh); err != nil {
				slog.Error("main: Failed to announce new groups", "error", err)
			}
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(*schedule, tick); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", *schedule, err)
	}

	tick()
	scheduler.Start()
	slog.Info("main: Watching groups", "schedule", *schedule)

	<-ctx.Done()
	<-scheduler.Stop().Done()
	slog.Info("main: Watch stopped")
	return nil
}

// cache shows or clears the data saved on this device
func (a *app) cache(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("cache", pflag.ContinueOnError)
	yes := flags.BoolP("yes", "y", false, "Do not ask for confirmation on reset")
	if err := flags.Parse(args); err != nil {
		return err
	}

	keys, err := a.store.Keys(ctx)
	if err != nil {
		return err
	}

	switch flags.Arg(0) {
	case "", "show":
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Saved entries (%d)\n", len(keys))
		for _, key := range keys {
			value, err := a.store.Get(ctx, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  %s\t%d bytes\n", key, len(value))
		}
		return w.Flush()
	case "reset":
		if !*yes && !ask(a.in, a.out, "Remove all groups and join requests saved on this device?") {
			fmt.Fprintln(a.out, "Nothing removed.")
			return nil
		}
		for _, key := range keys {
			if err := a.store.Delete(ctx, key); err != nil {
				return err
			}
		}
		slog.Info("main: Local cache cleared", "entries", len(keys))
		fmt.Fprintf(a.out, "Removed %d saved entries.\n", len(keys))
		return nil
	}

	return fmt.Errorf("%w: unknown cache action %q", errUsage, flags.Arg(0))
}
