package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jask/ledgersync/internal/api"
	"github.com/jask/ledgersync/internal/budget"
	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/dates"
	"github.com/jask/ledgersync/internal/money"
	"github.com/jask/ledgersync/internal/payday"
	"github.com/jask/ledgersync/internal/secrets"
	"github.com/jask/ledgersync/internal/service"
	"github.com/jask/ledgersync/internal/tui"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgersync",
		Short:         "Mirror a bank ledger locally and track spending against budgets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	payCmd := &cobra.Command{Use: "payday", Short: "Manage the pay schedule"}
	payCmd.AddCommand(paydaySetCmd())
	trackerCmd := &cobra.Command{Use: "tracker", Short: "Manage budget trackers"}
	trackerCmd.AddCommand(trackerAddCmd())
	chargeCmd := &cobra.Command{Use: "charge", Short: "Manage scheduled charges"}
	chargeCmd.AddCommand(chargeAddCmd())
	saverCmd := &cobra.Command{Use: "saver", Short: "Manage saver goals"}
	saverCmd.AddCommand(saverGoalCmd())

	root.AddCommand(syncCmd(), statusCmd(), serveCmd(), loginCmd(), logoutCmd(), payCmd, trackerCmd, chargeCmd, saverCmd)
	return root
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func syncCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch accounts, transactions, categories and savers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				run := func(ctx context.Context, obs service.Observer) (service.SyncResult, error) {
					return a.sync(ctx, full, obs)
				}
				var (
					res service.SyncResult
					err error
				)
				if isatty.IsTerminal(os.Stdout.Fd()) {
					res, err = tui.RunSync(ctx, "Syncing ledger", os.Stdout, run)
				} else {
					res, err = run(ctx, func(p service.Phase) { a.logger.Printf("sync: %s", p) })
				}
				if err != nil {
					if hint := service.Classify(err).Hint(); hint != "" {
						a.logger.Print(hint)
					}
					return err
				}
				a.logger.Printf("synced %d transactions across %d accounts, run %s", res.Transactions, res.Accounts, res.RunID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "ignore the watermark and fetch the full history")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show spendable balance and tracker progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sum, err := a.balanceSvc.Summary(ctx, a.today())
				if err != nil {
					return fmt.Errorf("balance: %w", err)
				}
				progress, err := a.trackerSvc.Overview(ctx)
				if err != nil {
					return fmt.Errorf("trackers: %w", err)
				}
				last, err := a.settings.LastSync(ctx)
				if err != nil {
					return fmt.Errorf("last sync: %w", err)
				}
				pay, err := a.settings.Payday(ctx)
				if err != nil {
					return fmt.Errorf("payday: %w", err)
				}
				view := tui.Summary{
					Balance:  sum,
					Trackers: progress,
					LastSync: last,
					Symbol:   a.cfg.UI.CurrencySymbol,
					Location: a.loc,
				}
				if pay.IsSet() {
					view.Payday = &pay.Next
				}
				if a.db != nil {
					v, dirty, err := database.SchemaVersion(a.cfg.Database.Path)
					if err != nil {
						a.logger.Printf("warn: schema version: %v", err)
					}
					view.Schema, view.SchemaDirty = v, dirty
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderSummary(view))
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if addr == "" {
					addr = a.cfg.Server.Addr
				}
				srv := &api.Server{
					Balance:      a.balanceSvc,
					Trackers:     a.trackerSvc,
					Transactions: a.transactions,
					Savers:       a.savers,
					Location:     a.loc,
					AllowOrigins: a.cfg.Server.AllowOrigins,
					Sync: func(ctx context.Context) (service.SyncResult, error) {
						return a.sync(ctx, false, nil)
					},
				}
				hs := &http.Server{Addr: addr, Handler: srv.Register(), ReadHeaderTimeout: 10 * time.Second}

				errc := make(chan error, 1)
				go func() {
					a.logger.Printf("listening on %s", addr)
					errc <- hs.ListenAndServe()
				}()
				select {
				case err := <-errc:
					return err
				case <-ctx.Done():
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := hs.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
				if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	return cmd
}

func loginCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Validate and store a personal access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if token == "" {
					fmt.Fprint(cmd.ErrOrStderr(), "API token: ")
					line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
					if err != nil && line == "" {
						return fmt.Errorf("read token: %w", err)
					}
					token = line
				}
				token = strings.TrimSpace(token)
				if token == "" {
					return errors.New("token is required")
				}
				ok, err := a.remote.Validate(ctx, token)
				if err != nil {
					return fmt.Errorf("validate token: %w", err)
				}
				if !ok {
					return errors.New("the ledger rejected that token")
				}
				if err := secrets.StoreToken(tokenName, token); err != nil {
					return fmt.Errorf("store token: %w", err)
				}
				a.logger.Print("token saved")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "token to store (read from stdin when empty)")
	return cmd
}

func logoutCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := secrets.DeleteToken(tokenName); err != nil {
					return fmt.Errorf("delete token: %w", err)
				}
				if reset {
					if err := a.maintenance.ResetSynced(ctx); err != nil {
						return fmt.Errorf("reset: %w", err)
					}
					a.logger.Print("synced data cleared")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "also delete synced accounts, transactions and categories")
	return cmd
}

func paydaySetCmd() *cobra.Command {
	var next, freq string
	var day int
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the next payday and pay frequency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				d, err := dates.Parse(next)
				if err != nil {
					return fmt.Errorf("next payday: %w", err)
				}
				f, err := payday.ParseFrequency(freq)
				if err != nil {
					return err
				}
				if f == "" {
					return errors.New("frequency is required")
				}
				if day == 0 {
					day = defaultPayDay(f, d)
				}
				if err := a.settings.SavePayday(ctx, payday.Settings{Frequency: f, Day: day, Next: d}); err != nil {
					return fmt.Errorf("save payday: %w", err)
				}
				// PAYDAY trackers follow the new schedule straight away.
				if _, err := a.trackerSvc.Recalculate(ctx, a.today()); err != nil {
					return fmt.Errorf("recalculate: %w", err)
				}
				a.flusher.Schedule()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&next, "next", "", "next payday, YYYY-MM-DD")
	cmd.Flags().StringVar(&freq, "frequency", "", "WEEKLY, FORTNIGHTLY or MONTHLY")
	cmd.Flags().IntVar(&day, "day", 0, "ISO weekday or day of month (defaults from --next)")
	_ = cmd.MarkFlagRequired("next")
	_ = cmd.MarkFlagRequired("frequency")
	return cmd
}

func defaultPayDay(f payday.Frequency, next time.Time) int {
	if f == payday.Monthly {
		return next.Day()
	}
	return dates.ISOWeekday(next)
}

func trackerAddCmd() *cobra.Command {
	var (
		name, amount, freq string
		resetDay           int
		cats               []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a budget tracker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				cents, err := money.ParseCents(amount)
				if err != nil {
					return fmt.Errorf("budget: %w", err)
				}
				f, err := budget.ParseFrequency(freq)
				if err != nil {
					return err
				}
				ids, err := a.resolver.ResolveAll(ctx, cats)
				if err != nil {
					return err
				}
				id, err := a.trackerSvc.Create(ctx, service.NewTracker{
					Name:        name,
					BudgetCents: cents,
					Frequency:   f,
					ResetDay:    resetDay,
					CategoryIDs: ids,
				}, a.today())
				if err != nil {
					return err
				}
				a.flusher.Schedule()
				a.logger.Printf("tracker %d created", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "tracker name")
	cmd.Flags().StringVar(&amount, "budget", "", "budget per period, e.g. 250.00")
	cmd.Flags().StringVar(&freq, "frequency", "WEEKLY", "WEEKLY, FORTNIGHTLY, MONTHLY or PAYDAY")
	cmd.Flags().IntVar(&resetDay, "reset-day", 1, "ISO weekday or day of month the period starts on")
	cmd.Flags().StringSliceVar(&cats, "category", nil, "category name or id (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("budget")
	return cmd
}

func chargeAddCmd() *cobra.Command {
	var (
		name, amount, freq, next, category string
		reserved                           bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled charge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				cents, err := money.ParseCents(amount)
				if err != nil {
					return fmt.Errorf("amount: %w", err)
				}
				d, err := dates.Parse(next)
				if err != nil {
					return fmt.Errorf("next date: %w", err)
				}
				in := service.NewCharge{Name: name, AmountCents: cents, Frequency: freq, NextDate: d, Reserved: reserved}
				if category != "" {
					c, err := a.resolver.Resolve(ctx, category)
					if err != nil {
						return err
					}
					in.CategoryID = &c.ID
				}
				id, err := a.chargeSvc.Add(ctx, in)
				if err != nil {
					return err
				}
				a.flusher.Schedule()
				a.logger.Printf("charge %d added", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "charge name")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, e.g. 15.99")
	cmd.Flags().StringVar(&freq, "frequency", "MONTHLY", "WEEKLY, FORTNIGHTLY, MONTHLY, QUARTERLY, YEARLY or ONCE")
	cmd.Flags().StringVar(&next, "next", "", "next charge date, YYYY-MM-DD")
	cmd.Flags().StringVar(&category, "category", "", "category name or id")
	cmd.Flags().BoolVar(&reserved, "reserved", true, "hold the amount back from the spendable balance")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("next")
	return cmd
}

// saverGoal holds the parsed goal flags. A nil field clears that column.
type saverGoal struct {
	goal    *int64
	target  *time.Time
	monthly *int64
}

func parseSaverGoal(goal, target, monthly string) (saverGoal, error) {
	var g saverGoal
	if goal != "" {
		cents, err := money.ParseCents(goal)
		if err != nil {
			return g, fmt.Errorf("goal: %w", err)
		}
		g.goal = &cents
	}
	if target != "" {
		d, err := dates.Parse(target)
		if err != nil {
			return g, fmt.Errorf("target date: %w", err)
		}
		g.target = &d
	}
	if monthly != "" {
		cents, err := money.ParseCents(monthly)
		if err != nil {
			return g, fmt.Errorf("monthly transfer: %w", err)
		}
		g.monthly = &cents
	}
	return g, nil
}

func saverGoalCmd() *cobra.Command {
	var goal, target, monthly string
	cmd := &cobra.Command{
		Use:   "goal <saver-account-id>",
		Short: "Set or clear a saver's goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := parseSaverGoal(goal, target, monthly)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				err := a.savers.SetGoal(ctx, args[0], g.goal, g.target, g.monthly)
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("unknown saver %q, run sync first", args[0])
				}
				if err != nil {
					return fmt.Errorf("set goal: %w", err)
				}
				a.flusher.Schedule()
				sv, err := a.savers.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if sv != nil && sv.GoalCents != nil {
					a.logger.Printf("%s goal %s", sv.DisplayName, money.FormatCents(*sv.GoalCents, a.cfg.UI.CurrencySymbol))
				} else if sv != nil {
					a.logger.Printf("%s goal cleared", sv.DisplayName)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "goal amount, e.g. 5000.00 (empty clears)")
	cmd.Flags().StringVar(&target, "target", "", "target date, YYYY-MM-DD")
	cmd.Flags().StringVar(&monthly, "monthly", "", "planned monthly transfer, e.g. 200.00")
	return cmd
}
