package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"atelier/internal/app"
	"atelier/internal/config"
	"atelier/internal/db"
	"atelier/internal/engine"
	"atelier/internal/repo"
	"atelier/internal/reporting"
	"atelier/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "at",
	Short: "Atelier CLI",
	Long: `Atelier tracks commissioned template work from idea to publication.
- Work items move new -> assigned -> in_progress -> submitted -> reviewed/needs_fixes -> published -> archived.
- Every mutation appends to an event log; reports reconstruct submission times from it.
- Reporting weeks start Thursday 14:00 in the configured timezone.
- Entering reviewed or published bills the assignee once per item.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ATELIER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "admin", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
}

func registerCommands() {
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(timeseriesCmd())
	rootCmd.AddCommand(invoicesCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func withEngine(ctx context.Context, fn func(ctx context.Context, e engine.Engine) error) error {
	eng, conn, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, eng)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func itemCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "item", Short: "Manage work items"}
	cmd.AddCommand(itemCreateCmd())
	cmd.AddCommand(itemListCmd())
	cmd.AddCommand(itemShowCmd())
	cmd.AddCommand(itemUpdateCmd())
	cmd.AddCommand(itemStatusCmd())
	cmd.AddCommand(itemAssignCmd())
	cmd.AddCommand(itemSubmissionCmd())
	return cmd
}

func itemFilters(status, assignee string, limit int) repo.WorkItemFilters {
	return repo.WorkItemFilters{Status: status, AssignedTo: assignee, Limit: limit}
}

func itemCreateCmd() *cobra.Command {
	var title, description, assignee string
	var price float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CreateWorkItem(ctx, engine.WorkItemCreateOptions{
					Title:       title,
					Description: description,
					Price:       price,
					AssignedTo:  assignee,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w)
				}
				fmt.Printf("created %s (%s)\n", w.ID, w.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "item title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().Float64Var(&price, "price", 0, "price owed on completion")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "initial assignee")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func itemListCmd() *cobra.Command {
	var status, assignee string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListWorkItems(ctx, itemFilters(status, assignee, limit))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assignee", "Price", "Fixes"})
				for _, w := range items {
					assignee := ""
					if w.AssignedTo != nil {
						assignee = *w.AssignedTo
					}
					tw.AppendRow(table.Row{w.ID, w.Title, w.Status, assignee, w.Price, w.FixCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "assignee filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func itemShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.GetWorkItem(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	return cmd
}

func itemUpdateCmd() *cobra.Command {
	var title, description string
	var price float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update work item fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.WorkItemUpdateOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				if cmd.Flags().Changed("price") {
					opts.Price = &price
				}
				w, err := e.UpdateWorkItem(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w)
				}
				fmt.Printf("updated %s\n", w.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().Float64Var(&price, "price", 0, "new price")
	return cmd
}

func itemStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change work item status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.UpdateStatus(ctx, args[0], args[1], viper.GetString("actor-id"), viper.GetBool("force"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w)
				}
				fmt.Printf("%s -> %s\n", w.ID, w.Status)
				return nil
			})
		},
	}
	return cmd
}

func itemAssignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <id> <assignee-id>",
		Short: "Assign a work item to a freelancer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.AssignWorkItem(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w)
				}
				fmt.Printf("%s assigned to %s\n", w.ID, args[1])
				return nil
			})
		},
	}
	return cmd
}

func itemSubmissionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submission <id>",
		Short: "Show the reconstructed submission instant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				at, skipped, err := e.SubmittedAt(ctx, args[0])
				if err != nil {
					return err
				}
				if at == nil {
					fmt.Println("never submitted (no logged transition)")
				} else {
					fmt.Println(at.UTC().Format(time.RFC3339Nano))
				}
				if skipped > 0 {
					fmt.Printf("(%d unparseable events skipped)\n", skipped)
				}
				return nil
			})
		},
	}
	return cmd
}

func periodFlags(cmd *cobra.Command, period, freelancer, start, end *string) {
	cmd.Flags().StringVar(period, "period", "weekly", "weekly|past_week|monthly|quarterly|yearly|all|custom")
	cmd.Flags().StringVar(freelancer, "freelancer-id", "", "limit to one freelancer")
	cmd.Flags().StringVar(start, "start", "", "custom period start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(end, "end", "", "custom period end date (YYYY-MM-DD)")
}

func reportCmd() *cobra.Command {
	var period, freelancer, start, end string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Per-freelancer performance report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				kind, err := reporting.ParseKind(period)
				if err != nil {
					return err
				}
				rep, err := e.Aggregator().Report(ctx, kind, freelancer, start, end)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				fmt.Printf("period %s", rep.Window.Type)
				if rep.Window.StartDate != "" {
					fmt.Printf(" [%s .. %s]", rep.Window.StartDate, rep.Window.EndDate)
				}
				fmt.Println()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Freelancer", "Items", "Submitted", "Reviewed", "Published", "Needs fixes", "Earnings", "Completed"})
				for _, f := range rep.Freelancers {
					tw.AppendRow(table.Row{
						f.FreelancerID, f.TotalItems, f.ByStatus.Submitted, f.ByStatus.Reviewed,
						f.ByStatus.Published, f.ByStatus.NeedsFixes, f.TotalEarnings, f.CompletedEarnings,
					})
				}
				tw.Render()
				if rep.SkippedEvents > 0 {
					fmt.Printf("(%d unparseable events skipped)\n", rep.SkippedEvents)
				}
				return nil
			})
		},
	}
	periodFlags(cmd, &period, &freelancer, &start, &end)
	return cmd
}

func timeseriesCmd() *cobra.Command {
	var period, freelancer, start, end string
	var top int
	cmd := &cobra.Command{
		Use:   "timeseries",
		Short: "Creation/submission rates, status distribution, leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				kind, err := reporting.ParseKind(period)
				if err != nil {
					return err
				}
				ts, err := e.Aggregator().Timeseries(ctx, kind, freelancer, start, end, top)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Created", "Submitted"})
				for _, p := range ts.Points {
					tw.AppendRow(table.Row{p.Date, p.Created, p.Submitted})
				}
				tw.Render()
				lb := table.NewWriter()
				lb.SetOutputMirror(os.Stdout)
				lb.AppendHeader(table.Row{"Freelancer", "Published", "Earnings"})
				for _, entry := range ts.Leaderboard {
					lb.AppendRow(table.Row{entry.FreelancerID, entry.Published, entry.Earnings})
				}
				lb.Render()
				return nil
			})
		},
	}
	periodFlags(cmd, &period, &freelancer, &start, &end)
	cmd.Flags().IntVar(&top, "top", 5, "leaderboard size")
	return cmd
}

func invoicesCmd() *cobra.Command {
	var freelancer string
	var limit int
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "List invoice ledger lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListInvoiceItems(ctx, freelancer, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Freelancer", "Item", "Title", "Amount", "Created"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.FreelancerID, it.WorkItemID, it.Title, it.Amount, it.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&freelancer, "freelancer-id", "", "freelancer filter")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	return cmd
}

func notificationsCmd() *cobra.Command {
	var user string
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List queued notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListNotifications(ctx, user, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Type", "Message", "Item", "Created"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.UserID, n.Type, n.Message, n.WorkItemID, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user-id", "", "user filter")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	var limit int
	var item, action string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evts, err := e.Repo.LatestEvents(ctx, limit, item, action)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Item", "Actor", "Action", "Status"})
				for _, evt := range evts {
					status := ""
					if evt.Status != nil {
						status = *evt.Status
					}
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.WorkItemID, evt.ActorID, evt.Action, status})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 20, "max rows")
	tail.Flags().StringVar(&item, "item", "", "work item filter")
	tail.Flags().StringVar(&action, "action", "", "action filter")
	log.AddCommand(tail)
	return log
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default atelier.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	}
	cfg.AddCommand(initCmd)
	cfg.AddCommand(showCmd)
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, conn, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer conn.Close()
			handler, err := server.New(server.Config{Engine: eng, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Atelier API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}
