package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/V4T54L/rumtrack/internal/adapter/host"
	"github.com/V4T54L/rumtrack/internal/domain"
	"github.com/V4T54L/rumtrack/internal/usecase"
)

var (
	simUser   string
	simEmail  string
	simOrigin string
	simVisits []string
	simClicks int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive the pipeline through a scripted browsing session",
	Long: `Simulate attaches the pipeline to an in-process store and router, then
navigates the given paths, clicks on each page and commits a user update. The
breadcrumb trail is printed when the session ends.`,
	Example: `  rumctl simulate --dry-run
  rumctl simulate --visit /,/orders,/orders/42 --clicks 2 --user u-42`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simUser, "user", "demo-user", "user id of the simulated session")
	simulateCmd.Flags().StringVar(&simEmail, "email", "", "user email")
	simulateCmd.Flags().StringVar(&simOrigin, "origin", "https://app.example.com", "origin page URLs are built from")
	simulateCmd.Flags().StringSliceVar(&simVisits, "visit", []string{"/", "/orders", "/orders/42"}, "paths to navigate, in order")
	simulateCmd.Flags().IntVar(&simClicks, "clicks", 1, "clicks per page")
}

func routeFor(p string) domain.RouteDescriptor {
	name := strings.Trim(path.Clean("/"+p), "/")
	if name == "" {
		name = "home"
	}
	return domain.RouteDescriptor{Path: p, Name: strings.ReplaceAll(name, "/", "-")}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if len(simVisits) == 0 {
		return errors.New("at least one --visit path is required")
	}
	origin, err := url.Parse(simOrigin)
	if err != nil {
		return fmt.Errorf("invalid --origin %q: %w", simOrigin, err)
	}

	store := host.NewStore(map[string]any{
		"user": map[string]any{
			"userInfo": map[string]any{"userId": simUser, "userName": simUser, "email": simEmail},
		},
	})
	store.RegisterGetter("user/permissions", func(state map[string]any) any {
		return []string{"orders:read"}
	})
	router := host.NewRouter(routeFor(simVisits[0]))

	ctx := cmd.Context()
	p := newPipeline(cmd.OutOrStdout())
	if err := p.Manager.Init(ctx, usecase.Bindings{Store: store, Router: router, FrameworkVersion: "simulated"}); err != nil {
		return err
	}
	defer p.Manager.Destroy()
	if !p.Manager.Status().Initialized {
		return errors.New("RUM is disabled for this environment: set RUM_ENABLED=true")
	}

	for i, v := range simVisits {
		if i > 0 {
			store.Commit("SET_LOADING", true, nil)
			router.Push(routeFor(v))
		}
		page := domain.PageInfo{URL: origin.JoinPath(v).String(), Path: v, Title: routeFor(v).Name}
		for c := 0; c < simClicks; c++ {
			p.Manager.TrackClick(ctx, usecase.ClickCapture{
				Target: usecase.ElementSnapshot{
					TagName:      "button",
					ClassName:    "btn btn-primary",
					TextContent:  "Continue",
					SiblingIndex: c,
				},
				X:    120,
				Y:    48,
				Page: page,
			})
		}
	}

	store.Commit("user/SET_USER_INFO", nil, func(state map[string]any) {
		user := state["user"].(map[string]any)
		info := user["userInfo"].(map[string]any)
		info["lastActiveAt"] = time.Now().UnixMilli()
	})
	p.Manager.TrackMetric(ctx, "simulated_pages", float64(len(simVisits)), map[string]any{"user": simUser})
	p.Orchestrator.Wait()

	errOut := cmd.ErrOrStderr()
	for _, b := range p.Manager.Breadcrumbs() {
		fmt.Fprintf(errOut, "%s  %-8s %s\n", b.Timestamp.Format("15:04:05.000"), b.Type, b.Message)
	}
	st := p.Delivery.Stats()
	fmt.Fprintf(errOut, "sent %d, failed %d, queued for retry %d\n", st.Sent, st.Failed, st.RetryQueueCount)
	return nil
}
