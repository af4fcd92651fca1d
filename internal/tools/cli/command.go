package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/propfront/propfront/internal/app"
	"github.com/propfront/propfront/internal/di"
	"github.com/propfront/propfront/internal/domain"
	"github.com/propfront/propfront/internal/service"
	"github.com/propfront/propfront/internal/tools/common"
	"github.com/propfront/propfront/internal/tools/loadgen"
	"github.com/propfront/propfront/internal/tools/ui"
)

const (
	exitFailure      = 4
	taskTimeout      = 2 * time.Minute
	defaultEnvFile   = ".env"
	credentialFormat = "email, phone or social"
)

type options struct {
	ci      bool
	envFile string
	// initApp is swapped in tests.
	initApp func(ctx context.Context) (*app.App, func(), error)
}

type loginOptions struct {
	email       string
	phone       string
	password    string
	provider    string
	accessToken string
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{initApp: di.InitializeApp})
}

func newRootCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "propfront",
		Short:         "Session front end for the property marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.LoadEnvFile(opts.envFile)
		},
	}
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "env file read before configuration is loaded")
	cmd.AddCommand(
		newServeCommand(opts),
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newWhoamiCommand(opts),
		newGuestCommand(opts),
		newCacheCommand(opts),
		newLoadgenCommand(opts),
	)
	return cmd
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the session BFF over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, cleanup, err := opts.initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}
}

func newLoginCommand(opts *options) *cobra.Command {
	lo := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := lo.credential()
			if err != nil {
				return err
			}
			return opts.withSession("login", func(ctx context.Context, a *app.App) ([]string, error) {
				snap, err := a.Sessions.SignInWithCredential(ctx, cred)
				if err != nil {
					return nil, err
				}
				return describe(snap), nil
			})
		},
	}
	cmd.Flags().StringVar(&lo.email, "email", "", "account email")
	cmd.Flags().StringVar(&lo.phone, "phone", "", "account phone in E.164 form")
	cmd.Flags().StringVar(&lo.password, "password", "", "account password")
	cmd.Flags().StringVar(&lo.provider, "provider", "", "social provider (google, facebook, line, apple)")
	cmd.Flags().StringVar(&lo.accessToken, "access-token", "", "social provider access token")
	cmd.MarkFlagsMutuallyExclusive("email", "phone", "provider")
	return cmd
}

func newLogoutCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the token and cached data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession("logout", func(ctx context.Context, a *app.App) ([]string, error) {
				a.Sessions.SignOut(ctx)
				return describe(a.Sessions.Snapshot()), nil
			})
		},
	}
}

func newWhoamiCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Restore the persisted session and show who is signed in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession("whoami", func(ctx context.Context, a *app.App) ([]string, error) {
				snap, err := a.Sessions.Restore(ctx)
				details := describe(snap)
				if err != nil && service.IsCredentialError(err) {
					return details, err
				}
				if err != nil {
					details = append(details, "profile: "+err.Error())
				}
				return details, nil
			})
		},
	}
}

func newGuestCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "guest",
		Short: "Drop any stored token and continue as a guest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession("guest", func(ctx context.Context, a *app.App) ([]string, error) {
				a.Sessions.EnterGuestMode(ctx)
				return describe(a.Sessions.Snapshot()), nil
			})
		},
	}
}

func newCacheCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Manage the shared query cache"}

	var all bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Evict user-scoped cache domains (--all for every domain)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession("cache clear", func(ctx context.Context, a *app.App) ([]string, error) {
				if all {
					return []string{"cleared all domains"}, a.Cache.ClearAll(ctx)
				}
				return []string{fmt.Sprintf("cleared %d user-scoped domains", len(domain.UserScopedDomains()))}, a.Cache.ClearUserScoped(ctx)
			})
		},
	}
	clearCmd.Flags().BoolVar(&all, "all", false, "also evict public domains")

	invalidate := &cobra.Command{
		Use:   "invalidate [domain...]",
		Short: "Mark domains stale; no arguments means every user-scoped domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			domains, err := parseDomains(args)
			if err != nil {
				return err
			}
			return opts.withSession("cache invalidate", func(ctx context.Context, a *app.App) ([]string, error) {
				if len(domains) == 0 {
					return []string{"invalidated user-scoped domains"}, a.Cache.InvalidateUserScoped(ctx)
				}
				return []string{"invalidated " + strings.Join(args, ", ")}, a.Cache.InvalidateDomains(ctx, domains...)
			})
		},
	}
	cmd.AddCommand(clearCmd, invalidate)
	return cmd
}

func newLoadgenCommand(opts *options) *cobra.Command {
	cfg := loadgen.Config{}
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Generate GET traffic against a running BFF",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := opts.run("loadgen "+cfg.Profile, func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, cfg)
				if err != nil {
					return nil, err
				}
				details := []string{fmt.Sprintf("total=%d failures=%d", res.TotalRequests, res.Failures)}
				for _, class := range []string{"2xx", "3xx", "4xx", "5xx", "other"} {
					if n := res.ByStatusClass[class]; n > 0 {
						details = append(details, fmt.Sprintf("%s=%d", class, n))
					}
				}
				if res.Failures > 0 {
					return details, fmt.Errorf("%d requests failed", res.Failures)
				}
				return details, nil
			})
			return opts.finish("loadgen", details, err)
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "http://127.0.0.1:3000", "BFF base URL")
	cmd.Flags().StringVar(&cfg.Profile, "profile", "mixed", "traffic profile: mixed, session, guest, protected, health")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 10*time.Second, "how long to send traffic")
	cmd.Flags().IntVar(&cfg.RPS, "rps", 20, "requests per second")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 4, "parallel workers")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 42, "path selection seed")
	return cmd
}

// withSession builds the app graph and runs fn against it.
func (o *options) withSession(title string, fn func(context.Context, *app.App) ([]string, error)) error {
	details, err := o.run(title, func(ctx context.Context) ([]string, error) {
		a, cleanup, err := o.initApp(ctx)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		return fn(ctx, a)
	})
	return o.finish(title, details, err)
}

func (o *options) run(title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if o.ci {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

func (o *options) finish(title string, details []string, err error) error {
	if o.ci {
		common.PrintCIResult(err == nil, title, details, err)
	}
	if err != nil {
		return &ExitError{Code: exitFailure, Err: err}
	}
	return nil
}

// ExitError carries the process exit status for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func (lo *loginOptions) credential() (domain.Credential, error) {
	var cred domain.Credential
	switch {
	case lo.email != "":
		cred = domain.Credential{Type: domain.CredentialEmail, Email: lo.email, Password: lo.password}
	case lo.phone != "":
		cred = domain.Credential{Type: domain.CredentialPhone, Phone: lo.phone, Password: lo.password}
	case lo.provider != "":
		cred = domain.Credential{Type: domain.CredentialSocial, Provider: strings.ToLower(lo.provider), AccessToken: lo.accessToken}
	default:
		return domain.Credential{}, fmt.Errorf("login needs an %s credential", credentialFormat)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cred); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.Credential{}, fmt.Errorf("invalid %s credential: %s failed %s", cred.Type, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return domain.Credential{}, fmt.Errorf("invalid credential: %w", err)
	}
	return cred, nil
}

func parseDomains(args []string) ([]domain.CacheDomain, error) {
	out := make([]domain.CacheDomain, 0, len(args))
	for _, a := range args {
		d := domain.CacheDomain(strings.TrimSpace(a))
		if !d.IsKnown() {
			return nil, fmt.Errorf("unknown cache domain %q", a)
		}
		out = append(out, d)
	}
	return out, nil
}

func describe(snap domain.Session) []string {
	details := []string{"state=" + string(snap.State), "actor=" + string(snap.Actor)}
	if snap.User != nil && !snap.User.IsGuest {
		details = append(details,
			fmt.Sprintf("user_id=%d name=%q", snap.User.UserID, snap.User.Name),
			fmt.Sprintf("role=%s member_level=%s points=%d", snap.User.Role, snap.User.MemberLevel, snap.User.PointBalance),
		)
	}
	return details
}
