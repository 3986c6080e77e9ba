// Command learner is a terminal learner dashboard. It behaves like a single
// browser tab: one session, kept in memory or in Redis between runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/learnhub-api/internal/auth"
	"github.com/noah-isme/learnhub-api/internal/config"
	"github.com/noah-isme/learnhub-api/internal/database"
	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/fallback"
	"github.com/noah-isme/learnhub-api/internal/identity"
	"github.com/noah-isme/learnhub-api/internal/repository"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/internal/session"
)

type options struct {
	email    string
	password string
	fullName string
	signUp   bool
	signOut  bool
	migrate  bool
	category string
	store    string
	profile  string
	timeout  time.Duration
}

func main() {
	opts := options{}
	flag.StringVar(&opts.email, "email", "", "account email")
	flag.StringVar(&opts.password, "password", "", "account password")
	flag.StringVar(&opts.fullName, "name", "", "full name used with -signup")
	flag.BoolVar(&opts.signUp, "signup", false, "create the account before signing in")
	flag.BoolVar(&opts.signOut, "signout", false, "sign out after printing the dashboard")
	flag.BoolVar(&opts.migrate, "migrate", false, "create missing tables first (local sqlite databases)")
	flag.StringVar(&opts.category, "category", "", "only list courses of this category slug")
	flag.StringVar(&opts.store, "store", "memory", "session store: memory or redis")
	flag.StringVar(&opts.profile, "profile", "default", "session name when -store=redis")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().Level(zerolog.WarnLevel)

	if err := run(opts, os.Stdout, logger); err != nil {
		logger.Error().Err(err).Msg("learner dashboard failed")
		os.Exit(1)
	}
}

func run(opts options, out io.Writer, logger zerolog.Logger) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if opts.migrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	identityClient, err := identity.New(identity.Config{
		BaseURL: cfg.IdentityURL,
		APIKey:  cfg.IdentityAPIKey,
		Timeout: cfg.IdentityTimeout,
	}, logger)
	if err != nil {
		return err
	}

	store, closeStore, err := tokenStore(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer closeStore()

	policy := fallback.New(cfg.FallbackDemoData)
	profiles := repository.NewProfileRepository(db)
	gateway := auth.NewGateway(identityClient, profiles, auth.Options{
		TokenStore:        store,
		ProvisionProfiles: cfg.ProvisionProfiles,
	}, logger)

	sess := session.New(gateway, session.Options{
		Policy:    policy,
		Navigator: session.NavigatorFunc(func(path string) { fmt.Fprintf(out, "-> %s\n", path) }),
		HomePath:  cfg.HomePath,
		Logger:    logger,
	})
	defer sess.Close()
	if err := sess.Start(ctx); err != nil {
		return err
	}

	if !sess.Snapshot().SignedIn() {
		if opts.email == "" || opts.password == "" {
			return errors.New("not signed in: pass -email and -password")
		}
		if opts.signUp {
			if _, err := gateway.SignUp(ctx, opts.email, opts.password, opts.fullName); err != nil {
				return fmt.Errorf("sign up: %w", err)
			}
		}
		if !sess.Snapshot().SignedIn() {
			if _, err := gateway.SignIn(ctx, opts.email, opts.password); err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
		}
	}

	state := sess.Snapshot()
	if !state.SignedIn() {
		return errors.New("sign in did not produce a session")
	}

	courses := service.NewCourseService(repository.NewCourseRepository(db), repository.NewCategoryRepository(db), policy, nil, nil,
		service.CourseServiceConfig{MaxImageMB: cfg.MaxImageMB}, nil, logger)
	enrollments := service.NewEnrollmentService(repository.NewEnrollmentRepository(db), policy, nil, logger)

	dashboard, err := enrollments.Dashboard(ctx, state.User.ID)
	if err != nil {
		return fmt.Errorf("load dashboard: %w", err)
	}

	var catalog []dto.CourseResponse
	if opts.category != "" {
		catalog, err = courses.ListByCategory(ctx, opts.category)
	} else {
		catalog, err = courses.ListPublished(ctx)
	}
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	printDashboard(out, state, dashboard, catalog)

	if opts.signOut {
		if err := sess.SignOut(ctx); err != nil {
			logger.Warn().Err(err).Msg("remote sign out failed; local session cleared")
		}
		fmt.Fprintln(out, "signed out")
	}
	return nil
}

func tokenStore(ctx context.Context, cfg config.Config, opts options) (auth.TokenStore, func(), error) {
	if opts.store != "redis" {
		return auth.NewMemoryTokenStore(), func() {}, nil
	}

	client, err := database.ConnectRedis(ctx, cfg.RedisURL, "learnhub-learner")
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return nil, nil, errors.New("-store=redis needs LEARNHUB_REDIS_URL")
	}

	store, err := auth.NewRedisTokenStore(client, opts.profile)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, func() { _ = client.Close() }, nil
}

func printDashboard(out io.Writer, state session.State, dashboard dto.LearnerDashboardResponse, catalog []dto.CourseResponse) {
	name := state.User.Email
	role := "student"
	if state.Profile != nil {
		if state.Profile.FullName != nil && *state.Profile.FullName != "" {
			name = *state.Profile.FullName
		}
		role = state.Profile.Role
	}
	fmt.Fprintf(out, "%s <%s> (%s)\n\n", name, state.User.Email, role)

	summary := dashboard.Summary
	fmt.Fprintf(out, "courses %d | completed %d | in progress %d | not started %d | avg %.1f%% | %dh\n\n",
		summary.TotalCourses, summary.Completed, summary.InProgress, summary.NotStarted, summary.AverageProgress, summary.TotalHours)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENROLLED\tCATEGORY\tPROGRESS\tSTATUS")
	for _, enrollment := range dashboard.Enrollments {
		fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\n", enrollment.Course.Title, enrollment.Course.Category.Name, enrollment.Progress, enrollment.Status)
	}
	_ = w.Flush()
	fmt.Fprintln(out)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATALOG\tLEVEL\tHOURS\tPRICE\tINSTRUCTOR")
	for _, course := range catalog {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%s\n", course.Title, course.Level, course.DurationHours, course.Price, course.Instructor.Name)
	}
	_ = w.Flush()
}
