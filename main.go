package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/danielhkuo/securevote/auth"
	"github.com/danielhkuo/securevote/cliparse"
	"github.com/danielhkuo/securevote/db"
	"github.com/danielhkuo/securevote/identity"
	"github.com/danielhkuo/securevote/middleware"
	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/protocol"
	"github.com/danielhkuo/securevote/report"
	"github.com/danielhkuo/securevote/router"
	"github.com/danielhkuo/securevote/session"
	"github.com/danielhkuo/securevote/store"
	"github.com/danielhkuo/securevote/transport"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// A missing .env is fine; flags and the environment still apply
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := cliparse.ParseFlags(args)
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		return 2
	}
	slog.SetDefault(newLogger(cfg, os.Stderr))

	dbConn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		return 1
	}
	defer dbConn.Close()

	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		return 1
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)

	broker, err := transport.NewBroker(cfg)
	if err != nil {
		slog.Error("broker setup failed", "error", err)
		return 1
	}
	client := transport.NewClient(broker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// An unreachable broker is not fatal; the client keeps retrying
	if err := client.Start(ctx); err != nil {
		slog.Error("transport start failed", "error", err)
		return 1
	}
	defer client.Close()

	st := store.New(dbConn)
	if cfg.Role == models.RoleVoter {
		return runVoter(ctx, cfg, client, st)
	}
	return runAdmin(ctx, cfg, client, st)
}

func newLogger(cfg cliparse.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("role", cfg.Role)
}

func runAdmin(ctx context.Context, cfg cliparse.Config, client *transport.Client, st *store.Store) int {
	admin := protocol.NewAdmin(client, st, protocol.AdminOptions{
		DedupWindow: cfg.DedupWindow,
		Strict:      cfg.Strict,
	})
	admin.OnAlert(func(e models.SecurityLogEntry) {
		slog.Warn("duplicate vote blocked", "survey_id", e.SurveyID, "voter", e.VoterIP, "reason", e.Reason)
	})
	go admin.Run(ctx, client.Events())

	if cfg.AdminKey == "" {
		suggested, err := auth.GenerateAdminKey()
		if err != nil {
			slog.Warn("ADMIN_KEY not set, catalog changes are unauthenticated")
		} else {
			slog.Warn("ADMIN_KEY not set, catalog changes are unauthenticated", "suggested_key", suggested)
		}
	}

	server := http.Server{
		Handler:           middleware.CORS(router.NewRouter(admin, cfg)),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	slog.Info("Listening", "port", cfg.Port, "broker", cfg.BrokerURL, "strict", cfg.Strict)
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
		return 1
	}
	slog.Info("Server closed")
	return 0
}

// runVoter runs one voting session. Without -option it stops once the
// survey is shown.
func runVoter(ctx context.Context, cfg cliparse.Config, client *transport.Client, st *store.Store) int {
	ids := identity.NewProvider(st)
	me, err := ids.Identity()
	if err != nil {
		slog.Error("failed to load client identity", "error", err)
		return 1
	}
	slog.Info("voter ready", "identity", me, "survey_id", cfg.SurveyID)

	voter := protocol.NewVoter(client, st, ids, protocol.VoterOptions{
		DedupWindow: cfg.DedupWindow,
		Strict:      cfg.Strict,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sess *session.Session
	sess = session.New(voter, cfg.SurveyID, session.Options{
		LoadTimeout: cfg.LoadTimeout,
		OnChange: func(state session.State) {
			if state != session.StateIdle {
				return
			}
			if survey, ok := sess.Survey(); ok {
				printSurvey(os.Stdout, survey, cfg.PublicBaseURL)
			}
			if cfg.OptionID == "" {
				cancel()
			}
		},
	})

	choices := make(chan string, 1)
	if cfg.OptionID != "" {
		choices <- cfg.OptionID
	}

	state, err := sess.Run(ctx, client.Events(), choices)
	fmt.Fprintln(os.Stdout, "state:", state)

	switch {
	case state == session.StateNotFound, state == session.StateError:
		slog.Error("voting session failed", "state", state, "error", err)
		return 1
	case errors.Is(err, context.Canceled) && state == session.StateIdle && cfg.OptionID == "":
		return 0
	case err != nil:
		slog.Error("voting session interrupted", "state", state, "error", err)
		return 1
	}
	return 0
}

func printSurvey(w io.Writer, s models.Survey, baseURL string) {
	fmt.Fprintf(w, "%s\n", s.Title)
	if s.Description != "" {
		fmt.Fprintf(w, "  %s\n", s.Description)
	}
	if s.Deadline != nil {
		fmt.Fprintf(w, "  closes %s\n", humanize.Time(time.UnixMilli(*s.Deadline)))
	}
	for _, o := range s.Options {
		fmt.Fprintf(w, "  [%s] %s (%d)\n", o.ID, o.Text, o.Votes)
	}
	fmt.Fprintf(w, "  %s\n", report.VoteLink(baseURL, s.ID))
}
