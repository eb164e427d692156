package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/internal"
	"github.com/sanLimbu/todo-sync/internal/todosync"
	"github.com/sanLimbu/todo-sync/internal/todosync/feed"
	"github.com/sanLimbu/todo-sync/internal/todosync/gateway"
)

const usage = `Usage: cli [flags] <command> [arguments]

Commands:
  signup EMAIL PASSWORD      create an account and print its token
  signin EMAIL PASSWORD      print a session token
  magic-link EMAIL           email a one-time sign in link
  signout                    revoke the current token
  list [-status S] [-priority P]
  add [-priority P] [-description D] [-image FILE] TASK
  done ID | undo ID          mark a todo completed or active
  edit [-task T] [-description D] [-priority P] ID
  rm ID
  search QUERY
  watch                      print the list every time it changes

Flags:
`

type app struct {
	client *gateway.Client
	feed   *feed.Feed
	logger *zap.Logger
	token  string
	out    io.Writer
}

func main() {
	var server, token string
	var trace, verbose bool

	flag.StringVar(&server, "server", envOr("TODO_SERVER", "http://localhost:9234"), "Server address")
	flag.StringVar(&token, "token", os.Getenv("TODO_TOKEN"), "Session token, defaults to $TODO_TOKEN")
	flag.BoolVar(&trace, "trace", false, "Print spans to stderr")
	flag.BoolVar(&verbose, "verbose", false, "Log to stderr")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	shutdown, err := initTracer(trace)
	if err != nil {
		log.Fatalf("Couldn't initialize tracer: %s", err)
	}

	defer shutdown()

	logger := zap.NewNop()
	if verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatalf("Couldn't initialize logger: %s", err)
		}
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport), Timeout: 10 * time.Second}

	a := &app{
		client: gateway.NewClient(server, gateway.WithHTTPClient(httpClient), gateway.WithLogger(logger)),
		feed:   feed.NewFeed(server, &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}, logger),
		logger: logger,
		token:  token,
		out:    os.Stdout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, todosync.ErrUnauthorized) || internal.ErrorCodeOf(err) == internal.ErrorCodeUnauthorized {
			log.Fatalf("Not signed in, run signin and export TODO_TOKEN: %s", err)
		}

		log.Fatalf("%s failed: %s", flag.Arg(0), err)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "signup", "signin":
		if len(args) != 2 {
			return fmt.Errorf("expected EMAIL PASSWORD")
		}

		fn := a.client.SignIn
		if cmd == "signup" {
			fn = a.client.SignUp
		}

		session, err := fn(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Fprintf(a.out, "export TODO_TOKEN=%s\n", session.Token)

		return nil
	case "magic-link":
		if len(args) != 1 {
			return fmt.Errorf("expected EMAIL")
		}

		if err := a.client.SendMagicLink(ctx, args[0], ""); err != nil {
			return err
		}

		fmt.Fprintln(a.out, "Check your email for the sign in link.")

		return nil
	case "signout":
		return a.client.SignOut(gateway.WithToken(ctx, a.token))
	case "list":
		return a.list(ctx, args)
	case "add":
		return a.add(ctx, args)
	case "done", "undo":
		if len(args) != 1 {
			return fmt.Errorf("expected ID")
		}

		completed := cmd == "done"

		return a.mutate(ctx, func(s *todosync.Syncer) error {
			return s.Update(ctx, args[0], internal.UpdateParams{IsCompleted: &completed})
		})
	case "edit":
		return a.edit(ctx, args)
	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("expected ID")
		}

		return a.mutate(ctx, func(s *todosync.Syncer) error {
			return s.Delete(ctx, args[0])
		})
	case "search":
		if len(args) == 0 {
			return fmt.Errorf("expected QUERY")
		}

		q := strings.Join(args, " ")

		session, err := a.session(ctx)
		if err != nil {
			return err
		}

		res, err := a.client.Search(internal.WithSession(ctx, session), internal.SearchParams{Query: &q})
		if err != nil {
			return err
		}

		a.print(res.Todos)
		fmt.Fprintf(a.out, "%d found\n", res.Total)

		return nil
	case "watch":
		return a.watch(ctx)
	}

	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) session(ctx context.Context) (internal.Session, error) {
	if a.token == "" {
		return internal.Session{}, todosync.ErrUnauthorized
	}

	return a.client.Session(gateway.WithToken(ctx, a.token))
}

func (a *app) start(ctx context.Context) (*todosync.Syncer, error) {
	session, err := a.session(ctx)
	if err != nil {
		return nil, err
	}

	s := todosync.NewSyncer(a.client, todosync.WithLogger(a.logger))

	if err := s.Start(ctx, session); err != nil {
		return nil, err
	}

	return s, nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	status := fs.String("status", "all", "all, active or completed")
	priority := fs.String("priority", "all", "all, low, medium or high")

	if err := fs.Parse(args); err != nil {
		return err
	}

	statusFilter, err := todosync.ParseStatusFilter(*status)
	if err != nil {
		return err
	}

	priorityFilter, err := todosync.ParsePriorityFilter(*priority)
	if err != nil {
		return err
	}

	s, err := a.start(ctx)
	if err != nil {
		return err
	}
	defer s.Stop()

	todos, err := s.FetchAll(ctx)
	if err != nil {
		return err
	}

	a.print(todosync.Filter(todos, statusFilter, priorityFilter))
	a.summary(todos)

	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	priority := fs.String("priority", "medium", "low, medium or high")
	description := fs.String("description", "", "Description")
	image := fs.String("image", "", "Image file to attach")

	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := internal.ParsePriority(*priority)
	if err != nil {
		return err
	}

	params := internal.CreateParams{
		Task:     strings.Join(fs.Args(), " "),
		Priority: p,
	}

	if *description != "" {
		params.Description = description
	}

	return a.mutate(ctx, func(s *todosync.Syncer) error {
		if *image != "" {
			session, _ := s.Session()

			u, err := a.upload(internal.WithSession(ctx, session), *image)
			if err != nil {
				return err
			}

			params.ImageURL = &u
		}

		return s.Create(ctx, params)
	})
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	task := fs.String("task", "", "New task")
	description := fs.String("description", "", "New description, \"-\" clears it")
	priority := fs.String("priority", "", "low, medium or high")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("expected ID")
	}

	var params internal.UpdateParams

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "task":
			params.Task = task
		case "description":
			if *description == "-" {
				params.Description = internal.NullableString{Set: true}
			} else {
				params.Description = internal.NewNullableString(*description)
			}
		}
	})

	if *priority != "" {
		p, err := internal.ParsePriority(*priority)
		if err != nil {
			return err
		}

		params.Priority = &p
	}

	return a.mutate(ctx, func(s *todosync.Syncer) error {
		return s.Update(ctx, fs.Arg(0), params)
	})
}

// mutate runs fn against a started Syncer and prints the refreshed list.
func (a *app) mutate(ctx context.Context, fn func(*todosync.Syncer) error) error {
	s, err := a.start(ctx)
	if err != nil {
		return err
	}
	defer s.Stop()

	if err := fn(s); err != nil {
		return err
	}

	todos, loaded := s.Todos()
	if !loaded {
		if todos, err = s.FetchAll(ctx); err != nil {
			return err
		}
	}

	a.print(todos)
	a.summary(todos)

	return nil
}

func (a *app) upload(ctx context.Context, name string) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return a.client.Upload(ctx, filepath.Base(name), contentType, f)
}

func (a *app) watch(ctx context.Context) error {
	session, err := a.session(ctx)
	if err != nil {
		return err
	}

	s := todosync.NewSyncer(a.client, todosync.WithLogger(a.logger), todosync.WithFeed(a.feed))

	snapshots := make(chan []internal.Todo, 1)

	s.OnChange(func(todos []internal.Todo) {
		select {
		case <-snapshots:
		default:
		}

		snapshots <- todos
	})

	if err := s.Start(ctx, session); err != nil {
		return err
	}
	defer s.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case todos := <-snapshots:
			if _, ok := s.Session(); !ok {
				return todosync.ErrUnauthorized
			}

			fmt.Fprintf(a.out, "\n%s\n", time.Now().Format(time.Kitchen))
			a.print(todos)
			a.summary(todos)
		}
	}
}

func (a *app) print(todos []internal.Todo) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tDONE\tPRIORITY\tTASK\tCREATED")

	for _, todo := range todos {
		done := " "
		if todo.IsCompleted {
			done = "x"
		}

		fmt.Fprintf(w, "%s\t[%s]\t%s\t%s\t%s\n", todo.ID, done, todo.Priority, todo.Task, todo.CreatedAt.Local().Format(time.DateTime))
	}

	_ = w.Flush()
}

func (a *app) summary(todos []internal.Todo) {
	c := todosync.Count(todos)

	fmt.Fprintf(a.out, "%d total, %d active, %d completed (%d%%), %d high priority active\n",
		c.Total, c.Active, c.Completed, c.CompletionPercentage(), c.HighPriorityActive)
}

// initTracer prints spans to stderr when enabled and exports them to Jaeger when JAEGER_ENDPOINT is set.
func initTracer(stdout bool) (func(), error) {
	var opts []sdktrace.TracerProviderOption

	if stdout {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdouttrace.New: %w", err)
		}

		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	if endpoint := os.Getenv("JAEGER_ENDPOINT"); endpoint != "" {
		exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
		if err != nil {
			return nil, fmt.Errorf("jaeger.New: %w", err)
		}

		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	if len(opts) == 0 {
		return func() {}, nil
	}

	tp := sdktrace.NewTracerProvider(append(opts, sdktrace.WithSampler(sdktrace.AlwaysSample()))...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = tp.Shutdown(ctx)
	}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
