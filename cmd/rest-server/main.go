package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/didip/tollbooth/v6"
	"github.com/didip/tollbooth/v6/limiter"
	esv7 "github.com/elastic/go-elasticsearch/v7"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	rv8 "github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riandyrn/otelchi"
	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/cmd/internal"
	internaldomain "github.com/sanLimbu/todo-sync/internal"
	"github.com/sanLimbu/todo-sync/internal/changefeed"
	"github.com/sanLimbu/todo-sync/internal/elasticsearch"
	"github.com/sanLimbu/todo-sync/internal/envvar"
	"github.com/sanLimbu/todo-sync/internal/kafka"
	"github.com/sanLimbu/todo-sync/internal/memcached"
	"github.com/sanLimbu/todo-sync/internal/nats"
	"github.com/sanLimbu/todo-sync/internal/postgresql"
	"github.com/sanLimbu/todo-sync/internal/rabbitmq"
	"github.com/sanLimbu/todo-sync/internal/redis"
	"github.com/sanLimbu/todo-sync/internal/rest"
	"github.com/sanLimbu/todo-sync/internal/service"
)

const serviceName = "todo-sync-rest-server"

func main() {
	var env, address string

	flag.StringVar(&env, "env", "", "Environment Variables filename")
	flag.StringVar(&address, "address", ":9234", "HTTP Server Address")
	flag.Parse()

	errC, err := run(env, address)
	if err != nil {
		log.Fatalf("Couldn't run: %s", err)
	}

	if err := <-errC; err != nil {
		log.Fatalf("Error while running: %s", err)
	}
}

func run(env, address string) (<-chan error, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, internaldomain.WrapErrorf(err, internaldomain.ErrorCodeUnknown, "zap.NewProduction")
	}

	if err := envvar.Load(env); err != nil {
		return nil, internaldomain.WrapErrorf(err, internaldomain.ErrorCodeUnknown, "envvar.Load")
	}

	vault, err := internal.NewVaultProvider()
	if err != nil {
		return nil, internaldomain.WrapErrorf(err, internaldomain.ErrorCodeUnknown, "internal.NewVaultProvider")
	}

	conf := envvar.New(vault)

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	pool, err := internal.NewPostgreSQL(ctx, conf)
	if err != nil {
		stop()
		return nil, internaldomain.WrapErrorf(err, internaldomain.ErrorCodeUnknown, "internal.NewPostgreSQL")
	}

	es, err := internal.NewElasticSearch(conf)
	if err != nil {
		stop()
		return nil, internaldomain.WrapErrorf(err, internaldomain.ErrorCodeUnknown, "internal.NewElasticSearch")
	}

	mc, err := internal.NewMemcached(conf)
	if err != nil {
		stop()
		return nil, internaldomain.WrapErrorf(err, internaldomain.ErrorCodeUnknown, "internal.NewMemcached")
	}

	rdb, err := internal.NewRedis(ctx, conf)
	if err != nil {
		stop()
		return nil, internaldomain.WrapErrorf(err, internaldomain.ErrorCodeUnknown, "internal.NewRedis")
	}

	nc, err := internal.NewNATS(conf)
	if err != nil {
		stop()
		return nil, internaldomain.WrapErrorf(err, internaldomain.ErrorCodeUnknown, "internal.NewNATS")
	}

	msgBroker, closeBroker, err := newMessageBroker(conf)
	if err != nil {
		stop()
		return nil, internaldomain.WrapErrorf(err, internaldomain.ErrorCodeUnknown, "newMessageBroker")
	}

	if _, err := internal.NewOTExporter(conf, serviceName); err != nil {
		stop()
		return nil, internaldomain.WrapErrorf(err, internaldomain.ErrorCodeUnknown, "internal.NewOTExporter")
	}

	secret, err := conf.Get("JWT_SECRET")
	if err != nil || secret == "" {
		stop()
		return nil, internaldomain.NewErrorf(internaldomain.ErrorCodeInvalidArgument, "JWT_SECRET is required")
	}

	sessionTTL := 24 * time.Hour
	if val, _ := conf.Get("SESSION_TTL"); val != "" {
		if sessionTTL, err = time.ParseDuration(val); err != nil {
			stop()
			return nil, internaldomain.WrapErrorf(err, internaldomain.ErrorCodeInvalidArgument, "SESSION_TTL")
		}
	}

	publicURL, _ := conf.GetOr("PUBLIC_URL", "http://localhost"+address)

	logging := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Info(r.Method,
				zap.Time("time", time.Now()),
				zap.String("url", r.URL.String()),
			)

			h.ServeHTTP(w, r)
		})
	}

	hub := changefeed.NewHub(logger, 16)

	srv, memcachedTodo, err := newServer(ctx, serverConfig{
		Address:       address,
		DB:            pool,
		ElasticSearch: es,
		Memcached:     mc,
		Redis:         rdb,
		NATS:          nc,
		MessageBroker: msgBroker,
		Hub:           hub,
		Metrics:       promhttp.Handler(),
		Middlewares:   []func(next http.Handler) http.Handler{logging},
		Logger:        logger,
		JWTSecret:     secret,
		SessionTTL:    sessionTTL,
		PublicURL:     strings.TrimSuffix(publicURL, "/"),
	})
	if err != nil {
		stop()
		return nil, internaldomain.WrapErrorf(err, internaldomain.ErrorCodeUnknown, "newServer")
	}

	errC := make(chan error, 1)

	go func() {
		listener := postgresql.NewChangeListener(pool, logger)

		for {
			err := hub.Run(ctx, listener, memcachedTodo.Evict)
			if ctx.Err() != nil {
				return
			}

			logger.Warn("Change listener stopped, restarting", zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()

	go func() {
		<-ctx.Done()

		logger.Info("Shutdown signal received")

		ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		defer func() {
			_ = logger.Sync()

			hub.Close()
			closeBroker()
			nc.Close()
			_ = rdb.Close()
			pool.Close()
			stop()
			cancel()
			close(errC)
		}()

		srv.SetKeepAlivesEnabled(false)

		if err := srv.Shutdown(ctxTimeout); err != nil {
			errC <- err
		}

		logger.Info("Shutdown completed")
	}()

	go func() {
		logger.Info("Listening and serving", zap.String("address", address))

		// "ListenAndServe always returns a non-nil error. After Shutdown or Close, the returned error is
		// ErrServerClosed."
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	return errC, nil
}

type serverConfig struct {
	Address       string
	DB            *pgxpool.Pool
	ElasticSearch *esv7.Client
	Memcached     *memcache.Client
	Redis         *rv8.Client
	NATS          *internal.NATS
	MessageBroker service.TodoMessageBrokerRepository
	Hub           *changefeed.Hub
	Metrics       http.Handler
	Middlewares   []func(next http.Handler) http.Handler
	Logger        *zap.Logger
	JWTSecret     string
	SessionTTL    time.Duration
	PublicURL     string
}

func newServer(ctx context.Context, conf serverConfig) (*http.Server, *memcached.Todo, error) {
	router := chi.NewRouter()
	router.Use(render.SetContentType(render.ContentTypeJSON))
	router.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(router)))

	for _, mw := range conf.Middlewares {
		router.Use(mw)
	}

	//-

	repo := memcached.NewTodo(conf.Memcached, postgresql.NewTodo(conf.DB), conf.Logger)
	search := elasticsearch.NewTodo(conf.ElasticSearch)

	svc := service.NewTodo(conf.Logger, repo, search, conf.MessageBroker)

	//-

	auth, err := service.NewAuth(conf.Logger,
		postgresql.NewUser(conf.DB),
		redis.NewAuthCode(conf.Redis),
		service.NewTokenManager(conf.JWTSecret, conf.SessionTTL),
		service.NewLogMailer(conf.Logger),
		conf.PublicURL+"/auth/callback")
	if err != nil {
		return nil, nil, fmt.Errorf("service.NewAuth: %w", err)
	}

	authHandler := rest.NewAuthHandler(auth, strings.HasPrefix(conf.PublicURL, "https://"))
	router.Use(authHandler.Authenticate)

	//-

	store, err := nats.NewAttachment(ctx, conf.NATS.JetStream, nats.BucketName)
	if err != nil {
		return nil, nil, fmt.Errorf("nats.NewAttachment: %w", err)
	}

	attachments, err := service.NewAttachment(store, conf.PublicURL)
	if err != nil {
		return nil, nil, fmt.Errorf("service.NewAttachment: %w", err)
	}

	//-

	rest.RegisterOpenAPI(router)
	rest.NewChangesHandler(conf.Hub, conf.Logger).Register(router)
	rest.NewTodoHandler(svc).Register(router)
	authHandler.Register(router)
	rest.NewAttachmentHandler(attachments).Register(router)

	router.Handle("/metrics", conf.Metrics)

	lmt := tollbooth.NewLimiter(20, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Second})

	lmtmw := tollbooth.LimitHandler(lmt, router)

	return &http.Server{
		Handler:           lmtmw,
		Addr:              conf.Address,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, repo, nil
}

// newMessageBroker selects the publisher of todo events, MESSAGE_BROKER is "kafka" (default) or "rabbitmq".
func newMessageBroker(conf *envvar.Configuration) (service.TodoMessageBrokerRepository, func(), error) {
	broker, _ := conf.GetOr("MESSAGE_BROKER", "kafka")

	switch broker {
	case "kafka":
		producer, err := internal.NewKafkaProducer(conf)
		if err != nil {
			return nil, nil, fmt.Errorf("internal.NewKafkaProducer: %w", err)
		}

		return kafka.NewTodo(producer.Producer, producer.Topic), func() {
			producer.Producer.Flush(5000)
			producer.Producer.Close()
		}, nil
	case "rabbitmq":
		rmq, err := internal.NewRabbitMQ(conf)
		if err != nil {
			return nil, nil, fmt.Errorf("internal.NewRabbitMQ: %w", err)
		}

		return rabbitmq.NewTodo(rmq.Channel), rmq.Close, nil
	}

	return nil, nil, internaldomain.NewErrorf(internaldomain.ErrorCodeInvalidArgument, "unknown message broker: %s", broker)
}
