package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // only served on localhost
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"connectrpc.com/grpchealth"
	"connectrpc.com/otelconnect"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/bot/loader"
	"github.com/mpapenbr/botrace/pkg/config"
	"github.com/mpapenbr/botrace/pkg/endpoints"
	natsPublish "github.com/mpapenbr/botrace/pkg/publish/nats"
	"github.com/mpapenbr/botrace/pkg/race"
	"github.com/mpapenbr/botrace/pkg/track"
	"github.com/mpapenbr/botrace/pkg/utils"
)

var (
	allowExec bool
	maxTicks  int64
)

func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "starts the race server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&config.ServerAddr,
		"addr",
		"a",
		"localhost:8080",
		"server listen address")
	cmd.Flags().StringVar(&config.TLSCertFile,
		"tls-cert",
		"",
		"file containing the TLS certificate")
	cmd.Flags().StringVar(&config.TLSKeyFile,
		"tls-key",
		"",
		"file containing the TLS key")
	cmd.Flags().StringVar(&config.AdminToken,
		"admin-token",
		"",
		"token required to create, pause and delete races")
	cmd.Flags().StringVar(&config.StaleDuration,
		"stale-duration",
		"10m",
		"finished races are removed after this duration")
	cmd.Flags().StringVar(&config.BotTimeout,
		"bot-timeout",
		"1ms",
		"decision budget per bot and tick")
	cmd.Flags().StringVar(&config.TrackCacheTTL,
		"track-cache-ttl",
		"1h",
		"how long generated tracks are cached")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"URL of the NATS server, races are published there if set")
	cmd.Flags().StringVar(&config.NatsKVBucket,
		"nats-kv-bucket",
		natsPublish.DefaultBucket,
		"JetStream KV bucket for the latest race states (empty disables)")
	cmd.Flags().IntVar(&config.PublishEvery,
		"publish-every",
		natsPublish.DefaultEvery,
		"publish every n-th tick to NATS")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	cmd.Flags().BoolVar(&allowExec,
		"allow-exec",
		false,
		"allow bots running as external programs (exec:...)")
	cmd.Flags().Int64Var(&maxTicks,
		"max-ticks",
		60*60*30,
		"races are stopped after this number of ticks (0: no limit)")
	return cmd
}

func parseDuration(v string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn("Invalid duration value, using default",
			log.String("value", v),
			log.Duration("default", defaultVal))
		return defaultVal
	}
	return d
}

//nolint:funlen,cyclop // server setup
func startServer(ctx context.Context) error {
	logger := log.GetFromContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // profiling only
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		if telemetry, err := config.SetupTelemetry(ctx); err == nil {
			defer telemetry.Shutdown()
		} else {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		err := otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	waitForRequiredServices(ctx)

	registry := utils.NewRaceRegistry(
		utils.WithStaleDuration(parseDuration(config.StaleDuration, utils.DefaultStaleDuration)))
	go registry.Janitor(ctx, time.Minute)
	defer registry.Clear()

	opts := []endpoints.Option{
		endpoints.WithRegistry(registry),
		endpoints.WithLoader(loader.New(loader.WithAllowExec(allowExec))),
		endpoints.WithTrackCache(track.NewCache(parseDuration(config.TrackCacheTTL, time.Hour))),
		endpoints.WithAdminToken(config.AdminToken),
		endpoints.WithBotTimeout(parseDuration(config.BotTimeout, time.Millisecond)),
		endpoints.WithMaxTicks(maxTicks),
		endpoints.WithBaseContext(ctx),
		endpoints.WithLogger(logger.Named("api")),
	}
	if config.NatsURL != "" {
		nc, err := natsPublish.Connect(config.NatsURL,
			parseDuration(config.WaitForServices, 15*time.Second))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		pub, err := natsPublish.NewPublisher(nc,
			natsPublish.WithBucket(config.NatsKVBucket),
			natsPublish.WithEvery(config.PublishEvery),
			natsPublish.WithLogger(logger.Named("nats")))
		if err != nil {
			nc.Close()
			return err
		}
		defer pub.Close()
		opts = append(opts, endpoints.WithTracker(trackerFunc(pub.Track)))
	}

	mux := http.NewServeMux()
	otelInterceptor, err := otelconnect.NewInterceptor()
	if err != nil {
		return err
	}
	checker := endpoints.RegisterHealth(mux, otelInterceptor)
	endpoints.NewServer(opts...).Register(mux)

	//nolint:gosec // timeouts are not set because of the websocket streams
	server := &http.Server{
		Addr:    config.ServerAddr,
		Handler: h2c.NewHandler(newCORS().Handler(mux), &http2.Server{}),
	}
	if config.TLSCertFile != "" && config.TLSKeyFile != "" {
		server.TLSConfig = newTLSConfig(ctx, config.TLSCertFile, config.TLSKeyFile)
		if server.TLSConfig == nil {
			return errors.New("could not load TLS certificate")
		}
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server",
			log.String("addr", config.ServerAddr),
			log.Bool("tls", server.TLSConfig != nil))
		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()
	setupGoRoutinesDump()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case v := <-sigChan:
		log.Debug("Got signal ", log.Any("signal", v))
	case err := <-errChan:
		log.Error("server could not be started", log.ErrorField(err))
		return err
	}

	checker.SetStatus(endpoints.ServiceName, grpchealth.StatusNotServing)
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", log.ErrorField(err))
	}
	log.Info("Server terminated")
	return nil
}

type trackerFunc func(ctx context.Context, src natsPublish.Source)

func (f trackerFunc) Track(ctx context.Context, r *race.Race) {
	f(ctx, r)
}

func waitForRequiredServices(ctx context.Context) {
	addr := utils.ExtractFromNatsURL(config.NatsURL)
	if addr == "" {
		return
	}
	timeout := parseDuration(config.WaitForServices, 60*time.Second)
	log.Debug("Waiting for connection checks to return")
	if err := utils.WaitForTCP(ctx, addr, timeout); err != nil {
		log.Fatal("required services not ready", log.ErrorField(err))
	}
	log.Debug("Required services are available")
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

func newCORS() *cors.Cors {
	// browser clients are served from other origins
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			// Content-Type is in the default safelist.
			"Accept",
			"Accept-Encoding",
			"Accept-Post",
			"Connect-Accept-Encoding",
			"Connect-Content-Encoding",
			"Content-Encoding",
			"Grpc-Accept-Encoding",
			"Grpc-Encoding",
			"Grpc-Message",
			"Grpc-Status",
			"Grpc-Status-Details-Bin",
		},
		MaxAge: int(2 * time.Hour / time.Second),
	})
}
