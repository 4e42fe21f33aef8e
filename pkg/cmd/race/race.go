package race

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/bot"
	"github.com/mpapenbr/botrace/pkg/bot/loader"
	"github.com/mpapenbr/botrace/pkg/config"
	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/physics"
	natsPublish "github.com/mpapenbr/botrace/pkg/publish/nats"
	"github.com/mpapenbr/botrace/pkg/race"
	"github.com/mpapenbr/botrace/pkg/track"
	"github.com/mpapenbr/botrace/pkg/utils"
)

var (
	appConfig = config.DefaultConfig()
	watchBots bool
)

func NewRaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "race bot1 bot2",
		Short: "runs a race between two bots",
		Long: `Runs a race between two bots and prints the result.

Bots are given as
  simple, fuel, idle       builtin bots
  rego:path/to/bot.rego    Rego policy
  exec:program [args]      external program`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRace(cmd.Context(), args[0], args[1])
		},
	}
	cmd.Flags().IntVar(&appConfig.TotalLaps,
		"laps", appConfig.TotalLaps, "laps to complete")
	cmd.Flags().Int64Var(&appConfig.Seed,
		"seed", 0, "track seed (0 picks a random seed)")
	cmd.Flags().StringVar(&appConfig.Difficulty,
		"difficulty", appConfig.Difficulty, "obstacle density (none, easy, medium, hard)")
	cmd.Flags().IntVar(&appConfig.FuelStations,
		"fuel-stations", appConfig.FuelStations, "number of fuel stations")
	cmd.Flags().StringVar(&appConfig.TrackFile,
		"track", "", "track file (yaml or json), overrides the generator settings")
	cmd.Flags().Float64Var(&appConfig.SpeedFactor,
		"speed", appConfig.SpeedFactor, "simulation speed, 1 is real time, <= 0 runs unthrottled")
	cmd.Flags().IntVar(&appConfig.MaxTicks,
		"max-ticks", appConfig.MaxTicks, "stop the race after this number of ticks (0: no limit)")
	cmd.Flags().IntVar(&appConfig.LookaheadSteps,
		"lookahead", appConfig.LookaheadSteps, "number of segments visible to bots")
	cmd.Flags().BoolVar(&appConfig.PrintProgress,
		"progress", false, "log the standings once per second of race time")
	cmd.Flags().StringVar(&config.BotTimeout,
		"bot-timeout", "1ms", "decision budget per bot and tick")
	cmd.Flags().BoolVar(&watchBots,
		"watch", false, "reload rego bots when their file changes")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url", "", "publish the race to this NATS server")
	cmd.Flags().IntVar(&config.PublishEvery,
		"publish-every", natsPublish.DefaultEvery, "publish every n-th tick to NATS")
	return cmd
}

func loadTrack() (*model.Track, error) {
	if appConfig.TrackFile != "" {
		return track.Load(appConfig.TrackFile)
	}
	difficulty, err := track.ParseDifficulty(appConfig.Difficulty)
	if err != nil {
		return nil, err
	}
	if appConfig.Seed == 0 {
		appConfig.Seed = time.Now().UnixNano() % 1_000_000
	}
	return track.NewGenerator(
		track.WithDifficulty(difficulty),
		track.WithFuelStations(appConfig.FuelStations),
	).Generate(appConfig.Seed)
}

//nolint:funlen,cyclop // command setup
func runRace(ctx context.Context, bot1, bot2 string) error {
	logger := log.GetFromContext(ctx).Named("race")
	if config.EnableTelemetry {
		if telemetry, err := config.SetupTelemetry(ctx); err == nil {
			defer telemetry.Shutdown()
		} else {
			logger.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		if err := otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
			logger.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	tr, err := loadTrack()
	if err != nil {
		return err
	}
	logger.Info("track ready",
		log.String("track", tr.Name),
		log.Float64("lapDistance", tr.LapDistance),
		log.Int("fuelStations", len(tr.FuelStations)),
		log.Int("obstacles", len(tr.Obstacles)))

	timeout, err := time.ParseDuration(config.BotTimeout)
	if err != nil {
		return fmt.Errorf("invalid bot timeout: %w", err)
	}
	ld := loader.New(loader.WithWatch(watchBots))
	hosts := make([]*bot.Host, 0, 2)
	defer func() {
		for _, h := range hosts {
			if err := bot.Close(h.Bot()); err != nil {
				logger.Warn("could not close bot", log.ErrorField(err))
			}
		}
	}()
	for _, spec := range []string{bot1, bot2} {
		h, err := ld.ResolveHost(ctx, spec, bot.WithTimeout(timeout))
		if err != nil {
			return fmt.Errorf("bot %s: %w", spec, err)
		}
		hosts = append(hosts, h)
	}

	rc, err := race.New(tr, hosts[0], hosts[1],
		race.WithID(utils.NewRaceID()),
		race.WithTotalLaps(appConfig.TotalLaps),
		race.WithSpeed(appConfig.SpeedFactor),
		race.WithMaxTicks(int64(appConfig.MaxTicks)),
		race.WithLookahead(appConfig.LookaheadSteps),
		race.WithLogger(logger))
	if err != nil {
		return err
	}
	defer rc.Close()

	var pub *natsPublish.Publisher
	if config.NatsURL != "" {
		if pub, err = setupPublisher(ctx); err != nil {
			return err
		}
		defer pub.Close()
		pub.Track(ctx, rc)
	}
	if appConfig.PrintProgress {
		go printProgress(logger, rc, rc.Subscribe())
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if err := rc.Run(ctx); err != nil {
		return err
	}
	// closing the race ends the subscriptions, the publisher sends what is left
	rc.Close()
	if pub != nil {
		pub.Wait()
	}

	res, ok := rc.Result()
	if !ok {
		s := rc.State()
		logger.Warn("race not finished",
			log.Int64("ticks", s.Race.CurrentTick),
			log.Int("lap1", s.Player1.Lap),
			log.Int("lap2", s.Player2.Lap))
		return nil
	}
	fmt.Printf("Winner: %s (%s)\nTime: %s (%d ticks)\nFuel used: %dL\nFinal speed: %d km/h\n",
		res.WinnerName, res.Winner, res.Time, res.Ticks, res.FuelUsed, res.FinalSpeed)
	for _, p := range model.Players {
		stats := rc.BotStats(p)
		logger.Info("bot stats",
			log.String("bot", rc.BotName(p)),
			log.Uint64("decisions", stats.Decisions),
			log.Uint64("timeouts", stats.Timeouts),
			log.Uint64("errors", stats.Errors),
			log.Uint64("skipped", stats.Skipped))
	}
	return nil
}

func setupPublisher(ctx context.Context) (*natsPublish.Publisher, error) {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		timeout = 15 * time.Second
	}
	if addr := utils.ExtractFromNatsURL(config.NatsURL); addr != "" {
		if err := utils.WaitForTCP(ctx, addr, timeout); err != nil {
			return nil, err
		}
	}
	nc, err := natsPublish.Connect(config.NatsURL, timeout)
	if err != nil {
		return nil, err
	}
	return natsPublish.NewPublisher(nc,
		natsPublish.WithEvery(config.PublishEvery),
		natsPublish.WithBucket(""))
}

// printProgress logs the standings once per second of race time
func printProgress(logger *log.Logger, rc *race.Race, ch <-chan *model.RaceState) {
	for s := range ch {
		if s.Race.CurrentTick%physics.TickRate != 0 && !s.Finished() {
			continue
		}
		leader := model.Player1
		if s.Player2.RacePosition == 1 {
			leader = model.Player2
		}
		logger.Info("standings",
			log.String("time", race.FormatTime(float64(s.Race.CurrentTick)/physics.TickRate)),
			log.String("leader", rc.BotName(leader)),
			log.Int("lap1", s.Player1.Lap),
			log.Float64("speed1", s.Player1.Speed),
			log.Float64("fuel1", s.Player1.Fuel),
			log.Int("lap2", s.Player2.Lap),
			log.Float64("speed2", s.Player2.Speed),
			log.Float64("fuel2", s.Player2.Fuel))
	}
}
