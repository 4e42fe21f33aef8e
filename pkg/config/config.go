package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	LogLevel          string // sets the log level (zap log level values)
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules, empty means no filter
	WaitForServices   string // duration to wait for other services to be ready
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry ("stdout" prints to console)
	ProfilingPort     int    // port for profiling
	NatsURL           string // URL of the NATS server, empty disables publishing
	NatsKVBucket      string // JetStream KV bucket for latest race states, empty disables KV
	PublishEvery      int    // publish every n-th tick to NATS
	ServerAddr        string // listen addr for http server
	TLSCertFile       string // path to TLS certificate
	TLSKeyFile        string // path to TLS key
	AdminToken        string // token required for race management endpoints
	StaleDuration     string // finished races are removed after this duration
	BotTimeout        string // decision budget per bot and tick
	TrackCacheTTL     string // how long generated tracks are kept in cache
)

// Config holds the race related values used by the commands
type Config struct {
	TotalLaps      int     // laps to complete
	Seed           int64   // track seed, 0 means random
	Difficulty     string  // none, easy, medium, hard
	FuelStations   int     // number of fuel stations on generated tracks
	TrackFile      string  // track file to load instead of generating one
	SpeedFactor    float64 // tick rate multiplier, <= 0 runs unthrottled
	MaxTicks       int     // safety limit for a race, 0 means unlimited
	LookaheadSteps int     // number of segments visible to bots
	PrintProgress  bool    // if true, standings are logged once per second of race time
}

// DefaultConfig returns the settings of a standard race
func DefaultConfig() Config {
	return Config{
		TotalLaps:      5,
		Difficulty:     "medium",
		FuelStations:   1,
		SpeedFactor:    0,
		MaxTicks:       60 * 60 * 30,
		LookaheadSteps: 20,
	}
}
