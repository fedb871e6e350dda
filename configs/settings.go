package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
)

type Settings struct {
	GameServicePort   string
	SocketServicePort string
	RateLimit         int
	JWTSecret         string

	StoreBackend    string // memory, postgres or mongo
	PostgresURL     string
	MongoURI        string
	StoreOptimistic bool
	StoreRetries    int

	BusTransport string // local or nats
	BusChannel   string
	BusHeartbeat time.Duration
	BusAckDelay  time.Duration
	NatsURL      string
	NatsToken    string

	WinnerPolicy string // manual or auto
	MinDrawn     int
	MaxNumber    int
	CardCount    int
	CardSeed     uint64
	CardsFile    string

	SessionTTL      time.Duration
	CallInterval    time.Duration
	JanitorInterval time.Duration
	RobotCount      int
	RobotInterval   time.Duration

	TelegramToken   string
	TelegramChatIDs []int64
}

// Load reads the settings from the environment. Call LoadEnv first to pick up .env.
func Load() (Settings, error) {
	var s Settings
	p := &parser{}

	s.GameServicePort = getEnv("GAME_SERVICE_PORT", "8003")
	s.SocketServicePort = getEnv("SOCKET_SERVICE_PORT", "8004")
	s.RateLimit = p.getInt("RATE_LIMIT", 100)
	s.JWTSecret = os.Getenv("JWT_SECRET_KEY")

	s.StoreBackend = getEnv("STORE_BACKEND", "memory")
	s.PostgresURL = os.Getenv("POSTGRES_URL")
	s.MongoURI = os.Getenv("MONGODB_URI")
	s.StoreOptimistic = p.getBool("STORE_OPTIMISTIC", false)
	s.StoreRetries = p.getInt("STORE_RETRIES", 3)

	s.BusTransport = getEnv("BUS_TRANSPORT", "local")
	s.BusChannel = getEnv("BUS_CHANNEL", "bingo-sync")
	s.BusHeartbeat = p.getDuration("BUS_HEARTBEAT", 5*time.Second)
	s.BusAckDelay = p.getDuration("BUS_ACK_DELAY", 100*time.Millisecond)
	s.NatsURL = getEnv("NATS_URL", "nats://localhost:4224")
	s.NatsToken = os.Getenv("NATS_TOKEN")

	s.WinnerPolicy = getEnv("WINNER_POLICY", "manual")
	s.MinDrawn = p.getInt("MIN_DRAWN_FOR_CHECK", 4)
	s.MaxNumber = p.getInt("MAX_NUMBER", 75)
	s.CardCount = p.getInt("CARD_COUNT", 100)
	s.CardSeed = uint64(p.getInt("CARD_SEED", 2024))
	s.CardsFile = os.Getenv("CARDS_FILE")

	s.SessionTTL = p.getDuration("SESSION_TTL", 12*time.Hour)
	s.CallInterval = p.getDuration("CALL_INTERVAL", 5*time.Second)
	s.JanitorInterval = p.getDuration("JANITOR_INTERVAL", time.Minute)
	s.RobotCount = p.getInt("ROBOT_COUNT", 15)
	s.RobotInterval = p.getDuration("ROBOT_INTERVAL", 5*time.Second)

	s.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	for _, key := range []string{"TELEGRAM_CHAT_ID_1", "TELEGRAM_CHAT_ID_2", "TELEGRAM_CHAT_ID_3"} {
		if id := p.getInt64(key, 0); id != 0 {
			s.TelegramChatIDs = append(s.TelegramChatIDs, id)
		}
	}

	if p.err != nil {
		return s, p.err
	}
	return s, s.validate()
}

func (s Settings) validate() error {
	switch s.StoreBackend {
	case "memory":
	case "postgres":
		if s.PostgresURL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres needs POSTGRES_URL")
		}
	case "mongo":
		if s.MongoURI == "" {
			return fmt.Errorf("STORE_BACKEND=mongo needs MONGODB_URI")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", s.StoreBackend)
	}

	switch s.BusTransport {
	case "local", "nats":
	default:
		return fmt.Errorf("unknown BUS_TRANSPORT %q", s.BusTransport)
	}

	switch s.WinnerPolicy {
	case "manual", "auto":
	default:
		return fmt.Errorf("unknown WINNER_POLICY %q", s.WinnerPolicy)
	}

	if !models.ValidMaxNumber(s.MaxNumber) {
		return fmt.Errorf("MAX_NUMBER=%d not in %d..%d", s.MaxNumber, models.DefaultMaxNumber, models.MaxNumberLimit)
	}
	return nil
}

// RequireJWT fails for services that sign their secured routes when JWT_SECRET_KEY
// is unset.
func (s Settings) RequireJWT() error {
	if s.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	return nil
}

// RequireSharedStore fails for services that work on the game service's state
// when the store lives in process memory.
func (s Settings) RequireSharedStore() error {
	if s.StoreBackend == "memory" {
		return fmt.Errorf("STORE_BACKEND=memory is not shared, use postgres or mongo")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser keeps the first bad value so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
}

func (p *parser) getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return b
}

func (p *parser) getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}
