package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Telegram delivery channel
	TelegramBotToken string

	// AWS services (email/SMS channels, delivery event feed)
	AWSRegion      string
	SESFromEmail   string
	EventsQueueURL string

	// Scheduler knobs
	PollIntervalSeconds int // coarse poll cadence
	PollGraceSeconds    int // forward-looking due window
	TimerHorizonSeconds int // precise timers armed within this many seconds
	PollBatchSize       int // max records fetched per tick
	StoreTimeoutSeconds int // per-call timeout against the store

	// Periodic generators
	MorningBriefTime       string // local wall-clock HH:MM in BriefingTimezone
	EveningSummaryTime     string
	BriefingTimezone       string
	ResurfaceIntervalHours int
	WeatherAPIKey          string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "secondmind",
		DBPassword: "",
		DBName:     "secondmind",
		DBSSLMode:  "disable",

		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		AWSRegion:    "us-east-1",
		SESFromEmail: "noreply@secondmind.local",

		PollIntervalSeconds: 15,
		PollGraceSeconds:    2,
		TimerHorizonSeconds: 120,
		PollBatchSize:       200,
		StoreTimeoutSeconds: 10,

		MorningBriefTime:       "08:00",
		EveningSummaryTime:     "23:00",
		BriefingTimezone:       "Asia/Kolkata",
		ResurfaceIntervalHours: 6,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Accept both var names to avoid env mismatches
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.TelegramBotToken = token
	} else if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		cfg.TelegramBotToken = token
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	if url := os.Getenv("EVENTS_QUEUE_URL"); url != "" {
		cfg.EventsQueueURL = url
	}

	// Scheduler knobs
	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL_SECONDS: %w", err)
		}
		cfg.PollIntervalSeconds = n
	}

	if v := os.Getenv("POLL_GRACE_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_GRACE_SECONDS: %w", err)
		}
		cfg.PollGraceSeconds = n
	}

	if v := os.Getenv("TIMER_HORIZON_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMER_HORIZON_SECONDS: %w", err)
		}
		cfg.TimerHorizonSeconds = n
	}

	if v := os.Getenv("POLL_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_BATCH_SIZE: %w", err)
		}
		cfg.PollBatchSize = n
	}

	if v := os.Getenv("STORE_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid STORE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.StoreTimeoutSeconds = n
	}

	// Generator config
	if v := os.Getenv("MORNING_BRIEF_TIME"); v != "" {
		cfg.MorningBriefTime = v
	}

	if v := os.Getenv("EVENING_SUMMARY_TIME"); v != "" {
		cfg.EveningSummaryTime = v
	}

	if v := os.Getenv("BRIEFING_TIMEZONE"); v != "" {
		cfg.BriefingTimezone = v
	}

	if v := os.Getenv("RESURFACE_INTERVAL_HOURS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RESURFACE_INTERVAL_HOURS: %w", err)
		}
		cfg.ResurfaceIntervalHours = n
	}

	if key := os.Getenv("WEATHER_API_KEY"); key != "" {
		cfg.WeatherAPIKey = key
	}

	return cfg, nil
}
