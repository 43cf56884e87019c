package main

import (
	"time"

	"github.com/spf13/viper"
)

// Config carries every tunable of the simulation server. Values come from
// defaults, an optional firedrill.yaml next to the binary, and FIREDRILL_*
// environment variables, in that order of precedence.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   string

	LoopInterval    time.Duration
	MaxStepReal     time.Duration
	ReceiveTimeout  time.Duration
	WriteWait       time.Duration
	TimeMultiplier  float64
	StartSimTimeSec int64

	CommandRateLimit  int
	CommandRateWindow time.Duration
	IdempotencyTTL    time.Duration
	IdempotencyMax    int

	LessonTimeLimitSec int64

	TranscribeCommand string
}

func setConfigDefaults() {
	viper.SetDefault("listenAddr", ":8080")
	viper.SetDefault("dbPath", "firedrill.db")
	viper.SetDefault("logLevel", "info")

	viper.SetDefault("loopIntervalSec", 1.0)
	viper.SetDefault("maxStepRealSec", 4.0)
	viper.SetDefault("receiveTimeoutSec", 1.0)
	viper.SetDefault("writeWaitSec", 10.0)
	viper.SetDefault("timeMultiplier", 1.0)
	viper.SetDefault("startSimTimeSec", defaultStartSimTime)

	viper.SetDefault("commandRateLimit", 30)
	viper.SetDefault("commandRateWindowSec", 1.0)
	viper.SetDefault("idempotencyTTLSec", 900)
	viper.SetDefault("idempotencyMaxEntries", 20000)

	viper.SetDefault("lessonTimeLimitSec", defaultLessonTimeLimit)

	viper.SetDefault("transcribeCommand", "")
}

// loadConfig reads defaults, the optional config file, and environment
// overrides into a Config.
func loadConfig() Config {
	setConfigDefaults()

	viper.SetConfigName("firedrill")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("FIREDRILL")
	viper.AutomaticEnv()
	// A missing config file is fine, env and defaults cover everything.
	_ = viper.ReadInConfig()

	seconds := func(key string) time.Duration {
		return time.Duration(viper.GetFloat64(key) * float64(time.Second))
	}

	return Config{
		ListenAddr: viper.GetString("listenAddr"),
		DBPath:     viper.GetString("dbPath"),
		LogLevel:   viper.GetString("logLevel"),

		LoopInterval:    seconds("loopIntervalSec"),
		MaxStepReal:     seconds("maxStepRealSec"),
		ReceiveTimeout:  seconds("receiveTimeoutSec"),
		WriteWait:       seconds("writeWaitSec"),
		TimeMultiplier:  viper.GetFloat64("timeMultiplier"),
		StartSimTimeSec: viper.GetInt64("startSimTimeSec"),

		CommandRateLimit:  viper.GetInt("commandRateLimit"),
		CommandRateWindow: seconds("commandRateWindowSec"),
		IdempotencyTTL:    seconds("idempotencyTTLSec"),
		IdempotencyMax:    viper.GetInt("idempotencyMaxEntries"),

		LessonTimeLimitSec: viper.GetInt64("lessonTimeLimitSec"),

		TranscribeCommand: viper.GetString("transcribeCommand"),
	}
}
