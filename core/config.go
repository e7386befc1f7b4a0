package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env      string // DEV (default) | TEST | QA | PROD
		Debug    bool
		TestMode bool
		AppName  string
		Build    string

		defaultFromEmail string
		AdminEmail       string
		SendgridApiKey   string
		RollbarToken     string

		Server    ServerConfig
		Database  DatabaseConfig
		Realtime  RealtimeConfig
		Session   SessionConfig
		Notif     NotifConfig
		Snapshots SnapshotsConfig
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
		// base URL of the attendance API, as seen by the tracker
		APIBaseURL string
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	RealtimeConfig struct {
		NatsURL              string
		SubjectPrefix        string
		HeartbeatInterval    time.Duration
		ReconnectBaseDelay   time.Duration
		MaxReconnectAttempts int
	}

	SessionConfig struct {
		// planned meeting length in minutes; 0 disables percentage classification
		PlannedDuration int
		// % of PlannedDuration required for a Present classification
		PresentThreshold int
		// % of PlannedDuration required for a Partial classification
		PartialThreshold int
		// joins this long after start are classified Late
		LateJoinDelay time.Duration
		// minimum stay; anything shorter on leave is LeftEarly
		MinStay         time.Duration
		RefreshInterval time.Duration
	}

	NotifConfig struct {
		DedupWindow time.Duration
		RateWindow  time.Duration
		RateMax     int
		AutoHide    time.Duration
		MaxVisible  int
	}

	SnapshotsConfig struct {
		Path       string
		MaxRecords int
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Mahudhurio")
	v.SetDefault("build", "dev")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("adminEmail", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.apiBaseUrl", "http://localhost:8000")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "mahudhurio")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.disableTls", true)

	v.SetDefault("realtime.natsUrl", "nats://localhost:4222")
	v.SetDefault("realtime.subjectPrefix", "mahudhurio")
	v.SetDefault("realtime.heartbeatInterval", 30*time.Second)
	v.SetDefault("realtime.reconnectBaseDelay", 2*time.Second)
	v.SetDefault("realtime.maxReconnectAttempts", 5)

	v.SetDefault("session.plannedDuration", 0)
	v.SetDefault("session.presentThreshold", 75)
	v.SetDefault("session.partialThreshold", 25)
	v.SetDefault("session.lateJoinDelay", 10*time.Minute)
	v.SetDefault("session.minStay", 5*time.Minute)
	v.SetDefault("session.refreshInterval", time.Minute)

	v.SetDefault("notif.dedupWindow", 30*time.Second)
	v.SetDefault("notif.rateWindow", 60*time.Second)
	v.SetDefault("notif.rateMax", 5)
	v.SetDefault("notif.autoHide", 6*time.Second)
	v.SetDefault("notif.maxVisible", 50)

	v.SetDefault("snapshots.path", filepath.Join(os.TempDir(), "mahudhurio-snapshots.json"))
	v.SetDefault("snapshots.maxRecords", 100)

	env := os.Getenv("ENV")
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:      env,
		Debug:    v.GetBool("debug"),
		TestMode: env == "TEST",
		AppName:  v.GetString("appName"),
		Build:    v.GetString("build"),

		defaultFromEmail: v.GetString("defaultFromEmail"),
		AdminEmail:       v.GetString("adminEmail"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),

		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			APIBaseURL:      v.GetString("server.apiBaseUrl"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			DisableTLS:    v.GetBool("database.disableTls"),
		},
		Realtime: RealtimeConfig{
			NatsURL:              v.GetString("realtime.natsUrl"),
			SubjectPrefix:        v.GetString("realtime.subjectPrefix"),
			HeartbeatInterval:    v.GetDuration("realtime.heartbeatInterval"),
			ReconnectBaseDelay:   v.GetDuration("realtime.reconnectBaseDelay"),
			MaxReconnectAttempts: v.GetInt("realtime.maxReconnectAttempts"),
		},
		Session: SessionConfig{
			PlannedDuration:  v.GetInt("session.plannedDuration"),
			PresentThreshold: v.GetInt("session.presentThreshold"),
			PartialThreshold: v.GetInt("session.partialThreshold"),
			LateJoinDelay:    v.GetDuration("session.lateJoinDelay"),
			MinStay:          v.GetDuration("session.minStay"),
			RefreshInterval:  v.GetDuration("session.refreshInterval"),
		},
		Notif: NotifConfig{
			DedupWindow: v.GetDuration("notif.dedupWindow"),
			RateWindow:  v.GetDuration("notif.rateWindow"),
			RateMax:     v.GetInt("notif.rateMax"),
			AutoHide:    v.GetDuration("notif.autoHide"),
			MaxVisible:  v.GetInt("notif.maxVisible"),
		},
		Snapshots: SnapshotsConfig{
			Path:       v.GetString("snapshots.path"),
			MaxRecords: v.GetInt("snapshots.maxRecords"),
		},
	}

	if err := conf.validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}

func (conf *Config) validate() error {
	return vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.AppName, "appName"),
		vala.StringNotEmpty(conf.Server.Host, "server.host"),
		vala.GreaterThan(int(conf.Realtime.HeartbeatInterval), 0, "realtime.heartbeatInterval"),
		vala.GreaterThan(conf.Realtime.MaxReconnectAttempts, 0, "realtime.maxReconnectAttempts"),
		vala.GreaterThan(conf.Notif.RateMax, 0, "notif.rateMax"),
		vala.GreaterThan(conf.Snapshots.MaxRecords, 0, "snapshots.maxRecords"),
	).Check()
}

func (conf *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: conf.AppName, Address: conf.defaultFromEmail}
}

func (dbc DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%s", dbc.Host, dbc.Port)
}
