package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PortalAllowOrigins        []string
	}

	RedisConfig struct {
		URL       string // empty: in-memory cache
		PortalTTL time.Duration
	}

	StorageConfig struct {
		Driver    string // "s3" | "memory"
		Bucket    string
		Region    string
		Endpoint  string
		AccessKey string
		SecretKey string
	}

	SchedulerConfig struct {
		Enabled         bool
		PortalCacheSpec string
		DigestSpec      string
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		APIBaseURL       string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string
		StaffFundingURL  string

		PasswordResetTimeoutDelta time.Duration

		Database  DatabaseConfig
		Server    ServerConfig
		Redis     RedisConfig
		Storage   StorageConfig
		Scheduler SchedulerConfig
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

// NewConfig reads the configuration from the environment.
// Variables are prefixed by the environment name, e.g. `PROD_DATABASE_HOST`.
func NewConfig() *Config {
	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v := viper.New()
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetTypeByDefaultValue(true)
	v.AutomaticEnv()
	setDefaults(v, env)

	return &Config{
		AppName:         v.GetString("appName"),
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        env == "TEST",
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		APIBaseURL:      v.GetString("apiBaseURL"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("appName"),
			Address: v.GetString("defaultFromEmail"),
		},
		SendgridApiKey:  v.GetString("sendgridApiKey"),
		RollbarToken:    v.GetString("rollbarToken"),
		StaffFundingURL: v.GetString("staffFundingURL"),

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PortalAllowOrigins:        v.GetStringSlice("server.portalAllowOrigins"),
		},
		Redis: RedisConfig{
			URL:       v.GetString("redis.url"),
			PortalTTL: v.GetDuration("redis.portalTTL"),
		},
		Storage: StorageConfig{
			Driver:    v.GetString("storage.driver"),
			Bucket:    v.GetString("storage.bucket"),
			Region:    v.GetString("storage.region"),
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.accessKey"),
			SecretKey: v.GetString("storage.secretKey"),
		},
		Scheduler: SchedulerConfig{
			Enabled:         v.GetBool("scheduler.enabled"),
			PortalCacheSpec: v.GetString("scheduler.portalCacheSpec"),
			DigestSpec:      v.GetString("scheduler.digestSpec"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("appName", "OSIS-Partenariats")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("secretKey", "n6t#q=dl$x3!y2u8v)0r@kz9%w5o+1b&f4e7j(c-hm_gpasi*")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("apiBaseURL", "http://localhost:8000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("staffFundingURL", "https://uclouvain.be/fr/staff-mobility")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "osis_partnership")
	v.SetDefault("database.user", "osis")
	v.SetDefault("database.password", "osis")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.portalAllowOrigins", []string{"*"})

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.portalTTL", time.Hour)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.region", "eu-west-1")

	v.SetDefault("scheduler.enabled", env != "TEST")
	v.SetDefault("scheduler.portalCacheSpec", "0 0 2 * * *")
	v.SetDefault("scheduler.digestSpec", "0 0 6 * * *")
}

// NewTestConfig returns the configuration used by tests, whatever the environment.
func NewTestConfig() *Config {
	return &Config{
		AppName:          "OSIS-Partenariats",
		Env:              "TEST",
		Build:            "test",
		Debug:            false,
		TestMode:         true,
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:3000",
		APIBaseURL:       "http://localhost:8000",
		DefaultFromEmail: mail.Address{Name: "OSIS-Partenariats", Address: "noreply@localhost"},
		StaffFundingURL:  "https://uclouvain.be/fr/staff-mobility",

		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,

		Server: ServerConfig{
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
			PortalAllowOrigins:        []string{"*"},
		},
		Redis:   RedisConfig{PortalTTL: time.Minute},
		Storage: StorageConfig{Driver: "memory"},
	}
}
