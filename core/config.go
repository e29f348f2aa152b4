package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host              string
		DebugHost         string
		ShutdownTimeout   time.Duration
		DisableReqLogs    bool
		RequestBodyLimit  string
		AllowedOrigins    []string
		ReadHeaderTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		SessionRole   string
		ElevatedRole  string
	}

	IdentityConfig struct {
		JWTSecret    string
		JWTPublicKey string // PEM; switches token verification to RS256
		APIURL       string
		APIKey       string
		Timeout      time.Duration
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	ProvisioningConfig struct {
		MembershipAttempts int
		RetryDelay         time.Duration
	}

	Config struct {
		Env             string
		Debug           bool
		TestMode        bool
		Build           string
		AppName         string
		WorkDir         string
		FrontendBaseURL string
		RootDomain      string
		RollbarToken    string
		SendgridApiKey  string

		defaultFromEmail string

		Server       ServerConfig
		Database     DatabaseConfig
		Identity     IdentityConfig
		Redis        RedisConfig
		Provisioning ProvisioningConfig

		StatsTTL         time.Duration
		StatsConcurrency int
	}
)

// Address returns the host:port pair used to reach the database.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Shule")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.disableRequestLogs", false)
	v.SetDefault("server.requestBodyLimit", "1M")
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("server.readHeaderTimeout", 10*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "shule")
	v.SetDefault("database.user", "shule")
	v.SetDefault("database.password", "shule")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", false)
	v.SetDefault("database.sessionRole", "authenticated")
	v.SetDefault("database.elevatedRole", "service_role")

	v.SetDefault("identity.jwtSecret", "")
	v.SetDefault("identity.jwtPublicKey", "")
	v.SetDefault("identity.apiURL", "https://api.clerk.com")
	v.SetDefault("identity.apiKey", "")
	v.SetDefault("identity.timeout", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.statsTTL", 30*time.Second)
	v.SetDefault("listing.statsConcurrency", 8)
	v.SetDefault("provisioning.membershipAttempts", 2)
	v.SetDefault("provisioning.retryDelay", 100*time.Millisecond)
	v.SetDefault("tenancy.rootDomain", "eduplatform.com")
}

// NewConfig loads the configuration from the environment.
// ENV selects the key prefix (DEV by default) and the optional `config/.env.<env>` file.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := os.Getenv("WORKDIR")
	if wd == "" {
		var err error
		if wd, err = os.Getwd(); err != nil {
			log.Fatalf("config.os.Getwd(): %v", err)
		}
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		WorkDir:          wd,
		FrontendBaseURL:  strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		RootDomain:       v.GetString("tenancy.rootDomain"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:              v.GetString("server.host"),
			DebugHost:         v.GetString("server.debugHost"),
			ShutdownTimeout:   v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:    v.GetBool("server.disableRequestLogs"),
			RequestBodyLimit:  v.GetString("server.requestBodyLimit"),
			AllowedOrigins:    v.GetStringSlice("server.allowedOrigins"),
			ReadHeaderTimeout: v.GetDuration("server.readHeaderTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			SessionRole:   v.GetString("database.sessionRole"),
			ElevatedRole:  v.GetString("database.elevatedRole"),
		},
		Identity: IdentityConfig{
			JWTSecret:    v.GetString("identity.jwtSecret"),
			JWTPublicKey: v.GetString("identity.jwtPublicKey"),
			APIURL:       strings.TrimSuffix(v.GetString("identity.apiURL"), "/"),
			APIKey:       v.GetString("identity.apiKey"),
			Timeout:      v.GetDuration("identity.timeout"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Provisioning: ProvisioningConfig{
			MembershipAttempts: v.GetInt("provisioning.membershipAttempts"),
			RetryDelay:         v.GetDuration("provisioning.retryDelay"),
		},
		StatsTTL:         v.GetDuration("cache.statsTTL"),
		StatsConcurrency: v.GetInt("listing.statsConcurrency"),
	}
}
