package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var Conf *Config

type Config struct {
	Env      string
	Debug    bool
	TestMode bool
	AppName  string
	Build    string

	// Hosted auth/database service (Supabase-style).
	Hosted struct {
		BaseURL        string
		AnonKey        string
		ServiceKey     string // privileged key; operator tooling only
		RequestTimeout time.Duration
	}

	// Downstream Uniteams REST API.
	API struct {
		BaseURL        string
		RequestTimeout time.Duration
	}

	// Session/profile pipeline tuning.
	ProfileFetchTimeout    time.Duration
	ProvisioningRetryDelay time.Duration

	// Dev stub server.
	Stub struct {
		Addr           string
		SecretKey      string
		AccessTokenTTL time.Duration
		AutoConfirm    bool
	}

	DatabaseURL      string
	FrontendBaseURL  string
	DefaultFromEmail string
	SendgridAPIKey   string
	RollbarToken     string
}

func init() {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Uniteams")
	v.SetDefault("hostedBaseURL", "http://localhost:9999")
	v.SetDefault("hostedAnonKey", "dev-anon-key")
	v.SetDefault("hostedRequestTimeout", 10*time.Second)
	v.SetDefault("apiBaseURL", "http://localhost:8000")
	v.SetDefault("apiRequestTimeout", 10*time.Second)
	v.SetDefault("profileFetchTimeout", 3*time.Second)
	v.SetDefault("provisioningRetryDelay", 500*time.Millisecond)
	v.SetDefault("stubAddr", ":9999")
	v.SetDefault("stubSecretKey", "g0z3-kml)txq$+49=hb&yrsw8(p!v)#*d5(#nj2u^$wqal7opy")
	v.SetDefault("stubAccessTokenTTL", time.Hour)
	v.SetDefault("databaseURL", "postgres://localhost:5432/uniteams?sslmode=disable")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	Conf = &Config{
		Env:                    env,
		Debug:                  v.GetBool("debug"),
		TestMode:               v.GetBool("testMode"),
		AppName:                v.GetString("appName"),
		Build:                  v.GetString("build"),
		ProfileFetchTimeout:    v.GetDuration("profileFetchTimeout"),
		ProvisioningRetryDelay: v.GetDuration("provisioningRetryDelay"),
		DatabaseURL:            v.GetString("databaseURL"),
		FrontendBaseURL:        v.GetString("frontendBaseURL"),
		DefaultFromEmail:       v.GetString("defaultFromEmail"),
		SendgridAPIKey:         v.GetString("sendgridApiKey"),
		RollbarToken:           v.GetString("rollbarToken"),
	}
	Conf.Hosted.BaseURL = v.GetString("hostedBaseURL")
	Conf.Hosted.AnonKey = v.GetString("hostedAnonKey")
	Conf.Hosted.ServiceKey = v.GetString("hostedServiceKey")
	Conf.Hosted.RequestTimeout = v.GetDuration("hostedRequestTimeout")
	Conf.API.BaseURL = v.GetString("apiBaseURL")
	Conf.API.RequestTimeout = v.GetDuration("apiRequestTimeout")
	Conf.Stub.Addr = v.GetString("stubAddr")
	Conf.Stub.SecretKey = v.GetString("stubSecretKey")
	Conf.Stub.AccessTokenTTL = v.GetDuration("stubAccessTokenTTL")
	Conf.Stub.AutoConfirm = v.GetBool("stubAutoConfirm")
}
