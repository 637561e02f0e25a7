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
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string
		WorkDir          string

		Server   ServerConfig
		Database DatabaseConfig
		Payment  PaymentConfig
		Push     PushConfig
		Kafka    KafkaConfig
		Storage  StorageConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
		LoginMaxAttempts          int
		LoginAttemptsWindow       time.Duration
	}

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

	PaymentConfig struct {
		EKQRBaseURL   string
		EKQRApiKey    string
		RedirectURL   string // where the gateway sends the payer back to (our webhook)
		SuccessPath   string
		FailurePath   string
		PollInterval  time.Duration
		MaxPolls      int
		VerifyWebhook bool
	}

	PushConfig struct {
		FirebaseCredentialsFile string
	}

	KafkaConfig struct {
		Brokers []string
		Topic   string
	}

	StorageConfig struct {
		Dir           string
		PublicBaseURL string
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

// NewConfig loads the app's configuration from defaults, the optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed with the current env, e.g. `DEV_SECRETKEY`.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("appName", "StudyHall")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "x8c!2v^t0l-0b@k9hall(s)_+d3v#k3y$r7w1q9z&m4e")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromName", "StudyHall")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("loginMaxAttempts", 5)
	v.SetDefault("loginAttemptsWindow", 15*time.Minute)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "studyhall")
	v.SetDefault("dbUser", "studyhall")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("ekqrBaseURL", "https://api.ekqr.in/api")
	v.SetDefault("ekqrApiKey", "")
	v.SetDefault("paymentRedirectURL", "http://localhost:8000/v1/payments/ekqr/webhook")
	v.SetDefault("paymentSuccessPath", "/payment/success")
	v.SetDefault("paymentFailurePath", "/payment/failure")
	v.SetDefault("paymentPollInterval", 5*time.Second)
	v.SetDefault("paymentMaxPolls", 60)
	v.SetDefault("paymentVerifyWebhook", true)

	v.SetDefault("firebaseCredentialsFile", "")
	v.SetDefault("kafkaBrokers", "")
	v.SetDefault("kafkaTopic", "studyhall.events")
	v.SetDefault("storageDir", "uploads")
	v.SetDefault("storagePublicBaseURL", "http://localhost:8000/uploads")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	wd := Getwd()

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

	var brokers []string
	for _, b := range strings.Split(v.GetString("kafkaBrokers"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return &Config{
		AppName:         v.GetString("appName"),
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("defaultFromName"),
			Address: v.GetString("defaultFromEmail"),
		},
		RollbarToken:   v.GetString("rollbarToken"),
		SendgridApiKey: v.GetString("sendgridApiKey"),
		WorkDir:        wd,
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Address:                   v.GetString("serverAddress"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
			LoginMaxAttempts:          v.GetInt("loginMaxAttempts"),
			LoginAttemptsWindow:       v.GetDuration("loginAttemptsWindow"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Payment: PaymentConfig{
			EKQRBaseURL:   strings.TrimRight(v.GetString("ekqrBaseURL"), "/"),
			EKQRApiKey:    v.GetString("ekqrApiKey"),
			RedirectURL:   v.GetString("paymentRedirectURL"),
			SuccessPath:   v.GetString("paymentSuccessPath"),
			FailurePath:   v.GetString("paymentFailurePath"),
			PollInterval:  v.GetDuration("paymentPollInterval"),
			MaxPolls:      v.GetInt("paymentMaxPolls"),
			VerifyWebhook: v.GetBool("paymentVerifyWebhook"),
		},
		Push: PushConfig{
			FirebaseCredentialsFile: v.GetString("firebaseCredentialsFile"),
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   v.GetString("kafkaTopic"),
		},
		Storage: StorageConfig{
			Dir:           v.GetString("storageDir"),
			PublicBaseURL: strings.TrimRight(v.GetString("storagePublicBaseURL"), "/"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no external services, fast payment polling.
func NewTestConfig() *Config {
	return &Config{
		AppName:          "StudyHall",
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		SecretKey:        "secret",
		FrontendBaseURL:  "http://frontend.test",
		DefaultFromEmail: mail.Address{Name: "StudyHall", Address: "noreply@localhost"},
		Server: ServerConfig{
			Host:                      "localhost",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
			LoginMaxAttempts:          5,
			LoginAttemptsWindow:       time.Minute,
		},
		Payment: PaymentConfig{
			RedirectURL:  "http://api.test/v1/payments/ekqr/webhook",
			SuccessPath:  "/payment/success",
			FailurePath:  "/payment/failure",
			PollInterval: time.Millisecond,
			MaxPolls:     3,
		},
		Kafka: KafkaConfig{Topic: "studyhall.events"},
		Storage: StorageConfig{
			Dir:           os.TempDir(),
			PublicBaseURL: "http://api.test/uploads",
		},
	}
}
