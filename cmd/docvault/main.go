package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"docvault/docvault/auth"
	"docvault/docvault/schema"
	"docvault/docvault/services"
	"docvault/docvault/storage"
	"docvault/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type docVaultEnv struct {
	PublicHostname string
	ShareDir       string
	JwtSecret      string

	GoogleClientId string
	AppleServiceId string

	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string

	DatabaseUri string
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func loadEnv() docVaultEnv {
	missingEnvs := []string{}

	requiredEnv := func(key string) string {
		env := os.Getenv(key)
		if env == "" {
			missingEnvs = append(missingEnvs, key)
			slog.Error("missing required env variable", "key", key)
		}
		return env
	}

	env := docVaultEnv{
		PublicHostname: requiredEnv("PUBLIC_HOSTNAME"),
		ShareDir:       requiredEnv("SHARE_DIR"),
		JwtSecret:      requiredEnv("JWT_SECRET"),

		GoogleClientId: utils.OptionalEnv("GOOGLE_CLIENT_ID"),
		AppleServiceId: utils.OptionalEnv("APPLE_SERVICE_ID"),

		S3Bucket:    requiredEnv("S3_BUCKET"),
		S3Region:    utils.OptionalEnv("S3_REGION"),
		S3AccessKey: requiredEnv("S3_ACCESS_KEY"),
		S3SecretKey: requiredEnv("S3_SECRET_KEY"),
		S3Endpoint:  utils.OptionalEnv("S3_ENDPOINT"),

		DatabaseUri: requiredEnv("DATABASE_URI"),
	}

	if len(missingEnvs) > 0 {
		log.Fatalf("The following required env vars are missing: %s", strings.Join(missingEnvs, ", "))
	}

	return env
}

func (env *docVaultEnv) postgresDsn() string {
	parts, err := url.Parse(env.DatabaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func initDb(dsn string) *gorm.DB {
	// TranslateError is required so that unique index violations surface as
	// gorm.ErrDuplicatedKey during concurrent signups and federated logins.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(&schema.User{}, &schema.UserDocument{})
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func initVerifiers(ctx context.Context, env docVaultEnv) (google, apple auth.TokenVerifier) {
	var err error

	if env.GoogleClientId != "" {
		google, err = auth.NewGoogleVerifier(ctx, env.GoogleClientId)
		if err != nil {
			log.Fatalf("error creating google token verifier: %v", err)
		}
	} else {
		slog.Info("GOOGLE_CLIENT_ID not set, google login disabled")
		google = auth.DisabledVerifier("google")
	}

	if env.AppleServiceId != "" {
		apple, err = auth.NewAppleVerifier(ctx, env.AppleServiceId)
		if err != nil {
			log.Fatalf("error creating apple token verifier: %v", err)
		}
	} else {
		slog.Info("APPLE_SERVICE_ID not set, apple login disabled")
		apple = auth.DisabledVerifier("apple")
	}

	return google, apple
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}
	env := loadEnv()

	err := os.MkdirAll(filepath.Join(env.ShareDir, "logs/"), 0777)
	if err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(env.ShareDir, "logs/docvault.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(env.ShareDir, "logs/audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	db := initDb(env.postgresDsn())

	ctx := context.Background()

	store, err := storage.NewS3ObjectStore(ctx, storage.S3Args{
		Bucket:    env.S3Bucket,
		Region:    env.S3Region,
		AccessKey: env.S3AccessKey,
		SecretKey: env.S3SecretKey,
		Endpoint:  env.S3Endpoint,
	})
	if err != nil {
		log.Fatalf("error creating object store: %v", err)
	}

	google, apple := initVerifiers(ctx, env)

	docVault := services.NewDocVault(
		db,
		store,
		google,
		apple,
		auth.NewAuditLogger(auditLog),
		[]byte(env.JwtSecret),
	)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{env.PublicHostname},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api/v1", docVault.Routes())

	slog.Info("starting server", "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
}
