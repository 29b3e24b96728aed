package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "time"
)

// Config holds all runtime configuration values.  It is built once at
// startup by Load and passed by value to the components that need it;
// nothing reads the environment after that.
type Config struct {
    Env            string // application environment (e.g. "development", "production")
    Port           string // HTTP port to listen on
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    AccessSecret   string // secret used to sign access tokens
    RefreshSecret  string // secret used to sign refresh tokens
    AccessTTLMin   int    // access token time‑to‑live in minutes
    RefreshTTLDays int    // refresh token time‑to‑live in days
    BcryptCost     int    // bcrypt cost for password hashing
    CORSOrigin     string // origin allowed to call the API with credentials
    UploadDir      string // directory for temporary multipart uploads
    LogLevel       string // info, warn or error
    Storage        StorageConfig
}

// StorageConfig describes the S3 compatible bucket that receives profile
// and cover photos.  An empty Bucket disables uploads.
type StorageConfig struct {
    Bucket        string
    Region        string
    Endpoint      string
    AccessKey     string
    SecretKey     string
    PublicBaseURL string
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    cfg := Config{
        Env:            envStr("APP_ENV", "development"),
        Port:           envStr("APP_PORT", "50001"),
        DBUser:         must("DB_USER"),
        DBPass:         os.Getenv("DB_PASS"), // empty allowed
        DBHost:         must("DB_HOST"),
        DBPort:         envStr("DB_PORT", "3306"),
        DBName:         must("DB_NAME"),
        AccessSecret:   must("ACCESS_TOKEN_SECRET"),
        RefreshSecret:  must("REFRESH_TOKEN_SECRET"),
        AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 15),
        RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 10),
        BcryptCost:     envInt("BCRYPT_COST", 10),
        CORSOrigin:     envStr("CORS_ORIGIN", "http://localhost:5173"),
        UploadDir:      envStr("UPLOAD_DIR", "public/temp"),
        LogLevel:       envStr("LOG_LEVEL", "info"),
        Storage: StorageConfig{
            Bucket:        os.Getenv("S3_BUCKET"),
            Region:        envStr("S3_REGION", "us-east-1"),
            Endpoint:      os.Getenv("S3_ENDPOINT"),
            AccessKey:     os.Getenv("S3_ACCESS_KEY"),
            SecretKey:     os.Getenv("S3_SECRET_KEY"),
            PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
        },
    }
    if cfg.AccessSecret == cfg.RefreshSecret {
        log.Fatalf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
    }
    return cfg
}

// IsProduction reports whether cookies should carry the Secure flag.
func (c Config) IsProduction() bool { return c.Env == "production" }

func (c Config) AccessTTL() time.Duration {
    return time.Duration(c.AccessTTLMin) * time.Minute
}

func (c Config) RefreshTTL() time.Duration {
    return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}
