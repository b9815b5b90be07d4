package types

type Config struct {
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort      uint   `envconfig:"SERVER_PORT" default:"8080"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	ReadTimeoutSec  uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"60"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`

	// Public base URL, used as the confirmation redirect for sign-ups
	SiteURL string `envconfig:"SITE_URL" default:"http://localhost:8080"`

	// Cognito Auth
	CognitoUserPoolID string `envconfig:"COGNITO_USER_POOL_ID"`
	CognitoClientID   string `envconfig:"COGNITO_CLIENT_ID"`
	CognitoIssuerURL  string `envconfig:"COGNITO_ISSUER_URL"`

	// Used only when Cognito is not configured and ENVIRONMENT=development
	DevLoginEmail    string `envconfig:"DEV_LOGIN_EMAIL" default:"admin@teste.com"`
	DevLoginPassword string `envconfig:"DEV_LOGIN_PASSWORD" default:"123456"`

	// Auth Configuration
	CookieName       string `envconfig:"SESSION_COOKIE_NAME" default:"session_id"`
	SessionMaxAgeSec int    `envconfig:"SESSION_MAX_AGE_SEC" default:"604800"` // 7 days

	// Cookie encryption keys (base64 encoded)
	// openssl rand -base64 32
	// to generate values
	CookieHashKey  string `envconfig:"COOKIE_HASH_KEY"`  // 32 or 64 bytes
	CookieBlockKey string `envconfig:"COOKIE_BLOCK_KEY"` // 16, 24, or 32 bytes

	// Photo storage. STORAGE_TOKEN is the write credential: the Supabase
	// service key or the MinIO secret key. S3 uses the default AWS chain.
	StorageDriver        string `envconfig:"STORAGE_DRIVER" default:"s3"`
	StorageBucket        string `envconfig:"STORAGE_BUCKET" default:"problem-photos"`
	StorageToken         string `envconfig:"STORAGE_TOKEN"`
	StoragePublicBaseURL string `envconfig:"STORAGE_PUBLIC_BASE_URL"`
	SupabaseProjectID    string `envconfig:"SUPABASE_PROJECT_ID"`
	MinioEndpoint        string `envconfig:"MINIO_ENDPOINT"`
	MinioAccessKey       string `envconfig:"MINIO_ACCESS_KEY"`
	MinioUseSSL          bool   `envconfig:"MINIO_USE_SSL" default:"true"`

	// Uploads
	MaxUploadBytes      int64 `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
	MaxPhotosPerProblem int   `envconfig:"MAX_PHOTOS_PER_PROBLEM" default:"5"`
	UploadDailyLimit    int64 `envconfig:"UPLOAD_DAILY_LIMIT" default:"200"`

	// Optional, enables the per-user upload quota
	RedisAddress  string `envconfig:"REDIS_ADDRESS"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	// Reports
	PhotoFetchConcurrency int `envconfig:"PHOTO_FETCH_CONCURRENCY" default:"1"`
	// PhotoFetchAllowedPrefixes lists URL prefixes, besides the configured
	// storage, that reports may download photos from.
	PhotoFetchAllowedPrefixes []string `envconfig:"PHOTO_FETCH_ALLOWED_PREFIXES"`
}

func (c *Config) SetupRequired() bool {
	return c.DatabaseURL == ""
}

// DevLoginEnabled reports whether the fallback credential pair is accepted.
// It applies only without an identity provider, in development or while the
// database is not configured yet.
func (c *Config) DevLoginEnabled() bool {
	return c.CognitoClientID == "" && (c.Environment == "development" || c.SetupRequired())
}

