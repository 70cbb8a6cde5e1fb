package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultMaxFileSize        int64 = 50 << 20
	DefaultMaxFilesPerSession       = 50
	DefaultFileExpiry               = time.Hour
	DefaultScratchExpiry            = 5 * time.Minute
)

// Settings is the resolved process configuration. Load reads it once at
// startup; components receive the fields they need rather than the struct.
type Settings struct {
	Port    string
	GinMode string

	DataDir    string
	ScratchDir string

	MaxFileSize        int64
	MaxFilesPerSession int

	FileExpiry    time.Duration
	ScratchExpiry time.Duration
	SweepInterval time.Duration
	MergeTimeout  time.Duration

	NormalizerPath     string
	NormalizerTimeout  time.Duration
	NormalizerCompat   string
	NormalizerSettings string

	SessionSecret  []byte
	SessionTTL     time.Duration
	AllowInsecure  bool
	SessionStore   string
	StorageBackend string

	UploadRatePerMin int
	UploadRateBurst  int

	LogLevel  string
	LogFormat string
}

// Load builds Settings from the environment.
func Load() (*Settings, error) {
	dataDir := Get("DATA_DIR", "/data")
	s := &Settings{
		Port:               Get("PORT", "8000"),
		GinMode:            Get("GIN_MODE", "release"),
		DataDir:            dataDir,
		ScratchDir:         Get("SCRATCH_DIR", filepath.Join(dataDir, "scratch")),
		MaxFileSize:        GetInt64("MAX_FILE_SIZE", DefaultMaxFileSize),
		MaxFilesPerSession: GetInt("MAX_FILES_PER_SESSION", DefaultMaxFilesPerSession),
		FileExpiry:         GetDuration("FILE_EXPIRY", DefaultFileExpiry),
		ScratchExpiry:      GetDuration("SCRATCH_EXPIRY", DefaultScratchExpiry),
		SweepInterval:      GetDuration("SWEEP_INTERVAL", 15*time.Minute),
		MergeTimeout:       GetDuration("MERGE_TIMEOUT", 5*time.Minute),
		NormalizerPath:     Get("GS_PATH", ""),
		NormalizerTimeout:  GetDuration("NORMALIZER_TIMEOUT", 2*time.Minute),
		NormalizerCompat:   Get("GS_COMPAT", "1.4"),
		NormalizerSettings: Get("GS_SETTINGS", "/prepress"),
		SessionTTL:         GetDuration("SESSION_TTL", 24*time.Hour),
		AllowInsecure:      GetBool("ALLOW_INSECURE", false),
		SessionStore:       strings.ToLower(Get("SESSION_STORE", "database")),
		StorageBackend:     strings.ToLower(Get("STORAGE_BACKEND", "filesystem")),
		UploadRatePerMin:   GetInt("UPLOAD_RATE_PER_MIN", 60),
		UploadRateBurst:    GetInt("UPLOAD_RATE_BURST", 10),
		LogLevel:           strings.ToLower(Get("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(Get("LOG_FORMAT", "")),
	}

	if secret := Get("SESSION_SECRET", ""); secret != "" {
		s.SessionSecret = []byte(secret)
	} else {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		s.SessionSecret = []byte(hex.EncodeToString(buf))
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate rejects settings the services cannot run with.
func (s *Settings) Validate() error {
	if s.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if s.MaxFilesPerSession <= 0 {
		return fmt.Errorf("MAX_FILES_PER_SESSION must be positive")
	}
	if s.FileExpiry <= 0 || s.ScratchExpiry <= 0 {
		return fmt.Errorf("FILE_EXPIRY and SCRATCH_EXPIRY must be positive")
	}
	if s.SweepInterval < 0 {
		return fmt.Errorf("SWEEP_INTERVAL must not be negative")
	}
	switch s.SessionStore {
	case "database", "memory":
	default:
		return fmt.Errorf("unsupported SESSION_STORE %q", s.SessionStore)
	}
	switch s.StorageBackend {
	case "filesystem", "s3":
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", s.StorageBackend)
	}
	if len(s.SessionSecret) < 16 {
		return fmt.Errorf("SESSION_SECRET must be at least 16 bytes")
	}
	return nil
}

// Addr is the listen address derived from Port.
func (s *Settings) Addr() string {
	return ":" + s.Port
}
