package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/archlens/archlens/internal/apperr"
	"github.com/archlens/archlens/internal/extract"
	"github.com/archlens/archlens/internal/render"
	"github.com/archlens/archlens/internal/scan"
	"github.com/archlens/archlens/internal/snapshot"
)

// LanguageCSharp is the only supported source language.
const LanguageCSharp = "csharp"

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration. The file is YAML; JSON
// files such as archlens.json load unchanged.
type Config struct {
	ProjectRoot      string   `yaml:"projectRoot"`
	ProjectName      string   `yaml:"projectName"`
	Language         string   `yaml:"language"`
	SnapshotManager  string   `yaml:"snapshotManager"`
	Format           string   `yaml:"format"`
	Exclusions       []string `yaml:"exclusions"`
	FileExtensions   []string `yaml:"fileExtensions"`
	GitURL           string   `yaml:"gitUrl"`
	SnapshotDir      string   `yaml:"snapshotDir"`
	SnapshotFile     string   `yaml:"snapshotFile"`
	RespectGitignore bool     `yaml:"respectGitignore"`
	Workers          int      `yaml:"workers"`
	RootNamespace    string   `yaml:"rootNamespace"`

	App   ApplicationConfig `yaml:"app"`
	Cache CacheConfig       `yaml:"cache"`
	S3    snapshot.S3Config `yaml:"s3"`
	Auth  AuthConfig        `yaml:"auth"`
}

// Validate normalizes enum aliases and extensions, then validates the
// configuration. Failures wrap apperr.ErrConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	lang, err := ParseLanguage(c.Language)
	if err != nil {
		return err
	}
	c.Language = lang

	c.SnapshotManager = strings.ToLower(strings.TrimSpace(c.SnapshotManager))
	if c.SnapshotManager == "" {
		c.SnapshotManager = snapshot.BackendLocal
	}

	if c.Format, err = render.ParseFormat(c.Format); err != nil {
		return err
	}

	exts := make([]string, 0, len(c.FileExtensions))
	for _, ext := range c.FileExtensions {
		if strings.TrimSpace(ext) == "" {
			continue
		}
		exts = append(exts, scan.NormalizeExtension(strings.TrimSpace(ext)))
	}
	c.FileExtensions = exts

	if c.SnapshotDir == "" {
		c.SnapshotDir = snapshot.DefaultDir
	}
	if c.SnapshotFile == "" {
		c.SnapshotFile = snapshot.DefaultFile
	}

	if err := validation.ValidateStruct(c,
		validation.Field(&c.SnapshotManager, validation.Required,
			validation.In(snapshot.BackendLocal, snapshot.BackendGit, snapshot.BackendS3)),
		validation.Field(&c.FileExtensions, validation.Required.Error("resolved to an empty list")),
		validation.Field(&c.GitURL, validation.When(c.SnapshotManager == snapshot.BackendGit, validation.Required)),
		validation.Field(&c.Workers, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.SnapshotManager == snapshot.BackendS3 {
		if err := validation.ValidateStruct(&c.S3,
			validation.Field(&c.S3.Endpoint, validation.Required),
			validation.Field(&c.S3.Bucket, validation.Required),
		); err != nil {
			return fmt.Errorf("s3: %w", err)
		}
	}
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// Resolve anchors ProjectRoot to the directory of configFile, checks that it
// exists and fills the name defaults derived from it.
func (c *Config) Resolve(configFile string) error {
	base := "."
	if configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
		base = filepath.Dir(abs)
	}

	root := c.ProjectRoot
	switch {
	case root == "":
		root = base
	case !filepath.IsAbs(root):
		root = filepath.Join(base, root)
	}
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("projectRoot does not exist: %s: %w", root, apperr.ErrConfig)
	}
	c.ProjectRoot = root

	if c.ProjectName == "" {
		c.ProjectName = filepath.Base(root)
	}
	if c.RootNamespace == "" {
		c.RootNamespace = c.ProjectName
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(root, c.SnapshotDir, "cache.db")
	} else if !filepath.IsAbs(c.Cache.Path) {
		c.Cache.Path = filepath.Join(base, c.Cache.Path)
	}
	return nil
}

// ScanExclusions returns the configured exclusions plus the directories
// archlens itself writes to.
func (c *Config) ScanExclusions() []string {
	out := make([]string, 0, len(c.Exclusions)+2)
	out = append(out, c.Exclusions...)
	return append(out, c.SnapshotDir+"/", render.DiagramDir+"/")
}

// ParseLanguage maps a language name or alias to LanguageCSharp.
func ParseLanguage(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "c#", "csharp", "cs", "c-sharp", "c sharp":
		return LanguageCSharp, nil
	default:
		return "", fmt.Errorf("unsupported language %q: %w", s, apperr.ErrConfig)
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"logLevel"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CacheConfig controls the on-disk extraction cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Size    int    `yaml:"size"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Size, validation.Min(0)),
	)
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return errors.New("auth: mode is \"token\" but token is empty")
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Language:        LanguageCSharp,
		SnapshotManager: snapshot.BackendLocal,
		Format:          render.FormatJSON,
		FileExtensions:  []string{".cs"},
		SnapshotDir:     snapshot.DefaultDir,
		SnapshotFile:    snapshot.DefaultFile,
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Cache: CacheConfig{
			Size: extract.DefaultCacheSize,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
