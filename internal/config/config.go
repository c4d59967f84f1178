package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	KeyUpdateRepoOwner           = "update.repo-owner"
	KeyUpdateRepoName            = "update.repo-name"
	KeyUpdateEndpoint            = "update.endpoint"
	KeyUpdateUserAgent           = "update.user-agent"
	KeyUpdateCheckInterval       = "update.check-interval"
	KeyUpdateCheckTimeout        = "update.check-timeout"
	KeyUpdateAutoCheck           = "update.auto-check"
	KeyUpdateAssetSuffix         = "update.asset-suffix"
	KeyUpdateDownloadIdleTimeout = "update.download-idle-timeout"

	KeyHistoryPath = "history.path"

	KeyLogLevel     = "log.level"
	KeyLogFile      = "log.file"
	KeyLogMaxSizeMB = "log.max-size-mb"

	KeyServeAddr    = "serve.addr"
	KeyOutputFormat = "output.format"
)

const (
	DefaultRepoOwner     = "hhyufan"
	DefaultRepoName      = "miaogu-notepad"
	DefaultUserAgent     = "miaogu-notepad"
	DefaultCheckInterval = time.Hour
	DefaultCheckTimeout  = 10 * time.Second
	DefaultServeAddr     = "127.0.0.1:7417"

	// DirName is the per-user and per-project configuration directory.
	DirName   = ".notepad"
	envPrefix = "NP"
)

type initSettings struct {
	workingDir        string
	projectConfigPath string
	userConfigPath    string
}

// Option configures Initialize behaviour. Useful for tests to override paths.
type Option func(*initSettings)

// WithWorkingDir overrides the directory used for project config discovery.
func WithWorkingDir(dir string) Option {
	return func(cfg *initSettings) {
		cfg.workingDir = dir
	}
}

// WithProjectConfig explicitly sets the project config path instead of discovery.
func WithProjectConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.projectConfigPath = path
	}
}

// WithUserConfig overrides the default user config path.
func WithUserConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.userConfigPath = path
	}
}

var (
	configOnce sync.Once
	configMu   sync.RWMutex
	configInst *viper.Viper
	initErr    error

	// resolved holds the paths the last successful configure call read from.
	resolved  initSettings
	overrides map[string]any

	// userConfigPathOverride is used by tests to override the user config path.
	userConfigPathOverride string
)

// Initialize loads configuration using the precedence:
// defaults < user config < project config < environment variables < overrides.
func Initialize(opts ...Option) error {
	configOnce.Do(func() {
		settings := initSettings{}
		for _, opt := range opts {
			opt(&settings)
		}
		initErr = configure(&settings)
	})
	return initErr
}

// ApplyOverrides injects values typically coming from CLI flags.
// Overrides survive a Reload.
func ApplyOverrides(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	if overrides == nil {
		overrides = make(map[string]any, len(values))
	}
	for k, v := range values {
		overrides[k] = v
		configInst.Set(k, v)
	}
	return nil
}

// GetString fetches a string configuration value, initializing on demand.
func GetString(key string) string {
	v, err := getViper()
	if err != nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool fetches a bool configuration value, initializing on demand.
func GetBool(key string) bool {
	v, err := getViper()
	if err != nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt fetches an integer configuration value, initializing on demand.
func GetInt(key string) int {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration fetches a duration configuration value, initializing on demand.
func GetDuration(key string) time.Duration {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set updates a configuration key at runtime, initializing on demand.
func Set(key string, value any) error {
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	configInst.Set(key, value)
	return nil
}

// Reload re-reads the config files resolved by Initialize and reapplies overrides.
func Reload() error {
	if err := Initialize(); err != nil {
		return err
	}
	configMu.RLock()
	settings := resolved
	configMu.RUnlock()
	return configure(&settings)
}

func configure(settings *initSettings) error {
	workingDir := strings.TrimSpace(settings.workingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		workingDir = wd
	}

	userConfigPath := strings.TrimSpace(settings.userConfigPath)
	if userConfigPath == "" {
		path, err := defaultUserConfigPath()
		if err != nil {
			return err
		}
		userConfigPath = path
	}

	projectConfigPath := strings.TrimSpace(settings.projectConfigPath)
	if projectConfigPath == "" {
		path, err := findProjectConfig(workingDir)
		if err != nil {
			return err
		}
		projectConfigPath = path
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := mergeConfigFile(v, userConfigPath); err != nil {
		return fmt.Errorf("load user config: %w", err)
	}
	if err := mergeConfigFile(v, projectConfigPath); err != nil {
		return fmt.Errorf("load project config: %w", err)
	}

	configMu.Lock()
	defer configMu.Unlock()
	for k, val := range overrides {
		v.Set(k, val)
	}
	configInst = v
	resolved = initSettings{
		workingDir:        workingDir,
		projectConfigPath: projectConfigPath,
		userConfigPath:    userConfigPath,
	}
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: Config loader intentionally reads user and project config files
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	if userConfigPathOverride != "" {
		return userConfigPathOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, DirName, "config.yaml"), nil
}

// UserDir returns the per-user notepad directory (~/.notepad).
func UserDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

func findProjectConfig(startDir string) (string, error) {
	if strings.TrimSpace(startDir) == "" {
		return "", nil
	}
	dir := startDir
	for {
		candidate := filepath.Join(dir, DirName, "config.yaml")
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config path %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyUpdateRepoOwner, DefaultRepoOwner)
	v.SetDefault(KeyUpdateRepoName, DefaultRepoName)
	v.SetDefault(KeyUpdateEndpoint, "")
	v.SetDefault(KeyUpdateUserAgent, DefaultUserAgent)
	v.SetDefault(KeyUpdateCheckInterval, DefaultCheckInterval)
	v.SetDefault(KeyUpdateCheckTimeout, DefaultCheckTimeout)
	v.SetDefault(KeyUpdateAutoCheck, false)
	v.SetDefault(KeyUpdateAssetSuffix, "")
	v.SetDefault(KeyUpdateDownloadIdleTimeout, time.Duration(0))
	v.SetDefault(KeyHistoryPath, "")
	v.SetDefault(KeyLogLevel, "debug")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, 5)
	v.SetDefault(KeyServeAddr, DefaultServeAddr)
	v.SetDefault(KeyOutputFormat, "rich")
}

func getViper() (*viper.Viper, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	configMu.RLock()
	defer configMu.RUnlock()
	if configInst == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return configInst, nil
}

// reset clears package state for tests.
func reset() {
	configMu.Lock()
	defer configMu.Unlock()
	configInst = nil
	initErr = nil
	configOnce = sync.Once{}
	resolved = initSettings{}
	overrides = nil
	userConfigPathOverride = ""
}

// ResetForTesting clears package state for tests in other packages.
// Returns a cleanup function that should be deferred.
func ResetForTesting(t interface{ TempDir() string }) func() {
	reset()
	tmp := t.TempDir()
	_ = Initialize(WithWorkingDir(tmp), WithUserConfig(filepath.Join(tmp, "user.yaml")))
	return reset
}

// Watch reloads configuration whenever the user or project config file
// changes on disk and then invokes onChange. The returned stop function
// closes the underlying watcher.
func Watch(onChange func()) (func() error, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	configMu.RLock()
	paths := []string{resolved.userConfigPath, resolved.projectConfigPath}
	configMu.RUnlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	// Watch parent directories so editors that replace files atomically are seen.
	targets := make(map[string]struct{})
	dirs := make(map[string]struct{})
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		clean := filepath.Clean(p)
		targets[clean] = struct{}{}
		dir := filepath.Dir(clean)
		if _, ok := dirs[dir]; ok {
			continue
		}
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = struct{}{}
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if _, ok := targets[filepath.Clean(ev.Name)]; !ok {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := Reload(); err != nil {
					continue
				}
				if onChange != nil {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher.Close, nil
}

// Persist writes a single key to the appropriate config file.
// If a project config (.notepad/config.yaml) exists, it updates that file.
// Otherwise, it updates the user config (~/.notepad/config.yaml).
// The user config directory is auto-created if needed, but project config
// directories are never auto-created.
func Persist(key string, value any) error {
	targetPath, err := findWritableConfigPath()
	if err != nil {
		return fmt.Errorf("find config path: %w", err)
	}

	// Fresh viper instance so defaults and env values are not written out.
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(targetPath)
	_ = v.ReadInConfig() // ignore error if file doesn't exist

	v.Set(key, value)

	//nolint:gosec // G301: User config directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := v.WriteConfigAs(targetPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return Set(key, value)
}

// findWritableConfigPath determines which config file to write to.
// Returns project config path if it exists, otherwise user config path.
func findWritableConfigPath() (string, error) {
	configMu.RLock()
	project := resolved.projectConfigPath
	user := resolved.userConfigPath
	configMu.RUnlock()

	if project != "" {
		return project, nil
	}
	if wd, err := os.Getwd(); err == nil {
		if path, err := findProjectConfig(wd); err == nil && path != "" {
			return path, nil
		}
	}
	if user != "" {
		return user, nil
	}
	return defaultUserConfigPath()
}
