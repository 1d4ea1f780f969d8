package config

import (
	"os"
	"path/filepath"
	"sync"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v2"
)

// DefaultLocation is the default path at which the daemon configuration
// is expected to live on disk.
const DefaultLocation = "/etc/onyxd/config.yml"

var (
	mu            sync.RWMutex
	_config       *Configuration
	_debugViaFlag bool
)

// Locker specific to writing the configuration to the disk, this happens
// in areas that might already be locked, so we don't want to crash the process.
var _writeLock sync.Mutex

// ApiConfiguration defines the configuration for the HTTP API exposed by
// the onyxd webserver.
type ApiConfiguration struct {
	// The interface that the internal webserver should bind to.
	Host string `default:"0.0.0.0" yaml:"host"`

	// The port that the internal webserver should bind to.
	Port int `default:"8090" yaml:"port"`

	// The maximum size for module files uploaded through the API in MiB.
	UploadLimit int64 `default:"10" json:"upload_limit" yaml:"upload_limit"`

	// A list of IP addresses of proxies that may send a X-Forwarded-For
	// header to set the true client IP.
	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies"`
}

// ModulesConfiguration controls how site modules are installed, checked,
// and executed by the loader.
type ModulesConfiguration struct {
	// Directory is the modules root. Each installed module lives in a
	// subdirectory named after its module id.
	Directory string `default:"/var/lib/onyxd/modules" json:"-" yaml:"directory"`

	// PhpBinary is the interpreter used for the authoritative lint
	// pre-check and for executing module files in an isolated process.
	PhpBinary string `default:"php" yaml:"php_binary"`

	// ExecTimeout is the number of seconds a module process may run during
	// the boot load pass before it is considered hung and demoted.
	ExecTimeout int `default:"30" yaml:"exec_timeout"`

	// AllowedExtensions lists the upload extensions accepted by the
	// installer.
	AllowedExtensions []string `default:"[\"php\",\"zip\"]" yaml:"allowed_extensions"`
}

// DropboxConfiguration holds an access token for Dropbox backup exports.
type DropboxConfiguration struct {
	Token     string `json:"-" yaml:"token"`
	Connected bool   `default:"false" yaml:"connected"`
}

// GoogleDriveConfiguration holds OAuth credentials for Google Drive backup
// exports. The access token expires and is refreshed transparently using
// the refresh token before each upload.
type GoogleDriveConfiguration struct {
	ClientID     string `json:"-" yaml:"client_id"`
	ClientSecret string `json:"-" yaml:"client_secret"`
	Token        string `json:"-" yaml:"token"`
	RefreshToken string `json:"-" yaml:"refresh_token"`
	Connected    bool   `default:"false" yaml:"connected"`
}

// CloudConfiguration groups the supported external storage providers.
type CloudConfiguration struct {
	Dropbox     DropboxConfiguration     `yaml:"dropbox"`
	GoogleDrive GoogleDriveConfiguration `yaml:"google_drive"`
}

// ArchiveConfiguration controls the deletion archive retention policy and
// cloud export providers.
type ArchiveConfiguration struct {
	// Directory is the root of the archive snapshot tree.
	Directory string `default:"/var/lib/onyxd/archive" json:"-" yaml:"directory"`

	// RetentionDays is the number of days an archived item is kept before
	// the expiry sweep removes its snapshot. A value of 0 keeps archives
	// indefinitely. Non-zero values below 7 are raised to 7.
	RetentionDays int `default:"7" yaml:"retention_days"`

	// PurgeAfterDays is the secondary grace window after which restored and
	// expired records are removed from the record store entirely.
	PurgeAfterDays int `default:"60" yaml:"purge_after_days"`

	Cloud CloudConfiguration `yaml:"cloud"`
}

// LogConfiguration controls the event log retention.
type LogConfiguration struct {
	// RetentionDays is how long event log entries are kept before the
	// cleanup sweep removes them.
	RetentionDays int `default:"30" yaml:"retention_days"`
}

// SystemConfiguration defines daemon level paths and behavior.
type SystemConfiguration struct {
	// The root directory where onyxd data is stored.
	RootDirectory string `default:"/var/lib/onyxd" json:"-" yaml:"root_directory"`

	// Directory where the daemon writes its rotated log file.
	LogDirectory string `default:"/var/log/onyxd" json:"-" yaml:"log_directory"`

	// Directory for temporary files such as ZIP extraction scratch space.
	TmpDirectory string `default:"/tmp/onyxd" json:"-" yaml:"tmp_directory"`

	// HostRoot is the root of the managed host site. Plugin and theme
	// directories are resolved underneath it.
	HostRoot string `default:"/var/www/site" json:"-" yaml:"host_root"`

	// The timezone used for scheduled sweeps and timestamps.
	Timezone string `default:"UTC" yaml:"timezone"`
}

// Configuration is the root configuration tree for the daemon.
type Configuration struct {
	// The location from which this configuration instance was read.
	path string

	// Debug determines if debug level output is logged.
	Debug bool `json:"debug" yaml:"debug"`

	// AuthenticationToken is the bearer token required for every protected
	// API operation.
	AuthenticationToken string `json:"token" yaml:"token"`

	Api     ApiConfiguration     `json:"api" yaml:"api"`
	System  SystemConfiguration  `json:"system" yaml:"system"`
	Modules ModulesConfiguration `json:"modules" yaml:"modules"`
	Archive ArchiveConfiguration `json:"archive" yaml:"archive"`
	Logs    LogConfiguration     `json:"logs" yaml:"logs"`
}

// Retention returns the effective archive retention in days. Zero means
// the archive never expires; any other configured value is clamped to a
// minimum of seven days so a typo cannot silently disable the safety net.
func (a ArchiveConfiguration) Retention() int {
	if a.RetentionDays == 0 {
		return 0
	}
	if a.RetentionDays < 7 {
		return 7
	}
	return a.RetentionDays
}

// NewAtPath creates a new struct and sets the path where it should be
// stored. This function does not modify the currently stored global
// configuration.
func NewAtPath(path string) (*Configuration, error) {
	var c Configuration
	// Configures the default values for many of the configuration options
	// present in the structs. Values set in the configuration file take
	// priority over the default values.
	if err := defaults.Set(&c); err != nil {
		return nil, err
	}
	c.path = path
	return &c, nil
}

// Set the global configuration instance. This is a blocking operation such
// that anything trying to set a different configuration value, or read the
// configuration, will be paused until it is complete.
func Set(c *Configuration) {
	mu.Lock()
	defer mu.Unlock()
	_config = c
}

// SetDebugViaFlag tracks if the application is running in debug mode
// because of a command line flag argument. If so we do not want to store
// that configuration change to the disk.
func SetDebugViaFlag(d bool) {
	mu.Lock()
	defer mu.Unlock()
	_config.Debug = d
	_debugViaFlag = d
}

// Get returns the global configuration instance. This is a thread-safe
// operation that will block if the configuration is presently being
// modified.
//
// Be aware that you CANNOT make modifications to the currently stored
// configuration by modifying the struct returned by this function. The
// only way to make modifications is by using the Update() function and
// passing data through in the callback.
func Get() *Configuration {
	mu.RLock()
	// Create a copy of the struct so that all modifications made beyond
	// this point are immutable.
	c := *_config
	mu.RUnlock()
	return &c
}

// Update performs an in-situ update of the global configuration object
// using a thread-safe mutex lock. This is the correct way to make
// modifications to the global configuration.
func Update(callback func(c *Configuration)) {
	mu.Lock()
	defer mu.Unlock()
	callback(_config)
}

// Path returns the file path where this configuration is stored.
func (c *Configuration) Path() string {
	return c.path
}

// WriteToDisk writes the configuration to the disk. This is a thread safe
// operation and will only allow one write at a time. Additional calls
// while writing are queued up.
func WriteToDisk(c *Configuration) error {
	_writeLock.Lock()
	defer _writeLock.Unlock()

	ccopy := *c
	// If debugging is set with the flag, don't save that to the
	// configuration file, otherwise you'll always end up in debug mode.
	if _debugViaFlag {
		ccopy.Debug = false
	}
	if c.path == "" {
		return errors.New("cannot write configuration, no path defined in struct")
	}
	b, err := yaml.Marshal(&ccopy)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, b, 0o600); err != nil {
		return err
	}
	return nil
}

// FromFile reads the configuration from the provided file and stores it in
// the global singleton for this instance.
func FromFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c, err := NewAtPath(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return err
	}
	if t := os.Getenv("ONYXD_TOKEN"); t != "" {
		c.AuthenticationToken = t
	}

	// Store this configuration in the global state.
	Set(c)
	return nil
}

// ConfigureDirectories ensures that all the system directories exist on
// the system. These directories are created so that only the owner can
// read the data, and no other users.
//
// This function IS NOT thread-safe.
func ConfigureDirectories() error {
	root := _config.System.RootDirectory
	log.WithField("path", root).Debug("ensuring root data directory exists")
	if err := os.MkdirAll(root, 0o700); err != nil {
		return err
	}

	// Some installs keep the modules directory as a symlink into the host
	// site tree. Resolve it to the real path up front so path containment
	// checks later do not trip over the link.
	if d, err := filepath.EvalSymlinks(_config.Modules.Directory); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	} else if d != _config.Modules.Directory {
		_config.Modules.Directory = d
	}

	log.WithField("path", _config.Modules.Directory).Debug("ensuring modules directory exists")
	if err := os.MkdirAll(_config.Modules.Directory, 0o700); err != nil {
		return err
	}

	log.WithField("path", _config.Archive.Directory).Debug("ensuring archive directory exists")
	if err := os.MkdirAll(_config.Archive.Directory, 0o700); err != nil {
		return err
	}

	log.WithField("path", _config.System.TmpDirectory).Debug("ensuring temporary directory exists")
	if err := os.MkdirAll(_config.System.TmpDirectory, 0o700); err != nil {
		return err
	}

	log.WithField("path", _config.System.LogDirectory).Debug("ensuring log directory exists")
	return os.MkdirAll(_config.System.LogDirectory, 0o700)
}
