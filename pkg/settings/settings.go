package settings

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/ragchat/pkg/client"
	"github.com/go-go-golems/ragchat/pkg/kvstore"
	"github.com/go-go-golems/ragchat/pkg/session"
	"github.com/go-go-golems/ragchat/pkg/watch"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const DefaultModel = "llama-3.1-8b-instruct"

type Settings struct {
	APIURL              string        `yaml:"api-url"`
	Model               string        `yaml:"model"`
	DefaultSystemPrompt string        `yaml:"default-system-prompt"`
	Store               string        `yaml:"store"`
	StateDir            string        `yaml:"state-dir"`
	Timeout             time.Duration `yaml:"timeout"`
	UseRAG              bool          `yaml:"use-rag"`
	WatchExtensions     []string      `yaml:"watch-extensions"`
}

func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragchat"
	}
	return filepath.Join(home, ".ragchat")
}

func NewSettings() *Settings {
	return &Settings{
		APIURL:              client.DefaultBaseURL,
		Model:               DefaultModel,
		DefaultSystemPrompt: session.DefaultSystemPrompt,
		Store:               kvstore.BackendFile,
		StateDir:            DefaultStateDir(),
		WatchExtensions:     append([]string(nil), watch.DefaultExtensions...),
	}
}

// SetDefaults registers the defaults with v, so unset keys resolve like NewSettings.
func SetDefaults(v *viper.Viper) {
	d := NewSettings()
	v.SetDefault("api-url", d.APIURL)
	v.SetDefault("model", d.Model)
	v.SetDefault("default-system-prompt", d.DefaultSystemPrompt)
	v.SetDefault("store", d.Store)
	v.SetDefault("state-dir", d.StateDir)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("use-rag", d.UseRAG)
	v.SetDefault("watch-extensions", d.WatchExtensions)
}

// FromViper reads the effective settings out of v.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := NewSettings()
	if v.IsSet("api-url") {
		s.APIURL = v.GetString("api-url")
	}
	if v.IsSet("model") {
		s.Model = v.GetString("model")
	}
	if v.IsSet("default-system-prompt") {
		s.DefaultSystemPrompt = v.GetString("default-system-prompt")
	}
	if v.IsSet("store") {
		s.Store = v.GetString("store")
	}
	if v.IsSet("state-dir") {
		s.StateDir = v.GetString("state-dir")
	}
	if v.IsSet("timeout") {
		s.Timeout = v.GetDuration("timeout")
	}
	if v.IsSet("use-rag") {
		s.UseRAG = v.GetBool("use-rag")
	}
	if v.IsSet("watch-extensions") {
		s.WatchExtensions = v.GetStringSlice("watch-extensions")
	}

	s.StateDir = expandHome(s.StateDir)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	u, err := url.Parse(s.APIURL)
	if err != nil {
		return errors.Wrapf(err, "invalid api-url %q", s.APIURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return errors.Errorf("invalid api-url %q (should be http(s)://host[:port])", s.APIURL)
	}
	if strings.TrimSpace(s.Model) == "" {
		return errors.New("model must not be empty")
	}
	switch s.Store {
	case kvstore.BackendFile, kvstore.BackendSQLite, kvstore.BackendMemory:
	default:
		return errors.Errorf("unknown store %q (should be file, sqlite or memory)", s.Store)
	}
	if s.Store != kvstore.BackendMemory && s.StateDir == "" {
		return errors.New("state-dir must be set for persistent stores")
	}
	if s.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
