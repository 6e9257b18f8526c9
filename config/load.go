package config

import (
	"ddnsguard/common"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix names service-level environment overrides, e.g. DDNSGUARD_REFRESH_RATE.
const EnvPrefix = "DDNSGUARD_"

// Load reads the config file at path. The decoder is picked by file extension.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	return Decode(f, filepath.Ext(path))
}

func Decode(r io.Reader, ext string) (conf Config, err error) {
	switch strings.ToLower(ext) {
	case ".toml":
		err = toml.NewDecoder(r).Decode(&conf)
	case ".yaml", ".yml":
		err = yaml.NewDecoder(r).Decode(&conf)
	case ".json":
		err = json.NewDecoder(r).Decode(&conf)
	default:
		err = fmt.Errorf("unsupported config format %q", ext)
	}

	return
}

// ApplyEnv overlays environment variables onto conf. Variables named
// <PROVIDER>_<KEY>, e.g. CLOUDFLARE_API_TOKEN, set key "api_token" of the
// provider config map. DDNSGUARD_REFRESH_RATE overrides the refresh rate.
func ApplyEnv(conf *Config, environ []string) error {
	providerPrefix := ""
	if conf.Provider.Type != "" {
		providerPrefix = strings.ToUpper(conf.Provider.Type) + "_"
	}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}

		switch {
		case key == EnvPrefix+"REFRESH_RATE":
			var d common.Duration
			if err := d.UnmarshalText([]byte(value)); err != nil {
				return fmt.Errorf("bad %s: %w", key, err)
			}
			conf.Service.RefreshRate = &d

		case providerPrefix != "" && strings.HasPrefix(key, providerPrefix):
			name := strings.ToLower(strings.TrimPrefix(key, providerPrefix))
			if name == "" {
				continue
			}
			if conf.Provider.Config == nil {
				conf.Provider.Config = map[string]any{}
			}
			conf.Provider.Config[name] = value
		}
	}

	return nil
}
