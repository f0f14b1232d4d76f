package commands

import (
	"os"

	"nrsr-backend/lib/configutil"
)

type StoreConfig struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type EmailConfig struct {
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

type Config struct {
	Store StoreConfig `json:"store"`
	// path of the page cache database
	Cache string `json:"cache"`
	// directory run log files are written into
	LogDir string `json:"log_dir"`
	// json5 file mapping misspelled transcript names to canonical ones
	NameCorrectionsFile string `json:"name_corrections_file"`
	// failed runs are reported here, optional
	Email EmailConfig `json:"email"`
}

func readConfig() (Config, error) {
	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		return Config{}, err
	}
	if config.Cache == "" {
		config.Cache = "webcache.db"
	}
	if config.LogDir == "" {
		config.LogDir = "logs"
	}
	return config, nil
}

func readNameCorrections(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	corrections, err := configutil.ReadConfig[map[string]string](path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return corrections, err
}
