package paths

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the euiccctl state directory when set.
const HomeEnv = "EUICCCTL_HOME"

func home() string {
	h, _ := os.UserHomeDir()
	return h
}

// Dir returns ~/.euiccctl, or $EUICCCTL_HOME when set.
func Dir() string {
	if d := os.Getenv(HomeEnv); d != "" {
		return d
	}
	return filepath.Join(home(), ".euiccctl")
}

// ConfigFile returns ~/.euiccctl/config.yaml.
func ConfigFile() string {
	return filepath.Join(Dir(), "config.yaml")
}

// LogFile returns ~/.euiccctl/euiccctl.log.
func LogFile() string {
	return filepath.Join(Dir(), "euiccctl.log")
}
