package cmd

import (
	"os"
	"path/filepath"
	"runtime"
)

// configCandidates lists where a configuration file is looked up, in order.
func configCandidates() []string {
	names := []string{"config.yml", "config.yaml"}
	candidates := []string{}

	for _, n := range names {
		candidates = append(candidates, "./"+n)
	}

	home, _ := os.UserHomeDir()
	if runtime.GOOS == "windows" {
		if appdata := os.Getenv("APPDATA"); appdata != "" {
			for _, n := range names {
				candidates = append(candidates, filepath.Join(appdata, "kmt", n))
			}
		}
		if pd := os.Getenv("PROGRAMDATA"); pd != "" {
			for _, n := range names {
				candidates = append(candidates, filepath.Join(pd, "kmt", n))
			}
		}
		if home != "" {
			for _, n := range names {
				candidates = append(candidates, filepath.Join(home, "kmt", n))
			}
		}
		return candidates
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		for _, n := range names {
			candidates = append(candidates, filepath.Join(xdg, "kmt", n))
		}
	}
	if home != "" {
		for _, n := range names {
			candidates = append(candidates, filepath.Join(home, ".config", "kmt", n))
			candidates = append(candidates, filepath.Join(home, ".kmt", n))
		}
	}
	for _, n := range names {
		candidates = append(candidates, filepath.Join("/etc", "kmt", n))
	}
	return candidates
}

// findConfigPath returns the first existing candidate. When none exists an
// empty ./config.yml is created so edits have somewhere to go.
func findConfigPath() string {
	candidates := configCandidates()
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	createPath := "./config.yml"
	initial := []byte("# kmt configuration\nbrokers: []\n")
	if err := os.WriteFile(createPath, initial, 0o644); err == nil {
		return createPath
	}

	if len(candidates) > 0 {
		return candidates[0]
	}
	return createPath
}
