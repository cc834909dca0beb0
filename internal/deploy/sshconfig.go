package deploy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SSHConfig holds the settings parsed from ssh_config for one host.
type SSHConfig struct {
	Host          string
	HostName      string
	User          string
	IdentityFile  string
	IdentityAgent string
	Port          string
}

// ParseSSHConfig reads ~/.ssh/config and returns the settings for host.
// A missing config file or an unmatched host both return nil without
// error.
func ParseSSHConfig(host string) (*SSHConfig, error) {
	return ParseSSHConfigFrom(host, "")
}

// ParseSSHConfigFrom is ParseSSHConfig reading an explicit config path.
// An empty path means ~/.ssh/config.
func ParseSSHConfigFrom(host, configPath string) (*SSHConfig, error) {
	// HOME takes precedence so tests can point at a scratch directory.
	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		homeDir, _ = os.UserHomeDir()
	}
	if configPath == "" {
		if homeDir == "" {
			return nil, fmt.Errorf("cannot locate home directory for ~/.ssh/config")
		}
		configPath = filepath.Join(homeDir, ".ssh", "config")
	}

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ssh config: %w", err)
	}
	defer file.Close()

	return parseSSHConfig(host, file, homeDir)
}

// parseSSHConfig scans an ssh_config stream for the first Host block
// matching host. Only the keywords the deploy tool uses are kept.
func parseSSHConfig(host string, r io.Reader, homeDir string) (*SSHConfig, error) {
	config := &SSHConfig{Host: host}
	inBlock := false
	matched := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		keyword := strings.ToLower(fields[0])
		value := strings.Join(fields[1:], " ")

		if keyword == "host" {
			// A new Host line ends the block we were collecting.
			if inBlock {
				return config, nil
			}
			inBlock = MatchHost(host, fields[1:]...)
			if inBlock {
				matched = true
			}
			continue
		}

		if !inBlock {
			continue
		}

		switch keyword {
		case "hostname":
			config.HostName = value
		case "user":
			config.User = value
		case "port":
			config.Port = value
		case "identityfile":
			config.IdentityFile = expandTilde(value, homeDir)
		case "identityagent":
			config.IdentityAgent = expandTilde(strings.Trim(value, `"`), homeDir)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ssh config: %w", err)
	}

	if !matched {
		return nil, nil
	}
	return config, nil
}

// expandTilde rewrites a leading ~/ against the home directory.
func expandTilde(value, homeDir string) string {
	if strings.HasPrefix(value, "~/") && homeDir != "" {
		return filepath.Join(homeDir, value[2:])
	}
	return value
}

// MatchHost reports whether target matches any of the ssh_config host
// patterns. Patterns may use the * and ? wildcards; a matching pattern
// prefixed with ! rejects the whole line, as in ssh_config(5).
func MatchHost(target string, patterns ...string) bool {
	matched := false
	for _, pattern := range patterns {
		negate := strings.HasPrefix(pattern, "!")
		if negate {
			pattern = pattern[1:]
		}
		ok, err := path.Match(pattern, target)
		if err != nil || !ok {
			continue
		}
		if negate {
			return false
		}
		matched = true
	}
	return matched
}

// ResolveSSHTarget resolves connection details for target, merging the
// user@host syntax, command-line overrides, and ~/.ssh/config in that
// order of preference. It returns host, user, key path, and identity
// agent.
func ResolveSSHTarget(target, user, keyPath string) (string, string, string, string, error) {
	targetHost := target
	targetUser := user
	if strings.Contains(target, "@") {
		parts := strings.SplitN(target, "@", 2)
		targetUser = parts[0]
		targetHost = parts[1]
	}

	config, err := ParseSSHConfig(targetHost)
	if err != nil {
		return "", "", "", "", fmt.Errorf("parse ssh config: %w", err)
	}
	if config == nil {
		return targetHost, targetUser, keyPath, "", nil
	}

	host := targetHost
	if config.HostName != "" {
		host = config.HostName
	}
	if targetUser == "" {
		targetUser = config.User
	}
	if keyPath == "" {
		keyPath = config.IdentityFile
	}
	return host, targetUser, keyPath, config.IdentityAgent, nil
}
