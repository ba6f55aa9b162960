//go:build !darwin

package config

import "fmt"

// Without a system keychain, secrets live in a 0600 JSON file keyed by
// service and then account.
type secretsFile map[string]map[string]string

func secretsFilePath() string { return xdgPath("XDG_DATA_HOME", ".local/share", "secrets.json") }

func secretGet(service, account string) (string, error) {
	var s secretsFile
	if err := readJSONFile(secretsFilePath(), &s); err != nil {
		return "", fmt.Errorf("reading secrets: %w", err)
	}
	v, ok := s[service][account]
	if !ok {
		return "", fmt.Errorf("secret %s/%s not found", service, account)
	}
	return v, nil
}

func secretSet(service, account, value string) error {
	p := secretsFilePath()
	s := secretsFile{}
	if err := readJSONFile(p, &s); err != nil {
		return fmt.Errorf("reading secrets: %w", err)
	}
	if s == nil {
		s = secretsFile{}
	}
	if s[service] == nil {
		s[service] = map[string]string{}
	}
	s[service][account] = value
	return writeJSONFile(p, s)
}
