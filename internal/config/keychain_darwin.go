//go:build darwin

package config

import (
	"fmt"
	"os/exec"
)

// secretGet reads a generic password from the login keychain.
func secretGet(service, account string) (string, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w").Output()
	if err != nil {
		return "", fmt.Errorf("keychain lookup %s/%s: %w", service, account, err)
	}
	return string(out), nil
}

// secretSet creates or updates (-U) a generic password.
func secretSet(service, account, value string) error {
	out, err := exec.Command("security", "add-generic-password", "-U", "-s", service, "-a", account, "-w", value).CombinedOutput()
	if err != nil {
		return fmt.Errorf("keychain write %s/%s: %w: %s", service, account, err, out)
	}
	return nil
}
