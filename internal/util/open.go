package util

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// openCommand returns the platform command that hands target to the
// desktop's default handler.
func openCommand(goos, target string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{target}, nil
	case "linux", "freebsd", "openbsd":
		return "xdg-open", []string{target}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform %s", goos)
	}
}

// OpenURL opens an http(s) or mailto link with the user's default handler.
// It is used for manual_required outcomes the user chooses to finish by hand.
func OpenURL(target string) error {
	// Validate URL scheme to prevent command injection
	lower := strings.ToLower(strings.TrimSpace(target))
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") && !strings.HasPrefix(lower, "mailto:") {
		return fmt.Errorf("refusing to open URL with unsupported scheme: %s", target)
	}
	cmd, args, err := openCommand(runtime.GOOS, strings.TrimSpace(target))
	if err != nil {
		return err
	}
	return exec.Command(cmd, args...).Start()
}
