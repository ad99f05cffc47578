package plugin

import (
	"fmt"
	"os/exec"
	"strings"
)

// RunAppleScript runs script with osascript. It is meant for plugins
// driving macOS.
func RunAppleScript(script string) error {
	output, err := exec.Command("osascript", "-e", script).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// QuoteAppleScript returns s as an AppleScript string literal.
func QuoteAppleScript(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
