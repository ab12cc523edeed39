package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// openers maps GOOS to the command that hands a URL to the desktop's default browser.
var openers = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"freebsd": {"xdg-open"},
	"windows": {"rundll32", "url.dll,FileProtocolHandler"},
}

// IsMac reports whether the host OS is macOS.
func IsMac() bool {
	return getRuntime() == "darwin"
}

// OpenBrowser starts the default system browser on url without waiting for it to exit.
func OpenBrowser(url string) error {
	rt := getRuntime()
	opener, ok := openers[rt]
	if !ok {
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	args := append(opener[1:len(opener):len(opener)], url)
	if err := exec.Command(opener[0], args...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
