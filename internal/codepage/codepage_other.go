//go:build !windows

package codepage

import "os"

// Active returns the code page identifier of the current environment,
// derived from the POSIX locale variables.
func Active() string {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		if locale := os.Getenv(key); locale != "" {
			return FromLocale(locale)
		}
	}
	return DefaultIdentifier
}
