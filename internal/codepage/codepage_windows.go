//go:build windows

package codepage

import (
	"strconv"

	"golang.org/x/sys/windows"
)

// Active returns the code page identifier of the current environment,
// taken from the ANSI code page of the running process.
func Active() string {
	if acp := windows.GetACP(); acp != 0 {
		return strconv.FormatUint(uint64(acp), 10)
	}
	return DefaultIdentifier
}
