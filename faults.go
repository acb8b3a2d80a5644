package gopwsh

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrProcessUnavailable means the PowerShell process could not be
	// spawned or exited during bring-up. Fatal to session creation.
	ErrProcessUnavailable = errors.New("powershell is not available")

	// ErrSessionClosed means an operation was attempted on a closed
	// session. Open a new session instead.
	ErrSessionClosed = errors.New("session is already closed")
)

// ScriptFault is a structured error payload recognized on the error
// channel and promoted to a typed error. Promotion only happens when
// Config.PromoteFaults is set; otherwise the payload stays in
// Response.ErrorOutput verbatim.
//
// PowerShell produces such payloads when a caught exception is piped
// through ConvertTo-Json onto stderr:
//
//	Try {
//	    Remove-Item $path -EA Stop
//	}
//	Catch [System.Management.Automation.ItemNotFoundException] {
//	    $_ | ConvertTo-Json -Depth 5 | Write-StdErr
//	}
type ScriptFault struct {
	// Message is the exception message, from Exception.Message.
	Message string

	// Category is the failure category, from CategoryInfo.Reason.
	Category string
}

func (f *ScriptFault) Error() string {
	if f.Category != "" {
		return fmt.Sprintf("script fault (%s): %s", f.Category, f.Message)
	}
	return "script fault: " + f.Message
}

// promoteFault inspects trimmed error-channel text and returns a
// ScriptFault when it is a JSON object carrying at least one of the
// recognized fields. Returns nil for anything else, including JSON
// objects without those fields, which stay plain error text.
func promoteFault(errText string) *ScriptFault {
	if !strings.HasPrefix(errText, "{") || !strings.HasSuffix(errText, "}") {
		return nil
	}
	if !gjson.Valid(errText) {
		return nil
	}
	message := gjson.Get(errText, "Exception.Message")
	category := gjson.Get(errText, "CategoryInfo.Reason")
	if !message.Exists() && !category.Exists() {
		return nil
	}
	return &ScriptFault{Message: message.String(), Category: category.String()}
}
