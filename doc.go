// Package gopwsh drives a long-lived PowerShell console as a reusable
// session: commands are written to the console's stdin one at a time,
// and the library infers when each command's output has finished
// arriving, since the console gives no explicit completion marker.
//
// # Sessions
//
// Open a session once and reuse it for any number of commands:
//
//	ps, err := gopwsh.OpenSession()
//	if err != nil {
//	    // PowerShell is not installed or could not be started
//	}
//	defer ps.Close()
//
//	resp, err := ps.Execute("Get-Date")
//	fmt.Println(resp.Output)
//
// A session owns exactly one PowerShell process plus its stream
// wrappers. Commands on one session must be serialized by the caller:
// the engine runs one command at a time against the shared pipes and
// provides no internal queuing.
//
// # Completion detection
//
// PowerShell emits no end-of-command marker, so interactive commands
// are considered finished when the output stream stays idle through a
// short poll and one longer settle wait. Scripts avoid the heuristic
// entirely: the runner stages them into a temp file with a trailing
// sentinel line and reads until the sentinel arrives.
//
// Commands that produce no output at all would otherwise stall the
// detector until the deadline. Append a dummy statement so there is
// something to observe:
//
//	ps.Execute(`$ErrorActionPreference = "Stop"` + "\n" +
//	    `Write-Output "` + gopwsh.EndCommandString + `"`)
//
// # Failure model
//
// Mechanism failures never surface as errors from Execute: a timeout
// or stream fault is reported through the Response flags so batch
// callers can inspect outcomes without error handling. Only three
// conditions are returned as errors: ErrSessionClosed (command after
// Close), ErrProcessUnavailable (session could not be created), and
// *ScriptFault (a structured error payload on the error channel, when
// fault promotion is enabled via Config.PromoteFaults).
package gopwsh
