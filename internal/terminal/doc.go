// Package terminal manages interactive shell sessions backed by
// pseudo-terminals (PTYs).
//
// Each session pairs one shell process with the master side of a PTY pair;
// the slave side is handed to the shell as stdin/stdout/stderr at spawn
// time and released in the parent immediately after. On top of that
// inherently unframed character stream the Manager offers a synchronous
// contract: write one command, accumulate output under a wall-clock bound,
// strip the echo and the trailing prompt, return the rest.
//
// The stream has no message boundaries, no per-command exit codes, and
// fuses stdout with stderr. The Manager does not pretend otherwise: a
// timeout while reading is a normal bounded exit (success with whatever
// was captured, possibly nothing), the reported exit code is a fixed
// placeholder, and prompt stripping is an explicit heuristic kept in a
// pure, separately tested normalization pass.
//
// Lifecycle:
//
//	id, err := mgr.CreateSession("")           // spawn shell on a fresh PTY
//	res, err := mgr.ExecuteCommand(id, "ls", 2*time.Second)
//	mgr.CloseSession(id)                       // SIGTERM, then SIGKILL
//
// Sessions whose shell exits on its own move to the ended state, detected
// on the next ExecuteCommand; their entry stays in the collection until
// CloseSession so callers see "session has ended" rather than "not found".
package terminal
