package terminal

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// controlSeq matches the escape sequences an interactive shell interleaves
// with output even on a dumb terminal: CSI sequences, OSC title strings and
// charset selections. They are stripped, never interpreted; this package
// does no terminal emulation.
var controlSeq = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)|\x1b[()][0-9A-Za-z]`)

// Normalize reduces a raw PTY capture to the output a caller cares about.
//
// The pass is heuristic by nature (prompt formats vary across shells and
// rc files) and deliberately simple: split into lines, drop lines that are
// blank after trimming, drop the echoed command, drop lines that end with
// a rune from terminators (a trailing shell prompt), join the rest. If
// everything was stripped the raw trimmed capture is returned instead, so
// a command that did produce output never yields a silently empty result.
func Normalize(raw, command, terminators string) string {
	if terminators == "" {
		terminators = DefaultConfig().PromptTerminators
	}

	text := controlSeq.ReplaceAllString(raw, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "")

	echoed := strings.TrimSpace(command)

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == echoed {
			continue
		}
		if isPromptLine(line, terminators) {
			continue
		}
		kept = append(kept, line)
	}

	if len(kept) == 0 {
		return strings.TrimSpace(text)
	}
	return strings.Join(kept, "\n")
}

// isPromptLine reports whether a trimmed line looks like a shell prompt:
// its last rune is one of the configured terminators.
func isPromptLine(line, terminators string) bool {
	last, _ := utf8.DecodeLastRuneInString(line)
	return last != utf8.RuneError && strings.ContainsRune(terminators, last)
}
