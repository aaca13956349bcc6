// Package fingerprint derives stable deduplication keys from captured
// errors. Two occurrences of the same logical fault must collide to one
// fingerprint even when they were raised at different call depths or from
// binaries built in different directories, so stack traces are normalized
// (line/column numbers and absolute paths stripped) before hashing.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/errsight/errsight/internal/types"
)

const (
	// Length is the fixed fingerprint length in hex characters. Bounding
	// the key length bounds per-entry memory in the cache and queue even
	// when an attacker controls stack content.
	Length = 16

	// maxStackBytes caps how much raw stack text is considered. Anything
	// beyond this is ignored rather than hashed.
	maxStackBytes = 16 * 1024

	// maxStackFrames caps how many stack lines contribute to the hash.
	maxStackFrames = 64
)

var (
	// lineColRe strips trailing :line and :line:col markers from frames.
	lineColRe = regexp.MustCompile(`:\d+(:\d+)?`)

	// absPathRe collapses absolute paths down to their final element so
	// builds from different checkouts still collide.
	absPathRe = regexp.MustCompile(`(?:[A-Za-z]:)?(?:[\\/][\w.@~-]+)+[\\/]`)

	// addrRe strips hex addresses and offsets (0x4a2f10, +0x1b) that vary
	// run to run.
	addrRe = regexp.MustCompile(`\+?0x[0-9a-fA-F]+`)
)

// Fingerprint derives the dedup key for a captured error. It never fails:
// if anything goes wrong while normalizing the stack, it falls back to a
// degraded fingerprint built only from name+message+code, never from raw
// stack content.
func Fingerprint(e types.CapturedError) (fp string) {
	defer func() {
		if r := recover(); r != nil {
			fp = digest(e.Name, e.Message, e.Code)
		}
	}()

	msg := normalizeMessage(e.Message)
	if e.Stack == "" {
		return digest(e.Name, msg, e.Code)
	}
	return digest(e.Name, msg, e.Code, normalizeStack(e.Stack))
}

// digest hashes the given identity parts into a fixed-length hex string.
func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0}) // field separator so ("ab","c") != ("a","bc")
	}
	return hex.EncodeToString(h.Sum(nil))[:Length]
}

// normalizeMessage removes message content that varies between occurrences
// of the same logical fault: embedded line/col markers and hex addresses.
func normalizeMessage(msg string) string {
	msg = addrRe.ReplaceAllString(msg, "0x?")
	msg = lineColRe.ReplaceAllString(msg, "")
	return strings.TrimSpace(msg)
}

// normalizeStack reduces a raw stack trace to its structural shape: at most
// maxStackFrames frames, each with line/column numbers, absolute path
// prefixes, and hex addresses removed.
func normalizeStack(stack string) string {
	if len(stack) > maxStackBytes {
		stack = stack[:maxStackBytes]
	}

	lines := strings.Split(stack, "\n")
	frames := make([]string, 0, min(len(lines), maxStackFrames))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = addrRe.ReplaceAllString(line, "")
		line = absPathRe.ReplaceAllString(line, "")
		line = lineColRe.ReplaceAllString(line, "")
		frames = append(frames, line)
		if len(frames) >= maxStackFrames {
			break
		}
	}
	return strings.Join(frames, "\n")
}
