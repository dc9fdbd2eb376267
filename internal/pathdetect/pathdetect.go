// Package pathdetect finds references to local files in free-form prompt
// text and rewrites them as markdown links once the files are uploaded.
package pathdetect

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxUploadBytes is the size at and above which a file is handled
// locally instead of being uploaded.
const DefaultMaxUploadBytes int64 = 10 << 20

// HandlingOption is the user's choice for detected paths.
type HandlingOption int

const (
	// Upload sends the files to the agent and substitutes their URLs.
	Upload HandlingOption = iota
	// ProcessLocally leaves the prompt untouched.
	ProcessLocally
	// Cancel aborts the request.
	Cancel
)

func (o HandlingOption) String() string {
	switch o {
	case Upload:
		return "upload"
	case ProcessLocally:
		return "process locally"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

var (
	urlPattern = regexp.MustCompile(`https?://[\w./?\-%&=#:+~]+`)

	// The leading group anchors a candidate at the start of input or after a
	// separator so "./a" is not also read as "/a".
	pathPattern = regexp.MustCompile(`(?:^|[\s'"(\[<,;=])` +
		`((?:[A-Za-z]:\\[\w.\-\\]+)|(?:~/[\w.\-/]+)|(?:\.\.?/[\w.\-/]+)|(?:/[\w.\-/]+))`)
)

// Detected is one local file reference found in input.
type Detected struct {
	// Written is the reference as it appears in the input.
	Written string
	// Path is the resolved filesystem path.
	Path string
}

// Detector resolves relative and home paths against BaseDir and HomeDir.
type Detector struct {
	BaseDir string
	HomeDir string
}

// NewDetector returns a Detector rooted at the working directory and the
// user's home directory.
func NewDetector() Detector {
	wd, _ := os.Getwd()
	home, _ := os.UserHomeDir()
	return Detector{BaseDir: wd, HomeDir: home}
}

// Detect returns the references in input that name existing regular
// files, in encounter order without duplicates. URLs are ignored.
func (d Detector) Detect(input string) []Detected {
	var found []Detected
	seen := make(map[string]bool)
	for _, written := range candidates(input) {
		if seen[written] {
			continue
		}
		resolved, ok := d.resolve(written)
		if !ok {
			continue
		}
		if info, err := os.Stat(resolved); err != nil || !info.Mode().IsRegular() {
			continue
		}
		seen[written] = true
		found = append(found, Detected{Written: written, Path: resolved})
	}
	return found
}

func (d Detector) resolve(written string) (string, bool) {
	switch {
	case strings.HasPrefix(written, "~/"):
		if d.HomeDir == "" {
			return "", false
		}
		return filepath.Join(d.HomeDir, written[2:]), true
	case strings.HasPrefix(written, "./"), strings.HasPrefix(written, "../"):
		return filepath.Join(d.BaseDir, written), true
	default:
		return written, true
	}
}

// candidates lists path-shaped substrings of input after blanking URLs.
// Trailing sentence punctuation is dropped.
func candidates(input string) []string {
	blanked := urlPattern.ReplaceAllStringFunc(input, func(u string) string {
		return strings.Repeat(" ", len(u))
	})

	var out []string
	for _, m := range pathPattern.FindAllStringSubmatch(blanked, -1) {
		c := strings.TrimRight(m[1], ".")
		if len(c) > 1 && !strings.HasSuffix(c, "/") {
			out = append(out, c)
		}
	}
	return out
}

// Replacement maps a written reference to its uploaded URL.
type Replacement struct {
	Written string
	URL     string
}

// Substitute replaces every occurrence of each written reference with
// "[basename](url)". Occurrences are rewritten from the end of input so
// earlier offsets stay valid. An occurrence overlapping one already
// rewritten is skipped, as is one that is only part of a longer path.
func Substitute(input string, replacements []Replacement) string {
	type span struct {
		start, end int
		link       string
	}
	var spans []span
	for _, r := range replacements {
		if r.Written == "" {
			continue
		}
		link := "[" + baseName(r.Written) + "](" + r.URL + ")"
		for from := 0; from < len(input); {
			i := strings.Index(input[from:], r.Written)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(r.Written)
			if wholePath(input, start, end) {
				spans = append(spans, span{start: start, end: end, link: link})
			}
			from = start + 1
		}
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start > spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	out := input
	limit := len(input) + 1
	for _, s := range spans {
		if s.end > limit {
			continue
		}
		out = out[:s.start] + s.link + out[s.end:]
		limit = s.start
	}
	return out
}

func baseName(written string) string {
	written = strings.ReplaceAll(written, `\`, "/")
	return filepath.Base(written)
}

// ShouldProcessRemotely reports whether path is a regular file smaller
// than maxBytes. A non-positive maxBytes uses DefaultMaxUploadBytes.
func ShouldProcessRemotely(path string, maxBytes int64) bool {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Size() < maxBytes
}

func isPathByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return strings.IndexByte("_.-/\\", b) >= 0
}

// wholePath reports whether input[start:end] is bounded by non-path bytes.
// Trailing dots count as sentence punctuation when nothing path-like
// follows them.
func wholePath(input string, start, end int) bool {
	if start > 0 && isPathByte(input[start-1]) {
		return false
	}
	next := end
	for next < len(input) && input[next] == '.' {
		next++
	}
	return next == len(input) || !isPathByte(input[next])
}
