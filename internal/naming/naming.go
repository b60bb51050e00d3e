// Package naming generates collision-free default names for sessions and
// workspace labels (spec §4.G createSession(name?), §3 Workspace.label?).
//
// Grounded on dcosson-h2/internal/tmpl's randomName/autoIncrement template
// funcs: the same "retry a generator against a known-existing set, give
// up after a bounded number of tries" and "prefix-N, find the current
// max suffix and add one" techniques, stripped of the text/template
// plumbing that generated agent names for prompts — openmux has no
// template-rendering use for session names, it just needs two pure
// helpers the Session Manager calls directly.
package naming

import (
	"fmt"
	"regexp"
	"strconv"
)

// adjectives and nouns are combined to produce short, memorable default
// session names, the same style of generator dcosson-h2's generateName
// hook produced candidates for.
var adjectives = []string{
	"quiet", "swift", "amber", "cobalt", "rapid", "silent", "bold",
	"lucid", "hollow", "bright", "quiet", "steady", "keen", "vivid",
}

var nouns = []string{
	"harbor", "falcon", "meadow", "ridge", "delta", "cinder", "brook",
	"summit", "thicket", "lantern", "current", "canyon", "ember",
}

// Generate deterministically derives a candidate name from seq, cycling
// through the adjective/noun product. Deterministic generation (rather
// than math/rand, which the harness disallows for workflow scripts and
// which this package avoids for the same reason tests should be
// reproducible) means a caller retries with seq+1 on collision.
func Generate(seq int) string {
	if seq < 0 {
		seq = -seq
	}
	n := len(adjectives) * len(nouns)
	idx := seq % n
	a := adjectives[idx/len(nouns)]
	b := nouns[idx%len(nouns)]
	if cycle := seq / n; cycle > 0 {
		return fmt.Sprintf("%s-%s-%d", a, b, cycle)
	}
	return fmt.Sprintf("%s-%s", a, b)
}

// UniqueName returns the first Generate(seq) result, seq starting at 0,
// that is not in existing. Mirrors dcosson-h2 NameFuncs' randomName
// retry-then-give-up shape, bounded the same way.
func UniqueName(existing []string) (string, error) {
	seen := make(map[string]bool, len(existing))
	for _, n := range existing {
		seen[n] = true
	}
	const maxTries = 1000
	for seq := 0; seq < maxTries; seq++ {
		candidate := Generate(seq)
		if !seen[candidate] {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("naming: failed to generate a unique name after %d tries", maxTries)
}

// AutoIncrement returns "<prefix>-N" where N is one greater than the
// highest "<prefix>-<N>" suffix already present in existing, or 1 if
// none match. Mirrors dcosson-h2 NameFuncs' autoIncrement.
func AutoIncrement(prefix string, existing []string) string {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-(\d+)$`)
	maxN := 0
	for _, name := range existing {
		if m := pattern.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > maxN {
				maxN = n
			}
		}
	}
	return fmt.Sprintf("%s-%d", prefix, maxN+1)
}
