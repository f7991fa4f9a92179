package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section.
var knownKeys = map[string][]string{
	"dropbox":     {"app_key", "app_secret"},
	"upload":      {"dropbox_path", "temp_dir", "write_mode"},
	"credentials": {"keychain", "keychain_password", "redirect_port", "store"},
	"logging":     {"log_level"},
}

// knownSections is the sorted list of section names. Sorted for
// deterministic suggestions when two candidates have the same edit distance.
var knownSections = func() []string {
	names := make([]string, 0, len(knownKeys))
	for name := range knownKeys {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}()

// sectionOf maps each leaf key to its section, for keys placed at the top
// level by mistake.
var sectionOf = func() map[string]string {
	m := make(map[string]string)
	for section, keys := range knownKeys {
		for _, k := range keys {
			m[k] = section
		}
	}

	return m
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	reported := make(map[string]bool)

	for _, key := range undecoded {
		if len(key) == 0 || reported[key[0]] {
			continue
		}

		section := key[0]

		if _, ok := knownKeys[section]; !ok {
			reported[section] = true
			errs = append(errs, buildTopLevelError(section))

			continue
		}

		if len(key) > 1 {
			errs = append(errs, buildSectionKeyError(section, key[1]))
		}
	}

	return errors.Join(errs...)
}

// buildTopLevelError describes an unknown top-level key or section.
func buildTopLevelError(name string) error {
	if section, ok := sectionOf[name]; ok {
		return fmt.Errorf("unknown config key %q, it belongs in the [%s] section", name, section)
	}

	if suggestion := closestMatch(name, knownSections); suggestion != "" {
		return fmt.Errorf("unknown config section %q, did you mean %q?", name, suggestion)
	}

	return fmt.Errorf("unknown config section %q", name)
}

// buildSectionKeyError describes an unknown key inside a known section.
func buildSectionKeyError(section, name string) error {
	if suggestion := closestMatch(name, knownKeys[section]); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s], did you mean %q?", name, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s] (valid keys: %s)",
		name, section, strings.Join(knownKeys[section], ", "))
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 0; i < len(a); i++ {
		curr[0] = i + 1

		for j := 0; j < len(b); j++ {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
