package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/blang/semver/v4"
)

// Version is a device firmware version such as "7.0(3)I7(4)" or its dotted
// form "7.0.3.I7.4". The leading numeric release is compared as semver; the
// remaining train segments are compared by letter prefix, then numerically,
// so I10 is newer than I7.
type Version struct {
	raw     string
	release semver.Version
	train   []segment
}

type segment struct {
	prefix string
	num    int
	rest   string
}

var segmentRe = regexp.MustCompile(`^([A-Za-z]*)(\d*)(.*)$`)

// ParseVersion normalizes parentheses to dots and splits the result into
// the numeric release and the train segments.
func ParseVersion(s string) (Version, error) {
	norm := strings.NewReplacer("(", ".", ")", ".").Replace(strings.TrimSpace(s))
	var parts []string
	for _, p := range strings.Split(norm, ".") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return Version{}, fmt.Errorf("empty version %q", s)
	}

	var release []string
	for len(parts) > 0 && len(release) < 3 && isDigits(parts[0]) {
		release = append(release, parts[0])
		parts = parts[1:]
	}
	if len(release) == 0 {
		return Version{}, fmt.Errorf("version %q has no numeric release", s)
	}
	sv, err := semver.ParseTolerant(strings.Join(release, "."))
	if err != nil {
		return Version{}, fmt.Errorf("version %q: %w", s, err)
	}

	v := Version{raw: s, release: sv}
	for _, p := range parts {
		m := segmentRe.FindStringSubmatch(p)
		seg := segment{prefix: strings.ToUpper(m[1]), rest: m[3]}
		if m[2] != "" {
			seg.num, _ = strconv.Atoi(m[2])
		}
		v.train = append(v.train, seg)
	}
	return v, nil
}

// String returns the version as given.
func (v Version) String() string { return v.raw }

// Compare returns -1, 0 or 1 as v is older than, equal to, or newer than o.
func (v Version) Compare(o Version) int {
	if c := v.release.Compare(o.release); c != 0 {
		return c
	}
	for i := 0; i < len(v.train) && i < len(o.train); i++ {
		if c := v.train[i].compare(o.train[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(v.train) < len(o.train):
		return -1
	case len(v.train) > len(o.train):
		return 1
	}
	return 0
}

func (s segment) compare(o segment) int {
	if c := strings.Compare(s.prefix, o.prefix); c != 0 {
		return c
	}
	switch {
	case s.num < o.num:
		return -1
	case s.num > o.num:
		return 1
	}
	return strings.Compare(s.rest, o.rest)
}

// Older reports whether version is strictly older than threshold.
func Older(version, threshold string) (bool, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return false, err
	}
	t, err := ParseVersion(threshold)
	if err != nil {
		return false, err
	}
	return v.Compare(t) < 0, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
