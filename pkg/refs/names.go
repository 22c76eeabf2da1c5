package refs

import (
	"fmt"
	"strings"
)

// Well-known names.
const (
	HEAD          = "HEAD"
	HeadsPrefix   = "refs/heads/"
	TagsPrefix    = "refs/tags/"
	RemotesPrefix = "refs/remotes/"
	Stash         = "refs/stash"
)

// ValidateName checks name against git's check-ref-format rules. Accepted
// names are HEAD-like pseudo refs (upper case and underscores, such as
// ORIG_HEAD) and names under refs/.
func ValidateName(name string) error {
	if isPseudoRef(name) {
		return nil
	}
	if !strings.HasPrefix(name, "refs/") {
		return fmt.Errorf("%w: %q is not under refs/", ErrInvalidName, name)
	}
	if name == "@" || strings.Contains(name, "@{") {
		return fmt.Errorf("%w: %q contains @{", ErrInvalidName, name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q contains ..", ErrInvalidName, name)
	}
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("%w: %q ends with / or .", ErrInvalidName, name)
	}
	for _, c := range name {
		if c < 0x20 || c == 0x7f || strings.ContainsRune(" ~^:?*[\\", c) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, c)
		}
	}
	for _, comp := range strings.Split(name, "/") {
		switch {
		case comp == "":
			return fmt.Errorf("%w: %q has an empty component", ErrInvalidName, name)
		case strings.HasPrefix(comp, "."):
			return fmt.Errorf("%w: component %q starts with .", ErrInvalidName, comp)
		case strings.HasSuffix(comp, ".lock"):
			return fmt.Errorf("%w: component %q ends with .lock", ErrInvalidName, comp)
		}
	}
	return nil
}

func isPseudoRef(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if (c < 'A' || c > 'Z') && c != '_' {
			return false
		}
	}
	return strings.HasSuffix(name, "HEAD")
}

// BranchName returns the short name of a refs/heads/ ref, or "" if name is
// not a branch.
func BranchName(name string) string {
	if !strings.HasPrefix(name, HeadsPrefix) {
		return ""
	}
	return strings.TrimPrefix(name, HeadsPrefix)
}
