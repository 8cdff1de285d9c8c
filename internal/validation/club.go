package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var clubSlugRegex = regexp.MustCompile(`^[a-z0-9-]{3,64}$`)

var reservedClubSlugs = map[string]struct{}{
	"admin":    {},
	"api":      {},
	"auth":     {},
	"clubs":    {},
	"c":        {},
	"entities": {},
	"users":    {},
	"tiers":    {},
	"settings": {},
	"swagger":  {},
	"metrics":  {},
	"login":    {},
	"signup":   {},
}

// ValidateClubSlug validates club slug format and reserved names.
func ValidateClubSlug(slug string) error {
	if !clubSlugRegex.MatchString(slug) {
		return fmt.Errorf("slug must be 3-64 characters and contain only lowercase letters, numbers, and hyphens")
	}

	if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		return fmt.Errorf("slug cannot start or end with a hyphen")
	}

	if _, exists := reservedClubSlugs[slug]; exists {
		return fmt.Errorf("slug is reserved")
	}

	return nil
}

// ValidateClubName checks display-name constraints shared by create and update.
func ValidateClubName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > 120 {
		return fmt.Errorf("name must be at most 120 characters")
	}
	return nil
}
