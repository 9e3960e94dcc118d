// Package security provides shared validation for markup produced by section
// components: allowed tags, attribute names and URL values.
package security

import (
	"fmt"
	"net/url"
	"strings"
)

// urlAttributes carry a URL and are checked with ValidateLinkURL.
var urlAttributes = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"poster":     true,
	"cite":       true,
	"srcset":     true,
}

// allowedTags is the set of elements a component may construct.
var allowedTags = map[string]bool{}

func init() {
	for _, tag := range strings.Fields(`
		a abbr article aside b blockquote br button caption cite code col colgroup
		dd del details dfn div dl dt em figcaption figure footer h1 h2 h3 h4 h5 h6
		header hr i img ins kbd label li main mark nav ol p picture pre q s samp
		section small source span strong sub summary sup table tbody td tfoot th
		thead time tr u ul var`) {
		allowedTags[tag] = true
	}
}

// AllowedTag reports whether a component may construct an element with tag.
func AllowedTag(tag string) bool {
	return allowedTags[strings.ToLower(tag)]
}

// ValidateTag returns an error for tags outside the allow-list.
func ValidateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("element tag must not be empty")
	}
	if !AllowedTag(tag) {
		return fmt.Errorf("element <%s> is not allowed", tag)
	}
	return nil
}

// ValidateAttribute checks one attribute of a component-built element.
// Event handler attributes are rejected outright and URL-bearing attributes
// must pass ValidateLinkURL.
func ValidateAttribute(name, value string) error {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return fmt.Errorf("attribute name must not be empty")
	}
	if strings.HasPrefix(lower, "on") {
		return fmt.Errorf("event handler attribute %q is not allowed", name)
	}
	if strings.ContainsAny(lower, " \"'<>/=") {
		return fmt.Errorf("invalid attribute name %q", name)
	}
	if lower == "style" {
		return ValidateStyle(value)
	}
	if urlAttributes[lower] {
		if lower == "srcset" {
			for _, candidate := range strings.Split(value, ",") {
				fields := strings.Fields(candidate)
				if len(fields) == 0 {
					continue
				}
				if err := ValidateLinkURL(fields[0]); err != nil {
					return fmt.Errorf("attribute %s: %w", name, err)
				}
			}
			return nil
		}
		if err := ValidateLinkURL(value); err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
	}
	return nil
}

// ValidateLinkURL accepts relative references, fragments and absolute URLs
// with the http, https, mailto or tel schemes. data: URLs are only accepted
// for raster images.
func ValidateLinkURL(rawURL string) error {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil
	}
	// Browsers ignore embedded control characters and whitespace in schemes.
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == ' ' {
			return -1
		}
		return r
	}, trimmed)

	parsed, err := url.Parse(cleaned)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "", "http", "https", "mailto", "tel":
		return nil
	case "data":
		lower := strings.ToLower(parsed.Opaque)
		for _, prefix := range []string{"image/png", "image/jpeg", "image/gif", "image/webp"} {
			if strings.HasPrefix(lower, prefix) {
				return nil
			}
		}
		return fmt.Errorf("data URLs are only allowed for images")
	default:
		return fmt.Errorf("URL scheme %q is not allowed", parsed.Scheme)
	}
}

// ValidateStyle rejects inline styles that can execute script or load
// external resources through legacy CSS features.
func ValidateStyle(style string) error {
	lower := strings.ToLower(style)
	for _, bad := range []string{"expression(", "javascript:", "vbscript:", "-moz-binding", "behavior:", "@import"} {
		if strings.Contains(lower, bad) {
			return fmt.Errorf("style contains disallowed %q", strings.TrimSuffix(bad, "("))
		}
	}
	if strings.Contains(lower, "url(") {
		return fmt.Errorf("style must not reference external resources with url()")
	}
	return nil
}
