package analyzer

import (
	"os"
	"regexp"

	"emperror.dev/errors"
)

// AutoFixShortTags rewrites legacy short open tags to full tags.
const AutoFixShortTags = "fix_short_tags"

var ErrUnknownAutoFix = errors.New("analyzer: unknown auto-fix action")

var shortTagRewrite = regexp.MustCompile(`<\?(?i:(php)|(=))?`)

// ApplyAutoFix applies a named auto-fix action to the file in place and
// reports whether anything changed.
func (c *Checker) ApplyAutoFix(path, action string) (bool, error) {
	if action != AutoFixShortTags {
		return false, ErrUnknownAutoFix
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return false, errors.Wrap(err, "analyzer: failed to read file for auto-fix")
	}

	fixed := shortTagRewrite.ReplaceAllFunc(content, func(m []byte) []byte {
		// Leave full tags and echo tags alone.
		if len(m) > 2 {
			return m
		}
		return []byte("<?php")
	})

	if string(fixed) == string(content) {
		return false, nil
	}
	if err := os.WriteFile(path, fixed, 0o644); err != nil {
		return false, errors.Wrap(err, "analyzer: failed to write auto-fixed file")
	}
	return true, nil
}
