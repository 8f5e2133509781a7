package common

import "regexp"

// ValidatePattern compiles a rule pattern to confirm it is a usable
// regular expression before a rule version is written.
func ValidatePattern(pattern string) error {
	_, err := regexp.Compile(pattern)
	return err
}
