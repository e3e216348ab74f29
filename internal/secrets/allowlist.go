package secrets

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// ErrInvalidAllowList is returned for an allow list file that does not
// parse or carries an invalid pattern.
var ErrInvalidAllowList = errors.New("invalid allow list")

// LoadAllowList reads content patterns from a TOML file of the form
//
//	[allowlist]
//	regexes = ['changeme', 'example-password']
//
// A missing file yields an empty list.
func LoadAllowList(path string) ([]string, error) {
	var doc struct {
		Allowlist struct {
			Regexes []string `toml:"regexes"`
		} `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAllowList, path, err)
	}
	for i, p := range doc.Allowlist.Regexes {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: %s: regexes[%d]: %v", ErrInvalidAllowList, path, i, err)
		}
	}
	return doc.Allowlist.Regexes, nil
}
