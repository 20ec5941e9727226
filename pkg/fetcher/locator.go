// Package fetcher resolves component locators, downloading and verifying
// remote modules against the registry manifest contract.
package fetcher

import (
	"fmt"
	"strings"

	"github.com/davidthor/pypes/pkg/errors"
)

// RemoteScheme prefixes registry-hosted component locators.
const RemoteScheme = "remote://"

// Locator is a parsed remote component reference.
type Locator struct {
	// Host is the registry host, optionally with a port.
	Host string

	// Name is the component name.
	Name string

	// Version is the requested version.
	Version string
}

// IsRemote reports whether the locator string references the remote registry.
func IsRemote(uri string) bool {
	return strings.HasPrefix(uri, RemoteScheme)
}

// ParseLocator parses remote://<host>[:port]/<name>@<version>.
func ParseLocator(uri string) (Locator, error) {
	if !IsRemote(uri) {
		return Locator{}, errors.New(errors.ErrCodeBadURI,
			fmt.Sprintf("invalid remote URI: %s", uri))
	}

	rest := strings.TrimPrefix(uri, RemoteScheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Locator{}, errors.New(errors.ErrCodeBadURI,
			fmt.Sprintf("invalid URI format, expected remote://host/name@version: %s", uri))
	}

	spec := strings.Split(parts[1], "@")
	if len(spec) != 2 || spec[0] == "" || spec[1] == "" {
		return Locator{}, errors.New(errors.ErrCodeBadURI,
			fmt.Sprintf("invalid component spec, expected name@version: %s", parts[1]))
	}

	return Locator{Host: parts[0], Name: spec[0], Version: spec[1]}, nil
}

// BaseURL returns the registry URL prefix for this locator. Hosts starting
// with "localhost" are served over plain http.
func (l Locator) BaseURL() string {
	scheme := "https"
	if strings.HasPrefix(l.Host, "localhost") {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, l.Host, l.Name, l.Version)
}

// String renders the locator back to remote:// form.
func (l Locator) String() string {
	return fmt.Sprintf("%s%s/%s@%s", RemoteScheme, l.Host, l.Name, l.Version)
}
