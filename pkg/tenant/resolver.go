package tenant

import (
	"errors"
	"net/http"
	"strings"
)

// CredentialExtractor pulls the raw credential out of a request.
// An empty string with a nil error means the request carries none.
type CredentialExtractor func(r *http.Request) (string, error)

// BearerExtractor reads the token from an "Authorization: Bearer ..." header.
func BearerExtractor(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", nil
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("authorization header is not a bearer token")
	}
	return strings.TrimSpace(token), nil
}

// HeaderExtractor reads the credential from the named header.
func HeaderExtractor(name string) CredentialExtractor {
	if name == "" {
		name = "X-Api-Key"
	}
	return func(r *http.Request) (string, error) {
		return strings.TrimSpace(r.Header.Get(name)), nil
	}
}

// CookieExtractor reads the credential from the named cookie.
func CookieExtractor(name string) CredentialExtractor {
	return func(r *http.Request) (string, error) {
		c, err := r.Cookie(name)
		if err != nil {
			if errors.Is(err, http.ErrNoCookie) {
				return "", nil
			}
			return "", err
		}
		return c.Value, nil
	}
}

// FirstOf tries extractors in order and returns the first non-empty credential.
func FirstOf(extractors ...CredentialExtractor) CredentialExtractor {
	return func(r *http.Request) (string, error) {
		var errs []error
		for _, extract := range extractors {
			credential, err := extract(r)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if credential != "" {
				return credential, nil
			}
		}
		return "", errors.Join(errs...)
	}
}
