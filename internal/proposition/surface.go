package proposition

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidSurface indicates a surface URI that does not match the
// mobileapp://<token>(/<token>)* shape.
var ErrInvalidSurface = errors.New("invalid surface URI")

// SurfaceScheme is the URI scheme shared by all surfaces.
const SurfaceScheme = "mobileapp://"

// surfacePattern validates mobileapp://<token>(/<token>)*.
// Tokens exclude '#', '/' and whitespace; '#' is reserved for activity id
// composition elsewhere in the pipeline and must never appear in a surface.
var surfacePattern = regexp.MustCompile(`^mobileapp://[^/#\s]+(/[^/#\s]+)*$`)

// Surface identifies a named UI slot a proposition targets.
// Immutable after construction; two surfaces are equal iff their URIs are
// equal, so Surface values are directly comparable and usable as map keys.
type Surface struct {
	uri string
}

// NewSurface builds a surface for the given application id and optional
// path. An empty path yields the application's default surface.
func NewSurface(appID, path string) (Surface, error) {
	uri := SurfaceScheme + appID
	if path != "" {
		uri += "/" + strings.Trim(path, "/")
	}
	return SurfaceFromURI(uri)
}

// SurfaceFromURI validates a raw URI and wraps it in a Surface.
func SurfaceFromURI(uri string) (Surface, error) {
	if !surfacePattern.MatchString(uri) {
		return Surface{}, fmt.Errorf("%w: %q", ErrInvalidSurface, uri)
	}
	return Surface{uri: uri}, nil
}

// DefaultSurface returns mobileapp://<appID>, the surface used when the
// caller does not name a slot explicitly.
func DefaultSurface(appID string) (Surface, error) {
	return NewSurface(appID, "")
}

// URI returns the surface URI. Empty for the zero value.
func (s Surface) URI() string {
	return s.uri
}

// IsValid reports whether the surface was produced by a constructor.
// The zero value is invalid and excluded from batch operations.
func (s Surface) IsValid() bool {
	return s.uri != ""
}

func (s Surface) String() string {
	return s.uri
}

// FilterValid drops invalid URIs from a raw list, preserving order.
// Malformed entries are skipped silently per the batch failure semantics:
// a bad surface never aborts the batch it arrived in.
func FilterValid(uris []string) []Surface {
	out := make([]Surface, 0, len(uris))
	for _, u := range uris {
		s, err := SurfaceFromURI(u)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}
