// Package avatars resolves profile pictures: a generated placeholder URL for
// users who never uploaded one, and S3-backed storage for those who did.
package avatars

import "net/url"

// DefaultURL returns the placeholder avatar for a display name, rendered by
// the ui-avatars service from the user's initials.
func DefaultURL(displayName string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(displayName)
}
