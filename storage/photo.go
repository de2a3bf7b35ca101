// Package storage keeps chore photos, either on local disk or behind presigned
// S3 uploads, and decides which photo references a submission may carry.
package storage

import (
	"net/url"
	"strings"
)

// PublicPrefix is the URL path local uploads are served under.
const PublicPrefix = "/uploads/"

// allowedTypes maps accepted image MIME types to the extension used on disk.
var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// AllowedContentType reports whether contentType is an accepted image type.
func AllowedContentType(contentType string) bool {
	_, ok := allowedTypes[contentType]
	return ok
}

// PhotoURLAllowed reports whether ref points at storage this service controls:
// a local upload path or, when s3Base is set, an object under the public S3 base.
func PhotoURLAllowed(ref, s3Base string) bool {
	if strings.TrimSpace(ref) == "" {
		return false
	}
	if strings.HasPrefix(ref, PublicPrefix) {
		if strings.Contains(ref, "..") || strings.Contains(ref, `\`) {
			return false
		}
		decoded, err := url.PathUnescape(ref)
		if err != nil {
			return false
		}
		return !strings.Contains(decoded, "..") && !strings.Contains(decoded, `\`)
	}
	base := strings.TrimRight(s3Base, "/")
	if base == "" {
		return false
	}
	return strings.HasPrefix(ref, base+"/")
}
