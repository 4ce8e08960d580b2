package api

import "strings"

// resourcePath normalizes a request path into resource segments. Repeated
// separators are collapsed, leading and trailing separators trimmed, and the
// first segment discarded: it is the mount point the service is reached
// under, not part of the resource address.
func resourcePath(rawPath string) []string {
	for strings.Contains(rawPath, "//") {
		rawPath = strings.ReplaceAll(rawPath, "//", "/")
	}
	trimmed := strings.Trim(rawPath, "/")
	if trimmed == "" {
		return nil
	}
	segments := strings.Split(trimmed, "/")
	return segments[1:]
}

// mountPrefix returns the mount point segment of the request path, with a
// leading separator, for use in Location headers.
func mountPrefix(rawPath string) string {
	for strings.Contains(rawPath, "//") {
		rawPath = strings.ReplaceAll(rawPath, "//", "/")
	}
	trimmed := strings.Trim(rawPath, "/")
	if trimmed == "" {
		return ""
	}
	first, _, _ := strings.Cut(trimmed, "/")
	return "/" + first
}
