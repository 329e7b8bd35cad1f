//go:build !unix

package transport

// Errno values are not inspected off unix; such errors fall through as
// timeouts or unspecified failures.
func classifyErrno(err error) (Kind, bool) {
	return KindNone, false
}
