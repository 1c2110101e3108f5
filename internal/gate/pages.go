package gate

import "strings"

// Pages names the fixed destinations the gate redirects to.
type Pages struct {
	Home             string
	SignIn           string
	PendingApproval  string
	AccountRejected  string
	AccountSuspended string
}

// DefaultPages returns the back office page paths.
func DefaultPages() Pages {
	return Pages{
		Home:             "/",
		SignIn:           "/sign-in",
		PendingApproval:  "/pending-approval",
		AccountRejected:  "/account-rejected",
		AccountSuspended: "/account-suspended",
	}
}

// limbo returns the status page p points at, if any.
func (p Pages) limbo(path string) (string, bool) {
	for _, page := range []string{p.PendingApproval, p.AccountRejected, p.AccountSuspended} {
		if page != "" && matchesPrefix(path, page) {
			return page, true
		}
	}
	return "", false
}

var staticPrefixes = []string{"/_next/", "/static/", "/assets/"}

var staticExtensions = []string{
	".css", ".js", ".map", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".woff", ".woff2", ".ttf", ".txt",
}

// IsStaticAsset reports whether path serves a static file the gate can skip.
func IsStaticAsset(path string) bool {
	for _, prefix := range staticPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	lower := strings.ToLower(path)
	for _, ext := range staticExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
