package db

import "net/url"

// RedactDSN hides the password of a URL-shaped connection string. Keyword
// style DSNs cannot be parsed safely and are replaced wholesale.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "[redacted]"
	}
	if q := u.Query(); q.Has("password") {
		q.Set("password", "xxxxx")
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}
