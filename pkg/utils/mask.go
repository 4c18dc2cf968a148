package utils

import "regexp"

var dsnCredentials = regexp.MustCompile(`://([^:/@]+):([^@]+)@`)

// MaskDSN hides the password portion of a connection string so DSNs can be
// logged at startup.
func MaskDSN(dsn string) string {
	return dsnCredentials.ReplaceAllString(dsn, "://$1:***@")
}
