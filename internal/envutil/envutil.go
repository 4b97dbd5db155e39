package envutil

import (
	"os"
	"strings"
)

// IsDev checks if we're running in development mode, where cookies are
// issued without the Secure flag so the shell works over plain http.
func IsDev() bool {
	env := strings.ToLower(os.Getenv("DEPO_ENV"))
	return env == "development" || env == "dev"
}
