package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared client for outbound Bot API calls. The
// membership check must answer fast or deny, hence the short timeout.
var HTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}
