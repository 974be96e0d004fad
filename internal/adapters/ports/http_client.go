package ports

import "net/http"

// HTTPClient sends one outbound request. *http.Client satisfies it; tests
// substitute httptest servers or stubs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
