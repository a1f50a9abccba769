package remote

// serviceError is the cache service's JSON error envelope.
type serviceError struct {
	Error string `json:"error"`
}
