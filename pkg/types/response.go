package types

// SuccessEnvelope wraps every successful console response.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public face of a failure. Retryable tells the console it
// may resubmit the same operation, e.g. after a storage outage.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
