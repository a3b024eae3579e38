package etherscan

import "fmt"

// Kind classifies why a fetch failed.
type Kind string

const (
	// KindAPI means the API answered with an explicit error status.
	KindAPI Kind = "api_error"
	// KindMalformed means the response could not be interpreted.
	KindMalformed Kind = "malformed"
	// KindTransport means the request never produced a usable response:
	// a network failure or a non-2xx status.
	KindTransport Kind = "transport"
)

// FetchError is returned for every failed fetch. Message is suitable for
// showing to a user; Err holds the underlying cause when there is one.
type FetchError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
