package llm

import "fmt"

// ProviderError wraps provider errors with status metadata.
type ProviderError struct {
	Provider  string
	Status    int
	Temporary bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s error (status=%d)", e.Provider, e.Status)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transient reports whether the error is safe to retry: rate limiting,
// request timeouts, provider overload, and server-side failures.
func (e *ProviderError) Transient() bool {
	if e == nil {
		return false
	}
	if e.Temporary {
		return true
	}
	switch {
	case e.Status == 408, e.Status == 429, e.Status == 529:
		return true
	case e.Status >= 500 && e.Status <= 599:
		return true
	}
	return false
}
