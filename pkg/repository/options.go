package repository

import "errors"

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ListOptions pages a list query.
type ListOptions struct {
	Offset int `json:"offset" form:"offset"`
	Limit  int `json:"limit" form:"limit"`
}

// Validate applies the default limit and rejects out-of-range values.
func (o *ListOptions) Validate() error {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		return errors.New("limit exceeds maximum allowed value of 500")
	}
	if o.Offset < 0 {
		return errors.New("offset must be non-negative")
	}
	return nil
}

// Window clips n items to the page, returning slice bounds.
func (o ListOptions) Window(n int) (int, int) {
	start := o.Offset
	if start > n {
		start = n
	}
	end := start + o.Limit
	if o.Limit <= 0 || end > n {
		end = n
	}
	return start, end
}
