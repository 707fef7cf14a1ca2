package domain

import (
	"errors"
	"fmt"
)

// ScrapeError means the panel could not be logged into or read. The run does not start.
type ScrapeError struct {
	Err error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape failed: %v", e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// StoreReadError means the customer table could not be loaded. The run does not start.
type StoreReadError struct {
	Err error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("failed to read customers: %v", e.Err)
}

func (e *StoreReadError) Unwrap() error { return e.Err }

// StoreWriteError is the failure of a single customer update.
type StoreWriteError struct {
	CustomerID string
	Err        error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("failed to update customer %s: %v", e.CustomerID, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

var ErrCustomerNotFound = errors.New("customer not found")

// IsFatal reports whether err is a precondition failure that aborts a run.
func IsFatal(err error) bool {
	var scrape *ScrapeError
	var read *StoreReadError
	return errors.As(err, &scrape) || errors.As(err, &read)
}
