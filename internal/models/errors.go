package models

import "errors"

// ErrInvalidInput indicates a malformed request or leg definition: non-positive
// DTE, unknown enum value, non-positive strike/premium/contract count, or equal
// long/short strikes. It is returned before any data access or arithmetic.
var ErrInvalidInput = errors.New("invalid input")

// ErrNoData is the explicit insufficient-data signal from storage or a market
// data provider: no snapshot within DTE tolerance, or no IV history. Callers
// recover by substituting a neutral regime or an empty candidate list and
// surfacing a warning; it is never silently treated as a normal result.
var ErrNoData = errors.New("no data available")
