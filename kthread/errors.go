package kthread

import "errors"

// ErrTooManyThreads is returned by Fork when the bounded thread table is
// full (spec.md §7 stratum 2: "expected out-of-resource conditions").
var ErrTooManyThreads = errors.New("kthread: maximum thread count reached")
