// Package store sits between the analysis core and the record store. It turns
// a count-and-page table interface into a complete, ordered record set and
// guards every call with a circuit breaker.
//
// # Paging
//
// The backing store caps each read at a fixed number of rows. [PagedReader]
// splits a scan into such batches, runs a bounded number of them at once and
// reassembles the results in batch order. A failed batch fails the whole
// read; callers never see a partial record set.
//
// # Breaker
//
// [Breaker] trips after consecutive failures and rejects calls with
// [ErrUnavailable] until its timeout elapses.
package store
