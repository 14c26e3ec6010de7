// Package store keeps the latest dashboard events and fans new ones out to
// live subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Event]: Storage representation of one controller event
//
// Events are keyed; a new event replaces the stored one with the same key,
// so the store always holds one snapshot per fleet-wide stream and one per
// service or server that has seen an action. Subscribers receive updates via
// channels with non-blocking sends (slow subscribers miss updates rather than
// block the controller).
package store
