// Package session holds per-conversation state: a bounded turn Memory and
// the Store that hands out Sessions by id.
//
// A Session is an explicit object passed into each turn; there is no global
// conversation state. Session.Lock serializes turns of one session while
// different sessions proceed in parallel.
package session
