// Package session keeps track of open utterance sockets: each session owns a
// PCM buffer and per-utterance counters, and the manager closes sessions that
// stay idle past a timeout.
package session
