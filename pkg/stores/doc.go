// Package stores persists the panel operation journal in SQLite.
// SQLiteStore holds sessions, finished operations and published events;
// Journal feeds it from a running panel system as an engine observer and
// event bus subscriber.
package stores
