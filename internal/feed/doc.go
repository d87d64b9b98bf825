// Package feed implements the fan-out point between the connection manager's
// receive loop and its consumers.
//
// A Publisher has a single producer and any number of Subscriptions. Each
// subscription owns a bounded channel; when a slow consumer lets it fill up,
// the oldest queued value is dropped to make room so the producer never
// blocks. Drops are counted per subscription and in the publisher stats.
//
// Closing a Subscription only detaches that consumer. Finish ends every
// subscription's sequence; a finished publisher hands out already-closed
// subscriptions.
package feed
