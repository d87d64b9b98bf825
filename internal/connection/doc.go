// Package connection implements the streaming core.
//
// The Manager:
//   - Owns one WebSocket connection to the quote feed
//   - Drives a lifecycle state machine with an audited transition table
//   - Replays the subscription set after every (re)connect
//   - Decodes frames and fans updates out through a feed.Publisher
//   - Reconnects with exponential backoff, jitter and a fast-failure guard
//   - Records connection quality and derives a health score
package connection
