// Package feed defines the raw record shape produced by item sources and the
// JSON file source. The Hacker News client lives in feed/hackernews.
package feed
