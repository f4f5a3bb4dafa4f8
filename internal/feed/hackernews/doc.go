// Package hackernews fetches top stories from the Hacker News Firebase API
// and maps them to feed records keyed "hn:<id>".
package hackernews
