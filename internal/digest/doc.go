// Package digest ranks accepted items per persona, caps each section, and
// renders the result as JSON and Markdown artifacts.
//
// Ranking is total: relevance score, engagement, recency and finally item ID,
// so equal inputs always produce the same digest.
package digest
