package digest

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"newsdigest/internal/persona"
	"newsdigest/internal/store"
)

// Entry is one accepted item in a section.
type Entry struct {
	Item    *store.Item   `json:"item"`
	Verdict store.Verdict `json:"verdict"`
}

// Section holds the ranked entries for one persona.
type Section struct {
	Persona    string   `json:"persona"`
	Title      string   `json:"title"`
	ScoreScale int      `json:"score_scale"`
	Fields     []string `json:"fields,omitempty"`
	Entries    []Entry  `json:"entries"`
}

// Digest is the output of one run. It is never modified after assembly.
type Digest struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Sections    []Section `json:"sections"`
}

// ItemCount returns the number of entries across sections.
func (d Digest) ItemCount() int {
	total := 0
	for _, section := range d.Sections {
		total += len(section.Entries)
	}
	return total
}

// Date is the digest's calendar date in UTC.
func (d Digest) Date() string {
	return d.GeneratedAt.UTC().Format("2006-01-02")
}

// Record converts d into the store's audit record.
func (d Digest) Record() (store.DigestRecord, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return store.DigestRecord{}, fmt.Errorf("encode digest: %w", err)
	}
	return store.DigestRecord{
		RunID:       d.RunID,
		GeneratedAt: d.GeneratedAt,
		WindowStart: d.WindowStart,
		WindowEnd:   d.WindowEnd,
		ItemCount:   d.ItemCount(),
		Payload:     payload,
	}, nil
}

// Decode restores a digest persisted with Record.
func Decode(record store.DigestRecord) (Digest, error) {
	var d Digest
	if err := json.Unmarshal(record.Payload, &d); err != nil {
		return Digest{}, fmt.Errorf("decode digest %s: %w", record.RunID, err)
	}
	return d, nil
}

// Assemble builds the digest from accepted entries keyed by persona name.
// Every persona in personas yields a section, in the given order, even when it
// has no entries. Each section is ranked and capped at the persona's
// max_items, falling back to maxItems.
func Assemble(runID string, accepted map[string][]Entry, personas []persona.Definition, maxItems int, window time.Duration, now time.Time) Digest {
	now = now.UTC()
	d := Digest{
		RunID:       runID,
		GeneratedAt: now,
		WindowStart: now.Add(-window),
		WindowEnd:   now,
		Sections:    make([]Section, 0, len(personas)),
	}
	for _, def := range personas {
		entries := append([]Entry(nil), accepted[def.Name]...)
		Rank(entries)
		if limit := def.Cap(maxItems); limit >= 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		if entries == nil {
			entries = []Entry{}
		}
		d.Sections = append(d.Sections, Section{
			Persona:    def.Name,
			Title:      def.Title,
			ScoreScale: def.ScoreScale,
			Fields:     detailFields(def),
			Entries:    entries,
		})
	}
	return d
}

// Rank orders entries by relevance score, then engagement (score before
// comments), then most recently observed, then lowest item ID.
func Rank(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Verdict.RelevanceScore != b.Verdict.RelevanceScore {
			return a.Verdict.RelevanceScore > b.Verdict.RelevanceScore
		}
		if a.Item.Engagement != b.Item.Engagement {
			return b.Item.Engagement.Less(a.Item.Engagement)
		}
		if !a.Item.ObservedAt.Equal(b.Item.ObservedAt) {
			return a.Item.ObservedAt.After(b.Item.ObservedAt)
		}
		return a.Item.ID < b.Item.ID
	})
}

// FromAccepted adapts store rows into digest entries.
func FromAccepted(rows []store.AcceptedEntry) []Entry {
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{Item: row.Item, Verdict: row.Verdict})
	}
	return entries
}

func detailFields(def persona.Definition) []string {
	fields := make([]string, 0, len(def.Fields))
	for _, f := range def.Fields {
		if f.Name == def.Mapping.Score || f.Name == def.Mapping.Decision {
			continue
		}
		fields = append(fields, f.Name)
	}
	return fields
}
