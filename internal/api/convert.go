package api

import (
	"sort"
	"strings"
	"time"

	"newsdigest/internal/store"
)

// FromItem converts a store item into its API representation. Verdicts are
// ordered by persona name.
func FromItem(item *store.Item) Item {
	if item == nil {
		return Item{}
	}
	dto := Item{
		ID:           item.ID,
		SourceID:     item.SourceID,
		Origin:       item.Origin,
		Title:        item.Title,
		URL:          item.URL,
		Score:        item.Engagement.Score,
		Comments:     item.Engagement.Comments,
		Status:       strings.ToLower(string(item.Status)),
		ObservedAt:   formatTime(item.ObservedAt),
		ErrorMessage: item.ErrorMessage,
		Verdicts:     make([]PersonaVerdict, 0, len(item.Verdicts)),
	}
	if item.PublishedAt != nil {
		dto.PublishedAt = formatTime(*item.PublishedAt)
	}
	for _, pv := range item.Verdicts {
		dto.Verdicts = append(dto.Verdicts, fromPersonaVerdict(pv))
	}
	sort.Slice(dto.Verdicts, func(i, j int) bool {
		return dto.Verdicts[i].Persona < dto.Verdicts[j].Persona
	})
	return dto
}

func fromPersonaVerdict(pv store.PersonaVerdict) PersonaVerdict {
	out := PersonaVerdict{
		Persona:  pv.Persona,
		Accepted: pv.Accepted,
		Valid:    pv.Valid(),
		Reason:   pv.Reason,
	}
	if pv.Verdict != nil {
		score := pv.Verdict.RelevanceScore
		out.Score = &score
		out.Tags = pv.Verdict.Tags
		out.Rationale = pv.Verdict.Rationale
	}
	return out
}

// FromDigestRecord converts a digest row into its summary.
func FromDigestRecord(record store.DigestRecord) DigestSummary {
	return DigestSummary{
		RunID:       record.RunID,
		GeneratedAt: formatTime(record.GeneratedAt),
		WindowStart: formatTime(record.WindowStart),
		WindowEnd:   formatTime(record.WindowEnd),
		ItemCount:   record.ItemCount,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
