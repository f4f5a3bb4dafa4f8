package digest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Artifact is a rendered file ready to be written or mirrored.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

type sectionFile struct {
	Persona     string      `json:"persona"`
	Title       string      `json:"title"`
	Date        string      `json:"date"`
	RunID       string      `json:"run_id"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	Count       int         `json:"count"`
	Items       []entryFile `json:"items"`
}

type entryFile struct {
	ID         int64          `json:"id"`
	Title      string         `json:"title"`
	URL        string         `json:"url,omitempty"`
	Score      int            `json:"score"`
	Summary    string         `json:"summary,omitempty"`
	Tags       []string       `json:"tags"`
	Audience   string         `json:"audience,omitempty"`
	Engagement engagementFile `json:"engagement"`
	Evaluation map[string]any `json:"evaluation,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type engagementFile struct {
	Score    int `json:"score"`
	Comments int `json:"comments"`
}

// Render produces the artifacts for d: <persona>_<date>.json per section, the
// matching .md files when markdown is set, and digest_<date>_<run>.json with
// the full digest.
func Render(d Digest, markdown bool) ([]Artifact, error) {
	date := d.Date()
	artifacts := make([]Artifact, 0, len(d.Sections)*2+1)
	for _, s := range d.Sections {
		slug := strings.ToLower(s.Persona)
		data, err := json.MarshalIndent(sectionJSON(d, s), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode %s section: %w", s.Persona, err)
		}
		artifacts = append(artifacts, Artifact{
			Name:        fmt.Sprintf("%s_%s.json", slug, date),
			ContentType: "application/json",
			Data:        data,
		})
		if markdown {
			artifacts = append(artifacts, Artifact{
				Name:        fmt.Sprintf("%s_%s.md", slug, date),
				ContentType: "text/markdown; charset=utf-8",
				Data:        []byte(Markdown(d, s)),
			})
		}
	}
	combined, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode digest: %w", err)
	}
	artifacts = append(artifacts, Artifact{
		Name:        fmt.Sprintf("digest_%s_%s.json", date, shortRunID(d.RunID)),
		ContentType: "application/json",
		Data:        combined,
	})
	return artifacts, nil
}

// WriteArtifacts writes artifacts into dir and returns their paths. Each file
// is written to a temp name and renamed into place.
func WriteArtifacts(dir string, artifacts []Artifact) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create out dir: %w", err)
	}
	paths := make([]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		path := filepath.Join(dir, artifact.Name)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, artifact.Data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", artifact.Name, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			return paths, fmt.Errorf("rename %s: %w", artifact.Name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func sectionJSON(d Digest, s Section) sectionFile {
	file := sectionFile{
		Persona:     s.Persona,
		Title:       s.SectionTitle(),
		Date:        d.Date(),
		RunID:       d.RunID,
		WindowStart: d.WindowStart,
		WindowEnd:   d.WindowEnd,
		Count:       len(s.Entries),
		Items:       make([]entryFile, 0, len(s.Entries)),
	}
	for _, e := range s.Entries {
		file.Items = append(file.Items, entryFile{
			ID:         e.Item.ID,
			Title:      e.Item.Title,
			URL:        e.Item.URL,
			Score:      e.Verdict.RelevanceScore,
			Summary:    e.Verdict.Rationale,
			Tags:       e.Verdict.Tags,
			Audience:   e.Verdict.AudienceHint,
			Engagement: engagementFile{Score: e.Item.Engagement.Score, Comments: e.Item.Engagement.Comments},
			Evaluation: e.Verdict.Details,
			Metadata:   e.Item.Metadata,
		})
	}
	return file
}

func shortRunID(runID string) string {
	runID = strings.ReplaceAll(runID, "-", "")
	if len(runID) > 8 {
		return runID[:8]
	}
	if runID == "" {
		return "run"
	}
	return runID
}
