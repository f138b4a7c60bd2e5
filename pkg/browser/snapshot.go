package browser

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

// SnapshotMode selects how many elements a snapshot returns and how much
// detail each carries.
type SnapshotMode string

const (
	SnapshotCompact SnapshotMode = "compact"
	SnapshotFull    SnapshotMode = "full"
)

// markAttribute is the scratch attribute used between collect and tag.
const markAttribute = "data-sidecar-idx"

type snapshotLimits struct {
	candidates int
	results    int
	text       int
}

var snapshotModes = map[SnapshotMode]snapshotLimits{
	SnapshotCompact: {candidates: 1500, results: 120, text: 80},
	SnapshotFull:    {candidates: 5000, results: 400, text: 200},
}

// ParseSnapshotMode validates a mode name. Empty means compact.
func ParseSnapshotMode(name string) (SnapshotMode, error) {
	mode := SnapshotMode(strings.ToLower(strings.TrimSpace(name)))
	if mode == "" {
		return SnapshotCompact, nil
	}
	if _, ok := snapshotModes[mode]; !ok {
		return "", Validationf("unknown snapshot mode %q (expected compact or full)", name)
	}
	return mode, nil
}

var (
	interactiveTags = []string{"a", "button", "input", "select", "textarea", "summary"}

	interactiveRoles = []string{
		"button", "link", "checkbox", "radio", "tab", "menuitem", "option",
		"switch", "combobox", "textbox", "searchbox", "slider", "treeitem",
	}
)

// candidate is one element reported by the collect script.
type candidate struct {
	Index      int      `json:"index"`
	Tag        string   `json:"tag"`
	Role       string   `json:"role"`
	InputType  string   `json:"input_type"`
	Name       string   `json:"name"`
	Text       string   `json:"text"`
	Selectors  []string `json:"selectors"`
	Path       string   `json:"path"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	InViewport bool     `json:"in_viewport"`
	Disabled   bool     `json:"disabled"`
	Pointer    bool     `json:"pointer"`

	score float64
}

// scoreCandidate ranks how likely an element is to be the target of an action.
func scoreCandidate(c candidate) float64 {
	score := 0.0
	if c.InViewport {
		score += 30
	}
	if lo.Contains(interactiveTags, c.Tag) {
		score += 20
	}
	if lo.Contains(interactiveRoles, c.Role) {
		score += 10
	}
	if c.Pointer {
		score += 5
	}
	if n := utf8.RuneCountInString(c.Name); n > 0 {
		score += math.Min(5, 1+float64(n)/10)
	}
	if area := c.Width * c.Height; area > 0 {
		score += math.Min(5, area/4000)
	}
	if c.Disabled {
		score -= 50
	}
	return score
}

// rankCandidates scores, orders and truncates candidates.
func rankCandidates(cands []candidate, max int) []candidate {
	ranked := make([]candidate, len(cands))
	for i, c := range cands {
		c.score = scoreCandidate(c)
		ranked[i] = c
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		switch {
		case a.score != b.score:
			return a.score > b.score
		case a.InViewport != b.InViewport:
			return a.InViewport
		case a.Y != b.Y:
			return a.Y < b.Y
		default:
			return a.X < b.X
		}
	})

	if max > 0 && len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}

// refSelector is the selector that matches a tagged element.
func refSelector(ref string) string {
	return fmt.Sprintf(`[%s="%s"]`, RefAttribute, ref)
}

// buildRefTable assigns e1..eN in rank order. It also returns the scratch
// index to ref mapping consumed by the tag script.
func buildRefTable(ranked []candidate) ([]RefEntry, map[string]string) {
	entries := make([]RefEntry, 0, len(ranked))
	marks := make(map[string]string, len(ranked))

	for i, c := range ranked {
		ref := "e" + strconv.Itoa(i+1)
		marker := refSelector(ref)

		primary := marker
		var rest []string
		if len(c.Selectors) > 0 {
			primary = c.Selectors[0]
			rest = c.Selectors[1:]
		}
		fallbacks := append(append([]string{}, rest...), marker)
		if c.Path != "" {
			fallbacks = append(fallbacks, c.Path)
		}
		fallbacks = lo.Without(lo.Uniq(fallbacks), primary)

		entries = append(entries, RefEntry{
			Ref:       ref,
			Role:      c.Role,
			Tag:       c.Tag,
			InputType: c.InputType,
			Name:      c.Name,
			Text:      c.Text,
			Selector:  primary,
			Fallbacks: fallbacks,
			BBox: BBox{
				X:       c.X,
				Y:       c.Y,
				Width:   c.Width,
				Height:  c.Height,
				CenterX: c.X + c.Width/2,
				CenterY: c.Y + c.Height/2,
			},
			InViewport: c.InViewport,
			Disabled:   c.Disabled,
			Score:      c.score,
		})
		marks[strconv.Itoa(c.Index)] = ref
	}
	return entries, marks
}

// SnapshotRef is one element as reported to the caller.
type SnapshotRef struct {
	Ref        string   `json:"ref"`
	Role       string   `json:"role"`
	Tag        string   `json:"tag"`
	InputType  string   `json:"input_type,omitempty"`
	Name       string   `json:"name"`
	Text       string   `json:"text,omitempty"`
	Selector   string   `json:"selector,omitempty"`
	Fallbacks  []string `json:"fallbacks,omitempty"`
	BBox       *BBox    `json:"bbox,omitempty"`
	InViewport bool     `json:"in_viewport"`
	Disabled   bool     `json:"disabled,omitempty"`
}

// SnapshotResult is the outcome of a snapshot.
type SnapshotResult struct {
	TargetID  string          `json:"target_id"`
	URL       string          `json:"url"`
	Title     string          `json:"title"`
	Mode      SnapshotMode    `json:"mode"`
	Count     int             `json:"count"`
	Refs      []SnapshotRef   `json:"refs"`
	Readiness ReadinessReport `json:"-"`
	ResolveMs int64           `json:"-"`
}

// Snapshot enumerates the target's interactive elements, ranks them, tags
// the selected ones in the DOM and replaces the target's reference table.
func (s *ProfileSession) Snapshot(ctx context.Context, targetID string, mode SnapshotMode) (*SnapshotResult, error) {
	limits, ok := snapshotModes[mode]
	if !ok {
		return nil, Validationf("unknown snapshot mode %q", mode)
	}

	id, tab, err := s.Tab(targetID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	readiness := s.AwaitReadiness(ctx, id, tab)

	var cands []candidate
	collectOpts := map[string]interface{}{
		"refAttr":       RefAttribute,
		"markAttr":      markAttribute,
		"maxCandidates": limits.candidates,
		"maxText":       limits.text,
	}
	if err := evalJSON(tab, collectScript, collectOpts, &cands); err != nil {
		return nil, fmt.Errorf("collect elements: %w", err)
	}

	entries, marks := buildRefTable(rankCandidates(cands, limits.results))

	var tagged int
	tagOpts := map[string]interface{}{
		"refAttr":  RefAttribute,
		"markAttr": markAttribute,
		"refs":     marks,
	}
	if err := evalJSON(tab, tagScript, tagOpts, &tagged); err != nil {
		return nil, fmt.Errorf("tag elements: %w", err)
	}
	if tagged != len(entries) {
		s.warn(id, "snapshot tagged %d of %d elements", tagged, len(entries))
	}

	table := make(RefTable, len(entries))
	for _, e := range entries {
		table[e.Ref] = e
	}
	s.SetRefs(id, table)

	title, _ := tab.Title() // best effort: title is informational
	return &SnapshotResult{
		TargetID:  id,
		URL:       tab.URL(),
		Title:     title,
		Mode:      mode,
		Count:     len(entries),
		Refs:      snapshotRefs(entries, mode),
		Readiness: readiness,
		ResolveMs: time.Since(start).Milliseconds(),
	}, nil
}

func snapshotRefs(entries []RefEntry, mode SnapshotMode) []SnapshotRef {
	return lo.Map(entries, func(e RefEntry, _ int) SnapshotRef {
		ref := SnapshotRef{
			Ref:        e.Ref,
			Role:       e.Role,
			Tag:        e.Tag,
			InputType:  e.InputType,
			Name:       e.Name,
			Text:       e.Text,
			InViewport: e.InViewport,
			Disabled:   e.Disabled,
		}
		if mode == SnapshotFull {
			bbox := e.BBox
			ref.Selector = e.Selector
			ref.Fallbacks = e.Fallbacks
			ref.BBox = &bbox
		}
		return ref
	})
}
