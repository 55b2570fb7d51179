// File path: internal/context/builder.go
package context

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/careatlas/nlsql/internal/schema"
)

// Builder produces the deterministic, token-budgeted schema excerpt for one
// question. It never calls the reasoning engine: identical inputs always
// yield an identical RankedContext.
type Builder struct {
	cfg  Config
	dict map[string]TermTarget
}

// NewBuilder merges the configured dictionary over the built-in aliases.
func NewBuilder(cfg Config) *Builder {
	cfg.applyDefaults()
	dict := defaultDictionary()
	for term, target := range cfg.Dictionary {
		dict[strings.ToLower(strings.TrimSpace(term))] = target
	}
	return &Builder{cfg: cfg, dict: dict}
}

type tableCandidate struct {
	table  schema.Table
	score  float64
	forced bool
	// column names the dictionary pointed at directly
	hintedColumns map[string]struct{}
}

// Build ranks and budgets the manifest for the question, then records the
// selected tables in the shared MRU list.
func (b *Builder) Build(question string, manifest *schema.Manifest, mru *MRU) (RankedContext, error) {
	if manifest == nil || len(manifest.Tables) == 0 {
		return RankedContext{}, errors.New("manifest required")
	}
	result := RankedContext{SnapshotID: manifest.SnapshotID}
	tokens := tokenize(question)

	candidates := b.scoreTables(tokens, manifest, mru)
	selected, evicted := b.selectTables(candidates)
	result.EvictedTables = evicted
	if len(evicted) > 0 {
		result.Truncated = true
	}

	docFreq := columnDocumentFrequency(manifest)
	ranked := make([]RankedTable, 0, len(selected))
	for _, cand := range selected {
		ranked = append(ranked, RankedTable{
			Name:    cand.table.Name,
			Score:   cand.score,
			Forced:  cand.forced,
			Columns: b.scoreColumns(cand, tokens, docFreq, len(manifest.Tables)),
		})
		if cand.forced {
			result.ForcedTables = append(result.ForcedTables, cand.table.Name)
		}
	}
	attachJoinHints(ranked, selected)

	ranked, dropped, trimmed := b.trimToBudget(ranked, result.Truncated)
	if trimmed {
		result.Truncated = true
	}
	if len(dropped) > 0 {
		result.EvictedTables = append(result.EvictedTables, dropped...)
		sort.Strings(result.EvictedTables)
	}
	result.Tables = ranked
	result.TokenEstimate = EstimateTokens(result.Prompt())

	names := make([]string, 0, len(ranked))
	for _, table := range ranked {
		names = append(names, table.Name)
	}
	mru.Touch(names...)
	return result, nil
}

func (b *Builder) scoreTables(tokens []string, manifest *schema.Manifest, mru *MRU) []*tableCandidate {
	byName := make(map[string]*tableCandidate, len(manifest.Tables))
	ordered := make([]*tableCandidate, 0, len(manifest.Tables))
	for _, table := range manifest.Tables {
		cand := &tableCandidate{table: table, hintedColumns: make(map[string]struct{})}
		byName[strings.ToLower(table.Name)] = cand
		ordered = append(ordered, cand)
	}

	// Direct mentions and dictionary matches.
	for _, token := range tokens {
		stem := singular(token)
		for key, cand := range byName {
			if token == key || stem == singular(key) {
				if !cand.forced {
					cand.forced = true
					cand.score += b.cfg.MatchWeight * 2
				}
			}
		}
		target, ok := b.dict[token]
		if !ok {
			target, ok = b.dict[stem]
		}
		if !ok {
			continue
		}
		cand, present := byName[strings.ToLower(target.Table)]
		if !present {
			continue
		}
		cand.score += b.cfg.MatchWeight
		if target.Column != "" {
			cand.hintedColumns[strings.ToLower(target.Column)] = struct{}{}
		}
	}

	// Foreign-key adjacency to already-matched tables, computed against the
	// direct-match scores so a single hop does not cascade.
	matched := make(map[string]bool, len(ordered))
	for key, cand := range byName {
		matched[key] = cand.score > 0
	}
	for _, cand := range ordered {
		for _, fk := range cand.table.ForeignKeys {
			refKey := strings.ToLower(fk.RefTable)
			if matched[refKey] && refKey != strings.ToLower(cand.table.Name) {
				cand.score += b.cfg.AdjacencyWeight
			}
			if matched[strings.ToLower(cand.table.Name)] {
				if ref, ok := byName[refKey]; ok && ref != cand {
					ref.score += b.cfg.AdjacencyWeight
				}
			}
		}
	}

	// Recency bonus from the shared MRU list.
	capacity := DefaultMRUCapacity
	for _, cand := range ordered {
		if rank, ok := mru.Rank(cand.table.Name); ok {
			cand.score += b.cfg.RecencyWeight * float64(capacity-rank) / float64(capacity)
		}
	}
	return ordered
}

func (b *Builder) selectTables(candidates []*tableCandidate) ([]*tableCandidate, []string) {
	scored := make([]*tableCandidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.score > 0 || cand.forced {
			scored = append(scored, cand)
		}
	}
	// A question with no recognizable entities still gets context: fall back
	// to manifest order so the reasoning engine can explore.
	if len(scored) == 0 {
		scored = candidates
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].forced != scored[j].forced {
			return scored[i].forced
		}
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].table.Name < scored[j].table.Name
	})
	if len(scored) <= b.cfg.MaxTables {
		return scored, nil
	}
	// Forced tables are never dropped; the ceiling evicts the lowest-scored
	// unforced candidates instead.
	var evicted []string
	kept := scored[:b.cfg.MaxTables]
	for _, cand := range scored[b.cfg.MaxTables:] {
		if cand.forced {
			kept = append(kept, cand)
		} else if cand.score > 0 {
			evicted = append(evicted, cand.table.Name)
		}
	}
	if len(kept) > b.cfg.MaxTables {
		// Trim unforced entries from the tail to restore the ceiling.
		trimmed := kept[:0]
		overflow := len(kept) - b.cfg.MaxTables
		for i := len(kept) - 1; i >= 0; i-- {
			if overflow > 0 && !kept[i].forced {
				evicted = append(evicted, kept[i].table.Name)
				overflow--
				continue
			}
			trimmed = append(trimmed, kept[i])
		}
		// restore descending order after the reverse walk
		sort.SliceStable(trimmed, func(i, j int) bool {
			if trimmed[i].forced != trimmed[j].forced {
				return trimmed[i].forced
			}
			if trimmed[i].score != trimmed[j].score {
				return trimmed[i].score > trimmed[j].score
			}
			return trimmed[i].table.Name < trimmed[j].table.Name
		})
		kept = trimmed
	}
	sort.Strings(evicted)
	return kept, evicted
}

func (b *Builder) scoreColumns(cand *tableCandidate, tokens []string, docFreq map[string]int, totalTables int) []RankedColumn {
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		tokenSet[singular(token)] = struct{}{}
	}
	fkColumns := make(map[string]struct{}, len(cand.table.ForeignKeys))
	for _, fk := range cand.table.ForeignKeys {
		fkColumns[strings.ToLower(fk.Column)] = struct{}{}
	}
	columns := make([]RankedColumn, 0, len(cand.table.Columns))
	for _, col := range cand.table.Columns {
		key := strings.ToLower(col.Name)
		overlap := 0.0
		for _, part := range nameTokens(col.Name) {
			if _, ok := tokenSet[singular(part)]; ok {
				overlap++
			}
		}
		freq := docFreq[key]
		if freq <= 0 {
			freq = 1
		}
		idf := math.Log(float64(totalTables)/float64(freq)) + 1
		score := overlap * idf
		if _, hinted := cand.hintedColumns[key]; hinted {
			score += 2
		}
		// Join keys and primary keys are dropped last so generated joins
		// stay expressible.
		if key == "id" || strings.HasSuffix(key, "_id") {
			score += 0.5
		}
		if _, isFK := fkColumns[key]; isFK {
			score += 0.5
		}
		columns = append(columns, RankedColumn{
			Name:     col.Name,
			Type:     col.Type,
			Nullable: col.Nullable,
			Score:    score,
		})
	}
	return columns
}

func columnDocumentFrequency(manifest *schema.Manifest) map[string]int {
	freq := make(map[string]int)
	for _, table := range manifest.Tables {
		for _, col := range table.Columns {
			freq[strings.ToLower(col.Name)]++
		}
	}
	return freq
}

func attachJoinHints(ranked []RankedTable, selected []*tableCandidate) {
	present := make(map[string]struct{}, len(ranked))
	for _, table := range ranked {
		present[strings.ToLower(table.Name)] = struct{}{}
	}
	for i, cand := range selected {
		for _, fk := range cand.table.ForeignKeys {
			if _, ok := present[strings.ToLower(fk.RefTable)]; !ok {
				continue
			}
			ranked[i].JoinHints = append(ranked[i].JoinHints,
				joinHint(cand.table.Name, fk.Column, fk.RefTable, fk.RefColumn))
		}
	}
}

// trimToBudget drops lowest-scoring columns first, then whole unforced
// tables, until the rendered excerpt honours both the column ceiling and the
// token budget. Every table keeps at least one column while it survives, and
// the probe measures the truncation note so the rendered prompt itself fits.
func (b *Builder) trimToBudget(ranked []RankedTable, truncated bool) ([]RankedTable, []string, bool) {
	trimmed := false
	for columnCount(ranked) > b.cfg.MaxColumns {
		if !dropLowestColumn(ranked) {
			break
		}
		trimmed = true
	}
	var evicted []string
	for {
		probe := RankedContext{Tables: ranked, Truncated: truncated || trimmed}
		if EstimateTokens(probe.Prompt()) <= b.cfg.TokenBudget {
			break
		}
		if dropLowestColumn(ranked) {
			trimmed = true
			continue
		}
		// Columns are exhausted; shed whole tables, lowest score first.
		idx := lowestUnforcedTable(ranked)
		if idx < 0 {
			// Only tables the question named remain; the budget holds them
			// rather than dropping one the user asked about.
			break
		}
		evicted = append(evicted, ranked[idx].Name)
		ranked = append(ranked[:idx], ranked[idx+1:]...)
		pruneJoinHints(ranked, evicted[len(evicted)-1])
		trimmed = true
	}
	return ranked, evicted, trimmed
}

func lowestUnforcedTable(ranked []RankedTable) int {
	idx := -1
	lowest := math.Inf(1)
	for i := len(ranked) - 1; i >= 0; i-- {
		if ranked[i].Forced {
			continue
		}
		if ranked[i].Score < lowest {
			lowest = ranked[i].Score
			idx = i
		}
	}
	return idx
}

// pruneJoinHints removes hints that point at a table no longer present in
// the excerpt.
func pruneJoinHints(ranked []RankedTable, removed string) {
	needle := " = " + removed + "."
	for i := range ranked {
		kept := ranked[i].JoinHints[:0]
		for _, hint := range ranked[i].JoinHints {
			if !strings.Contains(hint, needle) {
				kept = append(kept, hint)
			}
		}
		if len(kept) == 0 {
			ranked[i].JoinHints = nil
			continue
		}
		ranked[i].JoinHints = kept
	}
}

func columnCount(ranked []RankedTable) int {
	total := 0
	for _, table := range ranked {
		total += len(table.Columns)
	}
	return total
}

func dropLowestColumn(ranked []RankedTable) bool {
	tableIdx, colIdx := -1, -1
	lowest := math.Inf(1)
	for ti := range ranked {
		if len(ranked[ti].Columns) <= 1 {
			continue
		}
		for ci := len(ranked[ti].Columns) - 1; ci >= 0; ci-- {
			score := ranked[ti].Columns[ci].Score
			if score < lowest {
				lowest = score
				tableIdx, colIdx = ti, ci
			}
		}
	}
	if tableIdx < 0 {
		return false
	}
	cols := ranked[tableIdx].Columns
	ranked[tableIdx].Columns = append(cols[:colIdx], cols[colIdx+1:]...)
	return true
}
