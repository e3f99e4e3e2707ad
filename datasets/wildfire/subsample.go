package wildfire

import (
	"math/rand"

	"github.com/pkg/errors"
)

// ComputeSubSet picks framesPerSeq frames per video sequence (rows sharing
// the same fBase), to reduce the frame redundancy of long sequences.
//
// If notFireProb is greater than zero, sequences without fire get, with that
// probability, a second helping of framesPerSeq extra frames: the no-fire
// class is underrepresented in the raw extracts.
//
// The picking is pseudo-random and deterministic under seed. The result is a
// view over metadata, ordered by sequence of first appearance.
func ComputeSubSet(metadata *Metadata, framesPerSeq int, notFireProb float64, seed int64) (*Metadata, error) {
	if framesPerSeq <= 0 {
		return nil, errors.Errorf("framesPerSeq must be positive, got %d", framesPerSeq)
	}
	if !metadata.HasColumn(ColBase) {
		return nil, errors.Errorf("metadata has no %q column, cannot group frames by sequence", ColBase)
	}

	// Group row indices by sequence, keeping the order of first appearance
	// so the selection is reproducible.
	groups := make(map[string][]int)
	var order []string
	for row, base := range metadata.Records(ColBase) {
		if _, found := groups[base]; !found {
			order = append(order, base)
		}
		groups[base] = append(groups[base], row)
	}

	rng := rand.New(rand.NewSource(seed))
	var selected []int
	for _, base := range order {
		rows := groups[base]
		selected = append(selected, pickRows(rng, rows, framesPerSeq)...)
		if notFireProb <= 0 {
			continue
		}
		fire, err := metadata.Float(rows[0], ColFire)
		if err != nil {
			return nil, err
		}
		if fire == 0 && rng.Float64() < notFireProb {
			selected = append(selected, pickRows(rng, rows, framesPerSeq)...)
		}
	}
	return metadata.Select(selected), nil
}

// pickRows selects up to n distinct elements of rows, in random order.
func pickRows(rng *rand.Rand, rows []int, n int) []int {
	if n >= len(rows) {
		picked := make([]int, len(rows))
		copy(picked, rows)
		return picked
	}
	perm := rng.Perm(len(rows))
	picked := make([]int, 0, n)
	for _, p := range perm[:n] {
		picked = append(picked, rows[p])
	}
	return picked
}
