package wildfire

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"

	"github.com/pyronear/pyrovision/datasets"
)

// Split names accepted by Splitter ratios.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// AlgorithmGroupByFire splits whole fires: all frames sharing a fire_id land
// in the same split, so near-identical frames never leak from train to
// val/test.
const AlgorithmGroupByFire = "group-by-fire"

// Splitter partitions a wildfire Dataset into train/val/test according to
// the given ratios. Configure, then call Fit.
type Splitter struct {
	// Ratios per split name. They must sum to at most 1.
	Ratios map[string]float64

	// Seed of the pseudo-random fire assignment. Same seed, same split.
	Seed int64

	// Transforms optionally overrides the per-split transform.
	Transforms map[string]datasets.Transform

	// Algorithm for the split. Defaults to AlgorithmGroupByFire.
	Algorithm string

	// Train, Val and Test are set by Fit.
	Train, Val, Test *Dataset

	// SampleCounts and AchievedRatios per split, set by Fit. The achieved
	// ratios only approximate the requested ones, since whole fires are
	// assigned at once.
	SampleCounts   map[string]int
	AchievedRatios map[string]float64
}

// NewSplitter validates the ratios and returns a Splitter with the default
// algorithm.
func NewSplitter(ratios map[string]float64) (*Splitter, error) {
	var sum float64
	for name, ratio := range ratios {
		if name != SplitTrain && name != SplitVal && name != SplitTest {
			return nil, errors.Errorf("unknown split name %q in ratios", name)
		}
		if ratio < 0 {
			return nil, errors.Errorf("ratio for %q is negative (%g)", name, ratio)
		}
		sum += ratio
	}
	if sum > 1+1e-9 {
		return nil, errors.Errorf("ratios sum to %g, they must sum to at most 1", sum)
	}
	return &Splitter{Ratios: ratios, Algorithm: AlgorithmGroupByFire}, nil
}

// Fit partitions ds and materializes the Train, Val and Test datasets, along
// with the achieved sample counts and ratios.
func (s *Splitter) Fit(ds *Dataset) error {
	if s.Algorithm != "" && s.Algorithm != AlgorithmGroupByFire {
		return errors.Errorf("unknown split algorithm %q", s.Algorithm)
	}
	metadata := ds.Metadata()
	if !metadata.HasColumn(ColFireID) {
		return errors.Errorf("metadata has no %q column, cannot group frames by fire", ColFireID)
	}

	// Group rows by fire id, then shuffle the groups.
	groups := make(map[string][]int)
	for row, id := range metadata.Records(ColFireID) {
		groups[id] = append(groups[id], row)
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rng := rand.New(rand.NewSource(s.Seed))
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	// Greedily hand each fire to the split furthest below its quota.
	splits := []string{SplitTrain, SplitVal, SplitTest}
	assigned := map[string][]int{}
	counts := map[string]int{}
	total := metadata.Len()
	for _, id := range ids {
		best := ""
		bestDeficit := 0.0
		for _, split := range splits {
			quota := s.Ratios[split] * float64(total)
			deficit := quota - float64(counts[split])
			if best == "" || deficit > bestDeficit {
				best, bestDeficit = split, deficit
			}
		}
		if bestDeficit <= 0 {
			// All quotas met (ratios sum < 1): leftovers go to train.
			best = SplitTrain
		}
		assigned[best] = append(assigned[best], groups[id]...)
		counts[best] += len(groups[id])
	}

	s.SampleCounts = counts
	s.AchievedRatios = map[string]float64{}
	for _, split := range splits {
		ratio := float64(counts[split]) / math.Max(float64(total), 1)
		s.AchievedRatios[split] = ratio
	}
	s.Train = ds.withMetadata(metadata.Select(assigned[SplitTrain]), s.Transforms[SplitTrain])
	s.Val = ds.withMetadata(metadata.Select(assigned[SplitVal]), s.Transforms[SplitVal])
	s.Test = ds.withMetadata(metadata.Select(assigned[SplitTest]), s.Transforms[SplitTest])
	return nil
}
