package duplicates

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/media"
	"github.com/ternarybob/imago/internal/models"
)

// Detector finds exact and perceptual duplicate groups over the current
// candidate snapshot.
type Detector struct {
	storage          interfaces.StorageManager
	logger           arbor.ILogger
	hammingThreshold int
}

// NewDetector creates a detector. hammingThreshold is the maximum 256-bit
// Hamming distance for a perceptual match.
func NewDetector(storage interfaces.StorageManager, logger arbor.ILogger, hammingThreshold int) *Detector {
	return &Detector{
		storage:          storage,
		logger:           logger,
		hammingThreshold: hammingThreshold,
	}
}

// Run executes the exact and perceptual passes over a stable snapshot.
// Resolved groups are never revisited; excluded posts never participate.
func (d *Detector) Run(ctx context.Context) (*interfaces.DetectionSummary, error) {
	candidates, err := d.storage.Duplicates().ListCandidates(ctx)
	if err != nil {
		return nil, err
	}

	// Resolved groups count as coverage too: a dismissed group stays
	// dismissed until Unresolve reopens it.
	existing, err := d.storage.Duplicates().ListGroups(ctx, nil)
	if err != nil {
		return nil, err
	}
	exactGroups := make(map[string][]*exactGroup)
	perceptualCovered := make(map[int64]struct{})
	for _, g := range existing {
		ids := make(map[int64]struct{}, len(g.Posts))
		for _, p := range g.Posts {
			ids[p.ID] = struct{}{}
		}
		switch g.Group.Type {
		case models.DuplicateTypeExact:
			if len(g.Posts) > 0 {
				hash := g.Posts[0].ContentHash
				exactGroups[hash] = append(exactGroups[hash], &exactGroup{
					id:       g.Group.ID,
					resolved: g.Group.IsResolved,
					ids:      ids,
				})
			}
		case models.DuplicateTypePerceptual:
			for id := range ids {
				perceptualCovered[id] = struct{}{}
			}
		}
	}

	summary := &interfaces.DetectionSummary{CandidatesExamined: len(candidates)}

	if err := d.exactPass(ctx, candidates, exactGroups, summary); err != nil {
		return nil, err
	}
	if err := d.perceptualPass(ctx, candidates, exactGroups, perceptualCovered, summary); err != nil {
		return nil, err
	}

	d.logger.Info().
		Int("candidates", summary.CandidatesExamined).
		Int("exact_groups", summary.ExactGroupsCreated).
		Int("perceptual_groups", summary.PerceptualGroupsCreated).
		Msg("Duplicate detection complete")
	return summary, nil
}

// exactGroup is the coverage view of one existing exact group.
type exactGroup struct {
	id       int64
	resolved bool
	ids      map[int64]struct{}
}

// exactPass groups candidates by content hash.
func (d *Detector) exactPass(ctx context.Context, candidates []*interfaces.DuplicateCandidate, exactGroups map[string][]*exactGroup, summary *interfaces.DetectionSummary) error {
	byHash := make(map[string][]*interfaces.DuplicateCandidate)
	for _, c := range candidates {
		if c.ContentHash == "" {
			continue
		}
		byHash[c.ContentHash] = append(byHash[c.ContentHash], c)
	}

	for hash, cluster := range byHash {
		if len(cluster) < 2 {
			continue
		}
		matched := false
		for _, g := range exactGroups[hash] {
			if containsAll(g.ids, cluster) {
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		// A cluster that has gained members supersedes its stale unresolved
		// group, so the same posts never sit in two open exact groups.
		// Dismissed groups are left alone.
		for _, g := range exactGroups[hash] {
			if g.resolved {
				continue
			}
			if err := d.storage.Duplicates().SetResolved(ctx, g.id, true); err != nil {
				return fmt.Errorf("failed to supersede stale exact group: %w", err)
			}
			g.resolved = true
		}

		ids := make([]int64, len(cluster))
		for i, c := range cluster {
			ids[i] = c.PostID
		}
		groupID, err := d.storage.Duplicates().CreateGroup(ctx, models.DuplicateTypeExact, 100, ids)
		if err != nil {
			return fmt.Errorf("failed to create exact group: %w", err)
		}
		summary.ExactGroupsCreated++

		// New groups cover their members for the perceptual pass too.
		members := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			members[id] = struct{}{}
		}
		exactGroups[hash] = append(exactGroups[hash], &exactGroup{id: groupID, ids: members})
	}
	return nil
}

// perceptualPass buckets hashes by 16-bit prefix, pairs within buckets by
// Hamming distance, and expands pairs into connected components.
func (d *Detector) perceptualPass(ctx context.Context, candidates []*interfaces.DuplicateCandidate, exactGroups map[string][]*exactGroup, perceptualCovered map[int64]struct{}, summary *interfaces.DetectionSummary) error {
	var hashed []*interfaces.DuplicateCandidate
	for _, c := range candidates {
		if c.PerceptualHash != "" {
			hashed = append(hashed, c)
		}
	}
	if len(hashed) < 2 {
		return nil
	}

	buckets := make(map[uint16][]int)
	for i, c := range hashed {
		prefix := media.HashPrefix16(c.PerceptualHash)
		buckets[prefix] = append(buckets[prefix], i)
	}

	uf := newUnionFind(len(hashed))
	// maxDist tracks the largest accepted pair distance per component root;
	// recomputed after union by re-walking pairs below.
	type pair struct {
		a, b, dist int
	}
	var pairs []pair

	for _, bucket := range buckets {
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := bucket[i], bucket[j]
				dist, err := media.HammingDistance256(hashed[a].PerceptualHash, hashed[b].PerceptualHash)
				if err != nil {
					continue
				}
				if dist <= d.hammingThreshold {
					uf.union(a, b)
					pairs = append(pairs, pair{a, b, dist})
				}
			}
		}
	}

	components := make(map[int][]int)
	for i := range hashed {
		components[uf.find(i)] = append(components[uf.find(i)], i)
	}
	maxDist := make(map[int]int)
	for _, p := range pairs {
		root := uf.find(p.a)
		if p.dist > maxDist[root] {
			maxDist[root] = p.dist
		}
	}

	// Stable ordering keeps runs deterministic.
	roots := make([]int, 0, len(components))
	for root, members := range components {
		if len(members) >= 2 {
			roots = append(roots, root)
		}
	}
	sort.Ints(roots)

	for _, root := range roots {
		members := components[root]

		if d.componentCovered(hashed, members, exactGroups, perceptualCovered) {
			continue
		}

		ids := make([]int64, len(members))
		for i, idx := range members {
			ids[i] = hashed[idx].PostID
		}
		similarity := (100*(256-maxDist[root]) + 128) / 256
		if _, err := d.storage.Duplicates().CreateGroup(ctx, models.DuplicateTypePerceptual, similarity, ids); err != nil {
			return fmt.Errorf("failed to create perceptual group: %w", err)
		}
		summary.PerceptualGroupsCreated++
	}
	return nil
}

// componentCovered reports whether every member already sits in one exact
// group together, or in any existing perceptual group.
func (d *Detector) componentCovered(hashed []*interfaces.DuplicateCandidate, members []int, exactGroups map[string][]*exactGroup, perceptualCovered map[int64]struct{}) bool {
	for _, g := range exactGroups[hashed[members[0]].ContentHash] {
		all := true
		for _, idx := range members {
			if _, ok := g.ids[hashed[idx].PostID]; !ok {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}

	for _, idx := range members {
		if _, ok := perceptualCovered[hashed[idx].PostID]; !ok {
			return false
		}
	}
	return true
}

func containsAll(set map[int64]struct{}, cluster []*interfaces.DuplicateCandidate) bool {
	if len(set) != len(cluster) {
		return false
	}
	for _, c := range cluster {
		if _, ok := set[c.PostID]; !ok {
			return false
		}
	}
	return true
}

// unionFind is a plain array-based disjoint set with path compression.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}
