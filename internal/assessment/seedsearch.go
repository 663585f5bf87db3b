package assessment

import "github.com/course-lab/courselab-lms/internal/rng"

// SeedSearchParams steers the coursewide seed search. Avoid maps question IDs
// to a penalty per occurrence; Include maps question IDs to a penalty charged
// when the question is absent from the selection.
type SeedSearchParams struct {
	Avoid         map[string]int
	Include       map[string]int
	StartSeed     string
	MaxIterations int
}

// SearchSeed brute-forces candidate seeds, derived deterministically from the
// start seed, looking for a selection that dodges the avoided questions and
// covers the included ones. The first zero-penalty seed wins; after the
// iteration budget the lowest-penalty seed seen is returned.
func SearchSeed(a *Assessment, p SeedSearchParams) string {
	maxIter := p.MaxIterations
	if maxIter <= 0 {
		maxIter = 1000
	}
	g := rng.New(p.StartSeed)

	bestSeed := ""
	bestPenalty := -1
	for i := 0; i < maxIter; i++ {
		cand := g.DeriveSeed()
		list := SelectQuestions(a, rng.New(cand), a.FixedOrder, true)

		chosen := map[string]bool{}
		penalty := 0
		for _, e := range list {
			chosen[e.Question.ID] = true
			penalty += p.Avoid[e.Question.ID]
		}
		for id, cost := range p.Include {
			if !chosen[id] {
				penalty += cost
			}
		}
		if penalty == 0 {
			return cand
		}
		if bestPenalty < 0 || penalty < bestPenalty {
			bestSeed, bestPenalty = cand, penalty
		}
	}
	return bestSeed
}
