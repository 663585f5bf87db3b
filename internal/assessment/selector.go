package assessment

import (
	"sort"

	"github.com/course-lab/courselab-lms/internal/rng"
)

// QuestionListEntry is one slot of a rendered assessment version: the chosen
// question, its render seed and its place in the ordering.
type QuestionListEntry struct {
	QuestionSetNumber int              `json:"question_set"`
	Question          Question         `json:"question"`
	Seed              string           `json:"seed"`
	QuestionAttempt   *QuestionAttempt `json:"question_attempt,omitempty"`
	RelativeWeight    float64          `json:"relative_weight"`
	Points            float64          `json:"points,omitempty"`
	Group             string           `json:"group,omitempty"`
	PreviousSameGroup bool             `json:"previous_same_group,omitempty"`
}

// SelectQuestions draws one question per question-set and orders the slots.
//
// The generator is consumed in a fixed order: for each question-set, in
// assessment order, one choice draw then one seed draw. Ordering shuffles
// happen after all per-set draws, so questionsOnly callers see the same
// question choices a full selection would.
func SelectQuestions(a *Assessment, g *rng.Rng, fixedOrder, questionsOnly bool) []QuestionListEntry {
	if a == nil || len(a.QuestionSets) == 0 {
		return nil
	}

	total := a.TotalWeight()
	entries := make([]QuestionListEntry, 0, len(a.QuestionSets))
	for _, qs := range a.QuestionSets {
		var q Question
		if n := len(qs.Questions); n > 0 {
			q = qs.Questions[g.Choice(n)]
		}
		seed := g.DeriveSeed()

		relWeight := qs.Weight
		if total != 0 {
			relWeight = qs.Weight / total
		}
		e := QuestionListEntry{
			QuestionSetNumber: qs.Number,
			Question:          q,
			Seed:              seed,
			RelativeWeight:    relWeight,
			Group:             qs.Group,
		}
		if !questionsOnly {
			e.Points = q.Points
		}
		entries = append(entries, e)
	}

	if !fixedOrder {
		entries = shuffleGrouped(entries, g)
	}
	markAdjacency(entries)
	return entries
}

// shuffleGrouped shuffles question-sets while keeping same-group sets
// adjacent. Ungrouped sets each form their own singleton group so they never
// stick together by accident.
func shuffleGrouped(entries []QuestionListEntry, g *rng.Rng) []QuestionListEntry {
	var groups [][]QuestionListEntry
	byLabel := map[string]int{}
	for _, e := range entries {
		if e.Group == "" {
			groups = append(groups, []QuestionListEntry{e})
			continue
		}
		if i, ok := byLabel[e.Group]; ok {
			groups[i] = append(groups[i], e)
			continue
		}
		byLabel[e.Group] = len(groups)
		groups = append(groups, []QuestionListEntry{e})
	}

	g.Shuffle(len(groups), func(i, j int) { groups[i], groups[j] = groups[j], groups[i] })
	out := make([]QuestionListEntry, 0, len(entries))
	for _, members := range groups {
		g.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		out = append(out, members...)
	}
	return out
}

func markAdjacency(entries []QuestionListEntry) {
	for i := range entries {
		entries[i].PreviousSameGroup = i > 0 &&
			entries[i].Group != "" && entries[i].Group == entries[i-1].Group
	}
}

// QuestionListFromAttempt rebuilds the question list of an existing attempt
// from its stored question-set and question-attempt bindings instead of
// drawing new ones.
//
// An explicit question-attempt list that does not cover exactly the attempt's
// question-sets is discarded in favor of the attempt's own latest question
// attempts. If neither source yields one question attempt per question-set,
// there is no reconstructable list and nil is returned.
func QuestionListFromAttempt(a *Assessment, attempt *ContentAttempt, sets []AttemptQuestionSet, latest, explicit []QuestionAttempt) []QuestionListEntry {
	if a == nil || attempt == nil || len(sets) == 0 {
		return nil
	}

	chosen := pickCovering(attempt, sets, explicit)
	if chosen == nil {
		chosen = pickCovering(attempt, sets, latest)
	}
	if chosen == nil {
		return nil
	}

	ordered := make([]AttemptQuestionSet, len(sets))
	copy(ordered, sets)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].QuestionNumber < ordered[j].QuestionNumber })

	total := a.TotalWeight()
	entries := make([]QuestionListEntry, 0, len(ordered))
	for _, aqs := range ordered {
		def := a.QuestionSetByNumber(aqs.QuestionSetNumber)
		if def == nil {
			return nil
		}
		qa := chosen[aqs.QuestionSetNumber]

		q := Question{ID: qa.QuestionID}
		for _, cand := range def.Questions {
			if cand.ID == qa.QuestionID {
				q = cand
				break
			}
		}
		relWeight := def.Weight
		if total != 0 {
			relWeight = def.Weight / total
		}
		entries = append(entries, QuestionListEntry{
			QuestionSetNumber: aqs.QuestionSetNumber,
			Question:          q,
			Seed:              qa.Seed,
			QuestionAttempt:   qa,
			RelativeWeight:    relWeight,
			Points:            q.Points,
			Group:             def.Group,
		})
	}
	markAdjacency(entries)
	return entries
}

// pickCovering maps question-set number to question attempt when the supplied
// attempts belong to the attempt and cover its question-sets exactly; nil
// otherwise. Later entries win so "latest" semantics hold for duplicates.
func pickCovering(attempt *ContentAttempt, sets []AttemptQuestionSet, qas []QuestionAttempt) map[int]*QuestionAttempt {
	if len(qas) == 0 {
		return nil
	}
	want := map[int]bool{}
	for _, s := range sets {
		want[s.QuestionSetNumber] = true
	}
	got := map[int]*QuestionAttempt{}
	for i := range qas {
		qa := &qas[i]
		if qa.AttemptID != attempt.ID || !want[qa.QuestionSetNumber] {
			return nil
		}
		got[qa.QuestionSetNumber] = qa
	}
	if len(got) != len(want) {
		return nil
	}
	return got
}
