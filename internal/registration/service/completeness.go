package service

import (
	"context"
	"errors"
	"sort"

	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/platform/sentinel"
)

// completeness is what finalize still needs from a registration.
type completeness struct {
	Registrant       *models.Registrant
	PendingWaivers   []*models.Waiver
	MissingQuestions []*models.Question
}

// Err reports the first unmet requirement in the order finalize checks them.
func (c completeness) Err() error {
	if c.Registrant == nil {
		return dErrors.New(dErrors.CodeMissingRegistrant, "registrant info has not been submitted")
	}
	if len(c.PendingWaivers) > 0 {
		return dErrors.Newf(dErrors.CodeMissingWaiver, "waiver %q has not been accepted", c.PendingWaivers[0].Title)
	}
	if len(c.MissingQuestions) > 0 {
		return dErrors.Newf(dErrors.CodeMissingRequiredAnswer, "question %q requires an answer", c.MissingQuestions[0].Prompt)
	}
	return nil
}

func gatherCompleteness(ctx context.Context, st ports.Store, reg *models.Registration) (completeness, error) {
	var c completeness

	registrant, err := st.GetRegistrant(ctx, reg.ID)
	switch {
	case err == nil:
		c.Registrant = registrant
	case !errors.Is(err, sentinel.ErrNotFound):
		return c, internal(err, "failed to load registrant")
	}

	waivers, err := st.ListWaivers(ctx, reg.EditionID)
	if err != nil {
		return c, internal(err, "failed to load waivers")
	}
	accepted, err := st.ListWaiverAcceptances(ctx, reg.ID)
	if err != nil {
		return c, internal(err, "failed to load waiver acceptances")
	}
	have := make(map[string]struct{}, len(accepted))
	for _, a := range accepted {
		have[a.WaiverID.String()] = struct{}{}
	}
	sort.SliceStable(waivers, func(i, j int) bool { return waivers[i].DisplayOrder < waivers[j].DisplayOrder })
	for _, w := range waivers {
		if _, ok := have[w.ID.String()]; !ok {
			c.PendingWaivers = append(c.PendingWaivers, w)
		}
	}

	questions, err := st.ListQuestions(ctx, reg.EditionID)
	if err != nil {
		return c, internal(err, "failed to load questions")
	}
	answers, err := st.ListAnswers(ctx, reg.ID)
	if err != nil {
		return c, internal(err, "failed to load answers")
	}
	answered := make(map[string]struct{}, len(answers))
	for _, a := range answers {
		if a.Value != "" {
			answered[a.QuestionID.String()] = struct{}{}
		}
	}
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].SortOrder < questions[j].SortOrder })
	for _, q := range questions {
		if !q.IsRequired || !q.AppliesTo(reg.DistanceID) {
			continue
		}
		if _, ok := answered[q.ID.String()]; !ok {
			c.MissingQuestions = append(c.MissingQuestions, q)
		}
	}
	return c, nil
}
