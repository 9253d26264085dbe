package flow_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/odtboun/River/internal/flow"
	"github.com/odtboun/River/internal/model"
)

var _ = Describe("Render", func() {
	It("renders the offer form for the employer", func() {
		form := flow.NewForm([]model.Field{model.FieldBase, model.FieldBonus})
		Expect(form.SetInput(model.FieldBase, "100000")).To(Succeed())
		Expect(form.SetInput(model.FieldBonus, "5000")).To(Succeed())

		s := flow.Render(snapshot(model.RoleEmployer, employerKey, record(model.StatusCreated, false, false, nil)), form, flow.RenderOptions{})
		Expect(s.Step).To(Equal(model.StepEnterOffer))
		Expect(s.Primary).To(Equal(flow.ActionLockIn))
		Expect(s.Enabled).To(BeTrue())
		Expect(s.Fields).To(HaveLen(2))
		Expect(s.Fields[0].Label).To(Equal("Maximum base salary"))
		Expect(s.Total).To(Equal("105,000"))
	})

	It("disables the primary action while a submission is pending", func() {
		s := flow.Render(snapshot(model.RoleEmployer, employerKey, nil), nil, flow.RenderOptions{Pending: true})
		Expect(s.Step).To(Equal(model.StepCreate))
		Expect(s.Enabled).To(BeFalse())
	})

	It("builds the share link with the active fields", func() {
		form := flow.NewForm([]model.Field{model.FieldBase, model.FieldEquity})
		s := flow.Render(snapshot(model.RoleEmployer, employerKey, record(model.StatusCreated, true, false, nil)), form,
			flow.RenderOptions{ShareBase: "https://river.app/app"})
		Expect(s.Step).To(Equal(model.StepShareLink))
		Expect(s.ShareURL).To(Equal("https://river.app/app?n=9&fields=base,equity"))
	})

	It("disables joining a negotiation that is full", func() {
		other := "Other999"
		s := flow.Render(snapshot(model.RoleCandidate, candidateKey, record(model.StatusReady, true, false, &other)), nil, flow.RenderOptions{})
		Expect(s.Step).To(Equal(model.StepJoinPrompt))
		Expect(s.Enabled).To(BeFalse())
	})

	It("shows the binding result to each side", func() {
		cand := candidateKey
		rec := record(model.StatusComplete, true, true, &cand)

		s := flow.Render(snapshot(model.RoleCandidate, candidateKey, rec), nil, flow.RenderOptions{})
		Expect(s.Step).To(Equal(model.StepShowResult))
		Expect(s.Primary).To(Equal(flow.ActionFinalize))
		Expect(s.Result).NotTo(BeNil())
		Expect(s.Result.Match).To(BeTrue())
		Expect(s.Result.Headline).To(Equal("Match Found"))

		rec.Result = model.ResultNoMatch
		rec.MatchDetails = &model.MatchDetails{Base: true, Total: false}
		s = flow.Render(snapshot(model.RoleEmployer, employerKey, rec), nil, flow.RenderOptions{})
		Expect(s.Result.Match).To(BeFalse())
		Expect(s.Result.Headline).To(Equal("No Match"))
		Expect(s.Title).To(Equal("Negotiation Complete"))
	})
})
