package flow_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/odtboun/River/internal/flow"
	"github.com/odtboun/River/internal/model"
)

var _ = Describe("Form", func() {
	It("defaults to the base field", func() {
		f := flow.NewForm(nil)
		Expect(f.Fields()).To(Equal([]model.Field{model.FieldBase}))
	})

	It("keeps only digits and renders grouped values", func() {
		f := flow.NewForm(nil)
		Expect(f.SetInput(model.FieldBase, "$120,000abc")).To(Succeed())
		Expect(f.Input(model.FieldBase)).To(Equal("120,000"))
		Expect(f.Total()).To(Equal("120,000"))
	})

	It("rejects unknown fields", func() {
		f := flow.NewForm(nil)
		Expect(f.SetInput(model.Field("salary"), "1")).To(MatchError(flow.ErrInvalidInput))
	})

	It("sums only the active fields", func() {
		f := flow.NewForm([]model.Field{model.FieldBase, model.FieldBonus})
		Expect(f.SetInput(model.FieldBase, "100000")).To(Succeed())
		Expect(f.SetInput(model.FieldBonus, "20000")).To(Succeed())
		Expect(f.SetInput(model.FieldEquity, "5000")).To(Succeed())
		Expect(f.Total()).To(Equal("120,000"))

		a, err := f.Amounts()
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(model.Amounts{Base: 100000, Bonus: 20000}))
	})

	It("uses a manual total until it is reset", func() {
		f := flow.NewForm(nil)
		Expect(f.SetInput(model.FieldBase, "90000")).To(Succeed())
		f.OverrideTotal("95,000")
		Expect(f.TotalOverridden()).To(BeTrue())
		Expect(f.Total()).To(Equal("95,000"))

		a, err := f.Amounts()
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Total).To(Equal(uint64(95000)))
		Expect(a.EffectiveTotal()).To(Equal(uint64(95000)))

		f.ResetTotal()
		Expect(f.TotalOverridden()).To(BeFalse())
		Expect(f.Total()).To(Equal("90,000"))
	})

	DescribeTable("validation",
		func(fields []model.Field, inputs map[model.Field]string, override *string, valid bool) {
			f := flow.NewForm(fields)
			for field, raw := range inputs {
				Expect(f.SetInput(field, raw)).To(Succeed())
			}
			if override != nil {
				f.OverrideTotal(*override)
			}
			if valid {
				Expect(f.Validate()).To(Succeed())
			} else {
				Expect(f.Validate()).To(MatchError(flow.ErrInvalidInput))
			}
		},
		Entry("positive base", nil, map[model.Field]string{model.FieldBase: "1"}, nil, true),
		Entry("empty base", nil, map[model.Field]string{}, nil, false),
		Entry("zero base", nil, map[model.Field]string{model.FieldBase: "0"}, nil, false),
		Entry("letters only", nil, map[model.Field]string{model.FieldBase: "abc"}, nil, false),
		Entry("missing active bonus",
			[]model.Field{model.FieldBase, model.FieldBonus},
			map[model.Field]string{model.FieldBase: "10"}, nil, false),
		Entry("inactive field ignored", nil,
			map[model.Field]string{model.FieldBase: "10", model.FieldEquity: "0"}, nil, true),
		Entry("zero override", nil, map[model.Field]string{model.FieldBase: "10"}, ptr("0"), false),
		Entry("empty override", nil, map[model.Field]string{model.FieldBase: "10"}, ptr(""), false),
		Entry("positive override", nil, map[model.Field]string{model.FieldBase: "10"}, ptr("12"), true),
	)

	It("clears inputs but keeps the active fields", func() {
		f := flow.NewForm([]model.Field{model.FieldBonus})
		Expect(f.SetInput(model.FieldBonus, "5")).To(Succeed())
		f.OverrideTotal("7")
		f.Clear()
		Expect(f.Fields()).To(Equal([]model.Field{model.FieldBonus}))
		Expect(f.Total()).To(BeEmpty())
		Expect(f.TotalOverridden()).To(BeFalse())
	})
})

func ptr(s string) *string { return &s }
