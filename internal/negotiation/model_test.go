package negotiation_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/odtboun/River/internal/model"
	"github.com/odtboun/River/internal/negotiation"
)

var _ = Describe("Model", func() {
	var m *negotiation.Model

	BeforeEach(func() {
		m = negotiation.NewModel(model.RoleCandidate)
	})

	It("starts on need-link for a candidate without a link", func() {
		Expect(m.Step()).To(Equal(model.StepNeedLink))
	})

	It("re-derives after every mutation", func() {
		Expect(m.SetID(idPtr(1))).To(Equal(model.StepLoading))
		Expect(m.SetRecord(rec(model.StatusEmployerSubmitted, withOffer))).To(Equal(model.StepJoinPrompt))
		Expect(m.SetIdentity(identity(candidateKey))).To(Equal(model.StepJoinPrompt))
		Expect(m.SetRecord(rec(model.StatusReady, withOffer, joinedBy(candidateKey)))).To(Equal(model.StepEnterRequirement))
		Expect(m.Clear()).To(Equal(model.StepNeedLink))
	})

	It("accepts an older-looking poll result as the new truth", func() {
		m.SetID(idPtr(1))
		m.SetIdentity(identity(candidateKey))
		m.SetRecord(rec(model.StatusComplete, withOffer, withRequirement, joinedBy(candidateKey), resolvedAs(true)))
		Expect(m.Step()).To(Equal(model.StepShowResult))

		m.SetRecord(rec(model.StatusReady, withOffer, joinedBy(candidateKey)))
		Expect(m.Step()).To(Equal(model.StepEnterRequirement))
	})

	It("drops a record that belongs to another negotiation", func() {
		m.SetID(idPtr(1))
		m.SetRecord(rec(model.StatusCreated))
		m.SetID(idPtr(2))
		Expect(m.Snapshot().Record).To(BeNil())
		Expect(m.Step()).To(Equal(model.StepLoading))
	})

	It("does not share the cached record with callers", func() {
		r := rec(model.StatusReady, withOffer, joinedBy(candidateKey))
		m.SetID(idPtr(1))
		m.SetRecord(r)
		*r.Candidate = strangerKey
		Expect(*m.Snapshot().Record.Candidate).To(Equal(candidateKey))
	})

	Describe("Subscribe", func() {
		It("delivers the current step and then the newest step", func() {
			steps, cancel := m.Subscribe()
			defer cancel()

			Expect(<-steps).To(Equal(model.StepNeedLink))

			m.SetID(idPtr(1))
			m.SetRecord(rec(model.StatusCreated))
			Eventually(steps).Should(Receive(Equal(model.StepAwaitEmployer)))
			Consistently(steps).ShouldNot(Receive())
		})

		It("closes the channel on cancel", func() {
			steps, cancel := m.Subscribe()
			<-steps
			cancel()
			cancel()
			Eventually(steps).Should(BeClosed())
		})

		It("closes every subscriber on Close", func() {
			a, cancelA := m.Subscribe()
			b, _ := m.Subscribe()
			m.Close()
			cancelA()
			Eventually(a).Should(BeClosed())
			Eventually(b).Should(BeClosed())
		})
	})
})
