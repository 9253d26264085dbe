package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/odtboun/River/core/config"
	"github.com/odtboun/River/core/db"
	"github.com/odtboun/River/internal/app"
	"github.com/odtboun/River/internal/ledger/ledgertest"
	"github.com/odtboun/River/internal/model"
	"github.com/odtboun/River/internal/store"
)

var _ = Describe("SessionService", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		sqlDB    *sql.DB
		services *Services
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = ledgertest.New().Server()

		var err error
		sqlDB, err = db.OpenSQLite(ctx, ":memory:")
		Expect(err).NotTo(HaveOccurred())
		stores := store.NewSQLiteStores(sqlDB)
		Expect(stores.Migrate(ctx)).To(Succeed())

		services = NewServices(ServicesConfig{
			Stores:     stores,
			Ledger:     config.LedgerConfig{URL: server.URL, PollInterval: 20 * time.Millisecond},
			HTTPClient: server.Client(),
			PublicURL:  "https://river.example",
			Sessions:   config.SessionConfig{IdleTTL: time.Minute},
		})
	})

	AfterEach(func() {
		services.Shutdown()
		server.Close()
		sqlDB.Close()
	})

	It("keeps one session per device", func() {
		a, err := services.Sessions().Get(ctx, "dev-a")
		Expect(err).NotTo(HaveOccurred())
		again, err := services.Sessions().Get(ctx, "dev-a")
		Expect(err).NotTo(HaveOccurred())
		b, err := services.Sessions().Get(ctx, "dev-b")
		Expect(err).NotTo(HaveOccurred())

		Expect(again).To(BeIdenticalTo(a))
		Expect(b).NotTo(BeIdenticalTo(a))
		Expect(a.State().DeviceID).To(Equal("dev-a"))
	})

	It("restores the device's local wallet in a new session", func() {
		first, err := services.Sessions().Get(ctx, "dev-a")
		Expect(err).NotTo(HaveOccurred())
		ident, err := first.ConnectBurner(ctx)
		Expect(err).NotTo(HaveOccurred())

		services.Sessions().Close("dev-a")

		second, err := services.Sessions().Get(ctx, "dev-a")
		Expect(err).NotTo(HaveOccurred())
		Expect(second).NotTo(BeIdenticalTo(first))
		Expect(second.State().Identity).To(Equal(ident))
		Expect(second.State().Identity.Mode).To(Equal(model.IdentityLocalFallback))
	})

	It("reports the external wallet as unavailable without a bridge", func() {
		sess, err := services.Sessions().Get(ctx, "dev-a")
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.ConnectExternal(ctx)
		Expect(err).To(MatchError(app.ErrExternalUnavailable))
	})

	It("drives the app session through the registry", func() {
		sess, err := services.Sessions().Get(ctx, "dev-a")
		Expect(err).NotTo(HaveOccurred())
		sess.SetView(model.ViewEmployer)
		Expect(sess.State().Screen.Step).To(Equal(model.StepCreate))
	})

	It("refuses new sessions after shutdown", func() {
		_, err := services.Sessions().Get(ctx, "dev-a")
		Expect(err).NotTo(HaveOccurred())

		services.Shutdown()
		_, err = services.Sessions().Get(ctx, "dev-a")
		Expect(err).To(MatchError(ErrShuttingDown))
	})

	Describe("sweep", func() {
		var svc *sessionService

		BeforeEach(func() {
			svc = newSessionService(services.newSession, time.Minute, 0, nil)
		})

		AfterEach(func() {
			svc.Shutdown()
		})

		It("closes sessions idle past the ttl", func() {
			_, err := svc.Get(ctx, "dev-a")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Get(ctx, "dev-b")
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.sweep(time.Now())).To(BeZero())
			Expect(svc.count()).To(Equal(2))

			Expect(svc.sweep(time.Now().Add(2 * time.Minute))).To(Equal(2))
			Expect(svc.count()).To(BeZero())
		})

		It("ends event streams of swept sessions", func() {
			sess, err := svc.Get(ctx, "dev-a")
			Expect(err).NotTo(HaveOccurred())
			steps, cancel := sess.Subscribe()
			defer cancel()

			svc.sweep(time.Now().Add(2 * time.Minute))
			Eventually(steps).Should(BeClosed())
		})
	})

	It("sweeps in the background", func() {
		svc := newSessionService(services.newSession, 10*time.Millisecond, 5*time.Millisecond, nil)
		defer svc.Shutdown()

		_, err := svc.Get(ctx, "dev-a")
		Expect(err).NotTo(HaveOccurred())
		Eventually(svc.count).Should(BeZero())
	})

	It("propagates factory failures", func() {
		boom := errors.New("boom")
		svc := newSessionService(func(context.Context, string) (*app.Session, error) {
			return nil, boom
		}, 0, 0, nil)
		defer svc.Shutdown()

		_, err := svc.Get(ctx, "dev-a")
		Expect(err).To(MatchError(boom))
		Expect(svc.count()).To(BeZero())
	})
})
