package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/odtboun/River/internal/app"
	"github.com/odtboun/River/internal/flow"
	"github.com/odtboun/River/internal/http/handler"
	"github.com/odtboun/River/internal/http/middleware"
	"github.com/odtboun/River/internal/http/router"
	"github.com/odtboun/River/internal/model"
	"github.com/odtboun/River/internal/service"
)

func newRouter(svc service.SessionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Device(false))

	sessionHandler := handler.NewSessionHandler(svc)
	router.AppRouter(v1, sessionHandler)
	router.SessionRouter(v1.Group("/session"), sessionHandler)
	router.IdentityRouter(v1.Group("/identity"), handler.NewIdentityHandler(svc))
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "river_device", Value: "1001"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var _ = Describe("SessionHandler", func() {
	var (
		r    *gin.Engine
		svc  *mockSessionService
		sess *mockSession
	)

	BeforeEach(func() {
		negID := int64(42)
		sess = &mockSession{state: app.State{
			DeviceID:      "1001",
			View:          model.ViewCandidate,
			NegotiationID: &negID,
			Screen:        &flow.Screen{Step: model.StepLoading, Role: model.RoleCandidate},
			Identity:      model.Identity{Mode: model.IdentityNone},
			Fields:        model.DefaultFields(),
			Location:      "/?n=42",
		}}
		svc = &mockSessionService{session: sess}
		r = newRouter(svc)
	})

	Describe("device cookie", func() {
		It("issues a device cookie on first contact", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			cookies := w.Result().Cookies()
			Expect(cookies).To(HaveLen(1))
			Expect(cookies[0].Name).To(Equal("river_device"))
			Expect(cookies[0].HttpOnly).To(BeTrue())
			Expect(svc.devices).To(Equal([]string{cookies[0].Value}))
		})

		It("reuses a valid device cookie", func() {
			w := doJSON(r, http.MethodGet, "/api/v1/session", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Result().Cookies()).To(BeEmpty())
			Expect(svc.devices).To(Equal([]string{"1001"}))
		})

		It("replaces a malformed device cookie", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
			req.AddCookie(&http.Cookie{Name: "river_device", Value: "not-a-device"})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			Expect(w.Result().Cookies()).To(HaveLen(1))
			Expect(svc.devices[0]).NotTo(Equal("not-a-device"))
		})
	})

	Describe("Open", func() {
		It("passes the query string to the session", func() {
			var got string
			sess.openFn = func(_ context.Context, rawQuery string) { got = rawQuery }

			w := doJSON(r, http.MethodGet, "/api/v1/app?n=42&fields=base,bonus", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(got).To(Equal("n=42&fields=base,bonus"))
		})
	})

	Describe("Get", func() {
		It("renders the session state", func() {
			w := doJSON(r, http.MethodGet, "/api/v1/session", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["view"]).To(Equal("candidate"))
			Expect(resp["negotiation_id"]).To(Equal("42"))
			Expect(resp["screen"]).To(HaveKeyWithValue("step", "loading"))
			Expect(resp["identity"]).To(HaveKeyWithValue("connected", false))
		})

		It("returns 503 while shutting down", func() {
			svc.getFn = func(context.Context, string) (service.Session, error) {
				return nil, service.ErrShuttingDown
			}
			w := doJSON(r, http.MethodGet, "/api/v1/session", nil)
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("returns 500 when the session cannot be built", func() {
			svc.getFn = func(context.Context, string) (service.Session, error) {
				return nil, fmt.Errorf("boom")
			}
			w := doJSON(r, http.MethodGet, "/api/v1/session", nil)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("SetView", func() {
		It("switches the view", func() {
			w := doJSON(r, http.MethodPost, "/api/v1/session/view", map[string]string{"view": "employer"})

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(sess.views).To(Equal([]model.View{model.ViewEmployer}))
		})

		It("rejects an unknown view", func() {
			w := doJSON(r, http.MethodPost, "/api/v1/session/view", map[string]string{"view": "admin"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(sess.views).To(BeEmpty())
		})
	})

	Describe("SetFields", func() {
		It("passes the parsed fields", func() {
			w := doJSON(r, http.MethodPut, "/api/v1/session/fields", map[string]any{"fields": []string{"base", "equity"}})

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(sess.fields).To(Equal([][]model.Field{{model.FieldBase, model.FieldEquity}}))
		})

		It("rejects unknown fields", func() {
			w := doJSON(r, http.MethodPut, "/api/v1/session/fields", map[string]any{"fields": []string{"salary"}})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("UpdateForm", func() {
		It("sets every input", func() {
			got := map[model.Field]string{}
			sess.setInputFn = func(f model.Field, raw string) error {
				got[f] = raw
				return nil
			}

			w := doJSON(r, http.MethodPut, "/api/v1/session/form", map[string]any{
				"inputs": map[string]string{"base": "$150,000", "bonus": "20000"},
			})

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(got).To(Equal(map[model.Field]string{
				model.FieldBase:  "$150,000",
				model.FieldBonus: "20000",
			}))
		})

		It("returns 400 for an inactive field", func() {
			sess.setInputFn = func(model.Field, string) error {
				return fmt.Errorf("%w: equity is not active", flow.ErrInvalidInput)
			}
			w := doJSON(r, http.MethodPut, "/api/v1/session/form", map[string]any{
				"inputs": map[string]string{"equity": "5"},
			})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 for an unknown field", func() {
			w := doJSON(r, http.MethodPut, "/api/v1/session/form", map[string]any{
				"inputs": map[string]string{"salary": "5"},
			})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("total override", func() {
		It("sets and resets the override", func() {
			w := doJSON(r, http.MethodPut, "/api/v1/session/form/total", map[string]string{"total": "170000"})
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(sess.total).To(HaveValue(Equal("170000")))

			w = doJSON(r, http.MethodDelete, "/api/v1/session/form/total", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(sess.total).To(BeNil())
		})
	})

	Describe("Perform", func() {
		It("runs the named action", func() {
			var got flow.Action
			sess.performFn = func(_ context.Context, a flow.Action) error {
				got = a
				return nil
			}

			w := doJSON(r, http.MethodPost, "/api/v1/session/actions/submit-requirement", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(got).To(Equal(flow.ActionSubmitRequirement))
		})

		It("returns 404 for an unknown action", func() {
			w := doJSON(r, http.MethodPost, "/api/v1/session/actions/airdrop", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		DescribeTable("maps errors",
			func(err error, status int) {
				sess.performFn = func(context.Context, flow.Action) error { return err }
				w := doJSON(r, http.MethodPost, "/api/v1/session/actions/lock-in", nil)
				Expect(w.Code).To(Equal(status))
			},
			Entry("pending submission", flow.ErrSubmissionPending, http.StatusConflict),
			Entry("action not on screen", fmt.Errorf("%w: lock-in on loading", flow.ErrActionNotAllowed), http.StatusConflict),
			Entry("invalid input", fmt.Errorf("%w: base is required", flow.ErrInvalidInput), http.StatusBadRequest),
			Entry("anything else", fmt.Errorf("boom"), http.StatusInternalServerError),
		)

		It("answers 200 with last_error when the ledger refused", func() {
			sess.performFn = func(context.Context, flow.Action) error {
				sess.state.LastError = "Your numbers were already submitted."
				return nil
			}

			w := doJSON(r, http.MethodPost, "/api/v1/session/actions/lock-in", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["last_error"]).To(Equal("Your numbers were already submitted."))
		})
	})

	It("resets the session", func() {
		w := doJSON(r, http.MethodPost, "/api/v1/session/reset", nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(sess.resets).To(Equal(1))
		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["view"]).To(Equal("landing"))
		Expect(resp).NotTo(HaveKey("negotiation_id"))
	})

	It("dismisses the last error", func() {
		sess.state.LastError = "Transaction failed: boom"
		w := doJSON(r, http.MethodDelete, "/api/v1/session/error", nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(sess.state.LastError).To(BeEmpty())
	})

	Describe("Events", func() {
		It("streams step changes until the session closes", func() {
			sess.subscribeFn = func() (<-chan model.Step, func()) {
				ch := make(chan model.Step, 2)
				ch <- model.StepLoading
				ch <- model.StepJoinPrompt
				close(ch)
				return ch, func() {}
			}

			w := doJSON(r, http.MethodGet, "/api/v1/session/events", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/event-stream"))
			body := w.Body.String()
			Expect(body).To(HavePrefix("event: ping\ndata: ready\n\n"))
			Expect(body).To(ContainSubstring(`"step":"loading"`))
			Expect(body).To(ContainSubstring(`"step":"join-prompt"`))
			Expect(body).To(HaveSuffix("event: closed\ndata: session closed\n\n"))
		})
	})
})
