package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/mr-tron/base58"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/odtboun/River/internal/identity"
)

var _ = Describe("RemoteSigner", func() {
	var (
		bridgeKey *identity.Burner
		signMsg   bool
		server    *httptest.Server
	)

	BeforeEach(func() {
		var err error
		bridgeKey, err = identity.NewBurner()
		Expect(err).NotTo(HaveOccurred())
		signMsg = true

		mux := http.NewServeMux()
		mux.HandleFunc("GET /capabilities", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"publicKey":   bridgeKey.PublicKey(),
				"signMessage": signMsg,
			})
		})
		sign := func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Payload string `json:"payload"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			payload, err := base58.Decode(req.Payload)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			sig, _ := bridgeKey.SignTransaction(r.Context(), payload)
			_ = json.NewEncoder(w).Encode(map[string]string{"signature": base58.Encode(sig)})
		}
		mux.HandleFunc("POST /sign/transaction", sign)
		mux.HandleFunc("POST /sign/message", sign)
		server = httptest.NewServer(mux)
	})

	AfterEach(func() {
		server.Close()
	})

	It("signs through the bridge", func() {
		s, err := identity.DialRemote(context.Background(), server.URL+"/", server.Client())
		Expect(err).NotTo(HaveOccurred())
		Expect(s.PublicKey()).To(Equal(bridgeKey.PublicKey()))
		Expect(s.CanSignMessage()).To(BeTrue())

		sig, err := s.SignTransaction(context.Background(), []byte("tx-bytes"))
		Expect(err).NotTo(HaveOccurred())
		Expect(identity.Verify(s.PublicKey(), []byte("tx-bytes"), sig)).To(BeTrue())
	})

	It("refuses message signing the bridge does not offer", func() {
		signMsg = false
		s, err := identity.DialRemote(context.Background(), server.URL, server.Client())
		Expect(err).NotTo(HaveOccurred())
		_, err = s.SignMessage(context.Background(), []byte("challenge"))
		Expect(err).To(MatchError(identity.ErrMessageSigningUnsupported))

		p := identity.NewProvider("device-1", newMockWalletStore(), nil)
		_, err = p.ConnectExternal(context.Background(), s)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.CanSignMessage()).To(BeFalse())
	})

	It("fails to dial a bridge that is down", func() {
		url := server.URL
		server.Close()
		_, err := identity.DialRemote(context.Background(), url, nil)
		Expect(err).To(HaveOccurred())
	})
})
