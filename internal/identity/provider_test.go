package identity_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/odtboun/River/internal/identity"
	"github.com/odtboun/River/internal/model"
)

var _ = Describe("Provider", func() {
	var (
		ctx     context.Context
		wallets *mockWalletStore
		p       *identity.Provider
	)

	BeforeEach(func() {
		ctx = context.Background()
		wallets = newMockWalletStore()
		p = identity.NewProvider("device-1", wallets, nil)
	})

	It("starts disconnected", func() {
		Expect(p.Active().Connected()).To(BeFalse())
		Expect(p.Active().Mode).To(Equal(model.IdentityNone))
		_, err := p.SignTransaction(ctx, []byte("x"))
		Expect(err).To(MatchError(identity.ErrNotConnected))
		Expect(p.CanSignMessage()).To(BeFalse())
	})

	It("creates the local wallet once and reuses it", func() {
		first, err := p.ConnectBurner(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Mode).To(Equal(model.IdentityLocalFallback))
		Expect(first.Connected()).To(BeTrue())
		Expect(wallets.count()).To(Equal(1))

		p.Disconnect(ctx)
		Expect(p.Active().Connected()).To(BeFalse())
		Expect(wallets.count()).To(Equal(1))

		again, err := p.ConnectBurner(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.PublicKey).To(Equal(first.PublicKey))
	})

	It("surfaces keystore failures", func() {
		boom := errors.New("disk full")
		wallets.saveFn = func(context.Context, *model.Wallet) error { return boom }
		_, err := p.ConnectBurner(ctx)
		Expect(err).To(MatchError(boom))
		Expect(p.Active().Connected()).To(BeFalse())
	})

	It("keeps a single active identity", func() {
		_, err := p.ConnectBurner(ctx)
		Expect(err).NotTo(HaveOccurred())

		ext, err := p.ConnectExternal(ctx, txOnlySigner{key: "ExtKey"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ext).To(Equal(model.Identity{PublicKey: "ExtKey", Mode: model.IdentityExternal}))
		Expect(p.PublicKey()).To(Equal("ExtKey"))
		Expect(wallets.count()).To(Equal(1))

		sig, err := p.SignTransaction(ctx, []byte("tx"))
		Expect(err).NotTo(HaveOccurred())
		Expect(sig).To(Equal([]byte("signed")))
	})

	It("reports message signing per identity", func() {
		_, err := p.ConnectExternal(ctx, txOnlySigner{key: "ExtKey"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.CanSignMessage()).To(BeFalse())
		_, err = p.SignMessage(ctx, []byte("challenge"))
		Expect(err).To(MatchError(identity.ErrMessageSigningUnsupported))

		_, err = p.ConnectBurner(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.CanSignMessage()).To(BeTrue())
		_, err = p.SignMessage(ctx, []byte("challenge"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("auto-connects only a persisted wallet", func() {
		id, err := p.AutoConnect(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(id.Connected()).To(BeFalse())

		created, err := p.ConnectBurner(ctx)
		Expect(err).NotTo(HaveOccurred())

		fresh := identity.NewProvider("device-1", wallets, nil)
		id, err = fresh.AutoConnect(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(created))
	})

	It("exports and imports a backup", func() {
		created, err := p.ConnectBurner(ctx)
		Expect(err).NotTo(HaveOccurred())

		data, err := p.Export(ctx)
		Expect(err).NotTo(HaveOccurred())

		var decoded struct {
			PublicKey string `json:"publicKey"`
			SecretKey []int  `json:"secretKey"`
		}
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.PublicKey).To(Equal(created.PublicKey))
		Expect(decoded.SecretKey).To(HaveLen(64))

		other := identity.NewProvider("device-2", newMockWalletStore(), nil)
		imported, err := other.Import(ctx, data)
		Expect(err).NotTo(HaveOccurred())
		Expect(imported.PublicKey).To(Equal(created.PublicKey))
	})

	It("rejects a backup whose key pair does not match", func() {
		_, err := p.ConnectBurner(ctx)
		Expect(err).NotTo(HaveOccurred())
		data, err := p.Export(ctx)
		Expect(err).NotTo(HaveOccurred())

		var raw map[string]any
		Expect(json.Unmarshal(data, &raw)).To(Succeed())
		raw["publicKey"] = "11111111111111111111111111111111"
		tampered, _ := json.Marshal(raw)

		_, err = p.Import(ctx, tampered)
		Expect(err).To(MatchError(identity.ErrInvalidBackup))

		_, err = p.Import(ctx, []byte("not json"))
		Expect(err).To(MatchError(identity.ErrInvalidBackup))
	})

	It("clears the local wallet", func() {
		_, err := p.Export(ctx)
		Expect(err).To(MatchError(identity.ErrNoWallet))

		_, err = p.ConnectBurner(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Clear(ctx)).To(Succeed())
		Expect(p.Active().Connected()).To(BeFalse())
		Expect(wallets.count()).To(BeZero())
	})

	It("notifies listeners on every switch", func() {
		var seen []model.Identity
		p.OnChange(func(id model.Identity) { seen = append(seen, id) })

		_, err := p.ConnectBurner(ctx)
		Expect(err).NotTo(HaveOccurred())
		_, err = p.ConnectBurner(ctx)
		Expect(err).NotTo(HaveOccurred())
		p.Disconnect(ctx)
		p.Disconnect(ctx)

		Expect(seen).To(HaveLen(2))
		Expect(seen[0].Mode).To(Equal(model.IdentityLocalFallback))
		Expect(seen[1].Mode).To(Equal(model.IdentityNone))
	})
})
