package identity_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/odtboun/River/internal/identity"
)

var _ = Describe("Burner", func() {
	It("signs verifiably with its base58 key", func() {
		b, err := identity.NewBurner()
		Expect(err).NotTo(HaveOccurred())

		payload := []byte(`{"instruction":"join"}`)
		sig, err := b.SignTransaction(context.Background(), payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(identity.Verify(b.PublicKey(), payload, sig)).To(BeTrue())
		Expect(identity.Verify(b.PublicKey(), []byte("tampered"), sig)).To(BeFalse())

		msgSig, err := b.SignMessage(context.Background(), []byte("challenge"))
		Expect(err).NotTo(HaveOccurred())
		Expect(identity.Verify(b.PublicKey(), []byte("challenge"), msgSig)).To(BeTrue())
	})

	It("restores from its persisted secret", func() {
		b, err := identity.NewBurner()
		Expect(err).NotTo(HaveOccurred())

		w := b.Wallet("device-1")
		restored, err := identity.BurnerFromSecret(w.SecretKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(restored.PublicKey()).To(Equal(b.PublicKey()))
		Expect(w.PublicKey).To(Equal(b.PublicKey()))
	})

	It("rejects malformed secrets", func() {
		_, err := identity.BurnerFromSecret([]byte{1, 2, 3})
		Expect(err).To(MatchError(identity.ErrInvalidBackup))

		b, err := identity.NewBurner()
		Expect(err).NotTo(HaveOccurred())
		secret := b.Wallet("x").SecretKey
		secret[63] ^= 0xff
		_, err = identity.BurnerFromSecret(secret)
		Expect(err).To(MatchError(identity.ErrInvalidBackup))
	})

	It("rejects garbage public keys", func() {
		Expect(identity.Verify("0OIl", []byte("m"), []byte("s"))).To(BeFalse())
	})
})
