package ledger_test

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/odtboun/River/internal/ledger"
	"github.com/odtboun/River/internal/model"
)

type countingReader struct {
	calls atomic.Int32
	rec   *model.NegotiationRecord
	err   error
}

func (r *countingReader) Fetch(context.Context, int64) (*model.NegotiationRecord, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return r.rec.Clone(), nil
}

var _ = Describe("CachedReader", func() {
	var (
		ctx   context.Context
		mr    *miniredis.Miniredis
		rdb   *redis.Client
		next  *countingReader
		cache *ledger.CachedReader
	)

	BeforeEach(func() {
		ctx = context.Background()
		mr = miniredis.RunT(GinkgoT())
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		next = &countingReader{rec: &model.NegotiationRecord{ID: 5, Employer: "Emp", Status: model.StatusReady}}
		cache = ledger.NewCachedReader(next, rdb, time.Second, nil)
	})

	AfterEach(func() {
		_ = rdb.Close()
	})

	It("serves repeated fetches from redis within the ttl", func() {
		first, err := cache.Fetch(ctx, 5)
		Expect(err).NotTo(HaveOccurred())
		second, err := cache.Fetch(ctx, 5)
		Expect(err).NotTo(HaveOccurred())

		Expect(second).To(Equal(first))
		Expect(next.calls.Load()).To(Equal(int32(1)))

		mr.FastForward(2 * time.Second)
		_, err = cache.Fetch(ctx, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(next.calls.Load()).To(Equal(int32(2)))
	})

	It("refetches after invalidation", func() {
		_, err := cache.Fetch(ctx, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(cache.Invalidate(ctx, 5)).To(Succeed())
		_, err = cache.Fetch(ctx, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(next.calls.Load()).To(Equal(int32(2)))
	})

	It("does not cache a missing negotiation", func() {
		next.err = ledger.ErrNotFound
		_, err := cache.Fetch(ctx, 5)
		Expect(err).To(MatchError(ledger.ErrNotFound))
		_, err = cache.Fetch(ctx, 5)
		Expect(err).To(MatchError(ledger.ErrNotFound))
		Expect(next.calls.Load()).To(Equal(int32(2)))
	})

	It("falls through to the ledger when redis is down", func() {
		down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		defer down.Close()
		cache = ledger.NewCachedReader(next, down, time.Second, nil)

		rec, err := cache.Fetch(ctx, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.ID).To(Equal(int64(5)))
	})
})
