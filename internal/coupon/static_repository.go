package coupon

import "context"

// StaticRepository is a fixed in-memory coupon table, used when no coupon
// database is configured and in tests.
type StaticRepository struct {
	coupons map[string]Coupon
}

func NewStaticRepository(coupons ...Coupon) *StaticRepository {
	m := make(map[string]Coupon, len(coupons))
	for _, c := range coupons {
		m[normalizeCode(c.Code)] = c
	}
	return &StaticRepository{coupons: m}
}

func (r *StaticRepository) GetByCode(_ context.Context, code string) (*Coupon, error) {
	c, ok := r.coupons[normalizeCode(code)]
	if !ok || !c.Active {
		return nil, ErrCouponNotFound
	}
	return &c, nil
}

func (r *StaticRepository) Close() error {
	return nil
}
