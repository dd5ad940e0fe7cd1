package models

import "testing"

func TestCoupon_DiscountFor(t *testing.T) {
	cases := []struct {
		name     string
		coupon   Coupon
		subtotal float64
		want     float64
	}{
		{
			name:     "percentage",
			coupon:   Coupon{DiscountType: DiscountTypePercentage, Value: 10},
			subtotal: 200,
			want:     20,
		},
		{
			name:     "percentage capped",
			coupon:   Coupon{DiscountType: DiscountTypePercentage, Value: 50, MaxDiscount: 25},
			subtotal: 200,
			want:     25,
		},
		{
			name:     "fixed",
			coupon:   Coupon{DiscountType: DiscountTypeFixed, Value: 15},
			subtotal: 200,
			want:     15,
		},
		{
			name:     "fixed clamped to subtotal",
			coupon:   Coupon{DiscountType: DiscountTypeFixed, Value: 50},
			subtotal: 30,
			want:     30,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.coupon.DiscountFor(tc.subtotal); got != tc.want {
				t.Errorf("DiscountFor(%.2f) = %.2f, want %.2f", tc.subtotal, got, tc.want)
			}
		})
	}
}
