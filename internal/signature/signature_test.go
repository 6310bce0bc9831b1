package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestCompute_KnownVector(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte("order_1|pay_1"))
	want := hex.EncodeToString(mac.Sum(nil))

	got := Compute("order_1", "pay_1", "s3cret")
	if got != want {
		t.Errorf("Compute() = %s, want %s", got, want)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	a := Compute("order_1", "pay_1", "s3cret")
	b := Compute("order_1", "pay_1", "s3cret")
	if a != b {
		t.Errorf("Compute() not deterministic: %s != %s", a, b)
	}
}

func TestVerify(t *testing.T) {
	sig := Compute("order_1", "pay_1", "s3cret")

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		received  string
		want      bool
	}{
		{"valid signature", "order_1", "pay_1", sig, true},
		{"wrong payment id", "order_1", "pay_2", sig, false},
		{"wrong order id", "order_2", "pay_1", sig, false},
		{"empty signature", "order_1", "pay_1", "", false},
		{"truncated signature", "order_1", "pay_1", sig[:len(sig)-1], false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.orderID, tt.paymentID, tt.received, "s3cret"); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerify_SingleByteFlip(t *testing.T) {
	sig := Compute("order_1", "pay_1", "s3cret")

	// Flipping any one byte of the payment ID must flip the match result.
	if Verify("order_1", "pay_2", sig, "s3cret") {
		t.Error("Verify() accepted signature for a different payment id")
	}
	if Verify("order_1", "pay_1", sig, "other_secret") {
		t.Error("Verify() accepted signature under a different secret")
	}
}

func TestCompute_DelimiterCollision(t *testing.T) {
	// The scheme signs the raw concatenation "<order_id>|<payment_id>", so IDs
	// containing the delimiter collide: "a|b"+"c" and "a"+"b|c" both sign the
	// bytes "a|b|c". Gateway-issued IDs never contain '|'; this pins down the
	// assumption the scheme rests on.
	if Compute("a|b", "c", "k") != Compute("a", "b|c", "k") {
		t.Error("identical concatenated bytes produced different signatures")
	}
}
