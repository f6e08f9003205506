package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeStringMap(t *testing.T) {
	t.Run("trims gateway payload keys and values", func(t *testing.T) {
		input := map[string]string{
			" vnp_TxnRef ":  " ORD1748772000000 ",
			"vnp_OrderInfo": " Thanh toan don hang ",
			"vnp_BankCode":  " ",
			" ":             "ignored",
			"":              "ignored",
		}

		expected := map[string]string{
			"vnp_TxnRef":    "ORD1748772000000",
			"vnp_OrderInfo": "Thanh toan don hang",
			"vnp_BankCode":  "",
		}

		actual := NormalizeStringMap(input)
		if !reflect.DeepEqual(actual, expected) {
			t.Fatalf("expected %#v got %#v", expected, actual)
		}
	})

	t.Run("returns nil for nil or empty input", func(t *testing.T) {
		if NormalizeStringMap(nil) != nil {
			t.Fatal("expected nil for nil input")
		}
		if NormalizeStringMap(map[string]string{}) != nil {
			t.Fatal("expected nil for empty map")
		}
		if NormalizeStringMap(map[string]string{"  ": "x"}) != nil {
			t.Fatal("expected nil when every key trims away")
		}
	})
}
