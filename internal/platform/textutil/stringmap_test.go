package textutil

import (
	"reflect"
	"testing"
)

func TestPlainText(t *testing.T) {
	cases := []struct{ input, want string }{
		{"  12 MG Road  ", "12 MG Road"},
		{"<b>Flat 4</b>, Tower B", "Flat 4, Tower B"},
		{"<script>alert(1)</script>Great kurta", "Great kurta"},
		{"Fits well & colour is true", "Fits well & colour is true"},
		{"", ""},
		{"<img src=x onerror=alert(1)>", ""},
	}
	for _, tc := range cases {
		if got := PlainText(tc.input); got != tc.want {
			t.Fatalf("PlainText(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeStringMap(t *testing.T) {
	t.Run("trims keys and values", func(t *testing.T) {
		input := map[string]string{
			" orderId ": " ord_1 ",
			"event":     " order.placed ",
			"empty":     " ",
			" ":         "ignored",
			"":          "ignore",
		}

		expected := map[string]string{
			"orderId": "ord_1",
			"event":   "order.placed",
			"empty":   "",
		}

		actual := NormalizeStringMap(input)
		if !reflect.DeepEqual(actual, expected) {
			t.Fatalf("expected %#v got %#v", expected, actual)
		}
	})

	t.Run("returns nil for nil or empty input", func(t *testing.T) {
		if NormalizeStringMap(nil) != nil {
			t.Fatalf("expected nil for nil input")
		}
		if NormalizeStringMap(map[string]string{}) != nil {
			t.Fatalf("expected nil for empty map")
		}
	})
}
