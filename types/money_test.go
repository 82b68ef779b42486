package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyDisplay(t *testing.T) {
	tests := []struct {
		name  string
		money Money
		full  string
		short string
	}{
		{"whole dollars", USD(5000), "$50.00", "$50"},
		{"cents", USD(1999), "$19.99", "$19.99"},
		{"free", USD(0), "$0.00", "$0"},
		{"euro", EUR(2000), "€20.00", "€20"},
		{"negative", USD(-250), "$-2.50", "$-2.50"},
		{"unknown currency", Money{Amount: 100, Currency: "chf"}, "CHF 1.00", "CHF 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.String(); got != tt.full {
				t.Errorf("String: got %s, want %s", got, tt.full)
			}
			if got := tt.money.Short(); got != tt.short {
				t.Errorf("Short: got %s, want %s", got, tt.short)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(10000))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"amount":10000,"currency":"usd","display":"$100"}` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var m Money
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m != USD(10000) {
		t.Errorf("got %+v", m)
	}
}
