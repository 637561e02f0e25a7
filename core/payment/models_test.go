package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRupees(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "120", want: 12000},
		{in: "120.5", want: 12050},
		{in: " 120.50 ", want: 12050},
		{in: "0.07", want: 7},
		{in: "120.", want: 12000},
		{in: "120.505", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "-0.50", wantErr: true},
		{in: "+5", wantErr: true},
		{in: "1.+5", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1.x", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRupees(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRupees(t *testing.T) {
	assert.Equal(t, "120.00", FormatRupees(12000))
	assert.Equal(t, "120.50", FormatRupees(12050))
	assert.Equal(t, "0.07", FormatRupees(7))
}

func TestSettlementFor(t *testing.T) {
	tests := []struct {
		gateway string
		want    string
		ok      bool
	}{
		{gateway: "success", want: StatusCompleted, ok: true},
		{gateway: " SUCCESS", want: StatusCompleted, ok: true},
		{gateway: "paid", want: StatusCompleted, ok: true},
		{gateway: "failure", want: StatusFailed, ok: true},
		{gateway: "close", want: StatusFailed, ok: true},
		{gateway: "Cancelled", want: StatusFailed, ok: true},
		{gateway: "created", want: StatusPending},
		{gateway: "scanning", want: StatusPending},
		{gateway: "", want: StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.gateway, func(t *testing.T) {
			got, ok := SettlementFor(tt.gateway)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
	assert.True(t, Transaction{Status: StatusFailed}.IsSettled())
	assert.False(t, Transaction{Status: StatusPending}.IsSettled())
}
