package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/walletcore/wallet-service/internal/domain"
)

func TestValidAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "whole", input: "10", want: true},
		{name: "two_decimals", input: "10.25", want: true},
		{name: "smallest_unit", input: "0.01", want: true},
		{name: "zero", input: "0", want: false},
		{name: "zero_scaled", input: "0.00", want: false},
		{name: "negative", input: "-5.00", want: false},
		{name: "three_decimals", input: "1.005", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.input)
			if err != nil {
				t.Fatalf("bad decimal literal %q: %v", tt.input, err)
			}
			if got := validAmount(amount); got != tt.want {
				t.Fatalf("validAmount(%s) = %t, want %t", tt.input, got, tt.want)
			}
		})
	}
}

func TestWriteServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "source_not_found", err: domain.ErrSourceNotFound, wantStatus: http.StatusNotFound},
		{name: "destination_not_found", err: domain.ErrDestinationNotFound, wantStatus: http.StatusNotFound},
		{name: "account_not_found", err: domain.ErrAccountNotFound, wantStatus: http.StatusNotFound},
		{name: "transfer_not_found", err: domain.ErrTransferNotFound, wantStatus: http.StatusNotFound},
		{name: "self_transfer", err: domain.ErrSelfTransfer, wantStatus: http.StatusBadRequest},
		{name: "invalid_amount", err: domain.ErrInvalidAmount, wantStatus: http.StatusBadRequest},
		{name: "insufficient_funds", err: domain.ErrInsufficientFunds, wantStatus: http.StatusUnprocessableEntity},
		{name: "username_taken", err: domain.ErrUsernameTaken, wantStatus: http.StatusConflict},
		{name: "invalid_credentials", err: domain.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized},
		{name: "storage_failure", err: domain.NewStorageError("tx.begin", http.ErrServerClosed), wantStatus: http.StatusServiceUnavailable},
		{name: "unexpected", err: http.ErrBodyNotAllowed, wantStatus: http.StatusInternalServerError},
	}

	h := &WalletHandlers{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeServiceError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if body["error"] == "" {
				t.Error("expected a non-empty error message")
			}
		})
	}
}
