package wb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wbautoslot/internal/domain"
	"wbautoslot/pkg/logx"
)

type staticAccounts struct{ acc domain.SupplierAccount }

func (s staticAccounts) GetAccount(_ context.Context, _ string) (domain.SupplierAccount, error) {
	return s.acc, nil
}

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func testCriteria() domain.SearchCriteria {
	return domain.SearchCriteria{
		AccountID:      "acc-1",
		Warehouse:      "Koledino",
		DateFrom:       day(1),
		DateTo:         day(10),
		MinCoefficient: 1.0,
		Packaging:      "boxes",
	}
}

func coeffServer(t *testing.T, entries []coeffEntry, gotCookie *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/acceptance/coefficients" {
			http.NotFound(w, r)
			return
		}
		if gotCookie != nil {
			*gotCookie = r.Header.Get("Cookie")
		}
		_ = json.NewEncoder(w).Encode(entries)
	}))
}

func TestSearchFiltersEntries(t *testing.T) {
	t.Parallel()
	entries := []coeffEntry{
		{Date: "2025-06-03", Coefficient: 1.5, Warehouse: "Koledino", BoxType: "Короба", AllowUnload: true},
		{Date: "2025-06-04", Coefficient: 0.5, Warehouse: "Koledino", BoxType: "Короба", AllowUnload: true}, // below min coefficient
		{Date: "2025-06-05", Coefficient: -1, Warehouse: "Koledino", BoxType: "Короба", AllowUnload: true},  // unavailable
		{Date: "2025-06-06", Coefficient: 2.0, Warehouse: "Kazan", BoxType: "Короба", AllowUnload: true},    // wrong warehouse
		{Date: "2025-06-07", Coefficient: 2.0, Warehouse: "Koledino", BoxType: "Палеты", AllowUnload: true}, // wrong packaging
		{Date: "2025-06-20", Coefficient: 2.0, Warehouse: "Koledino", BoxType: "Короба", AllowUnload: true}, // outside range
		{Date: "2025-06-08", Coefficient: 3.0, Warehouse: "Koledino", BoxType: "Короба", AllowUnload: false},
		{Date: "2025-06-09", Coefficient: 1.2, Warehouse: "Koledino", BoxType: "Короба", AllowUnload: true},
	}
	srv := coeffServer(t, entries, nil)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, staticAccounts{}, logx.Nop())
	slots, err := c.Search(context.Background(), testCriteria())
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 2 {
		t.Fatalf("got %d slots, want 2: %+v", len(slots), slots)
	}
	if slots[0].Date != day(3) || slots[1].Date != day(9) {
		t.Fatalf("wrong slots matched: %+v", slots)
	}
	if slots[0].Packaging != "boxes" {
		t.Fatalf("slot packaging = %q, want criteria packaging", slots[0].Packaging)
	}
}

func TestSearchSendsSessionCookies(t *testing.T) {
	t.Parallel()
	var gotCookie string
	srv := coeffServer(t, nil, &gotCookie)
	defer srv.Close()

	acc := domain.SupplierAccount{ID: "acc-1", Cookies: `[{"name":"WBToken","value":"abc"},{"name":"x-supplier-id","value":"42"}]`}
	c := NewClient(Config{BaseURL: srv.URL}, staticAccounts{acc: acc}, logx.Nop())

	if _, err := c.Search(context.Background(), testCriteria()); err != nil {
		t.Fatal(err)
	}
	if gotCookie != "WBToken=abc; x-supplier-id=42" {
		t.Fatalf("cookie header = %q", gotCookie)
	}
}

func TestSearchSessionExpired(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, staticAccounts{}, logx.Nop())
	if _, err := c.Search(context.Background(), testCriteria()); err == nil {
		t.Fatal("expected error on expired session")
	}
}

func TestBookOutcomes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		status  int
		wantOK  bool
		wantErr bool
	}{
		{"booked", http.StatusOK, true, false},
		{"slot taken", http.StatusConflict, false, false},
		{"slot gone", http.StatusGone, false, false},
		{"session expired", http.StatusUnauthorized, false, true},
		{"server error", http.StatusInternalServerError, false, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var gotBody bookRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&gotBody)
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL}, staticAccounts{}, logx.Nop())
			task := domain.Task{AccountID: "acc-1", Packaging: "boxes", ShipmentNumber: "SH-17"}
			slot := domain.Slot{ID: "s1", Date: day(3), Warehouse: "Koledino"}

			ok, err := c.Book(context.Background(), task, slot)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.status == http.StatusOK {
				if gotBody.SlotID != "s1" || gotBody.Date != "2025-06-03" || gotBody.Shipment != "SH-17" {
					t.Fatalf("booking payload: %+v", gotBody)
				}
			}
		})
	}
}

func TestCheckSession(t *testing.T) {
	t.Parallel()
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, staticAccounts{}, logx.Nop())

	ok, err := c.CheckSession(context.Background(), domain.SupplierAccount{})
	if err != nil || !ok {
		t.Fatalf("valid session: ok=%v err=%v", ok, err)
	}

	status = http.StatusUnauthorized
	ok, err = c.CheckSession(context.Background(), domain.SupplierAccount{})
	if err != nil || ok {
		t.Fatalf("expired session: ok=%v err=%v", ok, err)
	}
}

func TestParseSlotDateFormats(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"2025-06-03T00:00:00Z", "2025-06-03", "03.06.2025"} {
		got, err := parseSlotDate(s)
		if err != nil {
			t.Fatalf("parseSlotDate(%q): %v", s, err)
		}
		if got.Year() != 2025 || got.Month() != 6 || got.Day() != 3 {
			t.Fatalf("parseSlotDate(%q) = %v", s, got)
		}
	}
	if _, err := parseSlotDate("next tuesday"); err == nil {
		t.Fatal("expected error for junk date")
	}
}
