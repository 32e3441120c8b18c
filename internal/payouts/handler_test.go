package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/choriad/backend/internal/flutterwave"
	"github.com/choriad/backend/internal/middleware"
	"github.com/choriad/backend/internal/models"
	"github.com/choriad/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeBookingRepo struct {
	booking *models.Booking

	releaseUpdated bool
	releaseCalls   int
}

func (f *fakeBookingRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	if f.booking == nil || f.booking.ID != id {
		return nil, repository.ErrNotFound
	}
	cp := *f.booking
	return &cp, nil
}

func (f *fakeBookingRepo) MarkReleaseInitiated(_ context.Context, id uuid.UUID, transferID string, releasedAt time.Time) (bool, error) {
	f.releaseCalls++
	if f.booking == nil || f.booking.ID != id || f.booking.ReleasedAt != nil {
		return false, nil
	}
	f.booking.ReleasedAt = &releasedAt
	f.booking.FlwTransferID = &transferID
	f.releaseUpdated = true
	return true, nil
}

type fakeProfileRepo struct {
	profile *models.WorkerProfile
}

func (f *fakeProfileRepo) GetByWorkerID(_ context.Context, workerID uuid.UUID) (*models.WorkerProfile, error) {
	if f.profile == nil || f.profile.WorkerID != workerID {
		return nil, repository.ErrNotFound
	}
	return f.profile, nil
}

type fakeProvider struct {
	transfer *flutterwave.Transfer
	err      error
	requests []flutterwave.TransferRequest
}

func (f *fakeProvider) CreateTransfer(_ context.Context, req flutterwave.TransferRequest) (*flutterwave.Transfer, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.transfer, nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	h        *Handler
	bookings *fakeBookingRepo
	profiles *fakeProfileRepo
	provider *fakeProvider
	booking  *models.Booking
	client   uuid.UUID
}

// newFixture builds a booking that satisfies every release precondition.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	client := uuid.New()
	worker := uuid.New()
	ref := "choriad-bk-b1"
	paidAt := time.Now().Add(-48 * time.Hour)

	booking := &models.Booking{
		ID:            uuid.New(),
		JobID:         uuid.New(),
		ClientID:      client,
		WorkerID:      worker,
		AmountNGN:     10000,
		CommissionNGN: 1500,
		PaymentStatus: models.BookingPaymentPaid,
		Status:        models.BookingStatusCompleted,
		PaidAt:        &paidAt,
		FlwTxRef:      &ref,
	}

	bookings := &fakeBookingRepo{booking: booking}
	profiles := &fakeProfileRepo{profile: &models.WorkerProfile{
		WorkerID:      worker,
		BankCode:      "044",
		AccountNumber: "0690000040",
		AccountName:   "Ada Obi",
	}}
	provider := &fakeProvider{transfer: &flutterwave.Transfer{ID: 345678, Status: "NEW", Reference: ref}}

	return &fixture{
		h: &Handler{
			Bookings: bookings,
			Profiles: profiles,
			Provider: provider,
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		bookings: bookings,
		profiles: profiles,
		provider: provider,
		booking:  booking,
		client:   client,
	}
}

func (f *fixture) release(t *testing.T, userID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	target := fmt.Sprintf("/api/v1/bookings/%s/release", f.booking.ID)
	req := httptest.NewRequest(http.MethodPost, target, nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	rec := httptest.NewRecorder()
	f.h.Release(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRelease_Success(t *testing.T) {
	f := newFixture(t)

	rec := f.release(t, f.client)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202; body %s", rec.Code, rec.Body)
	}

	if len(f.provider.requests) != 1 {
		t.Fatalf("transfer requests: got %d, want 1", len(f.provider.requests))
	}
	req := f.provider.requests[0]
	if req.Reference != "choriad-bk-b1" {
		t.Errorf("transfer reference must reuse the payment reference, got %q", req.Reference)
	}
	if req.Amount != 10000 {
		t.Errorf("transfer amount: got %d, want 10000 (commission stays with the platform)", req.Amount)
	}
	if req.AccountBank != "044" || req.AccountNumber != "0690000040" {
		t.Errorf("transfer destination: %+v", req)
	}

	if !f.bookings.releaseUpdated {
		t.Error("release should be recorded on the booking")
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "initiated" {
		t.Errorf("body: %v", body)
	}
}

func TestRelease_OnlyClientCanRelease(t *testing.T) {
	f := newFixture(t)

	rec := f.release(t, f.booking.WorkerID)
	if rec.Code != http.StatusForbidden {
		t.Errorf("worker releasing: status %d, want 403", rec.Code)
	}
	rec = f.release(t, uuid.New())
	if rec.Code != http.StatusForbidden {
		t.Errorf("stranger releasing: status %d, want 403", rec.Code)
	}
	if len(f.provider.requests) != 0 {
		t.Error("no transfer may be created for a forbidden caller")
	}
}

func TestRelease_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	target := fmt.Sprintf("/api/v1/bookings/%s/release", f.booking.ID)
	rec := httptest.NewRecorder()
	f.h.Release(rec, httptest.NewRequest(http.MethodPost, target, nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestRelease_InvalidBookingID(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{
		"/api/v1/bookings/not-a-uuid/release",
		"/api/v1/bookings//release",
	} {
		req := httptest.NewRequest(http.MethodPost, target, nil)
		req = req.WithContext(middleware.WithUserID(req.Context(), f.client))
		rec := httptest.NewRecorder()
		f.h.Release(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", target, rec.Code)
		}
	}
}

func TestRelease_UnknownBooking(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/"+uuid.NewString()+"/release", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), f.client))
	rec := httptest.NewRecorder()
	f.h.Release(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

func TestRelease_Preconditions(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		mutate func(b *models.Booking)
	}{
		{"unpaid booking", func(b *models.Booking) { b.PaymentStatus = models.BookingPaymentUnpaid }},
		{"job not completed", func(b *models.Booking) { b.Status = models.BookingStatusInProgress }},
		{"worker already paid", func(b *models.Booking) { b.WorkerPaid = true }},
		{"release already initiated", func(b *models.Booking) { b.ReleasedAt = &now }},
		{"missing payment reference", func(b *models.Booking) { b.FlwTxRef = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.mutate(f.booking)

			rec := f.release(t, f.client)
			if rec.Code != http.StatusConflict {
				t.Errorf("status: got %d, want 409", rec.Code)
			}
			if len(f.provider.requests) != 0 {
				t.Error("failed precondition must not create a transfer")
			}
		})
	}
}

func TestRelease_NoWorkerProfile(t *testing.T) {
	f := newFixture(t)
	f.profiles.profile = nil

	rec := f.release(t, f.client)
	if rec.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", rec.Code)
	}
}

func TestRelease_ProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("insufficient balance")

	rec := f.release(t, f.client)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status: got %d, want 502", rec.Code)
	}
	if f.bookings.releaseUpdated {
		t.Error("failed transfer must not be recorded as released")
	}
}

func TestRelease_LostRaceIsConflict(t *testing.T) {
	f := newFixture(t)
	released := time.Now()

	// Another request's MarkReleaseInitiated wins between our precondition
	// check and our conditional update.
	original := f.booking
	f.bookings.booking = original
	firstCall := true
	f.h.Bookings = bookingRepoFunc{
		get: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			if firstCall {
				firstCall = false
				cp := *original
				return &cp, nil
			}
			return f.bookings.GetByID(ctx, id)
		},
		mark: func(context.Context, uuid.UUID, string, time.Time) (bool, error) {
			original.ReleasedAt = &released
			return false, nil
		},
	}

	rec := f.release(t, f.client)
	if rec.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", rec.Code)
	}
}

type bookingRepoFunc struct {
	get  func(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	mark func(ctx context.Context, id uuid.UUID, transferID string, releasedAt time.Time) (bool, error)
}

func (f bookingRepoFunc) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return f.get(ctx, id)
}

func (f bookingRepoFunc) MarkReleaseInitiated(ctx context.Context, id uuid.UUID, transferID string, releasedAt time.Time) (bool, error) {
	return f.mark(ctx, id, transferID, releasedAt)
}
