package routes

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	providerRepo "escrowbook/database/repository/provider"
	reservationRepo "escrowbook/database/repository/reservation"
	"escrowbook/handlers"
	"escrowbook/models"
	"escrowbook/services/arbiter"
	"escrowbook/services/lifecycle"
	"escrowbook/services/notification"
	"escrowbook/services/payment"
	"escrowbook/utils"
)

const webhookSecret = "whsec_routes"

func init() {
	gin.SetMode(gin.TestMode)
	utils.Logger = zap.NewNop()
	utils.SetJWTSecret("routes-test-secret")
}

type server struct {
	router *gin.Engine
	engine *lifecycle.Engine
}

func newServer(t *testing.T) *server {
	t.Helper()
	week := []models.DayAvailability{
		{DayOfWeek: time.Monday, Slots: []models.Slot{{Start: 6 * 60, End: 20 * 60}}},
	}
	providers := providerRepo.NewMemoryProviderRepo(models.Provider{
		ID: "prov-1", Name: "Ada", Currency: models.CurrencyUSD, Availability: week,
		Services: []models.Service{{ID: "s1", Name: "Consultation", HourlyRate: 20}},
	})
	store := reservationRepo.NewMemoryReservationRepo()
	engine := lifecycle.NewEngine(store, notification.NewLogNotifier(zap.NewNop()), zap.NewNop())
	arb := arbiter.NewArbiter(arbiter.Deps{
		Providers: providers,
		Bookings:  store,
		Engine:    engine,
		Gateway:   payment.NewMockGateway(0),
		Logger:    zap.NewNop(),
	}, arbiter.Options{})

	hb := handlers.NewHandlerBundle(
		handlers.NewBookingHandler(arb),
		handlers.NewWebhookHandler(payment.NewStripeWebhookVerifier(webhookSecret), nil, arb),
	)
	r := gin.New()
	RegisterRoutes(r, hb)
	t.Cleanup(engine.Wait)
	return &server{router: r, engine: engine}
}

func (s *server) do(t *testing.T, method, path string, who *models.Principal, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		token, err := utils.GenerateToken(who.ID, who.Role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) webhook(t *testing.T, eventID, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":"checkout.session.completed","data":{"object":{"id":%q,"object":"checkout.session","payment_status":"paid","status":"complete"}}}`,
		eventID, sessionID))
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

var (
	alice = &models.Principal{ID: "user-1", Role: models.RoleUser}
	bob   = &models.Principal{ID: "user-2", Role: models.RoleUser}
	ada   = &models.Principal{ID: "prov-1", Role: models.RoleProvider}
)

func bookingBody(start string, hours float64) gin.H {
	return gin.H{
		"providerId": "prov-1",
		"startTime":  start,
		"services":   []gin.H{{"serviceId": "s1", "durationHours": hours}},
	}
}

func TestBookingFlowOverHTTP(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPut, "/api/providers/me/buffer", ada, gin.H{"bufferHours": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/bookings", alice, bookingBody("2030-03-04T10:00:00Z", 2))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created arbiter.CreateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, 40.0, created.Booking.TotalAmount)
	assert.Equal(t, models.BookingPending, created.Booking.Status)
	require.NotEmpty(t, created.PaymentSession.SessionID)
	id := created.Booking.ID

	w = s.do(t, http.MethodPost, "/api/bookings", bob, bookingBody("2030-03-04T13:00:00Z", 1))
	require.Equal(t, http.StatusConflict, w.Code)
	var conflict utils.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflict))
	require.NotNil(t, conflict.Conflict)
	assert.Equal(t, id, conflict.Conflict.BookingID)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/bookings/"+id, bob, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/bookings/"+id, ada, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/bookings/"+id, nil, nil).Code)

	w = s.webhook(t, "evt_1", created.PaymentSession.SessionID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"confirmed"`)

	w = s.do(t, http.MethodGet, "/api/bookings/verify/"+created.PaymentSession.SessionID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"gatewayState":"open"`)
	assert.Contains(t, w.Body.String(), `"status":"confirmed"`)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPatch, "/api/bookings/"+id+"/complete", alice, nil).Code)

	w = s.do(t, http.MethodPatch, "/api/bookings/"+id+"/cancel", alice, gin.H{"reason": "plans changed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cancelled models.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancelled))
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Equal(t, models.PaymentRefunded, cancelled.Payment.Status)

	w = s.do(t, http.MethodPatch, "/api/bookings/"+id+"/confirm", ada, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/bookings", bob, bookingBody("2030-03-04T13:00:00Z", 1))
	assert.Equal(t, http.StatusCreated, w.Code, "cancelled booking frees its interval")

	w = s.do(t, http.MethodGet, "/api/bookings/me", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine struct {
		Bookings []models.Booking `json:"bookings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	require.Len(t, mine.Bookings, 1)
	assert.Equal(t, id, mine.Bookings[0].ID)
}

func TestRoleGuards(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/bookings", ada, bookingBody("2030-03-04T10:00:00Z", 1)).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/bookings/provider", alice, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPut, "/api/providers/me/buffer", alice, gin.H{"bufferHours": 1}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPatch, "/api/bookings/x/resolve", alice, gin.H{"outcome": "completed"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/providers/me/buffer", ada, gin.H{"bufferHours": 25}).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil, nil).Code)
}
