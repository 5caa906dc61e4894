package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/fleet-sync/internal/config"
	"github.com/smarttransit/fleet-sync/internal/database"
	"github.com/smarttransit/fleet-sync/internal/fleet"
	"github.com/smarttransit/fleet-sync/internal/realtime"
	"github.com/smarttransit/fleet-sync/internal/services"
	"github.com/smarttransit/fleet-sync/pkg/jwt"
	"github.com/smarttransit/fleet-sync/pkg/sms"
)

const testFleetYAML = `
routes:
  - id: route-a
    name: North Loop
  - id: route-b
    name: South Loop
buses:
  - id: A-101
    route_id: route-a
    capacity: 40
    driver_id: driver-1
  - id: B-102
    route_id: route-b
    capacity: 30
    driver_id: driver-2
`

type testServer struct {
	router     *gin.Engine
	jwt        *jwt.Service
	mock       sqlmock.Sqlmock
	fleet      *fleet.Registry
	registry   *realtime.Registry
	ledger     *services.ReservationLedger
	fleetState *services.FleetStateService
	sos        *services.SOSService
	sync       *services.SyncService
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestServer wires the full handler stack over a mocked database
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := newTestLogger()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := &database.PostgresDB{DB: sqlx.NewDb(mockDB, "sqlmock")}

	fleetRegistry, err := fleet.Parse([]byte(testFleetYAML))
	require.NoError(t, err)

	realtimeCfg := config.RealtimeConfig{
		HeartbeatTimeout: 5 * time.Second,
		PingInterval:     time.Second,
		SendBuffer:       32,
		MaxFrameBytes:    8192,
	}

	registry := realtime.NewRegistry()
	router := realtime.NewRouter(registry, fleetRegistry, 20, logger)

	syncService := services.NewSyncService(config.SyncConfig{
		RetrySchedule: "@every 1s",
		BaseBackoff:   time.Second,
		MaxBackoff:    time.Minute,
		MaxAttempts:   3,
	}, logger)

	ledger := services.NewReservationLedger(fleetRegistry, database.NewReservationRepository(db), syncService, router, logger)
	fleetState := services.NewFleetStateService(fleetRegistry, router, logger)
	messaging := services.NewMessagingService(fleetRegistry, router, logger)
	sos := services.NewSOSService(database.NewSOSAlertRepository(db), syncService, router, sms.NewLogGateway(logger), nil, logger)
	commands := services.NewCommandService(registry, router, fleetRegistry, ledger, fleetState, messaging, sos, logger)

	jwtService := jwt.NewService("handler-test-secret-0123456789", time.Hour)

	engine := gin.New()
	RegisterRoutes(engine, Handlers{
		Reservation: NewReservationHandler(ledger, logger),
		Fleet:       NewFleetHandler(fleetRegistry, fleetState, router, logger),
		SOS:         NewSOSHandler(sos, logger),
		Admin:       NewAdminHandler(fleetState, syncService, registry, logger),
		Socket:      NewSocketHandler(registry, commands, realtimeCfg, logger),
	}, jwtService, fleetRegistry, logger)

	return &testServer{
		router:     engine,
		jwt:        jwtService,
		mock:       mock,
		fleet:      fleetRegistry,
		registry:   registry,
		ledger:     ledger,
		fleetState: fleetState,
		sos:        sos,
		sync:       syncService,
	}
}

func (s *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := s.jwt.GenerateAccessToken(userID, role)
	require.NoError(t, err)
	return token
}

// do performs a request as userID/role; an empty role sends no token
func (s *testServer) do(t *testing.T, method, path, userID, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			encoded, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(encoded)
		}
		reader = bytes.NewBufferString(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID, role))
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decodeJSON(t, w, &body)
	return body.Code
}

func seatLabel(busID, seat string) string {
	return `{"type":"bus_seat","busId":"` + busID + `","seatNumber":"` + seat + `","generatedAt":"2025-03-01T08:00:00Z"}`
}
