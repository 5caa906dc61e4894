package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/internal/services"
)

// ReservationHandler serves the synchronous seat reservation endpoints
type ReservationHandler struct {
	ledger *services.ReservationLedger
	logger *logrus.Logger
}

// NewReservationHandler creates a new ReservationHandler
func NewReservationHandler(ledger *services.ReservationLedger, logger *logrus.Logger) *ReservationHandler {
	return &ReservationHandler{
		ledger: ledger,
		logger: logger,
	}
}

// ReserveSeat handles POST /api/v1/seats/reserve
// Returns 201 when a reservation is created and 200 when the student already
// held exactly this seat.
func (h *ReservationHandler) ReserveSeat(c *gin.Context) {
	userCtx, ok := callerIdentity(c)
	if !ok {
		return
	}

	var req models.ReserveSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if req.StudentID != userCtx.UserID {
		h.logger.WithFields(logrus.Fields{
			"user_id":    userCtx.UserID,
			"student_id": req.StudentID,
		}).Warn("Reservation body names another student")
		respondError(c, h.logger, fmt.Errorf("%w: studentId does not match the authenticated user", services.ErrForbidden))
		return
	}

	result, err := h.ledger.ReserveFromLabel(userCtx.Identity(), req.QRData, req.BusID, req.SeatNumber)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// CancelReservation handles POST /api/v1/seats/cancel
func (h *ReservationHandler) CancelReservation(c *gin.Context) {
	userCtx, ok := callerIdentity(c)
	if !ok {
		return
	}

	cancelled, err := h.ledger.Cancel(userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.ReserveSeatResult{Reservation: cancelled})
}

// GetMyReservation handles GET /api/v1/seats/me
func (h *ReservationHandler) GetMyReservation(c *gin.Context) {
	userCtx, ok := callerIdentity(c)
	if !ok {
		return
	}

	reservation, ok := h.ledger.GetForStudent(userCtx.UserID)
	if !ok {
		respondError(c, h.logger, fmt.Errorf("%w: no active reservation", services.ErrNotFound))
		return
	}

	c.JSON(http.StatusOK, models.ReserveSeatResult{Reservation: reservation})
}

// ListBusReservations handles GET /api/v1/buses/:busId/seats
func (h *ReservationHandler) ListBusReservations(c *gin.Context) {
	busID := c.Param("busId")

	reservations, err := h.ledger.ListForBus(busID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"busId":        busID,
		"reservations": reservations,
		"count":        len(reservations),
	})
}
