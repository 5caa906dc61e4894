package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeatLabel(t *testing.T) {
	t.Run("Valid label", func(t *testing.T) {
		label, err := ParseSeatLabel(`{"type":"bus_seat","busId":"A-101","seatNumber":"07","generatedAt":"2024-01-15T08:00:00Z"}`)
		require.NoError(t, err)
		assert.Equal(t, "A-101", label.BusID)
		assert.Equal(t, "07", label.SeatNumber)
	})

	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{"Not JSON", "seat_A-101_07", ErrMalformedQR},
		{"Wrong type", `{"type":"ticket","busId":"A-101","seatNumber":"07"}`, ErrWrongQRType},
		{"Missing type", `{"busId":"A-101","seatNumber":"07"}`, ErrWrongQRType},
		{"Missing seat", `{"type":"bus_seat","busId":"A-101"}`, ErrIncompleteQR},
		{"Blank bus", `{"type":"bus_seat","busId":"  ","seatNumber":"07"}`, ErrIncompleteQR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeatLabel(tt.raw)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCanonicalSeat(t *testing.T) {
	tests := []struct {
		seat     string
		capacity int
		expected string
		err      error
	}{
		{"7", 40, "07", nil},
		{"07", 40, "07", nil},
		{"40", 40, "40", nil},
		{" 12 ", 40, "12", nil},
		{"41", 40, "", ErrSeatOutOfRange},
		{"0", 40, "", ErrInvalidSeatNumber},
		{"-3", 40, "", ErrInvalidSeatNumber},
		{"A1", 40, "", ErrInvalidSeatNumber},
	}

	for _, tt := range tests {
		t.Run(tt.seat, func(t *testing.T) {
			seat, err := CanonicalSeat(tt.seat, tt.capacity)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, seat)
		})
	}
}
