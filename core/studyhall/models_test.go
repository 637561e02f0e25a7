package studyhall

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studyhall/backend/core/user"
)

func TestParseSeat(t *testing.T) {
	tests := []struct {
		label   string
		row, n  int
		wantErr bool
	}{
		{label: "R1-1", row: 1, n: 1},
		{label: " r12-3 ", row: 12, n: 3},
		{label: "R0-1", wantErr: true},
		{label: "R1-0", wantErr: true},
		{label: "R1", wantErr: true},
		{label: "1-1", wantErr: true},
		{label: "Ra-b", wantErr: true},
		{label: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			row, n, err := ParseSeat(tt.label)
			if tt.wantErr {
				assert.Equal(t, ErrInvalidSeat, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.row, row)
			assert.Equal(t, tt.n, n)
		})
	}
}

func TestSeatLabel(t *testing.T) {
	assert.Equal(t, "R1-1", SeatLabel(1, 1))
	assert.Equal(t, "R12-30", SeatLabel(12, 30))
}

func TestStudyHall_layout(t *testing.T) {
	hall := StudyHall{Rows: 2, SeatsPerRow: 3}

	assert.Equal(t, 6, hall.TotalSeats())
	assert.Equal(t, []string{"R1-1", "R1-2", "R1-3", "R2-1", "R2-2", "R2-3"}, hall.Seats())
	assert.True(t, hall.HasSeat("r2-3"))
	assert.False(t, hall.HasSeat("R3-1"))
	assert.False(t, hall.HasSeat("R1-4"))
	assert.False(t, hall.HasSeat("seat 1"))
}

func TestCanView(t *testing.T) {
	merchant := user.User{ID: "m", Role: user.RoleMerchant}
	incharge := user.User{ID: "i", Role: user.RoleIncharge}
	student := user.User{ID: "s", Role: user.RoleStudent}
	admin := user.User{ID: "a", Role: user.RoleAdmin}

	active := StudyHall{MerchantID: "m", InchargeID: "i", IsActive: true}
	inactive := StudyHall{MerchantID: "m", InchargeID: "i"}

	assert.True(t, CanView(student, active))
	assert.False(t, CanView(student, inactive))
	assert.True(t, CanView(merchant, inactive))
	assert.True(t, CanView(incharge, inactive))
	assert.True(t, CanView(admin, inactive))

	assert.True(t, CanManage(merchant, active))
	assert.True(t, CanManage(admin, active))
	assert.False(t, CanManage(incharge, active))
	assert.False(t, CanManage(user.User{ID: "x", Role: user.RoleMerchant}, active))
}
