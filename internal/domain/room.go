package domain

import "time"

// Room is the durable support channel between one customer and staff.
// CustomerID is immutable; StaffID is the currently bound staff member,
// set when a staff claims a session in the room. Rooms are never deleted.
type Room struct {
	ID         string    `db:"id"`
	CustomerID string    `db:"customer_id"`
	StaffID    *string   `db:"staff_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// Party reports whether the given identity may take part in the room.
// The customer owns exactly one room; any staff member may attend.
func (r *Room) Party(id Identity) bool {
	if id.Role == RoleStaff {
		return true
	}
	return id.UserID == r.CustomerID
}
