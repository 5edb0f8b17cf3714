package service

// Publisher delivers realtime events to a room. Implementations must not
// block the caller.
type Publisher interface {
	Publish(room, event string, data any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, any) {}

// Rooms and events emitted after writes.
const (
	RoomAdmins = "admins"

	EventUserCreated  = "user:created"
	EventUserUpdated  = "user:updated"
	EventUserDeleted  = "user:deleted"
	EventAdminCreated = "admin:created"
	EventAdminUpdated = "admin:updated"
	EventAdminDeleted = "admin:deleted"
	EventRoleCreated  = "role:created"
	EventRoleUpdated  = "role:updated"
	EventRoleDeleted  = "role:deleted"
)

// UserRoom is the private room of a user connection.
func UserRoom(id string) string { return "user:" + id }

// AdminRoom is the private room of an admin connection.
func AdminRoom(id string) string { return "admin:" + id }

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
