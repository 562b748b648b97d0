package domain

// Role — роль пользователя магазина.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Actor — аутентифицированный инициатор запроса. Нулевое значение означает гостя.
type Actor struct {
	UserID string
	Role   Role
}

// IsGuest сообщает, что запрос пришёл без аутентификации.
func (a Actor) IsGuest() bool {
	return a.UserID == ""
}

// IsAdmin сообщает, что актор — администратор.
func (a Actor) IsAdmin() bool {
	return a.UserID != "" && a.Role == RoleAdmin
}

// CanAccess — владелец заказа или администратор.
func (a Actor) CanAccess(o *Order) bool {
	if a.IsAdmin() {
		return true
	}
	return !a.IsGuest() && !o.IsGuest() && o.UserID == a.UserID
}
