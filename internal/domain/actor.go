package domain

// Role задаёт роль действующего лица, от которой зависят права на операции.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

// Valid проверяет, что роль относится к поддерживаемым значениям.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return true
	default:
		return false
	}
}

// Actor — идентичность, от имени которой выполняется операция.
// Аутентификация выполняется выше по стеку; сюда приходит уже проверенная пара.
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin сообщает, обладает ли actor административными правами.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Owns проверяет, принадлежит ли заказ этому actor.
func (a Actor) Owns(order Order) bool {
	return a.UserID != "" && a.UserID == order.UserID
}

// Sells проверяет, содержит ли заказ товар этого продавца.
// products — товары позиций заказа, уже загруженные из каталога.
func (a Actor) Sells(order Order, products map[string]Product) bool {
	if a.Role != RoleSeller {
		return false
	}
	for _, item := range order.Items {
		if p, ok := products[item.ProductID]; ok && p.OwnerID == a.UserID {
			return true
		}
	}
	return false
}
