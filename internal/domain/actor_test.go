package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

func TestRoleValid(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleCustomer, domain.RoleSeller, domain.RoleAdmin} {
		if !role.Valid() {
			t.Fatalf("role %s must be valid", role)
		}
	}
	if domain.Role("root").Valid() {
		t.Fatalf("unknown role must be invalid")
	}
}

func TestActorOwns(t *testing.T) {
	order := makeOrder()

	owner := domain.Actor{UserID: "user-1", Role: domain.RoleCustomer}
	if !owner.Owns(order) {
		t.Fatalf("owner must own the order")
	}

	stranger := domain.Actor{UserID: "user-2", Role: domain.RoleCustomer}
	if stranger.Owns(order) {
		t.Fatalf("stranger must not own the order")
	}

	anonymous := domain.Actor{}
	if anonymous.Owns(domain.Order{}) {
		t.Fatalf("empty identity must not own anything")
	}
}

func TestActorSells(t *testing.T) {
	order := makeOrder()
	products := map[string]domain.Product{
		"product-1": {ID: "product-1", OwnerID: "seller-1"},
	}

	seller := domain.Actor{UserID: "seller-1", Role: domain.RoleSeller}
	if !seller.Sells(order, products) {
		t.Fatalf("seller of a line product must match")
	}

	otherSeller := domain.Actor{UserID: "seller-2", Role: domain.RoleSeller}
	if otherSeller.Sells(order, products) {
		t.Fatalf("unrelated seller must not match")
	}

	// Владелец товара, но без роли продавца.
	customer := domain.Actor{UserID: "seller-1", Role: domain.RoleCustomer}
	if customer.Sells(order, products) {
		t.Fatalf("non-seller role must not match")
	}
}
