package models

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Address represents a delivery or billing address
type Address struct {
	FullName string `bson:"full_name,omitempty" json:"fullName,omitempty"`
	Phone    string `bson:"phone,omitempty" json:"phone,omitempty"`
	Street   string `bson:"street" json:"street"`
	City     string `bson:"city" json:"city"`
	State    string `bson:"state" json:"state"`
	ZipCode  string `bson:"zipcode" json:"zipCode"`
	Country  string `bson:"country,omitempty" json:"country,omitempty"`
}

// Complete reports whether the address carries the fields needed for delivery.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.Street) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.ZipCode) != ""
}

// User is the read-only view of an account owned by the auth service.
// Only the fields needed to address notifications are mapped.
type User struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name  string             `bson:"name" json:"name"`
	Email string             `bson:"email" json:"email"`
	Phone string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Role  string             `bson:"role" json:"role"` // "user" or "admin"
}

const RoleAdmin = "admin"
