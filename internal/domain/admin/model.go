package admin

import (
	"strconv"
	"strings"
)

// Admin is a row of the dedicated admins table.
type Admin struct {
	ID       int64
	Name     string
	Email    string
	Role     string
	IsActive bool
}

// Summary is the dropdown shape the dashboard uses to pick an admin.
type Summary struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
}

// SplitName splits a display name at its first space.
func SplitName(name string) (first, last string) {
	first, last, _ = strings.Cut(name, " ")
	return first, last
}

func (a Admin) Summary() Summary {
	first, last := SplitName(a.Name)
	return Summary{
		ID:        strconv.FormatInt(a.ID, 10),
		FirstName: first,
		LastName:  last,
		Email:     a.Email,
		FullName:  a.Name,
	}
}
