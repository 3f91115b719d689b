// Package users is the demo domain served by the crudkit CLI: a user
// directory whose requests are plain structs configured by profiles.
package users

import (
	"github.com/conduit-lang/crudkit/internal/crud/request"
)

// User is the persisted entity
type User struct {
	ID    int64  `db:"id" json:"id"`
	Email string `db:"email" json:"email" crud:"readonly"`
	Name  string `db:"name" json:"name"`
	Team  string `db:"team" json:"team"`
}

// View is what list queries return
type View struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Input is one incoming user of a batch
type Input struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Team  string `json:"team"`
}

// Create adds one user
type Create struct {
	request.Create[User, *User]
	Email string `json:"email"`
	Name  string `json:"name"`
	Team  string `json:"team"`
}

// Import adds several users at once
type Import struct {
	request.CreateAll[User, *User]
	Items []Input `json:"items"`
}

// List returns every user, optionally restricted to one team
type List struct {
	request.GetAll[User, View]
	Team   string `json:"team"`
	SortBy string `json:"sort_by"`
	Desc   bool   `json:"desc"`
}

// Page returns one page of users
type Page struct {
	request.PagedGetAll[User, View]
	Team   string `json:"team"`
	SortBy string `json:"sort_by"`
	Desc   bool   `json:"desc"`
}

// Get loads one user by ID
type Get = request.GetByID[User, int64]

// Delete removes one user by ID
type Delete = request.DeleteByID[User, int64]

// Rename changes the display name of a user
type Rename struct {
	request.Update[User, *User]
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SyncTeam makes the members of a team exactly the given list, matched
// by email. Members missing from the list are removed.
type SyncTeam struct {
	request.Synchronize[User, *User]
	Team  string  `json:"team"`
	Items []Input `json:"items"`
}
