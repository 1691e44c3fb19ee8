package model

import (
	"time"
	"unicode"
)

const (
	// MaxBorrowedBooks caps concurrent active/overdue borrows per reader.
	MaxBorrowedBooks = 5
	// BorrowPeriod is the loan term used to compute due dates.
	BorrowPeriod = 14 * 24 * time.Hour

	limitedThreshold = 3
)

type Role string

const (
	RoleReader Role = "reader"
	RoleAuthor Role = "author"
	RoleAdmin  Role = "admin"
)

type BookStatus string

const (
	StatusAvailable    BookStatus = "available"
	StatusLimited      BookStatus = "limited"
	StatusOutOfStock   BookStatus = "out_of_stock"
	StatusDiscontinued BookStatus = "discontinued"
)

// DeriveStatus computes availability status from the stock counter.
// Discontinued is an administrative override and wins over the derivation.
func DeriveStatus(available int, discontinued bool) BookStatus {
	switch {
	case discontinued:
		return StatusDiscontinued
	case available == 0:
		return StatusOutOfStock
	case available <= limitedThreshold:
		return StatusLimited
	default:
		return StatusAvailable
	}
}

type Book struct {
	ID           string     `json:"id" db:"id"`
	AuthorID     string     `json:"authorId" db:"author_id"`
	Title        string     `json:"title" db:"title"`
	Genre        string     `json:"genre" db:"genre"`
	Description  string     `json:"description" db:"description"`
	Total        int        `json:"total" db:"total"`
	Available    int        `json:"available" db:"available"`
	Discontinued bool       `json:"-" db:"discontinued"`
	Version      int64      `json:"-" db:"version"`
	Status       BookStatus `json:"status" db:"-"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

type BorrowStatus string

const (
	BorrowActive   BorrowStatus = "active"
	BorrowOverdue  BorrowStatus = "overdue"
	BorrowReturned BorrowStatus = "returned"
)

// BorrowRecord is one row of the ledger. It serves both the book's borrow
// history and the reader's borrowed-book list. Overdue is derived at read
// time, never stored.
type BorrowRecord struct {
	ID         int64        `json:"-" db:"id"`
	BookID     string       `json:"bookId" db:"book_id"`
	UserID     string       `json:"userId" db:"user_id"`
	BorrowDate time.Time    `json:"borrowDate" db:"borrow_date"`
	DueDate    time.Time    `json:"dueDate" db:"due_date"`
	ReturnDate *time.Time   `json:"returnDate,omitempty" db:"return_date"`
	Status     BorrowStatus `json:"status" db:"status"`
}

type BorrowedBook struct {
	BorrowRecord
	Title string `json:"title" db:"title"`
	Genre string `json:"genre" db:"genre"`
}

type BorrowAction string

const (
	ActionBorrow BorrowAction = "borrow"
	ActionReturn BorrowAction = "return"
)

// BorrowEvent is published to kafka after a committed borrow or return.
type BorrowEvent struct {
	BookID     string       `json:"bookId"`
	UserID     string       `json:"userId"`
	Action     BorrowAction `json:"action"`
	DueDate    *time.Time   `json:"dueDate,omitempty"`
	OccurredAt time.Time    `json:"occurredAt"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     Role   `json:"role" validate:"omitempty,oneof=reader author admin"`
}

// PasswordOK enforces the signup password policy: at least one upper, one
// lower, one digit and one special character.
func (r RegisterRequest) PasswordOK() bool {
	var upper, lower, digit, special bool
	for _, c := range r.Password {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		default:
			special = true
		}
	}
	return upper && lower && digit && special
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
	User        User   `json:"user"`
}

type Stock struct {
	Total int `json:"total" validate:"min=0"`
}

type CreateBookRequest struct {
	Title       string `json:"title" validate:"required,min=2,max=100"`
	Genre       string `json:"genre" validate:"required"`
	Description string `json:"description" validate:"required,max=2000"`
	Stock       Stock  `json:"stock"`
}

type UpdateBookRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=2,max=100"`
	Genre       *string `json:"genre"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Total       *int    `json:"total" validate:"omitempty,min=0"`
}

type ListBooksFilter struct {
	Title  string
	Genre  string
	Author string
}

type BorrowRequest struct {
	BookID string `json:"bookId" validate:"required,uuid"`
}

type BorrowResponse struct {
	BookTitle string    `json:"bookTitle"`
	DueDate   time.Time `json:"dueDate"`
}

var genres = map[string]struct{}{
	"Fiction": {}, "Non-Fiction": {}, "Science": {}, "Technology": {},
	"History": {}, "Biography": {}, "Mystery": {}, "Romance": {},
	"Fantasy": {}, "Science Fiction": {}, "Horror": {}, "Thriller": {},
	"Poetry": {}, "Drama": {}, "Business": {}, "Self-Help": {},
	"Travel": {}, "Other": {},
}

func GenreOK(genre string) bool {
	_, ok := genres[genre]
	return ok
}
