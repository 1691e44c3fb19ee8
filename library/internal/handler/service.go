package handler

import (
	"context"

	"github.com/bookden/library-service/library/internal/model"
	"github.com/bookden/library-service/library/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type BorrowService interface {
	Borrow(ctx context.Context, userID, bookID string) (model.BorrowResponse, error)
	Return(ctx context.Context, userID, bookID string) error
	MyBooks(ctx context.Context, userID string) ([]model.BorrowedBook, error)
}

type CatalogService interface {
	CreateBook(ctx context.Context, authorID string, req model.CreateBookRequest) (model.Book, error)
	GetBook(ctx context.Context, id string) (model.Book, error)
	ListBooks(ctx context.Context, filter model.ListBooksFilter) ([]model.Book, error)
	AuthorBooks(ctx context.Context, authorID string) ([]model.Book, error)
	UpdateBook(ctx context.Context, authorID, bookID string, req model.UpdateBookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, authorID, bookID string) error
	BookHistory(ctx context.Context, authorID, bookID string) ([]model.BorrowRecord, error)
	SetDiscontinued(ctx context.Context, bookID string, discontinued bool) error
}

type MembershipService interface {
	Register(ctx context.Context, req model.RegisterRequest) (model.AuthResponse, error)
	Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	UpdateUser(ctx context.Context, id, name, email string) (model.User, error)
	DeleteUser(ctx context.Context, id string) error
}

var (
	_ BorrowService     = (*service.Service)(nil)
	_ CatalogService    = (*service.Service)(nil)
	_ MembershipService = (*service.Service)(nil)
)
