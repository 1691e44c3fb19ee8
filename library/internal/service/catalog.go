package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bookden/library-service/library/internal/errs"
	"github.com/bookden/library-service/library/internal/model"
)

// CreateBook lists a new title for the author. Available is initialized
// from total; status follows from the derivation.
func (s *Service) CreateBook(ctx context.Context, authorID string, req model.CreateBookRequest) (model.Book, error) {
	book := model.Book{
		ID:          uuid.NewString(),
		AuthorID:    authorID,
		Title:       req.Title,
		Genre:       req.Genre,
		Description: req.Description,
		Total:       req.Stock.Total,
		Available:   req.Stock.Total,
	}
	return s.repo.CreateBook(ctx, book)
}

func (s *Service) GetBook(ctx context.Context, id string) (model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

func (s *Service) ListBooks(ctx context.Context, filter model.ListBooksFilter) ([]model.Book, error) {
	return s.repo.ListBooks(ctx, filter)
}

func (s *Service) AuthorBooks(ctx context.Context, authorID string) ([]model.Book, error) {
	return s.repo.BooksByAuthor(ctx, authorID)
}

func (s *Service) UpdateBook(ctx context.Context, authorID, bookID string, req model.UpdateBookRequest) (model.Book, error) {
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		return model.Book{}, err
	}
	if book.AuthorID != authorID {
		return model.Book{}, errors.Wrap(errs.ErrForbidden, "you can only update your own books")
	}
	return s.repo.UpdateBook(ctx, bookID, req)
}

func (s *Service) DeleteBook(ctx context.Context, authorID, bookID string) error {
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	if book.AuthorID != authorID {
		return errors.Wrap(errs.ErrForbidden, "you can only delete your own books")
	}
	return s.repo.DeleteBook(ctx, bookID)
}

// BookHistory exposes a title's borrow ledger to its author.
func (s *Service) BookHistory(ctx context.Context, authorID, bookID string) ([]model.BorrowRecord, error) {
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.AuthorID != authorID {
		return nil, errors.Wrap(errs.ErrForbidden, "you can only view your own books")
	}
	return s.repo.BorrowHistory(ctx, bookID)
}

// SetDiscontinued flips the administrative terminal override. The borrow
// engine never writes this flag.
func (s *Service) SetDiscontinued(ctx context.Context, bookID string, discontinued bool) error {
	return s.repo.SetDiscontinued(ctx, bookID, discontinued)
}
