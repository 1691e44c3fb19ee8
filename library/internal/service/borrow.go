package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bookden/library-service/library/internal/errs"
	"github.com/bookden/library-service/library/internal/model"
)

// borrowRetries bounds re-reads after a lost optimistic-concurrency race
// on the book's version counter.
const borrowRetries = 3

// Borrow lends one copy of the book to the reader. The stock decrement and
// the ledger append happen in a single transaction; a version conflict
// retries from a fresh read.
func (s *Service) Borrow(ctx context.Context, userID, bookID string) (model.BorrowResponse, error) {
	for attempt := 0; attempt < borrowRetries; attempt++ {
		resp, err := s.tryBorrow(ctx, userID, bookID)
		if errors.Is(err, errs.ErrConcurrentUpdate) {
			continue
		}
		return resp, err
	}
	return model.BorrowResponse{}, errs.ErrConcurrentUpdate
}

func (s *Service) tryBorrow(ctx context.Context, userID, bookID string) (model.BorrowResponse, error) {
	var book model.Book
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		book, err = s.repo.GetBook(gctx, bookID)
		if errors.Is(err, errs.ErrNotFound) {
			return errors.Wrap(errs.ErrNotFound, "book")
		}
		return err
	})
	g.Go(func() error {
		// guards stale tokens: the id came from a verified token but the
		// account may be gone
		if _, err := s.repo.GetUser(gctx, userID); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errors.Wrap(errs.ErrNotFound, "user")
			}
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.BorrowResponse{}, err
	}

	if book.Available < 1 || book.Discontinued {
		return model.BorrowResponse{}, errs.ErrOutOfStock
	}

	// active includes loans reported overdue; both count against the cap
	// and both block a duplicate borrow
	active, err := s.repo.ActiveBorrows(ctx, userID)
	if err != nil {
		return model.BorrowResponse{}, err
	}
	for _, record := range active {
		if record.BookID == bookID {
			return model.BorrowResponse{}, errs.ErrAlreadyBorrowed
		}
	}
	if len(active) >= model.MaxBorrowedBooks {
		return model.BorrowResponse{}, errs.ErrLimitReached
	}

	record, err := s.repo.Borrow(ctx, book, userID, time.Now().UTC())
	if err != nil {
		return model.BorrowResponse{}, err
	}

	s.log.Info("book borrowed",
		zap.String("bookId", bookID), zap.String("userId", userID))
	return model.BorrowResponse{
		BookTitle: book.Title,
		DueDate:   record.DueDate,
	}, nil
}

// Return gives the copy back: the ledger row is closed and stock released
// in one transaction, with the same bounded retry on version conflicts.
func (s *Service) Return(ctx context.Context, userID, bookID string) error {
	for attempt := 0; attempt < borrowRetries; attempt++ {
		err := s.tryReturn(ctx, userID, bookID)
		if errors.Is(err, errs.ErrConcurrentUpdate) {
			continue
		}
		return err
	}
	return errs.ErrConcurrentUpdate
}

func (s *Service) tryReturn(ctx context.Context, userID, bookID string) error {
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errors.Wrap(errs.ErrNotFound, "book")
		}
		return err
	}

	if err := s.repo.Return(ctx, book, userID, time.Now().UTC()); err != nil {
		return err
	}

	s.log.Info("book returned",
		zap.String("bookId", bookID), zap.String("userId", userID))
	return nil
}

// MyBooks lists the reader's borrow records, overdue loans included.
func (s *Service) MyBooks(ctx context.Context, userID string) ([]model.BorrowedBook, error) {
	return s.repo.BorrowedBooks(ctx, userID)
}
