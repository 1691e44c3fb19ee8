package service_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/bookden/library-service/library/internal/errs"
	"github.com/bookden/library-service/library/internal/model"
)

const authorID = "a3a5a2f0-9f6e-4c63-8a5d-2f0b7a3d9e11"

func TestService_CreateBook(t *testing.T) {
	t.Parallel()
	svc, repo := newSvc(t)
	req := model.CreateBookRequest{
		Title:       "Dune",
		Genre:       "Science Fiction",
		Description: "Spice and sand.",
		Stock:       model.Stock{Total: 4},
	}

	repo.EXPECT().CreateBook(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, b model.Book) (model.Book, error) {
			require.NotEmpty(t, b.ID)
			require.Equal(t, authorID, b.AuthorID)
			require.Equal(t, 4, b.Total)
			require.Equal(t, 4, b.Available)
			return b, nil
		})

	book, err := svc.CreateBook(context.Background(), authorID, req)
	require.NoError(t, err)
	require.Equal(t, book.Total, book.Available)
}

func TestService_UpdateBook_Ownership(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	title := "Dune Messiah"

	t.Run("owner may update", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)
		req := model.UpdateBookRequest{Title: &title}

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(book(5, 5), nil)
		repo.EXPECT().UpdateBook(gomock.Any(), bookID, req).Return(book(5, 5), nil)

		_, err := svc.UpdateBook(ctx, authorID, bookID, req)
		require.NoError(t, err)
	})

	t.Run("someone else is forbidden", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(book(5, 5), nil)

		_, err := svc.UpdateBook(ctx, "other-author", bookID, model.UpdateBookRequest{Title: &title})
		require.ErrorIs(t, err, errs.ErrForbidden)
	})
}

func TestService_DeleteBook_Ownership(t *testing.T) {
	t.Parallel()
	svc, repo := newSvc(t)

	repo.EXPECT().GetBook(gomock.Any(), bookID).Return(book(5, 5), nil)

	err := svc.DeleteBook(context.Background(), "other-author", bookID)
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestService_BookHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("owner sees the ledger", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(book(3, 5), nil)
		repo.EXPECT().BorrowHistory(gomock.Any(), bookID).Return([]model.BorrowRecord{
			activeRecord(bookID),
			{BookID: bookID, UserID: "another-reader", Status: model.BorrowReturned},
		}, nil)

		records, err := svc.BookHistory(ctx, authorID, bookID)
		require.NoError(t, err)
		require.Len(t, records, 2)
	})

	t.Run("someone else is forbidden", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(book(3, 5), nil)

		_, err := svc.BookHistory(ctx, "other-author", bookID)
		require.ErrorIs(t, err, errs.ErrForbidden)
	})
}
