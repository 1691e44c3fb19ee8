package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookden/library-service/library/internal/errs"
	"github.com/bookden/library-service/library/internal/model"
	mock_repository "github.com/bookden/library-service/library/internal/repository/mocks"
	"github.com/bookden/library-service/library/internal/service"
)

const (
	bookID = "f7cdc58f-2caf-4b15-9727-f89dcc629b27"
	userID = "83575e12-7ce0-48ee-9931-51919ff3c9ee"
)

func newSvc(t *testing.T) (*service.Service, *mock_repository.MockRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	repo := mock_repository.NewMockRepository(ctrl)
	return service.NewService(repo, zap.NewExample().Named("test")), repo
}

func book(available, total int) model.Book {
	return model.Book{
		ID:        bookID,
		AuthorID:  "a3a5a2f0-9f6e-4c63-8a5d-2f0b7a3d9e11",
		Title:     "The Go Programming Language",
		Genre:     "Technology",
		Total:     total,
		Available: available,
		Version:   7,
		Status:    model.DeriveStatus(available, false),
	}
}

func activeRecord(id string) model.BorrowRecord {
	return model.BorrowRecord{
		BookID:     id,
		UserID:     userID,
		BorrowDate: time.Now().Add(-time.Hour),
		DueDate:    time.Now().Add(13 * 24 * time.Hour),
		Status:     model.BorrowActive,
	}
}

func TestService_Borrow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)
		b := book(5, 5)
		due := time.Now().Add(model.BorrowPeriod)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(b, nil)
		repo.EXPECT().GetUser(gomock.Any(), userID).Return(model.User{ID: userID, Role: model.RoleReader}, nil)
		repo.EXPECT().ActiveBorrows(gomock.Any(), userID).Return(nil, nil)
		repo.EXPECT().Borrow(gomock.Any(), b, userID, gomock.Any()).
			Return(model.BorrowRecord{BookID: bookID, UserID: userID, DueDate: due, Status: model.BorrowActive}, nil)

		resp, err := svc.Borrow(ctx, userID, bookID)
		require.NoError(t, err)
		require.Equal(t, b.Title, resp.BookTitle)
		require.Equal(t, due, resp.DueDate)
	})

	t.Run("book not found", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(model.Book{}, errs.ErrNotFound)
		repo.EXPECT().GetUser(gomock.Any(), userID).Return(model.User{ID: userID}, nil).AnyTimes()

		_, err := svc.Borrow(ctx, userID, bookID)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("user gone behind stale token", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(book(5, 5), nil).AnyTimes()
		repo.EXPECT().GetUser(gomock.Any(), userID).Return(model.User{}, errs.ErrNotFound)

		_, err := svc.Borrow(ctx, userID, bookID)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("out of stock", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(book(0, 5), nil)
		repo.EXPECT().GetUser(gomock.Any(), userID).Return(model.User{ID: userID}, nil)

		_, err := svc.Borrow(ctx, userID, bookID)
		require.ErrorIs(t, err, errs.ErrOutOfStock)
	})

	t.Run("discontinued is never lent out", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)
		b := book(5, 5)
		b.Discontinued = true

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(b, nil)
		repo.EXPECT().GetUser(gomock.Any(), userID).Return(model.User{ID: userID}, nil)

		_, err := svc.Borrow(ctx, userID, bookID)
		require.ErrorIs(t, err, errs.ErrOutOfStock)
	})

	t.Run("already borrowed", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(book(5, 5), nil)
		repo.EXPECT().GetUser(gomock.Any(), userID).Return(model.User{ID: userID}, nil)
		repo.EXPECT().ActiveBorrows(gomock.Any(), userID).
			Return([]model.BorrowRecord{activeRecord(bookID)}, nil)

		_, err := svc.Borrow(ctx, userID, bookID)
		require.ErrorIs(t, err, errs.ErrAlreadyBorrowed)
	})

	t.Run("overdue loan still blocks a duplicate borrow", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)
		overdue := activeRecord(bookID)
		overdue.Status = model.BorrowOverdue

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(book(5, 5), nil)
		repo.EXPECT().GetUser(gomock.Any(), userID).Return(model.User{ID: userID}, nil)
		repo.EXPECT().ActiveBorrows(gomock.Any(), userID).
			Return([]model.BorrowRecord{overdue}, nil)

		_, err := svc.Borrow(ctx, userID, bookID)
		require.ErrorIs(t, err, errs.ErrAlreadyBorrowed)
	})

	t.Run("limit reached", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)
		held := make([]model.BorrowRecord, 0, model.MaxBorrowedBooks)
		for i := 0; i < model.MaxBorrowedBooks; i++ {
			held = append(held, activeRecord("0000000"+string(rune('1'+i))+"-0000-0000-0000-000000000000"))
		}

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(book(5, 5), nil)
		repo.EXPECT().GetUser(gomock.Any(), userID).Return(model.User{ID: userID}, nil)
		repo.EXPECT().ActiveBorrows(gomock.Any(), userID).Return(held, nil)

		_, err := svc.Borrow(ctx, userID, bookID)
		require.ErrorIs(t, err, errs.ErrLimitReached)
	})

	t.Run("cap holds when the count read is stale", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		// the pre-check sees four loans for every attempt, as two racing
		// borrows of different books would; the store counts inside the
		// transaction and rejects the sixth loan
		held := []model.BorrowRecord{
			activeRecord("00000001-0000-0000-0000-000000000000"),
			activeRecord("00000002-0000-0000-0000-000000000000"),
			activeRecord("00000003-0000-0000-0000-000000000000"),
			activeRecord("00000004-0000-0000-0000-000000000000"),
		}
		activeCount := len(held)

		repo.EXPECT().GetBook(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, id string) (model.Book, error) {
				b := book(5, 5)
				b.ID = id
				return b, nil
			}).Times(2)
		repo.EXPECT().GetUser(gomock.Any(), userID).Return(model.User{ID: userID}, nil).Times(2)
		repo.EXPECT().ActiveBorrows(gomock.Any(), userID).Return(held, nil).Times(2)
		repo.EXPECT().Borrow(gomock.Any(), gomock.Any(), userID, gomock.Any()).DoAndReturn(
			func(_ context.Context, b model.Book, uid string, now time.Time) (model.BorrowRecord, error) {
				if activeCount >= model.MaxBorrowedBooks {
					return model.BorrowRecord{}, errs.ErrLimitReached
				}
				activeCount++
				return model.BorrowRecord{BookID: b.ID, UserID: uid, DueDate: now.Add(model.BorrowPeriod)}, nil
			}).Times(2)

		_, err := svc.Borrow(ctx, userID, "00000005-0000-0000-0000-000000000000")
		require.NoError(t, err)

		_, err = svc.Borrow(ctx, userID, "00000006-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, errs.ErrLimitReached)
		require.Equal(t, model.MaxBorrowedBooks, activeCount)
	})

	t.Run("version conflict retries then succeeds", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)
		b := book(2, 5)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(b, nil).Times(2)
		repo.EXPECT().GetUser(gomock.Any(), userID).Return(model.User{ID: userID}, nil).Times(2)
		repo.EXPECT().ActiveBorrows(gomock.Any(), userID).Return(nil, nil).Times(2)
		repo.EXPECT().Borrow(gomock.Any(), b, userID, gomock.Any()).
			Return(model.BorrowRecord{}, errs.ErrConcurrentUpdate)
		repo.EXPECT().Borrow(gomock.Any(), b, userID, gomock.Any()).
			Return(model.BorrowRecord{BookID: bookID, DueDate: time.Now().Add(model.BorrowPeriod)}, nil)

		_, err := svc.Borrow(ctx, userID, bookID)
		require.NoError(t, err)
	})

	t.Run("version conflict exhausts retries", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)
		b := book(1, 5)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(b, nil).Times(3)
		repo.EXPECT().GetUser(gomock.Any(), userID).Return(model.User{ID: userID}, nil).Times(3)
		repo.EXPECT().ActiveBorrows(gomock.Any(), userID).Return(nil, nil).Times(3)
		repo.EXPECT().Borrow(gomock.Any(), b, userID, gomock.Any()).
			Return(model.BorrowRecord{}, errs.ErrConcurrentUpdate).Times(3)

		_, err := svc.Borrow(ctx, userID, bookID)
		require.ErrorIs(t, err, errs.ErrConcurrentUpdate)
	})
}

func TestService_Return(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)
		b := book(2, 5)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(b, nil)
		repo.EXPECT().Return(gomock.Any(), b, userID, gomock.Any()).Return(nil)

		require.NoError(t, svc.Return(ctx, userID, bookID))
	})

	t.Run("book not found", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(model.Book{}, errs.ErrNotFound)

		require.ErrorIs(t, svc.Return(ctx, userID, bookID), errs.ErrNotFound)
	})

	t.Run("not borrowed", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)
		b := book(5, 5)

		repo.EXPECT().GetBook(gomock.Any(), bookID).Return(b, nil)
		repo.EXPECT().Return(gomock.Any(), b, userID, gomock.Any()).Return(errs.ErrNotBorrowed)

		require.ErrorIs(t, svc.Return(ctx, userID, bookID), errs.ErrNotBorrowed)
	})
}

// TestService_BorrowDrainsStock walks a 5-copy title through six readers:
// availability drops through limited to out_of_stock and the sixth borrow
// bounces without touching stock.
func TestService_BorrowDrainsStock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := newSvc(t)

	current := book(5, 5)

	repo.EXPECT().GetBook(gomock.Any(), bookID).DoAndReturn(
		func(context.Context, string) (model.Book, error) {
			return current, nil
		}).AnyTimes()
	repo.EXPECT().GetUser(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id string) (model.User, error) {
			return model.User{ID: id, Role: model.RoleReader}, nil
		}).AnyTimes()
	repo.EXPECT().ActiveBorrows(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	repo.EXPECT().Borrow(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, b model.Book, uid string, now time.Time) (model.BorrowRecord, error) {
			if b.Version != current.Version {
				return model.BorrowRecord{}, errs.ErrConcurrentUpdate
			}
			current.Available--
			current.Version++
			current.Status = model.DeriveStatus(current.Available, false)
			return model.BorrowRecord{BookID: b.ID, UserID: uid, BorrowDate: now, DueDate: now.Add(model.BorrowPeriod), Status: model.BorrowActive}, nil
		}).AnyTimes()

	wantStatus := []model.BookStatus{
		model.StatusAvailable, // 4 left
		model.StatusLimited,   // 3 left
		model.StatusLimited,   // 2 left
		model.StatusLimited,   // 1 left
		model.StatusOutOfStock,
	}
	for i, want := range wantStatus {
		reader := "00000000-0000-0000-0000-00000000000" + string(rune('1'+i))
		_, err := svc.Borrow(ctx, reader, bookID)
		require.NoError(t, err)
		require.Equal(t, want, current.Status)
	}

	_, err := svc.Borrow(ctx, "00000000-0000-0000-0000-000000000007", bookID)
	require.ErrorIs(t, err, errs.ErrOutOfStock)
	require.Equal(t, 0, current.Available)
	require.Equal(t, model.StatusOutOfStock, current.Status)
}
