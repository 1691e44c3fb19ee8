package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bookden/library-service/library/internal/errs"
	"github.com/bookden/library-service/library/internal/model"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

type Repository interface {
	CreateUser(ctx context.Context, user model.User) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	UpdateUser(ctx context.Context, id, name, email string) (model.User, error)
	DeleteUser(ctx context.Context, id string) error

	CreateBook(ctx context.Context, book model.Book) (model.Book, error)
	GetBook(ctx context.Context, id string) (model.Book, error)
	ListBooks(ctx context.Context, filter model.ListBooksFilter) ([]model.Book, error)
	BooksByAuthor(ctx context.Context, authorID string) ([]model.Book, error)
	UpdateBook(ctx context.Context, id string, req model.UpdateBookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, id string) error
	SetDiscontinued(ctx context.Context, id string, discontinued bool) error

	ActiveBorrows(ctx context.Context, userID string) ([]model.BorrowRecord, error)
	BorrowedBooks(ctx context.Context, userID string) ([]model.BorrowedBook, error)
	BorrowHistory(ctx context.Context, bookID string) ([]model.BorrowRecord, error)
	Borrow(ctx context.Context, book model.Book, userID string, now time.Time) (model.BorrowRecord, error)
	Return(ctx context.Context, book model.Book, userID string, now time.Time) error

	RecordEvent(ctx context.Context, event model.BorrowEvent) error
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	usersTableName         = `users`
	booksTableName         = `books`
	borrowRecordsTableName = `borrow_records`
	borrowEventsTableName  = `borrow_events`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// overdueStatus reports stored 'active' rows past due as 'overdue'.
// The classification is derived on read, never written back.
const overdueStatus = `case when status = 'active' and due_date < now() then 'overdue' else status end as status`

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (r *repository) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	q, args, err := qb.Insert(usersTableName).
		Columns("id", "name", "email", "password_hash", "role").
		Values(user.ID, user.Name, user.Email, user.PasswordHash, user.Role).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var created model.User
	if err := r.db.GetContext(ctx, &created, q, args...); err != nil {
		if isUniqueViolation(err) {
			return model.User{}, errs.ErrEmailTaken
		}
		r.log.Error("CreateUser", zap.String("q", q), zap.Error(err))
		return model.User{}, err
	}
	return created, nil
}

func (r *repository) GetUser(ctx context.Context, id string) (model.User, error) {
	q, args, err := qb.Select("id", "name", "email", "password_hash", "role", "created_at").
		From(usersTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := r.db.GetContext(ctx, &user, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	q, args, err := qb.Select("id", "name", "email", "password_hash", "role", "created_at").
		From(usersTableName).
		Where(sq.Eq{"email": email}).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := r.db.GetContext(ctx, &user, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

func (r *repository) UpdateUser(ctx context.Context, id, name, email string) (model.User, error) {
	if name == "" && email == "" {
		return r.GetUser(ctx, id)
	}
	upd := qb.Update(usersTableName).Where(sq.Eq{"id": id})
	if name != "" {
		upd = upd.Set("name", name)
	}
	if email != "" {
		upd = upd.Set("email", email)
	}
	q, args, err := upd.Suffix("returning *").ToSql()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := r.db.GetContext(ctx, &user, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		if isUniqueViolation(err) {
			return model.User{}, errs.ErrEmailTaken
		}
		return model.User{}, err
	}
	return user, nil
}

func (r *repository) DeleteUser(ctx context.Context, id string) error {
	q, args, err := qb.Delete(usersTableName).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *repository) CreateBook(ctx context.Context, book model.Book) (model.Book, error) {
	q, args, err := qb.Insert(booksTableName).
		Columns("id", "author_id", "title", "genre", "description", "total", "available").
		Values(book.ID, book.AuthorID, book.Title, book.Genre, book.Description, book.Total, book.Available).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var created model.Book
	if err := r.db.GetContext(ctx, &created, q, args...); err != nil {
		r.log.Error("CreateBook", zap.String("q", q), zap.Error(err))
		return model.Book{}, err
	}
	created.Status = model.DeriveStatus(created.Available, created.Discontinued)
	return created, nil
}

func (r *repository) GetBook(ctx context.Context, id string) (model.Book, error) {
	q, args, err := qb.Select("id", "author_id", "title", "genre", "description",
		"total", "available", "discontinued", "version", "created_at", "updated_at").
		From(booksTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := r.db.GetContext(ctx, &book, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	book.Status = model.DeriveStatus(book.Available, book.Discontinued)
	return book, nil
}

func (r *repository) ListBooks(ctx context.Context, filter model.ListBooksFilter) ([]model.Book, error) {
	q := qb.Select("b.id", "b.author_id", "b.title", "b.genre", "b.description",
		"b.total", "b.available", "b.discontinued", "b.version", "b.created_at", "b.updated_at").
		From(booksTableName + " b").
		OrderBy("b.created_at desc")

	if filter.Title != "" {
		q = q.Where(sq.ILike{"b.title": "%" + filter.Title + "%"})
	}
	if filter.Genre != "" {
		q = q.Where(sq.Eq{"b.genre": filter.Genre})
	}
	if filter.Author != "" {
		q = q.Join(usersTableName + " u on u.id = b.author_id").
			Where(sq.ILike{"u.name": "%" + filter.Author + "%"})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	r.log.Debug("ListBooks", zap.String("query", query), zap.Any("args", args))

	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, err
	}
	for i := range books {
		books[i].Status = model.DeriveStatus(books[i].Available, books[i].Discontinued)
	}
	return books, nil
}

func (r *repository) BooksByAuthor(ctx context.Context, authorID string) ([]model.Book, error) {
	q, args, err := qb.Select("id", "author_id", "title", "genre", "description",
		"total", "available", "discontinued", "version", "created_at", "updated_at").
		From(booksTableName).
		Where(sq.Eq{"author_id": authorID}).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, err
	}
	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, q, args...); err != nil {
		return nil, err
	}
	for i := range books {
		books[i].Status = model.DeriveStatus(books[i].Available, books[i].Discontinued)
	}
	return books, nil
}

// UpdateBook changes descriptive fields and, when total changes, shifts
// available by the same delta clamped at zero. Version bumps so in-flight
// borrows retry against fresh stock.
func (r *repository) UpdateBook(ctx context.Context, id string, req model.UpdateBookRequest) (model.Book, error) {
	upd := qb.Update(booksTableName).
		Where(sq.Eq{"id": id}).
		Set("updated_at", sq.Expr("now()")).
		Set("version", sq.Expr("version + 1"))
	if req.Title != nil {
		upd = upd.Set("title", *req.Title)
	}
	if req.Genre != nil {
		upd = upd.Set("genre", *req.Genre)
	}
	if req.Description != nil {
		upd = upd.Set("description", *req.Description)
	}
	if req.Total != nil {
		upd = upd.Set("available", sq.Expr("greatest(available + (? - total), 0)", *req.Total)).
			Set("total", *req.Total)
	}
	q, args, err := upd.Suffix("returning *").ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := r.db.GetContext(ctx, &book, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	book.Status = model.DeriveStatus(book.Available, book.Discontinued)
	return book, nil
}

func (r *repository) DeleteBook(ctx context.Context, id string) error {
	q, args, err := qb.Delete(booksTableName).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *repository) SetDiscontinued(ctx context.Context, id string, discontinued bool) error {
	q, args, err := qb.Update(booksTableName).
		Set("discontinued", discontinued).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ActiveBorrows returns the reader's not-yet-returned loans; rows past due
// report status 'overdue'.
func (r *repository) ActiveBorrows(ctx context.Context, userID string) ([]model.BorrowRecord, error) {
	q := `
	select id, book_id, user_id, borrow_date, due_date, return_date, ` + overdueStatus + `
	from ` + borrowRecordsTableName + `
	where user_id = $1 and status = 'active'`

	var records []model.BorrowRecord
	if err := r.db.SelectContext(ctx, &records, q, userID); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) BorrowedBooks(ctx context.Context, userID string) ([]model.BorrowedBook, error) {
	q := `
	select br.id, br.book_id, br.user_id, br.borrow_date, br.due_date, br.return_date,
	       case when br.status = 'active' and br.due_date < now() then 'overdue' else br.status end as status,
	       b.title, b.genre
	from ` + borrowRecordsTableName + ` br
	join ` + booksTableName + ` b on b.id = br.book_id
	where br.user_id = $1
	order by br.borrow_date desc`

	var books []model.BorrowedBook
	if err := r.db.SelectContext(ctx, &books, q, userID); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *repository) BorrowHistory(ctx context.Context, bookID string) ([]model.BorrowRecord, error) {
	q := `
	select id, book_id, user_id, borrow_date, due_date, return_date, ` + overdueStatus + `
	from ` + borrowRecordsTableName + `
	where book_id = $1
	order by borrow_date`

	var records []model.BorrowRecord
	if err := r.db.SelectContext(ctx, &records, q, bookID); err != nil {
		return nil, err
	}
	return records, nil
}

// Borrow performs the dual write as one transaction: the stock decrement is
// guarded by the version read beforehand, the ledger row is appended only if
// the guard held. Zero rows on the guard means another writer got there
// first; the caller retries from a fresh read.
//
// The book's version guard serializes writers per book only. Concurrent
// borrows of different books by the same reader are serialized by locking
// the user row, so the loan-cap count in the insert guard always sees the
// committed state.
func (r *repository) Borrow(ctx context.Context, book model.Book, userID string, now time.Time) (model.BorrowRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.BorrowRecord{}, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
	update `+booksTableName+`
	set available = available - 1, version = version + 1, updated_at = now()
	where id = $1 and version = $2 and available > 0`,
		book.ID, book.Version)
	if err != nil {
		return model.BorrowRecord{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.BorrowRecord{}, errs.ErrConcurrentUpdate
	}

	var lockedID string
	if err := tx.GetContext(ctx, &lockedID, `
	select id from `+usersTableName+` where id = $1 for update`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BorrowRecord{}, errs.ErrNotFound
		}
		return model.BorrowRecord{}, err
	}

	q := `
	insert into ` + borrowRecordsTableName + ` (book_id, user_id, borrow_date, due_date, status)
	select $1, $2, $3, $4, 'active'
	where (select count(*) from ` + borrowRecordsTableName + `
	       where user_id = $2 and status = 'active') < $5
	returning *`
	var record model.BorrowRecord
	if err := tx.GetContext(ctx, &record, q,
		book.ID, userID, now, now.Add(model.BorrowPeriod), model.MaxBorrowedBooks); err != nil {
		// zero rows means the guard held the cap against a racing borrow
		if errors.Is(err, sql.ErrNoRows) {
			return model.BorrowRecord{}, errs.ErrLimitReached
		}
		// active-loan unique index catches a duplicate borrow racing past
		// the service-level check
		if isUniqueViolation(err) {
			return model.BorrowRecord{}, errs.ErrAlreadyBorrowed
		}
		r.log.Error("Borrow insert", zap.String("q", q), zap.Error(err))
		return model.BorrowRecord{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.BorrowRecord{}, errors.Wrap(err, "commit")
	}
	return record, nil
}

// Return closes the ledger row and releases the copy in one transaction.
// available never exceeds total.
func (r *repository) Return(ctx context.Context, book model.Book, userID string, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
	update `+borrowRecordsTableName+`
	set status = 'returned', return_date = $3
	where book_id = $1 and user_id = $2 and status = 'active'`,
		book.ID, userID, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotBorrowed
	}

	res, err = tx.ExecContext(ctx, `
	update `+booksTableName+`
	set available = least(available + 1, total), version = version + 1, updated_at = now()
	where id = $1 and version = $2`,
		book.ID, book.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrConcurrentUpdate
	}

	return tx.Commit()
}

func (r *repository) RecordEvent(ctx context.Context, event model.BorrowEvent) error {
	q, args, err := qb.Insert(borrowEventsTableName).
		Columns("book_id", "user_id", "action", "due_date", "occurred_at").
		Values(event.BookID, event.UserID, event.Action, event.DueDate, event.OccurredAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	return err
}
