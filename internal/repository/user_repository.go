package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/user-auth-service/internal/model"
	"github.com/iliyamo/user-auth-service/internal/utils"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY, raised by the unique indexes on
// users.username and users.email.
const mysqlDuplicateEntry = 1062

const userColumns = "id,username,email,password_hash,profile_photo,cover_photo,COALESCE(refresh_token,''),created_at,updated_at"

const publicColumns = "id,username,email,profile_photo,cover_photo,created_at,updated_at"

// UserRepo persists users in the 'users' table.
type UserRepo struct {
	DB         *sql.DB
	BcryptCost int
}

func NewUserRepo(db *sql.DB, bcryptCost int) *UserRepo {
	return &UserRepo{DB: db, BcryptCost: bcryptCost}
}

// Create hashes the password, inserts the user and returns the stored row.
// A duplicate username or email yields ErrConflict.
func (r *UserRepo) Create(ctx context.Context, nu model.NewUser) (model.User, error) {
	hash, err := utils.HashPassword(nu.Password, r.BcryptCost)
	if err != nil {
		return model.User{}, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, profile_photo, cover_photo) VALUES (?,?,?,?,?)",
		NormalizeUsername(nu.Username), strings.TrimSpace(nu.Email), hash, nu.ProfilePhoto, nu.CoverPhoto)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return model.User{}, ErrConflict
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByUsername fetches a user by normalized username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return r.scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", NormalizeUsername(username)))
}

// GetByEmail fetches a user by exact email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", strings.TrimSpace(email)))
}

// GetByLogin matches on username OR email; either may be empty, not both.
func (r *UserRepo) GetByLogin(ctx context.Context, username, email string) (model.User, error) {
	where, args := loginFilter(username, email)
	if where == "" {
		return model.User{}, ErrNotFound
	}
	return r.scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+where+" ORDER BY id LIMIT 1", args...))
}

// ExistsByUsernameOrEmail reports whether either value is already taken.
func (r *UserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	where, args := loginFilter(username, email)
	if where == "" {
		return false, nil
	}
	var one int
	err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE "+where+" LIMIT 1", args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetPublicByID selects only the public columns of a user.
func (r *UserRepo) GetPublicByID(ctx context.Context, id uint64) (model.PublicUser, error) {
	var u model.PublicUser
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+publicColumns+" FROM users WHERE id=? LIMIT 1", id).
		Scan(&u.ID, &u.Username, &u.Email, &u.ProfilePhoto, &u.CoverPhoto, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PublicUser{}, ErrNotFound
	}
	return u, err
}

// SetRefreshToken stores token as the user's only valid refresh token.
func (r *UserRepo) SetRefreshToken(ctx context.Context, id uint64, token string) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET refresh_token=? WHERE id=?", token, id)
	return err
}

// SwapRefreshToken replaces the stored refresh token only if it still equals
// old. The comparison and the write are one statement, so of two concurrent
// refreshes presenting the same token exactly one succeeds.
func (r *UserRepo) SwapRefreshToken(ctx context.Context, id uint64, old, token string) error {
	if old == "" {
		return ErrStaleToken
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token=? WHERE id=? AND refresh_token=?", token, id, old)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleToken
	}
	return nil
}

// ClearRefreshToken unsets the stored refresh token (logout).
func (r *UserRepo) ClearRefreshToken(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET refresh_token=NULL WHERE id=?", id)
	return err
}

// NormalizeUsername is the single place usernames are case-folded.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func loginFilter(username, email string) (string, []any) {
	username = NormalizeUsername(username)
	email = strings.TrimSpace(email)
	switch {
	case username != "" && email != "":
		return "(username=? OR email=?)", []any{username, email}
	case username != "":
		return "username=?", []any{username}
	case email != "":
		return "email=?", []any{email}
	}
	return "", nil
}

func (r *UserRepo) scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.ProfilePhoto, &u.CoverPhoto, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}
