package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uniteams/uniteams/core/profile"
)

type profileRepository struct {
	db      *sqlx.DB
	nowFunc func() time.Time
}

var _ profile.Repository = (*profileRepository)(nil)

func NewProfileRepository(db *sqlx.DB) *profileRepository {
	return &profileRepository{db: db, nowFunc: time.Now}
}

type profileRow struct {
	ID        string      `db:"id"`
	Email     string      `db:"email"`
	FirstName string      `db:"first_name"`
	LastName  string      `db:"last_name"`
	AvatarURL null.String `db:"avatar_url"`
	Bio       null.String `db:"bio"`
	Role      string      `db:"role"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func newProfileRow(prof profile.Profile) profileRow {
	return profileRow{
		ID:        prof.ID,
		Email:     prof.Email,
		FirstName: prof.FirstName,
		LastName:  prof.LastName,
		AvatarURL: null.NewString(prof.AvatarURL, prof.AvatarURL != ""),
		Bio:       null.NewString(prof.Bio, prof.Bio != ""),
		Role:      prof.Role,
		CreatedAt: prof.CreatedAt,
		UpdatedAt: prof.UpdatedAt,
	}
}

func (row profileRow) profile() profile.Profile {
	return profile.Profile{
		ID:        row.ID,
		Email:     row.Email,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		AvatarURL: row.AvatarURL.String,
		Bio:       row.Bio.String,
		Role:      row.Role,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func (repo *profileRepository) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	var row profileRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM profiles WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return profile.Profile{}, profile.ErrNotFound
		}
		return profile.Profile{}, errors.Wrap(err, "querying profile")
	}
	return row.profile(), nil
}

func (repo *profileRepository) UpsertProfile(ctx context.Context, prof profile.Profile) (profile.Profile, error) {
	now := repo.nowFunc().UTC()
	if prof.CreatedAt.IsZero() {
		prof.CreatedAt = now
	}
	prof.UpdatedAt = now

	var row profileRow
	err := repo.db.GetContext(ctx, &row, `
		INSERT INTO profiles (id, email, first_name, last_name, avatar_url, bio, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			email      = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			avatar_url = EXCLUDED.avatar_url,
			bio        = EXCLUDED.bio,
			role       = EXCLUDED.role,
			updated_at = EXCLUDED.updated_at
		RETURNING *`,
		prof.ID, prof.Email, prof.FirstName, prof.LastName,
		null.NewString(prof.AvatarURL, prof.AvatarURL != ""),
		null.NewString(prof.Bio, prof.Bio != ""),
		prof.Role, prof.CreatedAt, prof.UpdatedAt,
	)
	if err != nil {
		return profile.Profile{}, errors.Wrap(err, "upserting profile")
	}
	return row.profile(), nil
}

func (repo *profileRepository) UpdateOwnProfile(ctx context.Context, id string, upd profile.Update) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var row profileRow
	if err = tx.GetContext(ctx, &row, `SELECT * FROM profiles WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return profile.ErrNotFound
		}
		return errors.Wrap(err, "querying profile")
	}

	updated := newProfileRow(upd.ApplyTo(row.profile()))
	updated.UpdatedAt = repo.nowFunc().UTC()
	if _, err = tx.ExecContext(ctx, `
		UPDATE profiles
		SET first_name = $2, last_name = $3, avatar_url = $4, bio = $5, updated_at = $6
		WHERE id = $1`,
		id, updated.FirstName, updated.LastName, updated.AvatarURL, updated.Bio, updated.UpdatedAt,
	); err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return errors.Wrap(tx.Commit(), "committing profile update")
}
