package devstub

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/uniteams/uniteams/core/auth"
	"github.com/uniteams/uniteams/core/profile"
	"github.com/uniteams/uniteams/services/email"
)

// wire payloads, matching the hosted provider

type (
	signupRequest struct {
		Email    string        `json:"email"`
		Password string        `json:"password"`
		Data     auth.Metadata `json:"data"`
	}

	tokenRequest struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		RefreshToken string `json:"refresh_token"`
	}

	updateUserRequest struct {
		Email    string         `json:"email"`
		Password string         `json:"password"`
		Data     *auth.Metadata `json:"data"`
	}

	userPayload struct {
		ID               string        `json:"id"`
		Email            string        `json:"email"`
		EmailConfirmedAt *time.Time    `json:"email_confirmed_at,omitempty"`
		UserMetadata     auth.Metadata `json:"user_metadata"`
		CreatedAt        time.Time     `json:"created_at"`
	}

	sessionPayload struct {
		AccessToken  string      `json:"access_token"`
		TokenType    string      `json:"token_type"`
		RefreshToken string      `json:"refresh_token"`
		ExpiresIn    int64       `json:"expires_in"`
		User         userPayload `json:"user"`
	}

	profileRow struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		FirstName string    `json:"first_name"`
		LastName  string    `json:"last_name"`
		AvatarURL *string   `json:"avatar_url"`
		Bio       *string   `json:"bio"`
		Role      string    `json:"role"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}
)

func newUserPayload(acc account) userPayload {
	up := userPayload{
		ID:           acc.ID,
		Email:        acc.Email,
		UserMetadata: acc.Metadata,
		CreatedAt:    acc.CreatedAt,
	}
	if acc.EmailConfirmed {
		at := acc.CreatedAt
		up.EmailConfirmedAt = &at
	}
	return up
}

func newProfileRow(prof profile.Profile) profileRow {
	row := profileRow{
		ID:        prof.ID,
		Email:     prof.Email,
		FirstName: prof.FirstName,
		LastName:  prof.LastName,
		Role:      prof.Role,
		CreatedAt: prof.CreatedAt,
		UpdatedAt: prof.UpdatedAt,
	}
	if prof.AvatarURL != "" {
		row.AvatarURL = &prof.AvatarURL
	}
	if prof.Bio != "" {
		row.Bio = &prof.Bio
	}
	return row
}

func (row profileRow) profile() profile.Profile {
	prof := profile.Profile{
		ID:        row.ID,
		Email:     row.Email,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Role:      row.Role,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.AvatarURL != nil {
		prof.AvatarURL = *row.AvatarURL
	}
	if row.Bio != nil {
		prof.Bio = *row.Bio
	}
	return prof
}

// auth handlers

func (s *server) signup(ctx echo.Context) error {
	var req signupRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	acc, err := s.accounts.create(req.Email, req.Password, req.Data, s.opts.AutoConfirm)
	if err != nil {
		if errors.Is(err, auth.ErrEmailExists) {
			return errEmailRegistered
		}
		return err
	}

	if s.opts.AutoConfirm {
		return s.respondSession(ctx, acc)
	}
	s.sendConfirmationMail(acc)
	return ctx.JSON(http.StatusOK, newUserPayload(acc))
}

func (s *server) token(ctx echo.Context) error {
	var req tokenRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	switch ctx.QueryParam("grant_type") {
	case "password":
		acc, ok := s.accounts.getByEmail(req.Email)
		if !ok || !acc.checkPassword(req.Password) {
			return errInvalidCredentials
		}
		if !acc.EmailConfirmed {
			return errEmailNotConfirmed
		}
		s.accounts.touchLogin(acc.ID)
		return s.respondSession(ctx, acc)
	case "refresh_token":
		acc, ok := s.accounts.redeemRefreshToken(req.RefreshToken)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid Refresh Token")
		}
		return s.respondSession(ctx, acc)
	}
	return errBadGrantType
}

func (s *server) logout(ctx echo.Context) error {
	claims, err := s.contextClaims(ctx)
	if err != nil {
		return err
	}
	s.accounts.revokeRefreshTokens(claims.Subject)
	return ctx.NoContent(http.StatusNoContent)
}

func (s *server) verify(ctx echo.Context) error {
	id, err := decodeUID(ctx.QueryParam("uid"))
	if err != nil {
		return errNotFound
	}
	acc, ok := s.accounts.getByID(id)
	if !ok {
		return errNotFound
	}
	if err := verifyConfirmToken(acc, s.opts.SecretKey, ctx.QueryParam("token")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.accounts.confirm(acc.ID)
	return ctx.JSON(http.StatusOK, echo.Map{"msg": "Email confirmed, you can now sign in"})
}

func (s *server) getUser(ctx echo.Context) error {
	acc, err := s.contextAccount(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newUserPayload(acc))
}

func (s *server) updateUser(ctx echo.Context) error {
	claims, err := s.contextClaims(ctx)
	if err != nil {
		return err
	}
	var req updateUserRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	acc, err := s.accounts.update(claims.Subject, req.Email, req.Password, req.Data)
	if err != nil {
		if errors.Is(err, auth.ErrEmailExists) {
			return errEmailRegistered
		}
		return err
	}
	return ctx.JSON(http.StatusOK, newUserPayload(acc))
}

// profile table handlers

func (s *server) listProfiles(ctx echo.Context) error {
	filter := ctx.QueryParam("id")
	if !strings.HasPrefix(filter, "eq.") {
		return echo.NewHTTPError(http.StatusBadRequest, "an id=eq.<uuid> filter is required")
	}
	id := strings.TrimPrefix(filter, "eq.")

	prof, err := s.opts.Profiles.GetProfile(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return ctx.JSON(http.StatusOK, []profileRow{})
		}
		return err
	}
	return ctx.JSON(http.StatusOK, []profileRow{newProfileRow(prof)})
}

func (s *server) upsertProfile(ctx echo.Context) error {
	var row profileRow
	if err := ctx.Bind(&row); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// only the service role or the row's owner may write
	if !s.isServiceRequest(ctx) {
		claims, err := s.contextClaims(ctx)
		if err != nil {
			return err
		}
		if claims.Subject != row.ID {
			return errForbidden
		}
	}

	prof, err := s.opts.Profiles.UpsertProfile(ctx.Request().Context(), row.profile())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, []profileRow{newProfileRow(prof)})
}

func (s *server) updateCurrentProfile(ctx echo.Context) error {
	claims, err := s.contextClaims(ctx)
	if err != nil {
		return err
	}
	var upd profile.Update
	if err := ctx.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.opts.Profiles.UpdateOwnProfile(ctx.Request().Context(), claims.Subject, upd); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return errNotFound
		}
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// helpers

func (s *server) respondSession(ctx echo.Context, acc account) error {
	ss, err := generateToken(newClaims(acc, s.opts.AccessTokenTTL), s.opts.SecretKey)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sessionPayload{
		AccessToken:  ss,
		TokenType:    "bearer",
		RefreshToken: s.accounts.issueRefreshToken(acc.ID),
		ExpiresIn:    int64(s.opts.AccessTokenTTL / time.Second),
		User:         newUserPayload(acc),
	})
}

func bearerToken(ctx echo.Context) string {
	h := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func (s *server) isServiceRequest(ctx echo.Context) bool {
	if ctx.Request().Header.Get("apikey") == s.opts.ServiceKey {
		return true
	}
	return bearerToken(ctx) == s.opts.ServiceKey
}

func (s *server) contextClaims(ctx echo.Context) (*Claims, error) {
	token := bearerToken(ctx)
	if token == "" || token == s.opts.AnonKey || token == s.opts.ServiceKey {
		return nil, errUnauthorized
	}
	claims, err := parseToken(token, s.opts.SecretKey)
	if err != nil {
		return nil, errUnauthorized
	}
	return claims, nil
}

func (s *server) contextAccount(ctx echo.Context) (account, error) {
	claims, err := s.contextClaims(ctx)
	if err != nil {
		return account{}, err
	}
	acc, ok := s.accounts.getByID(claims.Subject)
	if !ok {
		return account{}, errUnauthorized
	}
	return acc, nil
}

func (s *server) sendConfirmationMail(acc account) {
	if s.opts.EmailSvc == nil {
		return
	}
	token, err := makeConfirmToken(acc, s.opts.SecretKey)
	if err != nil {
		s.opts.Logger.Error("generating confirmation token failed", err)
		return
	}
	link := s.opts.BaseURL + "/auth/v1/verify?uid=" + encodeUID(acc) + "&token=" + token
	name := strings.TrimSpace(acc.Metadata.FirstName + " " + acc.Metadata.LastName)
	s.opts.EmailSvc.SendMessages(&email.Message{
		To:      []mail.Address{{Name: name, Address: acc.Email}},
		Subject: "Confirm your email address",
		TextContent: "Welcome to Uniteams!\r\n\r\n" +
			"Please confirm your email address by following this link:\r\n\r\n" + link + "\r\n",
	})
}
