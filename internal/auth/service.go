package auth

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"backend-postboard/internal/db"
	"backend-postboard/internal/shared/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultTokenTTL = 24 * time.Hour
	uniqueViolation = "23505"
)

var errDuplicateUser = apperr.Validation("email or username already exists")

type Service struct {
	secret   []byte
	ttl      time.Duration
	db       db.Querier
	validate *validator.Validate
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func NewService(secret string, ttl time.Duration, db db.Querier) *Service {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Service{
		secret:   []byte(secret),
		ttl:      ttl,
		db:       db,
		validate: newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return User{}, validationError(err)
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE email=$1 OR username=$2)
	`, req.Email, req.Username).Scan(&exists); err != nil {
		return User{}, fmt.Errorf("check user: %w", err)
	}
	if exists {
		return User{}, errDuplicateUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.NewString(),
		FullName:     req.FullName,
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, full_name, email, username, password_hash)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at
	`, user.ID, user.FullName, user.Email, user.Username, user.PasswordHash)
	if err := row.Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, errDuplicateUser
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return LoginResponse{}, validationError(err)
	}
	ident := strings.TrimSpace(req.EmailOrUsername)

	row := s.db.QueryRow(ctx, `
		SELECT id, full_name, email, username, password_hash, created_at, updated_at
		FROM users WHERE email = lower($1) OR username = $1
		LIMIT 1
	`, ident)
	user, err := scanUser(row)
	if err != nil {
		return LoginResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResponse{}, apperr.Auth("invalid credentials")
	}

	token, err := s.signToken(user.ID, s.ttl)
	if err != nil {
		return LoginResponse{}, err
	}
	return LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(s.ttl.Seconds()),
		User:      UserSummary{ID: user.ID, Username: user.Username, FullName: user.FullName},
	}, nil
}

// Me loads the profile behind a verified token.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, full_name, email, username, password_hash, created_at, updated_at
		FROM users WHERE id = $1
	`, userID)
	return scanUser(row)
}

// ValidateAccessToken checks the signature, algorithm and expiry of token and
// returns the user it was issued for.
func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func (s *Service) signToken(userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := parseClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, apperr.Auth(err.Error())
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, apperr.Auth("token invalid")
	}
	return claims, nil
}

var parseClaimsFn = jwt.ParseWithClaims

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.FullName, &user.Email, &user.Username, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation(err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.Validation(fe.Field() + " is required")
	case "email":
		return apperr.Validation("valid email is required")
	case "min":
		return apperr.Validation(fe.Field() + " must be at least " + fe.Param() + " characters")
	default:
		return apperr.Validation(fe.Field() + " is invalid")
	}
}
