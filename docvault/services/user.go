package services

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"docvault/docvault/auth"
	"docvault/docvault/schema"
	"docvault/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 10

type UserService struct {
	db         *gorm.DB
	jwtManager *auth.JwtManager
	google     auth.TokenVerifier
	apple      auth.TokenVerifier
	resolver   *IdentityResolver
	auditLog   auth.AuditLogger
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Post("/signup", s.Signup)
		r.Post("/login", s.Login)

		r.Get("/", s.List)
		r.Get("/{user_id}", s.Info)
		r.Put("/{user_id}", s.Update)
		r.Delete("/{user_id}", s.Delete)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.jwtManager, s.db, s.auditLog)...)

		r.Get("/profile", s.Profile)
	})

	return r
}

// UserInfo is the outward account shape. It deliberately has no password
// field; account responses can never leak the hash.
type UserInfo struct {
	Id          uuid.UUID `json:"id"`
	FirstName   string    `json:"firstname"`
	LastName    string    `json:"lastname"`
	Email       string    `json:"email"`
	LoginSource string    `json:"login_source"`
	Status      string    `json:"status"`
}

func convertToUserInfo(user *schema.User) UserInfo {
	return UserInfo{
		Id:          user.Id,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Email:       user.Email,
		LoginSource: user.LoginSource,
		Status:      user.Status,
	}
}

type signupRequest struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (s *UserService) Signup(w http.ResponseWriter, r *http.Request) {
	var params signupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Email == "" || params.Password == "" {
		utils.WriteErrorResponse(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}

	user, err := s.createLocalUser(params)
	if err != nil {
		utils.WriteErrorResponse(w, GetResponseCode(err), fmt.Sprintf("error creating user: %v", err))
		return
	}

	utils.WriteJsonResponse(w, "user created", convertToUserInfo(&user))
}

func (s *UserService) createLocalUser(params signupRequest) (schema.User, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcryptCost)
	if err != nil {
		slog.Error("error encrypting password", "error", err)
		return schema.User{}, CodedError(errors.New("error encrypting password"), http.StatusInternalServerError)
	}

	newUser := schema.User{
		Id:          uuid.New(),
		FirstName:   params.FirstName,
		LastName:    params.LastName,
		Email:       strings.ToLower(params.Email),
		Password:    hashedPwd,
		LoginSource: schema.LoginSourceEmail,
		Status:      schema.StatusActive,
		CreatedAt:   time.Now().UTC(),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		_, err := schema.GetUserByEmail(newUser.Email, txn)
		if err == nil {
			return CodedError(ErrEmailAlreadyInUse, http.StatusConflict)
		}
		if !errors.Is(err, schema.ErrUserNotFound) {
			return CodedError(err, http.StatusInternalServerError)
		}

		result := txn.Create(&newUser)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return CodedError(ErrEmailAlreadyInUse, http.StatusConflict)
			}
			slog.Error("sql error creating new user entry", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		return schema.User{}, err
	}

	newUser.Password = nil
	return newUser, nil
}

type loginRequest struct {
	LoginSource string `json:"login_source"`
	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	SocialToken string `json:"social_token,omitempty"`
}

type loginResponse struct {
	User  UserInfo `json:"user"`
	Token string   `json:"token"`
}

func (s *UserService) Login(w http.ResponseWriter, r *http.Request) {
	var params loginRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var user schema.User
	var err error

	switch params.LoginSource {
	case schema.LoginSourceEmail, "":
		user, err = s.loginWithEmail(params.Email, params.Password)
	case schema.LoginSourceGoogle:
		user, err = s.loginWithProvider(r, s.google, schema.LoginSourceGoogle, params.SocialToken)
	case schema.LoginSourceApple:
		user, err = s.loginWithProvider(r, s.apple, schema.LoginSourceApple, params.SocialToken)
	default:
		err = CodedError(fmt.Errorf("unknown login source '%v'", params.LoginSource), http.StatusUnprocessableEntity)
	}

	if err != nil {
		utils.WriteErrorResponse(w, GetResponseCode(err), fmt.Sprintf("login failed: %v", err))
		return
	}

	token, err := s.jwtManager.CreateUserJwt(user.Id, user.Email)
	if err != nil {
		utils.WriteErrorResponse(w, http.StatusInternalServerError, "error generating access token")
		return
	}

	utils.WriteJsonResponse(w, "login successful", loginResponse{User: convertToUserInfo(&user), Token: token})
}

// loginWithEmail is the local password path. It never creates or links
// accounts: an unknown email and a bad password are distinct failures so the
// client can render different flows, but both fail closed.
func (s *UserService) loginWithEmail(email, password string) (schema.User, error) {
	user, err := schema.GetUserByEmail(email, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return schema.User{}, CodedError(err, http.StatusNotFound)
		}
		return schema.User{}, CodedError(err, http.StatusInternalServerError)
	}

	if len(user.Password) == 0 {
		// Federated-only account; there is no password to compare.
		return schema.User{}, CodedError(ErrInvalidCredentials, http.StatusUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword(user.Password, []byte(password)); err != nil {
		return schema.User{}, CodedError(ErrInvalidCredentials, http.StatusUnauthorized)
	}

	user.Password = nil
	return user, nil
}

func (s *UserService) loginWithProvider(r *http.Request, verifier auth.TokenVerifier, source, socialToken string) (schema.User, error) {
	claims, err := verifier.Verify(r.Context(), socialToken)
	if err != nil {
		slog.Error("provider token verification failed", "source", source, "error", err)
		return schema.User{}, CodedError(auth.ErrInvalidProviderToken, http.StatusUnauthorized)
	}

	user, mutation, err := s.resolver.Resolve(source, claims)
	if err != nil {
		slog.Error("error reconciling federated login", "source", source, "error", err)
		return schema.User{}, CodedError(errors.New("error resolving account"), http.StatusInternalServerError)
	}

	slog.Info("federated login resolved", "source", source, "user_id", user.Id, "mutation", mutation)
	return user, nil
}

type userListResponse struct {
	List     []UserInfo   `json:"list"`
	Metadata listMetadata `json:"metadata"`
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	page := utils.QueryInt(r, "page", defaultPage)
	limit := utils.QueryInt(r, "limit", defaultLimit)

	var totalCount int64
	result := s.db.Model(&schema.User{}).Where("status <> ?", schema.StatusDeleted).Count(&totalCount)
	if result.Error != nil {
		slog.Error("sql error counting users", "error", result.Error)
		utils.WriteErrorResponse(w, http.StatusInternalServerError, "error listing users")
		return
	}

	var users []schema.User
	result = s.db.Where("status <> ?", schema.StatusDeleted).
		Order("created_at").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		utils.WriteErrorResponse(w, http.StatusInternalServerError, "error listing users")
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, convertToUserInfo(&u))
	}

	res := userListResponse{
		List: infos,
		Metadata: listMetadata{
			TotalCount: totalCount,
			TotalPages: int64(math.Ceil(float64(totalCount) / float64(limit))),
		},
	}
	utils.WriteJsonResponse(w, "users fetched", res)
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		utils.WriteErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := schema.GetUser(userId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			utils.WriteErrorResponse(w, http.StatusNotFound, err.Error())
			return
		}
		utils.WriteErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("error getting user: %v", err))
		return
	}

	utils.WriteJsonResponse(w, "user fetched", convertToUserInfo(&user))
}

func (s *UserService) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJsonResponse(w, "user fetched", convertToUserInfo(&user))
}

type updateUserRequest struct {
	FirstName *string `json:"firstname,omitempty"`
	LastName  *string `json:"lastname,omitempty"`
	Password  *string `json:"password,omitempty"`
}

func (s *UserService) Update(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		utils.WriteErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var params updateUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var updated schema.User
	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if params.FirstName != nil {
			user.FirstName = strings.TrimSpace(*params.FirstName)
		}
		if params.LastName != nil {
			user.LastName = strings.TrimSpace(*params.LastName)
		}
		if params.Password != nil && *params.Password != "" {
			hashedPwd, err := bcrypt.GenerateFromPassword([]byte(*params.Password), bcryptCost)
			if err != nil {
				slog.Error("error encrypting password", "error", err)
				return CodedError(errors.New("error encrypting password"), http.StatusInternalServerError)
			}
			user.Password = hashedPwd
		}

		result := txn.Save(&user)
		if result.Error != nil {
			slog.Error("sql error updating user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		updated = user
		return nil
	})
	if err != nil {
		utils.WriteErrorResponse(w, GetResponseCode(err), fmt.Sprintf("error updating user: %v", err))
		return
	}

	utils.WriteJsonResponse(w, "user updated", convertToUserInfo(&updated))
}

// Delete flips the account's status to deleted. The row is retained; all
// lookups exclude it from then on.
func (s *UserService) Delete(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		utils.WriteErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var deleted schema.User
	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		user.Status = schema.StatusDeleted
		result := txn.Save(&user)
		if result.Error != nil {
			slog.Error("sql error deleting user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		deleted = user
		return nil
	})
	if err != nil {
		utils.WriteErrorResponse(w, GetResponseCode(err), fmt.Sprintf("error deleting user %v: %v", userId, err))
		return
	}

	utils.WriteJsonResponse(w, "user deleted", convertToUserInfo(&deleted))
}
