package identity

import (
	"net/http"

	"filmware-sync/auth"
	"filmware-sync/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler handles HTTP requests for accounts and projects
type Handler struct {
	service Service
	auth    *auth.Auth
}

// NewHandler creates a new identity handler
func NewHandler(service Service, a *auth.Auth) *Handler {
	return &Handler{service: service, auth: a}
}

// FormLogin represents login form data
type FormLogin struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// FormRegister represents registration form data
type FormRegister struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// FormCreateProject represents project creation form data
type FormCreateProject struct {
	Name string `json:"name" binding:"required"`
}

// FormGrantPermission represents a permission change request
type FormGrantPermission struct {
	User    string `json:"user" binding:"required,uuid"`
	Project string `json:"project" binding:"required,uuid"`
	Kind    string `json:"kind" binding:"required,oneof=member admin"`
	Enable  *bool  `json:"enable" binding:"required"`
}

// Register handles account registration
func (h *Handler) Register(c *gin.Context) {
	var form FormRegister
	if err := c.ShouldBindJSON(&form); err != nil {
		errors.HandleError(c, errors.ErrInvalidInput(err))
		return
	}

	account, err := h.service.Register(c.Request.Context(), form.Name, form.Email, form.Password)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"account": account.Account.String(),
		"user":    account.User.String(),
		"name":    account.Name,
		"email":   account.Email,
	})
}

// Login authenticates an account and returns a bearer token
func (h *Handler) Login(c *gin.Context) {
	var form FormLogin
	if err := c.ShouldBindJSON(&form); err != nil {
		errors.HandleError(c, errors.ErrInvalidInput(err))
		return
	}

	account, err := h.service.VerifyPassword(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		if errors.IsUserError(err) {
			errors.HandleError(c, errors.ErrUnauthorized(err))
			return
		}
		errors.HandleError(c, err)
		return
	}

	accessToken, err := h.auth.GenerateJWT(account.Account)
	if err != nil {
		errors.HandleError(c, errors.ErrInternalServer(err))
		return
	}
	if err := h.auth.StoreToken(c.Request.Context(), accessToken); err != nil {
		errors.HandleError(c, errors.ErrInternalServer(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"account":      account.Account.String(),
		"user":         account.User.String(),
		"name":         account.Name,
	})
}

// Logout revokes the caller's bearer token and kills the account's live
// websocket sessions, so open connections reboot instead of outliving the
// login.
func (h *Handler) Logout(c *gin.Context) {
	if account, ok := accountFromContext(c); ok {
		if err := h.service.InvalidateAccountSessions(c.Request.Context(), account); err != nil {
			errors.HandleError(c, err)
			return
		}
	}

	token := c.GetString("jwt_token")
	if token != "" {
		if err := h.auth.RevokeToken(c.Request.Context(), token); err != nil {
			log.Warn().Err(err).Msg("token revoke failed")
		}
	}
	c.Status(http.StatusNoContent)
}

// GetProfile returns the caller's authorization snapshot
func (h *Handler) GetProfile(c *gin.Context) {
	account, ok := accountFromContext(c)
	if !ok {
		errors.HandleError(c, errors.ErrUnauthorized(nil))
		return
	}

	snapshot, err := h.service.Snapshot(c.Request.Context(), account)
	if err != nil {
		if errors.IsUserError(err) {
			errors.HandleError(c, errors.ErrUnauthorized(err))
			return
		}
		errors.HandleError(c, err)
		return
	}

	users := make([]string, 0, len(snapshot.Users))
	for _, u := range snapshot.Users {
		users = append(users, u.String())
	}
	projects := make([]string, 0, len(snapshot.Projects))
	for _, p := range snapshot.Projects {
		projects = append(projects, p.String())
	}

	c.JSON(http.StatusOK, gin.H{
		"user":     snapshot.User.String(),
		"users":    users,
		"projects": projects,
	})
}

// CreateProject handles project creation
func (h *Handler) CreateProject(c *gin.Context) {
	account, ok := accountFromContext(c)
	if !ok {
		errors.HandleError(c, errors.ErrUnauthorized(nil))
		return
	}

	var form FormCreateProject
	if err := c.ShouldBindJSON(&form); err != nil {
		errors.HandleError(c, errors.ErrInvalidInput(err))
		return
	}

	snapshot, err := h.service.Snapshot(c.Request.Context(), account)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	project, err := h.service.CreateProject(c.Request.Context(), snapshot.User, form.Name)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"project": project.Project.String(),
		"name":    project.Name,
	})
}

// GrantPermission appends an enable/disable row to the permission log
func (h *Handler) GrantPermission(c *gin.Context) {
	account, ok := accountFromContext(c)
	if !ok {
		errors.HandleError(c, errors.ErrUnauthorized(nil))
		return
	}

	var form FormGrantPermission
	if err := c.ShouldBindJSON(&form); err != nil {
		errors.HandleError(c, errors.ErrInvalidInput(err))
		return
	}
	targetUser := uuid.MustParse(form.User)
	project := uuid.MustParse(form.Project)

	snapshot, err := h.service.Snapshot(c.Request.Context(), account)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	// only members of a project may change its permissions
	member := false
	for _, p := range snapshot.Projects {
		if p == project {
			member = true
			break
		}
	}
	if !member {
		errors.HandleError(c, errors.ErrUnauthorized(nil).WithMessage("not a member of this project"))
		return
	}

	perm, err := h.service.GrantPermission(c.Request.Context(), snapshot.User, targetUser, project, form.Kind, *form.Enable)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"version": perm.Version.String()})
}

func accountFromContext(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get("account_id")
	if !exists {
		return uuid.Nil, false
	}
	account, ok := v.(uuid.UUID)
	return account, ok
}
