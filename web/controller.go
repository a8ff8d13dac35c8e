// Package web exposes the account lifecycle over HTTP through go-router
// on a fiber server.
package web

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-accounts"
)

// Routes holds the paths the controller is mounted on
type Routes struct {
	Register           string
	Activate           string
	ResetInit          string
	ResetFinish        string
	ResendVerification string
	Account            string
	ChangePassword     string
	Tokens             string
	Trial              string
	Users              string
	Metrics            string
}

// DefaultRoutes mirrors the public account API paths
func DefaultRoutes() *Routes {
	return &Routes{
		Register:           "/api/register",
		Activate:           "/api/activate",
		ResetInit:          "/api/account/reset-password/init",
		ResetFinish:        "/api/account/reset-password/finish",
		ResendVerification: "/api/account/resend-verification",
		Account:            "/api/account",
		ChangePassword:     "/api/account/change-password",
		Tokens:             "/api/account/tokens",
		Trial:              "/api/trial",
		Users:              "/api/users",
		Metrics:            "/metrics",
	}
}

// Controller binds lifecycle operations to HTTP handlers
type Controller struct {
	Lifecycle *accounts.Lifecycle
	Logger    accounts.Logger
	Routes    *Routes
	Gatherer  prometheus.Gatherer
}

type ControllerOption func(*Controller) *Controller

// WithLogger sets the controller logger
func WithLogger(logger accounts.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithRoutes overrides the default paths
func WithRoutes(routes *Routes) ControllerOption {
	return func(c *Controller) *Controller {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// WithGatherer serves the metrics of g on Routes.Metrics
func WithGatherer(g prometheus.Gatherer) ControllerOption {
	return func(c *Controller) *Controller {
		c.Gatherer = g
		return c
	}
}

// NewController panics without a lifecycle
func NewController(l *accounts.Lifecycle, opts ...ControllerOption) *Controller {
	c := &Controller{
		Lifecycle: l,
		Logger:    accounts.NewSlogLogger(nil),
		Routes:    DefaultRoutes(),
	}
	for _, opt := range opts {
		c = opt(c)
	}
	if c.Lifecycle == nil {
		panic("Missing Lifecycle in accounts controller...")
	}
	return c
}

// NewApp returns a fiber app served through the router adapter with the
// controller routes and JSON error handling
func NewApp(c *Controller, cfg ...fiber.Config) *fiber.App {
	config := fiber.Config{}
	if len(cfg) > 0 {
		config = cfg[0]
	}
	config.ErrorHandler = c.HandleError

	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = fiber.New(config)
		return app
	})
	RegisterRoutes(srv.Router(), c)

	if c.Gatherer != nil {
		app.Get(c.Routes.Metrics, adaptor.HTTPHandler(promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{})))
	}
	return app
}

// RegisterRoutes mounts every controller route on app
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	r := c.Routes
	authenticated := c.Authenticate()
	admin := c.Authenticate(accounts.AuthorityAdmin)

	app.Post(r.Register, c.RegisterAccount).SetName("account.register")
	app.Get(r.Activate, c.ActivateAccount).SetName("account.activate")
	app.Post(r.ResetInit, c.PasswordResetInit).SetName("account.reset-init")
	app.Post(r.ResetFinish, c.PasswordResetFinish).SetName("account.reset-finish")
	app.Post(r.ResendVerification, c.ResendVerification).SetName("account.resend-verification")

	app.Get(r.Account, c.CurrentAccount, authenticated).SetName("account.get")
	app.Post(r.Account, c.SaveAccount, authenticated).SetName("account.save")
	app.Post(r.ChangePassword, c.ChangePassword, authenticated).SetName("account.change-password")
	app.Get(r.Tokens, c.ListTokens, authenticated).SetName("tokens.list")
	app.Post(r.Tokens, c.CreateToken, authenticated).SetName("tokens.create")
	app.Delete(r.Tokens+"/:token", c.ExpireToken, authenticated).SetName("tokens.expire")

	app.Get(r.Trial, c.TrialInfo).SetName("trial.get")
	app.Post(r.Trial+"/finish", c.FinishTrial).SetName("trial.finish")

	app.Post(r.Users, c.CreateUser, admin).SetName("users.create")
	app.Put(r.Users, c.UpdateUser, admin).SetName("users.update")
	app.Put(r.Users+"/approve", c.ApproveUser, admin).SetName("users.approve")
	app.Get(r.Users+"/without-tokens", c.UsersWithoutTokens, admin).SetName("users.without-tokens")
	app.Get(r.Users+"/:id", c.GetUser, admin).SetName("users.get")
	app.Delete(r.Users+"/:login", c.DeleteUser, admin).SetName("users.delete")
	app.Post(r.Users+"/:login/trial", c.InitiateTrial, admin).SetName("users.trial")
	app.Post(r.Users+"/:login/convert-trial", c.ConvertTrial, admin).SetName("users.convert-trial")
	app.Post(r.Users+"/:login/activation-key", c.RegenerateActivationKey, admin).SetName("users.activation-key")
	app.Post(r.Users+"/:email/reset-key", c.GenerateResetKey, admin).SetName("users.reset-key")
}

// ActivationResponse is returned by the activation route
type ActivationResponse struct {
	User     *accounts.User    `json:"user"`
	Approved bool              `json:"approved"`
	Decision accounts.Decision `json:"decision,omitempty"`
}

// UserResponse pairs a user with its details
type UserResponse struct {
	User    *accounts.User        `json:"user"`
	Details *accounts.UserDetails `json:"details,omitempty"`
}

// TrialInfoResponse describes a pending or completed trial
type TrialInfoResponse struct {
	Login          string     `json:"login"`
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name,omitempty"`
	LastName       string     `json:"last_name,omitempty"`
	Company        string     `json:"company,omitempty"`
	InitiationDate time.Time  `json:"initiation_date"`
	ActivationDate *time.Time `json:"activation_date,omitempty"`
}

func (c *Controller) RegisterAccount(ctx router.Context) error {
	payload := new(accounts.RegisterUserMessage)
	if err := ctx.Bind(payload); err != nil {
		return errParseBody
	}

	user, err := c.Lifecycle.Register(ctx.Context(), *payload)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, user)
}

func (c *Controller) ActivateAccount(ctx router.Context) error {
	key := ctx.Query("key", "")
	if key == "" {
		return badRequest("Missing activation key")
	}

	result, err := c.Lifecycle.Activate(ctx.Context(), key)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ActivationResponse{
		User:     result.User,
		Approved: result.Approved,
		Decision: result.Decision,
	})
}

func (c *Controller) PasswordResetInit(ctx router.Context) error {
	payload := new(PasswordResetInitPayload)
	if err := bindAndValidate(ctx, payload); err != nil {
		return err
	}

	// unknown and unactivated emails get the same answer as known ones
	if _, err := c.Lifecycle.RequestPasswordReset(ctx.Context(), payload.Email); err != nil && !accounts.IsNotFound(err) {
		return err
	}
	return ctx.Status(http.StatusNoContent).SendString("")
}

func (c *Controller) PasswordResetFinish(ctx router.Context) error {
	payload := new(PasswordResetFinishPayload)
	if err := bindAndValidate(ctx, payload); err != nil {
		return err
	}

	if _, err := c.Lifecycle.CompletePasswordReset(ctx.Context(), payload.NewPassword, payload.Key); err != nil {
		return err
	}
	return ctx.Status(http.StatusNoContent).SendString("")
}

func (c *Controller) ResendVerification(ctx router.Context) error {
	payload := new(CredentialsPayload)
	if err := bindAndValidate(ctx, payload); err != nil {
		return err
	}

	if err := c.Lifecycle.ResendVerification(ctx.Context(), payload.Login, payload.Password); err != nil {
		return err
	}
	return ctx.Status(http.StatusNoContent).SendString("")
}

func (c *Controller) CurrentAccount(ctx router.Context) error {
	user := CurrentUser(ctx)
	found, details, err := c.Lifecycle.UserWithDetails(ctx.Context(), user.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, UserResponse{User: found, Details: details})
}

func (c *Controller) SaveAccount(ctx router.Context) error {
	payload := new(accounts.SaveAccountMessage)
	if err := ctx.Bind(payload); err != nil {
		return errParseBody
	}

	user, details, err := c.Lifecycle.SaveAccount(ctx.Context(), CurrentUser(ctx).Login, *payload)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, UserResponse{User: user, Details: details})
}

func (c *Controller) ChangePassword(ctx router.Context) error {
	payload := new(ChangePasswordPayload)
	if err := bindAndValidate(ctx, payload); err != nil {
		return err
	}

	user := CurrentUser(ctx)
	if err := c.Lifecycle.ChangePassword(ctx.Context(), user.Login, payload.CurrentPassword, payload.NewPassword); err != nil {
		return err
	}
	return ctx.Status(http.StatusNoContent).SendString("")
}

func (c *Controller) ListTokens(ctx router.Context) error {
	tokens, err := c.Lifecycle.Tokens().ListForUser(ctx.Context(), CurrentUser(ctx).Login)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tokens)
}

func (c *Controller) CreateToken(ctx router.Context) error {
	payload := new(CreateTokenPayload)
	if ctx.GetString(fiber.HeaderContentLength, "0") != "0" {
		if err := ctx.Bind(payload); err != nil {
			return errParseBody
		}
	}

	token, err := c.Lifecycle.Tokens().CreateForCaller(ctx.Context(), CurrentUser(ctx).Login, payload.Expiration, payload.Renewable)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, token)
}

func (c *Controller) ExpireToken(ctx router.Context) error {
	value, err := uuid.Parse(ctx.Param("token"))
	if err != nil {
		return badRequest("Malformed token")
	}

	token, err := c.Lifecycle.Tokens().Expire(ctx.Context(), CurrentUser(ctx).Login, value)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, token)
}

// InitiateTrial starts a trial for the login in the path. The key only
// reaches the user through the trial activation notice.
func (c *Controller) InitiateTrial(ctx router.Context) error {
	user, details, err := c.Lifecycle.InitiateTrial(ctx.Context(), ctx.Param("login"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusAccepted, UserResponse{User: user, Details: details})
}

func (c *Controller) TrialInfo(ctx router.Context) error {
	key := ctx.Query("key", "")
	if key == "" {
		return badRequest("Missing trial key")
	}

	user, details, err := c.Lifecycle.TrialInfo(ctx.Context(), key)
	if err != nil {
		return err
	}

	resp := TrialInfoResponse{
		Login:     user.Login,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Company:   details.Company,
	}
	if details.TrialAccount != nil {
		resp.InitiationDate = details.TrialAccount.Activation.InitiationDate
		resp.ActivationDate = details.TrialAccount.Activation.ActivationDate
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (c *Controller) FinishTrial(ctx router.Context) error {
	payload := new(TrialFinishPayload)
	if err := bindAndValidate(ctx, payload); err != nil {
		return err
	}

	user, err := c.Lifecycle.FinishTrial(ctx.Context(), payload.Key)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, user)
}

func (c *Controller) CreateUser(ctx router.Context) error {
	payload := new(accounts.CreateUserMessage)
	if err := ctx.Bind(payload); err != nil {
		return errParseBody
	}

	user, err := c.Lifecycle.CreateUser(ctx.Context(), *payload)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, user)
}

func (c *Controller) UpdateUser(ctx router.Context) error {
	payload := new(accounts.UpdateUserMessage)
	if err := ctx.Bind(payload); err != nil {
		return errParseBody
	}

	user, details, err := c.Lifecycle.UpdateUser(ctx.Context(), *payload)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, UserResponse{User: user, Details: details})
}

func (c *Controller) ApproveUser(ctx router.Context) error {
	payload := new(accounts.UpdateUserMessage)
	if err := ctx.Bind(payload); err != nil {
		return errParseBody
	}

	user, details, err := c.Lifecycle.ApproveUser(ctx.Context(), *payload)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, UserResponse{User: user, Details: details})
}

func (c *Controller) GetUser(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return badRequest("Malformed user id")
	}

	user, details, err := c.Lifecycle.UserWithDetails(ctx.Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, UserResponse{User: user, Details: details})
}

func (c *Controller) UsersWithoutTokens(ctx router.Context) error {
	users, err := c.Lifecycle.ActivatedUsersWithoutTokens(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, users)
}

func (c *Controller) DeleteUser(ctx router.Context) error {
	if err := c.Lifecycle.DeleteUser(ctx.Context(), ctx.Param("login")); err != nil {
		return err
	}
	return ctx.Status(http.StatusNoContent).SendString("")
}

func (c *Controller) ConvertTrial(ctx router.Context) error {
	user, err := c.Lifecycle.ConvertTrialToRegular(ctx.Context(), ctx.Param("login"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, user)
}

func (c *Controller) RegenerateActivationKey(ctx router.Context) error {
	user, err := c.Lifecycle.RegenerateActivationKey(ctx.Context(), ctx.Param("login"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, user)
}

func (c *Controller) GenerateResetKey(ctx router.Context) error {
	user, err := c.Lifecycle.GenerateResetKey(ctx.Context(), ctx.Param("email"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, map[string]string{
		"login":     user.Login,
		"reset_key": *user.ResetKey,
	})
}
