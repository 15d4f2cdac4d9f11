package middleware

import (
	"fmt"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/labstack/echo/v4"
)

// rbacModel grants a role an HTTP method on a path pattern; ADMIN
// inherits every CUSTOMER permission.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// Policy is one role/path/method grant.  Path uses ":param" segments.
type Policy struct {
	Role, Path, Method string
}

// DefaultPolicies are the grants for the booking API.
var DefaultPolicies = []Policy{
	{RoleCustomer, "/v1/reservations", "GET"},
	{RoleCustomer, "/v1/reservations", "POST"},
	{RoleCustomer, "/v1/reservations/:id", "GET"},
	{RoleCustomer, "/v1/reservations/:id", "PATCH"},
	{RoleCustomer, "/v1/reservations/:id/cancel", "POST"},
	{RoleCustomer, "/v1/reservations/:id/payment/*", "*"},
	{RoleCustomer, "/v1/reservations/:id/payment", "GET"},
	{RoleAdmin, "/v1/admin/*", "*"},
}

// Authorizer enforces role policies with casbin.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

// NewAuthorizer loads policies into an in-memory enforcer.
func NewAuthorizer(policies []Policy) (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("casbin model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("casbin enforcer: %w", err)
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p.Role, p.Path, p.Method); err != nil {
			return nil, fmt.Errorf("add policy %v: %w", p, err)
		}
	}
	if _, err := e.AddGroupingPolicy(RoleAdmin, RoleCustomer); err != nil {
		return nil, fmt.Errorf("add role inheritance: %w", err)
	}
	return &Authorizer{enforcer: e}, nil
}

// Allowed reports whether role may call method on path.
func (a *Authorizer) Allowed(role, path, method string) (bool, error) {
	return a.enforcer.Enforce(role, path, method)
}

// Middleware rejects callers whose role has no grant for the request.  It
// must run after JWTAuth.
func (a *Authorizer) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := CurrentIdentity(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid token subject"})
			}
			allowed, err := a.Allowed(id.Role, c.Request().URL.Path, c.Request().Method)
			if err != nil {
				c.Logger().Errorf("authorize: enforce failed: %v", err)
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "authorization failed"})
			}
			if !allowed {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "role " + id.Role + " may not " + c.Request().Method + " " + c.Path()})
			}
			return next(c)
		}
	}
}
