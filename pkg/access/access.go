// Package access describes who is calling and which companies they may see.
package access

import (
	"context"
	"errors"

	"finchat/models"
)

// ErrForbidden is returned when a principal asks for a company outside its scope.
var ErrForbidden = errors.New("forbidden")

// Principal is the authenticated caller. CompanyIDs is resolved once per
// request; AllCompanies short-circuits it for admins.
type Principal struct {
	UserID       uint
	Username     string
	Role         string
	CompanyID    *uint
	CompanyIDs   []uint
	AllCompanies bool
}

func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

// CanRead reports whether the principal may read the company's data.
func (p Principal) CanRead(companyID uint) bool {
	if p.AllCompanies {
		return true
	}
	for _, id := range p.CompanyIDs {
		if id == companyID {
			return true
		}
	}
	return false
}

// Require returns ErrForbidden unless the principal may read companyID.
func (p Principal) Require(companyID uint) error {
	if !p.CanRead(companyID) {
		return ErrForbidden
	}
	return nil
}

type ctxKey struct{}

func NewContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
