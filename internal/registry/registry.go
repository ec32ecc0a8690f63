// Package registry declares the company-registry lookup contract.
package registry

import (
	"context"
	"errors"
	"net/url"
)

// ErrNotFound means the registry answered and holds no such company.
var ErrNotFound = errors.New("company not found in registry")

// ErrInvalidID means the identifier cannot be sent to the registry.
var ErrInvalidID = errors.New("invalid company identifier")

// Company is the contact metadata returned by a lookup.
type Company struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	TaxID   string `json:"tax_id"`
}

// Lookup resolves one identifier. Errors other than ErrNotFound and
// ErrInvalidID mean the answer could not be determined.
type Lookup interface {
	Company(ctx context.Context, id string) (Company, error)
}

// SearchURL links to the public trade-register search for id, useful when the
// lookup could not answer.
func SearchURL(id string) string {
	return "https://www.recom.ro/index.asp?val=" + url.QueryEscape(id)
}
