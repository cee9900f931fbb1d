// Package directory resolves user ids to the contact details needed to
// notify them. Professionals are users too.
package directory

import (
	"context"
	"fmt"

	"github.com/shaharia-lab/bookwell/internal/storage"
	"github.com/shaharia-lab/bookwell/internal/templates"
)

// Legacy field aliases, in resolution order.
var (
	emailFields    = []string{"email", "emailAddress", "contactEmail"}
	nameFields     = []string{"displayName", "name", "fullName", "firstName"}
	languageFields = []string{"preferredLanguage", "language", "lang", "locale"}
)

// Profile is the read-only projection of a user document.
type Profile struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	DisplayName       string `json:"displayName"`
	PreferredLanguage string `json:"preferredLanguage"`
}

// Resolver looks up user profiles.
type Resolver interface {
	// Resolve returns the profile, or nil if the user does not exist.
	Resolve(ctx context.Context, userID string) (*Profile, error)
}

// Directory resolves profiles from the users collection.
type Directory struct {
	store storage.Store
}

// New creates a Directory.
func New(store storage.Store) *Directory {
	return &Directory{store: store}
}

// Resolve returns the profile for userID, or nil if there is no such user.
func (d *Directory) Resolve(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, nil
	}
	doc, err := d.store.Get(ctx, storage.CollectionUsers, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving user %s: %w", userID, err)
	}
	if doc == nil {
		return nil, nil
	}
	return FromDocument(*doc)
}

// FromDocument builds a Profile from a user document.
func FromDocument(doc storage.Document) (*Profile, error) {
	f, err := doc.Fields()
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:                doc.ID,
		Email:             f.String(emailFields...),
		DisplayName:       f.String(nameFields...),
		PreferredLanguage: templates.NormalizeLanguage(f.String(languageFields...)),
	}, nil
}
