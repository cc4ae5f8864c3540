// Package friendlyurl derives, validates and reserves the human-readable
// URLs published dashboards are served under.
package friendlyurl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"dashboards/internal/config"
	"dashboards/internal/domain"
	"dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
)

// Reserved are the RFC 3986 reserved characters a friendly URL may not contain.
const Reserved = "!#$&'()*+,/:;=?@[]"

const forbiddenURL = "admin"

// Generate derives a friendly URL from a dashboard name.
func Generate(name string) string {
	s := strings.ToLower(name)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(Reserved, r) {
			return -1
		}
		return r
	}, s)
	s = strings.Trim(s, "- \t\r\n")
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}

// Validate checks a supplied or generated friendly URL.
func Validate(url string) error {
	if url == "" {
		return &domain.FriendlyURLError{Reason: "friendly url cannot be empty"}
	}
	if strings.ContainsAny(url, Reserved) {
		return &domain.FriendlyURLError{URL: url, Reason: "contains reserved characters " + Reserved}
	}
	if strings.EqualFold(strings.TrimSpace(url), forbiddenURL) {
		return &domain.FriendlyURLError{URL: url, Reason: "is reserved"}
	}
	if utf8.RuneCountInString(url) > config.MaxFriendlyURLLength {
		return &domain.FriendlyURLError{URL: url, Reason: fmt.Sprintf("longer than %d characters", config.MaxFriendlyURLLength)}
	}
	return nil
}

// Allocator hands out friendly URLs, one family per slug.
type Allocator struct {
	repo   repositories.FriendlyURLRepository
	logger *slog.Logger
}

// NewAllocator creates a new friendly URL allocator
func NewAllocator(repo repositories.FriendlyURLRepository, logger *slog.Logger) *Allocator {
	return &Allocator{repo: repo, logger: logger}
}

// Resolve returns the URL d would be published under: requested when given,
// otherwise derived from d's name. A URL held by another family is rejected.
func (a *Allocator) Resolve(ctx context.Context, d *dashboard.Dashboard, requested *string) (string, error) {
	var candidate string
	if requested != nil {
		candidate = strings.TrimSpace(*requested)
	} else {
		candidate = Generate(d.Name)
	}
	if err := Validate(candidate); err != nil {
		return "", err
	}

	res, err := a.repo.Get(ctx, candidate)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return candidate, nil
	case err != nil:
		return "", err
	case res.FamilyID != d.FamilyID:
		return "", &domain.FriendlyURLError{URL: candidate, Reason: "already taken by another dashboard"}
	}
	return candidate, nil
}

// Reserve points slug at dashboardID for familyID. It returns the
// reservation it replaced, nil when the slug was free, so a caller can
// undo the move with Restore.
func (a *Allocator) Reserve(ctx context.Context, slug, familyID, dashboardID, updatedAt string) (*dashboard.FriendlyURLReservation, error) {
	prev, err := a.repo.Get(ctx, slug)
	if errors.Is(err, domain.ErrNotFound) {
		prev = nil
	} else if err != nil {
		return nil, err
	}

	err = a.repo.Reserve(ctx, &dashboard.FriendlyURLReservation{
		FriendlyURL: slug,
		FamilyID:    familyID,
		DashboardID: dashboardID,
		UpdatedAt:   updatedAt,
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("friendly url reserved", "friendly_url", slug, "family_id", familyID, "dashboard_id", dashboardID)
	return prev, nil
}

// Restore puts back the reservation Reserve replaced, or releases slug
// when prev is nil.
func (a *Allocator) Restore(ctx context.Context, slug, familyID string, prev *dashboard.FriendlyURLReservation) error {
	if prev == nil {
		return a.Release(ctx, slug, familyID)
	}
	return a.repo.Reserve(ctx, prev)
}

// Release frees slug if familyID holds it
func (a *Allocator) Release(ctx context.Context, slug, familyID string) error {
	if err := a.repo.Release(ctx, slug, familyID); err != nil {
		return err
	}
	a.logger.Debug("friendly url released", "friendly_url", slug, "family_id", familyID)
	return nil
}

// ReleaseOthers frees every slug familyID holds except keep and returns the
// released slugs. Failures are joined; the remaining slugs are still tried.
func (a *Allocator) ReleaseOthers(ctx context.Context, familyID, keep string) ([]string, error) {
	held, err := a.repo.ListFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	var released []string
	var errs []error
	for _, res := range held {
		if res.FriendlyURL == keep {
			continue
		}
		if err := a.Release(ctx, res.FriendlyURL, familyID); err != nil {
			errs = append(errs, err)
			continue
		}
		released = append(released, res.FriendlyURL)
	}
	return released, errors.Join(errs...)
}

// Lookup returns the reservation of slug
func (a *Allocator) Lookup(ctx context.Context, slug string) (*dashboard.FriendlyURLReservation, error) {
	return a.repo.Get(ctx, slug)
}
