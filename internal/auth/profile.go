// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
)

// MaxProfileImageBytes bounds a profile image upload.
const MaxProfileImageBytes = 5 << 20

// ImageUpload is a profile image sent by the account owner.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// DetailsUpdate lists the profile fields to change. Nil fields are left as is.
type DetailsUpdate struct {
	Username *string
	Image    *ImageUpload
}

// ProfileService lets an authenticated account manage itself. The email
// argument is always the session subject.
type ProfileService struct {
	flowBase
	remover  accountRemover
	accounts AccountRepository
	hasher   PasswordHasher
	images   ImageStore
}

// NewProfileService creates a new ProfileService. Images may be nil, in
// which case image uploads are rejected.
func NewProfileService(c Collaborators, opts ...Option) (*ProfileService, error) {
	const name = "profile"
	if err := firstErr(
		requireDep(c.Accounts != nil, name, "account repository"),
		requireDep(c.OTPs != nil, name, "otp store"),
		requireDep(c.Resets != nil, name, "reset store"),
		requireDep(c.Hasher != nil, name, "password hasher"),
	); err != nil {
		return nil, err
	}
	return &ProfileService{
		flowBase: newFlowBase(opts),
		remover:  newAccountRemover(c),
		accounts: c.Accounts,
		hasher:   c.Hasher,
		images:   c.Images,
	}, nil
}

// Details returns the account's view.
func (s *ProfileService) Details(ctx context.Context, email string) (view AccountView, err error) {
	ctx, done := s.begin(ctx, "profile.details")
	defer func() { done(err) }()

	account, err := loadAccount(ctx, s.accounts, email)
	if err != nil {
		return AccountView{}, err
	}
	return account.View(), nil
}

// UpdateDetails changes the username and/or profile image.
func (s *ProfileService) UpdateDetails(ctx context.Context, email string, upd DetailsUpdate) (msg string, err error) {
	ctx, done := s.begin(ctx, "profile.update")
	defer func() { done(err) }()

	account, err := loadAccount(ctx, s.accounts, email)
	if err != nil {
		return "", err
	}

	changed := false
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if username != "" && username != account.Username {
			if err := ValidateUsername(username); err != nil {
				return "", err
			}
			account.Username = username
			changed = true
		}
	}

	var uploaded, replaced string
	if upd.Image != nil && len(upd.Image.Data) > 0 {
		url, err := s.storeImage(ctx, account, upd.Image)
		if err != nil {
			return "", err
		}
		if account.ProfileImage != nil {
			replaced = *account.ProfileImage
		}
		uploaded = url
		account.ProfileImage = &url
		changed = true
	}

	if !changed {
		return "No changes made to user details", nil
	}

	account.UpdatedAt = s.now()
	if err := s.accounts.Update(ctx, account); err != nil {
		if uploaded != "" {
			s.deleteImage(ctx, uploaded)
		}
		return "", internalError("AUTH_PROFILE_FAILED", "Update", err)
	}
	if replaced != "" {
		s.deleteImage(ctx, replaced)
	}

	return "User details updated successfully", nil
}

// UpdatePassword sets a new password for the account.
func (s *ProfileService) UpdatePassword(ctx context.Context, email, newPassword string) (msg string, err error) {
	ctx, done := s.begin(ctx, "profile.password")
	defer func() { done(err) }()

	if err := ValidatePassword(newPassword); err != nil {
		return "", err
	}

	account, err := loadAccount(ctx, s.accounts, email)
	if err != nil {
		return "", err
	}

	same, err := s.hasher.Verify(newPassword, account.PasswordHash)
	if err != nil {
		return "", internalError("AUTH_PROFILE_FAILED", "Verify", err)
	}
	if same {
		return "", ErrPasswordReuse
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", internalError("AUTH_PROFILE_FAILED", "Hash", err)
	}
	account.PasswordHash = hash
	account.UpdatedAt = s.now()
	if err := s.accounts.Update(ctx, account); err != nil {
		return "", internalError("AUTH_PROFILE_FAILED", "Update", err)
	}

	return "Password updated successfully", nil
}

// DeleteAccount removes the account and its outstanding tokens.
func (s *ProfileService) DeleteAccount(ctx context.Context, email string) (msg string, err error) {
	ctx, done := s.begin(ctx, "profile.delete")
	defer func() { done(err) }()

	if err := s.remover.remove(ctx, s.logger, email); err != nil {
		return "", err
	}
	return "Account deleted successfully", nil
}

func (s *ProfileService) storeImage(ctx context.Context, account *Account, img *ImageUpload) (string, error) {
	if s.images == nil {
		return "", validationError("AUTH_IMAGES_DISABLED", "Profile image uploads are not available")
	}
	if !strings.HasPrefix(img.ContentType, "image/") {
		return "", validationError("AUTH_IMAGE_TYPE", "Only image files are allowed")
	}
	if len(img.Data) > MaxProfileImageBytes {
		return "", validationError("AUTH_IMAGE_TOO_LARGE", "Image is too large")
	}

	key := fmt.Sprintf("profiles/%d/%s%s", account.ID, ulid.Make(), strings.ToLower(path.Ext(img.Filename)))
	url, err := s.images.Put(ctx, key, img.ContentType, img.Data)
	if err != nil {
		return "", internalError("AUTH_PROFILE_FAILED", "PutImage", err)
	}
	return url, nil
}

func (s *ProfileService) deleteImage(ctx context.Context, url string) {
	if err := s.images.Delete(ctx, url); err != nil {
		s.logger.WarnContext(ctx, "failed to delete profile image", "url", url, "error", err)
	}
}

// loadAccount finds an account by email, mapping absence to ErrAccountMissing.
func loadAccount(ctx context.Context, accounts AccountRepository, email string) (*Account, error) {
	account, err := accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAccountMissing
		}
		return nil, internalError("AUTH_ACCOUNT_LOOKUP_FAILED", "FindByEmail", err)
	}
	return account, nil
}

// accountRemover deletes an account together with its pending tokens.
type accountRemover struct {
	tx       Transactor
	accounts AccountRepository
	otps     *OTPStore
	resets   *ResetStore
	images   ImageStore
}

func newAccountRemover(c Collaborators) accountRemover {
	return accountRemover{
		tx:       c.transactor(),
		accounts: c.Accounts,
		otps:     c.OTPs,
		resets:   c.Resets,
		images:   c.Images,
	}
}

// remove deletes the account with email. The profile image is removed
// afterwards, best-effort.
func (r accountRemover) remove(ctx context.Context, logger *slog.Logger, email string) error {
	account, err := loadAccount(ctx, r.accounts, email)
	if err != nil {
		return err
	}

	err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := r.otps.Discard(ctx, account.Email); err != nil {
			return internalError("AUTH_DELETE_FAILED", "DiscardOTP", err)
		}
		if err := r.resets.Discard(ctx, account.ID); err != nil {
			return internalError("AUTH_DELETE_FAILED", "DiscardReset", err)
		}
		if err := r.accounts.Delete(ctx, account.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrAccountMissing
			}
			return internalError("AUTH_DELETE_FAILED", "Delete", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if account.ProfileImage != nil && r.images != nil {
		if err := r.images.Delete(ctx, *account.ProfileImage); err != nil {
			logger.WarnContext(ctx, "failed to delete profile image",
				"account_id", account.ID,
				"error", err)
		}
	}
	return nil
}
