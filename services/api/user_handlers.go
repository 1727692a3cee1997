package main

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cryptoperk/cryptoperk-backend/shared/apperrors"
	"github.com/cryptoperk/cryptoperk-backend/shared/billing"
	"github.com/cryptoperk/cryptoperk-backend/shared/middleware"
	"github.com/cryptoperk/cryptoperk-backend/shared/models"
	"github.com/cryptoperk/cryptoperk-backend/shared/providers"
	"github.com/cryptoperk/cryptoperk-backend/shared/utils"
)

// RegisterRequest is step one of registration. The payload is shared by
// employees and admins; which fields apply is decided by the invited user's
// persisted role, never by payload shape.
type RegisterRequest struct {
	Email           string `json:"email" binding:"required,email"`
	Firstname       string `json:"firstname" binding:"required"`
	Lastname        string `json:"lastname" binding:"required"`
	Username        string `json:"username" binding:"required"`
	RecoveringEmail string `json:"recoveringEmail"`
}

// CompleteRegistrationRequest is the final registration step. Company is
// only read for invited admins, who create their company here.
type CompleteRegistrationRequest struct {
	DateOfBirth string                `json:"dateOfBirth" binding:"required"`
	StartOfWork string                `json:"startOfWork" binding:"required"`
	Company     *CreateCompanyRequest `json:"company"`
}

// CreateCompanyRequest carries the minimal company shape created during
// admin registration.
type CreateCompanyRequest struct {
	IndustryID string `json:"industryId" binding:"required"`
	Size       int    `json:"size" binding:"required"`
}

// CreateSuperAdminRequest creates a platform operator account
type CreateSuperAdminRequest struct {
	Email     string      `json:"email" binding:"required,email"`
	Firstname string      `json:"firstname" binding:"required"`
	Lastname  string      `json:"lastname" binding:"required"`
	Role      models.Role `json:"role" binding:"required"`
}

// UpdateProfileRequest carries optional profile fields
type UpdateProfileRequest struct {
	Email       *string `json:"email"`
	Firstname   *string `json:"firstname"`
	Lastname    *string `json:"lastname"`
	Avatar      *string `json:"avatar"`
	Username    *string `json:"username"`
	StartOfWork *string `json:"startOfWork"`
	DateOfBirth *string `json:"dateOfBirth"`
	Phone       *string `json:"phone"`
}

// ChangeRoleRequest switches a company user between Employee and Admin
type ChangeRoleRequest struct {
	UserID uuid.UUID   `json:"userId" binding:"required"`
	Role   models.Role `json:"role" binding:"required"`
}

// SetPermissionsRequest replaces an admin's permission set
type SetPermissionsRequest struct {
	UserID      uuid.UUID `json:"userId" binding:"required"`
	Permissions []string  `json:"permissions" binding:"required"`
}

// AddCardRequest is shared by the user and company card routes
type AddCardRequest struct {
	Firstname string `json:"firstname" binding:"required"`
	Lastname  string `json:"lastname" binding:"required"`
	Number    string `json:"number" binding:"required"`
	Month     int64  `json:"month" binding:"required"`
	Year      int64  `json:"year" binding:"required"`
	CVC       string `json:"cvc" binding:"required"`
	IsDefault bool   `json:"isDefault"`
}

// UpdateCardRequest carries a new card expiry
type UpdateCardRequest struct {
	Month int64 `json:"month" binding:"required"`
	Year  int64 `json:"year" binding:"required"`
}

// CreateWalletRequest optionally seeds wallet generation with a mnemonic
type CreateWalletRequest struct {
	Mnemonic string `json:"mnemonic"`
}

// CompanySummary is the nested company shape in user projections
type CompanySummary struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Logo    *string   `json:"logo"`
	Size    int       `json:"size"`
	Website *string   `json:"website,omitempty"`
	Country *string   `json:"country,omitempty"`
}

// UserInfo is the SuperAdmin projection of a user
type UserInfo struct {
	ID                uuid.UUID         `json:"id"`
	Firstname         string            `json:"firstname"`
	Lastname          string            `json:"lastname"`
	Avatar            *string           `json:"avatar"`
	Email             string            `json:"email"`
	Role              models.Role       `json:"role"`
	Company           *CompanySummary   `json:"company"`
	Addresses         models.StringList `json:"addresses"`
	Country           *string           `json:"country,omitempty"`
	IsEnrolled        bool              `json:"is_enrolled"`
	IsFired           bool              `json:"is_fired"`
	CardExpiringDate  *string           `json:"card_expiring_date"`
}

// cardExpiry formats a user's or company's first stored card expiry as
// "month/year", nil when no card is stored.
func cardExpiry(payments PaymentsAPI, customerID *string, cards []models.Card) *string {
	if len(cards) == 0 || customerID == nil {
		return nil
	}
	method, err := payments.GetPaymentMethod(*customerID, cards[0].PaymentMethodID)
	if err != nil {
		logrus.WithError(err).Warn("Failed to fetch card expiry")
		return nil
	}
	expiry := formatExpiry(method.ExpMonth, method.ExpYear)
	return &expiry
}

func userProjection(user *models.User, payments PaymentsAPI, detailed bool) UserInfo {
	info := UserInfo{
		ID:         user.ID,
		Firstname:  user.Firstname,
		Lastname:   user.Lastname,
		Avatar:     user.Avatar,
		Email:      user.Email,
		Role:       user.Role,
		Addresses:  user.Addresses,
		Country:    user.Country,
		IsEnrolled: user.IsEnrolled,
		IsFired:    user.IsFired,
	}
	if user.Company != nil {
		summary := &CompanySummary{
			ID:   user.Company.ID,
			Name: user.Company.Name,
			Logo: user.Company.Logo,
			Size: user.Company.Size,
		}
		if detailed {
			summary.Website = user.Company.Website
			summary.Country = user.Company.Country
		}
		info.Company = summary
	}
	info.CardExpiringDate = cardExpiry(payments, user.CustomerID, user.Cards)
	return info
}

// handleGetProfile returns the caller's own user row
func handleGetProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Profile retrieved successfully", user)
	}
}

// handleGetUsers returns a paginated user listing for SuperAdmins
func handleGetUsers(db *gorm.DB, payments PaymentsAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, limit, err := utils.Paginate(c.Query("page"))
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var users []models.User
		if err := db.Preload("Company").Preload("Cards").
			Offset(offset).Limit(limit).Find(&users).Error; err != nil {
			utils.RespondError(c, err)
			return
		}

		infos := make([]UserInfo, 0, len(users))
		for i := range users {
			infos = append(infos, userProjection(&users[i], payments, false))
		}
		utils.OKResponse(c, "Users retrieved successfully", infos)
	}
}

// handleGetUser returns one user with company detail for SuperAdmins
func handleGetUser(db *gorm.DB, payments PaymentsAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		var user models.User
		err := db.Preload("Company").Preload("Cards").
			Where("id = ?", c.Param("id")).First(&user).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.RespondError(c, apperrors.NotFound("User not found"))
				return
			}
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "User retrieved successfully", userProjection(&user, payments, true))
	}
}

// handleRegister is step one of registration: the invitee claims their
// placeholder row by email and binds their issuer to it.
func handleRegister(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		issuer := c.GetString("issuer")

		var user models.User
		err := db.Where("email = ? AND role IN ?", req.Email,
			[]models.Role{models.RoleEmployee, models.RoleAdmin}).First(&user).Error
		if err != nil {
			utils.RespondError(c, apperrors.Validation("Something went wrong. Maybe you weren't invited"))
			return
		}
		if user.IsEnrolled {
			utils.RespondError(c, apperrors.Validation("User is already enrolled"))
			return
		}

		updates := map[string]interface{}{
			"issuer":    issuer,
			"firstname": req.Firstname,
			"lastname":  req.Lastname,
			"username":  req.Username,
		}
		// The persisted role decides the variant, not the payload shape.
		switch user.Role {
		case models.RoleEmployee:
			updates["recovering_email"] = req.RecoveringEmail
			updates["permissions"] = models.StringList{}
		case models.RoleAdmin:
			updates["permissions"] = models.AllAdminPermissions
		}

		if err := db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := db.First(&user, "id = ?", user.ID).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Registration step completed", user)
	}
}

// handleCompleteRegistration finishes registration with the work dates; an
// invited admin also creates their company here.
func handleCompleteRegistration(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CompleteRegistrationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		issuer := c.GetString("issuer")

		var user models.User
		err := db.Where("issuer = ? AND role IN ?", issuer,
			[]models.Role{models.RoleEmployee, models.RoleAdmin}).First(&user).Error
		if err != nil {
			utils.RespondError(c, apperrors.Validation("Something went wrong. Maybe you weren't invited"))
			return
		}
		if user.IsEnrolled {
			utils.RespondError(c, apperrors.Validation("User is already enrolled"))
			return
		}

		dateOfBirth, err := parseDate(req.DateOfBirth)
		if err != nil {
			utils.RespondError(c, apperrors.Validation("Invalid dateOfBirth"))
			return
		}
		startOfWork, err := parseDate(req.StartOfWork)
		if err != nil {
			utils.RespondError(c, apperrors.Validation("Invalid startOfWork"))
			return
		}

		updates := map[string]interface{}{
			"date_of_birth": dateOfBirth,
			"start_of_work": startOfWork,
			"is_enrolled":   true,
		}

		if user.Role == models.RoleAdmin {
			if req.Company == nil {
				utils.RespondError(c, apperrors.Validation("Company info is required"))
				return
			}
			industryID, err := uuid.Parse(req.Company.IndustryID)
			if err != nil {
				utils.RespondError(c, apperrors.Validation("Invalid industryId"))
				return
			}
			company := models.Company{IndustryID: &industryID, Size: req.Company.Size}
			if err := db.Create(&company).Error; err != nil {
				utils.RespondError(c, err)
				return
			}
			updates["company_id"] = company.ID
		}

		if err := db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := db.First(&user, "id = ?", user.ID).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Registration completed", user)
	}
}

// handleCreateSuperAdmin creates a platform operator bound to the caller's
// issuer. SuperAdmins have no company and are enrolled immediately.
func handleCreateSuperAdmin(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSuperAdminRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		if req.Role != models.RoleSuperAdmin {
			utils.RespondError(c, apperrors.Validation("Role must be SuperAdmin"))
			return
		}
		issuer := c.GetString("issuer")

		user := models.User{
			Issuer:     &issuer,
			Email:      req.Email,
			Firstname:  req.Firstname,
			Lastname:   req.Lastname,
			Role:       models.RoleSuperAdmin,
			IsEnrolled: true,
		}
		if err := db.Create(&user).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "SuperAdmin created successfully", user)
	}
}

// handleUpdateProfile updates the caller's own profile fields
func handleUpdateProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		issuer := c.GetString("issuer")

		updates := map[string]interface{}{}
		if req.Email != nil {
			updates["email"] = *req.Email
		}
		if req.Firstname != nil {
			updates["firstname"] = *req.Firstname
		}
		if req.Lastname != nil {
			updates["lastname"] = *req.Lastname
		}
		if req.Avatar != nil {
			updates["avatar"] = *req.Avatar
		}
		if req.Username != nil {
			updates["username"] = *req.Username
		}
		if req.Phone != nil {
			updates["phone"] = *req.Phone
		}
		if req.StartOfWork != nil {
			startOfWork, err := parseDate(*req.StartOfWork)
			if err != nil {
				utils.RespondError(c, apperrors.Validation("Invalid startOfWork"))
				return
			}
			updates["start_of_work"] = startOfWork
		}
		if req.DateOfBirth != nil {
			dateOfBirth, err := parseDate(*req.DateOfBirth)
			if err != nil {
				utils.RespondError(c, apperrors.Validation("Invalid dateOfBirth"))
				return
			}
			updates["date_of_birth"] = dateOfBirth
		}

		if len(updates) > 0 {
			if err := db.Model(&models.User{}).Where("issuer = ?", issuer).Updates(updates).Error; err != nil {
				utils.RespondError(c, err)
				return
			}
		}
		utils.OKResponse(c, "User info has been updated", nil)
	}
}

// handleChangeRole switches a company user between Employee and Admin. The
// acting admin needs the SetPermissionsForOthers permission; nobody can be
// promoted to or demoted from SuperAdmin.
func handleChangeRole(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChangeRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		if req.Role == models.RoleSuperAdmin {
			utils.RespondError(c, apperrors.Validation("Can't change user role to super admin"))
			return
		}

		admin, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if !admin.HasPermission(models.PermissionSetPermissionsForOthers) {
			utils.RespondError(c, apperrors.Validation("Admin not found or doesn't have enough permissions"))
			return
		}

		var target models.User
		err = db.Where("id = ? AND is_fired = ? AND is_enrolled = ?", req.UserID, false, true).
			First(&target).Error
		if err != nil {
			utils.RespondError(c, apperrors.Validation("User not found"))
			return
		}
		if target.Role == models.RoleSuperAdmin {
			utils.RespondError(c, apperrors.Validation("Can't change this user's role"))
			return
		}

		permissions := models.StringList{}
		if req.Role == models.RoleAdmin {
			permissions = models.StringList{models.PermissionInviteEmployees}
		}
		err = db.Model(&models.User{}).Where("id = ?", target.ID).
			Updates(map[string]interface{}{"role": req.Role, "permissions": permissions}).Error
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Settings have been updated", nil)
	}
}

// handleSetPermissions replaces another admin's permission set
func handleSetPermissions(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetPermissionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		admin, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if !admin.HasPermission(models.PermissionSetPermissionsForOthers) {
			utils.RespondError(c, apperrors.Validation("Admin not found or doesn't have enough permissions"))
			return
		}

		var target models.User
		err = db.Where("id = ? AND is_fired = ? AND is_enrolled = ?", req.UserID, false, true).
			First(&target).Error
		if err != nil {
			utils.RespondError(c, apperrors.NotFound("User not found"))
			return
		}
		if target.Role != models.RoleAdmin {
			utils.RespondError(c, apperrors.Validation("User must be an admin to give him permissions"))
			return
		}

		err = db.Model(&models.User{}).Where("id = ?", target.ID).
			Update("permissions", models.StringList(req.Permissions)).Error
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Settings have been updated", nil)
	}
}

// handleDeleteUser deletes the caller's account with billing cleanup: stored
// cards go first, then the account, then the provider customer.
func handleDeleteUser(db *gorm.DB, payments PaymentsAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var cardCount int64
		if err := db.Model(&models.Card{}).Where("user_id = ?", user.ID).Count(&cardCount).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		if cardCount > 0 {
			if err := db.Delete(&models.Card{}, "user_id = ?", user.ID).Error; err != nil {
				utils.RespondError(c, err)
				return
			}
		}
		if err := db.Delete(&models.User{}, "id = ?", user.ID).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		if cardCount > 0 && user.CustomerID != nil {
			if err := payments.DeleteCustomer(*user.CustomerID); err != nil {
				utils.RespondError(c, apperrors.Upstream(err.Error()))
				return
			}
		}
		utils.OKResponse(c, "User has been deleted", nil)
	}
}

// collectInviteEmails merges the optional CSV upload with explicit form
// emails. Duplicates across the two sources are kept; only the directory
// lookup downstream filters existing accounts.
func collectInviteEmails(c *gin.Context) ([]string, error) {
	emails := c.PostFormArray("emails")

	file, header, err := c.Request.FormFile("file")
	if err == nil {
		defer file.Close()
		if !isCSVUpload(header) {
			return nil, apperrors.Validation("Please upload a csv file")
		}
		fromCSV, err := utils.ParseEmails(file, ',')
		if err != nil {
			return nil, apperrors.Validation("Failed to parse csv file")
		}
		emails = append(fromCSV, emails...)
	}

	if len(emails) == 0 {
		return nil, apperrors.Validation("Please specify emails, or upload an csv file")
	}
	return emails, nil
}

func isCSVUpload(header *multipart.FileHeader) bool {
	if strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		return true
	}
	return strings.Contains(header.Header.Get("Content-Type"), "csv")
}

// invite creates one placeholder per email not already in the directory and
// sends the invitation mail. A failure mid-loop aborts the remaining
// invites; the error reports how many completed so partial progress is not
// silently lost.
func invite(db *gorm.DB, mailer providers.Mailer, emails []string, build func(email string) models.User) error {
	var existing []models.User
	if err := db.Select("email").Where("email IN ?", emails).Find(&existing).Error; err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, user := range existing {
		known[user.Email] = true
	}

	sent := 0
	for _, email := range emails {
		if known[email] {
			continue
		}
		user := build(email)
		if err := db.Create(&user).Error; err != nil {
			return apperrors.New(apperrors.From(err).Status,
				apperrors.From(err).Message+" ("+inviteProgress(sent)+")")
		}
		if err := mailer.SendInvite(email); err != nil {
			return apperrors.Upstream(err.Error() + " (" + inviteProgress(sent) + ")")
		}
		sent++
	}
	return nil
}

func inviteProgress(sent int) string {
	if sent == 1 {
		return "1 invite completed"
	}
	return fmt.Sprintf("%d invites completed", sent)
}

// handleInviteEmployees invites employees into the acting admin's company
func handleInviteEmployees(db *gorm.DB, mailer providers.Mailer) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if !admin.HasPermission(models.PermissionInviteEmployees) {
			utils.RespondError(c, apperrors.Validation("Admin not found or doesn't have enough permissions"))
			return
		}

		emails, err := collectInviteEmails(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		adminID := admin.ID
		err = invite(db, mailer, emails, func(email string) models.User {
			return models.User{
				Email:     email,
				Role:      models.RoleEmployee,
				CompanyID: admin.CompanyID,
				InviterID: &adminID,
			}
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Invites have been sent to new users", nil)
	}
}

// handleInviteAdmins invites future company admins (SuperAdmin only); the
// admin's company is created later during their registration.
func handleInviteAdmins(db *gorm.DB, mailer providers.Mailer) gin.HandlerFunc {
	return func(c *gin.Context) {
		emails, err := collectInviteEmails(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		err = invite(db, mailer, emails, func(email string) models.User {
			return models.User{Email: email, Role: models.RoleAdmin}
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Invites have been sent", nil)
	}
}

// handleGetUserCards lists the caller's stored cards with live provider data
func handleGetUserCards(db *gorm.DB, cards *billing.CardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		infos, err := cards.GetCards(billing.UserOwner(user))
		if errors.Is(err, billing.ErrNoBillingCustomer) {
			utils.OKResponse(c, "No cards", nil)
			return
		}
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Cards retrieved successfully", infos)
	}
}

// handleAddUserCard stores a new personal card
func handleAddUserCard(db *gorm.DB, cards *billing.CardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddCardRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		user, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		msg, err := cards.AddCard(billing.UserOwner(user), billing.AddCardRequest{
			Firstname: req.Firstname,
			Lastname:  req.Lastname,
			Number:    req.Number,
			ExpMonth:  req.Month,
			ExpYear:   req.Year,
			CVC:       req.CVC,
			IsDefault: req.IsDefault,
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, msg, nil)
	}
}

// handleUpdateUserCard pushes a new expiry for one of the caller's cards
func handleUpdateUserCard(db *gorm.DB, cards *billing.CardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateCardRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		cardID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.RespondError(c, apperrors.Validation("Invalid card id"))
			return
		}
		user, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		msg, err := cards.UpdateCard(billing.UserOwner(user), cardID, req.Month, req.Year)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, msg, nil)
	}
}

// handleMakeUserCardDefault makes one of the caller's cards default
func handleMakeUserCardDefault(db *gorm.DB, cards *billing.CardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cardID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.RespondError(c, apperrors.Validation("Invalid card id"))
			return
		}
		user, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		msg, err := cards.MakeDefault(billing.UserOwner(user), cardID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, msg, nil)
	}
}

// handleDeleteUserCard deletes one of the caller's cards
func handleDeleteUserCard(db *gorm.DB, cards *billing.CardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cardID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.RespondError(c, apperrors.Validation("Invalid card id"))
			return
		}
		user, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		msg, err := cards.DeleteCard(billing.UserOwner(user), cardID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, msg, nil)
	}
}

// handleCreateWallet generates a wallet (fresh or from the given mnemonic),
// derives the first address and links both to the caller's account.
func handleCreateWallet(db *gorm.DB, wallets providers.WalletProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateWalletRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		issuer := c.GetString("issuer")

		wallet, err := wallets.GenerateWallet(req.Mnemonic)
		if err != nil {
			utils.RespondError(c, apperrors.Upstream(err.Error()))
			return
		}
		address, err := wallets.GenerateAddress(wallet.Xpub, 0)
		if err != nil {
			utils.RespondError(c, apperrors.Upstream(err.Error()))
			return
		}

		err = db.Model(&models.User{}).Where("issuer = ?", issuer).
			Updates(map[string]interface{}{
				"xpub":      wallet.Xpub,
				"addresses": models.StringList{address},
			}).Error
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Wallet has been linked", wallet)
	}
}

// handleGetWalletBalance returns the balance of the caller's first address
func handleGetWalletBalance(db *gorm.DB, wallets providers.WalletProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if len(user.Addresses) == 0 {
			utils.RespondError(c, apperrors.Validation("Wallet is not linked"))
			return
		}
		balance, err := wallets.GetBalance(user.Addresses[0])
		if err != nil {
			utils.RespondError(c, apperrors.Upstream(err.Error()))
			return
		}
		utils.OKResponse(c, "Balance retrieved successfully", balance)
	}
}

// handleUploadAvatar stores an avatar image and saves its public URL
func handleUploadAvatar(db *gorm.DB, store providers.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			utils.RespondError(c, apperrors.Validation("File uploads are not configured"))
			return
		}
		user, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondError(c, apperrors.Validation("Please upload an image file"))
			return
		}
		defer file.Close()
		contentType := header.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			utils.RespondError(c, apperrors.Validation("Please upload an image file"))
			return
		}

		key := "avatars/" + user.ID.String() + filepath.Ext(header.Filename)
		url, err := store.Upload(key, contentType, file)
		if err != nil {
			utils.RespondError(c, apperrors.Upstream(err.Error()))
			return
		}
		if err := db.Model(&models.User{}).Where("id = ?", user.ID).Update("avatar", url).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Avatar has been updated", gin.H{"url": url})
	}
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func formatExpiry(month, year int64) string {
	return fmt.Sprintf("%d/%d", month, year)
}
