package main

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cryptoperk/cryptoperk-backend/shared/apperrors"
	"github.com/cryptoperk/cryptoperk-backend/shared/billing"
	"github.com/cryptoperk/cryptoperk-backend/shared/middleware"
	"github.com/cryptoperk/cryptoperk-backend/shared/models"
	"github.com/cryptoperk/cryptoperk-backend/shared/providers"
	"github.com/cryptoperk/cryptoperk-backend/shared/utils"
)

// UpdateCompanyRequest carries the optional company fields. A non-nil
// Hashtags list replaces the company's hashtag associations.
type UpdateCompanyRequest struct {
	Name              *string     `json:"name"`
	Logo              *string     `json:"logo"`
	Hashtags          []uuid.UUID `json:"hashtags"`
	Website           *string     `json:"website"`
	Size              *int        `json:"size"`
	BrandColor        *string     `json:"brandColor"`
	IncludeLogoOnWall *bool       `json:"includeLogoOnWall"`
	Linkedin          *string     `json:"linkedin"`
	Facebook          *string     `json:"facebook"`
	Twitter           *string     `json:"twitter"`
}

// FireUsersRequest marks company users as fired
type FireUsersRequest struct {
	Users  []uuid.UUID `json:"users" binding:"required"`
	Reason string      `json:"reason"`
}

// BillingAdmin is the nested billing-contact shape in company projections
type BillingAdmin struct {
	ID        uuid.UUID `json:"id"`
	Firstname string    `json:"firstname"`
	Lastname  string    `json:"lastname"`
	Email     string    `json:"email"`
	Avatar    *string   `json:"avatar"`
}

// CompanyInfo is the SuperAdmin projection of a company
type CompanyInfo struct {
	ID               uuid.UUID     `json:"id"`
	Name             string        `json:"name"`
	Industry         *string       `json:"industry"`
	Logo             *string       `json:"logo"`
	Website          *string       `json:"website"`
	Country          *string       `json:"country,omitempty"`
	UserCount        int64         `json:"user_count"`
	BillingAdmin     *BillingAdmin `json:"billing_admin"`
	EnrolledUsers    int64         `json:"enrolled_users"`
	CardExpiringDate *string       `json:"card_expiring_date"`
}

// billingAdminFor finds the company admin carrying the billing permission
func billingAdminFor(db *gorm.DB, companyID uuid.UUID) *BillingAdmin {
	var admins []models.User
	err := db.Where("company_id = ? AND role = ?", companyID, models.RoleAdmin).Find(&admins).Error
	if err != nil {
		return nil
	}
	for i := range admins {
		if admins[i].HasPermission(models.PermissionManageBillingInformation) {
			return &BillingAdmin{
				ID:        admins[i].ID,
				Firstname: admins[i].Firstname,
				Lastname:  admins[i].Lastname,
				Email:     admins[i].Email,
				Avatar:    admins[i].Avatar,
			}
		}
	}
	return nil
}

func companyProjection(db *gorm.DB, payments PaymentsAPI, company *models.Company) CompanyInfo {
	info := CompanyInfo{
		ID:      company.ID,
		Name:    company.Name,
		Logo:    company.Logo,
		Website: company.Website,
		Country: company.Country,
	}
	if company.Industry != nil {
		info.Industry = &company.Industry.Value
	}
	db.Model(&models.User{}).Where("company_id = ?", company.ID).Count(&info.UserCount)
	db.Model(&models.User{}).Where("company_id = ? AND is_enrolled = ?", company.ID, true).
		Count(&info.EnrolledUsers)
	info.BillingAdmin = billingAdminFor(db, company.ID)

	var defaultCard models.Card
	err := db.Where("company_id = ? AND is_default = ?", company.ID, true).First(&defaultCard).Error
	if err == nil {
		info.CardExpiringDate = cardExpiry(payments, company.CustomerID, []models.Card{defaultCard})
	}
	return info
}

// handleGetCompanyNames lists every company name (SuperAdmin)
func handleGetCompanyNames(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var names []string
		if err := db.Model(&models.Company{}).Pluck("name", &names).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Company names retrieved successfully", names)
	}
}

// handleGetCompanies returns a paginated company listing for SuperAdmins
func handleGetCompanies(db *gorm.DB, payments PaymentsAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, limit, err := utils.Paginate(c.Query("page"))
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var companies []models.Company
		if err := db.Preload("Industry").Offset(offset).Limit(limit).Find(&companies).Error; err != nil {
			utils.RespondError(c, err)
			return
		}

		infos := make([]CompanyInfo, 0, len(companies))
		for i := range companies {
			infos = append(infos, companyProjection(db, payments, &companies[i]))
		}
		utils.OKResponse(c, "Companies retrieved successfully", infos)
	}
}

// handleGetCompany returns company detail. Admins see their own company with
// hashtags; SuperAdmins see any company in the listing projection.
func handleGetCompany(db *gorm.DB, payments PaymentsAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		companyID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.RespondError(c, apperrors.Validation("Invalid company id"))
			return
		}

		switch {
		case user.Role == models.RoleAdmin && user.CompanyID != nil && *user.CompanyID == companyID:
			var company models.Company
			err := db.Preload("Industry").Preload("Hashtags.Hashtag").
				Where("id = ?", companyID).First(&company).Error
			if err != nil {
				utils.RespondError(c, apperrors.NotFound("Company not found"))
				return
			}
			utils.OKResponse(c, "Company retrieved successfully", company)
		case user.Role == models.RoleSuperAdmin:
			var company models.Company
			err := db.Preload("Industry").Where("id = ?", companyID).First(&company).Error
			if err != nil {
				utils.RespondError(c, apperrors.NotFound("Company not found"))
				return
			}
			utils.OKResponse(c, "Company retrieved successfully", companyProjection(db, payments, &company))
		default:
			utils.RespondError(c, apperrors.Forbidden())
		}
	}
}

// handleGetIndustries lists the industry lookup table
func handleGetIndustries(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var industries []models.Industry
		if err := db.Find(&industries).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Industries retrieved successfully", industries)
	}
}

// handleGetHashtags lists all hashtags
func handleGetHashtags(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var hashtags []models.Hashtag
		if err := db.Find(&hashtags).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Hashtags retrieved successfully", hashtags)
	}
}

// handleCreateHashtag creates a hashtag, returning the existing row when the
// value is already taken.
func handleCreateHashtag(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		value := c.Query("value")
		if value == "" {
			utils.RespondError(c, apperrors.Validation("Hashtag value is required"))
			return
		}

		var hashtag models.Hashtag
		err := db.Where("value = ?", value).First(&hashtag).Error
		if err == nil {
			utils.OKResponse(c, "Hashtag already exists", hashtag)
			return
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(c, err)
			return
		}

		hashtag = models.Hashtag{Value: value}
		if err := db.Create(&hashtag).Error; err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.CreatedResponse(c, "Hashtag created successfully", hashtag)
	}
}

// handleGetCompanyUsers returns the admin's company roster, fired users
// excluded, paginated.
func handleGetCompanyUsers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, limit, err := utils.Paginate(c.Query("page"))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		admin, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var users []models.User
		err = db.Where("company_id = ? AND is_fired = ?", admin.CompanyID, false).
			Offset(offset).Limit(limit).Find(&users).Error
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Company users retrieved successfully", users)
	}
}

// handleGetCompanyUser returns one company user with their wallet balance
func handleGetCompanyUser(db *gorm.DB, wallets providers.WalletProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var user models.User
		err = db.Where("id = ? AND company_id = ?", c.Param("id"), admin.CompanyID).First(&user).Error
		if err != nil {
			utils.RespondError(c, apperrors.NotFound("User not found"))
			return
		}

		var balance *providers.Balance
		if len(user.Addresses) > 0 {
			balance, err = wallets.GetBalance(user.Addresses[0])
			if err != nil {
				utils.RespondError(c, apperrors.Upstream(err.Error()))
				return
			}
		}
		utils.OKResponse(c, "Company user retrieved successfully", gin.H{
			"user":    user,
			"balance": balance,
		})
	}
}

// handleUpdateCompany updates the admin's company. A provided hashtag list
// is reconciled: associations absent from the list are removed and missing
// ones are created.
func handleUpdateCompany(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateCompanyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		admin, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if admin.CompanyID == nil {
			utils.RespondError(c, apperrors.Validation("Admin has no company"))
			return
		}
		companyID := *admin.CompanyID

		if req.Hashtags != nil {
			wanted := make(map[uuid.UUID]bool, len(req.Hashtags))
			for _, id := range req.Hashtags {
				wanted[id] = true
			}

			var current []models.CompanyHashtag
			if err := db.Where("company_id = ?", companyID).Find(&current).Error; err != nil {
				utils.RespondError(c, err)
				return
			}
			have := make(map[uuid.UUID]bool, len(current))
			for _, ch := range current {
				have[ch.HashtagID] = true
				if !wanted[ch.HashtagID] {
					err := db.Delete(&models.CompanyHashtag{},
						"company_id = ? AND hashtag_id = ?", companyID, ch.HashtagID).Error
					if err != nil {
						utils.RespondError(c, err)
						return
					}
				}
			}
			for _, id := range req.Hashtags {
				if have[id] {
					continue
				}
				ch := models.CompanyHashtag{CompanyID: companyID, HashtagID: id}
				if err := db.Create(&ch).Error; err != nil {
					utils.RespondError(c, err)
					return
				}
			}
		}

		updates := map[string]interface{}{}
		if req.Name != nil {
			updates["name"] = *req.Name
		}
		if req.Logo != nil {
			updates["logo"] = *req.Logo
		}
		if req.Website != nil {
			updates["website"] = *req.Website
		}
		if req.Size != nil {
			updates["size"] = *req.Size
		}
		if req.BrandColor != nil {
			updates["brand_color"] = *req.BrandColor
		}
		if req.IncludeLogoOnWall != nil {
			updates["include_logo_on_wall"] = *req.IncludeLogoOnWall
		}
		if req.Linkedin != nil {
			updates["linkedin"] = *req.Linkedin
		}
		if req.Facebook != nil {
			updates["facebook"] = *req.Facebook
		}
		if req.Twitter != nil {
			updates["twitter"] = *req.Twitter
		}
		if len(updates) > 0 {
			err := db.Model(&models.Company{}).Where("id = ?", companyID).Updates(updates).Error
			if err != nil {
				utils.RespondError(c, err)
				return
			}
		}
		utils.OKResponse(c, "Company info has been updated", nil)
	}
}

// handleFireUsers marks the listed company users as fired
func handleFireUsers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FireUsersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		admin, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		err = db.Model(&models.User{}).
			Where("id IN ? AND company_id = ?", req.Users, admin.CompanyID).
			Updates(map[string]interface{}{"is_fired": true, "firing_reason": req.Reason}).Error
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Users have been fired", nil)
	}
}

// billingOwner resolves the acting admin's company as a card owner. The
// admin must carry the billing permission; the company's billing email is
// the admin's own address.
func billingOwner(c *gin.Context, db *gorm.DB) (billing.Owner, error) {
	admin, err := middleware.CurrentUser(c, db)
	if err != nil {
		return nil, err
	}
	if admin.CompanyID == nil || !admin.HasPermission(models.PermissionManageBillingInformation) {
		return nil, apperrors.Validation("Admin not found or doesn't have enough permissions")
	}
	var company models.Company
	if err := db.Where("id = ?", admin.CompanyID).First(&company).Error; err != nil {
		return nil, apperrors.NotFound("Company not found")
	}
	return billing.CompanyOwner(&company, admin.Email), nil
}

// handleGetCompanyCards lists the company's stored cards with provider data
func handleGetCompanyCards(db *gorm.DB, cards *billing.CardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := billingOwner(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		infos, err := cards.GetCards(owner)
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

// handleAddCompanyCard stores a new company card
func handleAddCompanyCard(db *gorm.DB, cards *billing.CardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddCardRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		owner, err := billingOwner(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		msg, err := cards.AddCard(owner, billing.AddCardRequest{
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

// handleUpdateCompanyCard pushes a new expiry for a company card
func handleUpdateCompanyCard(db *gorm.DB, cards *billing.CardService) gin.HandlerFunc {
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
		owner, err := billingOwner(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		msg, err := cards.UpdateCard(owner, cardID, req.Month, req.Year)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, msg, nil)
	}
}

// handleMakeCompanyCardDefault makes a company card the default
func handleMakeCompanyCardDefault(db *gorm.DB, cards *billing.CardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cardID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.RespondError(c, apperrors.Validation("Invalid card id"))
			return
		}
		owner, err := billingOwner(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		msg, err := cards.MakeDefault(owner, cardID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, msg, nil)
	}
}

// handleDeleteCompanyCard deletes a company card
func handleDeleteCompanyCard(db *gorm.DB, cards *billing.CardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cardID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.RespondError(c, apperrors.Validation("Invalid card id"))
			return
		}
		owner, err := billingOwner(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		msg, err := cards.DeleteCard(owner, cardID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, msg, nil)
	}
}

// handleUploadLogo stores a company logo image and saves its public URL
func handleUploadLogo(db *gorm.DB, store providers.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			utils.RespondError(c, apperrors.Validation("File uploads are not configured"))
			return
		}
		admin, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if admin.CompanyID == nil {
			utils.RespondError(c, apperrors.Validation("Admin has no company"))
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

		key := "logos/" + admin.CompanyID.String() + filepath.Ext(header.Filename)
		url, err := store.Upload(key, contentType, file)
		if err != nil {
			utils.RespondError(c, apperrors.Upstream(err.Error()))
			return
		}
		err = db.Model(&models.Company{}).Where("id = ?", admin.CompanyID).Update("logo", url).Error
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Logo has been updated", gin.H{"url": url})
	}
}
