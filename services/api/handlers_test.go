package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cryptoperk/cryptoperk-backend/shared/billing"
	"github.com/cryptoperk/cryptoperk-backend/shared/middleware"
	"github.com/cryptoperk/cryptoperk-backend/shared/models"
	"github.com/cryptoperk/cryptoperk-backend/shared/providers"
	"github.com/cryptoperk/cryptoperk-backend/shared/utils"
)

// stubPayments satisfies PaymentsAPI without a provider behind it
type stubPayments struct{}

func (stubPayments) CreateCustomer(email, firstname, lastname, companyName string) (string, error) {
	return "cus_test", nil
}

func (stubPayments) ListPaymentMethods(customerID string) ([]providers.PaymentMethod, error) {
	return nil, nil
}

func (stubPayments) CreatePaymentMethod(customerID string, card providers.CardDetails, makeDefault bool) (string, error) {
	return "pm_test", nil
}

func (stubPayments) UpdatePaymentMethod(paymentMethodID string, expMonth, expYear int64) error {
	return nil
}

func (stubPayments) SetDefaultPaymentMethod(customerID, paymentMethodID string) error { return nil }

func (stubPayments) DetachPaymentMethod(paymentMethodID, newDefaultID, customerID string) error {
	return nil
}

func (stubPayments) GetPaymentMethod(customerID, paymentMethodID string) (*providers.PaymentMethod, error) {
	return &providers.PaymentMethod{ID: paymentMethodID, Last4: "4242", ExpMonth: 12, ExpYear: 2030, Brand: "visa"}, nil
}

func (stubPayments) DeleteCustomer(customerID string) error { return nil }

// recordingMailer counts invite sends instead of talking to SendGrid
type recordingMailer struct {
	sent []string
	fail bool
}

func (m *recordingMailer) SendInvite(toEmail string) error {
	if m.fail {
		return fmt.Errorf("mail provider down")
	}
	m.sent = append(m.sent, toEmail)
	return nil
}

// testIdentity injects the issuer from a header, standing in for the DID
// token middleware so handler tests focus on handler behavior.
func testIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if issuer := c.GetHeader("X-Test-Issuer"); issuer != "" {
			c.Set("issuer", issuer)
		}
		c.Next()
	}
}

type apiTest struct {
	db     *gorm.DB
	router *gin.Engine
	mailer *recordingMailer
}

func setupAPITest(t *testing.T) *apiTest {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Industry{}, &models.Hashtag{}, &models.Company{}, &models.CompanyHashtag{},
		&models.User{}, &models.Card{}, &models.KudosTransaction{},
	))

	payments := stubPayments{}
	mailer := &recordingMailer{}
	cards := billing.NewCardService(db, payments)
	am := middleware.NewAuthMiddleware(db)

	router := gin.New()
	api := router.Group("/api", testIdentity())

	api.GET("/companies", am.RequireRole(models.RoleSuperAdmin), am.RequireActive(),
		handleGetCompanies(db, payments))
	api.GET("/companies/users", am.RequireRole(models.RoleAdmin), am.RequireActive(),
		handleGetCompanyUsers(db))
	api.PUT("/companies/fire", am.RequireRole(models.RoleAdmin), am.RequireActive(),
		handleFireUsers(db))
	api.POST("/companies/hashtags", handleCreateHashtag(db))
	api.POST("/users/employee/invite", am.RequireActive(), am.RequireRole(models.RoleAdmin),
		handleInviteEmployees(db, mailer))
	api.PUT("/users/register", handleRegister(db))
	api.GET("/users/cards", am.RequireActive(), handleGetUserCards(db, cards))
	api.POST("/kudos", am.RequireActive(), handleSendKudos(db, nil))
	api.POST("/kudos/statistic", am.RequireActive(), handleKudosStatistic(db))

	return &apiTest{db: db, router: router, mailer: mailer}
}

func (a *apiTest) do(t *testing.T, method, path, issuer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if issuer != "" {
		req.Header.Set("X-Test-Issuer", issuer)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *apiTest) createUser(t *testing.T, email string, role models.Role, perms models.StringList, companyID *uuid.UUID) *models.User {
	t.Helper()
	issuer := "did:ethr:0x" + uuid.NewString()
	user := &models.User{
		Issuer:      &issuer,
		Email:       email,
		Role:        role,
		Permissions: perms,
		IsEnrolled:  true,
		CompanyID:   companyID,
	}
	require.NoError(t, a.db.Create(user).Error)
	return user
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) utils.APIResponse {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetCompaniesPagination(t *testing.T) {
	a := setupAPITest(t)
	sa := a.createUser(t, "sa@platform.io", models.RoleSuperAdmin, nil, nil)

	for i := 0; i < 30; i++ {
		company := models.Company{Name: fmt.Sprintf("Company %02d", i)}
		require.NoError(t, a.db.Create(&company).Error)
	}

	pageNames := func(w *httptest.ResponseRecorder) map[string]bool {
		resp := decodeData(t, w)
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var infos []CompanyInfo
		require.NoError(t, json.Unmarshal(raw, &infos))
		names := make(map[string]bool, len(infos))
		for _, info := range infos {
			names[info.Name] = true
		}
		require.Len(t, names, len(infos), "names must be unique within a page")
		return names
	}

	w1 := a.do(t, http.MethodGet, "/api/companies?page=1", *sa.Issuer, nil)
	require.Equal(t, http.StatusOK, w1.Code)
	page1 := pageNames(w1)
	assert.Len(t, page1, 15)

	w2 := a.do(t, http.MethodGet, "/api/companies?page=2", *sa.Issuer, nil)
	require.Equal(t, http.StatusOK, w2.Code)
	page2 := pageNames(w2)
	assert.Len(t, page2, 15)

	for name := range page2 {
		assert.False(t, page1[name], "page 2 must not repeat %s", name)
	}

	for _, page := range []string{"0", "-1", "abc"} {
		w := a.do(t, http.MethodGet, "/api/companies?page="+page, *sa.Issuer, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "page %q must be rejected", page)
		assert.Contains(t, w.Body.String(), "Page must be greater than 0")
	}
}

func multipartInvite(t *testing.T, emails []string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, email := range emails {
		require.NoError(t, writer.WriteField("emails", email))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestInviteEmployeesDedupesAgainstDirectoryOnly(t *testing.T) {
	a := setupAPITest(t)
	company := models.Company{Name: "Acme"}
	require.NoError(t, a.db.Create(&company).Error)
	admin := a.createUser(t, "admin@acme.test", models.RoleAdmin,
		models.AllAdminPermissions, &company.ID)
	a.createUser(t, "a@x.com", models.RoleEmployee, nil, &company.ID)

	// Duplicates within the input are only filtered against existing
	// directory rows, so the second b@x.com hits the unique email
	// constraint after the first one is created.
	body, contentType := multipartInvite(t, []string{"a@x.com", "b@x.com", "b@x.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/users/employee/invite", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Test-Issuer", *admin.Issuer)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unique constraint violation")

	var created []models.User
	require.NoError(t, a.db.Where("email = ?", "b@x.com").Find(&created).Error)
	assert.Len(t, created, 1, "exactly one placeholder for b@x.com")
	assert.False(t, created[0].IsEnrolled)
	assert.Equal(t, models.RoleEmployee, created[0].Role)
	require.NotNil(t, created[0].CompanyID)
	assert.Equal(t, company.ID, *created[0].CompanyID)

	assert.Equal(t, []string{"b@x.com"}, a.mailer.sent, "exactly one invitation email")
}

func TestInviteEmployeesRequiresPermission(t *testing.T) {
	a := setupAPITest(t)
	company := models.Company{Name: "Acme"}
	require.NoError(t, a.db.Create(&company).Error)
	admin := a.createUser(t, "limited@acme.test", models.RoleAdmin,
		models.StringList{models.PermissionManageBillingInformation}, &company.ID)

	body, contentType := multipartInvite(t, []string{"new@x.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/users/employee/invite", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Test-Issuer", *admin.Issuer)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, a.mailer.sent)
}

func TestSendKudosIncrementsSenderBalance(t *testing.T) {
	a := setupAPITest(t)
	sender := a.createUser(t, "sender@acme.test", models.RoleEmployee, nil, nil)
	recipient := a.createUser(t, "recipient@acme.test", models.RoleEmployee, nil, nil)
	require.NoError(t, a.db.Model(&models.User{}).Where("id = ?", sender.ID).
		Update("kudos", 100).Error)

	w := a.do(t, http.MethodPost, "/api/kudos", *sender.Issuer,
		gin.H{"recipient": recipient.ID, "value": 30})
	require.Equal(t, http.StatusCreated, w.Code)

	var reloaded models.User
	require.NoError(t, a.db.First(&reloaded, "id = ?", sender.ID).Error)
	assert.Equal(t, 130, reloaded.Kudos, "send adds to the sender balance")

	var rows []models.KudosTransaction
	require.NoError(t, a.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 30, rows[0].Amount)
	assert.Equal(t, models.TransactionPending, rows[0].Status)
	assert.Equal(t, sender.ID, rows[0].SenderID)
	assert.Equal(t, recipient.ID, rows[0].RecipientID)
}

func TestSendKudosRejectsOverBalance(t *testing.T) {
	a := setupAPITest(t)
	sender := a.createUser(t, "sender@acme.test", models.RoleEmployee, nil, nil)
	recipient := a.createUser(t, "recipient@acme.test", models.RoleEmployee, nil, nil)
	require.NoError(t, a.db.Model(&models.User{}).Where("id = ?", sender.ID).
		Update("kudos", 10).Error)

	w := a.do(t, http.MethodPost, "/api/kudos", *sender.Issuer,
		gin.H{"recipient": recipient.ID, "value": 30})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "more than what you have on your balance")

	var count int64
	require.NoError(t, a.db.Model(&models.KudosTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestKudosStatistic(t *testing.T) {
	a := setupAPITest(t)
	sender := a.createUser(t, "sender@acme.test", models.RoleEmployee, nil, nil)
	other := a.createUser(t, "other@acme.test", models.RoleEmployee, nil, nil)

	seed := []models.KudosTransaction{
		{SenderID: sender.ID, RecipientID: other.ID, Amount: 10, Status: models.TransactionPending},
		{SenderID: sender.ID, RecipientID: other.ID, Amount: 20, Status: models.TransactionPending},
		{SenderID: other.ID, RecipientID: sender.ID, Amount: 5, Status: models.TransactionPending},
	}
	for i := range seed {
		require.NoError(t, a.db.Create(&seed[i]).Error)
	}

	w := a.do(t, http.MethodPost, "/api/kudos/statistic", *sender.Issuer, gin.H{})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeData(t, w)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var data struct {
		Transactions []models.KudosTransaction `json:"transactions"`
		Chart        []ChartPoint              `json:"chart"`
		Received     int64                     `json:"received"`
		Given        int64                     `json:"given"`
	}
	require.NoError(t, json.Unmarshal(raw, &data))

	assert.Len(t, data.Transactions, 2, "only the caller's sent transactions")
	assert.Equal(t, int64(5), data.Received)
	assert.Equal(t, int64(30), data.Given)
	require.NotEmpty(t, data.Chart)
	var total int64
	for _, point := range data.Chart {
		total += point.Count
	}
	assert.Equal(t, int64(3), total)
}

func TestFiredAdminIsBlockedByActiveGate(t *testing.T) {
	a := setupAPITest(t)
	company := models.Company{Name: "Acme"}
	require.NoError(t, a.db.Create(&company).Error)
	admin := a.createUser(t, "fired@acme.test", models.RoleAdmin,
		models.AllAdminPermissions, &company.ID)
	require.NoError(t, a.db.Model(&models.User{}).Where("id = ?", admin.ID).
		Update("is_fired", true).Error)

	// Role check alone would pass; the activity gate must not.
	w := a.do(t, http.MethodGet, "/api/companies/users?page=1", *admin.Issuer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Insufficient permissions")
}

func TestRegisterVariantDecidedByPersistedRole(t *testing.T) {
	a := setupAPITest(t)

	// Placeholder rows as the invitation pipeline creates them.
	employee := models.User{Email: "emp@x.com", Role: models.RoleEmployee}
	admin := models.User{Email: "adm@x.com", Role: models.RoleAdmin}
	require.NoError(t, a.db.Create(&employee).Error)
	require.NoError(t, a.db.Create(&admin).Error)

	payload := gin.H{
		"email":           "emp@x.com",
		"firstname":       "Emma",
		"lastname":        "Ployee",
		"username":        "emma",
		"recoveringEmail": "backup@x.com",
	}
	w := a.do(t, http.MethodPut, "/api/users/register", "did:ethr:0xemp", payload)
	require.Equal(t, http.StatusOK, w.Code)

	var emp models.User
	require.NoError(t, a.db.First(&emp, "email = ?", "emp@x.com").Error)
	assert.Equal(t, "did:ethr:0xemp", *emp.Issuer)
	assert.Empty(t, emp.Permissions, "employees get no permissions")
	require.NotNil(t, emp.RecoveringEmail)
	assert.Equal(t, "backup@x.com", *emp.RecoveringEmail)

	payload["email"] = "adm@x.com"
	w = a.do(t, http.MethodPut, "/api/users/register", "did:ethr:0xadm", payload)
	require.Equal(t, http.StatusOK, w.Code)

	var adm models.User
	require.NoError(t, a.db.First(&adm, "email = ?", "adm@x.com").Error)
	assert.ElementsMatch(t, models.AllAdminPermissions, adm.Permissions,
		"invited admins get the full permission set")

	// Not invited at all.
	payload["email"] = "stranger@x.com"
	w = a.do(t, http.MethodPut, "/api/users/register", "did:ethr:0xstr", payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Maybe you weren't invited")

	// Already enrolled.
	require.NoError(t, a.db.Model(&models.User{}).Where("email = ?", "emp@x.com").
		Update("is_enrolled", true).Error)
	payload["email"] = "emp@x.com"
	w = a.do(t, http.MethodPut, "/api/users/register", "did:ethr:0xemp2", payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already enrolled")
}

func TestCreateHashtagIsIdempotent(t *testing.T) {
	a := setupAPITest(t)

	w := a.do(t, http.MethodPost, "/api/companies/hashtags?value=golang", "", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodPost, "/api/companies/hashtags?value=golang", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, a.db.Model(&models.Hashtag{}).Where("value = ?", "golang").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetUserCardsNoCustomerSentinel(t *testing.T) {
	a := setupAPITest(t)
	user := a.createUser(t, "cardless@acme.test", models.RoleEmployee, nil, nil)

	w := a.do(t, http.MethodGet, "/api/users/cards", *user.Issuer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeData(t, w)
	assert.Equal(t, "No cards", resp.Message)
	assert.Nil(t, resp.Data)
}

func TestFireUsersScopedToCompany(t *testing.T) {
	a := setupAPITest(t)
	acme := models.Company{Name: "Acme"}
	globex := models.Company{Name: "Globex"}
	require.NoError(t, a.db.Create(&acme).Error)
	require.NoError(t, a.db.Create(&globex).Error)

	admin := a.createUser(t, "admin@acme.test", models.RoleAdmin, models.AllAdminPermissions, &acme.ID)
	insider := a.createUser(t, "in@acme.test", models.RoleEmployee, nil, &acme.ID)
	outsider := a.createUser(t, "out@globex.test", models.RoleEmployee, nil, &globex.ID)

	w := a.do(t, http.MethodPut, "/api/companies/fire", *admin.Issuer, gin.H{
		"users":  []uuid.UUID{insider.ID, outsider.ID},
		"reason": "restructuring",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var in, out models.User
	require.NoError(t, a.db.First(&in, "id = ?", insider.ID).Error)
	require.NoError(t, a.db.First(&out, "id = ?", outsider.ID).Error)
	assert.True(t, in.IsFired)
	require.NotNil(t, in.FiringReason)
	assert.Equal(t, "restructuring", *in.FiringReason)
	assert.False(t, out.IsFired, "other companies' users are untouched")
}
