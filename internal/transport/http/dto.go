package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"onboarding/internal/application/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/httputil"
)

const maxBodyBytes = 1 << 20

type addressRequest struct {
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
}

type createApplicationRequest struct {
	FirstName   string          `json:"first_name" validate:"required,max=100"`
	LastName    string          `json:"last_name" validate:"required,max=100"`
	DateOfBirth string          `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	SSN         string          `json:"ssn" validate:"required,max=32"`
	Nationality string          `json:"nationality" validate:"omitempty,iso3166_1_alpha2"`
	Email       string          `json:"email" validate:"required,email,max=254"`
	Phone       string          `json:"phone" validate:"required,e164"`
	Address     *addressRequest `json:"address" validate:"omitempty"`
}

type sendOTPRequest struct {
	Channel string `json:"channel" validate:"required,oneof=EMAIL PHONE"`
}

type verifyOTPRequest struct {
	Channel string `json:"channel" validate:"required,oneof=EMAIL PHONE"`
	Code    string `json:"code" validate:"required,numeric,min=4,max=10"`
}

type uploadDocumentRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=ID_DOCUMENT PROOF_OF_ADDRESS"`
	StorageKey  string `json:"storage_key" validate:"required,max=512"`
	FileName    string `json:"file_name" validate:"max=255"`
	ContentType string `json:"content_type" validate:"max=100"`
	SizeBytes   int64  `json:"size_bytes" validate:"required,gt=0"`
}

type grantConsentRequest struct {
	Type              string `json:"type" validate:"required,oneof=TERMS_OF_SERVICE PRIVACY_POLICY MARKETING"`
	Granted           *bool  `json:"granted" validate:"required"`
	DisclosureVersion string `json:"disclosure_version" validate:"required,max=50"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type infoRequest struct {
	Info string `json:"info" validate:"required,max=4000"`
}

type assignRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"omitempty,uuid"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst, trims its strings and validates it.
// An empty body decodes to the zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	sanitize(dst)
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return dErrors.New(dErrors.CodeValidation, "invalid request")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return dErrors.New(dErrors.CodeValidation, strings.Join(fields, "; "))
}

// sanitize trims whitespace from the string fields of a struct pointer,
// descending into nested struct pointers.
func sanitize(v any) {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return
	}
	val = val.Elem()
	if val.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(strings.TrimSpace(field.String()))
		case reflect.Ptr:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				sanitize(field.Interface())
			}
		}
	}
}

func applicationID(r *http.Request) (id.ApplicationID, error) {
	return id.ParseApplicationID(urlParam(r, applicationParam))
}

func (req createApplicationRequest) toModels() (models.Personal, models.Contact) {
	personal := models.Personal{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		SSN:         req.SSN,
		Nationality: req.Nationality,
	}
	if req.DateOfBirth != "" {
		// Format is checked by the datetime validator.
		dob, _ := time.Parse(time.DateOnly, req.DateOfBirth)
		personal.DateOfBirth = &dob
	}
	contact := models.Contact{Email: req.Email, Phone: req.Phone}
	if req.Address != nil {
		contact.Address = models.Address{
			Line1:      req.Address.Line1,
			Line2:      req.Address.Line2,
			City:       req.Address.City,
			PostalCode: req.Address.PostalCode,
			Country:    strings.ToUpper(req.Address.Country),
		}
	}
	return personal, contact
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}
