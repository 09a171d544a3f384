package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

const maxBodyBytes = 1 << 20

// ProfileRequest is the body of POST /evaluate.
type ProfileRequest struct {
	MerchantID        string          `json:"merchantId" validate:"required,max=64"`
	Country           string          `json:"country" validate:"required,max=100"`
	Industry          string          `json:"industry" validate:"required,max=100"`
	MCCCode           string          `json:"mccCode" validate:"omitempty,max=10"`
	AnnualVolume      decimal.Decimal `json:"annualVolume" validate:"gte=0"`
	OwnerPEP          bool            `json:"ownerPep"`
	OwnerSanctioned   bool            `json:"ownerSanctioned"`
	YearsInBusiness   int             `json:"yearsInBusiness" validate:"gte=0"`
	OffshoreStructure bool            `json:"offshoreStructure"`
	CashIntensive     bool            `json:"cashIntensive"`
	ComplexOwnership  bool            `json:"complexOwnership"`
	RefundRate        float64         `json:"refundRate" validate:"gte=0,lte=100"`
	ChargebackRate    float64         `json:"chargebackRate" validate:"gte=0,lte=100"`
	VolumeChangePct   float64         `json:"volumeChangePct" validate:"gte=-100"`
}

func (p *ProfileRequest) profile() domain.MerchantProfile {
	return domain.MerchantProfile{
		MerchantID:       strings.TrimSpace(p.MerchantID),
		Country:          strings.TrimSpace(p.Country),
		Industry:         strings.TrimSpace(p.Industry),
		MCCCode:          strings.TrimSpace(p.MCCCode),
		AnnualVolume:     p.AnnualVolume,
		OwnerPEP:         p.OwnerPEP,
		OwnerSanctioned:  p.OwnerSanctioned,
		YearsInBusiness:  p.YearsInBusiness,
		OffshoreStruct:   p.OffshoreStructure,
		CashIntensive:    p.CashIntensive,
		ComplexOwnership: p.ComplexOwnership,
		RefundRate:       p.RefundRate,
		ChargebackRate:   p.ChargebackRate,
		VolumeChangePct:  p.VolumeChangePct,
	}
}

// CreateMerchantRequest is the body of POST /merchants.
type CreateMerchantRequest struct {
	ProfileRequest
	BusinessName            string `json:"businessName" validate:"required,max=255"`
	OwnerName               string `json:"ownerName" validate:"max=255"`
	MonthlyTransactionCount int    `json:"monthlyTransactionCount" validate:"gte=0"`
}

func (c *CreateMerchantRequest) merchant() *domain.Merchant {
	return &domain.Merchant{
		MerchantProfile: c.profile(),
		BusinessName:    strings.TrimSpace(c.BusinessName),
		OwnerName:       strings.TrimSpace(c.OwnerName),
		MonthlyTxCount:  c.MonthlyTransactionCount,
		Status:          domain.StatusPending,
	}
}

// UpdateMerchantRequest is the body of PUT /merchants/{id}. Absent fields are left unchanged.
type UpdateMerchantRequest struct {
	domain.MerchantPatch
}

// DecisionRequest is the body of approve and reject.
type DecisionRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// OverrideRequest is the body of POST /merchants/{id}/risk/override.
type OverrideRequest struct {
	RiskLevel     string `json:"riskLevel" validate:"required"`
	Justification string `json:"justification" validate:"required,min=10,max=2000"`
}

// ResolveAlertRequest is the body of POST /alerts/{id}/resolve.
type ResolveAlertRequest struct {
	ResolutionNotes string `json:"resolutionNotes" validate:"required,min=5,max=2000"`
}

// ReassessAllRequest is the optional body of POST /merchants/reassess.
type ReassessAllRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// ListRequest is the body of PUT /config/lists/{type}.
type ListRequest struct {
	Items []string `json:"items" validate:"required"`
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
	// decimals are validated by their float value
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// decode reads a JSON body into dst and validates it. An empty body is allowed when optional is set.
func (h *Handler) decode(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return fmt.Errorf("%w: invalid JSON request body: %v", domain.ErrValidation, err)
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, describe(err))
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}

// ThresholdsRequest is the body of PUT /config/thresholds. All four bounds are required;
// pointers tell a missing key apart from an explicit 0.
type ThresholdsRequest struct {
	LowMax      *int `json:"low_max" validate:"required,gte=0,lte=100"`
	MediumMax   *int `json:"medium_max" validate:"required,gte=0,lte=100"`
	HighMin     *int `json:"high_min" validate:"required,gte=0,lte=100"`
	CriticalMin *int `json:"critical_min" validate:"required,gte=0,lte=100"`
}

// Thresholds converts a validated request.
func (r ThresholdsRequest) Thresholds() domain.Thresholds {
	return domain.Thresholds{
		LowMax:      *r.LowMax,
		MediumMax:   *r.MediumMax,
		HighMin:     *r.HighMin,
		CriticalMin: *r.CriticalMin,
	}
}

// WeightsRequest is the body of PUT /config/weights. It replaces the whole table.
type WeightsRequest struct {
	Weights domain.Weights `json:"weights" validate:"required"`
}
