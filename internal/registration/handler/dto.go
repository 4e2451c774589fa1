package handler

import (
	"time"

	"raceday/internal/registration/models"
	"raceday/internal/registration/service"
)

type StartRequest struct {
	DistanceID string `json:"distanceId"`
}

type SubmitRegistrantRequest struct {
	FirstName             string  `json:"firstName"`
	LastName              string  `json:"lastName"`
	Email                 string  `json:"email"`
	DateOfBirth           string  `json:"dateOfBirth"`
	Phone                 string  `json:"phone"`
	Gender                string  `json:"gender"`
	City                  string  `json:"city"`
	State                 string  `json:"state"`
	Country               string  `json:"country"`
	EmergencyContactName  string  `json:"emergencyContactName"`
	EmergencyContactPhone string  `json:"emergencyContactPhone"`
	Division              *string `json:"division"`
	GenderIdentity        *string `json:"genderIdentity"`
}

func (r SubmitRegistrantRequest) toInput() service.RegistrantInput {
	return service.RegistrantInput{
		Profile: models.ProfileSnapshot{
			FirstName:             r.FirstName,
			LastName:              r.LastName,
			Email:                 r.Email,
			DateOfBirth:           r.DateOfBirth,
			Phone:                 r.Phone,
			Gender:                r.Gender,
			City:                  r.City,
			State:                 r.State,
			Country:               r.Country,
			EmergencyContactName:  r.EmergencyContactName,
			EmergencyContactPhone: r.EmergencyContactPhone,
		},
		Division:       r.Division,
		GenderIdentity: r.GenderIdentity,
	}
}

type AcceptWaiverRequest struct {
	SignatureType  string  `json:"signatureType"`
	SignatureValue *string `json:"signatureValue"`
}

type AnswerRequest struct {
	Value string `json:"value"`
}

type AnswerResponse struct {
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
}

type CapacityRequest struct {
	Capacity *int `json:"capacity"`
}

type RegistrationResponse struct {
	ID                    string     `json:"id"`
	EditionID             string     `json:"editionId"`
	DistanceID            string     `json:"distanceId"`
	Status                string     `json:"status"`
	PaymentResponsibility string     `json:"paymentResponsibility"`
	BasePriceCents        int64      `json:"basePriceCents"`
	FeesCents             int64      `json:"feesCents"`
	TaxCents              int64      `json:"taxCents"`
	TotalCents            int64      `json:"totalCents"`
	ExpiresAt             *time.Time `json:"expiresAt"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

func toRegistrationResponse(r *models.Registration) RegistrationResponse {
	return RegistrationResponse{
		ID:                    r.ID.String(),
		EditionID:             r.EditionID.String(),
		DistanceID:            r.DistanceID.String(),
		Status:                string(r.Status),
		PaymentResponsibility: string(r.PaymentResponsibility),
		BasePriceCents:        r.BasePriceCents,
		FeesCents:             r.FeesCents,
		TaxCents:              r.TaxCents,
		TotalCents:            r.TotalCents,
		ExpiresAt:             r.ExpiresAt,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

type PendingItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type RegistrantResponse struct {
	FirstName      string  `json:"firstName"`
	LastName       string  `json:"lastName"`
	Email          string  `json:"email"`
	DateOfBirth    string  `json:"dateOfBirth"`
	Division       *string `json:"division,omitempty"`
	GenderIdentity *string `json:"genderIdentity,omitempty"`
}

type RegistrationViewResponse struct {
	Registration     RegistrationResponse `json:"registration"`
	Registrant       *RegistrantResponse  `json:"registrant"`
	PendingWaivers   []PendingItem        `json:"pendingWaivers"`
	MissingQuestions []PendingItem        `json:"missingQuestions"`
	Expired          bool                 `json:"expired"`
	Complete         bool                 `json:"complete"`
}

func toViewResponse(v *service.RegistrationView) RegistrationViewResponse {
	out := RegistrationViewResponse{
		Registration:     toRegistrationResponse(v.Registration),
		PendingWaivers:   []PendingItem{},
		MissingQuestions: []PendingItem{},
		Expired:          v.Expired,
		Complete:         v.Complete(),
	}
	if v.Registrant != nil {
		p := v.Registrant.Profile
		out.Registrant = &RegistrantResponse{
			FirstName:      p.FirstName,
			LastName:       p.LastName,
			Email:          p.Email,
			DateOfBirth:    p.DateOfBirth,
			Division:       v.Registrant.Division,
			GenderIdentity: v.Registrant.GenderIdentity,
		}
	}
	for _, w := range v.PendingWaivers {
		out.PendingWaivers = append(out.PendingWaivers, PendingItem{ID: w.ID.String(), Title: w.Title})
	}
	for _, q := range v.MissingQuestions {
		out.MissingQuestions = append(out.MissingQuestions, PendingItem{ID: q.ID.String(), Title: q.Prompt})
	}
	return out
}

type AcceptanceResponse struct {
	WaiverID          string    `json:"waiverId"`
	WaiverVersionHash string    `json:"waiverVersionHash"`
	SignatureType     string    `json:"signatureType"`
	AcceptedAt        time.Time `json:"acceptedAt"`
}

func toAcceptanceResponse(a *models.WaiverAcceptance) AcceptanceResponse {
	return AcceptanceResponse{
		WaiverID:          a.WaiverID.String(),
		WaiverVersionHash: a.WaiverVersionHash,
		SignatureType:     string(a.SignatureType),
		AcceptedAt:        a.AcceptedAt,
	}
}

type AvailabilityResponse struct {
	DistanceID string `json:"distanceId"`
	Label      string `json:"label"`
	PriceCents int64  `json:"priceCents"`
	Window     string `json:"window"`
	Scope      string `json:"scope"`
	Capacity   *int   `json:"capacity"`
	Reserved   int    `json:"reserved"`
	Remaining  *int   `json:"remaining"`
	SoldOut    bool   `json:"soldOut"`
}

func toAvailabilityResponse(a *service.Availability) AvailabilityResponse {
	return AvailabilityResponse{
		DistanceID: a.DistanceID.String(),
		Label:      a.Label,
		PriceCents: a.PriceCents,
		Window:     a.Window.String(),
		Scope:      string(a.Scope),
		Capacity:   a.Limit,
		Reserved:   a.Reserved,
		Remaining:  a.Remaining,
		SoldOut:    a.SoldOut(),
	}
}
