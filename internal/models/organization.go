package models

import (
	"time"

	"github.com/google/uuid"
)

type Organization struct {
	Id        uuid.UUID             `json:"id"`
	Province  string                `json:"province"`
	City      string                `json:"city"`
	Name      string                `json:"name"`
	Address   string                `json:"address"`
	Source    string                `json:"source"`
	Verified  bool                  `json:"verified"`
	IsManual  bool                  `json:"is_manual"`
	Inspector uuid.NullUUID         `json:"inspector"`
	Emergency int                   `json:"emergency"`
	AddTime   time.Time             `json:"add_time"`
	Contacts  []OrganizationContact `json:"contacts"`
	Demands   []OrganizationDemand  `json:"demands"`

	Supplied Fields `json:"-"`
}

// NaturalKey identifies the same organization across submissions.
func (o Organization) NaturalKey() string {
	return "organization:" + o.Province + "/" + o.City + "/" + o.Name
}

type OrganizationContact struct {
	Id             uuid.UUID `json:"id"`
	OrganizationId uuid.UUID `json:"organization"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	AddTime        time.Time `json:"add_time"`
}

type OrganizationDemand struct {
	Id             uuid.UUID `json:"id"`
	OrganizationId uuid.UUID `json:"organization"`
	Name           string    `json:"name"`
	Remark         string    `json:"remark"`
	Amount         int       `json:"amount"`
	ReceiveAmount  int       `json:"receive_amount"`
	AddTime        time.Time `json:"add_time"`
}

// Scope narrows organization lists to a geographic area relative to the home region.
type Scope string

const (
	ScopeWuhan Scope = "wuhan" // home city
	ScopeHubei Scope = "hubei" // home province outside the home city
	ScopeChina Scope = "china" // outside the home province
)

func ValidScope(s Scope) bool {
	switch s {
	case ScopeWuhan, ScopeHubei, ScopeChina:
		return true
	default:
		return false
	}
}

type Region struct {
	Province string
	City     string
}

type OrganizationQuery struct {
	Limit  int
	Offset int

	Id        uuid.NullUUID
	Province  string
	City      string
	Name      string
	Address   string
	Inspector uuid.NullUUID
	Verified  *bool

	Scope        Scope
	Home         Region
	Owner        uuid.NullUUID
	Mine         bool
	FuzzyName    string
	FuzzyAddress string
}
