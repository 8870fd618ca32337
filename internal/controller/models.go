package controller

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"medrelief/internal/models"
)

const maxBodySize = 8 << 20

// Contact request

type ContactReq struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Validate trims the contact. A contact without phone is kept, it is dropped
// later during child reconciliation.
func (c *ContactReq) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)

	if err := checkLengthLimit(c.Name, "name", 100); err != nil {
		return err
	}
	return checkLengthLimit(c.Phone, "phone", 30)
}

func ParseContactReq(data []byte) (*ContactReq, error) {
	c := &ContactReq{}

	err := json.Unmarshal(data, c)
	if err != nil {
		return nil, err
	}
	if err = c.Validate(); err != nil {
		return nil, err
	}
	if len(c.Phone) == 0 {
		return nil, fmt.Errorf("field 'phone' is required")
	}
	return c, nil
}

// Demand request

type DemandReq struct {
	Name          string `json:"name"`
	Remark        string `json:"remark"`
	Amount        int    `json:"amount"`
	ReceiveAmount int    `json:"receive_amount"`
}

func (d *DemandReq) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Remark = strings.TrimSpace(d.Remark)

	if err := checkLengthLimit(d.Name, "name", 100); err != nil {
		return err
	}
	if err := checkLengthLimit(d.Remark, "remark", 500); err != nil {
		return err
	}
	if d.Amount < 0 || d.ReceiveAmount < 0 {
		return fmt.Errorf("demand amounts must not be negative")
	}
	return nil
}

func (d DemandReq) ToModel() models.OrganizationDemand {
	return models.OrganizationDemand{
		Name:          d.Name,
		Remark:        d.Remark,
		Amount:        d.Amount,
		ReceiveAmount: d.ReceiveAmount,
	}
}

func ParseDemandReq(data []byte) (*DemandReq, error) {
	d := &DemandReq{}

	err := json.Unmarshal(data, d)
	if err != nil {
		return nil, err
	}
	if err = d.Validate(); err != nil {
		return nil, err
	}
	if len(d.Name) == 0 {
		return nil, fmt.Errorf("field 'name' is required")
	}
	return d, nil
}

// Organization request

// OrganizationReq leaves optional fields nil when they are missing from the body.
type OrganizationReq struct {
	Province  string       `json:"province"`
	City      string       `json:"city"`
	Name      string       `json:"name"`
	Address   *string      `json:"address"`
	Source    *string      `json:"source"`
	Emergency *int         `json:"emergency"`
	Contacts  []ContactReq `json:"contacts"`
	Demands   []DemandReq  `json:"demands"`
}

func (o *OrganizationReq) Validate() error {
	o.Province = strings.TrimSpace(o.Province)
	o.City = strings.TrimSpace(o.City)
	o.Name = strings.TrimSpace(o.Name)
	trimOptional(o.Address)
	trimOptional(o.Source)

	for _, f := range []struct {
		val   string
		name  string
		limit int
	}{
		{o.Province, "province", 50},
		{o.City, "city", 50},
		{o.Name, "name", 100},
	} {
		if len(f.val) == 0 {
			return fmt.Errorf("field '%s' is required", f.name)
		}
		if err := checkLengthLimit(f.val, f.name, f.limit); err != nil {
			return err
		}
	}

	if err := checkOptionalLengthLimit(o.Address, "address", 200); err != nil {
		return err
	}
	if err := checkOptionalLengthLimit(o.Source, "source", 500); err != nil {
		return err
	}
	if o.Emergency != nil && *o.Emergency < 0 {
		return fmt.Errorf("field 'emergency' must not be negative")
	}

	for i := range o.Contacts {
		if err := o.Contacts[i].Validate(); err != nil {
			return fmt.Errorf("contacts[%d]: %w", i, err)
		}
	}
	for i := range o.Demands {
		if err := o.Demands[i].Validate(); err != nil {
			return fmt.Errorf("demands[%d]: %w", i, err)
		}
	}
	return nil
}

func (o OrganizationReq) ToModel() models.Organization {
	org := models.Organization{
		Province: o.Province,
		City:     o.City,
		Name:     o.Name,
		Supplied: models.Fields{},
	}
	if o.Address != nil {
		org.Address = *o.Address
		org.Supplied[models.FieldAddress] = true
	}
	if o.Source != nil {
		org.Source = *o.Source
		org.Supplied[models.FieldSource] = true
	}
	if o.Emergency != nil {
		org.Emergency = *o.Emergency
		org.Supplied[models.FieldEmergency] = true
	}
	for _, c := range o.Contacts {
		org.Contacts = append(org.Contacts, models.OrganizationContact{Name: c.Name, Phone: c.Phone})
	}
	for _, d := range o.Demands {
		org.Demands = append(org.Demands, d.ToModel())
	}
	return org
}

func ParseOrganizationReq(data []byte) (*OrganizationReq, error) {
	o := &OrganizationReq{}

	err := json.Unmarshal(data, o)
	if err != nil {
		return nil, err
	}
	if err = o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Back office import request

type ImportReq struct {
	Organizations []ImportOrganizationReq `json:"organizations"`
}

type ImportOrganizationReq struct {
	OrganizationReq
	Verified bool `json:"verified"`
}

func ParseImportReq(data []byte) (*ImportReq, error) {
	req := &ImportReq{}

	err := json.Unmarshal(data, req)
	if err != nil {
		return nil, err
	}
	if len(req.Organizations) == 0 {
		return nil, fmt.Errorf("no organizations supplied")
	}
	for i := range req.Organizations {
		if err = req.Organizations[i].Validate(); err != nil {
			return nil, fmt.Errorf("organizations[%d]: %w", i, err)
		}
	}
	return req, nil
}

func (req ImportReq) ToModels() []models.Organization {
	records := make([]models.Organization, 0, len(req.Organizations))
	for _, o := range req.Organizations {
		org := o.ToModel()
		org.Verified = o.Verified
		records = append(records, org)
	}
	return records
}

// Team request

// TeamReq leaves optional fields nil when they are missing from the body. An
// empty wechat_qrcode clears the stored one.
type TeamReq struct {
	Type         *string      `json:"type"`
	Name         string       `json:"name"`
	Address      *string      `json:"address"`
	MainText     *string      `json:"main_text"`
	WechatQRCode *string      `json:"wechat_qrcode"`
	Contacts     []ContactReq `json:"contacts"`
}

func (t *TeamReq) Validate() error {
	t.Name = strings.TrimSpace(t.Name)
	trimOptional(t.Type)
	trimOptional(t.Address)
	trimOptional(t.MainText)
	trimOptional(t.WechatQRCode)

	if len(t.Name) == 0 {
		return fmt.Errorf("field 'name' is required")
	}
	if err := checkLengthLimit(t.Name, "name", 100); err != nil {
		return err
	}
	if err := checkOptionalLengthLimit(t.Type, "type", 50); err != nil {
		return err
	}
	if err := checkOptionalLengthLimit(t.Address, "address", 200); err != nil {
		return err
	}
	if err := checkOptionalLengthLimit(t.MainText, "main_text", 2000); err != nil {
		return err
	}
	if err := checkOptionalLengthLimit(t.WechatQRCode, "wechat_qrcode", 500); err != nil {
		return err
	}

	for i := range t.Contacts {
		if err := t.Contacts[i].Validate(); err != nil {
			return fmt.Errorf("contacts[%d]: %w", i, err)
		}
	}
	return nil
}

func (t TeamReq) ToModel() models.Team {
	team := models.Team{
		Name:     t.Name,
		Supplied: models.Fields{},
	}
	if t.Type != nil {
		team.Type = *t.Type
		team.Supplied[models.FieldType] = true
	}
	if t.Address != nil {
		team.Address = *t.Address
		team.Supplied[models.FieldAddress] = true
	}
	if t.MainText != nil {
		team.MainText = *t.MainText
		team.Supplied[models.FieldMainText] = true
	}
	if t.WechatQRCode != nil {
		if len(*t.WechatQRCode) > 0 {
			qr := *t.WechatQRCode
			team.WechatQRCode = &qr
		}
		team.Supplied[models.FieldWechatQRCode] = true
	}
	for _, c := range t.Contacts {
		team.Contacts = append(team.Contacts, models.TeamContact{Name: c.Name, Phone: c.Phone})
	}
	return team
}

func ParseTeamReq(data []byte) (*TeamReq, error) {
	t := &TeamReq{}

	err := json.Unmarshal(data, t)
	if err != nil {
		return nil, err
	}
	if err = t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// New user request

type NewUserReq struct {
	Phone string `json:"phone"`
}

func ParseNewUserReq(data []byte) (*NewUserReq, error) {
	u := &NewUserReq{}

	err := json.Unmarshal(data, u)
	if err != nil {
		return nil, err
	}

	u.Phone = strings.TrimSpace(u.Phone)
	if len(u.Phone) == 0 {
		return nil, fmt.Errorf("field 'phone' is required")
	}
	if err = checkLengthLimit(u.Phone, "phone", 30); err != nil {
		return nil, err
	}
	return u, nil
}

// Service

func trimOptional(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

func checkOptionalLengthLimit(str *string, fieldName string, limit int) error {
	if str == nil {
		return nil
	}
	return checkLengthLimit(*str, fieldName, limit)
}

func checkLengthLimit(str, fieldName string, limit int) error {
	if n := utf8.RuneCountInString(str); n > limit {
		return fmt.Errorf("field '%s' exceeds length limit: %d / %d", fieldName, n, limit)
	}
	return nil
}
