package models

import (
	"time"

	"github.com/google/uuid"
)

type Team struct {
	Id           uuid.UUID     `json:"id"`
	Type         string        `json:"type"`
	Name         string        `json:"name"`
	Address      string        `json:"address"`
	MainText     string        `json:"main_text"`
	Verified     bool          `json:"verified"`
	Inspector    uuid.NullUUID `json:"inspector"`
	WechatQRCode *string       `json:"wechat_qrcode"`
	AddTime      time.Time     `json:"add_time"`
	Contacts     []TeamContact `json:"contacts"`

	Supplied Fields `json:"-"`
}

func (t Team) NaturalKey() string {
	return "team:" + t.Name
}

type TeamContact struct {
	Id      uuid.UUID `json:"id"`
	TeamId  uuid.UUID `json:"team"`
	Name    string    `json:"name"`
	Phone   string    `json:"phone"`
	AddTime time.Time `json:"add_time"`
}

type TeamQuery struct {
	Limit  int
	Offset int

	Id        uuid.NullUUID
	Name      string
	Address   string
	Inspector uuid.NullUUID
	Verified  *bool

	Owner        uuid.NullUUID
	Mine         bool
	FuzzyName    string
	FuzzyAddress string
}
