package models

// Optional fields of organization and team submissions.
const (
	FieldAddress      = "address"
	FieldSource       = "source"
	FieldEmergency    = "emergency"
	FieldType         = "type"
	FieldMainText     = "main_text"
	FieldWechatQRCode = "wechat_qrcode"
)

// Fields is the set of optional fields a submission carried. Merges and
// updates leave the stored value of a missing field as is. A nil set stands
// for a submission carrying every field.
type Fields map[string]bool

func (f Fields) Has(name string) bool {
	return f == nil || f[name]
}
