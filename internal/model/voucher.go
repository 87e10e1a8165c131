package model

// VoucherBatch summarises one generate_voucher call.
type VoucherBatch struct {
	Profile   string           `json:"profile"`
	Requested int              `json:"requested"`
	Count     int              `json:"count"`
	Length    int              `json:"length"`
	Prefix    string           `json:"prefix,omitempty"`
	Comment   string           `json:"comment"`
	Codes     []string         `json:"vouchers"`
	Failures  []VoucherFailure `json:"failures,omitempty"`
}

// VoucherFailure records why a generated code was not provisioned.
type VoucherFailure struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

const (
	VoucherDuplicate = "duplicate"
	VoucherRejected  = "rejected"
	VoucherTransport = "transport"
)
