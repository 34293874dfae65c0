package domain

type SyncItemPayload struct {
	Create []ItemCreateRequest `json:"create,omitempty"`
	Update []SyncItemUpdate    `json:"update,omitempty"`
	Delete []string            `json:"delete,omitempty"`
}

type SyncItemUpdate struct {
	ID string `json:"id"`
	ItemUpdateRequest
}

type SyncInvoicePayload struct {
	Create []InvoiceCreateRequest `json:"create,omitempty"`
}

type SyncPaymentPayload struct {
	Create []PaymentCreateRequest `json:"create,omitempty"`
}

// SyncPayload is one offline batch. Items are applied before invoices, invoices before payments.
type SyncPayload struct {
	IdempotencyKey string             `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
	Item           SyncItemPayload    `json:"item"`
	Invoice        SyncInvoicePayload `json:"invoice"`
	Payment        SyncPaymentPayload `json:"payment"`
}

const (
	SyncOpCreate = "create"
	SyncOpUpdate = "update"
	SyncOpDelete = "delete"

	SyncStatusApplied = "applied"
	SyncStatusFailed  = "failed"
)

// SyncOpResult is the outcome of one submitted operation; a failure never aborts the batch.
type SyncOpResult struct {
	Op      string `json:"op"`
	Index   int    `json:"index"`
	LocalID string `json:"local_id,omitempty"`
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type SyncCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

type SyncEntityManifest struct {
	Created []string       `json:"created"`
	Updated []string       `json:"updated"`
	Deleted []string       `json:"deleted"`
	Counts  SyncCounts     `json:"counts"`
	Results []SyncOpResult `json:"results"`
}

func NewSyncEntityManifest() SyncEntityManifest {
	return SyncEntityManifest{
		Created: []string{},
		Updated: []string{},
		Deleted: []string{},
		Results: []SyncOpResult{},
	}
}

// Record appends a result and keeps the id arrays and counts in step with it.
func (m *SyncEntityManifest) Record(result SyncOpResult) {
	m.Results = append(m.Results, result)
	if result.Status != SyncStatusApplied {
		m.Counts.Failed++
		return
	}
	switch result.Op {
	case SyncOpCreate:
		m.Created = append(m.Created, result.ID)
		m.Counts.Created = len(m.Created)
	case SyncOpUpdate:
		m.Updated = append(m.Updated, result.ID)
		m.Counts.Updated = len(m.Updated)
	case SyncOpDelete:
		m.Deleted = append(m.Deleted, result.ID)
		m.Counts.Deleted = len(m.Deleted)
	}
}

type SyncManifest struct {
	Items    SyncEntityManifest `json:"items"`
	Invoices SyncEntityManifest `json:"invoices"`
	Payments SyncEntityManifest `json:"payments"`
}

func NewSyncManifest() SyncManifest {
	return SyncManifest{
		Items:    NewSyncEntityManifest(),
		Invoices: NewSyncEntityManifest(),
		Payments: NewSyncEntityManifest(),
	}
}

type ClientSnapshot struct {
	Client          Client            `json:"client"`
	ItemGroups      []ItemGroup       `json:"item_groups"`
	Items           []Item            `json:"items"`
	Customers       []ClientCustomer  `json:"customers"`
	Invoices        []Invoice         `json:"invoices"`
	Payments        []Payment         `json:"payments"`
	PurchaseHistory []PurchaseHistory `json:"purchase_history"`
	Dealers         []Dealer          `json:"dealers"`
}

type SyncResponse struct {
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Replayed       bool           `json:"replayed"`
	Manifest       SyncManifest   `json:"manifest"`
	Snapshot       ClientSnapshot `json:"snapshot"`
}
