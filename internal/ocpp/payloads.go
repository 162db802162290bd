package ocpp

// Request and response payloads for the OCPP 1.6 actions the core speaks.
// Field names follow the wire format (camelCase, per the OCPP 1.6 JSON
// specification).

type BootNotificationReq struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	Iccid                   string `json:"iccid,omitempty"`
	Imsi                    string `json:"imsi,omitempty"`
	MeterType               string `json:"meterType,omitempty"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty"`
}

type BootNotificationResp struct {
	Status      string `json:"status"` // Accepted | Pending | Rejected
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
}

type HeartbeatResp struct {
	CurrentTime string `json:"currentTime"`
}

type StatusNotificationReq struct {
	ConnectorID     int    `json:"connectorId"`
	ErrorCode       string `json:"errorCode"`
	Status          string `json:"status"`
	Info            string `json:"info,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
	VendorID        string `json:"vendorId,omitempty"`
	VendorErrorCode string `json:"vendorErrorCode,omitempty"`
}

type AuthorizeReq struct {
	IdTag string `json:"idTag"`
}

type IdTagInfo struct {
	Status      string `json:"status"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
	ParentIdTag string `json:"parentIdTag,omitempty"`
}

type AuthorizeResp struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

type StartTransactionReq struct {
	ConnectorID   int    `json:"connectorId"`
	IdTag         string `json:"idTag"`
	MeterStart    int    `json:"meterStart"`
	Timestamp     string `json:"timestamp"`
	ReservationID *int   `json:"reservationId,omitempty"`
}

type StartTransactionResp struct {
	TransactionID int       `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

type StopTransactionReq struct {
	TransactionID   int          `json:"transactionId"`
	MeterStop       int          `json:"meterStop"`
	Timestamp       string       `json:"timestamp"`
	IdTag           string       `json:"idTag,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	TransactionData []MeterEntry `json:"transactionData,omitempty"`
}

type StopTransactionResp struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Format    string `json:"format,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

type MeterEntry struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

type MeterValuesReq struct {
	ConnectorID   int          `json:"connectorId"`
	TransactionID *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterEntry `json:"meterValue"`
}

type DataTransferReq struct {
	VendorID  string `json:"vendorId"`
	MessageID string `json:"messageId,omitempty"`
	Data      string `json:"data,omitempty"`
}

type DataTransferResp struct {
	Status string `json:"status"` // Accepted | Rejected | UnknownVendorId | UnknownMessageId
	Data   string `json:"data,omitempty"`
}

type FirmwareStatusNotificationReq struct {
	Status string `json:"status"`
}

type DiagnosticsStatusNotificationReq struct {
	Status string `json:"status"`
}

// Server-initiated requests.

type RemoteStartTransactionReq struct {
	IdTag       string      `json:"idTag"`
	ConnectorID *int        `json:"connectorId,omitempty"`
	Profile     interface{} `json:"chargingProfile,omitempty"`
}

type RemoteStopTransactionReq struct {
	TransactionID int `json:"transactionId"`
}

type ResetReq struct {
	Type string `json:"type"` // Hard | Soft
}

type ChangeAvailabilityReq struct {
	ConnectorID int    `json:"connectorId"`
	Type        string `json:"type"` // Inoperative | Operative
}

type ChangeConfigurationReq struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type GetConfigurationReq struct {
	Key []string `json:"key,omitempty"`
}

type TriggerMessageReq struct {
	RequestedMessage string `json:"requestedMessage"`
	ConnectorID      *int   `json:"connectorId,omitempty"`
}

type UnlockConnectorReq struct {
	ConnectorID int `json:"connectorId"`
}

type GetDiagnosticsReq struct {
	Location      string `json:"location"`
	Retries       *int   `json:"retries,omitempty"`
	RetryInterval *int   `json:"retryInterval,omitempty"`
	StartTime     string `json:"startTime,omitempty"`
	StopTime      string `json:"stopTime,omitempty"`
}

type UpdateFirmwareReq struct {
	Location      string `json:"location"`
	RetrieveDate  string `json:"retrieveDate"`
	Retries       *int   `json:"retries,omitempty"`
	RetryInterval *int   `json:"retryInterval,omitempty"`
}

type ReserveNowReq struct {
	ConnectorID   int    `json:"connectorId"`
	ExpiryDate    string `json:"expiryDate"`
	IdTag         string `json:"idTag"`
	ReservationID int    `json:"reservationId"`
	ParentIdTag   string `json:"parentIdTag,omitempty"`
}

type CancelReservationReq struct {
	ReservationID int `json:"reservationId"`
}

type SetChargingProfileReq struct {
	ConnectorID     int         `json:"connectorId"`
	ChargingProfile interface{} `json:"csChargingProfiles"`
}

type ClearChargingProfileReq struct {
	ID          *int   `json:"id,omitempty"`
	ConnectorID *int   `json:"connectorId,omitempty"`
	Purpose     string `json:"chargingProfilePurpose,omitempty"`
	StackLevel  *int   `json:"stackLevel,omitempty"`
}

type GetCompositeScheduleReq struct {
	ConnectorID int    `json:"connectorId"`
	Duration    int    `json:"duration"`
	Unit        string `json:"chargingRateUnit,omitempty"`
}

// GenericStatusResp covers the many server-initiated calls whose result is a
// bare status field.
type GenericStatusResp struct {
	Status string `json:"status"`
}
