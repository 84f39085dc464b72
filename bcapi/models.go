package bcapi

// Typed records for the Business Central resources this client touches.
// Fields mirror the BC API JSON names; anything the API may omit is left as
// a zero value rather than a pointer, except where callers need to
// distinguish "absent" (see UnitPrice comments on Item).

// Address is the postal address block embedded in customer records.
type Address struct {
	Street            string `json:"street,omitempty"`
	City              string `json:"city,omitempty"`
	State             string `json:"state,omitempty"`
	CountryLetterCode string `json:"countryLetterCode,omitempty"`
	PostalCode        string `json:"postalCode,omitempty"`
}

// Customer is a BC customer card.
type Customer struct {
	ID           string  `json:"id,omitempty"`
	Number       string  `json:"number,omitempty"`
	DisplayName  string  `json:"displayName,omitempty"`
	Type         string  `json:"type,omitempty"`
	PhoneNumber  string  `json:"phoneNumber,omitempty"`
	Email        string  `json:"email,omitempty"`
	Website      string  `json:"website,omitempty"`
	CurrencyCode string  `json:"currencyCode,omitempty"`
	Address      Address `json:"address,omitempty"`
}

// Item is a BC item card.
type Item struct {
	ID                string  `json:"id,omitempty"`
	Number            string  `json:"number,omitempty"`
	DisplayName       string  `json:"displayName,omitempty"`
	ItemCategoryCode  string  `json:"itemCategoryCode,omitempty"`
	BaseUnitOfMeasure string  `json:"baseUnitOfMeasureCode,omitempty"`
	UnitPrice         float64 `json:"unitPrice,omitempty"`
	UnitCost          float64 `json:"unitCost,omitempty"`
	Inventory         float64 `json:"inventory,omitempty"`
	Blocked           bool    `json:"blocked,omitempty"`
}

// SalesOrder is a BC sales order header.
type SalesOrder struct {
	ID                      string  `json:"id,omitempty"`
	Number                  string  `json:"number,omitempty"`
	CustomerNumber          string  `json:"customerNumber,omitempty"`
	CustomerName            string  `json:"customerName,omitempty"`
	OrderDate               string  `json:"orderDate,omitempty"`
	Status                  string  `json:"status,omitempty"`
	CurrencyCode            string  `json:"currencyCode,omitempty"`
	TotalAmountExcludingTax float64 `json:"totalAmountExcludingTax,omitempty"`
	TotalAmountIncludingTax float64 `json:"totalAmountIncludingTax,omitempty"`
}

// CurrencyExchangeRate is a row of the currencyExchangeRates resource.
type CurrencyExchangeRate struct {
	CurrencyCode                 string  `json:"currencyCode,omitempty"`
	StartingDate                 string  `json:"startingDate,omitempty"`
	ExchangeRateAmount           float64 `json:"exchangeRateAmount,omitempty"`
	RelationalExchangeRateAmount float64 `json:"relationalExchangeRateAmount,omitempty"`
}

// Delivery is a record of the custom delivery API
// (publisher techSphereDynamics, app group delivery).
type Delivery struct {
	ID             string `json:"id,omitempty"`
	No             string `json:"no,omitempty"`
	CustomerID     string `json:"customerId,omitempty"`
	CustomerName   string `json:"customerName,omitempty"`
	Status         string `json:"status,omitempty"`
	DeliveryDate   string `json:"deliveryDate,omitempty"`
	DriverID       string `json:"driverId,omitempty"`
	DeliveryStreet string `json:"deliveryStreet,omitempty"`
	DeliveryCity   string `json:"deliveryCity,omitempty"`
	Notes          string `json:"notes,omitempty"`
	LastUpdateDate string `json:"lastUpdateDate,omitempty"`
}

// DeliveryRoute is a planned route of the custom delivery API.
type DeliveryRoute struct {
	ID              string  `json:"id,omitempty"`
	No              string  `json:"no,omitempty"`
	RouteDate       string  `json:"routeDate,omitempty"`
	DriverID        string  `json:"driverId,omitempty"`
	DriverName      string  `json:"driverName,omitempty"`
	Status          string  `json:"status,omitempty"`
	DeliveryCount   int     `json:"deliveryCount,omitempty"`
	TotalDistanceKm float64 `json:"totalDistanceKm,omitempty"`
}

// InventoryStatus is a row of the custom inventory resource.
type InventoryStatus struct {
	ItemNumber        string  `json:"itemNumber,omitempty"`
	ItemName          string  `json:"itemName,omitempty"`
	WarehouseID       string  `json:"warehouseId,omitempty"`
	QuantityOnHand    float64 `json:"quantityOnHand,omitempty"`
	QuantityReserved  float64 `json:"quantityReserved,omitempty"`
	QuantityAvailable float64 `json:"quantityAvailable,omitempty"`
}

// DeliveryFilter holds the optional criteria for GetDeliveries.
// Dates are YYYY-MM-DD strings, passed to OData unquoted.
type DeliveryFilter struct {
	CustomerID string
	Status     string
	DateFrom   string
	DateTo     string
}

// listEnvelope is the OData pagination wrapper all BC list endpoints return.
type listEnvelope[T any] struct {
	Value []T `json:"value"`
}
