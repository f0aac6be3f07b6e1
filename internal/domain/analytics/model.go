package analytics

import "github.com/shopspring/decimal"

// Ranges maps the dashboard's range keys to a look-back in months.
var Ranges = map[string]int{
	"1month":  1,
	"3months": 3,
	"6months": 6,
	"1year":   12,
}

const DefaultRange = "6months"

// ParseRange returns the canonical range key and its months. Unknown keys
// fall back to the default.
func ParseRange(key string) (string, int) {
	if m, ok := Ranges[key]; ok {
		return key, m
	}
	return DefaultRange, Ranges[DefaultRange]
}

// Amount is a sum of money rendered as a JSON number.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount { return Amount{Decimal: d} }

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

type UserGrowth struct {
	Month    string `json:"month"`
	Users    int    `json:"users"`
	Doctors  int    `json:"doctors"`
	Patients int    `json:"patients"`
}

type RevenuePoint struct {
	Month         string `json:"month"`
	Revenue       Amount `json:"revenue"`
	Subscriptions int    `json:"subscriptions"`
}

type AppointmentStat struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type PaymentMethodStat struct {
	Method string `json:"method"`
	Count  int    `json:"count"`
	Amount Amount `json:"amount"`
}

// Counts are the non-monetary totals of the monthly summary.
type Counts struct {
	TotalUsers            int
	NewUsers              int
	TotalAppointments     int
	CompletedAppointments int
}

type RevenueTotals struct {
	Total   Amount
	Monthly Amount
}

type MonthlyStats struct {
	TotalUsers            int    `json:"totalUsers"`
	NewUsers              int    `json:"newUsers"`
	TotalRevenue          Amount `json:"totalRevenue"`
	MonthlyRevenue        Amount `json:"monthlyRevenue"`
	TotalAppointments     int    `json:"totalAppointments"`
	CompletedAppointments int    `json:"completedAppointments"`
}

// Dashboard is the full analytics response for one range.
type Dashboard struct {
	UserGrowth       []UserGrowth        `json:"userGrowth"`
	RevenueData      []RevenuePoint      `json:"revenueData"`
	AppointmentStats []AppointmentStat   `json:"appointmentStats"`
	PaymentMethods   []PaymentMethodStat `json:"paymentMethods"`
	MonthlyStats     MonthlyStats        `json:"monthlyStats"`
}
