package model

// Provider is the closed set of email services a record can be attributed to.
type Provider string

const (
	ProviderGoogle     Provider = "Google"
	ProviderOutlook    Provider = "Outlook"
	ProviderYahoo      Provider = "Yahoo"
	ProviderProtonMail Provider = "ProtonMail"
	ProviderICloud     Provider = "iCloud"
	ProviderCustom     Provider = "Custom"
)

// Providers lists every known provider in display order.
var Providers = []Provider{
	ProviderGoogle,
	ProviderOutlook,
	ProviderYahoo,
	ProviderProtonMail,
	ProviderICloud,
	ProviderCustom,
}

func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

func (p Provider) String() string {
	return string(p)
}
