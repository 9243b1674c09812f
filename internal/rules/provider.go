package rules

import (
	"strings"

	"emailtracker/internal/model"
)

var providerSuffixes = map[string]model.Provider{
	"gmail.com":      model.ProviderGoogle,
	"googlemail.com": model.ProviderGoogle,
	"outlook.com":    model.ProviderOutlook,
	"hotmail.com":    model.ProviderOutlook,
	"live.com":       model.ProviderOutlook,
	"yahoo.com":      model.ProviderYahoo,
	"ymail.com":      model.ProviderYahoo,
	"protonmail.com": model.ProviderProtonMail,
	"proton.me":      model.ProviderProtonMail,
	"pm.me":          model.ProviderProtonMail,
	"icloud.com":     model.ProviderICloud,
	"me.com":         model.ProviderICloud,
	"mac.com":        model.ProviderICloud,
}

// SuggestProvider infers the provider from the part after '@'; unknown suffixes are Custom.
func SuggestProvider(email string) model.Provider {
	_, suffix, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok {
		return model.ProviderCustom
	}
	if p, found := providerSuffixes[strings.ToLower(suffix)]; found {
		return p
	}
	return model.ProviderCustom
}
