package config

import (
	"audiblezenbot/internal/configstore"
	"audiblezenbot/internal/credentials"
	"audiblezenbot/internal/platform"
	"audiblezenbot/internal/protect"
	"audiblezenbot/pkg/logging"
)

// ResolveCredentials registers client credentials for every platform in reg.
// Environment values win field by field; missing fields are taken from the
// config document, where client_secret may be protected. doc may be nil.
//
// Returns the platforms that ended up with a client id.
func ResolveCredentials(reg *platform.Registry, s *Settings, doc *configstore.Document, p protect.Protector) []platform.ID {
	var configured []platform.ID

	for _, id := range platform.All() {
		if _, err := reg.Descriptor(id); err != nil {
			continue
		}

		fromEnv := s.Credentials(id)
		creds := platform.Credentials{
			ClientID:     fromEnv.ClientID,
			ClientSecret: fromEnv.ClientSecret,
		}

		if doc != nil && (creds.ClientID == "" || creds.ClientSecret == "") {
			stored, err := credentials.ClientCredentials(doc, p, id)
			if err != nil {
				logging.WarnErr("Config", err, "Ignoring stored client secret for %s", id)
			}
			if creds.ClientID == "" {
				creds.ClientID = stored.ClientID
			}
			if creds.ClientSecret == "" {
				creds.ClientSecret = stored.ClientSecret
			}
		}

		if creds.ClientID == "" {
			logging.Debug("Config", "No client id for %s", id)
			continue
		}

		if err := reg.SetCredentials(id, creds); err != nil {
			logging.WarnErr("Config", err, "Could not register credentials for %s", id)
			continue
		}
		configured = append(configured, id)
	}

	return configured
}
